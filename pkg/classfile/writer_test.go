package classfile

import (
	"bytes"
	"strings"
	"testing"
)

func TestBuilderRoundTrip(t *testing.T) {
	data, err := NewBuilder("demo/Greeter").
		SetSuper("demo/Base").
		AddInterface("java/lang/Runnable").
		AddField(AccPrivate|AccFinal, "name", "Ljava/lang/String;").
		AddField(AccPrivate|AccStatic, "count", "I").
		AddMethod(AccPublic, "run", "()V", func(w *CodeWriter) error {
			w.VisitInsn(OpReturn)
			return w.VisitMaxs(0, 1)
		}).
		AddMethod(AccPublic|AccAbstract, "hook", "()V", nil).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	cf, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cf.ThisClass != "demo/Greeter" {
		t.Errorf("ThisClass = %q", cf.ThisClass)
	}
	if cf.SuperClass != "demo/Base" {
		t.Errorf("SuperClass = %q", cf.SuperClass)
	}
	if len(cf.Interfaces) != 1 || cf.Interfaces[0] != "java/lang/Runnable" {
		t.Errorf("Interfaces = %v", cf.Interfaces)
	}
	if f := cf.Field("name"); f == nil || f.Descriptor != "Ljava/lang/String;" {
		t.Errorf("field name = %+v", f)
	}
	if f := cf.Field("count"); f == nil || f.AccessFlags&AccStatic == 0 {
		t.Errorf("field count = %+v", f)
	}
	run := cf.Method("run", "()V")
	if run == nil || !run.HasCode() {
		t.Fatal("run method missing or without code")
	}
	hook := cf.Method("hook", "()V")
	if hook == nil || hook.HasCode() {
		t.Fatal("hook method should be abstract")
	}

	// Re-serialization of a parsed class is stable.
	again, err := cf.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Error("re-serialized class differs from the original")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte{0xde, 0xad, 0xbe, 0xef, 0, 0}); err == nil {
		t.Error("bad magic should fail")
	}
	if _, err := Parse([]byte{0xca, 0xfe}); err == nil {
		t.Error("truncated header should fail")
	}
}

func TestMethodAnnotationsRoundTrip(t *testing.T) {
	data, err := NewBuilder("demo/Annotated").
		AddMethod(AccPublic|AccStatic, "probe", "(IJ)V", func(w *CodeWriter) error {
			w.VisitInsn(OpReturn)
			return w.VisitMaxs(0, 3)
		}).
		AnnotateMethod(Annotation{
			Type: "Ldemo/Marker;",
			Elements: []AnnotationElement{
				{Name: "value", Value: ElemConst{Tag: 's', Value: ConstString("x")}},
				{Name: "level", Value: ElemConst{Tag: 'I', Value: ConstInt(3)}},
				{Name: "on", Value: ElemConst{Tag: 'Z', Value: ConstInt(1)}},
			},
		}).
		AnnotateParams(
			[]Annotation{{Type: "Ldemo/First;"}},
			nil,
		).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	cf, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	m := cf.Method("probe", "(IJ)V")
	anns, err := m.Annotations(cf.Pool)
	if err != nil {
		t.Fatal(err)
	}
	if len(anns) != 1 || anns[0].Type != "Ldemo/Marker;" {
		t.Fatalf("annotations = %+v", anns)
	}
	a := anns[0]
	if got := a.String("value", ""); got != "x" {
		t.Errorf("value = %q, want x", got)
	}
	if got := a.Int("level", 0); got != 3 {
		t.Errorf("level = %d, want 3", got)
	}
	if !a.Bool("on", false) {
		t.Error("on = false, want true")
	}
	if got := a.Int("missing", -1); got != -1 {
		t.Errorf("missing element default = %d, want -1", got)
	}

	params, err := m.ParameterAnnotations(cf.Pool)
	if err != nil {
		t.Fatal(err)
	}
	if len(params) != 2 {
		t.Fatalf("parameter annotation lists = %d, want 2", len(params))
	}
	if len(params[0]) != 1 || params[0][0].Type != "Ldemo/First;" {
		t.Errorf("param 0 annotations = %+v", params[0])
	}
	if len(params[1]) != 0 {
		t.Errorf("param 1 annotations = %+v", params[1])
	}
}

func TestAnnotationsAbsent(t *testing.T) {
	data, err := NewBuilder("demo/Bare").
		AddMethod(AccPublic|AccStatic, "f", "()V", func(w *CodeWriter) error {
			w.VisitInsn(OpReturn)
			return w.VisitMaxs(0, 0)
		}).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	cf, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	m := cf.Method("f", "()V")
	if anns, err := m.Annotations(cf.Pool); err != nil || anns != nil {
		t.Errorf("Annotations = %v, %v; want nil, nil", anns, err)
	}
	if params, err := m.ParameterAnnotations(cf.Pool); err != nil || params != nil {
		t.Errorf("ParameterAnnotations = %v, %v; want nil, nil", params, err)
	}
}

func TestDisassembleSmoke(t *testing.T) {
	data, err := NewBuilder("demo/Disasm").
		AddMethod(AccPublic|AccStatic, "twice", "(I)I", func(w *CodeWriter) error {
			w.VisitVarInsn(OpIload, 0)
			w.VisitInsn(OpDup)
			w.VisitInsn(OpIadd)
			w.VisitInsn(OpIreturn)
			return w.VisitMaxs(2, 1)
		}).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	cf, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	var sb strings.Builder
	if err := Disassemble(cf, &sb); err != nil {
		t.Fatalf("Disassemble failed: %v", err)
	}
	out := sb.String()
	for _, want := range []string{"demo/Disasm", "twice", "iload", "iadd", "ireturn"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}
