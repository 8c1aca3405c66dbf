package advice

import (
	"errors"
	"testing"

	"github.com/chazu/weft/pkg/classfile"
)

const (
	enterAnn = "L" + DefaultEnterMarker + ";"
	exitAnn  = "L" + DefaultExitMarker + ";"
)

func marker(typ string) classfile.Annotation {
	return classfile.Annotation{Type: typ}
}

func annWith(typ string, elems ...classfile.AnnotationElement) classfile.Annotation {
	return classfile.Annotation{Type: typ, Elements: elems}
}

func intElem(name string, v int32) classfile.AnnotationElement {
	return classfile.AnnotationElement{Name: name, Value: classfile.ElemConst{Tag: 'I', Value: classfile.ConstInt(v)}}
}

func boolElem(name string, v bool) classfile.AnnotationElement {
	b := int32(0)
	if v {
		b = 1
	}
	return classfile.AnnotationElement{Name: name, Value: classfile.ElemConst{Tag: 'Z', Value: classfile.ConstInt(b)}}
}

func strElem(name, v string) classfile.AnnotationElement {
	return classfile.AnnotationElement{Name: name, Value: classfile.ElemConst{Tag: 's', Value: classfile.ConstString(v)}}
}

func build(t *testing.T, b *classfile.Builder) []byte {
	t.Helper()
	data, err := b.Build()
	if err != nil {
		t.Fatalf("building fixture class: %v", err)
	}
	return data
}

// voidBody emits an empty static method body.
func voidBody(w *classfile.CodeWriter) error {
	w.VisitInsn(classfile.OpReturn)
	return w.VisitMaxs(0, 0)
}

func TestComposeNoMarkedMethod(t *testing.T) {
	data := build(t, classfile.NewBuilder("app/Empty").
		AddMethod(classfile.AccPublic|classfile.AccStatic, "helper", "()V", voidBody))
	if _, err := Compose(data, DefaultOptions()); !errors.Is(err, ErrComposition) {
		t.Errorf("Compose = %v, want ErrComposition", err)
	}
}

func TestComposeRejectsCorruptClass(t *testing.T) {
	if _, err := Compose([]byte{1, 2, 3}, DefaultOptions()); !errors.Is(err, ErrComposition) {
		t.Errorf("Compose = %v, want ErrComposition", err)
	}
}

func TestComposeDuplicateEnter(t *testing.T) {
	data := build(t, classfile.NewBuilder("app/Dup").
		AddMethod(classfile.AccPublic|classfile.AccStatic, "one", "()V", voidBody).
		AnnotateMethod(marker(enterAnn)).
		AddMethod(classfile.AccPublic|classfile.AccStatic, "two", "()V", voidBody).
		AnnotateMethod(marker(enterAnn)))
	if _, err := Compose(data, DefaultOptions()); !errors.Is(err, ErrComposition) {
		t.Errorf("Compose = %v, want ErrComposition", err)
	}
}

func TestComposeNonStaticAdvice(t *testing.T) {
	data := build(t, classfile.NewBuilder("app/Inst").
		AddMethod(classfile.AccPublic, "enter", "()V", func(w *classfile.CodeWriter) error {
			w.VisitInsn(classfile.OpReturn)
			return w.VisitMaxs(0, 1)
		}).
		AnnotateMethod(marker(enterAnn)))
	if _, err := Compose(data, DefaultOptions()); !errors.Is(err, ErrComposition) {
		t.Errorf("Compose = %v, want ErrComposition", err)
	}
}

func TestComposeAbstractAdvice(t *testing.T) {
	data := build(t, classfile.NewBuilder("app/Abs").
		SetAccessFlags(classfile.AccPublic|classfile.AccAbstract).
		AddMethod(classfile.AccPublic|classfile.AccStatic|classfile.AccNative, "enter", "()V", nil).
		AnnotateMethod(marker(enterAnn)))
	if _, err := Compose(data, DefaultOptions()); !errors.Is(err, ErrComposition) {
		t.Errorf("Compose = %v, want ErrComposition", err)
	}
}

func TestComposeEnterOnly(t *testing.T) {
	data := build(t, classfile.NewBuilder("app/EnterOnly").
		AddMethod(classfile.AccPublic|classfile.AccStatic, "enter", "()V", voidBody).
		AnnotateMethod(marker(enterAnn)))
	a, err := Compose(data, DefaultOptions())
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if !a.Enter().Active() {
		t.Error("enter dispatcher should be active")
	}
	if a.Exit().Active() {
		t.Error("exit dispatcher should be inactive")
	}
	if !a.EnterType().IsVoid() {
		t.Errorf("EnterType = %v, want void", a.EnterType())
	}
}

func TestComposeCustomMarkers(t *testing.T) {
	data := build(t, classfile.NewBuilder("app/Custom").
		AddMethod(classfile.AccPublic|classfile.AccStatic, "before", "()V", voidBody).
		AnnotateMethod(marker("Lcom/acme/Before;")))
	opts := DefaultOptions()
	opts.Markers = MarkerSet{Enter: "com/acme/Before"}
	a, err := Compose(data, opts)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if !a.Enter().Active() {
		t.Error("custom enter marker not recognized")
	}
	if got := a.Enter().AdviceMethod().Name; got != "before" {
		t.Errorf("advice method = %q, want before", got)
	}
}

func TestComposeEnterTypeFromReturn(t *testing.T) {
	data := build(t, classfile.NewBuilder("app/Timed").
		AddMethod(classfile.AccPublic|classfile.AccStatic, "enter", "()J", func(w *classfile.CodeWriter) error {
			w.VisitMethodInsn(classfile.OpInvokestatic, "java/lang/System", "nanoTime", "()J", false)
			w.VisitInsn(classfile.OpLreturn)
			return w.VisitMaxs(2, 0)
		}).
		AnnotateMethod(marker(enterAnn)))
	a, err := Compose(data, DefaultOptions())
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if a.EnterType().Descriptor != "J" {
		t.Errorf("EnterType = %v, want J", a.EnterType())
	}
}

func TestThrownBindingRequiresExceptional(t *testing.T) {
	data := build(t, classfile.NewBuilder("app/Thrown").
		AddMethod(classfile.AccPublic|classfile.AccStatic, "exit", "(Ljava/lang/Throwable;)V", func(w *classfile.CodeWriter) error {
			w.VisitInsn(classfile.OpReturn)
			return w.VisitMaxs(0, 1)
		}).
		AnnotateMethod(marker(exitAnn)).
		AnnotateParams([]classfile.Annotation{marker("Lweft/Thrown;")}))
	opts := DefaultOptions()
	opts.ExceptionalInvocation = false
	if _, err := Compose(data, opts); !errors.Is(err, ErrComposition) {
		t.Errorf("Compose = %v, want ErrComposition", err)
	}
	if _, err := Compose(data, DefaultOptions()); err != nil {
		t.Errorf("Compose with exceptional invocation failed: %v", err)
	}
}

func TestThrownBindingWrongType(t *testing.T) {
	data := build(t, classfile.NewBuilder("app/ThrownType").
		AddMethod(classfile.AccPublic|classfile.AccStatic, "exit", "(Ljava/lang/Exception;)V", func(w *classfile.CodeWriter) error {
			w.VisitInsn(classfile.OpReturn)
			return w.VisitMaxs(0, 1)
		}).
		AnnotateMethod(marker(exitAnn)).
		AnnotateParams([]classfile.Annotation{marker("Lweft/Thrown;")}))
	if _, err := Compose(data, DefaultOptions()); !errors.Is(err, ErrComposition) {
		t.Errorf("Compose = %v, want ErrComposition", err)
	}
}

func TestExitOnlyBindingInEnterRole(t *testing.T) {
	data := build(t, classfile.NewBuilder("app/Misplaced").
		AddMethod(classfile.AccPublic|classfile.AccStatic, "enter", "(I)V", func(w *classfile.CodeWriter) error {
			w.VisitInsn(classfile.OpReturn)
			return w.VisitMaxs(0, 1)
		}).
		AnnotateMethod(marker(enterAnn)).
		AnnotateParams([]classfile.Annotation{marker("Lweft/Return;")}))
	if _, err := Compose(data, DefaultOptions()); !errors.Is(err, ErrComposition) {
		t.Errorf("Compose = %v, want ErrComposition", err)
	}
}

func TestParameterBoundTwice(t *testing.T) {
	data := build(t, classfile.NewBuilder("app/Twice").
		AddMethod(classfile.AccPublic|classfile.AccStatic, "enter", "(Ljava/lang/Object;)V", func(w *classfile.CodeWriter) error {
			w.VisitInsn(classfile.OpReturn)
			return w.VisitMaxs(0, 1)
		}).
		AnnotateMethod(marker(enterAnn)).
		AnnotateParams([]classfile.Annotation{
			annWith("Lweft/Arg;", intElem("value", 0)),
			marker("Lweft/This;"),
		}))
	if _, err := Compose(data, DefaultOptions()); !errors.Is(err, ErrComposition) {
		t.Errorf("Compose = %v, want ErrComposition", err)
	}
}

func TestFieldBindingNamesNoField(t *testing.T) {
	data := build(t, classfile.NewBuilder("app/NoName").
		AddMethod(classfile.AccPublic|classfile.AccStatic, "enter", "(I)V", func(w *classfile.CodeWriter) error {
			w.VisitInsn(classfile.OpReturn)
			return w.VisitMaxs(0, 1)
		}).
		AnnotateMethod(marker(enterAnn)).
		AnnotateParams([]classfile.Annotation{marker("Lweft/FieldValue;")}))
	if _, err := Compose(data, DefaultOptions()); !errors.Is(err, ErrComposition) {
		t.Errorf("Compose = %v, want ErrComposition", err)
	}
}

func TestThisBindingOnPrimitiveParameter(t *testing.T) {
	data := build(t, classfile.NewBuilder("app/BadThis").
		AddMethod(classfile.AccPublic|classfile.AccStatic, "enter", "(I)V", func(w *classfile.CodeWriter) error {
			w.VisitInsn(classfile.OpReturn)
			return w.VisitMaxs(0, 1)
		}).
		AnnotateMethod(marker(enterAnn)).
		AnnotateParams([]classfile.Annotation{marker("Lweft/This;")}))
	if _, err := Compose(data, DefaultOptions()); !errors.Is(err, ErrComposition) {
		t.Errorf("Compose = %v, want ErrComposition", err)
	}
}
