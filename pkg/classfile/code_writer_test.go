package classfile

import (
	"bytes"
	"errors"
	"testing"
)

// rebuild parses a built class, replays the named method through a fresh
// CodeWriter against the parsed pool, and returns the original and re-emitted
// Code attribute payloads. The reader normalizes short forms and the writer
// re-compacts them, so the two payloads should be byte-identical.
func rebuild(t *testing.T, data []byte, name, descriptor string) (orig, rewritten []byte) {
	t.Helper()
	cf, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	m := cf.Method(name, descriptor)
	if m == nil {
		t.Fatalf("method %s%s not found", name, descriptor)
	}
	w := NewCodeWriter(cf.Pool)
	if err := AcceptCode(cf, m, w); err != nil {
		t.Fatalf("AcceptCode failed: %v", err)
	}
	out, err := w.Finish()
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	return m.CodeAttribute(), out
}

func TestLoopRoundTrip(t *testing.T) {
	data, err := NewBuilder("fix/Loop").
		AddMethod(AccPublic|AccStatic, "count", "(I)I", func(w *CodeWriter) error {
			start := &Label{}
			end := &Label{}
			w.VisitInsn(OpIconst0)
			w.VisitVarInsn(OpIstore, 1)
			w.VisitLabel(start)
			w.VisitFrame(Frame{Kind: FrameAppend, Locals: []VerificationType{{Tag: VTInteger}}})
			w.VisitVarInsn(OpIload, 1)
			w.VisitVarInsn(OpIload, 0)
			w.VisitJumpInsn(OpIfIcmpge, end)
			w.VisitIincInsn(1, 1)
			w.VisitJumpInsn(OpGoto, start)
			w.VisitLabel(end)
			w.VisitFrame(Frame{Kind: FrameSame})
			w.VisitVarInsn(OpIload, 1)
			w.VisitInsn(OpIreturn)
			return w.VisitMaxs(2, 2)
		}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	orig, rewritten := rebuild(t, data, "count", "(I)I")
	if !bytes.Equal(orig, rewritten) {
		t.Errorf("re-emitted code differs:\n  orig %x\n  new  %x", orig, rewritten)
	}
}

func TestTryCatchRoundTrip(t *testing.T) {
	data, err := NewBuilder("fix/Catcher").
		AddMethod(AccPublic|AccStatic, "guard", "()I", func(w *CodeWriter) error {
			start := &Label{}
			end := &Label{}
			handler := &Label{}
			w.VisitLabel(start)
			w.VisitMethodInsn(OpInvokestatic, "fix/Catcher", "risky", "()I", false)
			w.VisitLabel(end)
			w.VisitInsn(OpIreturn)
			w.VisitFrame(FullFrame(nil, []VerificationType{VTObjectOf("java/lang/Exception")}))
			w.VisitLabel(handler)
			w.VisitInsn(OpPop)
			w.VisitInsn(OpIconstM1)
			w.VisitInsn(OpIreturn)
			w.VisitTryCatch(start, end, handler, "java/lang/Exception")
			return w.VisitMaxs(1, 0)
		}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	cf, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	code, err := cf.ParseCode(cf.Method("guard", "()I").CodeAttribute())
	if err != nil {
		t.Fatal(err)
	}
	if len(code.ExceptionTable) != 1 {
		t.Fatalf("exception table length = %d, want 1", len(code.ExceptionTable))
	}
	e := code.ExceptionTable[0]
	if e.CatchType != "java/lang/Exception" {
		t.Errorf("catch type = %q", e.CatchType)
	}
	if e.StartPC != 0 || e.EndPC != 3 || e.HandlerPC != 4 {
		t.Errorf("entry = %d/%d/%d, want 0/3/4", e.StartPC, e.EndPC, e.HandlerPC)
	}

	orig, rewritten := rebuild(t, data, "guard", "()I")
	if !bytes.Equal(orig, rewritten) {
		t.Errorf("re-emitted code differs:\n  orig %x\n  new  %x", orig, rewritten)
	}
}

func TestSwitchRoundTrip(t *testing.T) {
	data, err := NewBuilder("fix/Switcher").
		AddMethod(AccPublic|AccStatic, "pick", "(I)I", func(w *CodeWriter) error {
			one := &Label{}
			two := &Label{}
			dflt := &Label{}
			w.VisitVarInsn(OpIload, 0)
			w.VisitTableSwitchInsn(1, 2, dflt, []*Label{one, two})
			w.VisitLabel(one)
			w.VisitFrame(Frame{Kind: FrameSame})
			w.VisitInsn(OpIconst1)
			w.VisitInsn(OpIreturn)
			w.VisitLabel(two)
			w.VisitFrame(Frame{Kind: FrameSame})
			w.VisitVarInsn(OpIload, 0)
			w.VisitLookupSwitchInsn(dflt, []int32{-5, 900}, []*Label{one, dflt})
			w.VisitLabel(dflt)
			w.VisitFrame(Frame{Kind: FrameSame})
			w.VisitInsn(OpIconst0)
			w.VisitInsn(OpIreturn)
			return w.VisitMaxs(1, 1)
		}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	orig, rewritten := rebuild(t, data, "pick", "(I)I")
	if !bytes.Equal(orig, rewritten) {
		t.Errorf("re-emitted code differs:\n  orig %x\n  new  %x", orig, rewritten)
	}
}

func TestLdcAndWideRoundTrip(t *testing.T) {
	data, err := NewBuilder("fix/Consts").
		AddMethod(AccPublic|AccStatic, "mix", "()V", func(w *CodeWriter) error {
			w.VisitLdcInsn(ConstString("hello"))
			w.VisitInsn(OpPop)
			w.VisitLdcInsn(ConstLong(1 << 40))
			w.VisitVarInsn(OpLstore, 300) // forces the wide form
			w.VisitLdcInsn(ConstClass("java/lang/Object"))
			w.VisitInsn(OpPop)
			w.VisitIincInsn(302, 200) // wide iinc: increment over 127
			w.VisitInsn(OpReturn)
			return w.VisitMaxs(2, 303)
		}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	orig, rewritten := rebuild(t, data, "mix", "()V")
	if !bytes.Equal(orig, rewritten) {
		t.Errorf("re-emitted code differs:\n  orig %x\n  new  %x", orig, rewritten)
	}
}

func TestShortFormNormalization(t *testing.T) {
	// aload_0 must come back from the reader as VisitVarInsn(aload, 0).
	data, err := NewBuilder("fix/Short").
		AddMethod(AccPublic, "id", "()Ljava/lang/Object;", func(w *CodeWriter) error {
			w.VisitVarInsn(OpAload, 0)
			w.VisitInsn(OpAreturn)
			return w.VisitMaxs(1, 1)
		}).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	cf, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	m := cf.Method("id", "()Ljava/lang/Object;")
	code, err := cf.ParseCode(m.CodeAttribute())
	if err != nil {
		t.Fatal(err)
	}
	if code.Bytecode[0] != 0x2a { // aload_0
		t.Errorf("first byte = %#x, want aload_0", code.Bytecode[0])
	}

	var sawOp Opcode
	var sawSlot int
	rec := &recorder{onVarInsn: func(op Opcode, slot int) {
		if sawOp == 0 {
			sawOp, sawSlot = op, slot
		}
	}}
	if err := AcceptCode(cf, m, rec); err != nil {
		t.Fatal(err)
	}
	if sawOp != OpAload || sawSlot != 0 {
		t.Errorf("normalized var insn = %s %d, want aload 0", sawOp, sawSlot)
	}
}

func TestBranchOutOfRange(t *testing.T) {
	w := NewCodeWriter(NewConstantPool())
	far := &Label{}
	w.VisitCode()
	w.VisitJumpInsn(OpGoto, far)
	for i := 0; i < 0x8100; i++ {
		w.VisitInsn(OpNop)
	}
	w.VisitLabel(far)
	w.VisitInsn(OpReturn)
	w.VisitMaxs(0, 0)
	w.VisitEnd()
	if _, err := w.Finish(); !errors.Is(err, ErrBranchRange) {
		t.Errorf("Finish = %v, want ErrBranchRange", err)
	}
}

func TestUnboundLabel(t *testing.T) {
	w := NewCodeWriter(NewConstantPool())
	w.VisitCode()
	w.VisitJumpInsn(OpGoto, &Label{})
	w.VisitInsn(OpReturn)
	w.VisitMaxs(0, 0)
	w.VisitEnd()
	if _, err := w.Finish(); err == nil {
		t.Error("Finish should fail on an unbound branch target")
	}
}

func TestLabelBoundTwice(t *testing.T) {
	w := NewCodeWriter(NewConstantPool())
	l := &Label{}
	w.VisitCode()
	if err := w.VisitLabel(l); err != nil {
		t.Fatal(err)
	}
	w.VisitInsn(OpNop)
	if err := w.VisitLabel(l); err == nil {
		t.Error("binding a label twice should fail")
	}
}

func TestMaxLocalsRaisedToTouchedSlots(t *testing.T) {
	w := NewCodeWriter(NewConstantPool())
	w.VisitCode()
	w.VisitInsn(OpLconst0)
	w.VisitVarInsn(OpLstore, 4) // occupies slots 4 and 5
	w.VisitInsn(OpReturn)
	w.VisitMaxs(2, 1)
	w.VisitEnd()
	data, err := w.Finish()
	if err != nil {
		t.Fatal(err)
	}
	if got := int(be16(data, 2)); got != 6 {
		t.Errorf("max_locals = %d, want 6", got)
	}
}

func TestFinishWithoutMaxs(t *testing.T) {
	w := NewCodeWriter(NewConstantPool())
	w.VisitCode()
	w.VisitInsn(OpReturn)
	if _, err := w.Finish(); err == nil {
		t.Error("Finish without VisitMaxs should fail")
	}
}

// recorder is a minimal MethodVisitor for observing reader events in tests.
type recorder struct {
	onVarInsn func(op Opcode, slot int)
	onInsn    func(op Opcode)
	onFrame   func(f Frame)
}

func (r *recorder) VisitCode() error                                          { return nil }
func (r *recorder) VisitTryCatch(_, _, _ *Label, _ string) error              { return nil }
func (r *recorder) VisitLabel(*Label) error                                   { return nil }
func (r *recorder) VisitLineNumber(int, *Label) error                         { return nil }
func (r *recorder) VisitIntInsn(Opcode, int32) error                          { return nil }
func (r *recorder) VisitTypeInsn(Opcode, string) error                        { return nil }
func (r *recorder) VisitFieldInsn(Opcode, string, string, string) error       { return nil }
func (r *recorder) VisitMethodInsn(Opcode, string, string, string, bool) error { return nil }
func (r *recorder) VisitInvokeDynamicInsn(string, string, uint16) error       { return nil }
func (r *recorder) VisitJumpInsn(Opcode, *Label) error                        { return nil }
func (r *recorder) VisitLdcInsn(Constant) error                               { return nil }
func (r *recorder) VisitIincInsn(int, int) error                              { return nil }
func (r *recorder) VisitTableSwitchInsn(int32, int32, *Label, []*Label) error { return nil }
func (r *recorder) VisitLookupSwitchInsn(*Label, []int32, []*Label) error     { return nil }
func (r *recorder) VisitMultiANewArrayInsn(string, int) error                 { return nil }
func (r *recorder) VisitMaxs(int, int) error                                  { return nil }
func (r *recorder) VisitEnd() error                                           { return nil }

func (r *recorder) VisitInsn(op Opcode) error {
	if r.onInsn != nil {
		r.onInsn(op)
	}
	return nil
}

func (r *recorder) VisitVarInsn(op Opcode, slot int) error {
	if r.onVarInsn != nil {
		r.onVarInsn(op, slot)
	}
	return nil
}

func (r *recorder) VisitFrame(f Frame) error {
	if r.onFrame != nil {
		r.onFrame(f)
	}
	return nil
}
