package classfile

// Label marks a position in a method's code. Labels are resolved to byte
// offsets by the code writer when the position is visited; the code reader
// hands out pre-resolved labels for existing code. Label identity is pointer
// identity: a label created for one writing pass must not be reused in
// another.
type Label struct {
	offset   int
	resolved bool
}

// Resolved reports whether the label has been bound to a code offset.
func (l *Label) Resolved() bool { return l.resolved }

// Offset returns the label's code offset. It is only meaningful once the
// label is resolved.
func (l *Label) Offset() int { return l.offset }

// ---------------------------------------------------------------------------
// Ldc constants
// ---------------------------------------------------------------------------

// Constant is a loadable constant as seen by VisitLdcInsn. Concrete types are
// ConstInt, ConstFloat, ConstLong, ConstDouble, ConstString, ConstClass and
// ConstRaw.
type Constant interface {
	isConstant()
}

// ConstInt is an Integer constant.
type ConstInt int32

// ConstFloat is a Float constant.
type ConstFloat float32

// ConstLong is a Long constant.
type ConstLong int64

// ConstDouble is a Double constant.
type ConstDouble float64

// ConstString is a String constant.
type ConstString string

// ConstClass is a Class constant, holding the internal name.
type ConstClass string

// ConstRaw is a constant the reader does not model symbolically (method
// handles, method types, dynamic constants). It is only valid when re-emitted
// against the same constant pool it was read from.
type ConstRaw struct {
	Index uint16
}

func (ConstInt) isConstant()    {}
func (ConstFloat) isConstant()  {}
func (ConstLong) isConstant()   {}
func (ConstDouble) isConstant() {}
func (ConstString) isConstant() {}
func (ConstClass) isConstant()  {}
func (ConstRaw) isConstant()    {}

// Width returns the number of stack slots the constant occupies.
func ConstantWidth(c Constant) int {
	switch c.(type) {
	case ConstLong, ConstDouble:
		return 2
	}
	return 1
}

// ---------------------------------------------------------------------------
// Method visitor
// ---------------------------------------------------------------------------

// MethodVisitor receives one method's code as an ordered event stream. Events
// arrive in the order VisitCode, [VisitTryCatch...], then interleaved labels,
// frames, line numbers and instructions in code order, then VisitMaxs and
// VisitEnd. Every method returns an error; a non-nil error aborts the
// producing pass immediately.
type MethodVisitor interface {
	// VisitCode opens the code stream.
	VisitCode() error

	// VisitTryCatch declares an exception table entry. catchType is the
	// internal name of the caught type, or "" to catch anything. The order of
	// VisitTryCatch calls is the order of the resulting exception table.
	VisitTryCatch(start, end, handler *Label, catchType string) error

	// VisitLabel marks the current code position.
	VisitLabel(l *Label) error

	// VisitFrame declares a verification frame at the current code position.
	VisitFrame(f Frame) error

	// VisitLineNumber attaches a source line to the given position.
	VisitLineNumber(line int, start *Label) error

	// VisitInsn emits a zero-operand instruction.
	VisitInsn(op Opcode) error

	// VisitIntInsn emits bipush, sipush or newarray.
	VisitIntInsn(op Opcode, operand int32) error

	// VisitVarInsn emits a local variable load, store or ret in base form.
	VisitVarInsn(op Opcode, slot int) error

	// VisitTypeInsn emits new, anewarray, checkcast or instanceof with the
	// internal name of the referenced type.
	VisitTypeInsn(op Opcode, internalName string) error

	// VisitFieldInsn emits a field access.
	VisitFieldInsn(op Opcode, owner, name, descriptor string) error

	// VisitMethodInsn emits a method invocation. iface marks interface
	// method references.
	VisitMethodInsn(op Opcode, owner, name, descriptor string, iface bool) error

	// VisitInvokeDynamicInsn emits an invokedynamic referencing an entry of
	// the enclosing class's BootstrapMethods attribute.
	VisitInvokeDynamicInsn(name, descriptor string, bootstrap uint16) error

	// VisitJumpInsn emits a branch to a label.
	VisitJumpInsn(op Opcode, target *Label) error

	// VisitLdcInsn emits a constant load.
	VisitLdcInsn(c Constant) error

	// VisitIincInsn emits an integer increment of a local slot.
	VisitIincInsn(slot, increment int) error

	// VisitTableSwitchInsn emits a tableswitch.
	VisitTableSwitchInsn(low, high int32, dflt *Label, targets []*Label) error

	// VisitLookupSwitchInsn emits a lookupswitch.
	VisitLookupSwitchInsn(dflt *Label, keys []int32, targets []*Label) error

	// VisitMultiANewArrayInsn emits a multianewarray for the array type
	// descriptor and dimension count.
	VisitMultiANewArrayInsn(descriptor string, dims int) error

	// VisitMaxs declares the method's max stack and max locals.
	VisitMaxs(maxStack, maxLocals int) error

	// VisitEnd closes the code stream.
	VisitEnd() error
}

// Forwarder is a MethodVisitor that forwards every event to Next. Visitors
// that rewrite a subset of events embed a Forwarder and override the rest.
type Forwarder struct {
	Next MethodVisitor
}

func (f Forwarder) VisitCode() error { return f.Next.VisitCode() }

func (f Forwarder) VisitTryCatch(start, end, handler *Label, catchType string) error {
	return f.Next.VisitTryCatch(start, end, handler, catchType)
}

func (f Forwarder) VisitLabel(l *Label) error { return f.Next.VisitLabel(l) }

func (f Forwarder) VisitFrame(fr Frame) error { return f.Next.VisitFrame(fr) }

func (f Forwarder) VisitLineNumber(line int, start *Label) error {
	return f.Next.VisitLineNumber(line, start)
}

func (f Forwarder) VisitInsn(op Opcode) error { return f.Next.VisitInsn(op) }

func (f Forwarder) VisitIntInsn(op Opcode, operand int32) error {
	return f.Next.VisitIntInsn(op, operand)
}

func (f Forwarder) VisitVarInsn(op Opcode, slot int) error {
	return f.Next.VisitVarInsn(op, slot)
}

func (f Forwarder) VisitTypeInsn(op Opcode, internalName string) error {
	return f.Next.VisitTypeInsn(op, internalName)
}

func (f Forwarder) VisitFieldInsn(op Opcode, owner, name, descriptor string) error {
	return f.Next.VisitFieldInsn(op, owner, name, descriptor)
}

func (f Forwarder) VisitMethodInsn(op Opcode, owner, name, descriptor string, iface bool) error {
	return f.Next.VisitMethodInsn(op, owner, name, descriptor, iface)
}

func (f Forwarder) VisitInvokeDynamicInsn(name, descriptor string, bootstrap uint16) error {
	return f.Next.VisitInvokeDynamicInsn(name, descriptor, bootstrap)
}

func (f Forwarder) VisitJumpInsn(op Opcode, target *Label) error {
	return f.Next.VisitJumpInsn(op, target)
}

func (f Forwarder) VisitLdcInsn(c Constant) error { return f.Next.VisitLdcInsn(c) }

func (f Forwarder) VisitIincInsn(slot, increment int) error {
	return f.Next.VisitIincInsn(slot, increment)
}

func (f Forwarder) VisitTableSwitchInsn(low, high int32, dflt *Label, targets []*Label) error {
	return f.Next.VisitTableSwitchInsn(low, high, dflt, targets)
}

func (f Forwarder) VisitLookupSwitchInsn(dflt *Label, keys []int32, targets []*Label) error {
	return f.Next.VisitLookupSwitchInsn(dflt, keys, targets)
}

func (f Forwarder) VisitMultiANewArrayInsn(descriptor string, dims int) error {
	return f.Next.VisitMultiANewArrayInsn(descriptor, dims)
}

func (f Forwarder) VisitMaxs(maxStack, maxLocals int) error {
	return f.Next.VisitMaxs(maxStack, maxLocals)
}

func (f Forwarder) VisitEnd() error { return f.Next.VisitEnd() }
