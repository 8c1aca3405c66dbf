package advice

import "github.com/chazu/weft/pkg/classfile"

// role distinguishes the two advice bodies.
type role uint8

const (
	roleEnter role = iota
	roleExit
)

func (r role) String() string {
	if r == roleEnter {
		return "enter"
	}
	return "exit"
}

// layout describes the local-variable layout of a woven method: the
// instrumented method's own slots, then the enter result, then (for the exit
// path) the return value and the throwable. Every frame the engine
// synthesizes and every injected slot number is derived from this one value,
// so the ordering is stated exactly once.
//
//	{receiver+parameters} {enter result} {return value} {throwable}
type layout struct {
	instrumented Method
	enterType    classfile.TypeDesc // Void when no enter advice or void enter
	returnType   classfile.TypeDesc
	exceptional  bool
}

func newLayout(instrumented Method, enterType classfile.TypeDesc, exceptional bool) layout {
	return layout{
		instrumented: instrumented,
		enterType:    enterType,
		returnType:   instrumented.Desc.Return,
		exceptional:  exceptional,
	}
}

func (l layout) enterWidth() int  { return l.enterType.SlotWidth() }
func (l layout) returnWidth() int { return l.returnType.SlotWidth() }

func (l layout) throwableWidth() int {
	if l.exceptional {
		return 1
	}
	return 0
}

// enterSlot is where the enter advice's result is stored.
func (l layout) enterSlot() int { return l.instrumented.SlotWidth() }

// returnSlot is where the return value is parked while the exit advice runs.
func (l layout) returnSlot() int { return l.instrumented.SlotWidth() + l.enterWidth() }

// throwableSlot is where the propagating throwable is parked on the
// exceptional path (and nulled on normal returns).
func (l layout) throwableSlot() int {
	return l.instrumented.SlotWidth() + l.enterWidth() + l.returnWidth()
}

// injectedWidth returns the slot width of everything injected for the given
// role: the enter role only reserves its own result, the exit role sees the
// full parked layout.
func (l layout) injectedWidth(r role) int {
	if r == roleEnter {
		return 0
	}
	return l.enterWidth() + l.returnWidth() + l.throwableWidth()
}

// unboundShift returns the amount added to an unbound advice-local slot so
// the advice's temporaries land past everything already allocated.
func (l layout) unboundShift(r role, adviceSlotWidth int) int {
	return l.instrumented.SlotWidth() - adviceSlotWidth + l.injectedWidth(r)
}

// originalLocals is the instrumented method's own frame prefix.
func (l layout) originalLocals() []classfile.VerificationType {
	return l.instrumented.FrameLocals()
}

// enterLocals is originalLocals plus the enter result, when there is one.
func (l layout) enterLocals() []classfile.VerificationType {
	locals := l.originalLocals()
	if !l.enterType.IsVoid() {
		locals = append(locals, l.enterType.Verification())
	}
	return locals
}

// exitLocals is the full parked layout visible to the exit advice body.
func (l layout) exitLocals() []classfile.VerificationType {
	locals := l.enterLocals()
	if !l.returnType.IsVoid() {
		locals = append(locals, l.returnType.Verification())
	}
	if l.exceptional {
		locals = append(locals, classfile.VTObjectOf("java/lang/Throwable"))
	}
	return locals
}

// roleLocals is the frame local list once the given role's body has
// completed: used at return conversions and the shared end label, where the
// enter result has just been stored.
func (l layout) roleLocals(r role) []classfile.VerificationType {
	if r == roleEnter {
		return l.enterLocals()
	}
	return l.exitLocals()
}

// bodyLocals is the frame local prefix inside the given role's advice body:
// only the locals assigned on every path before the body runs. The enter
// result is stored at the body's return conversions, so mid-body frames (and
// the suppression handler, which may be reached before any store) see just
// the original locals; the exit body runs after everything is parked. Unbound
// advice temporaries land directly after this prefix, matching unboundShift.
func (l layout) bodyLocals(r role) []classfile.VerificationType {
	if r == roleEnter {
		return l.originalLocals()
	}
	return l.exitLocals()
}

// zeroPush emits the zero value of a type category: the default installed by
// a suppression handler and the placeholder return value on the exceptional
// exit path.
func zeroPush(w classfile.MethodVisitor, t classfile.TypeDesc) error {
	switch t.Category {
	case classfile.CatInt:
		return w.VisitInsn(classfile.OpIconst0)
	case classfile.CatFloat:
		return w.VisitInsn(classfile.OpFconst0)
	case classfile.CatLong:
		return w.VisitInsn(classfile.OpLconst0)
	case classfile.CatDouble:
		return w.VisitInsn(classfile.OpDconst0)
	case classfile.CatReference:
		return w.VisitInsn(classfile.OpAconstNull)
	}
	return nil
}

// storeFor returns the store opcode for a non-void type.
func storeFor(t classfile.TypeDesc) classfile.Opcode {
	switch t.Category {
	case classfile.CatFloat:
		return classfile.OpFstore
	case classfile.CatLong:
		return classfile.OpLstore
	case classfile.CatDouble:
		return classfile.OpDstore
	case classfile.CatReference:
		return classfile.OpAstore
	default:
		return classfile.OpIstore
	}
}

// loadFor returns the load opcode for a non-void type.
func loadFor(t classfile.TypeDesc) classfile.Opcode {
	switch t.Category {
	case classfile.CatFloat:
		return classfile.OpFload
	case classfile.CatLong:
		return classfile.OpLload
	case classfile.CatDouble:
		return classfile.OpDload
	case classfile.CatReference:
		return classfile.OpAload
	default:
		return classfile.OpIload
	}
}
