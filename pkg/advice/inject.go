package advice

import (
	"github.com/chazu/weft/pkg/classfile"
)

// injector drives one weave session: a single pass over the instrumented
// method's event stream with the advice bodies appended at entry, at every
// return, and on the exceptional path. It is created per method and
// discarded.
//
// Lifecycle: start (VisitCode: enter advice, open the catch-any region) →
// body (slot shifting, frame splicing, per-return exit injection) → end
// (VisitMaxs: exceptional handler synthesis, size declaration).
type injector struct {
	out      classfile.MethodVisitor
	adviceCF *classfile.ClassFile
	enter    *Dispatcher
	exit     *Dispatcher

	enterTargets map[int]Target
	exitTargets  map[int]Target

	lay         layout
	suppress    string
	exceptional bool // effective: configured and the exit role is active

	// Catch-any bookkeeping. Regions are registered with the writer only at
	// the end of the pass so the instrumented method's own exception table
	// entries keep precedence.
	tryStart     *classfile.Label
	emitted      bool
	regions      []tryRegion
	handlerLabel *classfile.Label

	// Frame tracking, used only when an enter value widens the layout and
	// compressed frames must be re-derived.
	frameState []classfile.VerificationType

	requiredStack int
}

type tryRegion struct {
	start, end *classfile.Label
}

func (in *injector) appendAdvice(r role) error {
	d, targets := in.enter, in.enterTargets
	if r == roleExit {
		d, targets = in.exit, in.exitTargets
	}
	tr := newTranslator(in.out, r, d.method, targets, in.lay, in.suppress)
	if err := classfile.AcceptCode(in.adviceCF, d.info, tr); err != nil {
		return err
	}
	if s := tr.requiredStack(); s > in.requiredStack {
		in.requiredStack = s
	}
	return nil
}

func (in *injector) openRegion() error {
	in.tryStart = &classfile.Label{}
	in.emitted = false
	return in.out.VisitLabel(in.tryStart)
}

// closeRegion ends the open catch-any region. Regions that cover no
// instructions are dropped; the exception table forbids empty ranges.
func (in *injector) closeRegion() error {
	if !in.emitted {
		in.tryStart = nil
		return nil
	}
	end := &classfile.Label{}
	if err := in.out.VisitLabel(end); err != nil {
		return err
	}
	in.regions = append(in.regions, tryRegion{start: in.tryStart, end: end})
	in.tryStart = nil
	return nil
}

func (in *injector) VisitCode() error {
	if err := in.out.VisitCode(); err != nil {
		return err
	}
	in.frameState = in.lay.originalLocals()
	if in.enter.Active() {
		if err := in.appendAdvice(roleEnter); err != nil {
			return err
		}
	}
	if in.exceptional {
		return in.openRegion()
	}
	return nil
}

func (in *injector) VisitTryCatch(start, end, handler *classfile.Label, catchType string) error {
	return in.out.VisitTryCatch(start, end, handler, catchType)
}

func (in *injector) VisitLabel(l *classfile.Label) error {
	return in.out.VisitLabel(l)
}

// VisitFrame rewrites the instrumented method's own frames. They pass
// through with their compact encodings only when nothing disturbs the delta
// chain: no enter value widening the layout and no exit advice injecting full
// frames at return sites. Otherwise the evolving local list is tracked from
// the method's implicit initial frame and every frame is re-derived as a full
// frame, with the enter type spliced in after the receiver and parameters.
func (in *injector) VisitFrame(f classfile.Frame) error {
	if in.lay.enterWidth() == 0 && !in.exit.Active() {
		return in.out.VisitFrame(f)
	}
	switch f.Kind {
	case classfile.FrameFull:
		in.frameState = append([]classfile.VerificationType(nil), f.Locals...)
	case classfile.FrameAppend:
		in.frameState = append(in.frameState, f.Locals...)
	case classfile.FrameChop:
		if f.Chopped > len(in.frameState) {
			return structuralErrf("frame in %s chops %d of %d locals", in.lay.instrumented, f.Chopped, len(in.frameState))
		}
		in.frameState = in.frameState[:len(in.frameState)-f.Chopped]
	}
	paramEntries := len(in.lay.originalLocals())
	if len(in.frameState) < paramEntries {
		return structuralErrf("frame in %s drops method parameters, cannot splice enter value", in.lay.instrumented)
	}
	locals := append([]classfile.VerificationType(nil), in.frameState[:paramEntries]...)
	if in.lay.enterWidth() > 0 {
		locals = append(locals, in.lay.enterType.Verification())
	}
	locals = append(locals, in.frameState[paramEntries:]...)
	var stack []classfile.VerificationType
	if f.Kind == classfile.FrameFull || f.Kind == classfile.FrameSame1 {
		stack = f.Stack
	}
	return in.out.VisitFrame(classfile.FullFrame(locals, stack))
}

func (in *injector) VisitLineNumber(line int, start *classfile.Label) error {
	return in.out.VisitLineNumber(line, start)
}

func (in *injector) VisitInsn(op classfile.Opcode) error {
	in.emitted = true
	if op.IsReturn() && in.exit.Active() {
		return in.injectAtReturn(op)
	}
	return in.out.VisitInsn(op)
}

// injectAtReturn converts a return into store / exit advice / reload so the
// advice observes (and, through a writable binding, replaces) the return
// value. With exceptional handling on, the catch-any region is closed before
// the sequence and reopened after it, so the handler never covers a control
// path that already completed.
func (in *injector) injectAtReturn(op classfile.Opcode) error {
	if in.exceptional {
		if err := in.closeRegion(); err != nil {
			return err
		}
	}
	if op != classfile.OpReturn {
		if err := in.out.VisitVarInsn(classfile.StoreForReturn(op), in.lay.returnSlot()); err != nil {
			return err
		}
	}
	if in.exceptional {
		// The throwable slot reads null on the normal path.
		if err := in.out.VisitInsn(classfile.OpAconstNull); err != nil {
			return err
		}
		if err := in.out.VisitVarInsn(classfile.OpAstore, in.lay.throwableSlot()); err != nil {
			return err
		}
	}
	if err := in.appendAdvice(roleExit); err != nil {
		return err
	}
	if op != classfile.OpReturn {
		if err := in.out.VisitVarInsn(classfile.LoadForReturn(op), in.lay.returnSlot()); err != nil {
			return err
		}
	}
	if err := in.out.VisitInsn(op); err != nil {
		return err
	}
	if in.exceptional {
		return in.openRegion()
	}
	return nil
}

func (in *injector) VisitIntInsn(op classfile.Opcode, operand int32) error {
	in.emitted = true
	return in.out.VisitIntInsn(op, operand)
}

func (in *injector) shifted(slot int) int {
	if slot >= in.lay.instrumented.SlotWidth() {
		return slot + in.lay.enterWidth()
	}
	return slot
}

func (in *injector) VisitVarInsn(op classfile.Opcode, slot int) error {
	in.emitted = true
	return in.out.VisitVarInsn(op, in.shifted(slot))
}

func (in *injector) VisitTypeInsn(op classfile.Opcode, internalName string) error {
	in.emitted = true
	return in.out.VisitTypeInsn(op, internalName)
}

func (in *injector) VisitFieldInsn(op classfile.Opcode, owner, name, descriptor string) error {
	in.emitted = true
	return in.out.VisitFieldInsn(op, owner, name, descriptor)
}

func (in *injector) VisitMethodInsn(op classfile.Opcode, owner, name, descriptor string, iface bool) error {
	in.emitted = true
	return in.out.VisitMethodInsn(op, owner, name, descriptor, iface)
}

func (in *injector) VisitInvokeDynamicInsn(name, descriptor string, bootstrap uint16) error {
	// Same pool on both ends of the pass-through, unlike in advice bodies.
	in.emitted = true
	return in.out.VisitInvokeDynamicInsn(name, descriptor, bootstrap)
}

func (in *injector) VisitJumpInsn(op classfile.Opcode, target *classfile.Label) error {
	in.emitted = true
	return in.out.VisitJumpInsn(op, target)
}

func (in *injector) VisitLdcInsn(c classfile.Constant) error {
	in.emitted = true
	return in.out.VisitLdcInsn(c)
}

func (in *injector) VisitIincInsn(slot, increment int) error {
	in.emitted = true
	return in.out.VisitIincInsn(in.shifted(slot), increment)
}

func (in *injector) VisitTableSwitchInsn(low, high int32, dflt *classfile.Label, targets []*classfile.Label) error {
	in.emitted = true
	return in.out.VisitTableSwitchInsn(low, high, dflt, targets)
}

func (in *injector) VisitLookupSwitchInsn(dflt *classfile.Label, keys []int32, targets []*classfile.Label) error {
	in.emitted = true
	return in.out.VisitLookupSwitchInsn(dflt, keys, targets)
}

func (in *injector) VisitMultiANewArrayInsn(descriptor string, dims int) error {
	in.emitted = true
	return in.out.VisitMultiANewArrayInsn(descriptor, dims)
}

// VisitMaxs closes the pass: the exceptional-path handler is synthesized, the
// deferred catch-any regions are registered, and the declared sizes are
// raised to cover the injected state.
func (in *injector) VisitMaxs(maxStack, maxLocals int) error {
	if in.exceptional {
		if err := in.closeRegion(); err != nil {
			return err
		}
		if err := in.emitHandler(); err != nil {
			return err
		}
		for _, r := range in.regions {
			if err := in.out.VisitTryCatch(r.start, r.end, in.handlerLabel, "java/lang/Throwable"); err != nil {
				return err
			}
		}
	}
	stack := maxStack
	if in.requiredStack > stack {
		stack = in.requiredStack
	}
	if in.exceptional && stack < 2 {
		stack = 2
	}
	return in.out.VisitMaxs(stack, maxLocals+in.lay.enterWidth())
}

func (in *injector) VisitEnd() error {
	return in.out.VisitEnd()
}

// emitHandler synthesizes the exceptional exit path: park the throwable,
// install a placeholder return value, run the exit advice, rethrow. The
// handler frame describes what is definitely assigned on entry — the original
// locals plus the enter result, with a lone throwable on the stack.
func (in *injector) emitHandler() error {
	in.handlerLabel = &classfile.Label{}
	caught := []classfile.VerificationType{classfile.VTObjectOf("java/lang/Throwable")}
	if err := in.out.VisitFrame(classfile.FullFrame(in.lay.enterLocals(), caught)); err != nil {
		return err
	}
	if err := in.out.VisitLabel(in.handlerLabel); err != nil {
		return err
	}
	if err := in.out.VisitVarInsn(classfile.OpAstore, in.lay.throwableSlot()); err != nil {
		return err
	}
	if ret := in.lay.returnType; !ret.IsVoid() {
		if err := zeroPush(in.out, ret); err != nil {
			return err
		}
		if err := in.out.VisitVarInsn(storeFor(ret), in.lay.returnSlot()); err != nil {
			return err
		}
	}
	if err := in.appendAdvice(roleExit); err != nil {
		return err
	}
	if err := in.out.VisitVarInsn(classfile.OpAload, in.lay.throwableSlot()); err != nil {
		return err
	}
	if err := in.out.VisitFrame(classfile.FullFrame(in.lay.exitLocals(), caught)); err != nil {
		return err
	}
	return in.out.VisitInsn(classfile.OpAthrow)
}
