package advice

import (
	"github.com/chazu/weft/pkg/classfile"
)

// translator rewrites one advice method body as it is inlined into the
// instrumented method's stream. A fresh translator is created per inlining
// site; labels from the advice body are fresh per read pass, so repeated
// inlining of the exit body never aliases.
//
// The advice body's own frames are expanded against the advice method's
// implicit initial frame and re-emitted as full frames with the instrumented
// layout substituted for the advice parameters. Working on expanded frames
// sidesteps every delta-rebasing hazard of splicing compressed frames into a
// foreign method.
type translator struct {
	out     classfile.MethodVisitor
	r       role
	advice  Method
	targets map[int]Target
	lay     layout
	end     *classfile.Label

	suppress string // internal name of the suppressed throwable, "" = none
	tryStart *classfile.Label

	current       []classfile.VerificationType // advice-local frame state
	declaredStack int
}

func newTranslator(out classfile.MethodVisitor, r role, advice Method, targets map[int]Target, lay layout, suppress string) *translator {
	return &translator{
		out:      out,
		r:        r,
		advice:   advice,
		targets:  targets,
		lay:      lay,
		end:      &classfile.Label{},
		suppress: suppress,
		current:  advice.FrameLocals(),
	}
}

// requiredStack returns the operand stack depth the inlined body needs: the
// advice's own declaration, with headroom for the suppression handler's
// caught throwable and default value.
func (t *translator) requiredStack() int {
	s := t.declaredStack
	if t.suppress != "" && s < 2 {
		s = 2
	}
	return s
}

func (t *translator) VisitCode() error {
	if t.suppress == "" {
		return nil
	}
	t.tryStart = &classfile.Label{}
	return t.out.VisitLabel(t.tryStart)
}

func (t *translator) VisitTryCatch(start, end, handler *classfile.Label, catchType string) error {
	return t.out.VisitTryCatch(start, end, handler, catchType)
}

func (t *translator) VisitLabel(l *classfile.Label) error {
	return t.out.VisitLabel(l)
}

func (t *translator) VisitFrame(f classfile.Frame) error {
	// Expand the delta against the advice method's own frame state.
	switch f.Kind {
	case classfile.FrameFull:
		t.current = append([]classfile.VerificationType(nil), f.Locals...)
	case classfile.FrameAppend:
		t.current = append(t.current, f.Locals...)
	case classfile.FrameChop:
		if f.Chopped > len(t.current) {
			return structuralErrf("%s advice frame chops %d of %d locals", t.r, f.Chopped, len(t.current))
		}
		t.current = t.current[:len(t.current)-f.Chopped]
	}
	paramEntries := len(t.advice.FrameLocals())
	if len(t.current) < paramEntries {
		return structuralErrf("%s advice frame drops its own parameters", t.r)
	}
	// The prefix is only what the body has assigned so far: the enter result
	// does not exist mid-body, and temporaries sit directly after the prefix.
	locals := append([]classfile.VerificationType(nil), t.lay.bodyLocals(t.r)...)
	locals = append(locals, t.current[paramEntries:]...)
	var stack []classfile.VerificationType
	switch f.Kind {
	case classfile.FrameFull:
		stack = f.Stack
	case classfile.FrameSame1:
		stack = f.Stack
	}
	return t.out.VisitFrame(classfile.FullFrame(locals, stack))
}

func (t *translator) VisitLineNumber(line int, start *classfile.Label) error {
	// Line numbers have no meaning once inlined.
	return nil
}

func (t *translator) VisitInsn(op classfile.Opcode) error {
	if !op.IsReturn() {
		return t.out.VisitInsn(op)
	}
	switch {
	case t.r == roleEnter && op != classfile.OpReturn:
		if err := t.out.VisitVarInsn(classfile.StoreForReturn(op), t.lay.enterSlot()); err != nil {
			return err
		}
	case t.r == roleExit && op != classfile.OpReturn:
		// The exit advice's return value has no observable effect.
		pop := classfile.OpPop
		if op == classfile.OpLreturn || op == classfile.OpDreturn {
			pop = classfile.OpPop2
		}
		if err := t.out.VisitInsn(pop); err != nil {
			return err
		}
	}
	if err := t.out.VisitFrame(classfile.FullFrame(t.lay.roleLocals(t.r), nil)); err != nil {
		return err
	}
	return t.out.VisitJumpInsn(classfile.OpGoto, t.end)
}

func (t *translator) VisitIntInsn(op classfile.Opcode, operand int32) error {
	return t.out.VisitIntInsn(op, operand)
}

func (t *translator) VisitVarInsn(op classfile.Opcode, slot int) error {
	if target, ok := t.targets[slot]; ok {
		return target.Apply(t.out, op)
	}
	return t.out.VisitVarInsn(op, slot+t.lay.unboundShift(t.r, t.advice.SlotWidth()))
}

func (t *translator) VisitTypeInsn(op classfile.Opcode, internalName string) error {
	return t.out.VisitTypeInsn(op, internalName)
}

func (t *translator) VisitFieldInsn(op classfile.Opcode, owner, name, descriptor string) error {
	return t.out.VisitFieldInsn(op, owner, name, descriptor)
}

func (t *translator) VisitMethodInsn(op classfile.Opcode, owner, name, descriptor string, iface bool) error {
	return t.out.VisitMethodInsn(op, owner, name, descriptor, iface)
}

func (t *translator) VisitInvokeDynamicInsn(name, descriptor string, bootstrap uint16) error {
	// The bootstrap method table stays behind in the advice class.
	return structuralErrf("%s advice %s uses invokedynamic, which cannot be inlined across classes", t.r, t.advice)
}

func (t *translator) VisitJumpInsn(op classfile.Opcode, target *classfile.Label) error {
	return t.out.VisitJumpInsn(op, target)
}

func (t *translator) VisitLdcInsn(c classfile.Constant) error {
	if _, ok := c.(classfile.ConstRaw); ok {
		return structuralErrf("%s advice %s loads a constant bound to its own class's pool", t.r, t.advice)
	}
	return t.out.VisitLdcInsn(c)
}

func (t *translator) VisitIincInsn(slot, increment int) error {
	if target, ok := t.targets[slot]; ok {
		return target.ApplyIinc(t.out, increment)
	}
	return t.out.VisitIincInsn(slot+t.lay.unboundShift(t.r, t.advice.SlotWidth()), increment)
}

func (t *translator) VisitTableSwitchInsn(low, high int32, dflt *classfile.Label, targets []*classfile.Label) error {
	return t.out.VisitTableSwitchInsn(low, high, dflt, targets)
}

func (t *translator) VisitLookupSwitchInsn(dflt *classfile.Label, keys []int32, targets []*classfile.Label) error {
	return t.out.VisitLookupSwitchInsn(dflt, keys, targets)
}

func (t *translator) VisitMultiANewArrayInsn(descriptor string, dims int) error {
	return t.out.VisitMultiANewArrayInsn(descriptor, dims)
}

func (t *translator) VisitMaxs(maxStack, maxLocals int) error {
	t.declaredStack = maxStack
	return nil
}

// VisitEnd closes the inlined body: the suppression handler when configured,
// the end-of-body frame and the shared end label.
func (t *translator) VisitEnd() error {
	if t.suppress != "" {
		tryEnd := &classfile.Label{}
		handler := &classfile.Label{}
		if err := t.out.VisitLabel(tryEnd); err != nil {
			return err
		}
		caught := []classfile.VerificationType{classfile.VTObjectOf(t.suppress)}
		if err := t.out.VisitFrame(classfile.FullFrame(t.lay.bodyLocals(t.r), caught)); err != nil {
			return err
		}
		if err := t.out.VisitLabel(handler); err != nil {
			return err
		}
		if err := t.out.VisitInsn(classfile.OpPop); err != nil {
			return err
		}
		if t.r == roleEnter && !t.lay.enterType.IsVoid() {
			if err := zeroPush(t.out, t.lay.enterType); err != nil {
				return err
			}
			if err := t.out.VisitVarInsn(storeFor(t.lay.enterType), t.lay.enterSlot()); err != nil {
				return err
			}
		}
		if err := t.out.VisitTryCatch(t.tryStart, tryEnd, handler, t.suppress); err != nil {
			return err
		}
	}
	if err := t.out.VisitFrame(classfile.FullFrame(t.lay.roleLocals(t.r), nil)); err != nil {
		return err
	}
	return t.out.VisitLabel(t.end)
}
