package classfile

import (
	"fmt"
	"io"
	"strings"
)

// Disassemble writes a human-readable listing of the class to w. The listing
// is meant for inspecting weave results, not for reassembly.
func Disassemble(cf *ClassFile, w io.Writer) error {
	fmt.Fprintf(w, "class %s", cf.ThisClass)
	if cf.SuperClass != "" {
		fmt.Fprintf(w, " extends %s", cf.SuperClass)
	}
	if len(cf.Interfaces) > 0 {
		fmt.Fprintf(w, " implements %s", strings.Join(cf.Interfaces, ", "))
	}
	fmt.Fprintf(w, "  // version %d.%d, flags 0x%04x\n", cf.MajorVersion, cf.MinorVersion, cf.AccessFlags)

	for i := range cf.Fields {
		f := &cf.Fields[i]
		fmt.Fprintf(w, "\nfield %s %s  // flags 0x%04x\n", f.Name, f.Descriptor, f.AccessFlags)
	}

	for _, m := range cf.Methods {
		fmt.Fprintf(w, "\nmethod %s%s  // flags 0x%04x\n", m.Name, m.Descriptor, m.AccessFlags)
		if !m.HasCode() {
			continue
		}
		l := &lister{w: w, labels: make(map[*Label]int)}
		if err := AcceptCode(cf, m, l); err != nil {
			return err
		}
	}
	return nil
}

// lister prints one method's code events as an indented listing.
type lister struct {
	w      io.Writer
	labels map[*Label]int
	err    error
}

func (l *lister) name(lb *Label) string {
	n, ok := l.labels[lb]
	if !ok {
		n = len(l.labels)
		l.labels[lb] = n
	}
	return fmt.Sprintf("L%d", n)
}

func (l *lister) printf(format string, args ...interface{}) error {
	if l.err == nil {
		_, l.err = fmt.Fprintf(l.w, format, args...)
	}
	return l.err
}

func (l *lister) VisitCode() error { return l.err }

func (l *lister) VisitTryCatch(start, end, handler *Label, catchType string) error {
	if catchType == "" {
		catchType = "<any>"
	}
	return l.printf("  try %s..%s handler %s catch %s\n", l.name(start), l.name(end), l.name(handler), catchType)
}

func (l *lister) VisitLabel(lb *Label) error {
	return l.printf("%s:\n", l.name(lb))
}

func (l *lister) VisitFrame(f Frame) error {
	switch f.Kind {
	case FrameFull:
		return l.printf("  // frame full locals=%v stack=%v\n", f.Locals, f.Stack)
	case FrameSame1:
		return l.printf("  // frame same1 stack=[%s]\n", f.Stack[0])
	case FrameAppend:
		return l.printf("  // frame append %v\n", f.Locals)
	case FrameChop:
		return l.printf("  // frame chop %d\n", f.Chopped)
	default:
		return l.printf("  // frame same\n")
	}
}

func (l *lister) VisitLineNumber(line int, start *Label) error {
	return l.printf("  // line %d\n", line)
}

func (l *lister) VisitInsn(op Opcode) error {
	return l.printf("    %s\n", op)
}

func (l *lister) VisitIntInsn(op Opcode, operand int32) error {
	return l.printf("    %s %d\n", op, operand)
}

func (l *lister) VisitVarInsn(op Opcode, slot int) error {
	return l.printf("    %s %d\n", op, slot)
}

func (l *lister) VisitTypeInsn(op Opcode, internalName string) error {
	return l.printf("    %s %s\n", op, internalName)
}

func (l *lister) VisitFieldInsn(op Opcode, owner, name, descriptor string) error {
	return l.printf("    %s %s.%s %s\n", op, owner, name, descriptor)
}

func (l *lister) VisitMethodInsn(op Opcode, owner, name, descriptor string, iface bool) error {
	return l.printf("    %s %s.%s%s\n", op, owner, name, descriptor)
}

func (l *lister) VisitInvokeDynamicInsn(name, descriptor string, bootstrap uint16) error {
	return l.printf("    invokedynamic %s%s bootstrap=%d\n", name, descriptor, bootstrap)
}

func (l *lister) VisitJumpInsn(op Opcode, target *Label) error {
	return l.printf("    %s %s\n", op, l.name(target))
}

func (l *lister) VisitLdcInsn(c Constant) error {
	switch v := c.(type) {
	case ConstString:
		return l.printf("    ldc %q\n", string(v))
	case ConstClass:
		return l.printf("    ldc class %s\n", string(v))
	case ConstRaw:
		return l.printf("    ldc #%d\n", v.Index)
	default:
		return l.printf("    ldc %v\n", c)
	}
}

func (l *lister) VisitIincInsn(slot, increment int) error {
	return l.printf("    iinc %d %+d\n", slot, increment)
}

func (l *lister) VisitTableSwitchInsn(low, high int32, dflt *Label, targets []*Label) error {
	if err := l.printf("    tableswitch %d..%d default=%s\n", low, high, l.name(dflt)); err != nil {
		return err
	}
	for i, t := range targets {
		if err := l.printf("      %d: %s\n", low+int32(i), l.name(t)); err != nil {
			return err
		}
	}
	return nil
}

func (l *lister) VisitLookupSwitchInsn(dflt *Label, keys []int32, targets []*Label) error {
	if err := l.printf("    lookupswitch default=%s\n", l.name(dflt)); err != nil {
		return err
	}
	for i, k := range keys {
		if err := l.printf("      %d: %s\n", k, l.name(targets[i])); err != nil {
			return err
		}
	}
	return nil
}

func (l *lister) VisitMultiANewArrayInsn(descriptor string, dims int) error {
	return l.printf("    multianewarray %s %d\n", descriptor, dims)
}

func (l *lister) VisitMaxs(maxStack, maxLocals int) error {
	return l.printf("  // stack=%d locals=%d\n", maxStack, maxLocals)
}

func (l *lister) VisitEnd() error { return l.err }
