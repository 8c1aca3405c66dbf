package classfile

import (
	"fmt"
	"sort"
)

// AcceptCode replays a method's Code attribute as events on v. Short
// instruction forms are normalized: iload_2 arrives as VisitVarInsn(OpIload,
// 2), wide-prefixed instructions arrive as their base form, goto_w as
// VisitJumpInsn(OpGoto, ...). The writer re-compacts on the way out, so a
// plain read-write pass round-trips semantics rather than bytes.
func AcceptCode(cf *ClassFile, m *MethodInfo, v MethodVisitor) error {
	raw := m.CodeAttribute()
	if raw == nil {
		return fmt.Errorf("%w: method %s%s has no code", ErrCorruptClass, m.Name, m.Descriptor)
	}
	code, err := cf.ParseCode(raw)
	if err != nil {
		return fmt.Errorf("method %s%s: %w", m.Name, m.Descriptor, err)
	}
	cr := &codeReader{cf: cf, code: code, labels: make(map[int]*Label)}
	if err := cr.prepare(); err != nil {
		return fmt.Errorf("method %s%s: %w", m.Name, m.Descriptor, err)
	}
	if err := cr.accept(v); err != nil {
		return err
	}
	return nil
}

type codeReader struct {
	cf     *ClassFile
	code   *Code
	labels map[int]*Label
	frames map[int]Frame
	lines  []lineEntry
}

type lineEntry struct {
	pc   int
	line int
}

func (cr *codeReader) label(offset int) *Label {
	if l, ok := cr.labels[offset]; ok {
		return l
	}
	l := &Label{offset: offset, resolved: true}
	cr.labels[offset] = l
	return l
}

// prepare scans the bytecode for branch targets, resolves the StackMapTable
// and LineNumberTable, and registers a label for every referenced offset.
func (cr *codeReader) prepare() error {
	b := cr.code.Bytecode
	for pc := 0; pc < len(b); {
		op := Opcode(b[pc])
		size, err := instructionSize(b, pc)
		if err != nil {
			return err
		}
		switch op {
		case OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle,
			OpIfIcmpeq, OpIfIcmpne, OpIfIcmplt, OpIfIcmpge, OpIfIcmpgt, OpIfIcmple,
			OpIfAcmpeq, OpIfAcmpne, OpGoto, OpJsr, OpIfnull, OpIfnonnull:
			cr.label(pc + int(int16(be16(b, pc+1))))
		case OpGotoW, OpJsrW:
			cr.label(pc + int(int32(be32(b, pc+1))))
		case OpTableswitch:
			base := alignPad(pc)
			cr.label(pc + int(int32(be32(b, base))))
			low := int32(be32(b, base+4))
			high := int32(be32(b, base+8))
			for i := 0; i <= int(high-low); i++ {
				cr.label(pc + int(int32(be32(b, base+12+4*i))))
			}
		case OpLookupswitch:
			base := alignPad(pc)
			cr.label(pc + int(int32(be32(b, base))))
			pairs := int(int32(be32(b, base+4)))
			for i := 0; i < pairs; i++ {
				cr.label(pc + int(int32(be32(b, base+8+8*i+4))))
			}
		}
		pc += size
	}
	for _, e := range cr.code.ExceptionTable {
		cr.label(e.StartPC)
		cr.label(e.EndPC)
		cr.label(e.HandlerPC)
	}
	if err := cr.parseStackMapTable(); err != nil {
		return err
	}
	cr.parseLineNumbers()
	return nil
}

func (cr *codeReader) parseStackMapTable() error {
	data := findAttribute(cr.code.Attributes, "StackMapTable")
	cr.frames = make(map[int]Frame)
	if data == nil {
		return nil
	}
	r := &byteReader{data: data}
	count := int(r.u2())
	offset := -1
	for i := 0; i < count; i++ {
		ft := int(r.u1())
		var delta int
		var f Frame
		switch {
		case ft <= 63:
			delta = ft
			f = Frame{Kind: FrameSame}
		case ft <= 127:
			delta = ft - 64
			vt, err := cr.parseVerificationType(r)
			if err != nil {
				return err
			}
			f = Frame{Kind: FrameSame1, Stack: []VerificationType{vt}}
		case ft == 247:
			delta = int(r.u2())
			vt, err := cr.parseVerificationType(r)
			if err != nil {
				return err
			}
			f = Frame{Kind: FrameSame1, Stack: []VerificationType{vt}}
		case ft >= 248 && ft <= 250:
			delta = int(r.u2())
			f = Frame{Kind: FrameChop, Chopped: 251 - ft}
		case ft == 251:
			delta = int(r.u2())
			f = Frame{Kind: FrameSame}
		case ft >= 252 && ft <= 254:
			delta = int(r.u2())
			locals := make([]VerificationType, 0, ft-251)
			for j := 0; j < ft-251; j++ {
				vt, err := cr.parseVerificationType(r)
				if err != nil {
					return err
				}
				locals = append(locals, vt)
			}
			f = Frame{Kind: FrameAppend, Locals: locals}
		case ft == 255:
			delta = int(r.u2())
			nLocals := int(r.u2())
			locals := make([]VerificationType, 0, nLocals)
			for j := 0; j < nLocals; j++ {
				vt, err := cr.parseVerificationType(r)
				if err != nil {
					return err
				}
				locals = append(locals, vt)
			}
			nStack := int(r.u2())
			stack := make([]VerificationType, 0, nStack)
			for j := 0; j < nStack; j++ {
				vt, err := cr.parseVerificationType(r)
				if err != nil {
					return err
				}
				stack = append(stack, vt)
			}
			f = FullFrame(locals, stack)
		default:
			return fmt.Errorf("%w: reserved frame type %d", ErrCorruptClass, ft)
		}
		if offset < 0 {
			offset = delta
		} else {
			offset += delta + 1
		}
		if err := r.Err(); err != nil {
			return fmt.Errorf("%w: StackMapTable: %v", ErrCorruptClass, err)
		}
		cr.frames[offset] = f
		cr.label(offset)
	}
	return nil
}

func (cr *codeReader) parseVerificationType(r *byteReader) (VerificationType, error) {
	tag := VerificationTag(r.u1())
	switch tag {
	case VTTop, VTInteger, VTFloat, VTDouble, VTLong, VTNull, VTUninitializedThis:
		return VerificationType{Tag: tag}, r.Err()
	case VTObject:
		name, err := cr.cf.Pool.ClassName(r.u2())
		if err != nil {
			return VerificationType{}, fmt.Errorf("%w: StackMapTable: %v", ErrCorruptClass, err)
		}
		return VerificationType{Tag: VTObject, ClassName: name}, r.Err()
	case VTUninitialized:
		return VerificationType{Tag: VTUninitialized, NewSite: cr.label(int(r.u2()))}, r.Err()
	}
	return VerificationType{}, fmt.Errorf("%w: verification tag %d", ErrCorruptClass, tag)
}

func (cr *codeReader) parseLineNumbers() {
	data := findAttribute(cr.code.Attributes, "LineNumberTable")
	if data == nil {
		return
	}
	r := &byteReader{data: data}
	count := int(r.u2())
	for i := 0; i < count && r.Err() == nil; i++ {
		pc := int(r.u2())
		line := int(r.u2())
		if r.Err() == nil {
			cr.lines = append(cr.lines, lineEntry{pc: pc, line: line})
			cr.label(pc)
		}
	}
	sort.SliceStable(cr.lines, func(i, j int) bool { return cr.lines[i].pc < cr.lines[j].pc })
}

func (cr *codeReader) accept(v MethodVisitor) error {
	if err := v.VisitCode(); err != nil {
		return err
	}
	for _, e := range cr.code.ExceptionTable {
		err := v.VisitTryCatch(cr.labels[e.StartPC], cr.labels[e.EndPC], cr.labels[e.HandlerPC], e.CatchType)
		if err != nil {
			return err
		}
	}
	b := cr.code.Bytecode
	nextLine := 0
	for pc := 0; pc < len(b); {
		if err := cr.emitMarkers(v, pc, &nextLine); err != nil {
			return err
		}
		size, err := instructionSize(b, pc)
		if err != nil {
			return err
		}
		if err := cr.emitInstruction(v, pc); err != nil {
			return err
		}
		pc += size
	}
	// An exception range may end at the code length.
	if err := cr.emitMarkers(v, len(b), &nextLine); err != nil {
		return err
	}
	if err := v.VisitMaxs(cr.code.MaxStack, cr.code.MaxLocals); err != nil {
		return err
	}
	return v.VisitEnd()
}

func (cr *codeReader) emitMarkers(v MethodVisitor, pc int, nextLine *int) error {
	if l, ok := cr.labels[pc]; ok {
		if err := v.VisitLabel(l); err != nil {
			return err
		}
	}
	if f, ok := cr.frames[pc]; ok {
		if err := v.VisitFrame(f); err != nil {
			return err
		}
	}
	for *nextLine < len(cr.lines) && cr.lines[*nextLine].pc == pc {
		if err := v.VisitLineNumber(cr.lines[*nextLine].line, cr.labels[pc]); err != nil {
			return err
		}
		*nextLine++
	}
	return nil
}

func (cr *codeReader) emitInstruction(v MethodVisitor, pc int) error {
	b := cr.code.Bytecode
	pool := cr.cf.Pool
	op := Opcode(b[pc])
	switch {
	case op >= 0x1a && op <= 0x2d: // iload_0 .. aload_3
		return v.VisitVarInsn(OpIload+Opcode(op-0x1a)/4, int(op-0x1a)%4)
	case op >= 0x3b && op <= 0x4e: // istore_0 .. astore_3
		return v.VisitVarInsn(OpIstore+Opcode(op-0x3b)/4, int(op-0x3b)%4)
	case op.IsLoad() || op.IsStore() || op == OpRet:
		return v.VisitVarInsn(op, int(b[pc+1]))
	}
	switch op {
	case OpBipush:
		return v.VisitIntInsn(op, int32(int8(b[pc+1])))
	case OpSipush:
		return v.VisitIntInsn(op, int32(int16(be16(b, pc+1))))
	case OpNewarray:
		return v.VisitIntInsn(op, int32(b[pc+1]))
	case OpLdc:
		c, err := pool.Loadable(uint16(b[pc+1]))
		if err != nil {
			return err
		}
		return v.VisitLdcInsn(c)
	case OpLdcW, OpLdc2W:
		c, err := pool.Loadable(be16(b, pc+1))
		if err != nil {
			return err
		}
		return v.VisitLdcInsn(c)
	case OpIinc:
		return v.VisitIincInsn(int(b[pc+1]), int(int8(b[pc+2])))
	case OpWide:
		wop := Opcode(b[pc+1])
		if wop == OpIinc {
			return v.VisitIincInsn(int(be16(b, pc+2)), int(int16(be16(b, pc+4))))
		}
		return v.VisitVarInsn(wop, int(be16(b, pc+2)))
	case OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle,
		OpIfIcmpeq, OpIfIcmpne, OpIfIcmplt, OpIfIcmpge, OpIfIcmpgt, OpIfIcmple,
		OpIfAcmpeq, OpIfAcmpne, OpGoto, OpJsr, OpIfnull, OpIfnonnull:
		return v.VisitJumpInsn(op, cr.labels[pc+int(int16(be16(b, pc+1)))])
	case OpGotoW:
		return v.VisitJumpInsn(OpGoto, cr.labels[pc+int(int32(be32(b, pc+1)))])
	case OpJsrW:
		return v.VisitJumpInsn(OpJsr, cr.labels[pc+int(int32(be32(b, pc+1)))])
	case OpTableswitch:
		base := alignPad(pc)
		dflt := cr.labels[pc+int(int32(be32(b, base)))]
		low := int32(be32(b, base+4))
		high := int32(be32(b, base+8))
		targets := make([]*Label, 0, high-low+1)
		for i := 0; i <= int(high-low); i++ {
			targets = append(targets, cr.labels[pc+int(int32(be32(b, base+12+4*i)))])
		}
		return v.VisitTableSwitchInsn(low, high, dflt, targets)
	case OpLookupswitch:
		base := alignPad(pc)
		dflt := cr.labels[pc+int(int32(be32(b, base)))]
		pairs := int(int32(be32(b, base+4)))
		keys := make([]int32, 0, pairs)
		targets := make([]*Label, 0, pairs)
		for i := 0; i < pairs; i++ {
			keys = append(keys, int32(be32(b, base+8+8*i)))
			targets = append(targets, cr.labels[pc+int(int32(be32(b, base+8+8*i+4)))])
		}
		return v.VisitLookupSwitchInsn(dflt, keys, targets)
	case OpGetstatic, OpPutstatic, OpGetfield, OpPutfield:
		owner, name, desc, err := pool.Ref(be16(b, pc+1))
		if err != nil {
			return err
		}
		return v.VisitFieldInsn(op, owner, name, desc)
	case OpInvokevirtual, OpInvokespecial, OpInvokestatic, OpInvokeinterface:
		idx := be16(b, pc+1)
		owner, name, desc, err := pool.Ref(idx)
		if err != nil {
			return err
		}
		e, err := pool.entry(idx)
		if err != nil {
			return err
		}
		return v.VisitMethodInsn(op, owner, name, desc, e.tag == tagInterfaceMethodref)
	case OpInvokedynamic:
		e, err := pool.tagged(be16(b, pc+1), tagInvokeDynamic)
		if err != nil {
			return err
		}
		name, desc, err := pool.NameAndType(e.ref2)
		if err != nil {
			return err
		}
		return v.VisitInvokeDynamicInsn(name, desc, e.ref1)
	case OpNew, OpAnewarray, OpCheckcast, OpInstanceof:
		name, err := pool.ClassName(be16(b, pc+1))
		if err != nil {
			return err
		}
		return v.VisitTypeInsn(op, name)
	case OpMultianewarray:
		name, err := pool.ClassName(be16(b, pc+1))
		if err != nil {
			return err
		}
		return v.VisitMultiANewArrayInsn(name, int(b[pc+3]))
	}
	return v.VisitInsn(op)
}

// instructionSize returns the total byte length of the instruction at pc,
// including padding for the switch forms.
func instructionSize(b []byte, pc int) (int, error) {
	op := Opcode(b[pc])
	switch op {
	case OpWide:
		if pc+1 >= len(b) {
			return 0, fmt.Errorf("%w: truncated wide at %d", ErrCorruptClass, pc)
		}
		if Opcode(b[pc+1]) == OpIinc {
			return 6, nil
		}
		return 4, nil
	case OpTableswitch:
		base := alignPad(pc)
		if base+12 > len(b) {
			return 0, fmt.Errorf("%w: truncated tableswitch at %d", ErrCorruptClass, pc)
		}
		low := int32(be32(b, base+4))
		high := int32(be32(b, base+8))
		if high < low {
			return 0, fmt.Errorf("%w: tableswitch high %d < low %d at %d", ErrCorruptClass, high, low, pc)
		}
		size := base - pc + 12 + 4*int(high-low+1)
		if pc+size > len(b) {
			return 0, fmt.Errorf("%w: truncated tableswitch at %d", ErrCorruptClass, pc)
		}
		return size, nil
	case OpLookupswitch:
		base := alignPad(pc)
		if base+8 > len(b) {
			return 0, fmt.Errorf("%w: truncated lookupswitch at %d", ErrCorruptClass, pc)
		}
		pairs := int(int32(be32(b, base+4)))
		if pairs < 0 {
			return 0, fmt.Errorf("%w: lookupswitch pair count %d at %d", ErrCorruptClass, pairs, pc)
		}
		size := base - pc + 8 + 8*pairs
		if pc+size > len(b) {
			return 0, fmt.Errorf("%w: truncated lookupswitch at %d", ErrCorruptClass, pc)
		}
		return size, nil
	}
	n := opLengths[op]
	if n == 0 {
		return 0, fmt.Errorf("%w: unknown opcode 0x%02x at %d", ErrCorruptClass, byte(op), pc)
	}
	if pc+n > len(b) {
		return 0, fmt.Errorf("%w: truncated %s at %d", ErrCorruptClass, op, pc)
	}
	return n, nil
}

// alignPad returns the offset of the first operand of a switch instruction at
// pc, past the 0-3 alignment padding bytes.
func alignPad(pc int) int {
	return (pc + 4) &^ 3
}

func be16(b []byte, off int) uint16 {
	return uint16(b[off])<<8 | uint16(b[off+1])
}

func be32(b []byte, off int) uint32 {
	return uint32(b[off])<<24 | uint32(b[off+1])<<16 | uint32(b[off+2])<<8 | uint32(b[off+3])
}
