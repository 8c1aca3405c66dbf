package classfile

import (
	"errors"
	"fmt"
	"sort"
)

// ErrBranchRange is returned when a patched branch offset does not fit its
// 16-bit operand. The writer does not rewrite existing branches to their wide
// forms; callers weaving very large methods see this error instead of a
// silently corrupt class.
var ErrBranchRange = errors.New("branch offset out of range")

// CodeWriter assembles a Code attribute from visitor events, interning every
// symbolic reference into the given constant pool. Labels are resolved by
// pointer identity when VisitLabel is called; branches to labels visited
// later are patched in Finish. Local variable instructions are emitted in
// their most compact form, so short forms normalized away by the reader come
// back on re-emission.
type CodeWriter struct {
	pool *ConstantPool
	code []byte
	err  error

	positions map[*Label]int
	fixups    []fixup
	handlers  []handlerEntry
	frames    []frameEntry
	lines     []lineRef

	maxStack    int
	maxLocals   int
	highestSlot int
	sawMaxs     bool
}

type fixup struct {
	operand int // offset of the operand bytes within code
	base    int // instruction offset the branch is relative to
	wide    bool
	target  *Label
}

type handlerEntry struct {
	start, end, handler *Label
	catchType           string
}

type frameEntry struct {
	offset int
	frame  Frame
}

type lineRef struct {
	start *Label
	line  int
}

// NewCodeWriter creates a writer that interns into pool.
func NewCodeWriter(pool *ConstantPool) *CodeWriter {
	return &CodeWriter{
		pool:      pool,
		positions: make(map[*Label]int),
	}
}

func (w *CodeWriter) fail(err error) error {
	if w.err == nil {
		w.err = err
	}
	return w.err
}

func (w *CodeWriter) touch(slot, width int) {
	if slot+width > w.highestSlot {
		w.highestSlot = slot + width
	}
}

// VisitCode implements MethodVisitor.
func (w *CodeWriter) VisitCode() error { return w.err }

// VisitTryCatch implements MethodVisitor. Entries are written to the
// exception table in visit order.
func (w *CodeWriter) VisitTryCatch(start, end, handler *Label, catchType string) error {
	if w.err != nil {
		return w.err
	}
	w.handlers = append(w.handlers, handlerEntry{start: start, end: end, handler: handler, catchType: catchType})
	return nil
}

// VisitLabel implements MethodVisitor, binding l to the current offset.
func (w *CodeWriter) VisitLabel(l *Label) error {
	if w.err != nil {
		return w.err
	}
	if _, ok := w.positions[l]; ok {
		return w.fail(fmt.Errorf("label bound twice at offset %d", len(w.code)))
	}
	w.positions[l] = len(w.code)
	return nil
}

// VisitFrame implements MethodVisitor. A frame visited at the same offset as
// an earlier one replaces it.
func (w *CodeWriter) VisitFrame(f Frame) error {
	if w.err != nil {
		return w.err
	}
	offset := len(w.code)
	if n := len(w.frames); n > 0 && w.frames[n-1].offset == offset {
		w.frames[n-1].frame = f
		return nil
	}
	w.frames = append(w.frames, frameEntry{offset: offset, frame: f})
	return nil
}

// VisitLineNumber implements MethodVisitor.
func (w *CodeWriter) VisitLineNumber(line int, start *Label) error {
	if w.err != nil {
		return w.err
	}
	w.lines = append(w.lines, lineRef{start: start, line: line})
	return nil
}

// VisitInsn implements MethodVisitor.
func (w *CodeWriter) VisitInsn(op Opcode) error {
	if w.err != nil {
		return w.err
	}
	w.code = append(w.code, byte(op))
	return nil
}

// VisitIntInsn implements MethodVisitor.
func (w *CodeWriter) VisitIntInsn(op Opcode, operand int32) error {
	if w.err != nil {
		return w.err
	}
	switch op {
	case OpBipush:
		w.code = append(w.code, byte(op), byte(int8(operand)))
	case OpSipush:
		w.code = append(w.code, byte(op))
		w.code = appendI2(w.code, int16(operand))
	case OpNewarray:
		w.code = append(w.code, byte(op), byte(operand))
	default:
		return w.fail(fmt.Errorf("%s is not an int-operand instruction", op))
	}
	return nil
}

// VisitVarInsn implements MethodVisitor, choosing the shortest encoding.
func (w *CodeWriter) VisitVarInsn(op Opcode, slot int) error {
	if w.err != nil {
		return w.err
	}
	if slot < 0 || slot > 0xffff {
		return w.fail(fmt.Errorf("local slot %d out of range", slot))
	}
	switch {
	case op.IsLoad() && slot < 4:
		w.code = append(w.code, byte(0x1a+int(op-OpIload)*4+slot))
	case op.IsStore() && slot < 4:
		w.code = append(w.code, byte(0x3b+int(op-OpIstore)*4+slot))
	case slot <= 0xff:
		w.code = append(w.code, byte(op), byte(slot))
	default:
		w.code = append(w.code, byte(OpWide), byte(op))
		w.code = appendU2(w.code, uint16(slot))
	}
	if op.IsLoad() || op.IsStore() {
		w.touch(slot, VarWidth(op))
	}
	return nil
}

// VisitTypeInsn implements MethodVisitor.
func (w *CodeWriter) VisitTypeInsn(op Opcode, internalName string) error {
	if w.err != nil {
		return w.err
	}
	idx, err := w.pool.ClassIndex(internalName)
	if err != nil {
		return w.fail(err)
	}
	w.code = append(w.code, byte(op))
	w.code = appendU2(w.code, idx)
	return nil
}

// VisitFieldInsn implements MethodVisitor.
func (w *CodeWriter) VisitFieldInsn(op Opcode, owner, name, descriptor string) error {
	if w.err != nil {
		return w.err
	}
	idx, err := w.pool.FieldrefIndex(owner, name, descriptor)
	if err != nil {
		return w.fail(err)
	}
	w.code = append(w.code, byte(op))
	w.code = appendU2(w.code, idx)
	return nil
}

// VisitMethodInsn implements MethodVisitor.
func (w *CodeWriter) VisitMethodInsn(op Opcode, owner, name, descriptor string, iface bool) error {
	if w.err != nil {
		return w.err
	}
	idx, err := w.pool.MethodrefIndex(owner, name, descriptor, iface)
	if err != nil {
		return w.fail(err)
	}
	w.code = append(w.code, byte(op))
	w.code = appendU2(w.code, idx)
	if op == OpInvokeinterface {
		d, err := ParseMethodDesc(descriptor)
		if err != nil {
			return w.fail(err)
		}
		w.code = append(w.code, byte(1+d.ArgSlotWidth()), 0)
	}
	return nil
}

// VisitInvokeDynamicInsn implements MethodVisitor. The bootstrap index is
// taken as is; it is only meaningful when the writer targets the pool of the
// class whose BootstrapMethods attribute it names.
func (w *CodeWriter) VisitInvokeDynamicInsn(name, descriptor string, bootstrap uint16) error {
	if w.err != nil {
		return w.err
	}
	idx, err := w.pool.InvokeDynamicIndex(bootstrap, name, descriptor)
	if err != nil {
		return w.fail(err)
	}
	w.code = append(w.code, byte(OpInvokedynamic))
	w.code = appendU2(w.code, idx)
	w.code = append(w.code, 0, 0)
	return nil
}

// VisitJumpInsn implements MethodVisitor.
func (w *CodeWriter) VisitJumpInsn(op Opcode, target *Label) error {
	if w.err != nil {
		return w.err
	}
	base := len(w.code)
	w.code = append(w.code, byte(op), 0, 0)
	w.fixups = append(w.fixups, fixup{operand: base + 1, base: base, target: target})
	return nil
}

// VisitLdcInsn implements MethodVisitor.
func (w *CodeWriter) VisitLdcInsn(c Constant) error {
	if w.err != nil {
		return w.err
	}
	idx, wide, err := w.pool.ConstantIndex(c)
	if err != nil {
		return w.fail(err)
	}
	switch {
	case wide:
		w.code = append(w.code, byte(OpLdc2W))
		w.code = appendU2(w.code, idx)
	case idx <= 0xff:
		w.code = append(w.code, byte(OpLdc), byte(idx))
	default:
		w.code = append(w.code, byte(OpLdcW))
		w.code = appendU2(w.code, idx)
	}
	return nil
}

// VisitIincInsn implements MethodVisitor.
func (w *CodeWriter) VisitIincInsn(slot, increment int) error {
	if w.err != nil {
		return w.err
	}
	if slot < 0 || slot > 0xffff {
		return w.fail(fmt.Errorf("local slot %d out of range", slot))
	}
	if increment < -0x8000 || increment > 0x7fff {
		return w.fail(fmt.Errorf("iinc increment %d out of range", increment))
	}
	if slot <= 0xff && increment >= -0x80 && increment <= 0x7f {
		w.code = append(w.code, byte(OpIinc), byte(slot), byte(int8(increment)))
	} else {
		w.code = append(w.code, byte(OpWide), byte(OpIinc))
		w.code = appendU2(w.code, uint16(slot))
		w.code = appendI2(w.code, int16(increment))
	}
	w.touch(slot, 1)
	return nil
}

// VisitTableSwitchInsn implements MethodVisitor.
func (w *CodeWriter) VisitTableSwitchInsn(low, high int32, dflt *Label, targets []*Label) error {
	if w.err != nil {
		return w.err
	}
	if int64(high)-int64(low)+1 != int64(len(targets)) {
		return w.fail(fmt.Errorf("tableswitch has %d targets for range [%d, %d]", len(targets), low, high))
	}
	base := len(w.code)
	w.code = append(w.code, byte(OpTableswitch))
	for len(w.code)%4 != 0 {
		w.code = append(w.code, 0)
	}
	w.fixups = append(w.fixups, fixup{operand: len(w.code), base: base, wide: true, target: dflt})
	w.code = append(w.code, 0, 0, 0, 0)
	w.code = appendU4(w.code, uint32(low))
	w.code = appendU4(w.code, uint32(high))
	for _, t := range targets {
		w.fixups = append(w.fixups, fixup{operand: len(w.code), base: base, wide: true, target: t})
		w.code = append(w.code, 0, 0, 0, 0)
	}
	return nil
}

// VisitLookupSwitchInsn implements MethodVisitor.
func (w *CodeWriter) VisitLookupSwitchInsn(dflt *Label, keys []int32, targets []*Label) error {
	if w.err != nil {
		return w.err
	}
	if len(keys) != len(targets) {
		return w.fail(fmt.Errorf("lookupswitch has %d keys but %d targets", len(keys), len(targets)))
	}
	base := len(w.code)
	w.code = append(w.code, byte(OpLookupswitch))
	for len(w.code)%4 != 0 {
		w.code = append(w.code, 0)
	}
	w.fixups = append(w.fixups, fixup{operand: len(w.code), base: base, wide: true, target: dflt})
	w.code = append(w.code, 0, 0, 0, 0)
	w.code = appendU4(w.code, uint32(len(keys)))
	for i := range keys {
		w.code = appendU4(w.code, uint32(keys[i]))
		w.fixups = append(w.fixups, fixup{operand: len(w.code), base: base, wide: true, target: targets[i]})
		w.code = append(w.code, 0, 0, 0, 0)
	}
	return nil
}

// VisitMultiANewArrayInsn implements MethodVisitor.
func (w *CodeWriter) VisitMultiANewArrayInsn(descriptor string, dims int) error {
	if w.err != nil {
		return w.err
	}
	idx, err := w.pool.ClassIndex(descriptor)
	if err != nil {
		return w.fail(err)
	}
	w.code = append(w.code, byte(OpMultianewarray))
	w.code = appendU2(w.code, idx)
	w.code = append(w.code, byte(dims))
	return nil
}

// VisitMaxs implements MethodVisitor. The recorded max_locals is raised to
// cover every local slot the written code actually touches.
func (w *CodeWriter) VisitMaxs(maxStack, maxLocals int) error {
	if w.err != nil {
		return w.err
	}
	w.maxStack = maxStack
	w.maxLocals = maxLocals
	w.sawMaxs = true
	return nil
}

// VisitEnd implements MethodVisitor.
func (w *CodeWriter) VisitEnd() error { return w.err }

// Finish patches branches, assembles the exception table, StackMapTable and
// LineNumberTable, and returns the complete Code attribute payload.
func (w *CodeWriter) Finish() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	if !w.sawMaxs {
		return nil, errors.New("code stream ended without VisitMaxs")
	}
	for _, fx := range w.fixups {
		pos, ok := w.positions[fx.target]
		if !ok {
			return nil, fmt.Errorf("branch at offset %d targets an unbound label", fx.base)
		}
		delta := pos - fx.base
		if fx.wide {
			putU4(w.code[fx.operand:], uint32(int32(delta)))
			continue
		}
		if delta < -0x8000 || delta > 0x7fff {
			return nil, fmt.Errorf("%w: %d at offset %d", ErrBranchRange, delta, fx.base)
		}
		putU2(w.code[fx.operand:], uint16(int16(delta)))
	}

	maxLocals := w.maxLocals
	if w.highestSlot > maxLocals {
		maxLocals = w.highestSlot
	}

	var buf []byte
	buf = appendU2(buf, uint16(w.maxStack))
	buf = appendU2(buf, uint16(maxLocals))
	buf = appendU4(buf, uint32(len(w.code)))
	buf = append(buf, w.code...)

	buf = appendU2(buf, uint16(len(w.handlers)))
	for _, h := range w.handlers {
		for _, l := range []*Label{h.start, h.end, h.handler} {
			pos, ok := w.positions[l]
			if !ok {
				return nil, errors.New("exception table entry references an unbound label")
			}
			buf = appendU2(buf, uint16(pos))
		}
		var catchIdx uint16
		if h.catchType != "" {
			var err error
			if catchIdx, err = w.pool.ClassIndex(h.catchType); err != nil {
				return nil, err
			}
		}
		buf = appendU2(buf, catchIdx)
	}

	type namedAttr struct {
		name    string
		payload []byte
	}
	var attrs []namedAttr
	smt, err := w.encodeStackMapTable()
	if err != nil {
		return nil, err
	}
	if smt != nil {
		attrs = append(attrs, namedAttr{"StackMapTable", smt})
	}
	lnt, err := w.encodeLineNumberTable()
	if err != nil {
		return nil, err
	}
	if lnt != nil {
		attrs = append(attrs, namedAttr{"LineNumberTable", lnt})
	}

	buf = appendU2(buf, uint16(len(attrs)))
	for _, a := range attrs {
		nameIdx, err := w.pool.Utf8Index(a.name)
		if err != nil {
			return nil, err
		}
		buf = appendU2(buf, nameIdx)
		buf = appendU4(buf, uint32(len(a.payload)))
		buf = append(buf, a.payload...)
	}
	return buf, nil
}

func (w *CodeWriter) encodeStackMapTable() ([]byte, error) {
	if len(w.frames) == 0 {
		return nil, nil
	}
	sort.SliceStable(w.frames, func(i, j int) bool { return w.frames[i].offset < w.frames[j].offset })
	var buf []byte
	buf = appendU2(buf, uint16(len(w.frames)))
	prev := -1
	for _, fe := range w.frames {
		delta := fe.offset - prev - 1
		if delta < 0 {
			return nil, fmt.Errorf("duplicate stack map frame at offset %d", fe.offset)
		}
		f := fe.frame
		switch f.Kind {
		case FrameSame:
			if delta <= 63 {
				buf = append(buf, byte(delta))
			} else {
				buf = append(buf, 251)
				buf = appendU2(buf, uint16(delta))
			}
		case FrameSame1:
			if len(f.Stack) != 1 {
				return nil, fmt.Errorf("same1 frame at %d carries %d stack entries", fe.offset, len(f.Stack))
			}
			if delta <= 63 {
				buf = append(buf, byte(64+delta))
			} else {
				buf = append(buf, 247)
				buf = appendU2(buf, uint16(delta))
			}
			var err error
			if buf, err = w.encodeVerificationType(buf, f.Stack[0]); err != nil {
				return nil, err
			}
		case FrameChop:
			if f.Chopped < 1 || f.Chopped > 3 {
				return nil, fmt.Errorf("chop frame at %d drops %d locals", fe.offset, f.Chopped)
			}
			buf = append(buf, byte(251-f.Chopped))
			buf = appendU2(buf, uint16(delta))
		case FrameAppend:
			if len(f.Locals) < 1 || len(f.Locals) > 3 {
				return nil, fmt.Errorf("append frame at %d adds %d locals", fe.offset, len(f.Locals))
			}
			buf = append(buf, byte(251+len(f.Locals)))
			buf = appendU2(buf, uint16(delta))
			for _, vt := range f.Locals {
				var err error
				if buf, err = w.encodeVerificationType(buf, vt); err != nil {
					return nil, err
				}
			}
		case FrameFull:
			buf = append(buf, 255)
			buf = appendU2(buf, uint16(delta))
			buf = appendU2(buf, uint16(len(f.Locals)))
			for _, vt := range f.Locals {
				var err error
				if buf, err = w.encodeVerificationType(buf, vt); err != nil {
					return nil, err
				}
			}
			buf = appendU2(buf, uint16(len(f.Stack)))
			for _, vt := range f.Stack {
				var err error
				if buf, err = w.encodeVerificationType(buf, vt); err != nil {
					return nil, err
				}
			}
		default:
			return nil, fmt.Errorf("unknown frame kind %s", f.Kind)
		}
		prev = fe.offset
	}
	return buf, nil
}

func (w *CodeWriter) encodeVerificationType(buf []byte, vt VerificationType) ([]byte, error) {
	buf = append(buf, byte(vt.Tag))
	switch vt.Tag {
	case VTObject:
		idx, err := w.pool.ClassIndex(vt.ClassName)
		if err != nil {
			return nil, err
		}
		buf = appendU2(buf, idx)
	case VTUninitialized:
		pos, ok := w.positions[vt.NewSite]
		if !ok {
			return nil, errors.New("uninitialized verification type references an unbound label")
		}
		buf = appendU2(buf, uint16(pos))
	}
	return buf, nil
}

func (w *CodeWriter) encodeLineNumberTable() ([]byte, error) {
	if len(w.lines) == 0 {
		return nil, nil
	}
	var buf []byte
	buf = appendU2(buf, uint16(len(w.lines)))
	for _, lr := range w.lines {
		pos, ok := w.positions[lr.start]
		if !ok {
			return nil, errors.New("line number entry references an unbound label")
		}
		buf = appendU2(buf, uint16(pos))
		buf = appendU2(buf, uint16(lr.line))
	}
	return buf, nil
}

func appendI2(buf []byte, v int16) []byte {
	return appendU2(buf, uint16(v))
}

func putU2(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

func putU4(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
