package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Constant pool tags.
// See JVMS §4.4.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

var (
	ErrBadConstant      = errors.New("invalid constant pool entry")
	ErrConstantOverflow = errors.New("constant pool overflow")
)

// poolEntry is one parsed constant pool entry. The meaning of the fields
// depends on the tag; str holds Utf8 payloads, num holds the raw bits of
// numeric constants, ref1/ref2 hold index operands (and the reference kind
// for MethodHandle entries).
type poolEntry struct {
	tag  byte
	ref1 uint16
	ref2 uint16
	num  uint64
	str  string
}

// ConstantPool holds a class file's constant pool. Interning only ever
// appends: indices handed out earlier stay valid, so attributes and method
// bodies that are passed through untouched keep referring to the right
// entries after a weave extends the pool.
type ConstantPool struct {
	entries []poolEntry // entries[0] is the unused zero index
	lookup  map[poolEntry]uint16
}

// NewConstantPool creates an empty pool.
func NewConstantPool() *ConstantPool {
	return &ConstantPool{
		entries: make([]poolEntry, 1),
		lookup:  make(map[poolEntry]uint16),
	}
}

func parseConstantPool(r *byteReader) (*ConstantPool, error) {
	count := int(r.u2())
	cp := &ConstantPool{
		entries: make([]poolEntry, 1, count),
		lookup:  make(map[poolEntry]uint16),
	}
	for i := 1; i < count; i++ {
		tag := r.u1()
		var e poolEntry
		e.tag = tag
		switch tag {
		case tagUtf8:
			e.str = string(r.bytes(int(r.u2())))
		case tagInteger, tagFloat:
			e.num = uint64(r.u4())
		case tagLong, tagDouble:
			e.num = uint64(r.u4())<<32 | uint64(r.u4())
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			e.ref1 = r.u2()
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType, tagDynamic, tagInvokeDynamic:
			e.ref1 = r.u2()
			e.ref2 = r.u2()
		case tagMethodHandle:
			e.ref1 = uint16(r.u1())
			e.ref2 = r.u2()
		default:
			return nil, fmt.Errorf("%w: tag %d at index %d", ErrBadConstant, tag, i)
		}
		if err := r.Err(); err != nil {
			return nil, err
		}
		cp.entries = append(cp.entries, e)
		cp.lookup[e] = uint16(i)
		if tag == tagLong || tag == tagDouble {
			// Wide constants take two indices; the second is a phantom.
			cp.entries = append(cp.entries, poolEntry{})
			i++
		}
	}
	return cp, nil
}

func (cp *ConstantPool) emit(buf []byte) []byte {
	buf = appendU2(buf, uint16(len(cp.entries)))
	for i := 1; i < len(cp.entries); i++ {
		e := cp.entries[i]
		buf = append(buf, e.tag)
		switch e.tag {
		case tagUtf8:
			buf = appendU2(buf, uint16(len(e.str)))
			buf = append(buf, e.str...)
		case tagInteger, tagFloat:
			buf = appendU4(buf, uint32(e.num))
		case tagLong, tagDouble:
			buf = appendU4(buf, uint32(e.num>>32))
			buf = appendU4(buf, uint32(e.num))
			i++ // skip the phantom
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			buf = appendU2(buf, e.ref1)
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType, tagDynamic, tagInvokeDynamic:
			buf = appendU2(buf, e.ref1)
			buf = appendU2(buf, e.ref2)
		case tagMethodHandle:
			buf = append(buf, byte(e.ref1))
			buf = appendU2(buf, e.ref2)
		}
	}
	return buf
}

// Len returns the constant pool count as it appears in the class file.
func (cp *ConstantPool) Len() int { return len(cp.entries) }

func (cp *ConstantPool) entry(i uint16) (poolEntry, error) {
	if int(i) >= len(cp.entries) || i == 0 {
		return poolEntry{}, fmt.Errorf("%w: index %d out of range", ErrBadConstant, i)
	}
	return cp.entries[i], nil
}

func (cp *ConstantPool) tagged(i uint16, tag byte) (poolEntry, error) {
	e, err := cp.entry(i)
	if err != nil {
		return poolEntry{}, err
	}
	if e.tag != tag {
		return poolEntry{}, fmt.Errorf("%w: index %d has tag %d, want %d", ErrBadConstant, i, e.tag, tag)
	}
	return e, nil
}

// Utf8 returns the Utf8 string at index i.
func (cp *ConstantPool) Utf8(i uint16) (string, error) {
	e, err := cp.tagged(i, tagUtf8)
	if err != nil {
		return "", err
	}
	return e.str, nil
}

// ClassName returns the internal name referenced by the Class entry at i.
func (cp *ConstantPool) ClassName(i uint16) (string, error) {
	e, err := cp.tagged(i, tagClass)
	if err != nil {
		return "", err
	}
	return cp.Utf8(e.ref1)
}

// NameAndType returns the name and descriptor of the NameAndType entry at i.
func (cp *ConstantPool) NameAndType(i uint16) (name, descriptor string, err error) {
	e, err := cp.tagged(i, tagNameAndType)
	if err != nil {
		return "", "", err
	}
	if name, err = cp.Utf8(e.ref1); err != nil {
		return "", "", err
	}
	descriptor, err = cp.Utf8(e.ref2)
	return name, descriptor, err
}

// Ref resolves a Fieldref, Methodref or InterfaceMethodref entry.
func (cp *ConstantPool) Ref(i uint16) (owner, name, descriptor string, err error) {
	e, err := cp.entry(i)
	if err != nil {
		return "", "", "", err
	}
	switch e.tag {
	case tagFieldref, tagMethodref, tagInterfaceMethodref:
	default:
		return "", "", "", fmt.Errorf("%w: index %d is not a member reference", ErrBadConstant, i)
	}
	if owner, err = cp.ClassName(e.ref1); err != nil {
		return "", "", "", err
	}
	name, descriptor, err = cp.NameAndType(e.ref2)
	return owner, name, descriptor, err
}

// Loadable returns the ldc-loadable constant at index i. Entries the reader
// does not model symbolically come back as ConstRaw.
func (cp *ConstantPool) Loadable(i uint16) (Constant, error) {
	e, err := cp.entry(i)
	if err != nil {
		return nil, err
	}
	switch e.tag {
	case tagInteger:
		return ConstInt(int32(uint32(e.num))), nil
	case tagFloat:
		return ConstFloat(math.Float32frombits(uint32(e.num))), nil
	case tagLong:
		return ConstLong(int64(e.num)), nil
	case tagDouble:
		return ConstDouble(math.Float64frombits(e.num)), nil
	case tagString:
		s, err := cp.Utf8(e.ref1)
		if err != nil {
			return nil, err
		}
		return ConstString(s), nil
	case tagClass:
		s, err := cp.Utf8(e.ref1)
		if err != nil {
			return nil, err
		}
		return ConstClass(s), nil
	case tagMethodHandle, tagMethodType, tagDynamic:
		return ConstRaw{Index: i}, nil
	}
	return nil, fmt.Errorf("%w: index %d is not loadable", ErrBadConstant, i)
}

// ---------------------------------------------------------------------------
// Interning
// ---------------------------------------------------------------------------

func (cp *ConstantPool) intern(e poolEntry) (uint16, error) {
	if i, ok := cp.lookup[e]; ok {
		return i, nil
	}
	wide := e.tag == tagLong || e.tag == tagDouble
	need := 1
	if wide {
		need = 2
	}
	if len(cp.entries)+need > 0xffff {
		return 0, ErrConstantOverflow
	}
	i := uint16(len(cp.entries))
	cp.entries = append(cp.entries, e)
	if wide {
		cp.entries = append(cp.entries, poolEntry{})
	}
	cp.lookup[e] = i
	return i, nil
}

// Utf8Index interns a Utf8 entry.
func (cp *ConstantPool) Utf8Index(s string) (uint16, error) {
	return cp.intern(poolEntry{tag: tagUtf8, str: s})
}

// ClassIndex interns a Class entry for an internal name.
func (cp *ConstantPool) ClassIndex(internalName string) (uint16, error) {
	u, err := cp.Utf8Index(internalName)
	if err != nil {
		return 0, err
	}
	return cp.intern(poolEntry{tag: tagClass, ref1: u})
}

// NameAndTypeIndex interns a NameAndType entry.
func (cp *ConstantPool) NameAndTypeIndex(name, descriptor string) (uint16, error) {
	n, err := cp.Utf8Index(name)
	if err != nil {
		return 0, err
	}
	d, err := cp.Utf8Index(descriptor)
	if err != nil {
		return 0, err
	}
	return cp.intern(poolEntry{tag: tagNameAndType, ref1: n, ref2: d})
}

func (cp *ConstantPool) refIndex(tag byte, owner, name, descriptor string) (uint16, error) {
	c, err := cp.ClassIndex(owner)
	if err != nil {
		return 0, err
	}
	nat, err := cp.NameAndTypeIndex(name, descriptor)
	if err != nil {
		return 0, err
	}
	return cp.intern(poolEntry{tag: tag, ref1: c, ref2: nat})
}

// FieldrefIndex interns a Fieldref entry.
func (cp *ConstantPool) FieldrefIndex(owner, name, descriptor string) (uint16, error) {
	return cp.refIndex(tagFieldref, owner, name, descriptor)
}

// MethodrefIndex interns a Methodref or InterfaceMethodref entry.
func (cp *ConstantPool) MethodrefIndex(owner, name, descriptor string, iface bool) (uint16, error) {
	if iface {
		return cp.refIndex(tagInterfaceMethodref, owner, name, descriptor)
	}
	return cp.refIndex(tagMethodref, owner, name, descriptor)
}

// InvokeDynamicIndex interns an InvokeDynamic entry against a bootstrap
// method index of the enclosing class.
func (cp *ConstantPool) InvokeDynamicIndex(bootstrap uint16, name, descriptor string) (uint16, error) {
	nat, err := cp.NameAndTypeIndex(name, descriptor)
	if err != nil {
		return 0, err
	}
	return cp.intern(poolEntry{tag: tagInvokeDynamic, ref1: bootstrap, ref2: nat})
}

// StringIndex interns a String entry.
func (cp *ConstantPool) StringIndex(s string) (uint16, error) {
	u, err := cp.Utf8Index(s)
	if err != nil {
		return 0, err
	}
	return cp.intern(poolEntry{tag: tagString, ref1: u})
}

// IntegerIndex interns an Integer entry.
func (cp *ConstantPool) IntegerIndex(v int32) (uint16, error) {
	return cp.intern(poolEntry{tag: tagInteger, num: uint64(uint32(v))})
}

// FloatIndex interns a Float entry.
func (cp *ConstantPool) FloatIndex(v float32) (uint16, error) {
	return cp.intern(poolEntry{tag: tagFloat, num: uint64(math.Float32bits(v))})
}

// LongIndex interns a Long entry.
func (cp *ConstantPool) LongIndex(v int64) (uint16, error) {
	return cp.intern(poolEntry{tag: tagLong, num: uint64(v)})
}

// DoubleIndex interns a Double entry.
func (cp *ConstantPool) DoubleIndex(v float64) (uint16, error) {
	return cp.intern(poolEntry{tag: tagDouble, num: math.Float64bits(v)})
}

// ConstantIndex interns the pool entry for an ldc-loadable constant and
// reports whether it is a wide (two-slot) constant. ConstRaw constants are
// passed through by index: they are only valid against the pool they were
// read from.
func (cp *ConstantPool) ConstantIndex(c Constant) (index uint16, wide bool, err error) {
	switch v := c.(type) {
	case ConstInt:
		index, err = cp.IntegerIndex(int32(v))
	case ConstFloat:
		index, err = cp.FloatIndex(float32(v))
	case ConstLong:
		index, err = cp.LongIndex(int64(v))
		wide = true
	case ConstDouble:
		index, err = cp.DoubleIndex(float64(v))
		wide = true
	case ConstString:
		index, err = cp.StringIndex(string(v))
	case ConstClass:
		index, err = cp.ClassIndex(string(v))
	case ConstRaw:
		e, eErr := cp.entry(v.Index)
		if eErr != nil {
			return 0, false, eErr
		}
		index, wide = v.Index, e.tag == tagLong || e.tag == tagDouble
	default:
		return 0, false, fmt.Errorf("%w: unsupported constant %T", ErrBadConstant, c)
	}
	return index, wide, err
}

// ---------------------------------------------------------------------------
// Byte helpers shared by the parser and writer
// ---------------------------------------------------------------------------

// byteReader is a cursor over raw class file bytes with a sticky error, in
// the style of the image reader: callers check Err at structural boundaries.
type byteReader struct {
	data []byte
	off  int
	err  error
}

func (r *byteReader) Err() error { return r.err }

func (r *byteReader) fail() {
	if r.err == nil {
		r.err = fmt.Errorf("unexpected end of class data at offset %d", r.off)
	}
}

func (r *byteReader) u1() byte {
	if r.err != nil || r.off+1 > len(r.data) {
		r.fail()
		return 0
	}
	b := r.data[r.off]
	r.off++
	return b
}

func (r *byteReader) u2() uint16 {
	if r.err != nil || r.off+2 > len(r.data) {
		r.fail()
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *byteReader) u4() uint32 {
	if r.err != nil || r.off+4 > len(r.data) {
		r.fail()
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *byteReader) bytes(n int) []byte {
	if r.err != nil || n < 0 || r.off+n > len(r.data) {
		r.fail()
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func appendU2(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

func appendU4(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
