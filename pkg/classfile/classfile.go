package classfile

import (
	"errors"
	"fmt"
)

const classMagic = 0xcafebabe

// ErrCorruptClass is returned when class bytes are structurally invalid.
var ErrCorruptClass = errors.New("corrupt class file")

// Class access and property flags.
const (
	AccPublic     = 0x0001
	AccPrivate    = 0x0002
	AccProtected  = 0x0004
	AccStatic     = 0x0008
	AccFinal      = 0x0010
	AccSuper      = 0x0020
	AccBridge     = 0x0040
	AccVarargs    = 0x0080
	AccNative     = 0x0100
	AccInterface  = 0x0200
	AccAbstract   = 0x0400
	AccStrict     = 0x0800
	AccSynthetic  = 0x1000
	AccAnnotation = 0x2000
	AccEnum       = 0x4000
)

// AttributeInfo is one raw attribute. The name index points into the class's
// constant pool; Data is the attribute payload without the six-byte header.
// Attributes the weaver does not rewrite round-trip byte for byte, which is
// safe because the pool only ever grows.
type AttributeInfo struct {
	NameIndex uint16
	Name      string
	Data      []byte
}

// FieldInfo is one field_info structure.
type FieldInfo struct {
	AccessFlags uint16
	Name        string
	Descriptor  string

	nameIndex  uint16
	descIndex  uint16
	Attributes []AttributeInfo
}

// MethodInfo is one method_info structure.
type MethodInfo struct {
	AccessFlags uint16
	Name        string
	Descriptor  string

	nameIndex  uint16
	descIndex  uint16
	Attributes []AttributeInfo
}

// IsStatic reports whether the method has ACC_STATIC set.
func (m *MethodInfo) IsStatic() bool { return m.AccessFlags&AccStatic != 0 }

// HasCode reports whether the method carries a Code attribute. Abstract and
// native methods do not.
func (m *MethodInfo) HasCode() bool {
	return m.AccessFlags&(AccAbstract|AccNative) == 0
}

// CodeAttribute returns the method's raw Code attribute payload, or nil.
func (m *MethodInfo) CodeAttribute() []byte {
	for i := range m.Attributes {
		if m.Attributes[i].Name == "Code" {
			return m.Attributes[i].Data
		}
	}
	return nil
}

// SetCode replaces the method's Code attribute payload. It is an error to set
// code on a method that has none.
func (m *MethodInfo) SetCode(data []byte) error {
	for i := range m.Attributes {
		if m.Attributes[i].Name == "Code" {
			m.Attributes[i].Data = data
			return nil
		}
	}
	return fmt.Errorf("%w: method %s%s has no Code attribute", ErrCorruptClass, m.Name, m.Descriptor)
}

// ClassFile is a parsed class. The constant pool is shared by every
// structure; extending it through interning keeps all parsed indices valid.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	Pool         *ConstantPool
	AccessFlags  uint16
	ThisClass    string
	SuperClass   string // "" for java/lang/Object
	Interfaces   []string
	Fields       []FieldInfo
	Methods      []*MethodInfo
	Attributes   []AttributeInfo

	thisIndex  uint16
	superIndex uint16
	ifaceIdx   []uint16
}

// Parse reads a class file from raw bytes.
func Parse(data []byte) (*ClassFile, error) {
	r := &byteReader{data: data}
	if magic := r.u4(); magic != classMagic {
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptClass, err)
		}
		return nil, fmt.Errorf("%w: bad magic %#x", ErrCorruptClass, magic)
	}
	cf := &ClassFile{}
	cf.MinorVersion = r.u2()
	cf.MajorVersion = r.u2()

	pool, err := parseConstantPool(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptClass, err)
	}
	cf.Pool = pool

	cf.AccessFlags = r.u2()
	cf.thisIndex = r.u2()
	cf.superIndex = r.u2()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptClass, err)
	}
	if cf.ThisClass, err = pool.ClassName(cf.thisIndex); err != nil {
		return nil, fmt.Errorf("%w: this_class: %v", ErrCorruptClass, err)
	}
	if cf.superIndex != 0 {
		if cf.SuperClass, err = pool.ClassName(cf.superIndex); err != nil {
			return nil, fmt.Errorf("%w: super_class: %v", ErrCorruptClass, err)
		}
	}

	ifaceCount := int(r.u2())
	for i := 0; i < ifaceCount; i++ {
		idx := r.u2()
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptClass, err)
		}
		name, err := pool.ClassName(idx)
		if err != nil {
			return nil, fmt.Errorf("%w: interface %d: %v", ErrCorruptClass, i, err)
		}
		cf.ifaceIdx = append(cf.ifaceIdx, idx)
		cf.Interfaces = append(cf.Interfaces, name)
	}

	fieldCount := int(r.u2())
	for i := 0; i < fieldCount; i++ {
		var f FieldInfo
		f.AccessFlags = r.u2()
		f.nameIndex = r.u2()
		f.descIndex = r.u2()
		if f.Attributes, err = parseAttributes(r, pool); err != nil {
			return nil, err
		}
		if f.Name, err = pool.Utf8(f.nameIndex); err != nil {
			return nil, fmt.Errorf("%w: field %d name: %v", ErrCorruptClass, i, err)
		}
		if f.Descriptor, err = pool.Utf8(f.descIndex); err != nil {
			return nil, fmt.Errorf("%w: field %d descriptor: %v", ErrCorruptClass, i, err)
		}
		cf.Fields = append(cf.Fields, f)
	}

	methodCount := int(r.u2())
	for i := 0; i < methodCount; i++ {
		m := &MethodInfo{}
		m.AccessFlags = r.u2()
		m.nameIndex = r.u2()
		m.descIndex = r.u2()
		if m.Attributes, err = parseAttributes(r, pool); err != nil {
			return nil, err
		}
		if m.Name, err = pool.Utf8(m.nameIndex); err != nil {
			return nil, fmt.Errorf("%w: method %d name: %v", ErrCorruptClass, i, err)
		}
		if m.Descriptor, err = pool.Utf8(m.descIndex); err != nil {
			return nil, fmt.Errorf("%w: method %d descriptor: %v", ErrCorruptClass, i, err)
		}
		cf.Methods = append(cf.Methods, m)
	}

	if cf.Attributes, err = parseAttributes(r, pool); err != nil {
		return nil, err
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptClass, err)
	}
	return cf, nil
}

func parseAttributes(r *byteReader, pool *ConstantPool) ([]AttributeInfo, error) {
	count := int(r.u2())
	var attrs []AttributeInfo
	for i := 0; i < count; i++ {
		nameIndex := r.u2()
		length := int(r.u4())
		data := r.bytes(length)
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptClass, err)
		}
		name, err := pool.Utf8(nameIndex)
		if err != nil {
			return nil, fmt.Errorf("%w: attribute name: %v", ErrCorruptClass, err)
		}
		attrs = append(attrs, AttributeInfo{NameIndex: nameIndex, Name: name, Data: data})
	}
	return attrs, nil
}

// Method returns the method with the given name and descriptor, or nil.
func (cf *ClassFile) Method(name, descriptor string) *MethodInfo {
	for _, m := range cf.Methods {
		if m.Name == name && m.Descriptor == descriptor {
			return m
		}
	}
	return nil
}

// Field returns the field with the given name, or nil.
func (cf *ClassFile) Field(name string) *FieldInfo {
	for i := range cf.Fields {
		if cf.Fields[i].Name == name {
			return &cf.Fields[i]
		}
	}
	return nil
}

// Code is a method's parsed Code attribute.
type Code struct {
	MaxStack       int
	MaxLocals      int
	Bytecode       []byte
	ExceptionTable []ExceptionEntry
	Attributes     []AttributeInfo
}

// ExceptionEntry is one exception table row, by raw code offsets. CatchType
// is the internal name of the caught class, or "" for catch-any.
type ExceptionEntry struct {
	StartPC   int
	EndPC     int
	HandlerPC int
	CatchType string

	catchIndex uint16
}

// ParseCode parses a raw Code attribute payload against the class's pool.
func (cf *ClassFile) ParseCode(data []byte) (*Code, error) {
	r := &byteReader{data: data}
	c := &Code{
		MaxStack:  int(r.u2()),
		MaxLocals: int(r.u2()),
	}
	c.Bytecode = r.bytes(int(r.u4()))
	entries := int(r.u2())
	for i := 0; i < entries; i++ {
		e := ExceptionEntry{
			StartPC:    int(r.u2()),
			EndPC:      int(r.u2()),
			HandlerPC:  int(r.u2()),
			catchIndex: r.u2(),
		}
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptClass, err)
		}
		if e.catchIndex != 0 {
			name, err := cf.Pool.ClassName(e.catchIndex)
			if err != nil {
				return nil, fmt.Errorf("%w: exception table entry %d: %v", ErrCorruptClass, i, err)
			}
			e.CatchType = name
		}
		c.ExceptionTable = append(c.ExceptionTable, e)
	}
	var err error
	if c.Attributes, err = parseAttributes(r, cf.Pool); err != nil {
		return nil, err
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptClass, err)
	}
	return c, nil
}

// Attribute returns the named attribute's payload from a list, or nil.
func findAttribute(attrs []AttributeInfo, name string) []byte {
	for i := range attrs {
		if attrs[i].Name == name {
			return attrs[i].Data
		}
	}
	return nil
}
