package classfile

import "fmt"

// Bytes serializes the class back to class file bytes. Name and type indices
// recorded at parse time are reused; structures created programmatically
// (with zero indices) are interned on the way out. Because the pool only
// grows, untouched attributes can be copied through verbatim.
func (cf *ClassFile) Bytes() ([]byte, error) {
	var err error
	if cf.thisIndex == 0 {
		if cf.thisIndex, err = cf.Pool.ClassIndex(cf.ThisClass); err != nil {
			return nil, err
		}
	}
	if cf.superIndex == 0 && cf.SuperClass != "" {
		if cf.superIndex, err = cf.Pool.ClassIndex(cf.SuperClass); err != nil {
			return nil, err
		}
	}
	for len(cf.ifaceIdx) < len(cf.Interfaces) {
		idx, err := cf.Pool.ClassIndex(cf.Interfaces[len(cf.ifaceIdx)])
		if err != nil {
			return nil, err
		}
		cf.ifaceIdx = append(cf.ifaceIdx, idx)
	}
	for i := range cf.Fields {
		f := &cf.Fields[i]
		if f.nameIndex == 0 {
			if f.nameIndex, err = cf.Pool.Utf8Index(f.Name); err != nil {
				return nil, err
			}
		}
		if f.descIndex == 0 {
			if f.descIndex, err = cf.Pool.Utf8Index(f.Descriptor); err != nil {
				return nil, err
			}
		}
		if err = internAttrNames(cf.Pool, f.Attributes); err != nil {
			return nil, err
		}
	}
	for _, m := range cf.Methods {
		if m.nameIndex == 0 {
			if m.nameIndex, err = cf.Pool.Utf8Index(m.Name); err != nil {
				return nil, err
			}
		}
		if m.descIndex == 0 {
			if m.descIndex, err = cf.Pool.Utf8Index(m.Descriptor); err != nil {
				return nil, err
			}
		}
		if err = internAttrNames(cf.Pool, m.Attributes); err != nil {
			return nil, err
		}
	}
	if err = internAttrNames(cf.Pool, cf.Attributes); err != nil {
		return nil, err
	}

	// The pool is emitted after everything referencing it has interned its
	// entries.
	var buf []byte
	buf = appendU4(buf, classMagic)
	buf = appendU2(buf, cf.MinorVersion)
	buf = appendU2(buf, cf.MajorVersion)
	buf = cf.Pool.emit(buf)
	buf = appendU2(buf, cf.AccessFlags)
	buf = appendU2(buf, cf.thisIndex)
	buf = appendU2(buf, cf.superIndex)
	buf = appendU2(buf, uint16(len(cf.ifaceIdx)))
	for _, idx := range cf.ifaceIdx {
		buf = appendU2(buf, idx)
	}
	buf = appendU2(buf, uint16(len(cf.Fields)))
	for i := range cf.Fields {
		f := &cf.Fields[i]
		buf = appendU2(buf, f.AccessFlags)
		buf = appendU2(buf, f.nameIndex)
		buf = appendU2(buf, f.descIndex)
		buf = emitAttributes(buf, f.Attributes)
	}
	buf = appendU2(buf, uint16(len(cf.Methods)))
	for _, m := range cf.Methods {
		buf = appendU2(buf, m.AccessFlags)
		buf = appendU2(buf, m.nameIndex)
		buf = appendU2(buf, m.descIndex)
		buf = emitAttributes(buf, m.Attributes)
	}
	buf = emitAttributes(buf, cf.Attributes)
	return buf, nil
}

func internAttrNames(pool *ConstantPool, attrs []AttributeInfo) error {
	for i := range attrs {
		if attrs[i].NameIndex == 0 {
			idx, err := pool.Utf8Index(attrs[i].Name)
			if err != nil {
				return err
			}
			attrs[i].NameIndex = idx
		}
	}
	return nil
}

func emitAttributes(buf []byte, attrs []AttributeInfo) []byte {
	buf = appendU2(buf, uint16(len(attrs)))
	for i := range attrs {
		buf = appendU2(buf, attrs[i].NameIndex)
		buf = appendU4(buf, uint32(len(attrs[i].Data)))
		buf = append(buf, attrs[i].Data...)
	}
	return buf
}

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

// Builder assembles a class from scratch. It exists for constructing small
// classes programmatically, mainly in tests and tooling; parsed classes are
// modified in place instead.
type Builder struct {
	cf  *ClassFile
	err error
}

// NewBuilder starts a public class with the given internal name, extending
// java/lang/Object, at class file version 52.0.
func NewBuilder(internalName string) *Builder {
	return &Builder{
		cf: &ClassFile{
			MajorVersion: 52,
			Pool:         NewConstantPool(),
			AccessFlags:  AccPublic | AccSuper,
			ThisClass:    internalName,
			SuperClass:   "java/lang/Object",
		},
	}
}

// SetAccessFlags replaces the class access flags.
func (b *Builder) SetAccessFlags(flags uint16) *Builder {
	b.cf.AccessFlags = flags
	return b
}

// SetSuper replaces the superclass.
func (b *Builder) SetSuper(internalName string) *Builder {
	b.cf.SuperClass = internalName
	return b
}

// AddInterface adds an implemented interface.
func (b *Builder) AddInterface(internalName string) *Builder {
	b.cf.Interfaces = append(b.cf.Interfaces, internalName)
	return b
}

// AddField adds a field with no attributes.
func (b *Builder) AddField(flags uint16, name, descriptor string) *Builder {
	b.cf.Fields = append(b.cf.Fields, FieldInfo{
		AccessFlags: flags,
		Name:        name,
		Descriptor:  descriptor,
	})
	return b
}

// AddMethod adds a method whose body is produced by emit writing into a
// CodeWriter. emit must end with VisitMaxs. Pass nil for abstract and native
// methods.
func (b *Builder) AddMethod(flags uint16, name, descriptor string, emit func(*CodeWriter) error) *Builder {
	if b.err != nil {
		return b
	}
	m := &MethodInfo{AccessFlags: flags, Name: name, Descriptor: descriptor}
	if emit != nil {
		w := NewCodeWriter(b.cf.Pool)
		if err := emit(w); err != nil {
			b.err = fmt.Errorf("method %s%s: %w", name, descriptor, err)
			return b
		}
		data, err := w.Finish()
		if err != nil {
			b.err = fmt.Errorf("method %s%s: %w", name, descriptor, err)
			return b
		}
		m.Attributes = append(m.Attributes, AttributeInfo{Name: "Code", Data: data})
	}
	b.cf.Methods = append(b.cf.Methods, m)
	return b
}

// AnnotateMethod attaches a RuntimeVisibleAnnotations attribute carrying the
// given annotations to the most recently added method.
func (b *Builder) AnnotateMethod(anns ...Annotation) *Builder {
	if b.err != nil {
		return b
	}
	if len(b.cf.Methods) == 0 {
		b.err = fmt.Errorf("AnnotateMethod before any AddMethod")
		return b
	}
	data, err := EncodeAnnotations(b.cf.Pool, anns)
	if err != nil {
		b.err = err
		return b
	}
	m := b.cf.Methods[len(b.cf.Methods)-1]
	m.Attributes = append(m.Attributes, AttributeInfo{Name: "RuntimeVisibleAnnotations", Data: data})
	return b
}

// AnnotateParams attaches a RuntimeVisibleParameterAnnotations attribute to
// the most recently added method, one annotation list per declared parameter.
func (b *Builder) AnnotateParams(params ...[]Annotation) *Builder {
	if b.err != nil {
		return b
	}
	if len(b.cf.Methods) == 0 {
		b.err = fmt.Errorf("AnnotateParams before any AddMethod")
		return b
	}
	data, err := EncodeParameterAnnotations(b.cf.Pool, params)
	if err != nil {
		b.err = err
		return b
	}
	m := b.cf.Methods[len(b.cf.Methods)-1]
	m.Attributes = append(m.Attributes, AttributeInfo{Name: "RuntimeVisibleParameterAnnotations", Data: data})
	return b
}

// Class returns the class under construction.
func (b *Builder) Class() *ClassFile { return b.cf }

// Build serializes the class.
func (b *Builder) Build() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.cf.Bytes()
}
