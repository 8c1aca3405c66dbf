package classfile

import (
	"errors"
	"fmt"
)

// ErrBadAnnotation is returned for malformed annotation attributes.
var ErrBadAnnotation = errors.New("malformed annotation attribute")

// Annotation is one runtime-visible annotation: the field descriptor of the
// annotation type plus its element-value pairs.
type Annotation struct {
	Type     string
	Elements []AnnotationElement
}

// AnnotationElement is one named element-value pair.
type AnnotationElement struct {
	Name  string
	Value ElementValue
}

// ElementValue is an annotation element value. Concrete types are ElemConst,
// ElemEnum, ElemClass, ElemAnnotation and ElemArray.
type ElementValue interface {
	isElementValue()
}

// ElemConst is a primitive or string constant element. Tag is the
// element_value tag byte ('I', 'Z', 's', ...).
type ElemConst struct {
	Tag   byte
	Value Constant
}

// ElemEnum is an enum constant element.
type ElemEnum struct {
	TypeDescriptor string
	ConstName      string
}

// ElemClass is a class literal element, holding the field descriptor.
type ElemClass struct {
	Descriptor string
}

// ElemAnnotation is a nested annotation element.
type ElemAnnotation struct {
	Annotation Annotation
}

// ElemArray is an array element.
type ElemArray struct {
	Values []ElementValue
}

func (ElemConst) isElementValue()      {}
func (ElemEnum) isElementValue()       {}
func (ElemClass) isElementValue()      {}
func (ElemAnnotation) isElementValue() {}
func (ElemArray) isElementValue()      {}

// Element returns the named element value, if present.
func (a Annotation) Element(name string) (ElementValue, bool) {
	for _, e := range a.Elements {
		if e.Name == name {
			return e.Value, true
		}
	}
	return nil, false
}

// Bool returns the named boolean element, or dflt when absent.
func (a Annotation) Bool(name string, dflt bool) bool {
	v, ok := a.Element(name)
	if !ok {
		return dflt
	}
	if c, ok := v.(ElemConst); ok {
		if i, ok := c.Value.(ConstInt); ok {
			return i != 0
		}
	}
	return dflt
}

// Int returns the named int element, or dflt when absent.
func (a Annotation) Int(name string, dflt int32) int32 {
	v, ok := a.Element(name)
	if !ok {
		return dflt
	}
	if c, ok := v.(ElemConst); ok {
		if i, ok := c.Value.(ConstInt); ok {
			return int32(i)
		}
	}
	return dflt
}

// String returns the named string element, or dflt when absent.
func (a Annotation) String(name, dflt string) string {
	v, ok := a.Element(name)
	if !ok {
		return dflt
	}
	if c, ok := v.(ElemConst); ok {
		if s, ok := c.Value.(ConstString); ok {
			return string(s)
		}
	}
	return dflt
}

// Class returns the named class element's descriptor, or dflt when absent.
func (a Annotation) Class(name, dflt string) string {
	v, ok := a.Element(name)
	if !ok {
		return dflt
	}
	if c, ok := v.(ElemClass); ok {
		return c.Descriptor
	}
	return dflt
}

// Annotations returns the method's runtime-visible annotations, or nil when
// the attribute is absent.
func (m *MethodInfo) Annotations(pool *ConstantPool) ([]Annotation, error) {
	data := findAttribute(m.Attributes, "RuntimeVisibleAnnotations")
	if data == nil {
		return nil, nil
	}
	return DecodeAnnotations(pool, data)
}

// ParameterAnnotations returns the method's runtime-visible parameter
// annotations, one list per declared parameter, or nil when absent.
func (m *MethodInfo) ParameterAnnotations(pool *ConstantPool) ([][]Annotation, error) {
	data := findAttribute(m.Attributes, "RuntimeVisibleParameterAnnotations")
	if data == nil {
		return nil, nil
	}
	return DecodeParameterAnnotations(pool, data)
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// DecodeAnnotations parses a RuntimeVisibleAnnotations attribute payload.
func DecodeAnnotations(pool *ConstantPool, data []byte) ([]Annotation, error) {
	r := &byteReader{data: data}
	anns, err := decodeAnnotationList(pool, r)
	if err != nil {
		return nil, err
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadAnnotation, err)
	}
	return anns, nil
}

// DecodeParameterAnnotations parses a RuntimeVisibleParameterAnnotations
// attribute payload into one annotation list per declared parameter.
func DecodeParameterAnnotations(pool *ConstantPool, data []byte) ([][]Annotation, error) {
	r := &byteReader{data: data}
	count := int(r.u1())
	out := make([][]Annotation, 0, count)
	for i := 0; i < count; i++ {
		anns, err := decodeAnnotationList(pool, r)
		if err != nil {
			return nil, err
		}
		out = append(out, anns)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadAnnotation, err)
	}
	return out, nil
}

func decodeAnnotationList(pool *ConstantPool, r *byteReader) ([]Annotation, error) {
	count := int(r.u2())
	var anns []Annotation
	for i := 0; i < count; i++ {
		a, err := decodeAnnotation(pool, r)
		if err != nil {
			return nil, err
		}
		anns = append(anns, a)
	}
	return anns, nil
}

func decodeAnnotation(pool *ConstantPool, r *byteReader) (Annotation, error) {
	typeDesc, err := pool.Utf8(r.u2())
	if err != nil {
		return Annotation{}, fmt.Errorf("%w: %v", ErrBadAnnotation, err)
	}
	a := Annotation{Type: typeDesc}
	pairs := int(r.u2())
	for i := 0; i < pairs; i++ {
		name, err := pool.Utf8(r.u2())
		if err != nil {
			return Annotation{}, fmt.Errorf("%w: %v", ErrBadAnnotation, err)
		}
		v, err := decodeElementValue(pool, r)
		if err != nil {
			return Annotation{}, err
		}
		a.Elements = append(a.Elements, AnnotationElement{Name: name, Value: v})
	}
	return a, nil
}

func decodeElementValue(pool *ConstantPool, r *byteReader) (ElementValue, error) {
	tag := r.u1()
	switch tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		c, err := pool.Loadable(r.u2())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadAnnotation, err)
		}
		return ElemConst{Tag: tag, Value: c}, nil
	case 's':
		s, err := pool.Utf8(r.u2())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadAnnotation, err)
		}
		return ElemConst{Tag: tag, Value: ConstString(s)}, nil
	case 'e':
		typeDesc, err := pool.Utf8(r.u2())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadAnnotation, err)
		}
		constName, err := pool.Utf8(r.u2())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadAnnotation, err)
		}
		return ElemEnum{TypeDescriptor: typeDesc, ConstName: constName}, nil
	case 'c':
		desc, err := pool.Utf8(r.u2())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadAnnotation, err)
		}
		return ElemClass{Descriptor: desc}, nil
	case '@':
		a, err := decodeAnnotation(pool, r)
		if err != nil {
			return nil, err
		}
		return ElemAnnotation{Annotation: a}, nil
	case '[':
		count := int(r.u2())
		arr := ElemArray{}
		for i := 0; i < count; i++ {
			v, err := decodeElementValue(pool, r)
			if err != nil {
				return nil, err
			}
			arr.Values = append(arr.Values, v)
		}
		return arr, nil
	}
	return nil, fmt.Errorf("%w: element tag %q", ErrBadAnnotation, tag)
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// EncodeAnnotations builds a RuntimeVisibleAnnotations attribute payload,
// interning referenced constants into pool.
func EncodeAnnotations(pool *ConstantPool, anns []Annotation) ([]byte, error) {
	var buf []byte
	buf = appendU2(buf, uint16(len(anns)))
	for _, a := range anns {
		var err error
		if buf, err = encodeAnnotation(pool, buf, a); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// EncodeParameterAnnotations builds a RuntimeVisibleParameterAnnotations
// attribute payload.
func EncodeParameterAnnotations(pool *ConstantPool, params [][]Annotation) ([]byte, error) {
	var buf []byte
	buf = append(buf, byte(len(params)))
	for _, anns := range params {
		buf = appendU2(buf, uint16(len(anns)))
		for _, a := range anns {
			var err error
			if buf, err = encodeAnnotation(pool, buf, a); err != nil {
				return nil, err
			}
		}
	}
	return buf, nil
}

func encodeAnnotation(pool *ConstantPool, buf []byte, a Annotation) ([]byte, error) {
	typeIdx, err := pool.Utf8Index(a.Type)
	if err != nil {
		return nil, err
	}
	buf = appendU2(buf, typeIdx)
	buf = appendU2(buf, uint16(len(a.Elements)))
	for _, e := range a.Elements {
		nameIdx, err := pool.Utf8Index(e.Name)
		if err != nil {
			return nil, err
		}
		buf = appendU2(buf, nameIdx)
		if buf, err = encodeElementValue(pool, buf, e.Value); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func encodeElementValue(pool *ConstantPool, buf []byte, v ElementValue) ([]byte, error) {
	switch ev := v.(type) {
	case ElemConst:
		buf = append(buf, ev.Tag)
		var idx uint16
		var err error
		switch c := ev.Value.(type) {
		case ConstInt:
			idx, err = pool.IntegerIndex(int32(c))
		case ConstFloat:
			idx, err = pool.FloatIndex(float32(c))
		case ConstLong:
			idx, err = pool.LongIndex(int64(c))
		case ConstDouble:
			idx, err = pool.DoubleIndex(float64(c))
		case ConstString:
			idx, err = pool.Utf8Index(string(c))
		default:
			return nil, fmt.Errorf("%w: constant %T under tag %q", ErrBadAnnotation, ev.Value, ev.Tag)
		}
		if err != nil {
			return nil, err
		}
		return appendU2(buf, idx), nil
	case ElemEnum:
		typeIdx, err := pool.Utf8Index(ev.TypeDescriptor)
		if err != nil {
			return nil, err
		}
		nameIdx, err := pool.Utf8Index(ev.ConstName)
		if err != nil {
			return nil, err
		}
		buf = append(buf, 'e')
		buf = appendU2(buf, typeIdx)
		return appendU2(buf, nameIdx), nil
	case ElemClass:
		idx, err := pool.Utf8Index(ev.Descriptor)
		if err != nil {
			return nil, err
		}
		buf = append(buf, 'c')
		return appendU2(buf, idx), nil
	case ElemAnnotation:
		buf = append(buf, '@')
		return encodeAnnotation(pool, buf, ev.Annotation)
	case ElemArray:
		buf = append(buf, '[')
		buf = appendU2(buf, uint16(len(ev.Values)))
		for _, inner := range ev.Values {
			var err error
			if buf, err = encodeElementValue(pool, buf, inner); err != nil {
				return nil, err
			}
		}
		return buf, nil
	}
	return nil, fmt.Errorf("%w: element value %T", ErrBadAnnotation, v)
}
