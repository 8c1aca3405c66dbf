package classfile

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadDescriptor is returned for malformed field or method descriptors.
var ErrBadDescriptor = errors.New("malformed descriptor")

// Category is the verification category of a type. The small integral types
// (boolean, byte, short, char, int) collapse to one category; long, float,
// double and references are distinct.
type Category uint8

const (
	CatVoid Category = iota
	CatInt
	CatFloat
	CatLong
	CatDouble
	CatReference
)

// String returns a human-readable name for Category.
func (c Category) String() string {
	switch c {
	case CatVoid:
		return "void"
	case CatInt:
		return "int"
	case CatFloat:
		return "float"
	case CatLong:
		return "long"
	case CatDouble:
		return "double"
	case CatReference:
		return "reference"
	default:
		return fmt.Sprintf("Category(%d)", uint8(c))
	}
}

// TypeDesc is a parsed field descriptor: the raw descriptor string plus its
// verification category.
type TypeDesc struct {
	Descriptor string
	Category   Category
}

// Void is the descriptor of the void pseudo-type.
var Void = TypeDesc{Descriptor: "V", Category: CatVoid}

// ObjectType is java/lang/Object, the top of the reference hierarchy.
var ObjectType = TypeDesc{Descriptor: "Ljava/lang/Object;", Category: CatReference}

// ThrowableType is java/lang/Throwable.
var ThrowableType = TypeDesc{Descriptor: "Ljava/lang/Throwable;", Category: CatReference}

// ParseTypeDesc parses a single field descriptor such as "I", "[J" or
// "Ljava/lang/String;".
func ParseTypeDesc(s string) (TypeDesc, error) {
	t, rest, err := parseTypeDesc(s)
	if err != nil {
		return TypeDesc{}, err
	}
	if rest != "" {
		return TypeDesc{}, fmt.Errorf("%w: trailing %q in %q", ErrBadDescriptor, rest, s)
	}
	return t, nil
}

func parseTypeDesc(s string) (TypeDesc, string, error) {
	if s == "" {
		return TypeDesc{}, "", fmt.Errorf("%w: empty type", ErrBadDescriptor)
	}
	switch s[0] {
	case 'V':
		return Void, s[1:], nil
	case 'Z', 'B', 'C', 'S', 'I':
		return TypeDesc{Descriptor: s[:1], Category: CatInt}, s[1:], nil
	case 'F':
		return TypeDesc{Descriptor: "F", Category: CatFloat}, s[1:], nil
	case 'J':
		return TypeDesc{Descriptor: "J", Category: CatLong}, s[1:], nil
	case 'D':
		return TypeDesc{Descriptor: "D", Category: CatDouble}, s[1:], nil
	case 'L':
		end := strings.IndexByte(s, ';')
		if end < 0 {
			return TypeDesc{}, "", fmt.Errorf("%w: unterminated class type in %q", ErrBadDescriptor, s)
		}
		return TypeDesc{Descriptor: s[:end+1], Category: CatReference}, s[end+1:], nil
	case '[':
		elem, rest, err := parseTypeDesc(s[1:])
		if err != nil {
			return TypeDesc{}, "", err
		}
		if elem.Category == CatVoid {
			return TypeDesc{}, "", fmt.Errorf("%w: array of void", ErrBadDescriptor)
		}
		return TypeDesc{Descriptor: s[:len(s)-len(rest)], Category: CatReference}, rest, nil
	}
	return TypeDesc{}, "", fmt.Errorf("%w: unexpected %q", ErrBadDescriptor, s[0])
}

// SlotWidth returns the number of local variable slots a value of this type
// occupies: 2 for long and double, 0 for void, 1 otherwise.
func (t TypeDesc) SlotWidth() int {
	switch t.Category {
	case CatVoid:
		return 0
	case CatLong, CatDouble:
		return 2
	default:
		return 1
	}
}

// IsVoid reports whether the type is void.
func (t TypeDesc) IsVoid() bool { return t.Category == CatVoid }

// IsReference reports whether the type is a class or array type.
func (t TypeDesc) IsReference() bool { return t.Category == CatReference }

// InternalName returns the internal form used in constant pool Class entries:
// the bare internal name for class types, the descriptor itself for arrays.
// It returns "" for primitives and void.
func (t TypeDesc) InternalName() string {
	if t.Category != CatReference {
		return ""
	}
	if strings.HasPrefix(t.Descriptor, "L") {
		return t.Descriptor[1 : len(t.Descriptor)-1]
	}
	return t.Descriptor
}

// Verification returns the verification type that describes a defined local
// or stack entry of this type. It panics for void; callers must filter.
func (t TypeDesc) Verification() VerificationType {
	switch t.Category {
	case CatInt:
		return VerificationType{Tag: VTInteger}
	case CatFloat:
		return VerificationType{Tag: VTFloat}
	case CatLong:
		return VerificationType{Tag: VTLong}
	case CatDouble:
		return VerificationType{Tag: VTDouble}
	case CatReference:
		return VerificationType{Tag: VTObject, ClassName: t.InternalName()}
	}
	panic("classfile: no verification type for void")
}

// AssignableTo reports whether a value of this type can be assigned to a
// location of the target type without conversion, judged from descriptors
// alone: identical types are assignable, and any reference type is assignable
// to java/lang/Object. Richer hierarchy knowledge would need the class path,
// which the weaver does not load.
func (t TypeDesc) AssignableTo(target TypeDesc) bool {
	if t.Descriptor == target.Descriptor {
		return true
	}
	return t.Category == CatReference && target.Descriptor == ObjectType.Descriptor
}

// ObjectDesc builds the TypeDesc of a class type from its internal name.
func ObjectDesc(internalName string) TypeDesc {
	if strings.HasPrefix(internalName, "[") {
		return TypeDesc{Descriptor: internalName, Category: CatReference}
	}
	return TypeDesc{Descriptor: "L" + internalName + ";", Category: CatReference}
}

// MethodDesc is a parsed method descriptor.
type MethodDesc struct {
	Raw    string
	Params []TypeDesc
	Return TypeDesc
}

// ParseMethodDesc parses a method descriptor such as "(IJ)Ljava/lang/String;".
func ParseMethodDesc(s string) (MethodDesc, error) {
	if s == "" || s[0] != '(' {
		return MethodDesc{}, fmt.Errorf("%w: method descriptor %q", ErrBadDescriptor, s)
	}
	rest := s[1:]
	var params []TypeDesc
	for rest != "" && rest[0] != ')' {
		t, r, err := parseTypeDesc(rest)
		if err != nil {
			return MethodDesc{}, fmt.Errorf("%w in %q", err, s)
		}
		if t.IsVoid() {
			return MethodDesc{}, fmt.Errorf("%w: void parameter in %q", ErrBadDescriptor, s)
		}
		params = append(params, t)
		rest = r
	}
	if rest == "" {
		return MethodDesc{}, fmt.Errorf("%w: unterminated parameter list in %q", ErrBadDescriptor, s)
	}
	ret, err := ParseTypeDesc(rest[1:])
	if err != nil {
		return MethodDesc{}, fmt.Errorf("%w in %q", err, s)
	}
	return MethodDesc{Raw: s, Params: params, Return: ret}, nil
}

// ArgSlotWidth returns the total number of local slots occupied by the
// parameters, not counting any receiver.
func (d MethodDesc) ArgSlotWidth() int {
	n := 0
	for _, p := range d.Params {
		n += p.SlotWidth()
	}
	return n
}

// ParamSlot returns the local slot of parameter index i, given the slot
// offset of the first parameter (0 for static methods, 1 for instance
// methods).
func (d MethodDesc) ParamSlot(i, base int) int {
	slot := base
	for j := 0; j < i; j++ {
		slot += d.Params[j].SlotWidth()
	}
	return slot
}
