package advice

import (
	"fmt"

	"github.com/chazu/weft/pkg/classfile"
)

// Method is the metadata the engine needs about one method: identity, parsed
// descriptor, static flag and declaring type. Instances are immutable and
// referenced, never copied back into class structures.
type Method struct {
	Owner      string // internal name of the declaring class
	Name       string
	Descriptor string
	Desc       classfile.MethodDesc
	Static     bool
}

// NewMethod parses the descriptor and builds the metadata value.
func NewMethod(owner, name, descriptor string, static bool) (Method, error) {
	d, err := classfile.ParseMethodDesc(descriptor)
	if err != nil {
		return Method{}, fmt.Errorf("method %s.%s: %w", owner, name, err)
	}
	return Method{Owner: owner, Name: name, Descriptor: descriptor, Desc: d, Static: static}, nil
}

// methodOf builds metadata for a method of a parsed class.
func methodOf(cf *classfile.ClassFile, m *classfile.MethodInfo) (Method, error) {
	return NewMethod(cf.ThisClass, m.Name, m.Descriptor, m.IsStatic())
}

// SlotWidth returns the number of local slots holding the receiver and the
// declared parameters. Everything the engine injects lives at or beyond this
// width.
func (m Method) SlotWidth() int {
	w := m.Desc.ArgSlotWidth()
	if !m.Static {
		w++
	}
	return w
}

// ParamSlot returns the local slot of declared parameter i.
func (m Method) ParamSlot(i int) int {
	base := 0
	if !m.Static {
		base = 1
	}
	return m.Desc.ParamSlot(i, base)
}

// SelfType returns the declaring type as a descriptor.
func (m Method) SelfType() classfile.TypeDesc {
	return classfile.ObjectDesc(m.Owner)
}

// FrameLocals returns the verification types of the receiver (for instance
// methods) and the declared parameters, in slot order. Wide types contribute
// one entry.
func (m Method) FrameLocals() []classfile.VerificationType {
	var locals []classfile.VerificationType
	if !m.Static {
		locals = append(locals, classfile.VTObjectOf(m.Owner))
	}
	for _, p := range m.Desc.Params {
		locals = append(locals, p.Verification())
	}
	return locals
}

func (m Method) String() string {
	return m.Owner + "." + m.Name + m.Descriptor
}
