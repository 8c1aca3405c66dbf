package classfile

import "fmt"

// ---------------------------------------------------------------------------
// Verification types
// ---------------------------------------------------------------------------

// VerificationTag identifies a StackMapTable verification type.
type VerificationTag uint8

const (
	VTTop               VerificationTag = 0
	VTInteger           VerificationTag = 1
	VTFloat             VerificationTag = 2
	VTDouble            VerificationTag = 3
	VTLong              VerificationTag = 4
	VTNull              VerificationTag = 5
	VTUninitializedThis VerificationTag = 6
	VTObject            VerificationTag = 7
	VTUninitialized     VerificationTag = 8
)

// VerificationType describes the type of one live local variable or stack
// entry at a frame site. Object entries carry the internal class name;
// Uninitialized entries carry the label of the allocating new instruction.
type VerificationType struct {
	Tag       VerificationTag
	ClassName string
	NewSite   *Label
}

// String returns a human-readable form for error messages and disassembly.
func (v VerificationType) String() string {
	switch v.Tag {
	case VTTop:
		return "top"
	case VTInteger:
		return "int"
	case VTFloat:
		return "float"
	case VTDouble:
		return "double"
	case VTLong:
		return "long"
	case VTNull:
		return "null"
	case VTUninitializedThis:
		return "uninitializedThis"
	case VTObject:
		return v.ClassName
	case VTUninitialized:
		return "uninitialized"
	default:
		return fmt.Sprintf("VerificationType(%d)", uint8(v.Tag))
	}
}

// VTObjectOf builds an Object verification type for an internal class name.
func VTObjectOf(internalName string) VerificationType {
	return VerificationType{Tag: VTObject, ClassName: internalName}
}

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

// FrameKind distinguishes the StackMapTable frame encodings surfaced to
// visitors. Full frames carry the complete local and stack lists; the
// compressed kinds are deltas against the previous frame exactly as they
// appear in the class file.
type FrameKind uint8

const (
	// FrameFull carries all locals and the full stack.
	FrameFull FrameKind = iota

	// FrameSame has the same locals as the previous frame and an empty stack.
	FrameSame

	// FrameSame1 has the same locals as the previous frame and exactly one
	// stack entry, carried in Stack[0].
	FrameSame1

	// FrameAppend adds 1-3 locals to the previous frame, carried in Locals.
	FrameAppend

	// FrameChop removes Chopped locals (1-3) from the previous frame.
	FrameChop
)

// String returns a human-readable name for FrameKind.
func (k FrameKind) String() string {
	switch k {
	case FrameFull:
		return "full"
	case FrameSame:
		return "same"
	case FrameSame1:
		return "same1"
	case FrameAppend:
		return "append"
	case FrameChop:
		return "chop"
	default:
		return fmt.Sprintf("FrameKind(%d)", uint8(k))
	}
}

// Frame is one verification frame as visited in code order.
type Frame struct {
	Kind    FrameKind
	Locals  []VerificationType // FrameFull: all locals; FrameAppend: added locals
	Stack   []VerificationType // FrameFull: full stack; FrameSame1: one entry
	Chopped int                // FrameChop only
}

// FullFrame builds a full frame from local and stack lists.
func FullFrame(locals, stack []VerificationType) Frame {
	return Frame{Kind: FrameFull, Locals: locals, Stack: stack}
}
