package classfile

import "fmt"

// Opcode represents a JVM bytecode instruction.
// The constants below cover the full standard instruction set; the reader
// normalizes short forms (iload_0 and friends) to their base opcode, so the
// visitor interface only ever sees base opcodes.
type Opcode byte

const (
	// ========================================================================
	// Constants (0x00-0x14)
	// ========================================================================

	OpNop         Opcode = 0x00
	OpAconstNull  Opcode = 0x01
	OpIconstM1    Opcode = 0x02
	OpIconst0     Opcode = 0x03
	OpIconst1     Opcode = 0x04
	OpIconst2     Opcode = 0x05
	OpIconst3     Opcode = 0x06
	OpIconst4     Opcode = 0x07
	OpIconst5     Opcode = 0x08
	OpLconst0     Opcode = 0x09
	OpLconst1     Opcode = 0x0a
	OpFconst0     Opcode = 0x0b
	OpFconst1     Opcode = 0x0c
	OpFconst2     Opcode = 0x0d
	OpDconst0     Opcode = 0x0e
	OpDconst1     Opcode = 0x0f
	OpBipush      Opcode = 0x10
	OpSipush      Opcode = 0x11
	OpLdc         Opcode = 0x12
	OpLdcW        Opcode = 0x13
	OpLdc2W       Opcode = 0x14

	// ========================================================================
	// Loads (0x15-0x35); 0x1a-0x2d are the short forms
	// ========================================================================

	OpIload  Opcode = 0x15
	OpLload  Opcode = 0x16
	OpFload  Opcode = 0x17
	OpDload  Opcode = 0x18
	OpAload  Opcode = 0x19
	OpIaload Opcode = 0x2e
	OpLaload Opcode = 0x2f
	OpFaload Opcode = 0x30
	OpDaload Opcode = 0x31
	OpAaload Opcode = 0x32
	OpBaload Opcode = 0x33
	OpCaload Opcode = 0x34
	OpSaload Opcode = 0x35

	// ========================================================================
	// Stores (0x36-0x56); 0x3b-0x4e are the short forms
	// ========================================================================

	OpIstore  Opcode = 0x36
	OpLstore  Opcode = 0x37
	OpFstore  Opcode = 0x38
	OpDstore  Opcode = 0x39
	OpAstore  Opcode = 0x3a
	OpIastore Opcode = 0x4f
	OpLastore Opcode = 0x50
	OpFastore Opcode = 0x51
	OpDastore Opcode = 0x52
	OpAastore Opcode = 0x53
	OpBastore Opcode = 0x54
	OpCastore Opcode = 0x55
	OpSastore Opcode = 0x56

	// ========================================================================
	// Stack manipulation (0x57-0x5f)
	// ========================================================================

	OpPop    Opcode = 0x57
	OpPop2   Opcode = 0x58
	OpDup    Opcode = 0x59
	OpDupX1  Opcode = 0x5a
	OpDupX2  Opcode = 0x5b
	OpDup2   Opcode = 0x5c
	OpDup2X1 Opcode = 0x5d
	OpDup2X2 Opcode = 0x5e
	OpSwap   Opcode = 0x5f

	// ========================================================================
	// Arithmetic and logic (0x60-0x84)
	// ========================================================================

	OpIadd  Opcode = 0x60
	OpLadd  Opcode = 0x61
	OpFadd  Opcode = 0x62
	OpDadd  Opcode = 0x63
	OpIsub  Opcode = 0x64
	OpLsub  Opcode = 0x65
	OpFsub  Opcode = 0x66
	OpDsub  Opcode = 0x67
	OpImul  Opcode = 0x68
	OpLmul  Opcode = 0x69
	OpFmul  Opcode = 0x6a
	OpDmul  Opcode = 0x6b
	OpIdiv  Opcode = 0x6c
	OpLdiv  Opcode = 0x6d
	OpFdiv  Opcode = 0x6e
	OpDdiv  Opcode = 0x6f
	OpIrem  Opcode = 0x70
	OpLrem  Opcode = 0x71
	OpFrem  Opcode = 0x72
	OpDrem  Opcode = 0x73
	OpIneg  Opcode = 0x74
	OpLneg  Opcode = 0x75
	OpFneg  Opcode = 0x76
	OpDneg  Opcode = 0x77
	OpIshl  Opcode = 0x78
	OpLshl  Opcode = 0x79
	OpIshr  Opcode = 0x7a
	OpLshr  Opcode = 0x7b
	OpIushr Opcode = 0x7c
	OpLushr Opcode = 0x7d
	OpIand  Opcode = 0x7e
	OpLand  Opcode = 0x7f
	OpIor   Opcode = 0x80
	OpLor   Opcode = 0x81
	OpIxor  Opcode = 0x82
	OpLxor  Opcode = 0x83
	OpIinc  Opcode = 0x84

	// ========================================================================
	// Conversions (0x85-0x93)
	// ========================================================================

	OpI2l Opcode = 0x85
	OpI2f Opcode = 0x86
	OpI2d Opcode = 0x87
	OpL2i Opcode = 0x88
	OpL2f Opcode = 0x89
	OpL2d Opcode = 0x8a
	OpF2i Opcode = 0x8b
	OpF2l Opcode = 0x8c
	OpF2d Opcode = 0x8d
	OpD2i Opcode = 0x8e
	OpD2l Opcode = 0x8f
	OpD2f Opcode = 0x90
	OpI2b Opcode = 0x91
	OpI2c Opcode = 0x92
	OpI2s Opcode = 0x93

	// ========================================================================
	// Comparisons and branches (0x94-0xa8)
	// ========================================================================

	OpLcmp      Opcode = 0x94
	OpFcmpl     Opcode = 0x95
	OpFcmpg     Opcode = 0x96
	OpDcmpl     Opcode = 0x97
	OpDcmpg     Opcode = 0x98
	OpIfeq      Opcode = 0x99
	OpIfne      Opcode = 0x9a
	OpIflt      Opcode = 0x9b
	OpIfge      Opcode = 0x9c
	OpIfgt      Opcode = 0x9d
	OpIfle      Opcode = 0x9e
	OpIfIcmpeq  Opcode = 0x9f
	OpIfIcmpne  Opcode = 0xa0
	OpIfIcmplt  Opcode = 0xa1
	OpIfIcmpge  Opcode = 0xa2
	OpIfIcmpgt  Opcode = 0xa3
	OpIfIcmple  Opcode = 0xa4
	OpIfAcmpeq  Opcode = 0xa5
	OpIfAcmpne  Opcode = 0xa6
	OpGoto      Opcode = 0xa7
	OpJsr       Opcode = 0xa8
	OpRet       Opcode = 0xa9

	// ========================================================================
	// Switches and returns (0xaa-0xb1)
	// ========================================================================

	OpTableswitch  Opcode = 0xaa
	OpLookupswitch Opcode = 0xab
	OpIreturn      Opcode = 0xac
	OpLreturn      Opcode = 0xad
	OpFreturn      Opcode = 0xae
	OpDreturn      Opcode = 0xaf
	OpAreturn      Opcode = 0xb0
	OpReturn       Opcode = 0xb1

	// ========================================================================
	// References (0xb2-0xc3)
	// ========================================================================

	OpGetstatic       Opcode = 0xb2
	OpPutstatic       Opcode = 0xb3
	OpGetfield        Opcode = 0xb4
	OpPutfield        Opcode = 0xb5
	OpInvokevirtual   Opcode = 0xb6
	OpInvokespecial   Opcode = 0xb7
	OpInvokestatic    Opcode = 0xb8
	OpInvokeinterface Opcode = 0xb9
	OpInvokedynamic   Opcode = 0xba
	OpNew             Opcode = 0xbb
	OpNewarray        Opcode = 0xbc
	OpAnewarray       Opcode = 0xbd
	OpArraylength     Opcode = 0xbe
	OpAthrow          Opcode = 0xbf
	OpCheckcast       Opcode = 0xc0
	OpInstanceof      Opcode = 0xc1
	OpMonitorenter    Opcode = 0xc2
	OpMonitorexit     Opcode = 0xc3

	// ========================================================================
	// Extended (0xc4-0xc9)
	// ========================================================================

	OpWide           Opcode = 0xc4
	OpMultianewarray Opcode = 0xc5
	OpIfnull         Opcode = 0xc6
	OpIfnonnull      Opcode = 0xc7
	OpGotoW          Opcode = 0xc8
	OpJsrW           Opcode = 0xc9
)

// opNames maps opcodes to their mnemonic for disassembly and error messages.
var opNames = [...]string{
	"nop", "aconst_null", "iconst_m1", "iconst_0", "iconst_1", "iconst_2",
	"iconst_3", "iconst_4", "iconst_5", "lconst_0", "lconst_1", "fconst_0",
	"fconst_1", "fconst_2", "dconst_0", "dconst_1", "bipush", "sipush", "ldc",
	"ldc_w", "ldc2_w", "iload", "lload", "fload", "dload", "aload", "iload_0",
	"iload_1", "iload_2", "iload_3", "lload_0", "lload_1", "lload_2", "lload_3",
	"fload_0", "fload_1", "fload_2", "fload_3", "dload_0", "dload_1", "dload_2",
	"dload_3", "aload_0", "aload_1", "aload_2", "aload_3", "iaload", "laload",
	"faload", "daload", "aaload", "baload", "caload", "saload", "istore",
	"lstore", "fstore", "dstore", "astore", "istore_0", "istore_1", "istore_2",
	"istore_3", "lstore_0", "lstore_1", "lstore_2", "lstore_3", "fstore_0",
	"fstore_1", "fstore_2", "fstore_3", "dstore_0", "dstore_1", "dstore_2",
	"dstore_3", "astore_0", "astore_1", "astore_2", "astore_3", "iastore",
	"lastore", "fastore", "dastore", "aastore", "bastore", "castore", "sastore",
	"pop", "pop2", "dup", "dup_x1", "dup_x2", "dup2", "dup2_x1", "dup2_x2",
	"swap", "iadd", "ladd", "fadd", "dadd", "isub", "lsub", "fsub", "dsub",
	"imul", "lmul", "fmul", "dmul", "idiv", "ldiv", "fdiv", "ddiv", "irem",
	"lrem", "frem", "drem", "ineg", "lneg", "fneg", "dneg", "ishl", "lshl",
	"ishr", "lshr", "iushr", "lushr", "iand", "land", "ior", "lor", "ixor",
	"lxor", "iinc", "i2l", "i2f", "i2d", "l2i", "l2f", "l2d", "f2i", "f2l",
	"f2d", "d2i", "d2l", "d2f", "i2b", "i2c", "i2s", "lcmp", "fcmpl", "fcmpg",
	"dcmpl", "dcmpg", "ifeq", "ifne", "iflt", "ifge", "ifgt", "ifle",
	"if_icmpeq", "if_icmpne", "if_icmplt", "if_icmpge", "if_icmpgt",
	"if_icmple", "if_acmpeq", "if_acmpne", "goto", "jsr", "ret", "tableswitch",
	"lookupswitch", "ireturn", "lreturn", "freturn", "dreturn", "areturn",
	"return", "getstatic", "putstatic", "getfield", "putfield", "invokevirtual",
	"invokespecial", "invokestatic", "invokeinterface", "invokedynamic", "new",
	"newarray", "anewarray", "arraylength", "athrow", "checkcast", "instanceof",
	"monitorenter", "monitorexit", "wide", "multianewarray", "ifnull",
	"ifnonnull", "goto_w", "jsr_w",
}

// String returns the mnemonic for the opcode.
func (op Opcode) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("Opcode(0x%02x)", byte(op))
}

// opLengths holds the fixed byte length of each instruction including the
// opcode byte, or 0 for variable-length instructions (wide, tableswitch,
// lookupswitch) and for opcodes that do not exist.
var opLengths [256]int

func init() {
	for op := 0x00; op <= 0x0f; op++ {
		opLengths[op] = 1
	}
	opLengths[OpBipush] = 2
	opLengths[OpSipush] = 3
	opLengths[OpLdc] = 2
	opLengths[OpLdcW] = 3
	opLengths[OpLdc2W] = 3
	for op := OpIload; op <= OpAload; op++ {
		opLengths[op] = 2
	}
	for op := 0x1a; op <= 0x35; op++ { // short-form loads and array loads
		opLengths[op] = 1
	}
	for op := OpIstore; op <= OpAstore; op++ {
		opLengths[op] = 2
	}
	for op := 0x3b; op <= 0x83; op++ { // short-form stores through lxor
		opLengths[op] = 1
	}
	opLengths[OpIinc] = 3
	for op := OpI2l; op <= OpDcmpg; op++ {
		opLengths[op] = 1
	}
	for op := OpIfeq; op <= OpJsr; op++ {
		opLengths[op] = 3
	}
	opLengths[OpRet] = 2
	for op := OpIreturn; op <= OpReturn; op++ {
		opLengths[op] = 1
	}
	for op := OpGetstatic; op <= OpInvokestatic; op++ {
		opLengths[op] = 3
	}
	opLengths[OpInvokeinterface] = 5
	opLengths[OpInvokedynamic] = 5
	opLengths[OpNew] = 3
	opLengths[OpNewarray] = 2
	opLengths[OpAnewarray] = 3
	opLengths[OpArraylength] = 1
	opLengths[OpAthrow] = 1
	opLengths[OpCheckcast] = 3
	opLengths[OpInstanceof] = 3
	opLengths[OpMonitorenter] = 1
	opLengths[OpMonitorexit] = 1
	opLengths[OpMultianewarray] = 4
	opLengths[OpIfnull] = 3
	opLengths[OpIfnonnull] = 3
	opLengths[OpGotoW] = 5
	opLengths[OpJsrW] = 5
}

// IsReturn reports whether the opcode is one of the return family.
func (op Opcode) IsReturn() bool {
	return op >= OpIreturn && op <= OpReturn
}

// IsStore reports whether the opcode is a base-form local variable store.
func (op Opcode) IsStore() bool {
	return op >= OpIstore && op <= OpAstore
}

// IsLoad reports whether the opcode is a base-form local variable load.
func (op Opcode) IsLoad() bool {
	return op >= OpIload && op <= OpAload
}

// StoreForReturn maps a value-carrying return opcode to the store opcode of
// the same category. It panics on non-value returns; callers filter first.
func StoreForReturn(op Opcode) Opcode {
	switch op {
	case OpIreturn:
		return OpIstore
	case OpLreturn:
		return OpLstore
	case OpFreturn:
		return OpFstore
	case OpDreturn:
		return OpDstore
	case OpAreturn:
		return OpAstore
	}
	panic(fmt.Sprintf("classfile: no store form for %s", op))
}

// LoadForReturn maps a value-carrying return opcode to the load opcode of the
// same category.
func LoadForReturn(op Opcode) Opcode {
	switch op {
	case OpIreturn:
		return OpIload
	case OpLreturn:
		return OpLload
	case OpFreturn:
		return OpFload
	case OpDreturn:
		return OpDload
	case OpAreturn:
		return OpAload
	}
	panic(fmt.Sprintf("classfile: no load form for %s", op))
}

// VarWidth returns the number of local slots touched by a base-form load or
// store opcode: 2 for the long and double forms, 1 otherwise.
func VarWidth(op Opcode) int {
	switch op {
	case OpLload, OpDload, OpLstore, OpDstore:
		return 2
	}
	return 1
}
