package bytecode

import "fmt"

// Opcode is a JVM instruction opcode.
type Opcode byte

const (
	// ========================================================================
	// Constants (0x00-0x14)
	// ========================================================================

	OpNop        Opcode = 0x00
	OpAconstNull Opcode = 0x01
	OpIconstM1   Opcode = 0x02
	OpIconst0    Opcode = 0x03
	OpIconst1    Opcode = 0x04
	OpIconst2    Opcode = 0x05
	OpIconst3    Opcode = 0x06
	OpIconst4    Opcode = 0x07
	OpIconst5    Opcode = 0x08
	OpLconst0    Opcode = 0x09
	OpLconst1    Opcode = 0x0A
	OpFconst0    Opcode = 0x0B
	OpFconst1    Opcode = 0x0C
	OpFconst2    Opcode = 0x0D
	OpDconst0    Opcode = 0x0E
	OpDconst1    Opcode = 0x0F
	OpBipush     Opcode = 0x10 // bipush <s1>
	OpSipush     Opcode = 0x11 // sipush <s2>
	OpLdc        Opcode = 0x12 // ldc <cp:u1>
	OpLdcW       Opcode = 0x13 // ldc_w <cp:u2>
	OpLdc2W      Opcode = 0x14 // ldc2_w <cp:u2>

	// ========================================================================
	// Loads (0x15-0x35)
	// ========================================================================

	OpIload  Opcode = 0x15 // iload <slot:u1>
	OpLload  Opcode = 0x16
	OpFload  Opcode = 0x17
	OpDload  Opcode = 0x18
	OpAload  Opcode = 0x19
	OpIload0 Opcode = 0x1A // 0x1A-0x2D: <t>load_<n>, four per type
	OpAload3 Opcode = 0x2D
	OpIaload Opcode = 0x2E
	OpLaload Opcode = 0x2F
	OpFaload Opcode = 0x30
	OpDaload Opcode = 0x31
	OpAaload Opcode = 0x32
	OpBaload Opcode = 0x33
	OpCaload Opcode = 0x34
	OpSaload Opcode = 0x35

	// ========================================================================
	// Stores (0x36-0x56)
	// ========================================================================

	OpIstore  Opcode = 0x36 // istore <slot:u1>
	OpLstore  Opcode = 0x37
	OpFstore  Opcode = 0x38
	OpDstore  Opcode = 0x39
	OpAstore  Opcode = 0x3A
	OpIstore0 Opcode = 0x3B // 0x3B-0x4E: <t>store_<n>, four per type
	OpAstore3 Opcode = 0x4E
	OpIastore Opcode = 0x4F
	OpLastore Opcode = 0x50
	OpFastore Opcode = 0x51
	OpDastore Opcode = 0x52
	OpAastore Opcode = 0x53
	OpBastore Opcode = 0x54
	OpCastore Opcode = 0x55
	OpSastore Opcode = 0x56

	// ========================================================================
	// Stack (0x57-0x5F)
	// ========================================================================

	OpPop    Opcode = 0x57
	OpPop2   Opcode = 0x58
	OpDup    Opcode = 0x59
	OpDupX1  Opcode = 0x5A
	OpDupX2  Opcode = 0x5B
	OpDup2   Opcode = 0x5C
	OpDup2X1 Opcode = 0x5D
	OpDup2X2 Opcode = 0x5E
	OpSwap   Opcode = 0x5F

	// ========================================================================
	// Arithmetic and conversions (0x60-0x98)
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
	OpFmul  Opcode = 0x6A
	OpDmul  Opcode = 0x6B
	OpIdiv  Opcode = 0x6C
	OpLdiv  Opcode = 0x6D
	OpFdiv  Opcode = 0x6E
	OpDdiv  Opcode = 0x6F
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
	OpIshr  Opcode = 0x7A
	OpLshr  Opcode = 0x7B
	OpIushr Opcode = 0x7C
	OpLushr Opcode = 0x7D
	OpIand  Opcode = 0x7E
	OpLand  Opcode = 0x7F
	OpIor   Opcode = 0x80
	OpLor   Opcode = 0x81
	OpIxor  Opcode = 0x82
	OpLxor  Opcode = 0x83
	OpIinc  Opcode = 0x84 // iinc <slot:u1> <delta:s1>
	OpI2l   Opcode = 0x85
	OpI2f   Opcode = 0x86
	OpI2d   Opcode = 0x87
	OpL2i   Opcode = 0x88
	OpL2f   Opcode = 0x89
	OpL2d   Opcode = 0x8A
	OpF2i   Opcode = 0x8B
	OpF2l   Opcode = 0x8C
	OpF2d   Opcode = 0x8D
	OpD2i   Opcode = 0x8E
	OpD2l   Opcode = 0x8F
	OpD2f   Opcode = 0x90
	OpI2b   Opcode = 0x91
	OpI2c   Opcode = 0x92
	OpI2s   Opcode = 0x93
	OpLcmp  Opcode = 0x94
	OpFcmpl Opcode = 0x95
	OpFcmpg Opcode = 0x96
	OpDcmpl Opcode = 0x97
	OpDcmpg Opcode = 0x98

	// ========================================================================
	// Control flow (0x99-0xB1)
	// ========================================================================

	OpIfeq         Opcode = 0x99 // if<cond> <offset:s2>
	OpIfne         Opcode = 0x9A
	OpIflt         Opcode = 0x9B
	OpIfge         Opcode = 0x9C
	OpIfgt         Opcode = 0x9D
	OpIfle         Opcode = 0x9E
	OpIfIcmpeq     Opcode = 0x9F
	OpIfIcmpne     Opcode = 0xA0
	OpIfIcmplt     Opcode = 0xA1
	OpIfIcmpge     Opcode = 0xA2
	OpIfIcmpgt     Opcode = 0xA3
	OpIfIcmple     Opcode = 0xA4
	OpIfAcmpeq     Opcode = 0xA5
	OpIfAcmpne     Opcode = 0xA6
	OpGoto         Opcode = 0xA7
	OpJsr          Opcode = 0xA8
	OpRet          Opcode = 0xA9 // ret <slot:u1>
	OpTableswitch  Opcode = 0xAA
	OpLookupswitch Opcode = 0xAB
	OpIreturn      Opcode = 0xAC
	OpLreturn      Opcode = 0xAD
	OpFreturn      Opcode = 0xAE
	OpDreturn      Opcode = 0xAF
	OpAreturn      Opcode = 0xB0
	OpReturn       Opcode = 0xB1

	// ========================================================================
	// References (0xB2-0xC9)
	// ========================================================================

	OpGetstatic       Opcode = 0xB2 // <cp:u2>
	OpPutstatic       Opcode = 0xB3
	OpGetfield        Opcode = 0xB4
	OpPutfield        Opcode = 0xB5
	OpInvokevirtual   Opcode = 0xB6
	OpInvokespecial   Opcode = 0xB7
	OpInvokestatic    Opcode = 0xB8
	OpInvokeinterface Opcode = 0xB9 // <cp:u2> <count:u1> 0
	OpInvokedynamic   Opcode = 0xBA // <cp:u2> 0 0
	OpNew             Opcode = 0xBB
	OpNewarray        Opcode = 0xBC // <atype:u1>
	OpAnewarray       Opcode = 0xBD
	OpArraylength     Opcode = 0xBE
	OpAthrow          Opcode = 0xBF
	OpCheckcast       Opcode = 0xC0
	OpInstanceof      Opcode = 0xC1
	OpMonitorenter    Opcode = 0xC2
	OpMonitorexit     Opcode = 0xC3
	OpWide            Opcode = 0xC4
	OpMultianewarray  Opcode = 0xC5 // <cp:u2> <dims:u1>
	OpIfnull          Opcode = 0xC6
	OpIfnonnull       Opcode = 0xC7
	OpGotoW           Opcode = 0xC8 // <offset:s4>
	OpJsrW            Opcode = 0xC9
)

// Format describes the operand layout that follows an opcode.
type Format uint8

const (
	FmtNone          Format = iota // no operands
	FmtByte                        // s1 immediate
	FmtShort                       // s2 immediate
	FmtLocal                       // u1 local slot (u2 under wide)
	FmtImplicitLocal               // slot encoded in the opcode
	FmtConstByte                   // u1 constant pool index
	FmtConst                       // u2 constant pool index
	FmtIinc                        // u1 slot, s1 delta (u2, s2 under wide)
	FmtBranch                      // s2 offset
	FmtBranchWide                  // s4 offset
	FmtTableSwitch
	FmtLookupSwitch
	FmtInvokeInterface // u2 index, u1 count, u1 zero
	FmtInvokeDynamic   // u2 index, u2 zero
	FmtNewArray        // u1 array type
	FmtMultiANewArray  // u2 index, u1 dimensions
	FmtWide
)

// Kind is the closed set of instruction categories the weaver switches on.
type Kind uint8

const (
	KindOther    Kind = iota // copied through unchanged
	KindReturn               // ireturn .. return
	KindThrow                // athrow
	KindLocal                // load, store, iinc, ret
	KindJump                 // conditional and unconditional branches, switches
	KindLabel                // pseudo: branch target
	KindTryCatch             // pseudo: exception table row
	KindMetadata             // pseudo: debug and structural markers
)

func (k Kind) String() string {
	switch k {
	case KindOther:
		return "other"
	case KindReturn:
		return "return"
	case KindThrow:
		return "throw"
	case KindLocal:
		return "local"
	case KindJump:
		return "jump"
	case KindLabel:
		return "label"
	case KindTryCatch:
		return "try-catch"
	case KindMetadata:
		return "metadata"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// OpcodeInfo provides metadata about each opcode.
type OpcodeInfo struct {
	Name   string
	Format Format
	Kind   Kind
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{}

func def(op Opcode, name string, f Format) {
	k := KindOther
	switch {
	case op >= OpIreturn && op <= OpReturn:
		k = KindReturn
	case op == OpAthrow:
		k = KindThrow
	case f == FmtLocal, f == FmtImplicitLocal, f == FmtIinc:
		k = KindLocal
	case f == FmtBranch, f == FmtBranchWide, f == FmtTableSwitch, f == FmtLookupSwitch:
		k = KindJump
	}
	opcodeInfoTable[op] = OpcodeInfo{Name: name, Format: f, Kind: k}
}

func init() {
	simple := []string{
		"nop", "aconst_null", "iconst_m1", "iconst_0", "iconst_1", "iconst_2",
		"iconst_3", "iconst_4", "iconst_5", "lconst_0", "lconst_1", "fconst_0",
		"fconst_1", "fconst_2", "dconst_0", "dconst_1",
	}
	for i, name := range simple {
		def(Opcode(i), name, FmtNone)
	}
	def(OpBipush, "bipush", FmtByte)
	def(OpSipush, "sipush", FmtShort)
	def(OpLdc, "ldc", FmtConstByte)
	def(OpLdcW, "ldc_w", FmtConst)
	def(OpLdc2W, "ldc2_w", FmtConst)

	types := "ilfda"
	for i, t := range types {
		def(OpIload+Opcode(i), string(t)+"load", FmtLocal)
		def(OpIstore+Opcode(i), string(t)+"store", FmtLocal)
		for n := 0; n < 4; n++ {
			def(OpIload0+Opcode(i*4+n), fmt.Sprintf("%cload_%d", t, n), FmtImplicitLocal)
			def(OpIstore0+Opcode(i*4+n), fmt.Sprintf("%cstore_%d", t, n), FmtImplicitLocal)
		}
	}
	for i, t := range "ilfdabcs" {
		def(OpIaload+Opcode(i), string(t)+"aload", FmtNone)
		def(OpIastore+Opcode(i), string(t)+"astore", FmtNone)
	}

	for op, name := range map[Opcode]string{
		OpPop: "pop", OpPop2: "pop2", OpDup: "dup", OpDupX1: "dup_x1", OpDupX2: "dup_x2",
		OpDup2: "dup2", OpDup2X1: "dup2_x1", OpDup2X2: "dup2_x2", OpSwap: "swap",
	} {
		def(op, name, FmtNone)
	}

	arith := []string{"add", "sub", "mul", "div", "rem", "neg"}
	for i, a := range arith {
		for j, t := range "ilfd" {
			def(OpIadd+Opcode(i*4+j), string(t)+a, FmtNone)
		}
	}
	bits := []string{"shl", "shr", "ushr", "and", "or", "xor"}
	for i, b := range bits {
		for j, t := range "il" {
			def(OpIshl+Opcode(i*2+j), string(t)+b, FmtNone)
		}
	}
	def(OpIinc, "iinc", FmtIinc)
	conv := []string{
		"i2l", "i2f", "i2d", "l2i", "l2f", "l2d", "f2i", "f2l", "f2d",
		"d2i", "d2l", "d2f", "i2b", "i2c", "i2s", "lcmp", "fcmpl", "fcmpg",
		"dcmpl", "dcmpg",
	}
	for i, name := range conv {
		def(OpI2l+Opcode(i), name, FmtNone)
	}

	branches := []string{
		"ifeq", "ifne", "iflt", "ifge", "ifgt", "ifle", "if_icmpeq", "if_icmpne",
		"if_icmplt", "if_icmpge", "if_icmpgt", "if_icmple", "if_acmpeq", "if_acmpne",
		"goto", "jsr",
	}
	for i, name := range branches {
		def(OpIfeq+Opcode(i), name, FmtBranch)
	}
	def(OpRet, "ret", FmtLocal)
	def(OpTableswitch, "tableswitch", FmtTableSwitch)
	def(OpLookupswitch, "lookupswitch", FmtLookupSwitch)
	for i, name := range []string{"ireturn", "lreturn", "freturn", "dreturn", "areturn", "return"} {
		def(OpIreturn+Opcode(i), name, FmtNone)
	}

	for op, name := range map[Opcode]string{
		OpGetstatic: "getstatic", OpPutstatic: "putstatic", OpGetfield: "getfield",
		OpPutfield: "putfield", OpInvokevirtual: "invokevirtual",
		OpInvokespecial: "invokespecial", OpInvokestatic: "invokestatic",
		OpNew: "new", OpAnewarray: "anewarray", OpCheckcast: "checkcast",
		OpInstanceof: "instanceof",
	} {
		def(op, name, FmtConst)
	}
	def(OpInvokeinterface, "invokeinterface", FmtInvokeInterface)
	def(OpInvokedynamic, "invokedynamic", FmtInvokeDynamic)
	def(OpNewarray, "newarray", FmtNewArray)
	def(OpArraylength, "arraylength", FmtNone)
	def(OpAthrow, "athrow", FmtNone)
	def(OpMonitorenter, "monitorenter", FmtNone)
	def(OpMonitorexit, "monitorexit", FmtNone)
	def(OpWide, "wide", FmtWide)
	def(OpMultianewarray, "multianewarray", FmtMultiANewArray)
	def(OpIfnull, "ifnull", FmtBranch)
	def(OpIfnonnull, "ifnonnull", FmtBranch)
	def(OpGotoW, "goto_w", FmtBranchWide)
	def(OpJsrW, "jsr_w", FmtBranchWide)
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not defined.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// Valid reports whether op is a defined JVM opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the mnemonic of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Format returns the operand layout of an opcode.
func (op Opcode) Format() Format {
	return GetOpcodeInfo(op).Format
}

// Kind returns the category of an opcode.
func (op Opcode) Kind() Kind {
	return GetOpcodeInfo(op).Kind
}

// IsReturn reports whether op is one of the six return instructions.
func (op Opcode) IsReturn() bool {
	return op >= OpIreturn && op <= OpReturn
}

// IsConditional reports whether op is a two-way branch.
func (op Opcode) IsConditional() bool {
	return (op >= OpIfeq && op <= OpIfAcmpne) || op == OpIfnull || op == OpIfnonnull
}

// Width returns the slot width a load, store or return transfers: 2 for
// long and double, 0 for void return, 1 otherwise. Opcodes that transfer no
// local or return value report 1.
func (op Opcode) Width() int {
	switch op {
	case OpLload, OpDload, OpLstore, OpDstore, OpLreturn, OpDreturn:
		return 2
	case OpReturn:
		return 0
	}
	return 1
}

// implicitLocal expands a <t>load_<n> or <t>store_<n> opcode into its
// explicit form and slot.
func (op Opcode) implicitLocal() (Opcode, int, bool) {
	switch {
	case op >= OpIload0 && op <= OpAload3:
		n := int(op - OpIload0)
		return OpIload + Opcode(n/4), n % 4, true
	case op >= OpIstore0 && op <= OpAstore3:
		n := int(op - OpIstore0)
		return OpIstore + Opcode(n/4), n % 4, true
	}
	return op, 0, false
}

// shortLocal returns the implicit-slot form of a load or store when one
// exists for slot.
func shortLocal(op Opcode, slot int) (Opcode, bool) {
	if slot < 0 || slot > 3 {
		return op, false
	}
	switch {
	case op >= OpIload && op <= OpAload:
		return OpIload0 + Opcode(int(op-OpIload)*4+slot), true
	case op >= OpIstore && op <= OpAstore:
		return OpIstore0 + Opcode(int(op-OpIstore)*4+slot), true
	}
	return op, false
}

// LoadFor returns the load opcode for a value of the given field
// descriptor type.
func LoadFor(desc string) Opcode {
	return OpIload + typeOffset(desc)
}

// StoreFor returns the store opcode for a value of the given type.
func StoreFor(desc string) Opcode {
	return OpIstore + typeOffset(desc)
}

// ReturnFor returns the return opcode for a method returning desc.
func ReturnFor(desc string) Opcode {
	if desc == "V" {
		return OpReturn
	}
	return OpIreturn + typeOffset(desc)
}

func typeOffset(desc string) Opcode {
	if desc == "" {
		return 4
	}
	switch desc[0] {
	case 'J':
		return 1
	case 'F':
		return 2
	case 'D':
		return 3
	case 'L', '[':
		return 4
	default:
		return 0
	}
}

// AllOpcodes returns every defined opcode.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		ops = append(ops, op)
	}
	return ops
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
