package bytecode

import "fmt"

// Meta identifies a metadata pseudo-instruction.
type Meta uint8

const (
	MetaCodeStart         Meta = iota + 1 // start of the method body
	MetaCodeEnd                           // end of the method
	MetaMaxs                              // declared max_stack / max_locals
	MetaLineNumber                        // source line at Label
	MetaFrame                             // StackMapTable frame at this point
	MetaParameter                         // MethodParameters entry
	MetaAnnotationDefault                 // AnnotationDefault attribute
	MetaAttribute                         // any other method or code attribute
	MetaLocalVariable                     // LocalVariable(Type)Table row
)

var metaNames = map[Meta]string{
	MetaCodeStart:         "code-start",
	MetaCodeEnd:           "code-end",
	MetaMaxs:              "maxs",
	MetaLineNumber:        "line",
	MetaFrame:             "frame",
	MetaParameter:         "parameter",
	MetaAnnotationDefault: "annotation-default",
	MetaAttribute:         "attribute",
	MetaLocalVariable:     "local-variable",
}

func (m Meta) String() string {
	if s, ok := metaNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Meta(%d)", uint8(m))
}

// Label marks a position in an instruction stream. Labels are compared by
// identity; a label is placed by exactly one KindLabel instruction.
type Label struct {
	// Name is only used by listings; empty names are numbered in order of
	// placement.
	Name string
}

// Switch holds the operands of tableswitch and lookupswitch. For
// tableswitch Keys is nil and Targets covers Low..Low+len(Targets)-1.
type Switch struct {
	Default *Label
	Low     int32
	Keys    []int32
	Targets []*Label
}

// TryCatch is an exception table row. Type is a Class constant index, or 0
// to catch everything.
type TryCatch struct {
	Start, End, Handler *Label
	Type                uint16
}

// LocalVar is a LocalVariableTable or LocalVariableTypeTable row. Name and
// Descriptor are constant pool indices of the owning class.
type LocalVar struct {
	Start, End *Label
	Name       uint16
	Descriptor uint16
	Slot       int
	Generic    bool
}

// Instruction is one element of a decoded method stream. Real instructions
// carry an Op; pseudo-instructions (labels, try-catch rows, metadata) use
// Kind alone.
//
// Short local forms (iload_0), wide prefixes, ldc_w and the _w branches
// never appear: the decoder folds them into their base opcode and the
// assembler picks the encoding.
type Instruction struct {
	Op   Opcode
	Kind Kind

	Var   int    // local slot
	Inc   int    // iinc delta
	Int   int32  // bipush, sipush, newarray type, invokeinterface count, multianewarray dims
	Const uint16 // constant pool index

	Target *Label  // branch target, or label placed by KindLabel
	Switch *Switch // tableswitch, lookupswitch
	Try    *TryCatch

	Meta      Meta
	Line      int       // MetaLineNumber
	Name      string    // MetaParameter, MetaAttribute
	Access    uint16    // MetaParameter
	Data      []byte    // MetaAttribute, MetaAnnotationDefault
	Local     *LocalVar // MetaLocalVariable
	MaxStack  int       // MetaMaxs
	MaxLocals int       // MetaMaxs
}

// Op returns a real instruction without operands.
func Op(op Opcode) Instruction {
	return Instruction{Op: op, Kind: op.Kind()}
}

// Local returns a load, store or ret against slot.
func Local(op Opcode, slot int) Instruction {
	return Instruction{Op: op, Kind: KindLocal, Var: slot}
}

// Iinc returns an iinc of slot by delta.
func Iinc(slot, delta int) Instruction {
	return Instruction{Op: OpIinc, Kind: KindLocal, Var: slot, Inc: delta}
}

// Push returns bipush, sipush or newarray with an immediate operand.
func Push(op Opcode, v int32) Instruction {
	return Instruction{Op: op, Kind: KindOther, Int: v}
}

// Constant returns an instruction referencing a constant pool entry.
func Constant(op Opcode, index uint16) Instruction {
	if op == OpLdcW {
		op = OpLdc
	}
	return Instruction{Op: op, Kind: KindOther, Const: index}
}

// Jump returns a branch to target.
func Jump(op Opcode, target *Label) Instruction {
	switch op {
	case OpGotoW:
		op = OpGoto
	case OpJsrW:
		op = OpJsr
	}
	return Instruction{Op: op, Kind: KindJump, Target: target}
}

// Place returns the pseudo-instruction that places l.
func Place(l *Label) Instruction {
	return Instruction{Kind: KindLabel, Target: l}
}

// Catch returns an exception table pseudo-instruction.
func Catch(tc *TryCatch) Instruction {
	return Instruction{Kind: KindTryCatch, Try: tc}
}

// Metadata returns a metadata pseudo-instruction of kind m.
func Metadata(m Meta) Instruction {
	return Instruction{Kind: KindMetadata, Meta: m}
}

// LineAt returns a line number marker for the code at l.
func LineAt(l *Label, line int) Instruction {
	return Instruction{Kind: KindMetadata, Meta: MetaLineNumber, Target: l, Line: line}
}

// Width returns the slot width of a local reference: 2 for long and double
// loads and stores, 1 otherwise.
func (in Instruction) Width() int {
	if in.Kind != KindLocal {
		return 0
	}
	return in.Op.Width()
}

// IsStore reports whether in writes a local slot.
func (in Instruction) IsStore() bool {
	return (in.Op >= OpIstore && in.Op <= OpAstore) || in.Op == OpIinc
}

// WithVar returns a copy of in against slot.
func (in Instruction) WithVar(slot int) Instruction {
	in.Var = slot
	return in
}

// Sink receives instructions.
type Sink interface {
	Emit(Instruction)
}

// Buffer is a Sink that collects instructions in order.
type Buffer []Instruction

// Emit appends in.
func (b *Buffer) Emit(in Instruction) {
	*b = append(*b, in)
}

// MaxLocals returns the number of local slots the stream's local
// references need.
func MaxLocals(instrs []Instruction) int {
	n := 0
	for _, in := range instrs {
		if in.Kind != KindLocal {
			continue
		}
		if top := in.Var + in.Width(); top > n {
			n = top
		}
	}
	return n
}
