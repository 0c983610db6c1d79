package bytecode

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/chazu/weft/classfile"
)

type decoder struct {
	code   []byte
	labels map[int]*Label
	starts map[int]bool
}

func (d *decoder) label(off int) *Label {
	if l, ok := d.labels[off]; ok {
		return l
	}
	l := &Label{}
	d.labels[off] = l
	return l
}

func (d *decoder) need(pc, n int) error {
	if pc+n > len(d.code) {
		return errors.Newf("truncated instruction at offset %d: need %d bytes, have %d", pc, n, len(d.code)-pc)
	}
	return nil
}

func (d *decoder) u1(pc int) int { return int(d.code[pc]) }
func (d *decoder) s1(pc int) int { return int(int8(d.code[pc])) }
func (d *decoder) u2(pc int) int { return int(binary.BigEndian.Uint16(d.code[pc:])) }
func (d *decoder) s2(pc int) int { return int(int16(binary.BigEndian.Uint16(d.code[pc:]))) }
func (d *decoder) s4(pc int) int { return int(int32(binary.BigEndian.Uint32(d.code[pc:]))) }

type located struct {
	pc int
	in Instruction
}

// next decodes the instruction at pc and returns its length.
func (d *decoder) next(pc int) (Instruction, int, error) {
	op := Opcode(d.code[pc])
	if !op.Valid() {
		return Instruction{}, 0, errors.Newf("invalid opcode 0x%02X at offset %d", byte(op), pc)
	}
	info := GetOpcodeInfo(op)
	switch info.Format {
	case FmtNone:
		return Op(op), 1, nil
	case FmtByte, FmtNewArray:
		if err := d.need(pc, 2); err != nil {
			return Instruction{}, 0, err
		}
		v := d.s1(pc + 1)
		if info.Format == FmtNewArray {
			v = d.u1(pc + 1)
		}
		return Push(op, int32(v)), 2, nil
	case FmtShort:
		if err := d.need(pc, 3); err != nil {
			return Instruction{}, 0, err
		}
		return Push(op, int32(d.s2(pc+1))), 3, nil
	case FmtLocal:
		if err := d.need(pc, 2); err != nil {
			return Instruction{}, 0, err
		}
		return Local(op, d.u1(pc+1)), 2, nil
	case FmtImplicitLocal:
		base, slot, _ := op.implicitLocal()
		return Local(base, slot), 1, nil
	case FmtConstByte:
		if err := d.need(pc, 2); err != nil {
			return Instruction{}, 0, err
		}
		return Constant(op, uint16(d.u1(pc+1))), 2, nil
	case FmtConst:
		if err := d.need(pc, 3); err != nil {
			return Instruction{}, 0, err
		}
		return Constant(op, uint16(d.u2(pc+1))), 3, nil
	case FmtIinc:
		if err := d.need(pc, 3); err != nil {
			return Instruction{}, 0, err
		}
		return Iinc(d.u1(pc+1), d.s1(pc+2)), 3, nil
	case FmtBranch:
		if err := d.need(pc, 3); err != nil {
			return Instruction{}, 0, err
		}
		return Jump(op, d.label(pc+d.s2(pc+1))), 3, nil
	case FmtBranchWide:
		if err := d.need(pc, 5); err != nil {
			return Instruction{}, 0, err
		}
		return Jump(op, d.label(pc+d.s4(pc+1))), 5, nil
	case FmtTableSwitch, FmtLookupSwitch:
		return d.decodeSwitch(op, pc)
	case FmtInvokeInterface, FmtInvokeDynamic:
		if err := d.need(pc, 5); err != nil {
			return Instruction{}, 0, err
		}
		in := Constant(op, uint16(d.u2(pc+1)))
		if op == OpInvokeinterface {
			in.Int = int32(d.u1(pc + 3))
		}
		return in, 5, nil
	case FmtMultiANewArray:
		if err := d.need(pc, 4); err != nil {
			return Instruction{}, 0, err
		}
		in := Constant(op, uint16(d.u2(pc+1)))
		in.Int = int32(d.u1(pc + 3))
		return in, 4, nil
	case FmtWide:
		if err := d.need(pc, 2); err != nil {
			return Instruction{}, 0, err
		}
		inner := Opcode(d.code[pc+1])
		switch inner.Format() {
		case FmtIinc:
			if err := d.need(pc, 6); err != nil {
				return Instruction{}, 0, err
			}
			return Iinc(d.u2(pc+2), d.s2(pc+4)), 6, nil
		case FmtLocal:
			if err := d.need(pc, 4); err != nil {
				return Instruction{}, 0, err
			}
			return Local(inner, d.u2(pc+2)), 4, nil
		}
		return Instruction{}, 0, errors.Newf("invalid wide operand %s at offset %d", inner, pc)
	}
	return Instruction{}, 0, errors.AssertionFailedf("unhandled operand format %d for %s", info.Format, op)
}

func (d *decoder) decodeSwitch(op Opcode, pc int) (Instruction, int, error) {
	p := pc + 1 + switchPad(pc)
	if err := d.need(p, 8); err != nil {
		return Instruction{}, 0, err
	}
	sw := &Switch{Default: d.label(pc + d.s4(p))}
	if op == OpTableswitch {
		if err := d.need(p, 12); err != nil {
			return Instruction{}, 0, err
		}
		low, high := d.s4(p+4), d.s4(p+8)
		n := high - low + 1
		if n < 0 || n > len(d.code) {
			return Instruction{}, 0, errors.Newf("tableswitch at offset %d: bad range [%d, %d]", pc, low, high)
		}
		p += 12
		if err := d.need(p, 4*n); err != nil {
			return Instruction{}, 0, err
		}
		sw.Low = int32(low)
		for i := 0; i < n; i++ {
			sw.Targets = append(sw.Targets, d.label(pc+d.s4(p+4*i)))
		}
		p += 4 * n
	} else {
		n := d.s4(p + 4)
		if n < 0 || n > len(d.code) {
			return Instruction{}, 0, errors.Newf("lookupswitch at offset %d: bad pair count %d", pc, n)
		}
		p += 8
		if err := d.need(p, 8*n); err != nil {
			return Instruction{}, 0, err
		}
		for i := 0; i < n; i++ {
			sw.Keys = append(sw.Keys, int32(d.s4(p+8*i)))
			sw.Targets = append(sw.Targets, d.label(pc+d.s4(p+8*i+4)))
		}
		p += 8 * n
	}
	return Instruction{Op: op, Kind: KindJump, Switch: sw}, p - pc, nil
}

// switchPad returns the padding after a switch opcode at pc so that its
// operands start on a four-byte boundary.
func switchPad(pc int) int {
	return (4 - (pc+1)%4) % 4
}

// Decode turns a Code attribute into an instruction stream:
//
//	code-start, try-catch rows, (label, line, frame, instruction)*,
//	end label, local variables, remaining code attributes, maxs, code-end
func Decode(code *classfile.CodeAttribute) ([]Instruction, error) {
	d := &decoder{code: code.Code, labels: make(map[int]*Label), starts: make(map[int]bool)}
	var insns []located
	for pc := 0; pc < len(d.code); {
		in, n, err := d.next(pc)
		if err != nil {
			return nil, err
		}
		d.starts[pc] = true
		insns = append(insns, located{pc: pc, in: in})
		pc += n
	}
	d.starts[len(d.code)] = true

	out := []Instruction{Metadata(MetaCodeStart)}
	for i, e := range code.ExceptionTable {
		if e.StartPC >= e.EndPC {
			return nil, errors.Newf("exception entry %d: empty range [%d, %d)", i, e.StartPC, e.EndPC)
		}
		out = append(out, Catch(&TryCatch{
			Start:   d.label(int(e.StartPC)),
			End:     d.label(int(e.EndPC)),
			Handler: d.label(int(e.HandlerPC)),
			Type:    e.CatchType,
		}))
	}

	lines := make(map[int][]int)
	frames := make(map[int]bool)
	var locals []Instruction
	var rest []Instruction
	for _, a := range code.Attributes {
		switch a.Name {
		case classfile.AttrLineNumberTable:
			entries, err := classfile.ParseLineNumbers(a.Data)
			if err != nil {
				return nil, err
			}
			for _, e := range entries {
				lines[int(e.StartPC)] = append(lines[int(e.StartPC)], int(e.Line))
				d.label(int(e.StartPC))
			}
		case classfile.AttrLocalVariableTable, classfile.AttrLocalVariableTypeTable:
			vars, err := classfile.ParseLocalVariables(a.Data)
			if err != nil {
				return nil, err
			}
			for _, v := range vars {
				locals = append(locals, Instruction{Kind: KindMetadata, Meta: MetaLocalVariable, Local: &LocalVar{
					Start:      d.label(int(v.StartPC)),
					End:        d.label(int(v.StartPC) + int(v.Length)),
					Name:       v.NameIndex,
					Descriptor: v.DescriptorIndex,
					Slot:       int(v.Index),
					Generic:    a.Name == classfile.AttrLocalVariableTypeTable,
				}})
			}
		case classfile.AttrStackMapTable:
			offsets, err := classfile.ParseFrameOffsets(a.Data)
			if err != nil {
				return nil, err
			}
			for _, off := range offsets {
				frames[off] = true
			}
		default:
			rest = append(rest, Instruction{Kind: KindMetadata, Meta: MetaAttribute, Name: a.Name, Data: a.Data})
		}
	}

	for off := range d.labels {
		if !d.starts[off] {
			return nil, errors.Newf("label at offset %d is not an instruction boundary", off)
		}
	}

	for _, li := range insns {
		if l, ok := d.labels[li.pc]; ok {
			out = append(out, Place(l))
		}
		for _, line := range lines[li.pc] {
			out = append(out, LineAt(d.labels[li.pc], line))
		}
		if frames[li.pc] {
			out = append(out, Metadata(MetaFrame))
		}
		out = append(out, li.in)
	}
	if l, ok := d.labels[len(d.code)]; ok {
		out = append(out, Place(l))
	}
	out = append(out, locals...)
	out = append(out, rest...)
	out = append(out,
		Instruction{Kind: KindMetadata, Meta: MetaMaxs, MaxStack: int(code.MaxStack), MaxLocals: int(code.MaxLocals)},
		Metadata(MetaCodeEnd),
	)
	return out, nil
}

// DecodeMethod decodes a method's metadata attributes followed by its code.
func DecodeMethod(m *classfile.Member, pool *classfile.ConstantPool) ([]Instruction, error) {
	code, err := m.Code(pool)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, errors.Newf("method %s has no code", m)
	}
	var out []Instruction
	for _, a := range m.Attributes {
		switch a.Name {
		case classfile.AttrCode:
		case classfile.AttrMethodParameters:
			params, err := decodeParameters(a.Data, pool)
			if err != nil {
				return nil, errors.Wrapf(err, "method %s", m)
			}
			out = append(out, params...)
		case classfile.AttrAnnotationDefault:
			out = append(out, Instruction{Kind: KindMetadata, Meta: MetaAnnotationDefault, Data: a.Data})
		default:
			out = append(out, Instruction{Kind: KindMetadata, Meta: MetaAttribute, Name: a.Name, Data: a.Data})
		}
	}
	body, err := Decode(code)
	if err != nil {
		return nil, errors.Wrapf(err, "method %s", m)
	}
	return append(out, body...), nil
}

func decodeParameters(data []byte, pool *classfile.ConstantPool) ([]Instruction, error) {
	if len(data) < 1 || len(data) != 1+4*int(data[0]) {
		return nil, errors.Newf("malformed MethodParameters attribute of %d bytes", len(data))
	}
	out := make([]Instruction, 0, data[0])
	for i := 0; i < int(data[0]); i++ {
		p := 1 + 4*i
		in := Metadata(MetaParameter)
		if idx := binary.BigEndian.Uint16(data[p:]); idx != 0 {
			name, err := pool.Utf8(idx)
			if err != nil {
				return nil, err
			}
			in.Name = name
		}
		in.Access = binary.BigEndian.Uint16(data[p+2:])
		out = append(out, in)
	}
	return out, nil
}
