package bytecode

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"

	"github.com/chazu/weft/classfile"
)

// Assembled is an encoded instruction stream with the tables that refer
// to code offsets.
type Assembled struct {
	Code               []byte
	ExceptionTable     []classfile.ExceptionEntry
	LineNumbers        []classfile.LineNumber
	LocalVariables     []classfile.LocalVariable
	LocalVariableTypes []classfile.LocalVariable
}

type layout struct {
	offsets []int
	labels  map[*Label]int
	size    int
}

type assembler struct {
	instrs []Instruction
	wide   []bool // goto/jsr encoded as goto_w/jsr_w
}

// Assemble encodes instrs. Local references get the shortest encoding,
// ldc picks ldc or ldc_w by index, and goto/jsr are widened until every
// target is reachable. A conditional branch whose target is out of 16-bit
// range is an error.
func Assemble(instrs []Instruction) (*Assembled, error) {
	a := &assembler{instrs: instrs, wide: make([]bool, len(instrs))}
	var lay *layout
	for iter := 0; ; iter++ {
		if iter > len(instrs) {
			return nil, errors.AssertionFailedf("branch widening did not converge")
		}
		var err error
		if lay, err = a.layout(); err != nil {
			return nil, err
		}
		changed := false
		for i, in := range instrs {
			if in.Kind != KindJump || in.Switch != nil || a.wide[i] || (in.Op != OpGoto && in.Op != OpJsr) {
				continue
			}
			if !fits16(lay.labels[in.Target] - lay.offsets[i]) {
				a.wide[i] = true
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	if lay.size > classfile.MaxCodeLength {
		return nil, errors.Newf("assembled code is %d bytes, limit is %d", lay.size, classfile.MaxCodeLength)
	}
	if lay.size == 0 {
		return nil, errors.New("assembled code is empty")
	}

	out := &Assembled{Code: make([]byte, 0, lay.size)}
	for i, in := range instrs {
		var err error
		switch in.Kind {
		case KindLabel:
		case KindTryCatch:
			tc := in.Try
			start, end := lay.labels[tc.Start], lay.labels[tc.End]
			if start >= end {
				return nil, errors.Newf("empty exception range [%d, %d)", start, end)
			}
			out.ExceptionTable = append(out.ExceptionTable, classfile.ExceptionEntry{
				StartPC:   uint16(start),
				EndPC:     uint16(end),
				HandlerPC: uint16(lay.labels[tc.Handler]),
				CatchType: tc.Type,
			})
		case KindMetadata:
			switch in.Meta {
			case MetaLineNumber:
				out.LineNumbers = append(out.LineNumbers, classfile.LineNumber{
					StartPC: uint16(lay.labels[in.Target]),
					Line:    uint16(in.Line),
				})
			case MetaLocalVariable:
				lv := in.Local
				start, end := lay.labels[lv.Start], lay.labels[lv.End]
				row := classfile.LocalVariable{
					StartPC:         uint16(start),
					Length:          uint16(end - start),
					NameIndex:       lv.Name,
					DescriptorIndex: lv.Descriptor,
					Index:           uint16(lv.Slot),
				}
				if lv.Generic {
					out.LocalVariableTypes = append(out.LocalVariableTypes, row)
				} else {
					out.LocalVariables = append(out.LocalVariables, row)
				}
			}
		default:
			out.Code, err = a.encode(out.Code, i, lay)
		}
		if err != nil {
			return nil, err
		}
	}
	if len(out.Code) != lay.size {
		return nil, errors.AssertionFailedf("encoded %d bytes, layout predicted %d", len(out.Code), lay.size)
	}
	return out, nil
}

func fits16(v int) bool { return v >= math.MinInt16 && v <= math.MaxInt16 }

func (a *assembler) layout() (*layout, error) {
	lay := &layout{offsets: make([]int, len(a.instrs)), labels: make(map[*Label]int)}
	pc := 0
	for i, in := range a.instrs {
		lay.offsets[i] = pc
		if in.Kind == KindLabel {
			if in.Target == nil {
				return nil, errors.Newf("instruction %d places a nil label", i)
			}
			if _, dup := lay.labels[in.Target]; dup {
				return nil, errors.Newf("label placed twice (instruction %d)", i)
			}
			lay.labels[in.Target] = pc
			continue
		}
		n, err := a.size(i, pc)
		if err != nil {
			return nil, err
		}
		pc += n
	}
	lay.size = pc
	for i, in := range a.instrs {
		for _, l := range referencedLabels(in) {
			if _, ok := lay.labels[l]; !ok {
				return nil, errors.Newf("instruction %d (%s) references an unplaced label", i, describeKind(in))
			}
		}
	}
	return lay, nil
}

func referencedLabels(in Instruction) []*Label {
	switch in.Kind {
	case KindJump:
		if in.Switch != nil {
			return append([]*Label{in.Switch.Default}, in.Switch.Targets...)
		}
		return []*Label{in.Target}
	case KindTryCatch:
		return []*Label{in.Try.Start, in.Try.End, in.Try.Handler}
	case KindMetadata:
		switch in.Meta {
		case MetaLineNumber:
			return []*Label{in.Target}
		case MetaLocalVariable:
			return []*Label{in.Local.Start, in.Local.End}
		}
	}
	return nil
}

func describeKind(in Instruction) string {
	if in.Kind == KindMetadata {
		return in.Meta.String()
	}
	if in.Op != 0 || in.Kind == KindOther {
		return in.Op.String()
	}
	return in.Kind.String()
}

func (a *assembler) size(i, pc int) (int, error) {
	in := a.instrs[i]
	switch in.Kind {
	case KindTryCatch, KindMetadata:
		return 0, nil
	case KindReturn, KindThrow:
		return 1, nil
	case KindLocal:
		if in.Var < 0 || in.Var > math.MaxUint16 {
			return 0, errors.Newf("%s: local slot %d out of range", in.Op, in.Var)
		}
		if in.Op == OpIinc {
			if in.Inc < math.MinInt16 || in.Inc > math.MaxInt16 {
				return 0, errors.Newf("iinc delta %d out of range", in.Inc)
			}
			if in.Var <= math.MaxUint8 && in.Inc >= math.MinInt8 && in.Inc <= math.MaxInt8 {
				return 3, nil
			}
			return 6, nil
		}
		if _, ok := shortLocal(in.Op, in.Var); ok {
			return 1, nil
		}
		if in.Var <= math.MaxUint8 {
			return 2, nil
		}
		return 4, nil
	case KindJump:
		if in.Switch != nil {
			if in.Op == OpTableswitch {
				return 1 + switchPad(pc) + 12 + 4*len(in.Switch.Targets), nil
			}
			if len(in.Switch.Keys) != len(in.Switch.Targets) {
				return 0, errors.Newf("lookupswitch with %d keys and %d targets", len(in.Switch.Keys), len(in.Switch.Targets))
			}
			return 1 + switchPad(pc) + 8 + 8*len(in.Switch.Targets), nil
		}
		if a.wide[i] {
			return 5, nil
		}
		return 3, nil
	case KindOther:
		switch in.Op.Format() {
		case FmtNone:
			return 1, nil
		case FmtByte, FmtNewArray:
			return 2, nil
		case FmtShort:
			return 3, nil
		case FmtConstByte:
			if in.Const <= math.MaxUint8 {
				return 2, nil
			}
			return 3, nil
		case FmtConst:
			return 3, nil
		case FmtInvokeInterface, FmtInvokeDynamic:
			return 5, nil
		case FmtMultiANewArray:
			return 4, nil
		}
	}
	return 0, errors.Newf("cannot encode %s instruction %s", in.Kind, in.Op)
}

func (a *assembler) encode(b []byte, i int, lay *layout) ([]byte, error) {
	in := a.instrs[i]
	pc := lay.offsets[i]
	u2 := func(v int) { b = binary.BigEndian.AppendUint16(b, uint16(v)) }
	s4 := func(v int) { b = binary.BigEndian.AppendUint32(b, uint32(int32(v))) }

	switch in.Kind {
	case KindReturn, KindThrow:
		b = append(b, byte(in.Op))
	case KindLocal:
		switch {
		case in.Op == OpIinc && in.Var <= math.MaxUint8 && in.Inc >= math.MinInt8 && in.Inc <= math.MaxInt8:
			b = append(b, byte(OpIinc), byte(in.Var), byte(int8(in.Inc)))
		case in.Op == OpIinc:
			b = append(b, byte(OpWide), byte(OpIinc))
			u2(in.Var)
			u2(in.Inc)
		default:
			if short, ok := shortLocal(in.Op, in.Var); ok {
				b = append(b, byte(short))
			} else if in.Var <= math.MaxUint8 {
				b = append(b, byte(in.Op), byte(in.Var))
			} else {
				b = append(b, byte(OpWide), byte(in.Op))
				u2(in.Var)
			}
		}
	case KindJump:
		if sw := in.Switch; sw != nil {
			b = append(b, byte(in.Op))
			for k := 0; k < switchPad(pc); k++ {
				b = append(b, 0)
			}
			s4(lay.labels[sw.Default] - pc)
			if in.Op == OpTableswitch {
				s4(int(sw.Low))
				s4(int(sw.Low) + len(sw.Targets) - 1)
				for _, t := range sw.Targets {
					s4(lay.labels[t] - pc)
				}
			} else {
				s4(len(sw.Keys))
				for k, key := range sw.Keys {
					s4(int(key))
					s4(lay.labels[sw.Targets[k]] - pc)
				}
			}
			break
		}
		disp := lay.labels[in.Target] - pc
		if a.wide[i] {
			op := OpGotoW
			if in.Op == OpJsr {
				op = OpJsrW
			}
			b = append(b, byte(op))
			s4(disp)
			break
		}
		if !fits16(disp) {
			return nil, errors.Newf("%s at offset %d: displacement %d exceeds 16 bits", in.Op, pc, disp)
		}
		b = append(b, byte(in.Op))
		u2(disp)
	case KindOther:
		switch in.Op.Format() {
		case FmtNone:
			b = append(b, byte(in.Op))
		case FmtByte, FmtNewArray:
			b = append(b, byte(in.Op), byte(in.Int))
		case FmtShort:
			b = append(b, byte(in.Op))
			u2(int(in.Int))
		case FmtConstByte:
			if in.Const <= math.MaxUint8 {
				b = append(b, byte(OpLdc), byte(in.Const))
			} else {
				b = append(b, byte(OpLdcW))
				u2(int(in.Const))
			}
		case FmtConst:
			b = append(b, byte(in.Op))
			u2(int(in.Const))
		case FmtInvokeInterface:
			b = append(b, byte(in.Op))
			u2(int(in.Const))
			b = append(b, byte(in.Int), 0)
		case FmtInvokeDynamic:
			b = append(b, byte(in.Op))
			u2(int(in.Const))
			b = append(b, 0, 0)
		case FmtMultiANewArray:
			b = append(b, byte(in.Op))
			u2(int(in.Const))
			b = append(b, byte(in.Int))
		}
	}
	return b, nil
}
