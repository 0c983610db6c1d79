package bytecode

import (
	"fmt"
	"strings"

	"github.com/chazu/weft/classfile"
)

// Disassemble returns a human-readable listing of an instruction stream.
// Labels without a name are numbered L0, L1, ... in order of placement, so
// two streams with the same shape produce the same text. pool may be nil.
func Disassemble(instrs []Instruction, pool *classfile.ConstantPool) string {
	return DisassembleWithName("", instrs, pool)
}

// DisassembleWithName returns a listing with a name header.
func DisassembleWithName(name string, instrs []Instruction, pool *classfile.ConstantPool) string {
	var sb strings.Builder
	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	names := labelNames(instrs)
	for _, in := range instrs {
		line := disassembleInstruction(in, names, pool)
		if line == "" {
			continue
		}
		if in.Kind == KindLabel {
			sb.WriteString(line)
		} else {
			sb.WriteString("    ")
			sb.WriteString(line)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func labelNames(instrs []Instruction) map[*Label]string {
	names := make(map[*Label]string)
	n := 0
	for _, in := range instrs {
		if in.Kind != KindLabel || in.Target == nil {
			continue
		}
		if in.Target.Name != "" {
			names[in.Target] = in.Target.Name
			continue
		}
		names[in.Target] = fmt.Sprintf("L%d", n)
		n++
	}
	return names
}

func labelName(l *Label, names map[*Label]string) string {
	if s, ok := names[l]; ok {
		return s
	}
	return "L?"
}

func disassembleInstruction(in Instruction, names map[*Label]string, pool *classfile.ConstantPool) string {
	switch in.Kind {
	case KindLabel:
		return labelName(in.Target, names) + ":"
	case KindTryCatch:
		typ := "any"
		if in.Try.Type != 0 {
			typ = describeConstant(pool, in.Try.Type)
		}
		return fmt.Sprintf(".catch %s [%s, %s) -> %s", typ,
			labelName(in.Try.Start, names), labelName(in.Try.End, names), labelName(in.Try.Handler, names))
	case KindMetadata:
		switch in.Meta {
		case MetaLineNumber:
			return fmt.Sprintf(".line %d %s", in.Line, labelName(in.Target, names))
		case MetaMaxs:
			return fmt.Sprintf(".maxs stack=%d locals=%d", in.MaxStack, in.MaxLocals)
		case MetaLocalVariable:
			lv := in.Local
			return fmt.Sprintf(".var %d %s %s [%s, %s)", lv.Slot,
				utf8(pool, lv.Name), utf8(pool, lv.Descriptor),
				labelName(lv.Start, names), labelName(lv.End, names))
		case MetaParameter:
			return fmt.Sprintf(".parameter %q 0x%04X", in.Name, in.Access)
		case MetaAttribute:
			return fmt.Sprintf(".attribute %s (%d bytes)", in.Name, len(in.Data))
		default:
			return "." + in.Meta.String()
		}
	case KindLocal:
		if in.Op == OpIinc {
			return fmt.Sprintf("iinc %d %d", in.Var, in.Inc)
		}
		return fmt.Sprintf("%s %d", in.Op, in.Var)
	case KindJump:
		if sw := in.Switch; sw != nil {
			var parts []string
			for i, t := range sw.Targets {
				key := int(sw.Low) + i
				if in.Op == OpLookupswitch {
					key = int(sw.Keys[i])
				}
				parts = append(parts, fmt.Sprintf("%d: %s", key, labelName(t, names)))
			}
			parts = append(parts, "default: "+labelName(sw.Default, names))
			return fmt.Sprintf("%s { %s }", in.Op, strings.Join(parts, ", "))
		}
		return fmt.Sprintf("%s %s", in.Op, labelName(in.Target, names))
	}

	switch in.Op.Format() {
	case FmtByte, FmtShort, FmtNewArray:
		return fmt.Sprintf("%s %d", in.Op, in.Int)
	case FmtConstByte, FmtConst, FmtInvokeDynamic:
		return fmt.Sprintf("%s #%d ; %s", in.Op, in.Const, describeConstant(pool, in.Const))
	case FmtInvokeInterface, FmtMultiANewArray:
		return fmt.Sprintf("%s #%d %d ; %s", in.Op, in.Const, in.Int, describeConstant(pool, in.Const))
	}
	return in.Op.String()
}

func utf8(pool *classfile.ConstantPool, idx uint16) string {
	if pool == nil {
		return fmt.Sprintf("#%d", idx)
	}
	s, err := pool.Utf8(idx)
	if err != nil {
		return fmt.Sprintf("#%d", idx)
	}
	return s
}

// describeConstant renders a constant for listings, e.g.
// "java/lang/System.out:Ljava/io/PrintStream;" or "\"hello\"".
func describeConstant(pool *classfile.ConstantPool, idx uint16) string {
	if pool == nil {
		return "?"
	}
	c, err := pool.Get(idx)
	if err != nil {
		return "<invalid>"
	}
	switch c.Tag {
	case classfile.TagInteger:
		return fmt.Sprintf("int %d", int32(c.Bits32))
	case classfile.TagLong:
		return fmt.Sprintf("long %d", int64(c.Bits64))
	case classfile.TagFloat:
		return fmt.Sprintf("float bits 0x%08X", c.Bits32)
	case classfile.TagDouble:
		return fmt.Sprintf("double bits 0x%016X", c.Bits64)
	case classfile.TagString:
		s := utf8(pool, c.Ref1)
		if len(s) > 40 {
			s = s[:37] + "..."
		}
		return fmt.Sprintf("%q", s)
	case classfile.TagClass:
		return utf8(pool, c.Ref1)
	case classfile.TagFieldref, classfile.TagMethodref, classfile.TagInterfaceMethodref:
		owner, name, desc, err := pool.MemberRef(idx)
		if err != nil {
			return "<invalid>"
		}
		return fmt.Sprintf("%s.%s:%s", owner, name, desc)
	case classfile.TagInvokeDynamic, classfile.TagDynamic:
		name, desc, err := pool.NameAndType(c.Ref2)
		if err != nil {
			return "<invalid>"
		}
		return fmt.Sprintf("bsm#%d %s:%s", c.Ref1, name, desc)
	}
	return c.Tag.String()
}
