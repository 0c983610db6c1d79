package classfile

import (
	"github.com/cockroachdb/errors"
)

// ExceptionEntry is one row of a Code attribute's exception table.
// CatchType 0 catches everything.
type ExceptionEntry struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

// CodeAttribute is the decoded body of a method's Code attribute.
type CodeAttribute struct {
	MaxStack       uint16
	MaxLocals      uint16
	Code           []byte
	ExceptionTable []ExceptionEntry
	Attributes     []Attribute
}

// MaxCodeLength is the largest code array a method may carry.
const MaxCodeLength = 65535

// ParseCode decodes Code attribute data.
func ParseCode(data []byte, pool *ConstantPool) (*CodeAttribute, error) {
	r := newReader(data)
	c := &CodeAttribute{
		MaxStack:  r.u2(),
		MaxLocals: r.u2(),
	}
	codeLen := int(r.u4())
	c.Code = r.bytes(codeLen)
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		c.ExceptionTable = append(c.ExceptionTable, ExceptionEntry{
			StartPC:   r.u2(),
			EndPC:     r.u2(),
			HandlerPC: r.u2(),
			CatchType: r.u2(),
		})
	}
	if r.err != nil {
		return nil, errors.Wrap(r.err, "reading Code attribute")
	}
	attrs, err := parseAttributes(r, pool)
	if err != nil {
		return nil, errors.Wrap(err, "reading Code attributes")
	}
	c.Attributes = attrs
	if r.remaining() != 0 {
		return nil, errors.Newf("%d trailing bytes in Code attribute", r.remaining())
	}
	return c, nil
}

// Bytes encodes the attribute body (without name and length).
func (c *CodeAttribute) Bytes() ([]byte, error) {
	if len(c.Code) == 0 || len(c.Code) > MaxCodeLength {
		return nil, errors.Newf("code length %d outside [1, %d]", len(c.Code), MaxCodeLength)
	}
	w := newWriter(len(c.Code) + 32)
	w.u2(c.MaxStack)
	w.u2(c.MaxLocals)
	w.u4(uint32(len(c.Code)))
	w.bytes(c.Code)
	w.u2(uint16(len(c.ExceptionTable)))
	for _, e := range c.ExceptionTable {
		w.u2(e.StartPC)
		w.u2(e.EndPC)
		w.u2(e.HandlerPC)
		w.u2(e.CatchType)
	}
	w.attributes(c.Attributes)
	return w.buf, nil
}

// Attribute returns the first nested attribute with the given name.
func (c *CodeAttribute) Attribute(name string) (*Attribute, bool) {
	return findAttribute(c.Attributes, name)
}

// SetAttribute replaces the named nested attribute or appends it.
func (c *CodeAttribute) SetAttribute(pool *ConstantPool, name string, data []byte) error {
	attrs, err := setAttribute(c.Attributes, pool, name, data)
	if err != nil {
		return err
	}
	c.Attributes = attrs
	return nil
}

// RemoveAttribute drops every nested attribute with the given name.
func (c *CodeAttribute) RemoveAttribute(name string) {
	c.Attributes = removeAttribute(c.Attributes, name)
}

// Code returns the decoded Code attribute of a method, or nil when the
// method has none (abstract or native).
func (m *Member) Code(pool *ConstantPool) (*CodeAttribute, error) {
	a, ok := m.Attribute(AttrCode)
	if !ok {
		return nil, nil
	}
	code, err := ParseCode(a.Data, pool)
	if err != nil {
		return nil, errors.Wrapf(err, "method %s", m)
	}
	return code, nil
}

// SetCode encodes code into the method's Code attribute.
func (m *Member) SetCode(pool *ConstantPool, code *CodeAttribute) error {
	data, err := code.Bytes()
	if err != nil {
		return errors.Wrapf(err, "method %s", m)
	}
	return m.SetAttribute(pool, AttrCode, data)
}

// ---------------------------------------------------------------------------
// Debug tables
// ---------------------------------------------------------------------------

// LineNumber maps a code offset to a source line.
type LineNumber struct {
	StartPC uint16
	Line    uint16
}

// ParseLineNumbers decodes a LineNumberTable attribute.
func ParseLineNumbers(data []byte) ([]LineNumber, error) {
	r := newReader(data)
	n := int(r.u2())
	lines := make([]LineNumber, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		lines = append(lines, LineNumber{StartPC: r.u2(), Line: r.u2()})
	}
	if r.err != nil {
		return nil, errors.Wrap(r.err, "reading LineNumberTable")
	}
	return lines, nil
}

// EncodeLineNumbers encodes a LineNumberTable attribute body.
func EncodeLineNumbers(lines []LineNumber) []byte {
	w := newWriter(2 + 4*len(lines))
	w.u2(uint16(len(lines)))
	for _, l := range lines {
		w.u2(l.StartPC)
		w.u2(l.Line)
	}
	return w.buf
}

// LocalVariable is one row of a LocalVariableTable or
// LocalVariableTypeTable; DescriptorIndex holds the signature index in the
// latter.
type LocalVariable struct {
	StartPC         uint16
	Length          uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Index           uint16
}

// ParseLocalVariables decodes a LocalVariableTable or LocalVariableTypeTable.
func ParseLocalVariables(data []byte) ([]LocalVariable, error) {
	r := newReader(data)
	n := int(r.u2())
	vars := make([]LocalVariable, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		vars = append(vars, LocalVariable{
			StartPC:         r.u2(),
			Length:          r.u2(),
			NameIndex:       r.u2(),
			DescriptorIndex: r.u2(),
			Index:           r.u2(),
		})
	}
	if r.err != nil {
		return nil, errors.Wrap(r.err, "reading local variable table")
	}
	return vars, nil
}

// EncodeLocalVariables encodes a local variable table body.
func EncodeLocalVariables(vars []LocalVariable) []byte {
	w := newWriter(2 + 10*len(vars))
	w.u2(uint16(len(vars)))
	for _, v := range vars {
		w.u2(v.StartPC)
		w.u2(v.Length)
		w.u2(v.NameIndex)
		w.u2(v.DescriptorIndex)
		w.u2(v.Index)
	}
	return w.buf
}

// ParseFrameOffsets returns the code offsets at which a StackMapTable
// declares frames. Frame contents are skipped.
func ParseFrameOffsets(data []byte) ([]int, error) {
	r := newReader(data)
	n := int(r.u2())
	offsets := make([]int, 0, n)
	prev := -1
	for i := 0; i < n && r.err == nil; i++ {
		ft := r.u1()
		var delta int
		switch {
		case ft <= 63:
			delta = int(ft)
		case ft <= 127:
			delta = int(ft) - 64
			skipVerificationType(r)
		case ft == 247:
			delta = int(r.u2())
			skipVerificationType(r)
		case ft >= 248 && ft <= 251:
			delta = int(r.u2())
		case ft >= 252 && ft <= 254:
			delta = int(r.u2())
			for k := 0; k < int(ft)-251; k++ {
				skipVerificationType(r)
			}
		case ft == 255:
			delta = int(r.u2())
			for k, nl := 0, int(r.u2()); k < nl; k++ {
				skipVerificationType(r)
			}
			for k, ns := 0, int(r.u2()); k < ns; k++ {
				skipVerificationType(r)
			}
		default:
			return nil, errors.Newf("reserved stack map frame type %d in frame %d", ft, i)
		}
		prev = prev + delta + 1
		offsets = append(offsets, prev)
	}
	if r.err != nil {
		return nil, errors.Wrap(r.err, "reading StackMapTable")
	}
	return offsets, nil
}

func skipVerificationType(r *reader) {
	// Object and Uninitialized carry a u2 operand.
	if tag := r.u1(); tag == 7 || tag == 8 {
		r.u2()
	}
}
