package classfile

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Tag identifies the kind of a constant pool entry.
type Tag uint8

const (
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagDynamic            Tag = 17
	TagInvokeDynamic      Tag = 18
	TagModule             Tag = 19
	TagPackage            Tag = 20
)

var tagNames = map[Tag]string{
	TagUtf8:               "Utf8",
	TagInteger:            "Integer",
	TagFloat:              "Float",
	TagLong:               "Long",
	TagDouble:             "Double",
	TagClass:              "Class",
	TagString:             "String",
	TagFieldref:           "Fieldref",
	TagMethodref:          "Methodref",
	TagInterfaceMethodref: "InterfaceMethodref",
	TagNameAndType:        "NameAndType",
	TagMethodHandle:       "MethodHandle",
	TagMethodType:         "MethodType",
	TagDynamic:            "Dynamic",
	TagInvokeDynamic:      "InvokeDynamic",
	TagModule:             "Module",
	TagPackage:            "Package",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// Wide reports whether the entry occupies two pool slots.
func (t Tag) Wide() bool {
	return t == TagLong || t == TagDouble
}

// Constant is one constant pool entry. Which fields are meaningful depends
// on Tag:
//
//	Utf8                      Str
//	Integer, Float            Bits32
//	Long, Double              Bits64
//	Class, String, MethodType,
//	Module, Package           Ref1 (Utf8 index)
//	Field/Method/IMethod ref  Ref1 (Class), Ref2 (NameAndType)
//	NameAndType               Ref1 (name Utf8), Ref2 (descriptor Utf8)
//	MethodHandle              Kind, Ref1 (member ref)
//	Dynamic, InvokeDynamic    Ref1 (bootstrap method index), Ref2 (NameAndType)
type Constant struct {
	Tag    Tag
	Str    string
	Bits32 uint32
	Bits64 uint64
	Ref1   uint16
	Ref2   uint16
	Kind   uint8
}

func (c Constant) key() string {
	switch c.Tag {
	case TagUtf8:
		return "1:" + c.Str
	case TagInteger, TagFloat:
		return fmt.Sprintf("%d:%d", c.Tag, c.Bits32)
	case TagLong, TagDouble:
		return fmt.Sprintf("%d:%d", c.Tag, c.Bits64)
	case TagMethodHandle:
		return fmt.Sprintf("%d:%d:%d", c.Tag, c.Kind, c.Ref1)
	default:
		return fmt.Sprintf("%d:%d:%d", c.Tag, c.Ref1, c.Ref2)
	}
}

// ConstantPool holds the entries of a class's constant pool. Index 0 and
// the slot after every Long/Double are unusable placeholders.
type ConstantPool struct {
	entries []Constant
	index   map[string]uint16
}

// NewConstantPool returns an empty pool.
func NewConstantPool() *ConstantPool {
	return &ConstantPool{
		entries: make([]Constant, 1, 32),
		index:   make(map[string]uint16),
	}
}

// Count returns the constant_pool_count value (entries plus one).
func (p *ConstantPool) Count() int {
	return len(p.entries)
}

// Get returns the entry at index.
func (p *ConstantPool) Get(index uint16) (Constant, error) {
	if index == 0 || int(index) >= len(p.entries) {
		return Constant{}, errors.Newf("constant pool index %d out of range [1, %d)", index, len(p.entries))
	}
	c := p.entries[index]
	if c.Tag == 0 {
		return Constant{}, errors.Newf("constant pool index %d is the unusable half of a wide entry", index)
	}
	return c, nil
}

func (p *ConstantPool) expect(index uint16, tags ...Tag) (Constant, error) {
	c, err := p.Get(index)
	if err != nil {
		return c, err
	}
	for _, t := range tags {
		if c.Tag == t {
			return c, nil
		}
	}
	return c, errors.Newf("constant pool index %d: expected %v, got %v", index, tags, c.Tag)
}

// Utf8 returns the string at a Utf8 entry.
func (p *ConstantPool) Utf8(index uint16) (string, error) {
	c, err := p.expect(index, TagUtf8)
	if err != nil {
		return "", err
	}
	return c.Str, nil
}

// ClassName returns the internal name referenced by a Class entry.
func (p *ConstantPool) ClassName(index uint16) (string, error) {
	c, err := p.expect(index, TagClass)
	if err != nil {
		return "", err
	}
	return p.Utf8(c.Ref1)
}

// NameAndType returns the name and descriptor of a NameAndType entry.
func (p *ConstantPool) NameAndType(index uint16) (name, descriptor string, err error) {
	c, err := p.expect(index, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	if name, err = p.Utf8(c.Ref1); err != nil {
		return "", "", err
	}
	descriptor, err = p.Utf8(c.Ref2)
	return name, descriptor, err
}

// MemberRef resolves a Fieldref, Methodref or InterfaceMethodref.
func (p *ConstantPool) MemberRef(index uint16) (owner, name, descriptor string, err error) {
	c, err := p.expect(index, TagFieldref, TagMethodref, TagInterfaceMethodref)
	if err != nil {
		return "", "", "", err
	}
	if owner, err = p.ClassName(c.Ref1); err != nil {
		return "", "", "", err
	}
	name, descriptor, err = p.NameAndType(c.Ref2)
	return owner, name, descriptor, err
}

// Add appends c unless an equal entry exists, returning its index.
func (p *ConstantPool) Add(c Constant) (uint16, error) {
	k := c.key()
	if idx, ok := p.index[k]; ok {
		return idx, nil
	}
	size := 1
	if c.Tag.Wide() {
		size = 2
	}
	if len(p.entries)+size > 0xFFFF {
		return 0, errors.Newf("constant pool overflow adding %v entry", c.Tag)
	}
	idx := uint16(len(p.entries))
	p.entries = append(p.entries, c)
	if size == 2 {
		p.entries = append(p.entries, Constant{})
	}
	p.index[k] = idx
	return idx, nil
}

// AddUtf8 adds or finds a Utf8 entry.
func (p *ConstantPool) AddUtf8(s string) (uint16, error) {
	return p.Add(Constant{Tag: TagUtf8, Str: s})
}

// AddClass adds or finds a Class entry for an internal name.
func (p *ConstantPool) AddClass(name string) (uint16, error) {
	n, err := p.AddUtf8(name)
	if err != nil {
		return 0, err
	}
	return p.Add(Constant{Tag: TagClass, Ref1: n})
}

// AddString adds or finds a String entry.
func (p *ConstantPool) AddString(s string) (uint16, error) {
	n, err := p.AddUtf8(s)
	if err != nil {
		return 0, err
	}
	return p.Add(Constant{Tag: TagString, Ref1: n})
}

// AddInteger adds or finds an Integer entry.
func (p *ConstantPool) AddInteger(v int32) (uint16, error) {
	return p.Add(Constant{Tag: TagInteger, Bits32: uint32(v)})
}

// AddLong adds or finds a Long entry.
func (p *ConstantPool) AddLong(v int64) (uint16, error) {
	return p.Add(Constant{Tag: TagLong, Bits64: uint64(v)})
}

// AddNameAndType adds or finds a NameAndType entry.
func (p *ConstantPool) AddNameAndType(name, descriptor string) (uint16, error) {
	n, err := p.AddUtf8(name)
	if err != nil {
		return 0, err
	}
	d, err := p.AddUtf8(descriptor)
	if err != nil {
		return 0, err
	}
	return p.Add(Constant{Tag: TagNameAndType, Ref1: n, Ref2: d})
}

// AddMemberRef adds or finds a field, method or interface method reference.
func (p *ConstantPool) AddMemberRef(tag Tag, owner, name, descriptor string) (uint16, error) {
	if tag != TagFieldref && tag != TagMethodref && tag != TagInterfaceMethodref {
		return 0, errors.Newf("AddMemberRef: %v is not a member reference tag", tag)
	}
	cls, err := p.AddClass(owner)
	if err != nil {
		return 0, err
	}
	nat, err := p.AddNameAndType(name, descriptor)
	if err != nil {
		return 0, err
	}
	return p.Add(Constant{Tag: tag, Ref1: cls, Ref2: nat})
}

func parseConstantPool(r *reader) (*ConstantPool, error) {
	count := int(r.u2())
	if r.err != nil {
		return nil, errors.Wrap(r.err, "reading constant pool count")
	}
	p := NewConstantPool()
	for len(p.entries) < count {
		idx := len(p.entries)
		c := Constant{Tag: Tag(r.u1())}
		switch c.Tag {
		case TagUtf8:
			n := int(r.u2())
			c.Str = string(r.bytes(n))
		case TagInteger, TagFloat:
			c.Bits32 = r.u4()
		case TagLong, TagDouble:
			c.Bits64 = r.u8()
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			c.Ref1 = r.u2()
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType,
			TagDynamic, TagInvokeDynamic:
			c.Ref1 = r.u2()
			c.Ref2 = r.u2()
		case TagMethodHandle:
			c.Kind = r.u1()
			c.Ref1 = r.u2()
		default:
			if r.err == nil {
				return nil, errors.Newf("unknown constant tag %d at pool index %d (offset %d)", c.Tag, idx, r.pos-1)
			}
		}
		if r.err != nil {
			return nil, errors.Wrapf(r.err, "reading constant %d", idx)
		}
		p.entries = append(p.entries, c)
		if _, dup := p.index[c.key()]; !dup {
			p.index[c.key()] = uint16(idx)
		}
		if c.Tag.Wide() {
			p.entries = append(p.entries, Constant{})
		}
	}
	if len(p.entries) != count {
		return nil, errors.Newf("wide constant overruns constant pool count %d", count)
	}
	return p, nil
}

func (p *ConstantPool) write(w *writer) {
	w.u2(uint16(len(p.entries)))
	for _, c := range p.entries[1:] {
		if c.Tag == 0 {
			continue
		}
		w.u1(uint8(c.Tag))
		switch c.Tag {
		case TagUtf8:
			w.u2(uint16(len(c.Str)))
			w.bytes([]byte(c.Str))
		case TagInteger, TagFloat:
			w.u4(c.Bits32)
		case TagLong, TagDouble:
			w.u8(c.Bits64)
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			w.u2(c.Ref1)
		case TagMethodHandle:
			w.u1(c.Kind)
			w.u2(c.Ref1)
		default:
			w.u2(c.Ref1)
			w.u2(c.Ref2)
		}
	}
}
