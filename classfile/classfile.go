package classfile

import (
	"github.com/cockroachdb/errors"
)

// Magic is the leading u4 of every class file.
const Magic uint32 = 0xCAFEBABE

// Access and property flags shared by classes, fields and methods.
const (
	AccPublic       uint16 = 0x0001
	AccPrivate      uint16 = 0x0002
	AccProtected    uint16 = 0x0004
	AccStatic       uint16 = 0x0008
	AccFinal        uint16 = 0x0010
	AccSynchronized uint16 = 0x0020
	AccSuper        uint16 = 0x0020
	AccBridge       uint16 = 0x0040
	AccVarargs      uint16 = 0x0080
	AccNative       uint16 = 0x0100
	AccInterface    uint16 = 0x0200
	AccAbstract     uint16 = 0x0400
	AccStrict       uint16 = 0x0800
	AccSynthetic    uint16 = 0x1000
	AccAnnotation   uint16 = 0x2000
	AccEnum         uint16 = 0x4000
)

// Well-known attribute names.
const (
	AttrCode                                 = "Code"
	AttrLineNumberTable                      = "LineNumberTable"
	AttrLocalVariableTable                   = "LocalVariableTable"
	AttrLocalVariableTypeTable               = "LocalVariableTypeTable"
	AttrStackMapTable                        = "StackMapTable"
	AttrMethodParameters                     = "MethodParameters"
	AttrAnnotationDefault                    = "AnnotationDefault"
	AttrBootstrapMethods                     = "BootstrapMethods"
	AttrRuntimeVisibleAnnotations            = "RuntimeVisibleAnnotations"
	AttrRuntimeInvisibleAnnotations          = "RuntimeInvisibleAnnotations"
	AttrRuntimeVisibleParameterAnnotations   = "RuntimeVisibleParameterAnnotations"
	AttrRuntimeInvisibleParameterAnnotations = "RuntimeInvisibleParameterAnnotations"
)

// Attribute is an attribute kept as raw bytes. Name mirrors the Utf8 entry
// at NameIndex.
type Attribute struct {
	Name      string
	NameIndex uint16
	Data      []byte
}

// Member is a field or method declaration.
type Member struct {
	Access          uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Attributes      []Attribute

	// Resolved from the pool at parse time.
	Name       string
	Descriptor string
}

// IsStatic reports whether the member carries ACC_STATIC.
func (m *Member) IsStatic() bool { return m.Access&AccStatic != 0 }

// IsAbstract reports whether the member carries ACC_ABSTRACT.
func (m *Member) IsAbstract() bool { return m.Access&AccAbstract != 0 }

// IsNative reports whether the member carries ACC_NATIVE.
func (m *Member) IsNative() bool { return m.Access&AccNative != 0 }

// Attribute returns the first attribute with the given name.
func (m *Member) Attribute(name string) (*Attribute, bool) {
	return findAttribute(m.Attributes, name)
}

// SetAttribute replaces the named attribute or appends it.
func (m *Member) SetAttribute(pool *ConstantPool, name string, data []byte) error {
	attrs, err := setAttribute(m.Attributes, pool, name, data)
	if err != nil {
		return err
	}
	m.Attributes = attrs
	return nil
}

// RemoveAttribute drops every attribute with the given name.
func (m *Member) RemoveAttribute(name string) {
	m.Attributes = removeAttribute(m.Attributes, name)
}

func (m *Member) String() string {
	return m.Name + m.Descriptor
}

func findAttribute(attrs []Attribute, name string) (*Attribute, bool) {
	for i := range attrs {
		if attrs[i].Name == name {
			return &attrs[i], true
		}
	}
	return nil, false
}

func setAttribute(attrs []Attribute, pool *ConstantPool, name string, data []byte) ([]Attribute, error) {
	if a, ok := findAttribute(attrs, name); ok {
		a.Data = data
		return attrs, nil
	}
	idx, err := pool.AddUtf8(name)
	if err != nil {
		return attrs, err
	}
	return append(attrs, Attribute{Name: name, NameIndex: idx, Data: data}), nil
}

func removeAttribute(attrs []Attribute, name string) []Attribute {
	out := attrs[:0]
	for _, a := range attrs {
		if a.Name != name {
			out = append(out, a)
		}
	}
	return out
}

// ClassFile is a parsed class file.
type ClassFile struct {
	Minor, Major uint16
	Pool         *ConstantPool
	Access       uint16
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []*Member
	Methods      []*Member
	Attributes   []Attribute
}

// Parse decodes a class file.
func Parse(data []byte) (*ClassFile, error) {
	r := newReader(data)
	if magic := r.u4(); r.err == nil && magic != Magic {
		return nil, errors.Newf("invalid class file magic: expected 0x%08X, got 0x%08X", Magic, magic)
	}
	c := &ClassFile{}
	c.Minor = r.u2()
	c.Major = r.u2()
	if r.err != nil {
		return nil, errors.Wrap(r.err, "reading class file header")
	}

	pool, err := parseConstantPool(r)
	if err != nil {
		return nil, err
	}
	c.Pool = pool

	c.Access = r.u2()
	c.ThisClass = r.u2()
	c.SuperClass = r.u2()
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		c.Interfaces = append(c.Interfaces, r.u2())
	}
	if r.err != nil {
		return nil, errors.Wrap(r.err, "reading class header")
	}

	if c.Fields, err = parseMembers(r, pool, "field"); err != nil {
		return nil, err
	}
	if c.Methods, err = parseMembers(r, pool, "method"); err != nil {
		return nil, err
	}
	if c.Attributes, err = parseAttributes(r, pool); err != nil {
		return nil, errors.Wrap(err, "reading class attributes")
	}
	if r.remaining() != 0 {
		return nil, errors.Newf("%d trailing bytes after class file", r.remaining())
	}
	return c, nil
}

func parseMembers(r *reader, pool *ConstantPool, what string) ([]*Member, error) {
	n := int(r.u2())
	members := make([]*Member, 0, n)
	for i := 0; i < n; i++ {
		m := &Member{
			Access:          r.u2(),
			NameIndex:       r.u2(),
			DescriptorIndex: r.u2(),
		}
		if r.err != nil {
			return nil, errors.Wrapf(r.err, "reading %s %d", what, i)
		}
		var err error
		if m.Name, err = pool.Utf8(m.NameIndex); err != nil {
			return nil, errors.Wrapf(err, "%s %d name", what, i)
		}
		if m.Descriptor, err = pool.Utf8(m.DescriptorIndex); err != nil {
			return nil, errors.Wrapf(err, "%s %s descriptor", what, m.Name)
		}
		if m.Attributes, err = parseAttributes(r, pool); err != nil {
			return nil, errors.Wrapf(err, "%s %s", what, m)
		}
		members = append(members, m)
	}
	return members, nil
}

func parseAttributes(r *reader, pool *ConstantPool) ([]Attribute, error) {
	n := int(r.u2())
	attrs := make([]Attribute, 0, n)
	for i := 0; i < n; i++ {
		a := Attribute{NameIndex: r.u2()}
		length := int(r.u4())
		a.Data = r.bytes(length)
		if r.err != nil {
			return nil, errors.Wrapf(r.err, "reading attribute %d", i)
		}
		name, err := pool.Utf8(a.NameIndex)
		if err != nil {
			return nil, errors.Wrapf(err, "attribute %d name", i)
		}
		a.Name = name
		attrs = append(attrs, a)
	}
	return attrs, nil
}

// Bytes encodes the class file.
func (c *ClassFile) Bytes() ([]byte, error) {
	if c.Pool.Count() > 0xFFFF {
		return nil, errors.Newf("constant pool too large: %d entries", c.Pool.Count())
	}
	w := newWriter(1024)
	w.u4(Magic)
	w.u2(c.Minor)
	w.u2(c.Major)
	c.Pool.write(w)
	w.u2(c.Access)
	w.u2(c.ThisClass)
	w.u2(c.SuperClass)
	w.u2(uint16(len(c.Interfaces)))
	for _, i := range c.Interfaces {
		w.u2(i)
	}
	for _, members := range [][]*Member{c.Fields, c.Methods} {
		w.u2(uint16(len(members)))
		for _, m := range members {
			w.u2(m.Access)
			w.u2(m.NameIndex)
			w.u2(m.DescriptorIndex)
			w.attributes(m.Attributes)
		}
	}
	w.attributes(c.Attributes)
	return w.buf, nil
}

// Name returns the internal name of this class.
func (c *ClassFile) Name() string {
	name, err := c.Pool.ClassName(c.ThisClass)
	if err != nil {
		return "<invalid>"
	}
	return name
}

// Method returns the method with the given name and descriptor.
func (c *ClassFile) Method(name, descriptor string) (*Member, bool) {
	for _, m := range c.Methods {
		if m.Name == name && m.Descriptor == descriptor {
			return m, true
		}
	}
	return nil, false
}

// Attribute returns the first class-level attribute with the given name.
func (c *ClassFile) Attribute(name string) (*Attribute, bool) {
	return findAttribute(c.Attributes, name)
}

// SetAttribute replaces the named class attribute or appends it.
func (c *ClassFile) SetAttribute(name string, data []byte) error {
	attrs, err := setAttribute(c.Attributes, c.Pool, name, data)
	if err != nil {
		return err
	}
	c.Attributes = attrs
	return nil
}
