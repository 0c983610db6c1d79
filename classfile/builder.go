package classfile

import "github.com/cockroachdb/errors"

// Java 8 class file version.
const (
	DefaultMajor uint16 = 52
	DefaultMinor uint16 = 0
)

// NewClass returns an empty class with the given internal name and super
// class. An empty super leaves super_class at 0 (java/lang/Object only).
func NewClass(name, super string, access uint16) (*ClassFile, error) {
	c := &ClassFile{
		Minor:  DefaultMinor,
		Major:  DefaultMajor,
		Pool:   NewConstantPool(),
		Access: access,
	}
	var err error
	if c.ThisClass, err = c.Pool.AddClass(name); err != nil {
		return nil, err
	}
	if super != "" {
		if c.SuperClass, err = c.Pool.AddClass(super); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// NewAttribute returns an attribute whose name is interned in pool.
func NewAttribute(pool *ConstantPool, name string, data []byte) (Attribute, error) {
	idx, err := pool.AddUtf8(name)
	if err != nil {
		return Attribute{}, err
	}
	return Attribute{Name: name, NameIndex: idx, Data: data}, nil
}

func (c *ClassFile) newMember(access uint16, name, descriptor string, attrs []Attribute) (*Member, error) {
	m := &Member{Access: access, Name: name, Descriptor: descriptor, Attributes: attrs}
	var err error
	if m.NameIndex, err = c.Pool.AddUtf8(name); err != nil {
		return nil, err
	}
	if m.DescriptorIndex, err = c.Pool.AddUtf8(descriptor); err != nil {
		return nil, err
	}
	return m, nil
}

// AddField declares a field.
func (c *ClassFile) AddField(access uint16, name, descriptor string) (*Member, error) {
	if _, err := ParseFieldType(descriptor); err != nil {
		return nil, err
	}
	m, err := c.newMember(access, name, descriptor, nil)
	if err != nil {
		return nil, err
	}
	c.Fields = append(c.Fields, m)
	return m, nil
}

// AddMethod declares a method. code may be nil for abstract and native
// methods.
func (c *ClassFile) AddMethod(access uint16, name, descriptor string, code *CodeAttribute, attrs ...Attribute) (*Member, error) {
	if _, err := ParseMethodDescriptor(descriptor); err != nil {
		return nil, err
	}
	if _, dup := c.Method(name, descriptor); dup {
		return nil, errors.Newf("method %s%s already declared in %s", name, descriptor, c.Name())
	}
	m, err := c.newMember(access, name, descriptor, attrs)
	if err != nil {
		return nil, err
	}
	if code != nil {
		if err := m.SetCode(c.Pool, code); err != nil {
			return nil, err
		}
	}
	c.Methods = append(c.Methods, m)
	return m, nil
}
