package advice

import (
	"fmt"

	"github.com/chazu/weft/classfile"
)

// StackSize is the number of slots a value occupies: zero for void, single
// for most types, double for long and double.
type StackSize int

const (
	Zero   StackSize = 0
	Single StackSize = 1
	Double StackSize = 2
)

// StackSizeOf returns the size class of a field type.
func StackSizeOf(t classfile.FieldType) StackSize {
	return StackSize(t.Size())
}

func (s StackSize) String() string {
	switch s {
	case Zero:
		return "zero"
	case Single:
		return "single"
	case Double:
		return "double"
	}
	return fmt.Sprintf("StackSize(%d)", int(s))
}

// CodeUnit describes one method of the donor class. It is derived once
// from the donor's class file and never modified.
type CodeUnit struct {
	Owner      string
	Name       string
	Descriptor string
	Static     bool
	Type       classfile.MethodType
	ReturnSize StackSize
	// ParamSize is the donor's declared frame size: the slots taken by its
	// parameters (advice methods are static, so there is no receiver).
	ParamSize int
	HasCode   bool
	MaxStack  int
	MaxLocals int

	annotations      []classfile.Annotation
	paramAnnotations [][]classfile.Annotation
}

func newCodeUnit(donor *classfile.ClassFile, m *classfile.Member) (*CodeUnit, error) {
	mt, err := classfile.ParseMethodDescriptor(m.Descriptor)
	if err != nil {
		return nil, err
	}
	u := &CodeUnit{
		Owner:      donor.Name(),
		Name:       m.Name,
		Descriptor: m.Descriptor,
		Static:     m.IsStatic(),
		Type:       mt,
		ReturnSize: StackSizeOf(mt.Return),
		ParamSize:  mt.ParamSize(),
	}
	if !u.Static {
		u.ParamSize++
	}
	code, err := m.Code(donor.Pool)
	if err != nil {
		return nil, err
	}
	if code != nil {
		u.HasCode = true
		u.MaxStack = int(code.MaxStack)
		u.MaxLocals = int(code.MaxLocals)
	}
	if u.annotations, err = m.Annotations(donor.Pool); err != nil {
		return nil, err
	}
	if u.paramAnnotations, err = m.ParameterAnnotations(donor.Pool, len(mt.Params)); err != nil {
		return nil, err
	}
	return u, nil
}

// Matches reports whether the unit is the method name+descriptor.
func (u *CodeUnit) Matches(name, descriptor string) bool {
	return u.Name == name && u.Descriptor == descriptor
}

// Annotation returns the unit's annotation of the given type.
func (u *CodeUnit) Annotation(typ string) (classfile.Annotation, bool) {
	return classfile.FindAnnotation(u.annotations, typ)
}

func (u *CodeUnit) String() string {
	return u.Owner + "." + u.Name + u.Descriptor
}
