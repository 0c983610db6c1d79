// Package fixture builds class files in tests, so no Java compiler is
// needed.
package fixture

import (
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/chazu/weft/bytecode"
	"github.com/chazu/weft/classfile"
)

// Method describes one method of a fixture class. Code is called with the
// class's constant pool so that instructions can reference constants; a nil
// Code declares an abstract method.
type Method struct {
	Access     uint16
	Name       string
	Descriptor string
	Code       func(pool *classfile.ConstantPool) []bytecode.Instruction
	MaxStack   int // defaults to 4
	MaxLocals  int // defaults to what the code and parameters need

	Annotations      []classfile.Annotation
	ParamAnnotations [][]classfile.Annotation
}

// Class describes a fixture class.
type Class struct {
	Name    string
	Super   string // defaults to java/lang/Object
	Access  uint16
	Major   uint16 // defaults to classfile.DefaultMajor
	Methods []Method
}

// Build encodes c.
func Build(c Class) ([]byte, error) {
	cf, err := BuildFile(c)
	if err != nil {
		return nil, err
	}
	return cf.Bytes()
}

// BuildFile returns c as a parsed class file.
func BuildFile(c Class) (*classfile.ClassFile, error) {
	super := c.Super
	if super == "" {
		super = "java/lang/Object"
	}
	access := c.Access
	if access == 0 {
		access = classfile.AccPublic | classfile.AccSuper
	}
	cf, err := classfile.NewClass(c.Name, super, access)
	if err != nil {
		return nil, err
	}
	if c.Major != 0 {
		cf.Major = c.Major
	}
	for _, m := range c.Methods {
		if err := addMethod(cf, m); err != nil {
			return nil, errors.Wrapf(err, "fixture %s.%s%s", c.Name, m.Name, m.Descriptor)
		}
	}
	return cf, nil
}

func addMethod(cf *classfile.ClassFile, m Method) error {
	var attrs []classfile.Attribute
	if len(m.Annotations) > 0 {
		data, err := classfile.EncodeAnnotations(cf.Pool, m.Annotations)
		if err != nil {
			return err
		}
		a, err := classfile.NewAttribute(cf.Pool, classfile.AttrRuntimeVisibleAnnotations, data)
		if err != nil {
			return err
		}
		attrs = append(attrs, a)
	}
	if len(m.ParamAnnotations) > 0 {
		data, err := classfile.EncodeParameterAnnotations(cf.Pool, m.ParamAnnotations)
		if err != nil {
			return err
		}
		a, err := classfile.NewAttribute(cf.Pool, classfile.AttrRuntimeVisibleParameterAnnotations, data)
		if err != nil {
			return err
		}
		attrs = append(attrs, a)
	}

	access := m.Access
	if m.Code == nil {
		access |= classfile.AccAbstract
		_, err := cf.AddMethod(access, m.Name, m.Descriptor, nil, attrs...)
		return err
	}

	mt, err := classfile.ParseMethodDescriptor(m.Descriptor)
	if err != nil {
		return err
	}
	instrs := m.Code(cf.Pool)
	asm, err := bytecode.Assemble(instrs)
	if err != nil {
		return err
	}
	maxStack := m.MaxStack
	if maxStack == 0 {
		maxStack = 4
	}
	params := mt.ParamSize()
	if access&classfile.AccStatic == 0 {
		params++
	}
	code := &classfile.CodeAttribute{
		MaxStack:       uint16(maxStack),
		MaxLocals:      uint16(max(m.MaxLocals, params, bytecode.MaxLocals(instrs))),
		Code:           asm.Code,
		ExceptionTable: asm.ExceptionTable,
	}
	if len(asm.LineNumbers) > 0 {
		if err := code.SetAttribute(cf.Pool, classfile.AttrLineNumberTable, classfile.EncodeLineNumbers(asm.LineNumbers)); err != nil {
			return err
		}
	}
	if len(asm.LocalVariables) > 0 {
		if err := code.SetAttribute(cf.Pool, classfile.AttrLocalVariableTable, classfile.EncodeLocalVariables(asm.LocalVariables)); err != nil {
			return err
		}
	}
	_, err = cf.AddMethod(access, m.Name, m.Descriptor, code, attrs...)
	return err
}

// MustBuild encodes c or fails the test.
func MustBuild(t testing.TB, c Class) []byte {
	t.Helper()
	data, err := Build(c)
	if err != nil {
		t.Fatalf("building fixture %s: %v", c.Name, err)
	}
	return data
}

// Instrs returns a Code func for a fixed instruction list.
func Instrs(instrs ...bytecode.Instruction) func(*classfile.ConstantPool) []bytecode.Instruction {
	return func(*classfile.ConstantPool) []bytecode.Instruction { return instrs }
}

// Body wraps instrs in code-start and code-end markers, the way Decode
// frames a method.
func Body(instrs ...bytecode.Instruction) []bytecode.Instruction {
	out := make([]bytecode.Instruction, 0, len(instrs)+2)
	out = append(out, bytecode.Metadata(bytecode.MetaCodeStart))
	out = append(out, instrs...)
	return append(out, bytecode.Metadata(bytecode.MetaCodeEnd))
}

// Ann returns a marker annotation without elements.
func Ann(typ string) classfile.Annotation {
	return classfile.Annotation{Type: typ}
}

// AnnInt returns an annotation with one int element.
func AnnInt(typ, name string, v int32) classfile.Annotation {
	return classfile.Annotation{Type: typ, Elements: []classfile.ElementPair{{Name: name, Value: classfile.IntValue(v)}}}
}

// AnnBool returns an annotation with one boolean element.
func AnnBool(typ, name string, v bool) classfile.Annotation {
	return classfile.Annotation{Type: typ, Elements: []classfile.ElementPair{{Name: name, Value: classfile.BoolValue(v)}}}
}

// Params returns parameter annotations with one annotation per parameter.
func Params(anns ...classfile.Annotation) [][]classfile.Annotation {
	out := make([][]classfile.Annotation, len(anns))
	for i, a := range anns {
		out[i] = []classfile.Annotation{a}
	}
	return out
}
