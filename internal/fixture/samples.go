package fixture

import (
	"github.com/chazu/weft/bytecode"
	"github.com/chazu/weft/classfile"
)

// The default marker descriptors, repeated here so that fixtures do not
// depend on the advice package.
const (
	EnterMarker      = "Lweft/Advice$OnMethodEnter;"
	ExitMarker       = "Lweft/Advice$OnMethodExit;"
	ArgumentMarker   = "Lweft/Advice$Argument;"
	ThisMarker       = "Lweft/Advice$This;"
	EnterValueMarker = "Lweft/Advice$Enter;"
	ReturnMarker     = "Lweft/Advice$Return;"
)

// Sample class names.
const (
	DonorName  = "com/acme/TimingAdvice"
	TargetName = "com/acme/Service"
)

// SampleDonor is a donor whose entry advice returns 42 and whose exit
// advice pushes and pops a constant:
//
//	@OnMethodEnter static int enter()  { bipush 42; ireturn }
//	@OnMethodExit  static void exit()  { iconst_1; pop; return }
func SampleDonor() Class {
	return Class{
		Name: DonorName,
		Methods: []Method{
			{
				Access:      classfile.AccPublic | classfile.AccStatic,
				Name:        "enter",
				Descriptor:  "()I",
				Code:        Instrs(bytecode.Push(bytecode.OpBipush, 42), bytecode.Op(bytecode.OpIreturn)),
				MaxStack:    1,
				Annotations: []classfile.Annotation{Ann(EnterMarker)},
			},
			{
				Access:      classfile.AccPublic | classfile.AccStatic,
				Name:        "exit",
				Descriptor:  "()V",
				Code:        Instrs(bytecode.Op(bytecode.OpIconst1), bytecode.Op(bytecode.OpPop), bytecode.Op(bytecode.OpReturn)),
				MaxStack:    1,
				Annotations: []classfile.Annotation{Ann(ExitMarker)},
			},
		},
	}
}

// SampleTarget is a class with a constructor, an int method, a reference
// method and a method that throws:
//
//	int twice(int x)          { return x * 2; }
//	String echo(String s)     { return s; }
//	void fail()               { throw new RuntimeException(); }
func SampleTarget() Class {
	return Class{
		Name: TargetName,
		Methods: []Method{
			{
				Access:     classfile.AccPublic,
				Name:       "<init>",
				Descriptor: "()V",
				Code: func(pool *classfile.ConstantPool) []bytecode.Instruction {
					ctor := mustRef(pool, classfile.TagMethodref, "java/lang/Object", "<init>", "()V")
					return []bytecode.Instruction{
						bytecode.Local(bytecode.OpAload, 0),
						bytecode.Constant(bytecode.OpInvokespecial, ctor),
						bytecode.Op(bytecode.OpReturn),
					}
				},
				MaxStack: 1,
			},
			{
				Access:     classfile.AccPublic,
				Name:       "twice",
				Descriptor: "(I)I",
				Code: Instrs(
					bytecode.Local(bytecode.OpIload, 1),
					bytecode.Op(bytecode.OpIconst2),
					bytecode.Op(bytecode.OpImul),
					bytecode.Op(bytecode.OpIreturn),
				),
				MaxStack: 2,
			},
			{
				Access:     classfile.AccPublic,
				Name:       "echo",
				Descriptor: "(Ljava/lang/String;)Ljava/lang/String;",
				Code: Instrs(
					bytecode.Local(bytecode.OpAload, 1),
					bytecode.Op(bytecode.OpAreturn),
				),
				MaxStack: 1,
			},
			{
				Access:     classfile.AccPublic,
				Name:       "fail",
				Descriptor: "()V",
				Code: func(pool *classfile.ConstantPool) []bytecode.Instruction {
					cls, err := pool.AddClass("java/lang/RuntimeException")
					if err != nil {
						panic(err)
					}
					ctor := mustRef(pool, classfile.TagMethodref, "java/lang/RuntimeException", "<init>", "()V")
					return []bytecode.Instruction{
						bytecode.Constant(bytecode.OpNew, cls),
						bytecode.Op(bytecode.OpDup),
						bytecode.Constant(bytecode.OpInvokespecial, ctor),
						bytecode.Op(bytecode.OpAthrow),
					}
				},
				MaxStack: 2,
			},
		},
	}
}

func mustRef(pool *classfile.ConstantPool, tag classfile.Tag, owner, name, desc string) uint16 {
	idx, err := pool.AddMemberRef(tag, owner, name, desc)
	if err != nil {
		panic(err)
	}
	return idx
}
