package advice

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chazu/weft/bytecode"
	"github.com/chazu/weft/classfile"
	"github.com/chazu/weft/internal/fixture"
)

const static = classfile.AccPublic | classfile.AccStatic

func enterUnit(desc string, params [][]classfile.Annotation, code ...bytecode.Instruction) fixture.Method {
	return fixture.Method{
		Access:           static,
		Name:             "enter",
		Descriptor:       desc,
		Code:             fixture.Instrs(code...),
		Annotations:      []classfile.Annotation{fixture.Ann(fixture.EnterMarker)},
		ParamAnnotations: params,
	}
}

func exitUnit(desc string, params [][]classfile.Annotation, code ...bytecode.Instruction) fixture.Method {
	return fixture.Method{
		Access:           static,
		Name:             "exit",
		Descriptor:       desc,
		Code:             fixture.Instrs(code...),
		Annotations:      []classfile.Annotation{fixture.Ann(fixture.ExitMarker)},
		ParamAnnotations: params,
	}
}

func donorFile(t *testing.T, methods ...fixture.Method) *classfile.ClassFile {
	t.Helper()
	cf, err := fixture.BuildFile(fixture.Class{Name: fixture.DonorName, Methods: methods})
	require.NoError(t, err)
	return cf
}

func newAdvice(t *testing.T, methods ...fixture.Method) *Advice {
	t.Helper()
	a, err := New(fixture.MustBuild(t, fixture.Class{Name: fixture.DonorName, Methods: methods}), Markers{})
	require.NoError(t, err)
	return a
}

func sampleAdvice(t *testing.T) *Advice {
	t.Helper()
	a, err := New(fixture.MustBuild(t, fixture.SampleDonor()), Markers{})
	require.NoError(t, err)
	return a
}

func viewOf(t *testing.T, isStatic bool, desc string) MethodView {
	t.Helper()
	mt, err := classfile.ParseMethodDescriptor(desc)
	require.NoError(t, err)
	v := MethodView{
		Owner:        fixture.TargetName,
		Name:         "m",
		Descriptor:   desc,
		Static:       isStatic,
		Params:       mt.Params,
		Return:       mt.Return,
		DeclaredSize: mt.ParamSize(),
		ReturnSize:   StackSizeOf(mt.Return),
	}
	if !isStatic {
		v.DeclaredSize++
	}
	return v
}

// listing renders the real instructions of a stream, one per element:
// "iload 1", "iinc 2 1", "goto", "ireturn".
func listing(instrs []bytecode.Instruction) []string {
	var out []string
	for _, in := range instrs {
		switch in.Kind {
		case bytecode.KindLabel, bytecode.KindMetadata, bytecode.KindTryCatch:
			continue
		case bytecode.KindLocal:
			if in.Op == bytecode.OpIinc {
				out = append(out, fmt.Sprintf("iinc %d %d", in.Var, in.Inc))
			} else {
				out = append(out, fmt.Sprintf("%s %d", in.Op, in.Var))
			}
		default:
			out = append(out, in.Op.String())
		}
	}
	return out
}

func wovenMethod(t *testing.T, class []byte, name, desc string) (*classfile.ClassFile, *classfile.CodeAttribute, []bytecode.Instruction) {
	t.Helper()
	cf, err := classfile.Parse(class)
	require.NoError(t, err)
	m, ok := cf.Method(name, desc)
	require.True(t, ok, "method %s%s", name, desc)
	code, err := m.Code(cf.Pool)
	require.NoError(t, err)
	require.NotNil(t, code)
	instrs, err := bytecode.Decode(code)
	require.NoError(t, err)
	return cf, code, instrs
}
