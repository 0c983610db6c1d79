package advice

import (
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/weft/bytecode"
	"github.com/chazu/weft/classfile"
	"github.com/chazu/weft/internal/fixture"
)

func TestWeaveClassEndToEnd(t *testing.T) {
	a := sampleAdvice(t)
	target := fixture.MustBuild(t, fixture.SampleTarget())

	out, results, err := a.WeaveClass(target, Matcher{})
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, SkipConstructor, results[0].Skipped)
	for _, r := range results[1:] {
		assert.True(t, r.Woven, r.Name)
	}

	cf, code, instrs := wovenMethod(t, out, "twice", "(I)I")
	assert.Equal(t, fixture.TargetName, cf.Name())
	assert.Equal(t, []string{
		"bipush", "istore 2", "goto",
		"iload 1", "iconst_2", "imul",
		"dup", "istore 3", "iconst_1", "pop", "goto",
		"ireturn",
	}, listing(instrs))
	assert.EqualValues(t, 2+1, code.MaxStack, "original + max(R, enter, exit)")
	assert.EqualValues(t, 4, code.MaxLocals, "S + F + R")
	assert.Equal(t, int(code.MaxStack), results[1].MaxStack)

	_, _, instrs = wovenMethod(t, out, "echo", "(Ljava/lang/String;)Ljava/lang/String;")
	assert.Equal(t, []string{
		"bipush", "istore 2", "goto",
		"aload 1",
		"dup", "astore 3", "iconst_1", "pop", "goto",
		"areturn",
	}, listing(instrs))

	_, _, instrs = wovenMethod(t, out, "fail", "()V")
	assert.Equal(t, []string{
		"bipush", "istore 1", "goto",
		"new", "dup", "invokespecial",
		"iconst_1", "pop", "goto",
		"athrow",
	}, listing(instrs))

	_, _, instrs = wovenMethod(t, out, "<init>", "()V")
	assert.Equal(t, []string{"aload 0", "invokespecial", "return"}, listing(instrs))
}

func TestWeaveClassIsDeterministic(t *testing.T) {
	a := sampleAdvice(t)
	target := fixture.MustBuild(t, fixture.SampleTarget())
	first, _, err := a.WeaveClass(target, Matcher{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	outs := make([][]byte, 8)
	errs := make([]error, 8)
	for i := range outs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outs[i], _, errs[i] = a.WeaveClass(target, Matcher{})
		}()
	}
	wg.Wait()
	for i := range outs {
		require.NoError(t, errs[i])
		assert.Equal(t, first, outs[i])
	}
}

func TestWeaveClassMatcher(t *testing.T) {
	a := sampleAdvice(t)
	target := fixture.MustBuild(t, fixture.SampleTarget())

	_, results, err := a.WeaveClass(target, Matcher{Names: []string{"tw*"}})
	require.NoError(t, err)
	byName := map[string]MethodResult{}
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.True(t, byName["twice"].Woven)
	assert.Equal(t, SkipNotMatched, byName["echo"].Skipped)
	assert.Equal(t, SkipNotMatched, byName["fail"].Skipped)

	_, results, err = a.WeaveClass(target, Matcher{Descriptors: []string{"*)V"}})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, r.Name == "fail", r.Woven, r.Name)
	}

	out, results, err := a.WeaveClass(target, Matcher{Names: []string{"nothing"}})
	require.NoError(t, err)
	assert.Equal(t, target, out, "unselected classes come back unchanged")
	assert.Len(t, results, 4)
}

func TestMatcher(t *testing.T) {
	m := Matcher{Names: []string{"get*", "is*"}, Descriptors: []string{"()*"}}
	assert.True(t, m.Match("getName", "()I"))
	assert.True(t, m.Match("isOpen", "()Z"))
	assert.False(t, m.Match("setName", "()V"))
	assert.False(t, m.Match("getAt", "(I)I"))
	assert.True(t, Matcher{}.Match("anything", "()V"))
	assert.False(t, Matcher{Names: []string{"["}}.Match("x", "()V"))
}

func TestWeaveClassSkipsAbstractAndInitializers(t *testing.T) {
	a := sampleAdvice(t)
	c := fixture.SampleTarget()
	c.Methods = append(c.Methods,
		fixture.Method{Access: classfile.AccPublic, Name: "plan", Descriptor: "()V"},
		fixture.Method{Access: classfile.AccStatic, Name: "<clinit>", Descriptor: "()V", Code: fixture.Instrs(retVoid)},
	)
	_, results, err := a.WeaveClass(fixture.MustBuild(t, c), Matcher{})
	require.NoError(t, err)
	require.Len(t, results, 6)
	assert.Equal(t, SkipNoCode, results[4].Skipped)
	assert.Equal(t, SkipInitializer, results[5].Skipped)
}

func TestWeaveClassRehomesDonorConstants(t *testing.T) {
	enter := fixture.Method{
		Access:      static,
		Name:        "enter",
		Descriptor:  "()J",
		Annotations: []classfile.Annotation{fixture.Ann(fixture.EnterMarker)},
		MaxStack:    2,
		Code: func(pool *classfile.ConstantPool) []bytecode.Instruction {
			ref, err := pool.AddMemberRef(classfile.TagMethodref, "java/lang/System", "nanoTime", "()J")
			require.NoError(t, err)
			return []bytecode.Instruction{bytecode.Constant(bytecode.OpInvokestatic, ref), bytecode.Op(bytecode.OpLreturn)}
		},
	}
	exit := fixture.Method{
		Access:      static,
		Name:        "exit",
		Descriptor:  "()V",
		Annotations: []classfile.Annotation{fixture.Ann(fixture.ExitMarker)},
		MaxStack:    1,
		Code: func(pool *classfile.ConstantPool) []bytecode.Instruction {
			for i := 0; i < 300; i++ {
				_, err := pool.AddInteger(int32(100000 + i))
				require.NoError(t, err)
			}
			s, err := pool.AddString("done")
			require.NoError(t, err)
			return []bytecode.Instruction{bytecode.Constant(bytecode.OpLdc, s), bytecode.Op(bytecode.OpPop), retVoid}
		},
	}
	a := newAdvice(t, enter, exit)
	out, _, err := a.WeaveClass(fixture.MustBuild(t, fixture.SampleTarget()), Matcher{Names: []string{"twice"}})
	require.NoError(t, err)

	cf, code, instrs := wovenMethod(t, out, "twice", "(I)I")
	assert.Equal(t, []string{
		"invokestatic", "lstore 2", "goto",
		"iload 1", "iconst_2", "imul",
		"dup", "istore 4", "ldc", "pop", "goto",
		"ireturn",
	}, listing(instrs))
	ops := opsOf(instrs)

	owner, name, desc, err := cf.Pool.MemberRef(ops[0].Const)
	require.NoError(t, err)
	assert.Equal(t, []string{"java/lang/System", "nanoTime", "()J"}, []string{owner, name, desc})

	str, err := cf.Pool.Get(ops[8].Const)
	require.NoError(t, err)
	require.Equal(t, classfile.TagString, str.Tag)
	text, _ := cf.Pool.Utf8(str.Ref1)
	assert.Equal(t, "done", text)
	assert.Less(t, int(ops[8].Const), 256, "the target pool is small, so ldc stays short")
	assert.EqualValues(t, 2+2, code.MaxStack)
}

func opsOf(instrs []bytecode.Instruction) []bytecode.Instruction {
	var out []bytecode.Instruction
	for _, in := range instrs {
		switch in.Kind {
		case bytecode.KindLabel, bytecode.KindMetadata, bytecode.KindTryCatch:
		default:
			out = append(out, in)
		}
	}
	return out
}

func TestWeaveClassRebuildsDebugTables(t *testing.T) {
	c := fixture.Class{Name: fixture.TargetName, Methods: []fixture.Method{{
		Access:     classfile.AccPublic,
		Name:       "three",
		Descriptor: "()I",
		Code: func(pool *classfile.ConstantPool) []bytecode.Instruction {
			name, _ := pool.AddUtf8("tmp")
			desc, _ := pool.AddUtf8("I")
			start, end := &bytecode.Label{}, &bytecode.Label{}
			return []bytecode.Instruction{
				bytecode.Place(start),
				bytecode.LineAt(start, 7),
				bytecode.Op(bytecode.OpIconst3),
				bytecode.Local(bytecode.OpIstore, 1),
				bytecode.Local(bytecode.OpIload, 1),
				bytecode.Place(end),
				bytecode.Op(bytecode.OpIreturn),
				{Kind: bytecode.KindMetadata, Meta: bytecode.MetaLocalVariable,
					Local: &bytecode.LocalVar{Start: start, End: end, Name: name, Descriptor: desc, Slot: 1}},
			}
		},
	}}}
	cf, err := fixture.BuildFile(c)
	require.NoError(t, err)
	m, _ := cf.Method("three", "()I")
	code, err := m.Code(cf.Pool)
	require.NoError(t, err)
	require.NoError(t, code.SetAttribute(cf.Pool, classfile.AttrStackMapTable, []byte{0, 1, 0}))
	require.NoError(t, m.SetCode(cf.Pool, code))
	target, err := cf.Bytes()
	require.NoError(t, err)

	out, _, err := sampleAdvice(t).WeaveClass(target, Matcher{})
	require.NoError(t, err)
	_, woven, _ := wovenMethod(t, out, "three", "()I")

	_, ok := woven.Attribute(classfile.AttrStackMapTable)
	assert.False(t, ok, "stack map frames are dropped")

	lnt, ok := woven.Attribute(classfile.AttrLineNumberTable)
	require.True(t, ok)
	lines, err := classfile.ParseLineNumbers(lnt.Data)
	require.NoError(t, err)
	// bipush (2) + istore_1 (1) + goto (3)
	assert.Equal(t, []classfile.LineNumber{{StartPC: 6, Line: 7}}, lines)

	lvt, ok := woven.Attribute(classfile.AttrLocalVariableTable)
	require.True(t, ok)
	vars, err := classfile.ParseLocalVariables(lvt.Data)
	require.NoError(t, err)
	require.Len(t, vars, 1)
	assert.EqualValues(t, 2, vars[0].Index, "slot 1 shifted by the entry footprint")
	assert.EqualValues(t, 6, vars[0].StartPC)
}

func TestWeaveClassErrors(t *testing.T) {
	a := sampleAdvice(t)
	_, _, err := a.WeaveClass([]byte("not a class"), Matcher{})
	assert.Error(t, err)

	bound := newAdvice(t, enterUnit("(I)V", [][]classfile.Annotation{{arg(0)}}, retVoid))
	_, _, err = bound.WeaveClass(fixture.MustBuild(t, fixture.SampleTarget()), Matcher{Names: []string{"fail"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBinding))
	assert.Contains(t, err.Error(), fixture.TargetName)
}

func TestFramelessWarning(t *testing.T) {
	assert.Empty(t, framelessWarning(fixture.TargetName, 49))
	assert.Contains(t, framelessWarning(fixture.TargetName, 50), "type-inferring verifier")

	for _, major := range []uint16{51, classfile.DefaultMajor, 65} {
		msg := framelessWarning(fixture.TargetName, major)
		assert.Contains(t, msg, fixture.TargetName)
		assert.Contains(t, msg, "fail verification on Java 7+")
	}
}
