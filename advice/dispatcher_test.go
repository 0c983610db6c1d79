package advice

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/weft/bytecode"
	"github.com/chazu/weft/classfile"
	"github.com/chazu/weft/internal/fixture"
	"github.com/chazu/weft/locator"
)

var (
	retVoid = bytecode.Op(bytecode.OpReturn)
	ret42   = []bytecode.Instruction{bytecode.Push(bytecode.OpBipush, 42), bytecode.Op(bytecode.OpIreturn)}
)

func TestFixtureMarkersMatchDefaults(t *testing.T) {
	d := DefaultMarkers()
	assert.Equal(t, d, Markers{
		Enter:      fixture.EnterMarker,
		Exit:       fixture.ExitMarker,
		Argument:   fixture.ArgumentMarker,
		This:       fixture.ThisMarker,
		EnterValue: fixture.EnterValueMarker,
		Return:     fixture.ReturnMarker,
	})
	assert.Equal(t, d, Markers{}.WithDefaults())
	custom := Markers{Enter: "Lx/In;"}.WithDefaults()
	assert.Equal(t, "Lx/In;", custom.Enter)
	assert.Equal(t, d.Exit, custom.Exit)
}

func TestResolveSample(t *testing.T) {
	r, err := Resolve(donorFile(t, fixture.SampleDonor().Methods...), Markers{})
	require.NoError(t, err)

	assert.Equal(t, fixture.DonorName, r.Donor)
	require.True(t, r.Enter.Alive())
	assert.Equal(t, "enter", r.Enter.Unit.Name)
	assert.Equal(t, Single, r.Enter.Footprint)
	require.True(t, r.Exit.Alive())
	assert.Equal(t, "exit", r.Exit.Unit.Name)
	assert.False(t, r.Exit.SkipOnException, "onException defaults to true")
	assert.Equal(t, Single, r.Exit.EnterFootprint)
}

func TestResolveEnterOnly(t *testing.T) {
	r, err := Resolve(donorFile(t, enterUnit("()I", nil, ret42...)), Markers{})
	require.NoError(t, err)
	assert.True(t, r.Enter.Alive())
	assert.False(t, r.Exit.Alive())
	assert.True(t, r.Exit.SkipOnException)
	assert.Equal(t, Single, r.Exit.EnterFootprint)
}

func TestResolveExitOnly(t *testing.T) {
	exit := exitUnit("()V", nil, retVoid)
	exit.Annotations = []classfile.Annotation{fixture.AnnBool(fixture.ExitMarker, "onException", false)}
	r, err := Resolve(donorFile(t, exit), Markers{})
	require.NoError(t, err)
	assert.False(t, r.Enter.Alive())
	assert.Equal(t, Zero, r.Enter.Footprint)
	assert.Equal(t, Zero, r.Exit.EnterFootprint)
	assert.True(t, r.Exit.SkipOnException)
}

func TestResolveDuplicateEnter(t *testing.T) {
	second := enterUnit("(I)I", [][]classfile.Annotation{{fixture.AnnInt(fixture.ArgumentMarker, "value", 0)}}, ret42...)
	_, err := Resolve(donorFile(t, enterUnit("()I", nil, ret42...), second), Markers{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateAdvice))
	assert.True(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), fixture.DonorName)
}

func TestResolveDuplicateExit(t *testing.T) {
	a := exitUnit("()V", nil, retVoid)
	b := exitUnit("()V", nil, retVoid)
	b.Name = "exit2"
	_, err := Resolve(donorFile(t, a, b), Markers{})
	assert.True(t, errors.Is(err, ErrDuplicateAdvice))
}

func TestResolveNonStatic(t *testing.T) {
	m := enterUnit("()I", nil, ret42...)
	m.Access = classfile.AccPublic
	_, err := Resolve(donorFile(t, m), Markers{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNonStaticAdvice))

	m.Access = static
	_, err = Resolve(donorFile(t, m), Markers{})
	assert.NoError(t, err)
}

func TestResolveNoAdvice(t *testing.T) {
	plain := fixture.Method{Access: static, Name: "helper", Descriptor: "()V", Code: fixture.Instrs(retVoid)}
	other := fixture.Method{Access: static, Name: "other", Descriptor: "()I", Code: fixture.Instrs(ret42...),
		Annotations: []classfile.Annotation{fixture.Ann("Lcom/acme/Unrelated;")}}
	for _, methods := range [][]fixture.Method{nil, {plain}, {plain, other}} {
		_, err := Resolve(donorFile(t, methods...), Markers{})
		assert.True(t, errors.Is(err, ErrNoAdvice), "%d methods", len(methods))
	}
}

func TestResolveCustomMarkers(t *testing.T) {
	m := enterUnit("()I", nil, ret42...)
	m.Annotations = []classfile.Annotation{fixture.Ann("Lcom/acme/Before;")}
	cf := donorFile(t, m)

	_, err := Resolve(cf, Markers{})
	assert.True(t, errors.Is(err, ErrNoAdvice))

	r, err := Resolve(cf, Markers{Enter: "Lcom/acme/Before;"})
	require.NoError(t, err)
	assert.True(t, r.Enter.Alive())
}

func TestResolveAbstractAdvice(t *testing.T) {
	m := enterUnit("()I", nil)
	m.Code = nil
	_, err := Resolve(donorFile(t, m), Markers{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoCodeAdvice))
	assert.True(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), fixture.DonorName+".enter()I")

	m = exitUnit("()V", nil)
	m.Code = nil
	m.Access |= classfile.AccNative
	_, err = Resolve(donorFile(t, enterUnit("()I", nil, ret42...), m), Markers{})
	assert.True(t, errors.Is(err, ErrNoCodeAdvice))
}

func TestNewDonorIO(t *testing.T) {
	_, err := New([]byte{0xCA, 0xFE}, Markers{})
	assert.True(t, errors.Is(err, ErrDonorIO))

	_, err = Load(locator.Memory{}, "com/acme/Missing", Markers{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDonorIO))
	assert.True(t, errors.Is(err, locator.ErrNotFound))
	assert.False(t, IsConfigurationError(err))

	a, err := Load(locator.Memory{fixture.DonorName: fixture.MustBuild(t, fixture.SampleDonor())}, fixture.DonorName, Markers{})
	require.NoError(t, err)
	assert.Equal(t, fixture.DonorName, a.Donor())
	assert.Equal(t, DefaultMarkers(), a.Markers())
}

func TestCodeUnit(t *testing.T) {
	cf := donorFile(t, fixture.SampleDonor().Methods...)
	m, _ := cf.Method("enter", "()I")
	u, err := newCodeUnit(cf, m)
	require.NoError(t, err)
	assert.True(t, u.Matches("enter", "()I"))
	assert.False(t, u.Matches("enter", "()J"))
	assert.Equal(t, 0, u.ParamSize)
	assert.Equal(t, Single, u.ReturnSize)
	assert.Equal(t, 1, u.MaxStack)
	assert.Equal(t, fixture.DonorName+".enter()I", u.String())

	assert.Equal(t, Double, StackSizeOf("D"))
	assert.Equal(t, Zero, StackSizeOf("V"))
	assert.Equal(t, "double", Double.String())
}
