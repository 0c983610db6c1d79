package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/weft/advice"
	"github.com/chazu/weft/internal/fixture"
)

func sampleAdvice(t *testing.T) *advice.Advice {
	t.Helper()
	a, err := advice.New(fixture.MustBuild(t, fixture.SampleDonor()), advice.Markers{})
	require.NoError(t, err)
	return a
}

func TestHandleStoreCreateLookupRelease(t *testing.T) {
	s := NewHandleStore()
	a := sampleAdvice(t)

	id := s.Create("k1", a)
	assert.Equal(t, id, s.Create("k1", a), "same key returns the existing handle")

	got, ok := s.Lookup(id)
	require.True(t, ok)
	assert.Same(t, a, got)

	foundID, _, ok := s.Find("k1")
	require.True(t, ok)
	assert.Equal(t, id, foundID)

	assert.True(t, s.Release(id))
	assert.False(t, s.Release(id))
	_, _, ok = s.Find("k1")
	assert.False(t, ok)
}

func TestHandleStoreSweep(t *testing.T) {
	s := NewHandleStore()
	a := sampleAdvice(t)
	s.Create("old", a)
	time.Sleep(20 * time.Millisecond)
	fresh := s.Create("fresh", a)

	assert.Equal(t, 1, s.Sweep(10*time.Millisecond))
	assert.Equal(t, 1, s.Len())
	_, ok := s.Lookup(fresh)
	assert.True(t, ok)
}

func TestDonorKeyDependsOnMarkers(t *testing.T) {
	donor := []byte("donor")
	assert.Equal(t, DonorKey(donor, advice.Markers{}), DonorKey(donor, advice.DefaultMarkers()))
	assert.NotEqual(t, DonorKey(donor, advice.Markers{}), DonorKey(donor, advice.Markers{Enter: "LOther;"}))
}
