package store

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	r := NewReport("com/acme/Advice", time.Unix(1700000000, 0))
	r.Duration = 12
	r.Classes = []ClassReport{
		{
			Name:   "com/acme/A",
			Digest: DigestClass("com/acme/A", []byte("a"), []byte("a2"), []string{"run()V"}),
			Methods: []MethodReport{
				{Name: "run", Descriptor: "()V", Woven: true},
				{Name: "<init>", Descriptor: "()V", Skipped: "constructor"},
			},
		},
		{Name: "com/acme/B", Cached: true, Digest: DigestClass("com/acme/B", []byte("b"), []byte("b"), nil)},
		{Name: "com/acme/C", Error: "bad magic"},
	}
	return r
}

func TestReportCounts(t *testing.T) {
	r := sampleReport()
	assert.Equal(t, 1, r.Woven())
	assert.Equal(t, 1, r.Failed())
	_, err := uuid.Parse(r.RunID)
	assert.NoError(t, err)
}

func TestReportEncodingIsCanonical(t *testing.T) {
	r := sampleReport()
	a, err := MarshalReport(r)
	require.NoError(t, err)
	b, err := MarshalReport(r)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b))

	back, err := UnmarshalReport(a)
	require.NoError(t, err)
	assert.Equal(t, r.RunID, back.RunID)
	assert.Equal(t, r.Classes[0].Digest.Hash, back.Classes[0].Digest.Hash)
	assert.Equal(t, r.Classes[0].Methods, back.Classes[0].Methods)
}

func TestReportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.cbor")
	r := sampleReport()
	require.NoError(t, WriteReport(path, r))
	back, err := ReadReport(path)
	require.NoError(t, err)
	assert.Equal(t, r.Donor, back.Donor)
	assert.Len(t, back.Classes, 3)

	_, err = ReadReport(filepath.Join(t.TempDir(), "missing.cbor"))
	assert.Error(t, err)
	_, err = UnmarshalReport([]byte{0xFF})
	assert.Error(t, err)
}
