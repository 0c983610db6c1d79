package batch

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/weft/advice"
	"github.com/chazu/weft/internal/fixture"
	"github.com/chazu/weft/locator"
	"github.com/chazu/weft/store"
)

func sampleOptions(t *testing.T) Options {
	t.Helper()
	donor := fixture.MustBuild(t, fixture.SampleDonor())
	a, err := advice.New(donor, advice.Markers{})
	require.NoError(t, err)

	other := fixture.SampleTarget()
	other.Name = "com/acme/Other"
	targets := locator.Memory{
		fixture.TargetName: fixture.MustBuild(t, fixture.SampleTarget()),
		"com/acme/Other":   fixture.MustBuild(t, other),
		"com/acme/Broken":  []byte("not a class"),
		"org/else/Skipped": fixture.MustBuild(t, fixture.SampleTarget()),
	}
	return Options{
		Advice:     a,
		DonorBytes: donor,
		Targets:    targets,
		Include:    []string{"com/acme/*"},
		OutputDir:  t.TempDir(),
		Workers:    3,
	}
}

func TestRun(t *testing.T) {
	opts := sampleOptions(t)
	res, err := Run(context.Background(), opts)
	require.NoError(t, err)

	r := res.Report
	require.Len(t, r.Classes, 3)
	// Walk lists names in sorted order and the report keeps it.
	assert.Equal(t, "com/acme/Broken", r.Classes[0].Name)
	assert.Equal(t, "com/acme/Other", r.Classes[1].Name)
	assert.Equal(t, fixture.TargetName, r.Classes[2].Name)

	assert.NotEmpty(t, r.Classes[0].Error)
	assert.Equal(t, 1, r.Failed())
	assert.Equal(t, 2, r.Woven())
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, 2, res.Digests.ClassCount())
	assert.NotEmpty(t, r.RunID)

	d := res.Digests.LookupName(fixture.TargetName)
	require.NotNil(t, d)
	assert.Equal(t, []string{"echo(Ljava/lang/String;)Ljava/lang/String;", "fail()V", "twice(I)I"}, d.WovenMethods)

	_, err = os.Stat(filepath.Join(opts.OutputDir, "com", "acme", "Service.class"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(opts.OutputDir, "org", "else", "Skipped.class"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunUnmatchedClassesAreNotWritten(t *testing.T) {
	opts := sampleOptions(t)
	opts.Include = []string{fixture.TargetName}
	opts.Match = advice.Matcher{Names: []string{"nothing"}}

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, res.Report.Classes, 1)
	assert.Equal(t, 0, res.Written)
	assert.True(t, res.Report.Classes[0].Digest.Unchanged())
}

func TestRunWithCache(t *testing.T) {
	opts := sampleOptions(t)
	opts.Include = []string{fixture.TargetName}
	cache, err := store.OpenCache(":memory:")
	require.NoError(t, err)
	defer cache.Close()
	opts.Cache = cache

	first, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.False(t, first.Report.Classes[0].Cached)

	n, err := cache.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	second, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, second.Report.Classes[0].Cached)
	assert.Equal(t, first.Report.Classes[0].Digest.Hash, second.Report.Classes[0].Digest.Hash)
	// A cache hit reports every method, skipped ones included.
	require.Len(t, first.Report.Classes[0].Methods, 4)
	assert.Equal(t, first.Report.Classes[0].Methods, second.Report.Classes[0].Methods)
	assert.Equal(t, "constructor", second.Report.Classes[0].Methods[0].Skipped)

	// A different matcher is a different cache key.
	opts.Match = advice.Matcher{Names: []string{"twice"}}
	third, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.False(t, third.Report.Classes[0].Cached)
}

func TestRunReusesUpToDateOutput(t *testing.T) {
	opts := sampleOptions(t)
	opts.Include = []string{"com/acme/*"}

	first, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Written)

	opts.Previous = store.IndexReport(first.Report)
	second, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Written)
	assert.Equal(t, 2, second.Reused)
	assert.Equal(t, first.Report.Woven(), second.Report.Woven())

	// A damaged output file is rewritten even though the digest matches.
	p := filepath.Join(opts.OutputDir, "com", "acme", "Other.class")
	require.NoError(t, os.WriteFile(p, []byte("stale"), 0o644))
	third, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, third.Written)
	assert.Equal(t, 1, third.Reused)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, third.Report.Classes[1].Digest.WovenHash, sha256.Sum256(data))
}

func TestRunCancelled(t *testing.T) {
	opts := sampleOptions(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, opts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunRequiresAdvice(t *testing.T) {
	_, err := Run(context.Background(), Options{Targets: locator.Memory{}})
	assert.Error(t, err)
}
