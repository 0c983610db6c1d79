// Package batch weaves every selected class on a class path with one
// resolved advice, in parallel.
package batch

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/weft/advice"
	"github.com/chazu/weft/locator"
	"github.com/chazu/weft/store"
)

var log = commonlog.GetLogger("weft.batch")

// Source is a class path that can be enumerated.
type Source interface {
	locator.Locator
	locator.Lister
}

// Options configures a run.
type Options struct {
	Advice *advice.Advice
	// DonorBytes is the donor class as loaded; it is part of the cache key.
	DonorBytes []byte
	Targets    Source
	Include    []string
	Match      advice.Matcher
	// OutputDir receives woven classes laid out by package. Classes with no
	// woven method are not written.
	OutputDir string
	// Cache is optional.
	Cache *store.Cache
	// Previous holds the digests of the last run, usually rebuilt from its
	// report. A class whose digest is unchanged and whose output file still
	// holds the woven bytes is not rewritten. Optional.
	Previous *store.ContentStore
	Workers  int
}

// Result is the outcome of a run.
type Result struct {
	Report  *store.Report
	Digests *store.ContentStore
	// Written counts the class files written to OutputDir.
	Written int
	// Reused counts woven classes left in place because the previous run
	// already wrote the same bytes.
	Reused int
}

// Fingerprint identifies the parts of a weaving configuration that change
// the output for the same donor and target bytes.
func Fingerprint(a *advice.Advice, m advice.Matcher) string {
	return fmt.Sprintf("%s|%q|%q", a.Markers(), m.Names, m.Descriptors)
}

// Run weaves every class of opts.Targets passing opts.Include. A class that
// fails to weave is recorded in the report and the run continues; internal
// invariant violations abort the run.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Advice == nil {
		return nil, errors.New("batch: no advice")
	}
	if opts.Targets == nil {
		return nil, errors.New("batch: no target class path")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	var names []string
	if err := locator.Walk(opts.Targets, opts.Include, func(name string) error {
		names = append(names, name)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "listing targets")
	}
	log.Infof("weaving %d classes with %s on %d workers", len(names), opts.Advice.Donor(), workers)

	started := time.Now()
	res := &Result{
		Report:  store.NewReport(opts.Advice.Donor(), started),
		Digests: store.NewContentStore(),
	}
	classes := make([]store.ClassReport, len(names))
	fingerprint := Fingerprint(opts.Advice, opts.Match)
	var written, reused atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cr, outcome, err := weaveOne(ctx, opts, fingerprint, name, res.Digests)
			if err != nil {
				return err
			}
			switch outcome {
			case outputWritten:
				written.Add(1)
			case outputReused:
				reused.Add(1)
			}
			classes[i] = cr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.Report.Classes = classes
	res.Report.Duration = time.Since(started).Milliseconds()
	res.Written = int(written.Load())
	res.Reused = int(reused.Load())
	log.Infof("wove %d of %d classes (%d failed, %d up to date) in %dms",
		res.Report.Woven(), len(classes), res.Report.Failed(), res.Reused, res.Report.Duration)
	return res, nil
}

type outcome int

const (
	outputNone outcome = iota
	outputWritten
	outputReused
)

func weaveOne(ctx context.Context, opts Options, fingerprint, name string, digests *store.ContentStore) (store.ClassReport, outcome, error) {
	cr := store.ClassReport{Name: name}
	data, err := opts.Targets.Locate(name)
	if err != nil {
		cr.Error = err.Error()
		log.Errorf("%s: %s", name, err)
		return cr, outputNone, nil
	}

	var (
		out []byte
		key string
	)
	if opts.Cache != nil {
		key = store.CacheKey(opts.DonorBytes, data, fingerprint)
		cached, ok, err := opts.Cache.Get(ctx, key)
		if err != nil {
			return cr, outputNone, err
		}
		if ok {
			out = cached.Data
			cr.Methods = cached.Methods
			cr.Cached = true
			log.Debugf("%s: cache hit", name)
		}
	}

	if !cr.Cached {
		woven, results, err := opts.Advice.WeaveClass(data, opts.Match)
		if errors.IsAssertionFailure(err) {
			return cr, outputNone, errors.Wrapf(err, "class %s", name)
		}
		if err != nil {
			cr.Error = err.Error()
			log.Errorf("%s: %s", name, err)
			return cr, outputNone, nil
		}
		out = woven
		for _, r := range results {
			cr.Methods = append(cr.Methods, store.MethodReport{
				Name:       r.Name,
				Descriptor: r.Descriptor,
				Woven:      r.Woven,
				Skipped:    r.Skipped,
			})
		}
		if opts.Cache != nil {
			entry := &store.CacheEntry{Class: name, Data: out, Methods: cr.Methods}
			if err := opts.Cache.Put(ctx, key, entry); err != nil {
				return cr, outputNone, err
			}
		}
	}

	methods := store.WovenMethods(cr.Methods)
	cr.Digest = store.DigestClass(name, data, out, methods)
	digests.IndexClass(cr.Digest)
	if cr.Digest.Unchanged() || opts.OutputDir == "" {
		return cr, outputNone, nil
	}
	p := classFile(opts.OutputDir, name)
	if upToDate(opts.Previous, cr.Digest, p) {
		log.Debugf("%s: output up to date", name)
		return cr, outputReused, nil
	}
	if err := writeClass(p, name, out); err != nil {
		return cr, outputNone, err
	}
	return cr, outputWritten, nil
}

func classFile(dir, name string) string {
	return filepath.Join(dir, filepath.FromSlash(name)+".class")
}

// upToDate reports whether the previous run produced the same digest for
// this class and the file at p still holds its woven bytes.
func upToDate(previous *store.ContentStore, d *store.ClassDigest, p string) bool {
	if previous == nil {
		return false
	}
	prev := previous.LookupName(d.Name)
	if prev == nil || prev.Hash != d.Hash {
		return false
	}
	on, err := os.ReadFile(p)
	if err != nil {
		return false
	}
	return sha256.Sum256(on) == d.WovenHash
}

func writeClass(p, name string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrapf(err, "creating directory for %s", name)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", p)
	}
	return nil
}
