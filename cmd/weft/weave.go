package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/chazu/weft/advice"
	"github.com/chazu/weft/batch"
	"github.com/chazu/weft/locator"
	"github.com/chazu/weft/manifest"
	"github.com/chazu/weft/store"
)

func cmdWeave(args []string) error {
	fs := flag.NewFlagSet("weave", flag.ExitOnError)
	dir := fs.String("C", ".", "directory to search upwards for weft.toml")
	verbosity := fs.Int("v", -1, "log verbosity (overrides [log] verbosity)")
	workers := fs.Int("workers", 0, "number of parallel workers (overrides [workers] count)")
	outDir := fs.String("out", "", "output directory (overrides [output] dir)")
	noCache := fs.Bool("no-cache", false, "ignore the weave cache")
	digests := fs.Bool("digests", false, "print the content digest of every woven class")
	if err := fs.Parse(args); err != nil {
		return err
	}

	m, err := manifest.FindAndLoad(*dir)
	if err != nil {
		return err
	}
	if m == nil {
		return errors.Newf("no %s found in %s or its parents", manifest.FileName, *dir)
	}
	if *verbosity >= 0 {
		m.Log.Verbosity = *verbosity
	}
	configureLogging(m.Log.Verbosity, m.LogFile())
	if *workers > 0 {
		m.Workers.Count = *workers
	}
	if *outDir != "" {
		m.Output.Dir = *outDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := weaveProject(ctx, m, !*noCache)
	if err != nil {
		return err
	}
	r := res.Report
	fmt.Printf("%s: wove %d of %d classes, wrote %d to %s, %d up to date (%dms)\n",
		r.Donor, r.Woven(), len(r.Classes), res.Written, m.OutputDir(), res.Reused, r.Duration)
	if *digests {
		printDigests(os.Stdout, store.IndexReport(r))
	}
	if n := r.Failed(); n > 0 {
		for _, c := range r.Classes {
			if c.Error != "" {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", c.Name, c.Error)
			}
		}
		return errors.Newf("%d classes failed", n)
	}
	return nil
}

// printDigests lists each indexed class as its content hash and name.
func printDigests(w io.Writer, cs *store.ContentStore) {
	fmt.Fprintf(w, "%d class digests\n", cs.ClassCount())
	for _, d := range cs.Digests() {
		fmt.Fprintf(w, "  %x  %s  %s\n", d.Hash[:8], d.Name, strings.Join(d.WovenMethods, " "))
	}
}

// weaveProject runs the whole manifest: resolve the donor, weave the
// targets, write the report. The previous report, when present, lets
// batch.Run leave output files that are already current alone.
func weaveProject(ctx context.Context, m *manifest.Manifest, useCache bool) (*batch.Result, error) {
	donorPath, err := locator.ForPath(m.DonorClasspath())
	if err != nil {
		return nil, err
	}
	defer donorPath.Close()
	donor, err := donorPath.Locate(m.Donor.Class)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "donor %s", m.Donor.Class), advice.ErrDonorIO)
	}
	a, err := advice.New(donor, m.Markers)
	if err != nil {
		return nil, errors.Wrapf(err, "donor %s", m.Donor.Class)
	}

	targets, err := locator.ForPath(m.TargetClasspath())
	if err != nil {
		return nil, err
	}
	defer targets.Close()

	opts := batch.Options{
		Advice:     a,
		DonorBytes: donor,
		Targets:    targets,
		Include:    m.Targets.Include,
		Match:      m.Matcher(),
		OutputDir:  m.OutputDir(),
		Workers:    m.Workers.Count,
	}
	if p := m.CachePath(); p != "" && useCache {
		cache, err := store.OpenCache(p)
		if err != nil {
			return nil, err
		}
		defer cache.Close()
		opts.Cache = cache

		ttl, err := m.CacheTTL()
		if err != nil {
			return nil, err
		}
		if ttl > 0 {
			n, err := cache.Prune(ctx, time.Now().Add(-ttl))
			if err != nil {
				return nil, err
			}
			log.Infof("pruned %d cache entries older than %s", n, ttl)
		}
	}
	if p := m.ReportPath(); p != "" {
		prev, err := previousReport(p)
		if err != nil {
			return nil, err
		}
		if prev != nil {
			opts.Previous = store.IndexReport(prev)
		}
	}

	res, err := batch.Run(ctx, opts)
	if err != nil {
		return nil, err
	}
	if p := m.ReportPath(); p != "" {
		if err := store.WriteReport(p, res.Report); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// previousReport reads the report of the last run, or returns nil when
// there is none yet.
func previousReport(path string) (*store.Report, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	r, err := store.ReadReport(path)
	if err != nil {
		log.Warningf("ignoring previous report: %s", err)
		return nil, nil
	}
	return r, nil
}
