// Package locator finds class files by internal name (for example
// "com/acme/Service") in directories, jar archives and memory.
package locator

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("weft.locator")

// ErrNotFound is returned when no class of the requested name exists.
var ErrNotFound = errors.New("class not found")

// Locator returns the bytes of a class file.
type Locator interface {
	Locate(name string) ([]byte, error)
}

// Lister enumerates the classes a locator can return.
type Lister interface {
	List() ([]string, error)
}

func classPath(name string) string {
	return name + ".class"
}

// ---------------------------------------------------------------------------
// Directory
// ---------------------------------------------------------------------------

// Dir locates classes in a directory tree laid out by package.
type Dir struct {
	Root string
}

// Locate reads <root>/<name>.class.
func (d Dir) Locate(name string) ([]byte, error) {
	p := filepath.Join(d.Root, filepath.FromSlash(classPath(name)))
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrapf(ErrNotFound, "%s in %s", name, d.Root)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", p)
	}
	return data, nil
}

// List walks the directory for .class files.
func (d Dir) List() ([]string, error) {
	var names []string
	err := filepath.WalkDir(d.Root, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() || !strings.HasSuffix(p, ".class") {
			return nil
		}
		rel, err := filepath.Rel(d.Root, p)
		if err != nil {
			return err
		}
		names = append(names, strings.TrimSuffix(filepath.ToSlash(rel), ".class"))
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", d.Root)
	}
	sort.Strings(names)
	return names, nil
}

func (d Dir) String() string { return d.Root }

// ---------------------------------------------------------------------------
// Jar
// ---------------------------------------------------------------------------

// Jar locates classes inside a jar (zip) archive. The archive is opened on
// first use and kept open until Close.
type Jar struct {
	Path string

	once sync.Once
	zr   *zip.ReadCloser
	err  error
}

// NewJar returns a locator over the archive at path.
func NewJar(path string) *Jar {
	return &Jar{Path: path}
}

func (j *Jar) open() (*zip.ReadCloser, error) {
	j.once.Do(func() {
		j.zr, j.err = zip.OpenReader(j.Path)
		if j.err != nil {
			j.err = errors.Wrapf(j.err, "opening %s", j.Path)
		}
	})
	return j.zr, j.err
}

// Locate reads the named entry.
func (j *Jar) Locate(name string) ([]byte, error) {
	zr, err := j.open()
	if err != nil {
		return nil, err
	}
	f, err := zr.Open(classPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrapf(ErrNotFound, "%s in %s", name, j.Path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s in %s", name, j.Path)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s in %s", name, j.Path)
	}
	return data, nil
}

// List returns the classes in the archive, skipping module-info and
// multi-release entries.
func (j *Jar) List() ([]string, error) {
	zr, err := j.open()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, f := range zr.File {
		n := f.Name
		if !strings.HasSuffix(n, ".class") || strings.HasPrefix(n, "META-INF/") || strings.HasSuffix(n, "module-info.class") {
			continue
		}
		names = append(names, strings.TrimSuffix(n, ".class"))
	}
	sort.Strings(names)
	return names, nil
}

// Close releases the archive.
func (j *Jar) Close() error {
	if j.zr == nil {
		return nil
	}
	return j.zr.Close()
}

func (j *Jar) String() string { return j.Path }

// ---------------------------------------------------------------------------
// Memory
// ---------------------------------------------------------------------------

// Memory locates classes held in a map.
type Memory map[string][]byte

// Locate returns the stored bytes.
func (m Memory) Locate(name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s in memory", name)
	}
	return data, nil
}

// List returns the stored names.
func (m Memory) List() ([]string, error) {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// ---------------------------------------------------------------------------
// Compound
// ---------------------------------------------------------------------------

// Compound tries each locator in order, like a class path.
type Compound []Locator

// Locate returns the first hit. Errors other than ErrNotFound stop the
// search.
func (c Compound) Locate(name string) ([]byte, error) {
	for _, l := range c {
		data, err := l.Locate(name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "%s on class path", name)
}

// List merges the listings of every member that can list, keeping the
// first occurrence of each name.
func (c Compound) List() ([]string, error) {
	seen := make(map[string]bool)
	var names []string
	for _, l := range c {
		lister, ok := l.(Lister)
		if !ok {
			continue
		}
		ls, err := lister.List()
		if err != nil {
			return nil, err
		}
		for _, n := range ls {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close closes every member that holds resources.
func (c Compound) Close() error {
	var errs error
	for _, l := range c {
		if cl, ok := l.(io.Closer); ok {
			errs = errors.CombineErrors(errs, cl.Close())
		}
	}
	return errs
}

// ForPath builds a compound locator from class path entries: directories
// and .jar/.zip files.
func ForPath(entries []string) (Compound, error) {
	c := make(Compound, 0, len(entries))
	for _, e := range entries {
		st, err := os.Stat(e)
		if err != nil {
			return nil, errors.Wrapf(err, "class path entry %s", e)
		}
		switch {
		case st.IsDir():
			c = append(c, Dir{Root: e})
		case strings.HasSuffix(e, ".jar"), strings.HasSuffix(e, ".zip"):
			c = append(c, NewJar(e))
		default:
			return nil, errors.Newf("class path entry %s is neither a directory nor an archive", e)
		}
		log.Debugf("class path entry %s", e)
	}
	return c, nil
}

// Walk calls fn for every class the locator lists whose name passes
// include (path.Match globs; empty means all).
func Walk(l Lister, include []string, fn func(name string) error) error {
	names, err := l.List()
	if err != nil {
		return err
	}
	for _, n := range names {
		if !Included(include, n) {
			continue
		}
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}
