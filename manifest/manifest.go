// Package manifest handles weft.toml project configuration.
package manifest

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"

	"github.com/chazu/weft/advice"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "weft.toml"

// Manifest represents a weft.toml project configuration.
type Manifest struct {
	Project Project        `toml:"project"`
	Donor   Donor          `toml:"donor"`
	Targets Targets        `toml:"targets"`
	Markers advice.Markers `toml:"markers"`
	Output  Output         `toml:"output"`
	Log     Log            `toml:"log"`
	Workers Workers        `toml:"workers"`

	// Dir is the directory containing the weft.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Donor names the class holding the advice and where to find it.
type Donor struct {
	Class     string   `toml:"class"`
	Classpath []string `toml:"classpath"`
}

// Targets selects the classes and methods to weave.
type Targets struct {
	Classpath   []string `toml:"classpath"`
	Include     []string `toml:"include"`
	Methods     []string `toml:"methods"`
	Descriptors []string `toml:"descriptors"`
}

// Output configures where results go. Empty Cache or Report disables them.
// CacheTTL is a duration such as "720h"; cache entries older than that are
// pruned before each run. Empty keeps entries forever.
type Output struct {
	Dir      string `toml:"dir"`
	Cache    string `toml:"cache"`
	CacheTTL string `toml:"cache-ttl"`
	Report   string `toml:"report"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Workers sizes the weaving pool.
type Workers struct {
	Count int `toml:"count"`
}

// Load parses a weft.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read %s", path)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse error in %s", path)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot resolve path %s", dir)
	}
	return m, nil
}

// Parse decodes manifest text and fills defaults. Dir is left empty, so
// relative paths resolve against the working directory.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if len(m.Donor.Classpath) == 0 {
		m.Donor.Classpath = m.Targets.Classpath
	}
	if m.Output.Dir == "" {
		m.Output.Dir = "woven"
	}
	if m.Workers.Count <= 0 {
		m.Workers.Count = runtime.NumCPU()
	}
	m.Markers = m.Markers.WithDefaults()
}

// Validate reports missing required settings.
func (m *Manifest) Validate() error {
	if m.Donor.Class == "" {
		return errors.New("[donor] class is required")
	}
	if len(m.Targets.Classpath) == 0 {
		return errors.New("[targets] classpath is required")
	}
	if _, err := m.CacheTTL(); err != nil {
		return err
	}
	return nil
}

// FindAndLoad walks up from startDir to find a weft.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Path resolves p against the manifest directory.
func (m *Manifest) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

func (m *Manifest) paths(ps []string) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, m.Path(p))
	}
	return out
}

// DonorClasspath returns the donor class path entries as paths.
func (m *Manifest) DonorClasspath() []string { return m.paths(m.Donor.Classpath) }

// TargetClasspath returns the target class path entries as paths.
func (m *Manifest) TargetClasspath() []string { return m.paths(m.Targets.Classpath) }

// OutputDir returns the directory woven classes are written to.
func (m *Manifest) OutputDir() string { return m.Path(m.Output.Dir) }

// CachePath returns the cache database path, or "" when caching is off.
func (m *Manifest) CachePath() string { return m.Path(m.Output.Cache) }

// CacheTTL returns the parsed [output] cache-ttl, or 0 when unset.
func (m *Manifest) CacheTTL() (time.Duration, error) {
	if m.Output.CacheTTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(m.Output.CacheTTL)
	if err != nil {
		return 0, errors.Wrap(err, "[output] cache-ttl")
	}
	if d < 0 {
		return 0, errors.Newf("[output] cache-ttl %s is negative", m.Output.CacheTTL)
	}
	return d, nil
}

// ReportPath returns the report path, or "" when no report is written.
func (m *Manifest) ReportPath() string { return m.Path(m.Output.Report) }

// LogFile returns the log file path, or nil to log to stderr.
func (m *Manifest) LogFile() *string {
	if m.Log.File == "" {
		return nil
	}
	p := m.Path(m.Log.File)
	return &p
}

// Matcher returns the method selector described by [targets].
func (m *Manifest) Matcher() advice.Matcher {
	return advice.Matcher{Names: m.Targets.Methods, Descriptors: m.Targets.Descriptors}
}
