package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// cborEncMode uses canonical encoding so equal reports encode to equal
// bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("store: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// EncMode returns the canonical CBOR encoder shared by weft's wire formats.
func EncMode() cbor.EncMode { return cborEncMode }

// Report summarises one weaving run.
type Report struct {
	RunID    string        `cbor:"1,keyasint"`
	Donor    string        `cbor:"2,keyasint"`
	Started  int64         `cbor:"3,keyasint"` // unix seconds
	Duration int64         `cbor:"4,keyasint"` // milliseconds
	Classes  []ClassReport `cbor:"5,keyasint"`
}

// ClassReport is the outcome for one target class.
type ClassReport struct {
	Name    string         `cbor:"1,keyasint"`
	Cached  bool           `cbor:"2,keyasint,omitempty"`
	Error   string         `cbor:"3,keyasint,omitempty"`
	Digest  *ClassDigest   `cbor:"4,keyasint,omitempty"`
	Methods []MethodReport `cbor:"5,keyasint,omitempty"`
}

// MethodReport is the outcome for one method.
type MethodReport struct {
	Name       string `cbor:"1,keyasint"`
	Descriptor string `cbor:"2,keyasint"`
	Woven      bool   `cbor:"3,keyasint"`
	Skipped    string `cbor:"4,keyasint,omitempty"`
}

// WovenMethods returns name+descriptor of each woven method.
func WovenMethods(methods []MethodReport) []string {
	var out []string
	for _, m := range methods {
		if m.Woven {
			out = append(out, m.Name+m.Descriptor)
		}
	}
	return out
}

// NewReport starts a report with a fresh run id.
func NewReport(donor string, started time.Time) *Report {
	return &Report{
		RunID:   uuid.New().String(),
		Donor:   donor,
		Started: started.Unix(),
	}
}

// Woven counts the classes whose bytes changed.
func (r *Report) Woven() int {
	n := 0
	for _, c := range r.Classes {
		if c.Digest != nil && !c.Digest.Unchanged() {
			n++
		}
	}
	return n
}

// Failed counts the classes that could not be woven.
func (r *Report) Failed() int {
	n := 0
	for _, c := range r.Classes {
		if c.Error != "" {
			n++
		}
	}
	return n
}

// MarshalReport serializes a report to CBOR bytes.
func MarshalReport(r *Report) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalReport deserializes a report from CBOR bytes.
func UnmarshalReport(data []byte) (*Report, error) {
	var r Report
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "store: unmarshal report")
	}
	return &r, nil
}

// WriteReport writes the report to path, creating parent directories.
func WriteReport(path string, r *Report) error {
	data, err := MarshalReport(r)
	if err != nil {
		return errors.Wrap(err, "store: marshal report")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating report directory for %s", path)
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "writing report %s", path)
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading report %s", path)
	}
	return UnmarshalReport(data)
}
