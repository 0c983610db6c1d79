package advice

import "github.com/cockroachdb/errors"

// Configuration errors. They are detected while resolving a donor, before
// any target is touched, and are wrapped with the offending donor and
// method.
var (
	ErrDuplicateAdvice = errors.New("duplicate advice")
	ErrNonStaticAdvice = errors.New("advice method is not static")
	ErrNoCodeAdvice    = errors.New("advice method has no code")
	ErrNoAdvice        = errors.New("no advice defined")
	ErrBinding         = errors.New("invalid advice parameter binding")
)

// ErrDonorIO marks failures to read or parse the donor class file.
var ErrDonorIO = errors.New("cannot read donor class")

// IsConfigurationError reports whether err stems from an invalid donor or
// binding rather than I/O or an internal defect.
func IsConfigurationError(err error) bool {
	return errors.IsAny(err, ErrDuplicateAdvice, ErrNonStaticAdvice, ErrNoCodeAdvice, ErrNoAdvice, ErrBinding)
}
