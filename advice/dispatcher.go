package advice

import (
	"github.com/cockroachdb/errors"

	"github.com/chazu/weft/classfile"
)

// Dispatcher is a candidate advice method during resolution. The zero
// value is inactive; a dispatcher with a Unit is pending.
type Dispatcher struct {
	Unit *CodeUnit
}

// Alive reports whether the dispatcher is pending on a unit.
func (d Dispatcher) Alive() bool { return d.Unit != nil }

func (d Dispatcher) String() string {
	if d.Unit == nil {
		return "inactive"
	}
	return d.Unit.String()
}

// ForEnter is the resolved entry dispatcher.
type ForEnter struct {
	Unit *CodeUnit
	// Footprint is the size of the entry advice's return value, reserved at
	// slot S of every woven method. Zero when inactive.
	Footprint StackSize
}

// Alive reports whether there is an entry advice.
func (e *ForEnter) Alive() bool { return e.Unit != nil }

// ForExit is the resolved exit dispatcher.
type ForExit struct {
	Unit *CodeUnit
	// SkipOnException is set when the exit advice does not run on athrow.
	// Always set when inactive.
	SkipOnException bool
	// EnterFootprint is the paired entry dispatcher's footprint.
	EnterFootprint StackSize
}

// Alive reports whether there is an exit advice.
func (e *ForExit) Alive() bool { return e.Unit != nil }

func (d Dispatcher) asEnter() *ForEnter {
	if d.Unit == nil {
		return &ForEnter{Footprint: Zero}
	}
	return &ForEnter{Unit: d.Unit, Footprint: d.Unit.ReturnSize}
}

func (d Dispatcher) asExit(enter *ForEnter, markers Markers) (*ForExit, error) {
	if d.Unit == nil {
		return &ForExit{SkipOnException: true, EnterFootprint: enter.Footprint}, nil
	}
	ann, _ := d.Unit.Annotation(markers.Exit)
	onException, err := ann.Bool(elementOnException, true)
	if err != nil {
		return nil, errors.Wrapf(err, "exit advice %s", d.Unit)
	}
	return &ForExit{Unit: d.Unit, SkipOnException: !onException, EnterFootprint: enter.Footprint}, nil
}

// Resolved is the validated advice pair of one donor class. It is
// immutable and shared by every method woven with the donor.
type Resolved struct {
	Donor string
	Enter *ForEnter
	Exit  *ForExit
}

// Resolve scans the donor's declared methods once and classifies the
// entry and exit advice.
func Resolve(donor *classfile.ClassFile, markers Markers) (*Resolved, error) {
	markers = markers.WithDefaults()
	var enter, exit Dispatcher
	for _, m := range donor.Methods {
		anns, err := m.Annotations(donor.Pool)
		if err != nil {
			return nil, errors.Wrapf(err, "donor %s", donor.Name())
		}
		if _, ok := classfile.FindAnnotation(anns, markers.Enter); ok {
			if enter, err = promote(donor, enter, m); err != nil {
				return nil, err
			}
		}
		if _, ok := classfile.FindAnnotation(anns, markers.Exit); ok {
			if exit, err = promote(donor, exit, m); err != nil {
				return nil, err
			}
		}
	}
	if !enter.Alive() && !exit.Alive() {
		return nil, errors.Wrapf(ErrNoAdvice, "donor %s", donor.Name())
	}
	r := &Resolved{Donor: donor.Name(), Enter: enter.asEnter()}
	var err error
	if r.Exit, err = exit.asExit(r.Enter, markers); err != nil {
		return nil, err
	}
	log.Debugf("resolved donor %s: enter=%s (footprint %s) exit=%s (skip on exception %t)",
		r.Donor, enter, r.Enter.Footprint, exit, r.Exit.SkipOnException)
	return r, nil
}

func promote(donor *classfile.ClassFile, d Dispatcher, m *classfile.Member) (Dispatcher, error) {
	if d.Alive() {
		return d, errors.Wrapf(ErrDuplicateAdvice, "%s and %s%s in %s", d.Unit, m.Name, m.Descriptor, donor.Name())
	}
	if !m.IsStatic() {
		return d, errors.Wrapf(ErrNonStaticAdvice, "%s.%s%s", donor.Name(), m.Name, m.Descriptor)
	}
	u, err := newCodeUnit(donor, m)
	if err != nil {
		return d, errors.Wrapf(err, "donor %s", donor.Name())
	}
	if !u.HasCode {
		return d, errors.Wrapf(ErrNoCodeAdvice, "%s", u)
	}
	return Dispatcher{Unit: u}, nil
}
