package advice

import (
	"github.com/cockroachdb/errors"

	"github.com/chazu/weft/bytecode"
	"github.com/chazu/weft/classfile"
)

// copier extracts an advice method from the donor's bytes. It parses the
// donor afresh on every call, so each splice gets its own labels.
type copier struct {
	donor []byte
	name  string
}

// copy decodes the method matching t.unit and runs it through t. Every
// other donor method produces nothing.
func (c copier) copy(t *translator) error {
	cf, err := classfile.Parse(c.donor)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "donor %s", c.name), ErrDonorIO)
	}
	found := false
	for _, m := range cf.Methods {
		if !t.unit.Matches(m.Name, m.Descriptor) {
			continue
		}
		if found {
			return errors.AssertionFailedf("donor %s declares %s twice", c.name, t.unit)
		}
		found = true
		instrs, err := bytecode.DecodeMethod(m, cf.Pool)
		if err != nil {
			return errors.Wrapf(err, "donor %s", c.name)
		}
		t.donor = cf
		for _, in := range instrs {
			if err := t.translate(in); err != nil {
				return errors.Wrapf(err, "%s advice %s", t.variant, t.unit)
			}
		}
		t.finish()
	}
	if !found {
		return errors.AssertionFailedf("advice method %s not found in donor %s", t.unit, c.name)
	}
	return nil
}
