package advice

import (
	"github.com/cockroachdb/errors"

	"github.com/chazu/weft/bytecode"
	"github.com/chazu/weft/classfile"
	"github.com/chazu/weft/locator"
)

// Advice weaves one donor's resolved advice into target methods. It is
// immutable after construction and safe for concurrent use.
type Advice struct {
	resolved *Resolved
	markers  Markers
	copier   copier
}

// New resolves the advice declared by the donor class file.
func New(donor []byte, markers Markers) (*Advice, error) {
	cf, err := classfile.Parse(donor)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parsing donor class"), ErrDonorIO)
	}
	markers = markers.WithDefaults()
	r, err := Resolve(cf, markers)
	if err != nil {
		return nil, err
	}
	return &Advice{
		resolved: r,
		markers:  markers,
		copier:   copier{donor: donor, name: cf.Name()},
	}, nil
}

// Load locates the donor class by internal name and resolves its advice.
func Load(loc locator.Locator, name string, markers Markers) (*Advice, error) {
	data, err := loc.Locate(name)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "donor %s", name), ErrDonorIO)
	}
	a, err := New(data, markers)
	if err != nil {
		return nil, errors.Wrapf(err, "donor %s", name)
	}
	return a, nil
}

// Resolved returns the resolved dispatchers.
func (a *Advice) Resolved() *Resolved { return a.resolved }

// Markers returns the marker annotations in effect.
func (a *Advice) Markers() Markers { return a.markers }

// Donor returns the donor's internal name.
func (a *Advice) Donor() string { return a.resolved.Donor }

// Weave rewrites a target method's instruction stream:
//
//   - after code-start, the entry advice is spliced in
//   - target locals at or above the declared size move up by the entry
//     footprint
//   - before each return, a non-void value is duplicated into slot S+F and
//     the exit advice is spliced in
//   - before athrow, the exit advice is spliced in unless it skips
//     exceptions
//
// importer re-homes donor constants into the target class; it may be nil
// when the stream is not going to be assembled.
func (a *Advice) Weave(view MethodView, tables Tables, in []bytecode.Instruction, importer *classfile.Importer) ([]bytecode.Instruction, error) {
	w := &weaving{advice: a, view: view, tables: tables, importer: importer}
	out := make(bytecode.Buffer, 0, len(in)+32)
	w.out = &out
	for _, ins := range in {
		if err := w.visit(ins); err != nil {
			return nil, errors.Wrapf(err, "weaving %s", view)
		}
	}
	return out, nil
}

type weaving struct {
	advice   *Advice
	view     MethodView
	tables   Tables
	importer *classfile.Importer
	out      *bytecode.Buffer
}

func (w *weaving) footprint() int {
	return int(w.advice.resolved.Enter.Footprint)
}

// returnSlot is S+F, where the value about to be returned is kept.
func (w *weaving) returnSlot() int {
	return w.view.DeclaredSize + w.footprint()
}

func (w *weaving) shift(slot int) int {
	if slot < w.view.DeclaredSize {
		return slot
	}
	return slot + w.footprint()
}

func (w *weaving) visit(in bytecode.Instruction) error {
	switch in.Kind {
	case bytecode.KindMetadata:
		if in.Meta == bytecode.MetaLocalVariable {
			lv := *in.Local
			lv.Slot = w.shift(lv.Slot)
			in.Local = &lv
		}
		w.out.Emit(in)
		if in.Meta == bytecode.MetaCodeStart {
			return w.enter()
		}
		return nil
	case bytecode.KindLocal:
		w.out.Emit(in.WithVar(w.shift(in.Var)))
		return nil
	case bytecode.KindReturn:
		if in.Op != bytecode.OpReturn {
			dup := bytecode.OpDup
			if in.Op.Width() == 2 {
				dup = bytecode.OpDup2
			}
			w.out.Emit(bytecode.Op(dup))
			w.out.Emit(bytecode.Local(bytecode.OpIstore+(in.Op-bytecode.OpIreturn), w.returnSlot()))
		}
		if err := w.exit(); err != nil {
			return err
		}
		w.out.Emit(in)
		return nil
	case bytecode.KindThrow:
		if !w.advice.resolved.Exit.SkipOnException {
			w.storeReturnSentinel()
			if err := w.exit(); err != nil {
				return err
			}
		}
		w.out.Emit(in)
		return nil
	case bytecode.KindOther, bytecode.KindJump, bytecode.KindLabel, bytecode.KindTryCatch:
		w.out.Emit(in)
		return nil
	}
	return errors.AssertionFailedf("unhandled instruction kind %s", in.Kind)
}

// storeReturnSentinel fills the return slot with the return type's zero
// value so an exit advice bound to the return value reads a defined value
// when the method terminates by throwing.
func (w *weaving) storeReturnSentinel() {
	if w.view.ReturnSize == Zero {
		return
	}
	var push bytecode.Opcode
	switch w.view.Return[0] {
	case 'J':
		push = bytecode.OpLconst0
	case 'F':
		push = bytecode.OpFconst0
	case 'D':
		push = bytecode.OpDconst0
	case 'L', '[':
		push = bytecode.OpAconstNull
	default:
		push = bytecode.OpIconst0
	}
	w.out.Emit(bytecode.Op(push))
	w.out.Emit(bytecode.Local(bytecode.StoreFor(string(w.view.Return)), w.returnSlot()))
}

func (w *weaving) enter() error {
	e := w.advice.resolved.Enter
	if !e.Alive() {
		return nil
	}
	t := newTranslator(retaining, w.out, w.view, e.Unit, w.tables.Enter, e.Footprint)
	return w.splice(t)
}

func (w *weaving) exit() error {
	x := w.advice.resolved.Exit
	if !x.Alive() {
		return nil
	}
	t := newTranslator(discarding, w.out, w.view, x.Unit, w.tables.Exit, x.EnterFootprint)
	return w.splice(t)
}

func (w *weaving) splice(t *translator) error {
	t.importer = w.importer
	if err := w.advice.copier.copy(t); err != nil {
		return err
	}
	log.Debugf("spliced %s advice %s into %s: %d instructions", t.variant, t.unit.Name, w.view, t.emitted)
	return nil
}
