package advice

import (
	"github.com/cockroachdb/errors"

	"github.com/chazu/weft/bytecode"
	"github.com/chazu/weft/classfile"
)

// variant selects how a translator handles the donor's return
// instructions.
type variant int

const (
	// retaining stores the returned value at slot S. Used for entry advice.
	retaining variant = iota
	// discarding pops the returned value. Used for exit advice.
	discarding
)

func (v variant) String() string {
	if v == retaining {
		return "enter"
	}
	return "exit"
}

// translator rewrites one donor method's instruction stream into a target
// method's stream. A translator serves exactly one splice.
type translator struct {
	variant variant
	sink    bytecode.Sink
	view    MethodView
	unit    *CodeUnit
	table   OffsetTable
	// extra is added to rebased slots: zero when retaining, R+F when
	// discarding.
	extra int
	end   *bytecode.Label

	donor    *classfile.ClassFile
	importer *classfile.Importer

	emitted int
}

func newTranslator(v variant, sink bytecode.Sink, view MethodView, unit *CodeUnit, table OffsetTable, enterFootprint StackSize) *translator {
	t := &translator{
		variant: v,
		sink:    sink,
		view:    view,
		unit:    unit,
		table:   table,
		end:     &bytecode.Label{},
	}
	if v == discarding {
		t.extra = int(view.ReturnSize) + int(enterFootprint)
	}
	return t
}

func (t *translator) emit(in bytecode.Instruction) {
	t.sink.Emit(in)
	t.emitted++
}

// slot maps a donor local slot into the target frame.
func (t *translator) slot(donorSlot int) int {
	if target, ok := t.table.Lookup(donorSlot); ok {
		return target
	}
	return donorSlot + t.view.DeclaredSize - t.unit.ParamSize + t.extra
}

func (t *translator) translate(in bytecode.Instruction) error {
	switch in.Kind {
	case bytecode.KindMetadata:
		return nil
	case bytecode.KindLocal:
		t.emit(in.WithVar(t.slot(in.Var)))
		return nil
	case bytecode.KindReturn:
		t.onReturn(in.Op)
		return nil
	case bytecode.KindTryCatch:
		tc := *in.Try
		if tc.Type != 0 {
			idx, err := t.rehome(tc.Type)
			if err != nil {
				return err
			}
			tc.Type = idx
		}
		t.emit(bytecode.Catch(&tc))
		return nil
	case bytecode.KindOther:
		if hasConstant(in.Op) {
			idx, err := t.rehome(in.Const)
			if err != nil {
				return errors.Wrapf(err, "%s", in.Op)
			}
			in.Const = idx
		}
		t.emit(in)
		return nil
	case bytecode.KindLabel, bytecode.KindJump, bytecode.KindThrow:
		t.emit(in)
		return nil
	}
	return errors.AssertionFailedf("unhandled instruction kind %s", in.Kind)
}

func (t *translator) onReturn(op bytecode.Opcode) {
	if op != bytecode.OpReturn {
		switch t.variant {
		case retaining:
			store := bytecode.OpIstore + (op - bytecode.OpIreturn)
			t.emit(bytecode.Local(store, t.view.DeclaredSize))
		case discarding:
			if op.Width() == 2 {
				t.emit(bytecode.Op(bytecode.OpPop2))
			} else {
				t.emit(bytecode.Op(bytecode.OpPop))
			}
		}
	}
	t.emit(bytecode.Jump(bytecode.OpGoto, t.end))
}

// finish places the end label that rewritten returns jump to.
func (t *translator) finish() {
	t.emit(bytecode.Place(t.end))
}

func (t *translator) rehome(idx uint16) (uint16, error) {
	if t.importer == nil {
		return idx, nil
	}
	return t.importer.Import(t.donor, idx)
}

func hasConstant(op bytecode.Opcode) bool {
	switch op.Format() {
	case bytecode.FmtConstByte, bytecode.FmtConst, bytecode.FmtInvokeInterface,
		bytecode.FmtInvokeDynamic, bytecode.FmtMultiANewArray:
		return true
	}
	return false
}
