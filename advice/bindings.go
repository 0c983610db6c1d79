package advice

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/chazu/weft/classfile"
)

// OffsetTable maps donor local slots to target local slots. A slot that is
// absent falls back to arithmetic rebasing.
type OffsetTable map[int]int

// Lookup returns the target slot bound to a donor slot.
func (t OffsetTable) Lookup(slot int) (int, bool) {
	target, ok := t[slot]
	return target, ok
}

// Tables holds the offset tables of both advice methods for one target.
type Tables struct {
	Enter OffsetTable
	Exit  OffsetTable
}

// MethodView holds the facts about a target method that weaving needs.
type MethodView struct {
	Owner        string
	Name         string
	Descriptor   string
	Static       bool
	Params       []classfile.FieldType
	Return       classfile.FieldType
	DeclaredSize int       // receiver plus parameter slots
	ReturnSize   StackSize // size of the return type
}

// ViewOf describes a method of the class named owner.
func ViewOf(owner string, m *classfile.Member) (MethodView, error) {
	mt, err := classfile.ParseMethodDescriptor(m.Descriptor)
	if err != nil {
		return MethodView{}, errors.Wrapf(err, "method %s.%s", owner, m.Name)
	}
	v := MethodView{
		Owner:        owner,
		Name:         m.Name,
		Descriptor:   m.Descriptor,
		Static:       m.IsStatic(),
		Params:       mt.Params,
		Return:       mt.Return,
		DeclaredSize: mt.ParamSize(),
		ReturnSize:   StackSizeOf(mt.Return),
	}
	if !v.Static {
		v.DeclaredSize++
	}
	return v, nil
}

func (v MethodView) String() string {
	return v.Owner + "." + v.Name + v.Descriptor
}

// argumentSlot returns the local slot of the target's n-th parameter.
func (v MethodView) argumentSlot(n int) int {
	slot := 0
	if !v.Static {
		slot = 1
	}
	return slot + lo.SumBy(v.Params[:n], func(t classfile.FieldType) int { return t.Size() })
}

// Bind computes the offset tables for weaving the resolved advice into
// view. Every donor parameter must carry exactly one binding marker:
//
//	Argument(n)  the target's n-th parameter
//	This         the target's receiver
//	Enter        the entry advice's return value (exit advice only)
//	Return       the value about to be returned (exit advice only)
func (r *Resolved) Bind(view MethodView, markers Markers) (Tables, error) {
	markers = markers.WithDefaults()
	var t Tables
	var err error
	if r.Enter.Alive() {
		if t.Enter, err = r.bindUnit(r.Enter.Unit, false, view, markers); err != nil {
			return Tables{}, err
		}
	}
	if r.Exit.Alive() {
		if t.Exit, err = r.bindUnit(r.Exit.Unit, true, view, markers); err != nil {
			return Tables{}, err
		}
	}
	return t, nil
}

func (r *Resolved) bindUnit(u *CodeUnit, exit bool, view MethodView, markers Markers) (OffsetTable, error) {
	table := make(OffsetTable, len(u.Type.Params))
	donorSlot := 0
	for i, param := range u.Type.Params {
		target, err := r.bindParam(u, i, param, exit, view, markers)
		if err != nil {
			return nil, errors.Wrapf(err, "parameter %d of %s woven into %s", i, u, view)
		}
		table[donorSlot] = target
		donorSlot += param.Size()
	}
	return table, nil
}

func (r *Resolved) bindParam(u *CodeUnit, i int, param classfile.FieldType, exit bool, view MethodView, markers Markers) (int, error) {
	var found []classfile.Annotation
	for _, a := range u.paramAnnotations[i] {
		switch a.Type {
		case markers.Argument, markers.This, markers.EnterValue, markers.Return:
			found = append(found, a)
		}
	}
	switch len(found) {
	case 0:
		return 0, errors.Wrap(ErrBinding, "parameter has no binding annotation")
	case 1:
	default:
		return 0, errors.Wrapf(ErrBinding, "parameter has %d binding annotations", len(found))
	}

	width := param.Size()
	switch a := found[0]; a.Type {
	case markers.Argument:
		n, err := a.Int(elementValue, -1)
		if err != nil {
			return 0, errors.Mark(err, ErrBinding)
		}
		if n < 0 || n >= len(view.Params) {
			return 0, errors.Wrapf(ErrBinding, "argument %d out of range, target has %d parameters", n, len(view.Params))
		}
		if got := view.Params[n].Size(); got != width {
			return 0, errors.Wrapf(ErrBinding, "argument %d is %s (%d slots), parameter is %s (%d slots)",
				n, view.Params[n], got, param, width)
		}
		return view.argumentSlot(n), nil

	case markers.This:
		if view.Static {
			return 0, errors.Wrap(ErrBinding, "this bound in a static method")
		}
		if !param.IsReference() {
			return 0, errors.Wrapf(ErrBinding, "this bound to primitive parameter %s", param)
		}
		return 0, nil

	case markers.EnterValue:
		if !exit {
			return 0, errors.Wrap(ErrBinding, "enter value bound in entry advice")
		}
		if r.Enter.Footprint == Zero {
			return 0, errors.Wrap(ErrBinding, "enter value bound but entry advice is absent or void")
		}
		if StackSize(width) != r.Enter.Footprint {
			return 0, errors.Wrapf(ErrBinding, "enter value is %s, parameter is %s", r.Enter.Footprint, param)
		}
		return view.DeclaredSize, nil

	default: // markers.Return
		if !exit {
			return 0, errors.Wrap(ErrBinding, "return value bound in entry advice")
		}
		if view.ReturnSize == Zero {
			return 0, errors.Wrap(ErrBinding, "return value bound but target returns void")
		}
		if StackSize(width) != view.ReturnSize {
			return 0, errors.Wrapf(ErrBinding, "return value is %s, parameter is %s", view.Return, param)
		}
		return view.DeclaredSize + int(r.Exit.EnterFootprint), nil
	}
}
