package classfile

import (
	"github.com/cockroachdb/errors"
)

// Annotation is a decoded annotation. Type is a field descriptor such as
// "Lcom/acme/Marker;".
type Annotation struct {
	Type     string
	Elements []ElementPair
}

// ElementPair is one name=value element of an annotation.
type ElementPair struct {
	Name  string
	Value ElementValue
}

// ElementValue is a tagged annotation element value.
//
//	B C D F I J S Z s   Const
//	e                   EnumType, EnumName
//	c                   Class (return descriptor)
//	@                   Annotation
//	[                   Values
type ElementValue struct {
	Tag        byte
	Const      Constant
	EnumType   string
	EnumName   string
	Class      string
	Annotation *Annotation
	Values     []ElementValue
}

// BoolValue returns a 'Z' element value.
func BoolValue(v bool) ElementValue {
	var bits uint32
	if v {
		bits = 1
	}
	return ElementValue{Tag: 'Z', Const: Constant{Tag: TagInteger, Bits32: bits}}
}

// IntValue returns an 'I' element value.
func IntValue(v int32) ElementValue {
	return ElementValue{Tag: 'I', Const: Constant{Tag: TagInteger, Bits32: uint32(v)}}
}

// Element returns the value of the named element.
func (a Annotation) Element(name string) (ElementValue, bool) {
	for _, p := range a.Elements {
		if p.Name == name {
			return p.Value, true
		}
	}
	return ElementValue{}, false
}

// Bool returns a boolean element, or def when the element is absent and
// the annotation type's default applies.
func (a Annotation) Bool(name string, def bool) (bool, error) {
	v, ok := a.Element(name)
	if !ok {
		return def, nil
	}
	if v.Tag != 'Z' {
		return false, errors.Newf("element %s of %s is %q, not boolean", name, a.Type, v.Tag)
	}
	return v.Const.Bits32 != 0, nil
}

// Int returns an int element, or def when absent.
func (a Annotation) Int(name string, def int) (int, error) {
	v, ok := a.Element(name)
	if !ok {
		return def, nil
	}
	switch v.Tag {
	case 'I', 'S', 'B', 'C':
		return int(int32(v.Const.Bits32)), nil
	}
	return 0, errors.Newf("element %s of %s is %q, not int", name, a.Type, v.Tag)
}

// FindAnnotation returns the first annotation of the given type.
func FindAnnotation(anns []Annotation, typ string) (Annotation, bool) {
	for _, a := range anns {
		if a.Type == typ {
			return a, true
		}
	}
	return Annotation{}, false
}

// ParseAnnotations decodes a Runtime(In)VisibleAnnotations attribute.
func ParseAnnotations(data []byte, pool *ConstantPool) ([]Annotation, error) {
	r := newReader(data)
	anns, err := readAnnotations(r, pool)
	if err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, errors.Newf("%d trailing bytes in annotations attribute", r.remaining())
	}
	return anns, nil
}

// ParseParameterAnnotations decodes a Runtime(In)VisibleParameterAnnotations
// attribute into one slice per parameter.
func ParseParameterAnnotations(data []byte, pool *ConstantPool) ([][]Annotation, error) {
	r := newReader(data)
	n := int(r.u1())
	params := make([][]Annotation, n)
	for i := 0; i < n; i++ {
		anns, err := readAnnotations(r, pool)
		if err != nil {
			return nil, errors.Wrapf(err, "parameter %d", i)
		}
		params[i] = anns
	}
	if r.err != nil {
		return nil, errors.Wrap(r.err, "reading parameter annotations")
	}
	return params, nil
}

func readAnnotations(r *reader, pool *ConstantPool) ([]Annotation, error) {
	n := int(r.u2())
	anns := make([]Annotation, 0, n)
	for i := 0; i < n; i++ {
		a, err := readAnnotation(r, pool)
		if err != nil {
			return nil, errors.Wrapf(err, "annotation %d", i)
		}
		anns = append(anns, a)
	}
	if r.err != nil {
		return nil, r.err
	}
	return anns, nil
}

func readAnnotation(r *reader, pool *ConstantPool) (Annotation, error) {
	var a Annotation
	typ, err := pool.Utf8(r.u2())
	if r.err != nil {
		return a, r.err
	}
	if err != nil {
		return a, err
	}
	a.Type = typ
	n := int(r.u2())
	for i := 0; i < n; i++ {
		name, err := pool.Utf8(r.u2())
		if r.err != nil {
			return a, r.err
		}
		if err != nil {
			return a, err
		}
		v, err := readElementValue(r, pool)
		if err != nil {
			return a, errors.Wrapf(err, "element %s", name)
		}
		a.Elements = append(a.Elements, ElementPair{Name: name, Value: v})
	}
	return a, r.err
}

func readElementValue(r *reader, pool *ConstantPool) (ElementValue, error) {
	v := ElementValue{Tag: r.u1()}
	var err error
	switch v.Tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's':
		v.Const, err = pool.Get(r.u2())
	case 'e':
		if v.EnumType, err = pool.Utf8(r.u2()); err == nil {
			v.EnumName, err = pool.Utf8(r.u2())
		}
	case 'c':
		v.Class, err = pool.Utf8(r.u2())
	case '@':
		var nested Annotation
		nested, err = readAnnotation(r, pool)
		v.Annotation = &nested
	case '[':
		n := int(r.u2())
		for i := 0; i < n && err == nil; i++ {
			var elem ElementValue
			elem, err = readElementValue(r, pool)
			v.Values = append(v.Values, elem)
		}
	default:
		if r.err == nil {
			return v, errors.Newf("unknown element value tag %q at offset %d", v.Tag, r.pos-1)
		}
	}
	if r.err != nil {
		return v, r.err
	}
	return v, err
}

// EncodeAnnotations encodes an annotations attribute body, adding the
// constants it needs to pool.
func EncodeAnnotations(pool *ConstantPool, anns []Annotation) ([]byte, error) {
	w := newWriter(64)
	if err := writeAnnotations(w, pool, anns); err != nil {
		return nil, err
	}
	return w.buf, nil
}

// EncodeParameterAnnotations encodes a parameter annotations attribute body.
func EncodeParameterAnnotations(pool *ConstantPool, params [][]Annotation) ([]byte, error) {
	w := newWriter(64)
	w.u1(uint8(len(params)))
	for _, anns := range params {
		if err := writeAnnotations(w, pool, anns); err != nil {
			return nil, err
		}
	}
	return w.buf, nil
}

func writeAnnotations(w *writer, pool *ConstantPool, anns []Annotation) error {
	w.u2(uint16(len(anns)))
	for _, a := range anns {
		if err := writeAnnotation(w, pool, a); err != nil {
			return err
		}
	}
	return nil
}

func writeAnnotation(w *writer, pool *ConstantPool, a Annotation) error {
	typ, err := pool.AddUtf8(a.Type)
	if err != nil {
		return err
	}
	w.u2(typ)
	w.u2(uint16(len(a.Elements)))
	for _, p := range a.Elements {
		name, err := pool.AddUtf8(p.Name)
		if err != nil {
			return err
		}
		w.u2(name)
		if err := writeElementValue(w, pool, p.Value); err != nil {
			return err
		}
	}
	return nil
}

func writeElementValue(w *writer, pool *ConstantPool, v ElementValue) error {
	w.u1(v.Tag)
	switch v.Tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's':
		idx, err := pool.Add(v.Const)
		if err != nil {
			return err
		}
		w.u2(idx)
	case 'e':
		t, err := pool.AddUtf8(v.EnumType)
		if err != nil {
			return err
		}
		n, err := pool.AddUtf8(v.EnumName)
		if err != nil {
			return err
		}
		w.u2(t)
		w.u2(n)
	case 'c':
		idx, err := pool.AddUtf8(v.Class)
		if err != nil {
			return err
		}
		w.u2(idx)
	case '@':
		if v.Annotation == nil {
			return errors.New("nested annotation element without annotation")
		}
		return writeAnnotation(w, pool, *v.Annotation)
	case '[':
		w.u2(uint16(len(v.Values)))
		for _, elem := range v.Values {
			if err := writeElementValue(w, pool, elem); err != nil {
				return err
			}
		}
	default:
		return errors.Newf("unknown element value tag %q", v.Tag)
	}
	return nil
}

// Annotations returns the member's visible and invisible annotations.
func (m *Member) Annotations(pool *ConstantPool) ([]Annotation, error) {
	var all []Annotation
	for _, name := range []string{AttrRuntimeVisibleAnnotations, AttrRuntimeInvisibleAnnotations} {
		a, ok := m.Attribute(name)
		if !ok {
			continue
		}
		anns, err := ParseAnnotations(a.Data, pool)
		if err != nil {
			return nil, errors.Wrapf(err, "%s of %s", name, m)
		}
		all = append(all, anns...)
	}
	return all, nil
}

// ParameterAnnotations returns visible and invisible annotations of each of
// the member's n parameters. Compilers may omit synthetic leading
// parameters from the attribute; counts are aligned to the end.
func (m *Member) ParameterAnnotations(pool *ConstantPool, n int) ([][]Annotation, error) {
	out := make([][]Annotation, n)
	for _, name := range []string{AttrRuntimeVisibleParameterAnnotations, AttrRuntimeInvisibleParameterAnnotations} {
		a, ok := m.Attribute(name)
		if !ok {
			continue
		}
		params, err := ParseParameterAnnotations(a.Data, pool)
		if err != nil {
			return nil, errors.Wrapf(err, "%s of %s", name, m)
		}
		if len(params) > n {
			return nil, errors.Newf("%s of %s declares %d parameters, descriptor has %d", name, m, len(params), n)
		}
		shift := n - len(params)
		for i, anns := range params {
			out[shift+i] = append(out[shift+i], anns...)
		}
	}
	return out, nil
}
