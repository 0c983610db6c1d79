package classfile

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// BootstrapMethod is one entry of the BootstrapMethods class attribute.
type BootstrapMethod struct {
	MethodRef uint16
	Args      []uint16
}

func (b BootstrapMethod) key() string {
	var s strings.Builder
	fmt.Fprintf(&s, "%d", b.MethodRef)
	for _, a := range b.Args {
		fmt.Fprintf(&s, ",%d", a)
	}
	return s.String()
}

// ParseBootstrapMethods decodes a BootstrapMethods attribute.
func ParseBootstrapMethods(data []byte) ([]BootstrapMethod, error) {
	r := newReader(data)
	n := int(r.u2())
	out := make([]BootstrapMethod, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		b := BootstrapMethod{MethodRef: r.u2()}
		for k, na := 0, int(r.u2()); k < na && r.err == nil; k++ {
			b.Args = append(b.Args, r.u2())
		}
		out = append(out, b)
	}
	if r.err != nil {
		return nil, errors.Wrap(r.err, "reading BootstrapMethods")
	}
	return out, nil
}

// EncodeBootstrapMethods encodes a BootstrapMethods attribute body.
func EncodeBootstrapMethods(methods []BootstrapMethod) []byte {
	w := newWriter(2 + 6*len(methods))
	w.u2(uint16(len(methods)))
	for _, b := range methods {
		w.u2(b.MethodRef)
		w.u2(uint16(len(b.Args)))
		for _, a := range b.Args {
			w.u2(a)
		}
	}
	return w.buf
}

// BootstrapMethods returns the class's bootstrap method table, if any.
func (c *ClassFile) BootstrapMethods() ([]BootstrapMethod, error) {
	a, ok := c.Attribute(AttrBootstrapMethods)
	if !ok {
		return nil, nil
	}
	return ParseBootstrapMethods(a.Data)
}

// Importer copies constants from other classes into a destination class,
// following references so that the copied entry is self-contained in the
// destination pool. Dynamic and InvokeDynamic constants drag their
// bootstrap method along; Flush writes the merged BootstrapMethods
// attribute back to the destination.
//
// An Importer is not safe for concurrent use.
type Importer struct {
	dst   *ClassFile
	bsms  []BootstrapMethod
	bsmAt map[string]uint16
	dirty bool
}

// NewImporter returns an importer writing into dst.
func NewImporter(dst *ClassFile) (*Importer, error) {
	bsms, err := dst.BootstrapMethods()
	if err != nil {
		return nil, errors.Wrapf(err, "class %s", dst.Name())
	}
	im := &Importer{dst: dst, bsms: bsms, bsmAt: make(map[string]uint16, len(bsms))}
	for i, b := range bsms {
		if _, dup := im.bsmAt[b.key()]; !dup {
			im.bsmAt[b.key()] = uint16(i)
		}
	}
	return im, nil
}

// Import returns the destination index of a constant equal to src's entry
// at index. When src is the destination class itself the index is returned
// unchanged.
func (im *Importer) Import(src *ClassFile, index uint16) (uint16, error) {
	if src == im.dst {
		if _, err := src.Pool.Get(index); err != nil {
			return 0, err
		}
		return index, nil
	}
	idx, err := im.importConstant(src, index, 0)
	if err != nil {
		return 0, errors.Wrapf(err, "importing constant %d from %s", index, src.Name())
	}
	return idx, nil
}

const maxImportDepth = 16

func (im *Importer) importConstant(src *ClassFile, index uint16, depth int) (uint16, error) {
	if depth > maxImportDepth {
		return 0, errors.Newf("constant %d nests deeper than %d", index, maxImportDepth)
	}
	c, err := src.Pool.Get(index)
	if err != nil {
		return 0, err
	}
	ref := func(i uint16) (uint16, error) { return im.importConstant(src, i, depth+1) }
	out := c
	switch c.Tag {
	case TagUtf8, TagInteger, TagFloat, TagLong, TagDouble:
	case TagClass, TagString, TagMethodType, TagModule, TagPackage, TagMethodHandle:
		if out.Ref1, err = ref(c.Ref1); err != nil {
			return 0, err
		}
	case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType:
		if out.Ref1, err = ref(c.Ref1); err != nil {
			return 0, err
		}
		if out.Ref2, err = ref(c.Ref2); err != nil {
			return 0, err
		}
	case TagDynamic, TagInvokeDynamic:
		if out.Ref1, err = im.importBootstrap(src, c.Ref1, depth); err != nil {
			return 0, err
		}
		if out.Ref2, err = ref(c.Ref2); err != nil {
			return 0, err
		}
	default:
		return 0, errors.Newf("cannot import %v constant", c.Tag)
	}
	return im.dst.Pool.Add(out)
}

func (im *Importer) importBootstrap(src *ClassFile, index uint16, depth int) (uint16, error) {
	bsms, err := src.BootstrapMethods()
	if err != nil {
		return 0, err
	}
	if int(index) >= len(bsms) {
		return 0, errors.Newf("bootstrap method %d out of range (%d declared)", index, len(bsms))
	}
	b := bsms[index]
	var out BootstrapMethod
	if out.MethodRef, err = im.importConstant(src, b.MethodRef, depth+1); err != nil {
		return 0, err
	}
	for _, a := range b.Args {
		arg, err := im.importConstant(src, a, depth+1)
		if err != nil {
			return 0, err
		}
		out.Args = append(out.Args, arg)
	}
	if at, ok := im.bsmAt[out.key()]; ok {
		return at, nil
	}
	if len(im.bsms) >= 0xFFFF {
		return 0, errors.New("too many bootstrap methods")
	}
	at := uint16(len(im.bsms))
	im.bsms = append(im.bsms, out)
	im.bsmAt[out.key()] = at
	im.dirty = true
	return at, nil
}

// Flush writes the BootstrapMethods attribute if imports added entries.
func (im *Importer) Flush() error {
	if !im.dirty {
		return nil
	}
	if err := im.dst.SetAttribute(AttrBootstrapMethods, EncodeBootstrapMethods(im.bsms)); err != nil {
		return err
	}
	im.dirty = false
	return nil
}
