package advice

import (
	"fmt"
	"path"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/chazu/weft/bytecode"
	"github.com/chazu/weft/classfile"
)

// Matcher selects target methods by name and descriptor globs (path.Match
// syntax). Empty lists match everything.
type Matcher struct {
	Names       []string `toml:"methods" cbor:"1,keyasint,omitempty"`
	Descriptors []string `toml:"descriptors" cbor:"2,keyasint,omitempty"`
}

// Match reports whether a method is selected.
func (m Matcher) Match(name, descriptor string) bool {
	return globAny(m.Names, name) && globAny(m.Descriptors, descriptor)
}

func globAny(patterns []string, s string) bool {
	if len(patterns) == 0 {
		return true
	}
	return lo.ContainsBy(patterns, func(p string) bool {
		ok, err := path.Match(p, s)
		return err == nil && ok
	})
}

// MethodResult records what happened to one method of a woven class.
type MethodResult struct {
	Name         string `cbor:"1,keyasint"`
	Descriptor   string `cbor:"2,keyasint"`
	Woven        bool   `cbor:"3,keyasint"`
	Skipped      string `cbor:"4,keyasint,omitempty"`
	Instructions int    `cbor:"5,keyasint,omitempty"`
	MaxStack     int    `cbor:"6,keyasint,omitempty"`
	MaxLocals    int    `cbor:"7,keyasint,omitempty"`
}

// Skip reasons.
const (
	SkipConstructor = "constructor"
	SkipInitializer = "static initializer"
	SkipNoCode      = "no code"
	SkipNotMatched  = "not matched"
)

// WeaveClass weaves every selected method of a class file and returns the
// new class bytes. Constructors, static initialisers, abstract and native
// methods are never woven. Woven methods lose their StackMapTable; line
// number and local variable tables are rebuilt.
func (a *Advice) WeaveClass(data []byte, match Matcher) ([]byte, []MethodResult, error) {
	cf, err := classfile.Parse(data)
	if err != nil {
		return nil, nil, errors.Wrap(err, "parsing target class")
	}
	importer, err := classfile.NewImporter(cf)
	if err != nil {
		return nil, nil, err
	}
	name := cf.Name()
	results := make([]MethodResult, 0, len(cf.Methods))
	woven := 0
	for _, m := range cf.Methods {
		res := MethodResult{Name: m.Name, Descriptor: m.Descriptor}
		switch {
		case m.Name == "<init>":
			res.Skipped = SkipConstructor
		case m.Name == "<clinit>":
			res.Skipped = SkipInitializer
		case m.IsAbstract() || m.IsNative():
			res.Skipped = SkipNoCode
		case !match.Match(m.Name, m.Descriptor):
			res.Skipped = SkipNotMatched
		}
		if res.Skipped == "" {
			if err := a.weaveMethod(cf, m, importer, &res); err != nil {
				return nil, nil, errors.Wrapf(err, "class %s", name)
			}
			woven++
		} else if res.Skipped == SkipNoCode && match.Match(m.Name, m.Descriptor) {
			log.Warningf("skipping %s.%s%s: %s", name, m.Name, m.Descriptor, res.Skipped)
		}
		results = append(results, res)
	}
	if woven == 0 {
		return data, results, nil
	}
	if err := importer.Flush(); err != nil {
		return nil, nil, errors.Wrapf(err, "class %s", name)
	}
	if msg := framelessWarning(name, cf.Major); msg != "" {
		log.Warning(msg)
	}
	out, err := cf.Bytes()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "encoding class %s", name)
	}
	log.Infof("wove %d of %d methods in %s", woven, len(cf.Methods), name)
	return out, results, nil
}

func (a *Advice) weaveMethod(cf *classfile.ClassFile, m *classfile.Member, importer *classfile.Importer, res *MethodResult) error {
	code, err := m.Code(cf.Pool)
	if err != nil {
		return err
	}
	if code == nil {
		return errors.AssertionFailedf("method %s has no code", m)
	}
	view, err := ViewOf(cf.Name(), m)
	if err != nil {
		return err
	}
	tables, err := a.resolved.Bind(view, a.markers)
	if err != nil {
		return err
	}
	instrs, err := bytecode.Decode(code)
	if err != nil {
		return errors.Wrapf(err, "method %s", m)
	}
	out, err := a.Weave(view, tables, instrs, importer)
	if err != nil {
		return err
	}
	asm, err := bytecode.Assemble(out)
	if err != nil {
		return errors.Wrapf(err, "assembling %s", view)
	}

	rewritten := &classfile.CodeAttribute{
		MaxStack:       uint16(a.maxStack(int(code.MaxStack), view)),
		MaxLocals:      uint16(a.maxLocals(int(code.MaxLocals), view, out)),
		Code:           asm.Code,
		ExceptionTable: asm.ExceptionTable,
	}
	for _, attr := range code.Attributes {
		switch attr.Name {
		case classfile.AttrStackMapTable, classfile.AttrLineNumberTable,
			classfile.AttrLocalVariableTable, classfile.AttrLocalVariableTypeTable:
		default:
			rewritten.Attributes = append(rewritten.Attributes, attr)
		}
	}
	debugTables := []struct {
		name string
		data []byte
		n    int
	}{
		{classfile.AttrLineNumberTable, classfile.EncodeLineNumbers(asm.LineNumbers), len(asm.LineNumbers)},
		{classfile.AttrLocalVariableTable, classfile.EncodeLocalVariables(asm.LocalVariables), len(asm.LocalVariables)},
		{classfile.AttrLocalVariableTypeTable, classfile.EncodeLocalVariables(asm.LocalVariableTypes), len(asm.LocalVariableTypes)},
	}
	for _, t := range debugTables {
		if t.n == 0 {
			continue
		}
		if err := rewritten.SetAttribute(cf.Pool, t.name, t.data); err != nil {
			return err
		}
	}
	if err := m.SetCode(cf.Pool, rewritten); err != nil {
		return err
	}
	res.Woven = true
	res.Instructions = len(out)
	res.MaxStack = int(rewritten.MaxStack)
	res.MaxLocals = int(rewritten.MaxLocals)
	return nil
}

// framelessWarning describes what a JVM makes of a woven class that has
// lost its StackMapTable. Version 50 falls back to the type-inferring
// verifier; from 51 (Java 7) on, frames are mandatory.
func framelessWarning(class string, major uint16) string {
	switch {
	case major >= 51:
		return fmt.Sprintf("class %s (version %d) woven without stack map frames: "+
			"it will fail verification on Java 7+ unless frames are recomputed or verification is disabled", class, major)
	case major == 50:
		return fmt.Sprintf("class %s (version 50) woven without stack map frames: "+
			"the JVM falls back to the type-inferring verifier", class)
	}
	return ""
}

// maxStack bounds the operand stack of a woven method. Advice runs on top
// of whatever the target had on its stack; the duplicated return value and
// the throw-path sentinel add at most R.
func (a *Advice) maxStack(orig int, view MethodView) int {
	extra := int(view.ReturnSize)
	if e := a.resolved.Enter; e.Alive() {
		extra = max(extra, e.Unit.MaxStack)
	}
	if x := a.resolved.Exit; x.Alive() {
		extra = max(extra, x.Unit.MaxStack)
	}
	return min(orig+extra, 0xFFFF)
}

func (a *Advice) maxLocals(orig int, view MethodView, out []bytecode.Instruction) int {
	n := orig + int(a.resolved.Enter.Footprint) + int(view.ReturnSize)
	return min(max(n, bytecode.MaxLocals(out)), 0xFFFF)
}
