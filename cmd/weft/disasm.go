package main

import (
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/cockroachdb/errors"

	"github.com/chazu/weft/bytecode"
	"github.com/chazu/weft/classfile"
)

func cmdDisasm(args []string) error {
	fs := flag.NewFlagSet("disasm", flag.ExitOnError)
	method := fs.String("method", "*", "method name glob")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("disasm takes exactly one class file")
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	out, err := disassembleClass(data, *method)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

// disassembleClass lists every method with code whose name matches glob.
func disassembleClass(data []byte, glob string) (string, error) {
	cf, err := classfile.Parse(data)
	if err != nil {
		return "", err
	}
	var out string
	for _, m := range cf.Methods {
		if ok, err := path.Match(glob, m.Name); err != nil {
			return "", errors.Wrapf(err, "bad method glob %q", glob)
		} else if !ok {
			continue
		}
		code, err := m.Code(cf.Pool)
		if err != nil {
			return "", err
		}
		if code == nil {
			continue
		}
		instrs, err := bytecode.DecodeMethod(m, cf.Pool)
		if err != nil {
			return "", err
		}
		out += bytecode.DisassembleWithName(cf.Name()+"."+m.Name+m.Descriptor, instrs, cf.Pool) + "\n"
	}
	return out, nil
}
