package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/chazu/weft/advice"
	"github.com/chazu/weft/locator"
)

func cmdResolve(args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	cp := fs.String("cp", "", "class path (entries separated by the OS list separator)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("resolve takes exactly one donor")
	}
	a, err := loadDonor(fs.Arg(0), *cp)
	if err != nil {
		return err
	}
	fmt.Print(describeAdvice(a))
	return nil
}

// loadDonor reads a donor from a .class file, or by internal name from a
// class path.
func loadDonor(arg, cp string) (*advice.Advice, error) {
	if strings.HasSuffix(arg, ".class") {
		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, err
		}
		return advice.New(data, advice.Markers{})
	}
	entries := lo.Filter(filepath.SplitList(cp), func(e string, _ int) bool { return e != "" })
	loc, err := locator.ForPath(entries)
	if err != nil {
		return nil, err
	}
	defer loc.Close()
	return advice.Load(loc, arg, advice.Markers{})
}

func describeAdvice(a *advice.Advice) string {
	r := a.Resolved()
	var sb strings.Builder
	fmt.Fprintf(&sb, "donor %s\n", r.Donor)
	if r.Enter.Alive() {
		fmt.Fprintf(&sb, "  enter %s%s  footprint %s  max stack %d\n",
			r.Enter.Unit.Name, r.Enter.Unit.Descriptor, r.Enter.Footprint, r.Enter.Unit.MaxStack)
	} else {
		sb.WriteString("  enter -\n")
	}
	if r.Exit.Alive() {
		fmt.Fprintf(&sb, "  exit  %s%s  on exception %t  max stack %d\n",
			r.Exit.Unit.Name, r.Exit.Unit.Descriptor, !r.Exit.SkipOnException, r.Exit.Unit.MaxStack)
	} else {
		sb.WriteString("  exit  -\n")
	}
	return sb.String()
}
