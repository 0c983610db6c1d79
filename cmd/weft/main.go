// weft - splice advice bytecode into JVM class files
package main

import (
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("weft")

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "weave":
		err = cmdWeave(os.Args[2:])
	case "disasm":
		err = cmdDisasm(os.Args[2:])
	case "resolve":
		err = cmdResolve(os.Args[2:])
	case "serve":
		err = cmdServe(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `weft - method advice weaver for JVM class files

Usage:
  weft weave   [-C dir] [-v n] [-workers n] [-out dir] [-no-cache] [-digests]
                                        Weave the project described by weft.toml
  weft disasm  [-method glob] <file.class>
                                        Print method listings
  weft resolve [-cp path] <file.class | internal/Name>
                                        Show the advice a donor declares
  weft serve   [-addr :8750] [-grpc-addr :8751]
                                        Serve the weaver over Connect and gRPC
  weft help                             Show this help
`)
}

// configureLogging sets commonlog verbosity; a negative value keeps
// whatever the caller configured before.
func configureLogging(verbosity int, path *string) {
	if verbosity < 0 {
		return
	}
	commonlog.Configure(verbosity, path)
}
