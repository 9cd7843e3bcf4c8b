package main

import (
	"flag"
	"fmt"
	"os"
)

const versionString = "njx 0.3.0"

func main() {
	// Go's flag package stops at the first non-flag argument, so flags come
	// before the command: njx -O run file.lir
	var verbose = flag.Bool("v", false, "trace every instruction and compiled function")
	var verboseLong = flag.Bool("verbose", false, "trace every instruction and compiled function")
	var optimize = flag.Bool("O", false, "enable CSE and expression simplification")
	var engineFlag = flag.String("engine", "", "compilation engine: native or interp")
	var noValidate = flag.Bool("novalidate", false, "skip the pipeline validators")
	var versionShort = flag.Bool("V", false, "print version information and exit")
	flag.Parse()

	if *versionShort {
		fmt.Println(versionString)
		os.Exit(0)
	}

	ctx := &CommandContext{
		Args:     flag.Args(),
		Verbose:  *verbose || *verboseLong,
		Optimize: *optimize,
		Validate: !*noValidate,
		Engine:   *engineFlag,
		Out:      os.Stdout,
		Log:      os.Stderr,
	}
	if err := RunCLI(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
