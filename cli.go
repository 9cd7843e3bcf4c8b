// Completion: 100% - Subcommands complete
package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/xyproto/njx/jit"
	"github.com/xyproto/njx/lir"
)

// cli.go - command-line interface for njx
//
// - njx run <file.lir> [function] [args...]  (assemble and call a function)
// - njx check <file.lir>...                  (assemble every function, in parallel)
// - njx dump <file.lir>                      (print the LIR that reached each buffer)

// CommandContext holds the execution context for a CLI command
type CommandContext struct {
	Args     []string
	Verbose  bool
	Optimize bool
	Validate bool
	Engine   string
	Out      io.Writer
	Log      io.Writer
}

func (c *CommandContext) newContext() (*jit.Context, error) {
	opts := []jit.Option{jit.WithValidation(c.Validate), jit.WithLog(c.Log)}
	if c.Engine != "" {
		opts = append(opts, jit.WithEngine(c.Engine))
	}
	return jit.NewContext(c.Verbose, opts...)
}

// RunCLI dispatches to a subcommand.
func RunCLI(ctx *CommandContext) error {
	args := ctx.Args
	if len(args) == 0 {
		return cmdHelp(ctx)
	}
	switch args[0] {
	case "run":
		if len(args) < 2 {
			return fmt.Errorf("usage: njx run <file.lir> [function] [args...]")
		}
		return cmdRun(ctx, args[1], args[2:])
	case "check":
		if len(args) < 2 {
			return fmt.Errorf("usage: njx check <file.lir>...")
		}
		return cmdCheck(ctx, args[1:])
	case "dump":
		if len(args) != 2 {
			return fmt.Errorf("usage: njx dump <file.lir>")
		}
		return cmdDump(ctx, args[1])
	case "help", "--help", "-h":
		return cmdHelp(ctx)
	case "version", "--version":
		fmt.Fprintln(ctx.Out, versionString)
		return nil
	default:
		if strings.HasSuffix(args[0], ".lir") {
			return cmdRun(ctx, args[0], args[1:])
		}
		return fmt.Errorf("unknown command: %s\n\nRun 'njx help' for usage information", args[0])
	}
}

func parseFile(path string) ([]*FuncDef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	defs, err := ParseLIR(path, f)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("%s: no functions", path)
	}
	return defs, nil
}

// assembleAll compiles every function of a file into ctx, in order, so later
// functions can call earlier ones.
func assembleAll(ctx *CommandContext, jc *jit.Context, path string, defs []*FuncDef) ([]*jit.Fragment, error) {
	frags := make([]*jit.Fragment, 0, len(defs))
	for _, def := range defs {
		f, err := Assemble(jc, path, def, ctx.Optimize)
		if err != nil {
			return nil, err
		}
		frags = append(frags, f)
	}
	return frags, nil
}

// cmdRun assembles a file and calls one of its functions: the named one,
// or else "main", or else the last one.
func cmdRun(ctx *CommandContext, path string, rest []string) error {
	defs, err := parseFile(path)
	if err != nil {
		return err
	}
	jc, err := ctx.newContext()
	if err != nil {
		return err
	}
	defer jc.Destroy()
	frags, err := assembleAll(ctx, jc, path, defs)
	if err != nil {
		return err
	}

	target := frags[len(frags)-1]
	if f, ok := jc.Lookup("main"); ok {
		target = f
	}
	if len(rest) > 0 {
		if _, convErr := strconv.ParseInt(rest[0], 0, 64); convErr != nil {
			f, ok := jc.Lookup(rest[0])
			if !ok {
				return fmt.Errorf("%s: no function %s", path, rest[0])
			}
			target, rest = f, rest[1:]
		}
	}
	if len(rest) != len(target.Params) {
		return fmt.Errorf("%s takes %d arguments, got %d", target.Name, len(target.Params), len(rest))
	}
	args := make([]int64, len(rest))
	for i, s := range rest {
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return fmt.Errorf("argument %d: %w", i+1, err)
		}
		args[i] = v
	}

	switch fn := target.Func.(type) {
	case jit.IntFunc:
		fmt.Fprintln(ctx.Out, fn(args...))
	case jit.QuadFunc:
		fmt.Fprintln(ctx.Out, fn(args...))
	case jit.DoubleFunc:
		fmt.Fprintln(ctx.Out, fn(args...))
	case jit.FloatFunc:
		fmt.Fprintln(ctx.Out, fn(args...))
	case jit.VoidFunc:
		fn(args...)
	}
	return nil
}

// cmdCheck assembles every file with its own Context, several files at a time.
func cmdCheck(ctx *CommandContext, paths []string) error {
	results := make([]string, len(paths))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			defs, err := parseFile(path)
			if err != nil {
				return err
			}
			jc, err := ctx.newContext()
			if err != nil {
				return err
			}
			defer jc.Destroy()
			frags, err := assembleAll(ctx, jc, path, defs)
			if err != nil {
				return err
			}
			size := 0
			for _, f := range frags {
				size += f.Size()
			}
			results[i] = fmt.Sprintf("ok   %s (%d functions, %s engine, code size %d)", path, len(frags), jc.EngineName(), size)
			return nil
		})
	}
	err := g.Wait()
	for _, r := range results {
		if r != "" {
			fmt.Fprintln(ctx.Out, r)
		}
	}
	return err
}

// cmdDump prints the buffer of every function after the pipeline ran.
func cmdDump(ctx *CommandContext, path string) error {
	defs, err := parseFile(path)
	if err != nil {
		return err
	}
	jc, err := ctx.newContext()
	if err != nil {
		return err
	}
	defer jc.Destroy()
	frags, err := assembleAll(ctx, jc, path, defs)
	if err != nil {
		return err
	}
	for i, f := range frags {
		if i > 0 {
			fmt.Fprintln(ctx.Out)
		}
		if err := lir.Dump(ctx.Out, f.Buffer()); err != nil {
			return err
		}
	}
	return nil
}

func cmdHelp(ctx *CommandContext) error {
	fmt.Fprintf(ctx.Out, `%s - assemble and run LIR functions

USAGE:
    njx [flags] <command> [arguments]

COMMANDS:
    run <file.lir> [function] [args...]   Assemble a file and call a function (default: main, or the last one)
    check <file.lir>...                   Assemble every function of every file
    dump <file.lir>                       Print the LIR each function was compiled from
    help                                  Show this help message
    version                               Show version information

FLAGS:
    -v, --verbose          Trace every instruction and compiled function
    -O                     Enable CSE and expression simplification
    --engine <name>        native or interp (default: native when available)
    --novalidate           Skip the pipeline validators

ENVIRONMENT:
    NJX_VERBOSE, NJX_VALIDATE, NJX_ENGINE, NJX_CODE_CHUNK

`, versionString)
	return nil
}
