package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, log bytes.Buffer
	err := RunCLI(&CommandContext{
		Args:     args,
		Validate: true,
		Engine:   "interp",
		Out:      &out,
		Log:      &log,
	})
	return out.String(), err
}

func TestRunFib(t *testing.T) {
	for n, want := range map[string]string{"0": "0\n", "1": "1\n", "10": "55\n", "50": "12586269025\n"} {
		out, err := runCLI(t, "run", "testdata/fib.lir", "fib", n)
		if err != nil {
			t.Fatal(err)
		}
		if out != want {
			t.Errorf("fib(%s) printed %q, want %q", n, out, want)
		}
	}
}

func TestRunDefaultsToLastFunction(t *testing.T) {
	out, err := runCLI(t, "run", "testdata/pick.lir", "1")
	if err != nil {
		t.Fatal(err)
	}
	if out != "20\n" {
		t.Errorf("pick(1) printed %q", out)
	}
	out, err = runCLI(t, "testdata/pick.lir", "7")
	if err != nil {
		t.Fatal(err)
	}
	if out != "-1\n" {
		t.Errorf("pick(7) printed %q", out)
	}
}

func TestRunArgumentCount(t *testing.T) {
	if _, err := runCLI(t, "run", "testdata/fib.lir", "fib"); err == nil {
		t.Error("missing argument accepted")
	}
	if _, err := runCLI(t, "run", "testdata/fib.lir", "nosuch", "1"); err == nil {
		t.Error("unknown function accepted")
	}
}

func TestCheckInParallel(t *testing.T) {
	out, err := runCLI(t, "check", "testdata/fib.lir", "testdata/pick.lir")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "fib.lir (2 functions") || !strings.Contains(lines[1], "pick.lir (1 functions") {
		t.Errorf("check printed:\n%s", out)
	}
}

func TestCheckReportsBrokenFile(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.lir")
	if err := os.WriteFile(bad, []byte(".begin f int\n  reti nope\n.end\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := runCLI(t, "check", "testdata/pick.lir", bad)
	if err == nil || !strings.Contains(err.Error(), "undefined value nope") {
		t.Fatalf("check = %v", err)
	}
	if !strings.Contains(out, "pick.lir") {
		t.Errorf("good file not reported:\n%s", out)
	}
}

func TestDump(t *testing.T) {
	out, err := runCLI(t, "dump", "testdata/pick.lir")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"; pick", "jtbl", "reti", "x exit from pick"} {
		if !strings.Contains(out, want) {
			t.Errorf("dump lacks %q:\n%s", want, out)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	if _, err := runCLI(t, "frobnicate"); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("RunCLI(frobnicate) = %v", err)
	}
	out, err := runCLI(t, "version")
	if err != nil || out != versionString+"\n" {
		t.Errorf("version printed %q, %v", out, err)
	}
}
