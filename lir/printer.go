package lir

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Text renders one instruction without its result name.
func Text(ins *Ins) string {
	var sb strings.Builder
	sb.WriteString(ins.Op.String())
	switch ins.Op.Class() {
	case ClassParam:
		fmt.Fprintf(&sb, " %d %s", ins.Imm, ins.Type)
		if ins.Saved {
			sb.WriteString(" saved")
		}
	case ClassAlloc:
		fmt.Fprintf(&sb, " %d", ins.Imm)
	case ClassImm:
		sb.WriteByte(' ')
		sb.WriteString(immText(ins))
	case ClassUnary, ClassLive:
		fmt.Fprintf(&sb, " %s", ins.A)
	case ClassRet:
		if ins.Op != OpRet {
			fmt.Fprintf(&sb, " %s", ins.A)
		}
	case ClassBinary:
		fmt.Fprintf(&sb, " %s, %s", ins.A, ins.B)
	case ClassCmov:
		fmt.Fprintf(&sb, " %s ? %s : %s", ins.A, ins.B, ins.C)
	case ClassLoad:
		fmt.Fprintf(&sb, " %s[%d]", ins.A, ins.Disp)
	case ClassStore:
		fmt.Fprintf(&sb, " %s, %s[%d]", ins.A, ins.B, ins.Disp)
	case ClassBranch:
		if ins.Op != OpJ {
			fmt.Fprintf(&sb, " %s", ins.A)
		}
		fmt.Fprintf(&sb, " -> %s", ins.Target)
	case ClassJtbl:
		targets := make([]string, len(ins.Targets))
		for i, t := range ins.Targets {
			targets[i] = t.String()
		}
		fmt.Fprintf(&sb, " %s [%s]", ins.A, strings.Join(targets, ", "))
	case ClassCall:
		args := make([]string, len(ins.Args))
		for i, a := range ins.Args {
			args[i] = a.String()
		}
		name := "?"
		abi := ABICdecl
		if ins.Call != nil {
			name, abi = ins.Call.Name, ins.Call.ABI
		}
		fmt.Fprintf(&sb, " %s %s (%s)", name, abi, strings.Join(args, ", "))
	case ClassGuard:
		if ins.Exit != nil && ins.Exit.Exit != nil {
			fmt.Fprintf(&sb, " exit from %s", ins.Exit.Exit.From)
		}
	}
	return sb.String()
}

func immText(ins *Ins) string {
	switch ins.Op {
	case OpImmI:
		return strconv.FormatInt(int64(ins.ImmI()), 10)
	case OpImmQ:
		return strconv.FormatInt(ins.ImmQ(), 10)
	case OpImmD:
		return strconv.FormatFloat(ins.ImmD(), 'g', -1, 64)
	case OpImmF:
		return strconv.FormatFloat(float64(ins.ImmF()), 'g', -1, 32)
	}
	return "?"
}

// Format renders instruction r of buf, prefixed by its name when it yields a value.
func Format(buf *Buffer, r Ref) string {
	ins := buf.At(r)
	if ins.Op == OpLabel {
		return r.String() + ":"
	}
	if ins.IsValue() {
		return fmt.Sprintf("  %s = %s", r, Text(ins))
	}
	return "  " + Text(ins)
}

// Dump writes every instruction of buf, one per line.
func Dump(w io.Writer, buf *Buffer) error {
	if _, err := fmt.Fprintf(w, "; %s\n", buf.Name()); err != nil {
		return err
	}
	for r := Ref(1); int(r) < buf.Len(); r++ {
		if _, err := fmt.Fprintln(w, Format(buf, r)); err != nil {
			return err
		}
	}
	return nil
}
