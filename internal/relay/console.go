package relay

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"
)

// RunConsole reads newline-delimited operator commands from r and writes
// responses to w until r is exhausted or an "exit" command is received
// (spec.md §6 "Server CLI"). It blocks; callers typically run it on the
// main goroutine after Start. When r is an interactive terminal a "> "
// prompt is printed before each line; piped/scripted input gets none.
func RunConsole(s *Server, r io.Reader, w io.Writer) {
	interactive := isTerminal(r)
	scanner := bufio.NewScanner(r)
	for {
		if interactive {
			fmt.Fprint(w, "> ")
		}
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if exit := executeCommand(s, line, w); exit {
			return
		}
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// executeCommand runs one console line against s and reports whether the
// console should stop reading further input.
func executeCommand(s *Server, line string, w io.Writer) (exit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "step":
		s.Step()
		fmt.Fprintln(w, "ok")
	case "stop":
		s.SetPeriodicStep(false)
		fmt.Fprintln(w, "periodic step disabled")
	case "continue":
		s.SetPeriodicStep(true)
		fmt.Fprintln(w, "periodic step enabled")
	case "drop":
		handleDrop(s, fields[1:], w)
	case "delay":
		handleDelay(s, fields[1:], w)
	case "help":
		fmt.Fprintln(w, "commands: step, stop, continue, drop <id> [on|off|toggle], delay <id> <ms|off>, help, exit")
	case "exit":
		fmt.Fprintln(w, "shutting down")
		s.Stop()
		return true
	default:
		fmt.Fprintf(w, "unknown command %q\n", fields[0])
	}
	return false
}

func handleDrop(s *Server, args []string, w io.Writer) {
	if len(args) < 1 {
		fmt.Fprintln(w, "usage: drop <id> [on|off|toggle]")
		return
	}
	id := args[0]
	mode := "toggle"
	if len(args) >= 2 {
		mode = args[1]
	}
	switch mode {
	case "on":
		s.SetDrop(id, true)
		fmt.Fprintf(w, "dropping %s\n", id)
	case "off":
		s.SetDrop(id, false)
		fmt.Fprintf(w, "no longer dropping %s\n", id)
	case "toggle":
		if s.ToggleDrop(id) {
			fmt.Fprintf(w, "dropping %s\n", id)
		} else {
			fmt.Fprintf(w, "no longer dropping %s\n", id)
		}
	default:
		fmt.Fprintf(w, "unknown drop mode %q\n", mode)
	}
}

func handleDelay(s *Server, args []string, w io.Writer) {
	if len(args) < 2 {
		fmt.Fprintln(w, "usage: delay <id> <ms|off>")
		return
	}
	id, spec := args[0], args[1]
	if spec == "off" {
		s.SetDelay(id, 0)
		fmt.Fprintf(w, "delay cleared for %s\n", id)
		return
	}
	ms, err := strconv.Atoi(spec)
	if err != nil || ms < 0 {
		fmt.Fprintf(w, "invalid delay %q\n", spec)
		return
	}
	s.SetDelay(id, time.Duration(ms)*time.Millisecond)
	fmt.Fprintf(w, "delaying %s by %dms\n", id, ms)
}
