// Package shell translates command lines into FileSystem calls and renders
// their results. It owns the current working directory cursor.
package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/brettbedarf/bastion/filesystem"
	"github.com/brettbedarf/bastion/internal/util"
)

// ErrQuit is returned by Exec for the exit command
var ErrQuit = errors.New("quit")

// Shell executes commands against one FileSystem
type Shell struct {
	fs  *filesystem.FileSystem
	cwd filesystem.NodeID
	out io.Writer
}

// New returns a shell positioned at the root of fs writing results to out
func New(fs *filesystem.FileSystem, out io.Writer) *Shell {
	return &Shell{fs: fs, cwd: fs.Root(), out: out}
}

// Cwd returns the current directory
func (s *Shell) Cwd() filesystem.NodeID {
	return s.cwd
}

// Exec runs a single command line. Blank lines and lines starting with '#'
// are ignored. Results are written to the shell output; failures are returned.
func (s *Shell) Exec(line string) error {
	logger := util.GetLogger("Shell")

	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	args, err := tokenize(line)
	if err != nil {
		return err
	}
	name := strings.ToLower(args[0])
	cmd, ok := lookup(name)
	if !ok {
		return fmt.Errorf("unknown command: %s (type 'help' for commands)", name)
	}
	args = args[1:]
	if len(args) < cmd.minArgs || (cmd.maxArgs >= 0 && len(args) > cmd.maxArgs) {
		return usageError(cmd)
	}

	logger.Debug().Str("cmd", cmd.name).Strs("args", args).Msg("Executing")
	return cmd.run(s, args)
}

// Handle runs line and writes any failure to the shell output. It reports
// whether the shell should stop.
func (s *Shell) Handle(line string) (quit bool) {
	err := s.Exec(line)
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrQuit):
		return true
	default:
		s.println(err.Error())
		return false
	}
}

// RunScript executes r line by line until it is exhausted or a line quits
func (s *Shell) RunScript(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if s.Handle(scanner.Text()) {
			return nil
		}
	}
	return scanner.Err()
}

// Complete returns the command names starting with line, for tab completion
func (s *Shell) Complete(line string) []string {
	var completions []string
	lower := strings.ToLower(line)
	for _, name := range Commands() {
		if strings.HasPrefix(name, lower) {
			completions = append(completions, name)
		}
	}
	return completions
}

// Commands returns every command name and alias in sorted order
func Commands() []string {
	var names []string
	for _, c := range commands {
		names = append(names, c.name)
		names = append(names, c.aliases...)
	}
	slices.Sort(names)
	return names
}

func (s *Shell) println(a ...any) {
	fmt.Fprintln(s.out, a...)
}

func (s *Shell) printf(format string, a ...any) {
	fmt.Fprintf(s.out, format, a...)
}
