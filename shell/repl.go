package shell

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/brettbedarf/bastion/config"
	"github.com/brettbedarf/bastion/internal/util"
	"github.com/peterh/liner"
)

// REPL is the interactive command loop over a Shell
type REPL struct {
	shell *Shell
	opts  config.ShellOptions
	liner *liner.State
}

func NewREPL(s *Shell, opts config.ShellOptions) *REPL {
	return &REPL{shell: s, opts: opts}
}

// Run reads commands until exit, EOF or Ctrl-C
func (r *REPL) Run() error {
	logger := util.GetLogger("REPL")

	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.shell.Complete)

	if r.opts.HistoryFile != "" {
		if f, err := os.Open(r.opts.HistoryFile); err == nil {
			if _, err := r.liner.ReadHistory(f); err != nil {
				logger.Warn().Err(err).Str("file", r.opts.HistoryFile).Msg("Failed to read history")
			}
			f.Close()
		}
	}
	defer r.saveHistory()

	fmt.Fprintln(r.shell.out, "Type 'help' for available commands.")

	for {
		line, err := r.liner.Prompt(r.opts.Prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.shell.out)
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)

		if r.shell.Handle(line) {
			return nil
		}
	}
}

// saveHistory persists command history to disk
func (r *REPL) saveHistory() {
	logger := util.GetLogger("REPL")
	if r.opts.HistoryFile == "" {
		return
	}
	f, err := os.Create(r.opts.HistoryFile)
	if err != nil {
		logger.Warn().Err(err).Str("file", r.opts.HistoryFile).Msg("Failed to save history")
		return
	}
	defer f.Close()
	if _, err := r.liner.WriteHistory(f); err != nil {
		logger.Warn().Err(err).Str("file", r.opts.HistoryFile).Msg("Failed to save history")
	}
}
