package config

// ShellOptions holds settings for the interactive command shell.
type ShellOptions struct {
	Prompt      string // REPL prompt
	HistoryFile string // REPL history location; empty disables history
}
