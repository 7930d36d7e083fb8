package shell

import (
	"fmt"

	"github.com/brettbedarf/bastion"
	"github.com/mattn/go-shellwords"
)

// tokenize splits a command line into arguments with shell quoting rules.
// Single or double quotes group words and a backslash escapes the next rune
// outside single quotes, so
//
//	write 0 "hello, world"
//
// yields three arguments. Unquoted operators such as ';' or '|' are refused
// instead of silently cutting the line short.
func tokenize(line string) ([]string, error) {
	p := shellwords.NewParser()
	args, err := p.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bastion.ErrInvalidArgument, err)
	}
	if p.Position >= 0 {
		return nil, fmt.Errorf("%w: unquoted shell operator", bastion.ErrInvalidArgument)
	}
	return args, nil
}
