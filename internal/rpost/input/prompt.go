package input

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// TerminalPrompter reads answers line by line from In and writes labels to Out.
// Masked prompts switch the terminal to no-echo mode when In is a terminal.
type TerminalPrompter struct {
	in     io.Reader
	out    io.Writer
	reader *bufio.Reader

	isTerminal   func(fd int) bool
	readPassword func(fd int) ([]byte, error)
}

// NewTerminalPrompter builds a prompter over the given streams.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{
		in:           in,
		out:          out,
		reader:       bufio.NewReader(in),
		isTerminal:   term.IsTerminal,
		readPassword: term.ReadPassword,
	}
}

// Prompt blocks until a line is read. Trailing newlines are stripped.
func (p *TerminalPrompter) Prompt(ctx context.Context, label string, masked bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintf(p.out, "%s: ", label)

	// Lines already buffered (typed ahead or piped) are consumed before the
	// terminal is read directly, or they would be skipped.
	if masked && p.reader.Buffered() == 0 {
		if fd, ok := p.terminalFD(); ok {
			data, err := p.readPassword(fd)
			fmt.Fprintln(p.out)
			if err != nil {
				return "", fmt.Errorf("read masked input: %w", err)
			}
			return string(data), nil
		}
	}

	line, err := p.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *TerminalPrompter) terminalFD() (int, bool) {
	file, ok := p.in.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(file.Fd())
	return fd, p.isTerminal(fd)
}
