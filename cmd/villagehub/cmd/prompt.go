package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// prompter reads answers line by line from the command's stdin.
type prompter struct {
	raw io.Reader
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(cmd *cobra.Command) *prompter {
	raw := cmd.InOrStdin()
	return &prompter{raw: raw, in: bufio.NewReader(raw), out: cmd.ErrOrStderr()}
}

// line prints label (when non-empty) and returns the next input line
// without its line ending.
func (p *prompter) line(label string) (string, error) {
	if label != "" {
		fmt.Fprint(p.out, label)
	}
	s, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("no input for %q", strings.TrimSuffix(strings.TrimSpace(label), ":"))
		}
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}

// value returns current when it is set, otherwise prompts for it.
func (p *prompter) value(current, label string) (string, error) {
	if current != "" {
		return current, nil
	}
	return p.line(label)
}

// password reads a password. On a terminal it is read without echo. With
// --password-stdin, or when stdin is not a terminal, it is read as a plain
// line and with --password-stdin no label is printed.
func (p *prompter) password(label string) (string, error) {
	if passwordStdin {
		return p.line("")
	}
	if fd, ok := p.terminal(); ok {
		fmt.Fprint(p.out, label)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	return p.line(label)
}

// terminal reports the descriptor of stdin when it is an interactive
// terminal with nothing buffered ahead of it.
func (p *prompter) terminal() (int, bool) {
	f, ok := p.raw.(*os.File)
	if !ok || p.in.Buffered() > 0 {
		return 0, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}
