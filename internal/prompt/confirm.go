// Package prompt asks yes/no questions on the terminal.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Confirmer reads answers from In and writes questions to Out.
type Confirmer struct {
	In            io.Reader
	Out           io.Writer
	IsInteractive func() bool
}

// DefaultConfirmer talks to the process terminal.
func DefaultConfirmer() Confirmer {
	return Confirmer{
		In:            os.Stdin,
		Out:           os.Stderr,
		IsInteractive: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
	}
}

// Confirm asks question and reports whether the answer was yes. force skips
// the question. Without a terminal the question cannot be asked, so the error
// names the flag that answers it.
func (c Confirmer) Confirm(question string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	if c.IsInteractive == nil || !c.IsInteractive() {
		return false, fmt.Errorf("non-interactive stdin: use -y to confirm %q", question)
	}
	if c.Out != nil {
		fmt.Fprintf(c.Out, "%s (y/n): ", question)
	}
	answer, err := bufio.NewReader(c.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (c Confirmer) ConfirmOverwrite(path string, force bool) (bool, error) {
	return c.Confirm(fmt.Sprintf("Warning: Output file %s already exists. Overwrite?", path), force)
}
