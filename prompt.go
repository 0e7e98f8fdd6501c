package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/juju/errors"
	"golang.org/x/term"

	stasherrors "github.com/ammesonb/savestash/errors"
)

// DefaultLabel is offered when prompting for a backup label
const DefaultLabel = "Backup"

var isTerminal = term.IsTerminal
var stdinFd = func() int { return int(os.Stdin.Fd()) }

// promptLabel asks for a label on out, reading the answer from in
// An empty answer takes DefaultLabel
func promptLabel(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprintf(out, "Enter a name for the backup [%s]: ", DefaultLabel)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", errors.WithType(errors.Annotate(err, "cannot read label"), stasherrors.IO)
	}
	if line = strings.TrimSpace(line); line == "" {
		return DefaultLabel, nil
	}
	return line, nil
}

// chooseLabel picks the label for a backup
// An explicit flag always wins, otherwise a terminal user is asked when
// prompting is enabled; everyone else gets no label
func (e *Engine) chooseLabel(flagSet bool, flagLabel string) (string, error) {
	if flagSet {
		return flagLabel, nil
	}
	if !e.cfg.PromptForLabel || !isTerminal(stdinFd()) {
		return "", nil
	}
	return promptLabel(e.In, e.Out)
}
