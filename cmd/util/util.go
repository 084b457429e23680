package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/parasync/pkg/errors"
)

// Mocked for unit testing.
var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
	exit             = os.Exit
)

// HandleFatalError prints the error and exits. Friendly errors are printed
// as is, and other errors are printed along with their context.
func HandleFatalError(err error) {
	var friendly errors.FriendlyError
	if errors.As(err, &friendly) {
		fmt.Fprintln(os.Stderr, friendly.FriendlyMessage())
	} else {
		log.WithError(err).Error("Fatal error")
	}
	exit(1)
}

// HandlePanic logs the stack trace of a panic before the program exits.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("stack", string(debug.Stack())).
			Errorf("Unexpected panic: %v", r)
		exit(1)
	}
}

// PromptYesOrNo asks the user a yes or no question, and keeps asking until
// it gets a valid answer.
func PromptYesOrNo(prompt string) (bool, error) {
	reader := bufio.NewReader(stdin)
	for {
		fmt.Fprintf(stdout, "%s [y/n]: ", prompt)
		resp, err := reader.ReadString('\n')
		if err != nil {
			return false, err
		}

		switch strings.ToLower(strings.TrimSpace(resp)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}

// ProgressPrinter prints a message followed by a growing line of dots until
// it's stopped.
type ProgressPrinter struct {
	out  io.Writer
	msg  string
	stop chan struct{}
	done chan struct{}
}

// NewProgressPrinter returns a new ProgressPrinter. It doesn't print
// anything until Run is called.
func NewProgressPrinter(out io.Writer, msg string) *ProgressPrinter {
	return &ProgressPrinter{
		out:  out,
		msg:  msg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Run prints the progress until Stop is called.
func (pp *ProgressPrinter) Run() {
	defer close(pp.done)

	fmt.Fprint(pp.out, pp.msg)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fmt.Fprint(pp.out, ".")
		case <-pp.stop:
			fmt.Fprintln(pp.out)
			return
		}
	}
}

// Stop stops the printer, and waits for it to finish writing.
func (pp *ProgressPrinter) Stop() {
	close(pp.stop)
	<-pp.done
}
