package ssh

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sidkik/parasync/cmd/util"
	"github.com/sidkik/parasync/pkg/errors"
	"github.com/sidkik/parasync/pkg/remote"
)

// New creates a new `ssh` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "ssh",
		Short: "Get a shell on the peer",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run() error {
	ctx := context.Background()
	session, err := util.OpenSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	transport, ok := session.Transport.(*remote.SSHTransport)
	if !ok {
		return errors.New("transport doesn't support interactive shells")
	}

	fd := int(os.Stdin.Fd())
	width, height, err := term.GetSize(fd)
	if err != nil {
		width, height = 80, 24
	}

	// Put the terminal into raw mode to prevent it echoing characters twice.
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return errors.WithContext(err, "set terminal mode")
	}

	defer func() {
		_ = term.Restore(fd, oldState)
	}()

	termType := os.Getenv("TERM")
	if termType == "" {
		termType = "xterm-256color"
	}
	return transport.Shell(ctx, session.Host, termType, width, height,
		os.Stdin, os.Stdout, os.Stderr)
}
