package transfer

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sidkik/parasync/cmd/util"
	"github.com/sidkik/parasync/pkg/errors"
	"github.com/sidkik/parasync/pkg/remote"
)

// NewPush creates a new `push` command.
func NewPush() *cobra.Command {
	return &cobra.Command{
		Use:   "push LOCAL REMOTE",
		Short: "Copy a local file or folder to the peer, without comparing anything",
		Long: "Copy a local file or folder to the peer. Existing remote files are\n" +
			"overwritten, and nothing is deleted. Use `sync` to mirror folders.",
		Args: cobra.ExactArgs(2),
		Run: func(_ *cobra.Command, args []string) {
			if err := run(remote.ToRemote, args[0], args[1]); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

// NewPull creates a new `pull` command.
func NewPull() *cobra.Command {
	return &cobra.Command{
		Use:   "pull REMOTE LOCAL",
		Short: "Copy a file or folder from the peer, without comparing anything",
		Long: "Copy a file or folder from the peer. Existing local files are\n" +
			"overwritten, and nothing is deleted. Use `sync` to mirror folders.",
		Args: cobra.ExactArgs(2),
		Run: func(_ *cobra.Command, args []string) {
			if err := run(remote.FromRemote, args[1], args[0]); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run(dir remote.Direction, localPath, remotePath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	localPath, err := filepath.Abs(localPath)
	if err != nil {
		return errors.WithContext(err, "resolve local path")
	}

	session, err := util.OpenSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	pp := util.NewProgressPrinter(os.Stdout, fmt.Sprintf("Copying (%s)", dir))
	go pp.Run()
	n, err := session.Transport.Copy(ctx, session.Host, dir, localPath, remotePath, true)
	pp.Stop()
	if err != nil {
		return errors.WithContext(err, "copy")
	}

	fmt.Printf("Copied %d bytes.\n", n)
	return nil
}
