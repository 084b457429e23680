package version

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/parasync/cmd/util"
	"github.com/sidkik/parasync/pkg/errors"
	"github.com/sidkik/parasync/pkg/remote"
	"github.com/sidkik/parasync/pkg/version"
)

// New creates a new `version` command.
func New() *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version of parasync, and the peer's operating system.",
		Run: func(_ *cobra.Command, args []string) {
			if err := run(local); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Don't connect to the peer")
	return cmd
}

func run(local bool) error {
	fmt.Printf("local version: %s\n", version.Version)
	if local {
		return nil
	}

	ctx := context.Background()
	session, err := util.OpenSession(ctx)
	if err != nil {
		log.WithError(err).Debug("Failed to connect to peer")
		fmt.Println("peer:          (not connected)")
		return nil
	}
	defer session.Close()

	res, err := remote.RunChecked(ctx, session.Transport, session.Host, "uname", "uname -sr")
	if err != nil {
		return errors.WithContext(err, "get peer version")
	}
	fmt.Printf("peer:          %s (%s)\n", strings.TrimSpace(res.Stdout), session.Host.Addr())
	return nil
}
