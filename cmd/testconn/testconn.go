package testconn

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sidkik/parasync/cmd/util"
	"github.com/sidkik/parasync/pkg/errors"
	"github.com/sidkik/parasync/pkg/remote"
)

// New creates a new `test` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check that passwordless login to the peer works",
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

	err = remote.TestConnection(ctx, session.Transport, session.Host)
	var authErr errors.AuthenticationError
	switch {
	case errors.As(err, &authErr):
		return errors.NewFriendlyError("%s@%s doesn't accept the key. "+
			"Run `parasync setup` to set up passwordless login.",
			session.Settings.User, session.Host.Address)
	case err != nil:
		return errors.WithContext(err, "test connection")
	}

	fmt.Printf("Connected to %s@%s.\n", session.Settings.User, session.Host.Addr())
	return nil
}
