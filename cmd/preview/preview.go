package preview

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/sidkik/parasync/cmd/util"
	"github.com/sidkik/parasync/pkg/errors"
)

// New creates a new `preview` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "preview PAIR",
		Short: "Show what syncing a pair would change, without changing anything",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := run(args[0]); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run(name string) error {
	ctx := context.Background()
	session, err := util.OpenSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	pair, err := util.GetPair(session.Settings, name)
	if err != nil {
		return err
	}

	diff, err := session.Syncer.Preview(ctx, pair)
	if err != nil {
		return errors.WithContext(err, "preview")
	}

	util.RenderPreview(os.Stdout, pair, diff)
	return nil
}
