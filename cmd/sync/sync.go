package sync

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/parasync/cmd/util"
	"github.com/sidkik/parasync/pkg/errors"
)

// New creates a new `sync` command.
func New() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "sync PAIR",
		Short: "Sync a pair",
		Long: "Show what syncing the pair would change, and apply the changes once\n" +
			"confirmed. Deleted and overwritten files are moved to the trash.",
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := run(args[0], yes); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Apply the changes without asking")
	return cmd
}

func run(name string, yes bool) error {
	// Interrupting stops the sync between files. Files that were already
	// copied stay copied.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

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
	if diff.Counts.Changes() == 0 {
		return nil
	}

	if !yes {
		fmt.Println()
		confirmed, err := util.PromptYesOrNo("Apply these changes?")
		if err != nil {
			return errors.WithContext(err, "prompt")
		}
		if !confirmed {
			fmt.Println("Aborting.")
			return nil
		}
	}

	report, err := session.Syncer.Apply(ctx, pair, diff, true)
	fmt.Println()
	util.RenderReport(os.Stdout, report)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Debug("Sync interrupted")
			return nil
		}
		return errors.WithContext(err, "apply")
	}
	return nil
}
