package watch

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sidkik/parasync/cmd/util"
	"github.com/sidkik/parasync/pkg/errors"
	"github.com/sidkik/parasync/pkg/fswatch"
	"github.com/sidkik/parasync/pkg/sync"
	"github.com/sidkik/parasync/pkg/watch"
)

// New creates a new `watch` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "watch PAIR",
		Short: "Sync a pair whenever the local folder changes",
		Long: "Sync the pair once, and then again every time the local folder has\n" +
			"been quiet for two seconds after a change. Changes are applied without\n" +
			"confirmation. Stop with Ctrl-C.",
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := run(args[0]); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run(name string) error {
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

	watcher, err := fswatch.Watch(pair.LocalRoot)
	if err != nil {
		return errors.WithContext(err, "watch local folder")
	}
	defer watcher.Close()

	scheduler := watch.New(pair, session.Syncer.Sync)
	scheduler.OnResult = func(report sync.SyncReport, err error) {
		if err == nil && len(report.Copied)+len(report.Trashed)+len(report.Failed) == 0 {
			return
		}
		util.RenderReport(os.Stdout, report)
	}
	scheduler.Start(ctx, watcher.Events())

	fmt.Printf("Watching %s. Press Ctrl-C to stop.\n", pair.LocalRoot)

	// Catch up on changes made while we weren't watching.
	scheduler.Notify()

	<-ctx.Done()
	scheduler.Stop()
	return nil
}
