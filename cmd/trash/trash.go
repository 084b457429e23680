package trash

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/sidkik/parasync/cmd/util"
	"github.com/sidkik/parasync/pkg/errors"
	"github.com/sidkik/parasync/pkg/store"
)

// Mocked for unit testing.
var stdout io.Writer = os.Stdout

// New creates a new `trash` command.
func New() *cobra.Command {
	var pair string
	var runs bool
	cmd := &cobra.Command{
		Use:   "trash",
		Short: "List the files that syncs moved to the trash",
		Long: "List every file that was moved to the trash instead of being deleted\n" +
			"or overwritten, and where it can be restored from.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(pair, runs); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&pair, "pair", "", "Only show the trash of this pair")
	cmd.Flags().BoolVar(&runs, "runs", false, "List the recorded syncs instead")
	return cmd
}

func run(pair string, runs bool) error {
	path, err := homedir.Expand(store.DefaultPath)
	if err != nil {
		return errors.WithContext(err, "expand journal path")
	}

	journal, err := store.Open(path)
	if err != nil {
		return errors.WithContext(err, "open journal")
	}
	defer journal.Close()

	if runs {
		return listRuns(context.Background(), journal, pair)
	}
	return listTrash(context.Background(), journal, pair)
}

func listTrash(ctx context.Context, journal *store.Store, pair string) error {
	entries, err := journal.ListTrash(ctx, pair)
	if err != nil {
		return errors.WithContext(err, "list trash")
	}

	if len(entries) == 0 {
		fmt.Fprintln(stdout, "The trash is empty.")
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "TRASHED AT\tPAIR\tSIDE\tPATH\tTRASHED TO")
	for _, entry := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			entry.TrashedAt.Local().Format(time.DateTime), entry.Pair, entry.Side,
			entry.OriginalRelativePath, entry.TrashedPath)
	}
	return w.Flush()
}

func listRuns(ctx context.Context, journal *store.Store, pair string) error {
	runs, err := journal.ListRuns(ctx, pair, 50)
	if err != nil {
		return errors.WithContext(err, "list runs")
	}

	if len(runs) == 0 {
		fmt.Fprintln(stdout, "No syncs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED AT\tPAIR\tMODE\tSTATUS\tCOPIED\tTRASHED\tFAILED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			run.StartedAt.Local().Format(time.DateTime), run.Pair, run.Mode, run.Status,
			run.Copied, run.Trashed, run.Failed)
	}
	return w.Flush()
}
