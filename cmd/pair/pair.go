package pair

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sidkik/parasync/cmd/util"
	"github.com/sidkik/parasync/pkg/config"
	"github.com/sidkik/parasync/pkg/errors"
)

// Mocked for unit testing.
var (
	stdout       io.Writer = os.Stdout
	loadSettings           = util.LoadSettings
	saveSettings           = util.SaveSettings
)

// New creates a new `pair` command.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Manage the folders that are kept in sync",
	}

	var pair config.SyncPair
	var mode string
	add := &cobra.Command{
		Use:   "add NAME LOCAL REMOTE",
		Short: "Add or update a pair",
		Args:  cobra.ExactArgs(3),
		Run: func(_ *cobra.Command, args []string) {
			pair.Name, pair.LocalRoot, pair.RemoteRoot = args[0], args[1], args[2]
			pair.Mode = config.Mode(mode)
			if err := addPair(pair); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	add.Flags().StringVar(&mode, "mode", string(config.Merge),
		fmt.Sprintf("How the folders are synced: %s, %s or %s",
			config.Merge, config.PushMirror, config.PullMirror))
	add.Flags().StringVar(&pair.LocalTrash, "local-trash", "",
		"Where deleted local files are moved. Defaults to "+config.DefaultLocalTrash)
	add.Flags().StringVar(&pair.RemoteTrash, "remote-trash", "",
		"Where deleted remote files are moved. Defaults to "+config.DefaultRemoteTrash)

	del := &cobra.Command{
		Use:   "del NAME",
		Short: "Delete a pair. The folders aren't touched.",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := deletePair(args[0]); err != nil {
				util.HandleFatalError(err)
			}
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the pairs",
		Run: func(_ *cobra.Command, _ []string) {
			if err := listPairs(); err != nil {
				util.HandleFatalError(err)
			}
		},
	}

	cmd.AddCommand(add, del, list)
	return cmd
}

func addPair(pair config.SyncPair) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	if err := settings.UpsertPair(pair); err != nil {
		return errors.NewFriendlyError("Invalid pair: %s", err)
	}

	if err := saveSettings(settings); err != nil {
		return errors.WithContext(err, "save settings")
	}

	saved, _ := settings.GetPair(pair.Name)
	fmt.Fprintf(stdout, "Saved pair %s\n", saved)
	return nil
}

func deletePair(name string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	if !settings.DeletePair(name) {
		return errors.NewFriendlyError("No pair named %q.", name)
	}

	if err := saveSettings(settings); err != nil {
		return errors.WithContext(err, "save settings")
	}
	fmt.Fprintf(stdout, "Deleted pair %s\n", name)
	return nil
}

func listPairs() error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	if len(settings.Pairs) == 0 {
		fmt.Fprintln(stdout, "No pairs.")
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMODE\tLOCAL\tREMOTE")
	for _, pair := range settings.Pairs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", pair.Name, pair.Mode, pair.LocalRoot, pair.RemoteRoot)
	}
	return w.Flush()
}
