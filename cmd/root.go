package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/parasync/cmd/bugtool"
	"github.com/sidkik/parasync/cmd/keygen"
	"github.com/sidkik/parasync/cmd/pair"
	"github.com/sidkik/parasync/cmd/preview"
	"github.com/sidkik/parasync/cmd/scan"
	"github.com/sidkik/parasync/cmd/setup"
	"github.com/sidkik/parasync/cmd/ssh"
	syncCmd "github.com/sidkik/parasync/cmd/sync"
	"github.com/sidkik/parasync/cmd/testconn"
	"github.com/sidkik/parasync/cmd/transfer"
	"github.com/sidkik/parasync/cmd/trash"
	"github.com/sidkik/parasync/cmd/util"
	"github.com/sidkik/parasync/cmd/version"
	watchCmd "github.com/sidkik/parasync/cmd/watch"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "PARASYNC_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:          "parasync",
		Short:        "Keep folders in sync with a peer on the private VM network",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		bugtool.New(),
		keygen.New(),
		pair.New(),
		preview.New(),
		scan.New(),
		setup.New(),
		ssh.New(),
		syncCmd.New(),
		testconn.New(),
		transfer.NewPull(),
		transfer.NewPush(),
		trash.New(),
		version.New(),
		watchCmd.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
