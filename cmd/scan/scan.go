package scan

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sidkik/parasync/cmd/util"
	"github.com/sidkik/parasync/pkg/errors"
	"github.com/sidkik/parasync/pkg/peer"
)

// New creates a new `scan` command.
func New() *cobra.Command {
	var subnet string
	var port int
	var save bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Find the peer on the private VM network",
		Long: "Scan every address in the subnet for a host accepting SSH connections.\n" +
			"The lowest-numbered host that answers is used.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(subnet, port, save); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&subnet, "subnet", "",
		"The first three octets of the network to scan. Defaults to the configured subnet.")
	cmd.Flags().IntVar(&port, "port", 0, "The port to probe. Defaults to the configured port.")
	cmd.Flags().BoolVar(&save, "save", true, "Save the peer's address in the config")
	return cmd
}

func run(subnet string, port int, save bool) error {
	settings, err := util.LoadSettings()
	if err != nil {
		return err
	}
	if subnet == "" {
		subnet = settings.Subnet
	}
	if port == 0 {
		port = settings.Host.Port
	}

	pp := util.NewProgressPrinter(os.Stdout, fmt.Sprintf("Scanning %s.0/24", subnet))
	go pp.Run()
	host, err := peer.NewFinder().FindPeer(context.Background(), subnet, port, peer.DefaultTimeout)
	pp.Stop()
	if err != nil {
		if _, ok := errors.RootCause(err).(errors.NotFound); ok {
			return errors.NewFriendlyError("No host in %s.0/24 is accepting connections on port %d.\n"+
				"Make sure the peer is running, and that remote login is enabled.", subnet, port)
		}
		return errors.WithContext(err, "scan")
	}

	fmt.Printf("Found peer at %s\n", host.Addr())
	if !save {
		return nil
	}

	settings.Subnet = subnet
	settings.Host.Address = host.Address
	settings.Host.Port = host.Port
	if err := util.SaveSettings(settings); err != nil {
		return errors.WithContext(err, "save settings")
	}
	return nil
}
