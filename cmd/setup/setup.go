package setup

import (
	"context"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sidkik/parasync/cmd/util"
	"github.com/sidkik/parasync/pkg/credentials"
	"github.com/sidkik/parasync/pkg/errors"
	"github.com/sidkik/parasync/pkg/peer"
)

// Mocked for unit testing.
var (
	stdout       io.Writer = os.Stdout
	readPassword           = func() (string, error) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(stdout)
		return string(password), err
	}
)

// New creates a new `setup` command.
func New() *cobra.Command {
	var user, address string
	var port int
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Set up passwordless login to the peer",
		Long: "Generate a key pair if necessary, and install the public key on the\n" +
			"peer by logging in once with a password. The password isn't stored.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := main(user, address, port); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "The user to log in as. Saved in the config.")
	cmd.Flags().StringVar(&address, "host", "", "The peer's address. Saved in the config. "+
		"Optional: If not set, the configured address is used, or the subnet is scanned.")
	cmd.Flags().IntVar(&port, "port", 0, "The peer's SSH port. Saved in the config.")
	return cmd
}

func main(user, address string, port int) error {
	settings, err := util.LoadSettings()
	if err != nil {
		return err
	}
	if user != "" {
		settings.User = user
	}
	if address != "" {
		settings.Host.Address = address
	}
	if port != 0 {
		settings.Host.Port = port
	}

	ctx := context.Background()
	host, err := util.Host(ctx, settings)
	if err != nil {
		return err
	}
	settings.Host.Address, settings.Host.Port = host.Address, host.Port

	connector, err := util.Connector(settings)
	if err != nil {
		return err
	}

	keys, err := util.KeyStore(settings)
	if err != nil {
		return err
	}

	if err := install(ctx, keys, connector, host, settings.User); err != nil {
		return err
	}

	if err := util.SaveSettings(settings); err != nil {
		return errors.WithContext(err, "save settings")
	}
	return nil
}

func install(ctx context.Context, keys credentials.Store, connector credentials.Connector,
	host peer.RemoteHost, user string) error {

	kp, err := keys.EnsureKeyPair()
	if err != nil {
		return errors.WithContext(err, "generate key pair")
	}

	verifyErr := credentials.Verify(ctx, connector, host, kp)
	if verifyErr == nil {
		fmt.Fprintf(stdout, "Passwordless login to %s@%s already works.\n", user, host.Address)
		return nil
	}
	log.WithError(verifyErr).Debug("Key isn't installed yet")

	fmt.Fprintf(stdout, "Password for %s@%s: ", user, host.Address)
	password, err := readPassword()
	if err != nil {
		return errors.WithContext(err, "read password")
	}

	kp, appended, err := keys.InstallOn(ctx, connector, host, kp, password)
	if err != nil {
		var authErr errors.AuthenticationError
		if errors.As(err, &authErr) {
			return errors.NewFriendlyError("The peer rejected the password for %s@%s.",
				user, host.Address)
		}
		return errors.WithContext(err, "install key")
	}

	if appended {
		fmt.Fprintf(stdout, "Installed %s on %s.\n", kp.PublicKeyPath, host.Address)
	} else {
		fmt.Fprintf(stdout, "%s was already authorized on %s.\n", kp.PublicKeyPath, host.Address)
	}
	fmt.Fprintln(stdout, "Passwordless login is ready.")
	return nil
}
