package keygen

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sidkik/parasync/cmd/util"
	"github.com/sidkik/parasync/pkg/errors"
)

// New creates a new `keygen` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate the key pair used for passwordless login",
		Long: "Generate an ed25519 key pair for logging into the peer.\n" +
			"An existing key pair is reused.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run() error {
	settings, err := util.LoadSettings()
	if err != nil {
		return err
	}

	keys, err := util.KeyStore(settings)
	if err != nil {
		return err
	}

	kp, err := keys.EnsureKeyPair()
	if err != nil {
		return errors.WithContext(err, "generate key pair")
	}

	authorizedKey, err := keys.AuthorizedKey()
	if err != nil {
		return errors.WithContext(err, "read public key")
	}

	fmt.Printf("Private key: %s\n", kp.PrivateKeyPath)
	fmt.Printf("Public key:  %s\n\n", kp.PublicKeyPath)
	fmt.Println(authorizedKey)
	return nil
}
