package credentials

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/alessio/shellescape"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/parasync/pkg/errors"
	"github.com/sidkik/parasync/pkg/peer"
	"github.com/sidkik/parasync/pkg/remote"
)

const (
	keyInstalled = "KEY_INSTALLED"
	keyPresent   = "KEY_PRESENT"
	keyOK        = "KEY_OK"
)

// The key is only appended if no line matches it exactly. A missing trailing
// newline is fixed first so that the key doesn't get glued onto the previous
// line.
const installScript = `key=%s
mkdir -p ~/.ssh && chmod 700 ~/.ssh || exit 1
touch ~/.ssh/authorized_keys && chmod 600 ~/.ssh/authorized_keys || exit 1
if grep -qxF "$key" ~/.ssh/authorized_keys; then
  echo ` + keyPresent + `
  exit 0
fi
if [ -s ~/.ssh/authorized_keys ] && [ -n "$(tail -c 1 ~/.ssh/authorized_keys)" ]; then
  echo >> ~/.ssh/authorized_keys
fi
printf '%%s\n' "$key" >> ~/.ssh/authorized_keys && echo ` + keyInstalled

// Connector opens transports to the peer with either a password or the key
// pair.
type Connector interface {
	WithPassword(password string) remote.Transport
	WithKey(kp KeyPair) (remote.Transport, error)
}

// InstallOn adds the public key of `kp` to the peer's authorized_keys file by
// logging in with `password`, and then checks that the peer accepts the key. The
// returned bool is true if the key was appended, and false if it was already
// present.
//
// A rejected password is returned as an AuthenticationError. It should never
// be retried with the same password.
func (s Store) InstallOn(ctx context.Context, connector Connector, host peer.RemoteHost,
	kp KeyPair, password string) (KeyPair, bool, error) {

	kp.Installed = false
	pubPath := kp.PublicKeyPath
	if pubPath == "" {
		pubPath = s.publicKeyPath()
	}
	line, err := readAuthorizedKey(pubPath)
	if err != nil {
		return kp, false, err
	}

	transport := connector.WithPassword(password)
	defer closeTransport(transport)

	res, err := remote.RunChecked(ctx, transport, host,
		"install key", fmt.Sprintf(installScript, shellescape.Quote(line)))
	if err != nil {
		return kp, false, err
	}

	appended := strings.Contains(res.Stdout, keyInstalled)
	if !appended && !strings.Contains(res.Stdout, keyPresent) {
		return kp, false, errors.TransportError{
			Op:   "install key",
			Host: host.Addr(),
			Err:  errors.New("unexpected output %q", res.Stdout),
		}
	}
	log.WithField("host", host.Addr()).WithField("appended", appended).Debug("Installed public key")

	if err := Verify(ctx, connector, host, kp); err != nil {
		return kp, appended, errors.WithContext(err, "verify key")
	}

	kp.Installed = true
	return kp, appended, nil
}

// Verify checks that the peer accepts the key pair.
func Verify(ctx context.Context, connector Connector, host peer.RemoteHost, kp KeyPair) error {
	transport, err := connector.WithKey(kp)
	if err != nil {
		return err
	}
	defer closeTransport(transport)

	res, err := remote.RunChecked(ctx, transport, host, "verify key", "echo "+keyOK)
	if err != nil {
		return err
	}

	if strings.TrimSpace(res.Stdout) != keyOK {
		return errors.TransportError{
			Op:   "verify key",
			Host: host.Addr(),
			Err:  errors.New("unexpected output %q", res.Stdout),
		}
	}
	return nil
}

func closeTransport(transport remote.Transport) {
	if closer, ok := transport.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.WithError(err).Debug("Failed to close transport")
		}
	}
}
