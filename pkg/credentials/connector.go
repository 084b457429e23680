package credentials

import (
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/sidkik/parasync/pkg/remote"
)

// SSHConnector opens SSH transports as `User`.
type SSHConnector struct {
	User            string
	HostKeyCallback ssh.HostKeyCallback
	DialTimeout     time.Duration
}

// WithPassword returns a transport that logs in with the password. Both
// password and keyboard-interactive authentication are attempted, since
// macOS only enables the latter by default.
func (c SSHConnector) WithPassword(password string) remote.Transport {
	answer := func(user, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = password
		}
		return answers, nil
	}

	return remote.NewSSHTransport(remote.SSHConfig{
		User: c.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(answer),
		},
		HostKeyCallback: c.HostKeyCallback,
		DialTimeout:     c.DialTimeout,
	})
}

// WithKey returns a transport that logs in with the key pair.
func (c SSHConnector) WithKey(kp KeyPair) (remote.Transport, error) {
	signer, err := NewStore(kp.PrivateKeyPath).Signer()
	if err != nil {
		return nil, err
	}

	return remote.NewSSHTransport(remote.SSHConfig{
		User:            c.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: c.HostKeyCallback,
		DialTimeout:     c.DialTimeout,
	}), nil
}
