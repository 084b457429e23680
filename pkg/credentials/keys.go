// Package credentials manages the key pair used to log into the peer without
// a password, and installs it on the peer.
package credentials

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"

	"github.com/sidkik/parasync/pkg/errors"
	"github.com/sidkik/parasync/pkg/version"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// KeyPair is the location of the key files. The private key never leaves
// this machine.
type KeyPair struct {
	PrivateKeyPath string
	PublicKeyPath  string

	// Installed is only set once the peer has accepted the key.
	Installed bool
}

// Store keeps the key pair at a fixed path.
type Store struct {
	PrivateKeyPath string
}

// NewStore returns a Store for the key at `privateKeyPath`. The public key
// lives next to it with a `.pub` suffix.
func NewStore(privateKeyPath string) Store {
	return Store{PrivateKeyPath: privateKeyPath}
}

func (s Store) publicKeyPath() string {
	return s.PrivateKeyPath + ".pub"
}

// EnsureKeyPair generates an ed25519 key pair without a passphrase if one
// doesn't exist yet. Calling it again returns the existing pair unchanged.
func (s Store) EnsureKeyPair() (KeyPair, error) {
	kp := KeyPair{PrivateKeyPath: s.PrivateKeyPath, PublicKeyPath: s.publicKeyPath()}

	_, err := fs.Stat(s.PrivateKeyPath)
	switch {
	case err == nil:
		if err := s.ensurePublicKey(); err != nil {
			return KeyPair{}, err
		}
		return kp, nil
	case !os.IsNotExist(err):
		return KeyPair{}, errors.IOError{Path: s.PrivateKeyPath, Err: err}
	}

	log.WithField("path", s.PrivateKeyPath).Info("Generating SSH key pair")
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, errors.WithContext(err, "generate key")
	}

	block, err := ssh.MarshalPrivateKey(priv, version.KeyComment)
	if err != nil {
		return KeyPair{}, errors.WithContext(err, "marshal private key")
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return KeyPair{}, errors.WithContext(err, "marshal public key")
	}

	if err := fs.MkdirAll(filepath.Dir(s.PrivateKeyPath), 0700); err != nil {
		return KeyPair{}, errors.IOError{Path: filepath.Dir(s.PrivateKeyPath), Err: err}
	}

	// Write the public key first so that a failure never leaves a private
	// key without its public half.
	if err := writeKeyFile(kp.PublicKeyPath, []byte(authorizedKeyLine(sshPub)+"\n")); err != nil {
		return KeyPair{}, err
	}
	if err := writeKeyFile(kp.PrivateKeyPath, pem.EncodeToMemory(block)); err != nil {
		return KeyPair{}, err
	}
	return kp, nil
}

// ensurePublicKey regenerates the public key from the private key if it was
// deleted.
func (s Store) ensurePublicKey() error {
	if _, err := fs.Stat(s.publicKeyPath()); err == nil {
		return nil
	}

	signer, err := s.Signer()
	if err != nil {
		return err
	}

	log.WithField("path", s.publicKeyPath()).Info("Restoring missing public key")
	return writeKeyFile(s.publicKeyPath(), []byte(authorizedKeyLine(signer.PublicKey())+"\n"))
}

// Signer loads the private key.
func (s Store) Signer() (ssh.Signer, error) {
	pemBytes, err := afero.ReadFile(fs, s.PrivateKeyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: s.PrivateKeyPath}
		}
		return nil, errors.IOError{Path: s.PrivateKeyPath, Err: err}
	}

	signer, err := ssh.ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, errors.WithContext(err, "parse private key")
	}
	return signer, nil
}

// AuthorizedKey returns the line that's added to the peer's authorized_keys
// file.
func (s Store) AuthorizedKey() (string, error) {
	return readAuthorizedKey(s.publicKeyPath())
}

func readAuthorizedKey(path string) (string, error) {
	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.FileNotFound{Path: path}
		}
		return "", errors.IOError{Path: path, Err: err}
	}

	line := strings.TrimSpace(string(contents))
	if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line)); err != nil {
		return "", errors.WithContext(err, "parse public key")
	}
	return line, nil
}

func authorizedKeyLine(key ssh.PublicKey) string {
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(key))) + " " + version.KeyComment
}

func writeKeyFile(path string, contents []byte) error {
	if err := afero.WriteFile(fs, path, contents, 0600); err != nil {
		return errors.IOError{Path: path, Err: err}
	}

	// WriteFile doesn't change the mode of existing files.
	if err := fs.Chmod(path, 0600); err != nil {
		return errors.IOError{Path: path, Err: err}
	}
	return nil
}
