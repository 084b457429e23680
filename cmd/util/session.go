package util

import (
	"context"

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/sidkik/parasync/pkg/config"
	"github.com/sidkik/parasync/pkg/credentials"
	"github.com/sidkik/parasync/pkg/errors"
	"github.com/sidkik/parasync/pkg/peer"
	"github.com/sidkik/parasync/pkg/remote"
	"github.com/sidkik/parasync/pkg/store"
	"github.com/sidkik/parasync/pkg/sync"
)

// KnownHostsPath is where the host keys of peers are recorded.
const KnownHostsPath = "~/.ssh/known_hosts"

// ErrNoPeer is returned when the peer's address isn't configured and
// couldn't be discovered.
var ErrNoPeer = errors.NewFriendlyError("No peer configured. " +
	"Run `parasync scan` to find it, or set `host.address` in the config.")

// LoadSettings reads the user's settings.
func LoadSettings() (config.Settings, error) {
	path, err := config.GetSettingsPath()
	if err != nil {
		return config.Settings{}, errors.WithContext(err, "get settings path")
	}

	settings, err := config.Parse(path)
	if err != nil {
		return config.Settings{}, errors.WithContext(err, "parse settings")
	}
	return settings, nil
}

// SaveSettings writes the user's settings.
func SaveSettings(settings config.Settings) error {
	path, err := config.GetSettingsPath()
	if err != nil {
		return errors.WithContext(err, "get settings path")
	}
	return config.Write(path, settings)
}

// GetPair looks up a pair by name, and returns a friendly error if it
// doesn't exist.
func GetPair(settings config.Settings, name string) (config.SyncPair, error) {
	pair, ok := settings.GetPair(name)
	if !ok {
		return config.SyncPair{}, errors.NewFriendlyError(
			"No pair named %q. Run `parasync pair list` to see the configured pairs.", name)
	}
	return pair, nil
}

// Host returns the configured peer. If no address is configured, the subnet
// is scanned for one.
func Host(ctx context.Context, settings config.Settings) (peer.RemoteHost, error) {
	if settings.Host.Address != "" {
		return peer.RemoteHost{Address: settings.Host.Address, Port: settings.Host.Port}, nil
	}

	log.WithField("subnet", settings.Subnet).Info("No peer configured. Scanning.")
	host, err := peer.NewFinder().FindPeer(ctx, settings.Subnet, settings.Host.Port, peer.DefaultTimeout)
	if err != nil {
		if _, ok := errors.RootCause(err).(errors.NotFound); ok {
			return peer.RemoteHost{}, ErrNoPeer
		}
		return peer.RemoteHost{}, errors.WithContext(err, "find peer")
	}
	return host, nil
}

// Connector returns a connector that authenticates as the configured user,
// trusting new host keys on first use.
func Connector(settings config.Settings) (credentials.SSHConnector, error) {
	if settings.User == "" {
		return credentials.SSHConnector{}, errors.NewFriendlyError(
			"No remote user configured. Set `user` in the config.")
	}

	callback, err := hostKeyCallback()
	if err != nil {
		return credentials.SSHConnector{}, err
	}
	return credentials.SSHConnector{User: settings.User, HostKeyCallback: callback}, nil
}

func hostKeyCallback() (ssh.HostKeyCallback, error) {
	path, err := homedir.Expand(KnownHostsPath)
	if err != nil {
		return nil, errors.WithContext(err, "expand known hosts path")
	}
	return remote.AcceptNewHostKey(path)
}

// KeyStore returns the store for the configured identity file.
func KeyStore(settings config.Settings) (credentials.Store, error) {
	path, err := homedir.Expand(settings.IdentityFile)
	if err != nil {
		return credentials.Store{}, errors.WithContext(err, "expand identity file path")
	}
	return credentials.NewStore(path), nil
}

// Session holds everything needed to sync with the peer.
type Session struct {
	Settings  config.Settings
	Host      peer.RemoteHost
	Transport remote.Transport
	Syncer    *sync.Syncer
	Journal   *store.Store
}

// OpenSession connects to the peer with the installed key pair.
func OpenSession(ctx context.Context) (*Session, error) {
	settings, err := LoadSettings()
	if err != nil {
		return nil, err
	}

	host, err := Host(ctx, settings)
	if err != nil {
		return nil, err
	}

	connector, err := Connector(settings)
	if err != nil {
		return nil, err
	}

	keys, err := KeyStore(settings)
	if err != nil {
		return nil, err
	}

	kp := credentials.KeyPair{
		PrivateKeyPath: keys.PrivateKeyPath,
		PublicKeyPath:  keys.PrivateKeyPath + ".pub",
	}
	transport, err := connector.WithKey(kp)
	if err != nil {
		if _, ok := errors.RootCause(err).(errors.FileNotFound); ok {
			return nil, errors.NewFriendlyError(
				"No key pair at %s. Run `parasync setup` first.", keys.PrivateKeyPath)
		}
		return nil, errors.WithContext(err, "load key")
	}

	journalPath, err := homedir.Expand(store.DefaultPath)
	if err != nil {
		return nil, errors.WithContext(err, "expand journal path")
	}
	journal, err := store.Open(journalPath)
	if err != nil {
		return nil, errors.WithContext(err, "open journal")
	}

	syncer := sync.New(host, transport)
	syncer.Prober = peer.NewFinder()
	syncer.Journal = journal
	return &Session{
		Settings:  settings,
		Host:      host,
		Transport: transport,
		Syncer:    syncer,
		Journal:   journal,
	}, nil
}

// Close releases the connection and the journal.
func (s *Session) Close() {
	if closer, ok := s.Transport.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.WithError(err).Debug("Failed to close transport")
		}
	}
	if err := s.Journal.Close(); err != nil {
		log.WithError(err).Debug("Failed to close journal")
	}
}
