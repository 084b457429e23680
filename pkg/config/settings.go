package config

import (
	"path/filepath"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/parasync/pkg/errors"
)

const (
	// SettingsPath is the default path to the parasync settings.
	SettingsPath = "~/.parasync/config.yaml"

	// InitialSettingsVersion is the version assumed for settings files that
	// don't specify one.
	InitialSettingsVersion = "1.0"

	// SupportedSettingsVersions is the range of settings versions this
	// binary can read.
	SupportedSettingsVersions = ">= 1.0, < 2.0"

	// CurrentSettingsVersion is written into every saved settings file.
	CurrentSettingsVersion = "1.0"

	// DefaultSubnet is the shared network Parallels assigns to its VMs.
	DefaultSubnet = "10.211.55"

	// DefaultPort is the SSH port.
	DefaultPort = 22

	// DefaultIdentityFile is where the passwordless key pair is kept.
	DefaultIdentityFile = "~/.ssh/id_ed25519_parasync"

	// DefaultLocalTrash is where pull mirrors move deleted local files.
	DefaultLocalTrash = "~/.parasync_trash"

	// DefaultRemoteTrash is where push mirrors move deleted remote files.
	DefaultRemoteTrash = "~/.Trash/parasync"
)

// Host is the persisted address of the remote peer.
type Host struct {
	Address string `json:"address"`
	Port    int    `json:"port,omitempty"`
}

// Settings contains the persisted configuration: where the peer lives, who
// to log in as, and the folders to keep in sync.
type Settings struct {
	Version      string     `json:"version,omitempty"`
	Host         Host       `json:"host,omitempty"`
	User         string     `json:"user,omitempty"`
	IdentityFile string     `json:"identityFile,omitempty"`
	Subnet       string     `json:"subnet,omitempty"`
	Pairs        []SyncPair `json:"pairs,omitempty"`
}

func (s Settings) getVersion() string {
	return s.Version
}

// homedirExpand will be overridden in mock tests.
var homedirExpand = homedir.Expand

// GetSettingsPath returns the expanded path to the settings file.
func GetSettingsPath() (string, error) {
	return homedirExpand(SettingsPath)
}

// Parse reads the settings at `path`. A missing file isn't an error: the
// default settings are returned so that the first run works without setup.
func Parse(path string) (Settings, error) {
	settings := Settings{Version: InitialSettingsVersion}
	if err := readVersioned(path, &settings, SupportedSettingsVersions); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			log.WithField("path", path).Debug("No settings file. Using defaults.")
			return withDefaults(Settings{Version: CurrentSettingsVersion}), nil
		}
		return Settings{}, errors.WithContext(err, "parse")
	}

	for i, pair := range settings.Pairs {
		cleaned, err := cleanPair(pair)
		if err != nil {
			return Settings{}, errors.WithContext(err, "pair "+pair.Name)
		}
		settings.Pairs[i] = cleaned
	}
	return withDefaults(settings), nil
}

// Write saves the settings to `path`, creating its parent directory.
func Write(path string, settings Settings) error {
	settings.Version = CurrentSettingsVersion
	yamlBytes, err := yaml.Marshal(settings)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.WithContext(err, "create config directory")
	}

	if err := afero.WriteFile(fs, path, yamlBytes, 0600); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

func withDefaults(s Settings) Settings {
	if s.Host.Port == 0 {
		s.Host.Port = DefaultPort
	}
	if s.Subnet == "" {
		s.Subnet = DefaultSubnet
	}
	if s.IdentityFile == "" {
		s.IdentityFile = DefaultIdentityFile
	}
	return s
}

func cleanPair(pair SyncPair) (SyncPair, error) {
	if pair.Name == "" {
		return SyncPair{}, errors.MissingFieldError{Field: "name"}
	}
	if pair.LocalRoot == "" {
		return SyncPair{}, errors.MissingFieldError{Field: "localRoot"}
	}
	if pair.RemoteRoot == "" {
		return SyncPair{}, errors.MissingFieldError{Field: "remoteRoot"}
	}

	localRoot, err := homedirExpand(pair.LocalRoot)
	if err != nil {
		return SyncPair{}, errors.WithContext(err, "expand local root")
	}
	pair.LocalRoot = filepath.Clean(localRoot)

	if pair.LocalTrash != "" {
		localTrash, err := homedirExpand(pair.LocalTrash)
		if err != nil {
			return SyncPair{}, errors.WithContext(err, "expand local trash")
		}
		pair.LocalTrash = filepath.Clean(localTrash)
	}

	mode, err := ParseMode(string(pair.Mode))
	if err != nil {
		return SyncPair{}, err
	}
	pair.Mode = mode
	return pair, nil
}

// UpsertPair validates the pair and adds it, replacing any existing pair
// with the same name.
func (s *Settings) UpsertPair(pair SyncPair) error {
	pair, err := cleanPair(pair)
	if err != nil {
		return err
	}

	for i, existing := range s.Pairs {
		if existing.Name == pair.Name {
			s.Pairs[i] = pair
			return nil
		}
	}
	s.Pairs = append(s.Pairs, pair)
	return nil
}

// DeletePair removes the named pair, and returns whether it existed.
func (s *Settings) DeletePair(name string) bool {
	var kept []SyncPair
	for _, pair := range s.Pairs {
		if pair.Name != name {
			kept = append(kept, pair)
		}
	}
	deleted := len(kept) != len(s.Pairs)
	s.Pairs = kept
	return deleted
}

// GetPair returns the named pair.
func (s Settings) GetPair(name string) (SyncPair, bool) {
	for _, pair := range s.Pairs {
		if pair.Name == name {
			return pair, true
		}
	}
	return SyncPair{}, false
}
