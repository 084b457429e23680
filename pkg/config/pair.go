package config

import (
	"fmt"
	"strings"
)

// Mode selects which sync algorithm is applied to a SyncPair.
type Mode string

const (
	// Merge copies missing files in both directions and never deletes.
	Merge Mode = "merge"

	// PushMirror makes the remote root an exact copy of the local root.
	PushMirror Mode = "push-mirror"

	// PullMirror makes the local root an exact copy of the remote root.
	PullMirror Mode = "pull-mirror"
)

// ParseMode converts the user-facing name of a mode into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Merge, "":
		return Merge, nil
	case PushMirror, "push":
		return PushMirror, nil
	case PullMirror, "pull":
		return PullMirror, nil
	}
	return "", fmt.Errorf("unknown sync mode %q (expected %s, %s or %s)",
		s, Merge, PushMirror, PullMirror)
}

// SyncPair is a local folder and the remote folder it's kept in sync with.
type SyncPair struct {
	Name       string `json:"name"`
	LocalRoot  string `json:"localRoot"`
	RemoteRoot string `json:"remoteRoot"`
	Mode       Mode   `json:"mode,omitempty"`

	// LocalTrash and RemoteTrash override where mirrored deletions are
	// moved to. Optional.
	LocalTrash  string `json:"localTrash,omitempty"`
	RemoteTrash string `json:"remoteTrash,omitempty"`
}

// Key identifies the pair for serialization purposes. Two pairs with the
// same roots are the same pair even if they're named differently.
func (p SyncPair) Key() string {
	return p.LocalRoot + "\x00" + p.RemoteRoot
}

func (p SyncPair) String() string {
	return fmt.Sprintf("%s (%s <-> %s, %s)", p.Name, p.LocalRoot, p.RemoteRoot, p.Mode)
}

// TrashRoots returns the directories that mirrored deletions are moved to on
// each side, falling back to the defaults.
func (p SyncPair) TrashRoots() (local, remote string, err error) {
	local = p.LocalTrash
	if local == "" {
		local, err = homedirExpand(DefaultLocalTrash)
		if err != nil {
			return "", "", err
		}
	}

	remote = p.RemoteTrash
	if remote == "" {
		remote = DefaultRemoteTrash
	}
	return local, remote, nil
}
