package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/parasync/pkg/errors"
)

func TestParse(t *testing.T) {
	out := "config.yaml"
	homedirExpand = func(path string) (string, error) {
		if len(path) > 1 && path[:2] == "~/" {
			return "/home/alice/" + path[2:], nil
		}
		return path, nil
	}

	tests := []struct {
		name      string
		input     string
		expConfig Settings
		expError  error
	}{
		{
			name: "EmptyVersionGetsDefaults",
			input: `
host:
  address: 10.211.55.2
user: alice
pairs:
- name: docs
  localRoot: ~/Documents/share
  remoteRoot: /Users/alice/share
`,
			expConfig: Settings{
				Version:      InitialSettingsVersion,
				Host:         Host{Address: "10.211.55.2", Port: DefaultPort},
				User:         "alice",
				IdentityFile: DefaultIdentityFile,
				Subnet:       DefaultSubnet,
				Pairs: []SyncPair{{
					Name:       "docs",
					LocalRoot:  "/home/alice/Documents/share",
					RemoteRoot: "/Users/alice/share",
					Mode:       Merge,
				}},
			},
		},
		{
			name: "CompatibleMinorVersion",
			input: `
version: "1.3"
subnet: 192.168.1
pairs:
- name: photos
  localRoot: /data/photos
  remoteRoot: photos
  mode: push
`,
			expConfig: Settings{
				Version:      "1.3",
				Host:         Host{Port: DefaultPort},
				IdentityFile: DefaultIdentityFile,
				Subnet:       "192.168.1",
				Pairs: []SyncPair{{
					Name:       "photos",
					LocalRoot:  "/data/photos",
					RemoteRoot: "photos",
					Mode:       PushMirror,
				}},
			},
		},
		{
			name:  "IncompatibleVersion",
			input: `version: "2.0"`,
			expError: errors.WithContext(unsupportedVersionError{
				path:       out,
				constraint: SupportedSettingsVersions,
				actual:     "2.0",
			}, "parse"),
		},
		{
			name: "UnknownMode",
			input: `
pairs:
- name: docs
  localRoot: /a
  remoteRoot: /b
  mode: sideways
`,
			expError: errors.WithContext(
				errors.New(`unknown sync mode "sideways" (expected merge, push-mirror or pull-mirror)`),
				"pair docs"),
		},
		{
			name: "MissingRemoteRoot",
			input: `
pairs:
- name: docs
  localRoot: /a
`,
			expError: errors.WithContext(errors.MissingFieldError{Field: "remoteRoot"}, "pair docs"),
		},
	}

	for _, test := range tests {
		fs = afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, out, []byte(test.input), 0600))

		settings, err := Parse(out)
		if test.expError != nil {
			assert.EqualError(t, err, test.expError.Error(), test.name)
			continue
		}
		assert.NoError(t, err, test.name)
		assert.Equal(t, test.expConfig, settings, test.name)
	}
}

func TestParseExtraFields(t *testing.T) {
	fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "config.yaml", []byte("extra: field\n"), 0600))

	_, err := Parse("config.yaml")
	var friendly errors.FriendlyError
	assert.True(t, errors.As(err, &friendly))
	assert.Contains(t, err.Error(), `unknown field "extra"`)
}

func TestParseMissingFileReturnsDefaults(t *testing.T) {
	fs = afero.NewMemMapFs()

	settings, err := Parse("/does/not/exist.yaml")
	assert.NoError(t, err)
	assert.Equal(t, Settings{
		Version:      CurrentSettingsVersion,
		Host:         Host{Port: DefaultPort},
		IdentityFile: DefaultIdentityFile,
		Subnet:       DefaultSubnet,
	}, settings)
}

func TestParseWrittenSettings(t *testing.T) {
	fs = afero.NewMemMapFs()
	homedirExpand = func(path string) (string, error) { return path, nil }

	settings := Settings{
		Host:         Host{Address: "10.211.55.4", Port: 2222},
		User:         "bob",
		IdentityFile: "/keys/id",
		Subnet:       "10.211.55",
		Pairs: []SyncPair{
			{Name: "a", LocalRoot: "/l", RemoteRoot: "/r", Mode: PullMirror, RemoteTrash: "/t"},
		},
	}

	path := "/home/bob/.parasync/config.yaml"
	assert.NoError(t, Write(path, settings))

	fi, err := fs.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, "-rw-------", fi.Mode().String())

	parsed, err := Parse(path)
	assert.NoError(t, err)

	settings.Version = CurrentSettingsVersion
	assert.Equal(t, settings, parsed)
}

func TestPairManagement(t *testing.T) {
	homedirExpand = func(path string) (string, error) { return path, nil }

	var settings Settings
	assert.NoError(t, settings.UpsertPair(SyncPair{Name: "a", LocalRoot: "/1", RemoteRoot: "~/a"}))
	assert.NoError(t, settings.UpsertPair(SyncPair{Name: "b", LocalRoot: "/2", RemoteRoot: "~/b"}))
	assert.NoError(t, settings.UpsertPair(SyncPair{Name: "a", LocalRoot: "/3/", RemoteRoot: "~/a"}))
	assert.Equal(t, errors.MissingFieldError{Field: "remoteRoot"},
		settings.UpsertPair(SyncPair{Name: "c", LocalRoot: "/4"}))
	assert.Error(t, settings.UpsertPair(SyncPair{Name: "c", LocalRoot: "/4", RemoteRoot: "~/c", Mode: "both"}))

	pair, ok := settings.GetPair("a")
	assert.True(t, ok)
	assert.Equal(t, "/3", pair.LocalRoot)
	assert.Len(t, settings.Pairs, 2)

	assert.True(t, settings.DeletePair("a"))
	assert.False(t, settings.DeletePair("a"))

	_, ok = settings.GetPair("a")
	assert.False(t, ok)
	assert.Equal(t, []SyncPair{{Name: "b", LocalRoot: "/2", RemoteRoot: "~/b", Mode: Merge}}, settings.Pairs)
}

func TestParseMode(t *testing.T) {
	for input, exp := range map[string]Mode{
		"":            Merge,
		"merge":       Merge,
		"Push-Mirror": PushMirror,
		"push":        PushMirror,
		"pull":        PullMirror,
		"pull-mirror": PullMirror,
	} {
		mode, err := ParseMode(input)
		assert.NoError(t, err, input)
		assert.Equal(t, exp, mode, input)
	}

	_, err := ParseMode("both")
	assert.Error(t, err)
}

func TestTrashRoots(t *testing.T) {
	homedirExpand = func(path string) (string, error) {
		return "/home/alice" + path[1:], nil
	}

	local, remote, err := SyncPair{Name: "a"}.TrashRoots()
	assert.NoError(t, err)
	assert.Equal(t, "/home/alice/.parasync_trash", local)
	assert.Equal(t, "~/.Trash/parasync", remote)

	local, remote, err = SyncPair{LocalTrash: "/trash", RemoteTrash: "/srv/trash"}.TrashRoots()
	assert.NoError(t, err)
	assert.Equal(t, "/trash", local)
	assert.Equal(t, "/srv/trash", remote)
}

func TestSatisfies(t *testing.T) {
	tests := []struct {
		version string
		exp     bool
	}{
		{"1.0", true},
		{"1.7", true},
		{"0.9", false},
		{"2.0", false},
		{"", false},
		{"latest", false},
	}

	for _, test := range tests {
		assert.Equal(t, test.exp, satisfies(SupportedSettingsVersions, test.version), test.version)
	}
}
