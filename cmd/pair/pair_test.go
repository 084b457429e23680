package pair

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/parasync/pkg/config"
)

func mockSettings(settings *config.Settings) {
	loadSettings = func() (config.Settings, error) { return *settings, nil }
	saveSettings = func(s config.Settings) error {
		*settings = s
		return nil
	}
}

func TestPairCommands(t *testing.T) {
	var out bytes.Buffer
	stdout = &out

	var settings config.Settings
	mockSettings(&settings)

	require.NoError(t, addPair(config.SyncPair{
		Name:       "docs",
		LocalRoot:  "/Users/alice/docs/",
		RemoteRoot: "~/docs",
		Mode:       "push",
	}))
	assert.Equal(t, []config.SyncPair{{
		Name:       "docs",
		LocalRoot:  "/Users/alice/docs",
		RemoteRoot: "~/docs",
		Mode:       config.PushMirror,
	}}, settings.Pairs)

	out.Reset()
	require.NoError(t, listPairs())
	assert.Equal(t, "NAME  MODE         LOCAL              REMOTE\n"+
		"docs  push-mirror  /Users/alice/docs  ~/docs\n", out.String())

	assert.EqualError(t, addPair(config.SyncPair{Name: "bad", LocalRoot: "/tmp"}),
		"Invalid pair: missing required field: remoteRoot")

	require.NoError(t, deletePair("docs"))
	assert.Empty(t, settings.Pairs)
	assert.EqualError(t, deletePair("docs"), `No pair named "docs".`)

	out.Reset()
	require.NoError(t, listPairs())
	assert.Equal(t, "No pairs.\n", out.String())
}
