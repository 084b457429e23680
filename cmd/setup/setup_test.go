package setup

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/parasync/pkg/credentials"
	"github.com/sidkik/parasync/pkg/errors"
	"github.com/sidkik/parasync/pkg/peer"
	"github.com/sidkik/parasync/pkg/remote"
)

// localConnector logs into a sandboxed home directory. Password logins only
// succeed with `password`, and key logins only once the key is authorized.
type localConnector struct {
	home     string
	password string
}

func (c localConnector) WithPassword(password string) remote.Transport {
	if password != c.password {
		return rejectingTransport{}
	}
	return remote.NewLocalTransport(c.home)
}

func (c localConnector) WithKey(kp credentials.KeyPair) (remote.Transport, error) {
	pub, err := os.ReadFile(kp.PublicKeyPath)
	if err != nil {
		return nil, err
	}
	authorized, _ := os.ReadFile(filepath.Join(c.home, ".ssh", "authorized_keys"))
	if !strings.Contains(string(authorized), strings.TrimSpace(string(pub))) {
		return rejectingTransport{}, nil
	}
	return remote.NewLocalTransport(c.home), nil
}

type rejectingTransport struct{}

func (rejectingTransport) Run(_ context.Context, host peer.RemoteHost, _ string) (remote.Result, error) {
	return remote.Result{}, errors.AuthenticationError{Host: host.Addr(), User: "alice"}
}

func (rejectingTransport) Copy(_ context.Context, host peer.RemoteHost, _ remote.Direction,
	_, _ string, _ bool) (int64, error) {
	return 0, errors.AuthenticationError{Host: host.Addr(), User: "alice"}
}

func TestInstall(t *testing.T) {
	home := t.TempDir()
	keys := credentials.NewStore(filepath.Join(t.TempDir(), "id_ed25519_parasync"))
	connector := localConnector{home: home, password: "hunter2"}
	host := peer.RemoteHost{Address: "10.211.55.4", Port: 22}

	var out bytes.Buffer
	stdout = &out
	prompts := 0
	readPassword = func() (string, error) {
		prompts++
		return "hunter2", nil
	}

	require.NoError(t, install(context.Background(), keys, connector, host, "alice"))
	assert.Equal(t, 1, prompts)
	assert.Contains(t, out.String(), "Password for alice@10.211.55.4: ")
	assert.Contains(t, out.String(), "Passwordless login is ready.")

	// Once the key works, the password isn't asked for again.
	out.Reset()
	require.NoError(t, install(context.Background(), keys, connector, host, "alice"))
	assert.Equal(t, 1, prompts)
	assert.Equal(t, "Passwordless login to alice@10.211.55.4 already works.\n", out.String())
}

func TestInstallWrongPassword(t *testing.T) {
	keys := credentials.NewStore(filepath.Join(t.TempDir(), "id_ed25519_parasync"))
	connector := localConnector{home: t.TempDir(), password: "hunter2"}
	host := peer.RemoteHost{Address: "10.211.55.4", Port: 22}

	stdout = &bytes.Buffer{}
	readPassword = func() (string, error) { return "wrong", nil }

	err := install(context.Background(), keys, connector, host, "alice")
	assert.EqualError(t, err, "The peer rejected the password for alice@10.211.55.4.")
}
