package remote

import (
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func newHostKey(t *testing.T) ssh.PublicKey {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	key, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return key
}

func TestAcceptNewHostKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".ssh", "known_hosts")
	check, err := AcceptNewHostKey(path)
	require.NoError(t, err)

	addr := &net.TCPAddr{IP: net.ParseIP("10.211.55.3"), Port: 22}
	key := newHostKey(t)

	// The first connection records the key.
	assert.NoError(t, check("10.211.55.3:22", addr, key))
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "10.211.55.3 "+key.Type())

	// Later connections with the same key are accepted without another line.
	assert.NoError(t, check("10.211.55.3:22", addr, key))
	again, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, contents, again)

	// A changed key is rejected.
	assert.Error(t, check("10.211.55.3:22", addr, newHostKey(t)))

	// Other hosts are still trusted on first use.
	other := &net.TCPAddr{IP: net.ParseIP("10.211.55.4"), Port: 22}
	assert.NoError(t, check("10.211.55.4:22", other, newHostKey(t)))
}
