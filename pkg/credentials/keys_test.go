package credentials

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/sidkik/parasync/pkg/errors"
)

const keyPath = "/home/alice/.ssh/id_ed25519_parasync"

func TestEnsureKeyPair(t *testing.T) {
	fs = afero.NewMemMapFs()
	store := NewStore(keyPath)

	kp, err := store.EnsureKeyPair()
	require.NoError(t, err)
	assert.Equal(t, KeyPair{
		PrivateKeyPath: keyPath,
		PublicKeyPath:  keyPath + ".pub",
	}, kp)

	for _, path := range []string{kp.PrivateKeyPath, kp.PublicKeyPath} {
		fi, err := fs.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, "-rw-------", fi.Mode().String(), path)
	}

	fi, err := fs.Stat("/home/alice/.ssh")
	require.NoError(t, err)
	assert.Equal(t, "drwx------", fi.Mode().String())

	line, err := store.AuthorizedKey()
	require.NoError(t, err)
	pub, comment, _, _, err := ssh.ParseAuthorizedKey([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, "parasync", comment)
	assert.Equal(t, ssh.KeyAlgoED25519, pub.Type())

	signer, err := store.Signer()
	require.NoError(t, err)
	assert.Equal(t, pub.Marshal(), signer.PublicKey().Marshal())

	privBefore, err := afero.ReadFile(fs, kp.PrivateKeyPath)
	require.NoError(t, err)

	// A second call leaves the existing pair untouched.
	again, err := store.EnsureKeyPair()
	require.NoError(t, err)
	assert.Equal(t, kp, again)

	privAfter, err := afero.ReadFile(fs, kp.PrivateKeyPath)
	require.NoError(t, err)
	assert.Equal(t, privBefore, privAfter)

	lineAfter, err := store.AuthorizedKey()
	require.NoError(t, err)
	assert.Equal(t, line, lineAfter)
}

func TestEnsureKeyPairRestoresPublicKey(t *testing.T) {
	fs = afero.NewMemMapFs()
	store := NewStore(keyPath)

	kp, err := store.EnsureKeyPair()
	require.NoError(t, err)
	line, err := store.AuthorizedKey()
	require.NoError(t, err)

	require.NoError(t, fs.Remove(kp.PublicKeyPath))
	_, err = store.EnsureKeyPair()
	require.NoError(t, err)

	restored, err := store.AuthorizedKey()
	require.NoError(t, err)
	assert.Equal(t, line, restored)
}

func TestEnsureKeyPairWriteFailure(t *testing.T) {
	fs = afero.NewReadOnlyFs(afero.NewMemMapFs())
	_, err := NewStore(keyPath).EnsureKeyPair()

	var ioErr errors.IOError
	assert.True(t, errors.As(err, &ioErr))
}

func TestSignerMissingKey(t *testing.T) {
	fs = afero.NewMemMapFs()
	_, err := NewStore(keyPath).Signer()
	assert.Equal(t, errors.FileNotFound{Path: keyPath}, err)
}
