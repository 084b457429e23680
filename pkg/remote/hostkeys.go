package remote

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/sidkik/parasync/pkg/errors"
)

// AcceptNewHostKey returns a callback that trusts hosts the first time they
// are seen, and records their key in `knownHostsPath`. Hosts whose key has
// changed since it was recorded are rejected.
func AcceptNewHostKey(knownHostsPath string) (ssh.HostKeyCallback, error) {
	if err := os.MkdirAll(filepath.Dir(knownHostsPath), 0700); err != nil {
		return nil, errors.WithContext(err, "create known hosts directory")
	}

	f, err := os.OpenFile(knownHostsPath, os.O_CREATE|os.O_RDONLY, 0600)
	if err != nil {
		return nil, errors.WithContext(err, "open known hosts")
	}
	f.Close()

	var lock sync.Mutex
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		lock.Lock()
		defer lock.Unlock()

		// Re-read the file on each call so that keys recorded by an earlier
		// connection are honored.
		check, err := knownhosts.New(knownHostsPath)
		if err != nil {
			return errors.WithContext(err, "parse known hosts")
		}

		err = check(hostname, remote, key)
		keyErr, ok := err.(*knownhosts.KeyError)
		if !ok || len(keyErr.Want) != 0 {
			// Either the key matched, or it changed since it was recorded.
			return err
		}

		line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
		out, err := os.OpenFile(knownHostsPath, os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return errors.WithContext(err, "open known hosts")
		}
		defer out.Close()

		if _, err := fmt.Fprintln(out, line); err != nil {
			return errors.WithContext(err, "record host key")
		}

		log.WithField("host", hostname).
			WithField("fingerprint", ssh.FingerprintSHA256(key)).
			Info("Trusting new host key")
		return nil
	}, nil
}
