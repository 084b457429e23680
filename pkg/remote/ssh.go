package remote

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"

	"github.com/sidkik/parasync/pkg/errors"
	"github.com/sidkik/parasync/pkg/peer"
)

// DefaultDialTimeout bounds establishing the TCP connection and the SSH
// handshake.
const DefaultDialTimeout = 10 * time.Second

// SSHConfig configures how SSHTransport authenticates.
type SSHConfig struct {
	User            string
	Auth            []ssh.AuthMethod
	HostKeyCallback ssh.HostKeyCallback
	DialTimeout     time.Duration
}

// SSHTransport runs commands over SSH sessions. One connection is kept open
// per host, and is dropped as soon as it fails so that the next call
// reconnects.
type SSHTransport struct {
	config SSHConfig

	clientsLock sync.Mutex
	clients     map[string]*ssh.Client

	copier
}

// NewSSHTransport returns a new SSHTransport.
func NewSSHTransport(config SSHConfig) *SSHTransport {
	if config.DialTimeout == 0 {
		config.DialTimeout = DefaultDialTimeout
	}

	t := &SSHTransport{config: config, clients: map[string]*ssh.Client{}}
	t.copier = copier{sh: t, fs: afero.NewOsFs()}
	return t
}

// Run implements Transport.
func (t *SSHTransport) Run(ctx context.Context, host peer.RemoteHost, command string) (Result, error) {
	return t.exec(ctx, host, command, nil, nil)
}

// Copy implements Transport.
func (t *SSHTransport) Copy(ctx context.Context, host peer.RemoteHost, dir Direction,
	localPath, remotePath string, recursive bool) (int64, error) {
	return t.copy(ctx, host, dir, localPath, remotePath, recursive)
}

// Close closes all open connections.
func (t *SSHTransport) Close() error {
	t.clientsLock.Lock()
	defer t.clientsLock.Unlock()

	var firstErr error
	for addr, client := range t.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(t.clients, addr)
	}
	return firstErr
}

func (t *SSHTransport) exec(ctx context.Context, host peer.RemoteHost, command string,
	stdin io.Reader, stdout io.Writer) (Result, error) {

	client, err := t.client(ctx, host)
	if err != nil {
		return Result{}, err
	}

	session, err := client.NewSession()
	if err != nil {
		t.forget(host, client)
		return Result{}, errors.TransportError{Op: "open session", Host: host.Addr(), Err: err}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdin = stdin
	session.Stderr = &stderrBuf
	if stdout != nil {
		session.Stdout = stdout
	} else {
		session.Stdout = &stdoutBuf
	}

	// Closing the session aborts the command if the context is cancelled.
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-finished:
		}
	}()

	err = session.Run(command)
	res := Result{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String()}
	if exitErr, ok := err.(*ssh.ExitError); ok {
		res.ExitCode = exitErr.ExitStatus()
		return res, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		} else {
			t.forget(host, client)
		}
		return res, errors.TransportError{Op: "run", Host: host.Addr(), Err: err}
	}
	return res, nil
}

func (t *SSHTransport) client(ctx context.Context, host peer.RemoteHost) (*ssh.Client, error) {
	t.clientsLock.Lock()
	defer t.clientsLock.Unlock()

	if client, ok := t.clients[host.Addr()]; ok {
		return client, nil
	}

	client, err := Dial(ctx, host, t.config)
	if err != nil {
		return nil, err
	}
	t.clients[host.Addr()] = client
	return client, nil
}

func (t *SSHTransport) forget(host peer.RemoteHost, client *ssh.Client) {
	t.clientsLock.Lock()
	defer t.clientsLock.Unlock()

	if t.clients[host.Addr()] == client {
		delete(t.clients, host.Addr())
	}
	if err := client.Close(); err != nil {
		log.WithError(err).WithField("host", host.Addr()).Debug("Failed to close SSH connection")
	}
}

// Dial opens an authenticated SSH connection to the host. Rejected
// credentials are reported as an AuthenticationError, and every other
// failure as a TransportError.
func Dial(ctx context.Context, host peer.RemoteHost, config SSHConfig) (*ssh.Client, error) {
	timeout := config.DialTimeout
	if timeout == 0 {
		timeout = DefaultDialTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", host.Addr())
	if err != nil {
		return nil, errors.TransportError{Op: "connect", Host: host.Addr(), Err: err}
	}

	// The SSH handshake doesn't take a context, so bound it with a deadline.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	hostKeyCallback := config.HostKeyCallback
	if hostKeyCallback == nil {
		return nil, errors.New("no host key callback configured")
	}

	clientConfig := &ssh.ClientConfig{
		User:            config.User,
		Auth:            config.Auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, host.Addr(), clientConfig)
	if err != nil {
		conn.Close()
		if isAuthError(err) {
			return nil, errors.AuthenticationError{Host: host.Addr(), User: config.User, Err: err}
		}
		return nil, errors.TransportError{Op: "handshake", Host: host.Addr(), Err: err}
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(c, chans, reqs), nil
}

func isAuthError(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

// Shell starts an interactive shell on the peer, attached to the given
// streams, and waits for it to exit. The local terminal should already be
// in raw mode.
func (t *SSHTransport) Shell(ctx context.Context, host peer.RemoteHost, term string,
	width, height int, stdin io.Reader, stdout, stderr io.Writer) error {

	client, err := t.client(ctx, host)
	if err != nil {
		return err
	}

	session, err := client.NewSession()
	if err != nil {
		t.forget(host, client)
		return errors.TransportError{Op: "open session", Host: host.Addr(), Err: err}
	}
	defer session.Close()

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(term, height, width, modes); err != nil {
		return errors.TransportError{Op: "request pty", Host: host.Addr(), Err: err}
	}

	session.Stdin, session.Stdout, session.Stderr = stdin, stdout, stderr
	if err := session.Shell(); err != nil {
		return errors.TransportError{Op: "start shell", Host: host.Addr(), Err: err}
	}

	err = session.Wait()
	if exitErr, ok := err.(*ssh.ExitError); ok {
		log.WithField("status", exitErr.ExitStatus()).Debug("Shell exited")
		return nil
	}
	if err != nil {
		return errors.TransportError{Op: "shell", Host: host.Addr(), Err: err}
	}
	return nil
}
