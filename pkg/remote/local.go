package remote

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/sidkik/parasync/pkg/errors"
	"github.com/sidkik/parasync/pkg/peer"
)

// LocalTransport runs the peer's side of every operation on this machine
// with `sh`. It's used when the "remote" folder is reachable through a
// mounted share, and to exercise the remote scripts in tests.
type LocalTransport struct {
	// Home overrides $HOME for the commands, so that `~` resolves inside a
	// sandbox.
	Home string

	copier
}

// NewLocalTransport returns a transport that operates on the local
// filesystem.
func NewLocalTransport(home string) *LocalTransport {
	t := &LocalTransport{Home: home}
	t.copier = copier{sh: t, fs: afero.NewOsFs()}
	return t
}

// Run implements Transport.
func (t *LocalTransport) Run(ctx context.Context, host peer.RemoteHost, command string) (Result, error) {
	return t.exec(ctx, host, command, nil, nil)
}

// Copy implements Transport.
func (t *LocalTransport) Copy(ctx context.Context, host peer.RemoteHost, dir Direction,
	localPath, remotePath string, recursive bool) (int64, error) {
	return t.copy(ctx, host, dir, localPath, t.expand(remotePath), recursive)
}

// expand resolves `~` before the path reaches afero, which doesn't know
// about the shell's home directory.
func (t *LocalTransport) expand(p string) string {
	if t.Home == "" {
		return p
	}
	if p == "~" {
		return t.Home
	}
	if strings.HasPrefix(p, "~/") {
		return t.Home + p[1:]
	}
	return p
}

func (t *LocalTransport) exec(ctx context.Context, host peer.RemoteHost, command string,
	stdin io.Reader, stdout io.Writer) (Result, error) {

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.WaitDelay = time.Second
	if t.Home != "" {
		cmd.Env = append(os.Environ(), "HOME="+t.Home)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdin = stdin
	cmd.Stderr = &stderrBuf
	if stdout != nil {
		cmd.Stdout = stdout
	} else {
		cmd.Stdout = &stdoutBuf
	}

	err := cmd.Run()
	res := Result{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String()}
	if exitErr, ok := err.(*exec.ExitError); ok && ctx.Err() == nil {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return res, errors.TransportError{Op: "run", Host: host.Addr(), Err: err}
	}
	return res, nil
}
