// Package remote is the only part of parasync that talks to the peer. It runs
// shell commands on the peer and copies files and directory trees in either
// direction.
//
// Operations never retry on their own. A failed operation can always be
// retried by the caller.
package remote

//go:generate mockery -name Transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/sidkik/parasync/pkg/errors"
	"github.com/sidkik/parasync/pkg/peer"
)

// Direction is the direction of a copy.
type Direction int

const (
	// ToRemote copies from the local machine to the peer.
	ToRemote Direction = iota

	// FromRemote copies from the peer to the local machine.
	FromRemote
)

func (d Direction) String() string {
	if d == ToRemote {
		return "push"
	}
	return "pull"
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Transport runs commands on, and copies files to and from, the peer.
type Transport interface {
	// Run executes `command` with the peer's shell. A non-zero exit code is
	// not an error; the error is only set if the command couldn't be run.
	Run(ctx context.Context, host peer.RemoteHost, command string) (Result, error)

	// Copy copies `localPath` to `remotePath` or vice versa. Missing parent
	// directories on the destination are created. If `recursive` is set
	// and the source is a directory, its whole tree is copied.
	Copy(ctx context.Context, host peer.RemoteHost, dir Direction,
		localPath, remotePath string, recursive bool) (int64, error)
}

// RunChecked runs the command and returns a TransportError if it exits with
// a non-zero status.
func RunChecked(ctx context.Context, t Transport, host peer.RemoteHost,
	op, command string) (Result, error) {

	res, err := t.Run(ctx, host, command)
	if err != nil {
		return res, err
	}

	if res.ExitCode != 0 {
		return res, errors.TransportError{
			Op:       op,
			Host:     host.Addr(),
			ExitCode: res.ExitCode,
			Stderr:   trimStderr(res.Stderr),
		}
	}
	return res, nil
}

func trimStderr(stderr string) string {
	const max = 512
	if len(stderr) > max {
		return fmt.Sprintf("%s... (%d bytes truncated)", stderr[:max], len(stderr)-max)
	}
	return stderr
}

// TestConnection checks that the peer accepts our credentials and can run
// commands.
func TestConnection(ctx context.Context, t Transport, host peer.RemoteHost) error {
	res, err := RunChecked(ctx, t, host, "test connection", "echo SSH_OK")
	if err != nil {
		return err
	}
	if strings.TrimSpace(res.Stdout) != "SSH_OK" {
		return errors.TransportError{
			Op:   "test connection",
			Host: host.Addr(),
			Err:  errors.New("unexpected output %q", res.Stdout),
		}
	}
	return nil
}
