package remote

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/parasync/pkg/errors"
	"github.com/sidkik/parasync/pkg/peer"
)

// shell runs a command on the peer, streaming stdin and stdout.
type shell interface {
	exec(ctx context.Context, host peer.RemoteHost, command string,
		stdin io.Reader, stdout io.Writer) (Result, error)
}

// copier implements Copy on top of a shell, so that every transport shares
// the same file transfer logic.
type copier struct {
	sh shell
	fs afero.Fs
}

func (c copier) copy(ctx context.Context, host peer.RemoteHost, dir Direction,
	localPath, remotePath string, recursive bool) (int64, error) {

	if dir == ToRemote {
		return c.push(ctx, host, localPath, remotePath, recursive)
	}
	return c.pull(ctx, host, localPath, remotePath, recursive)
}

func (c copier) push(ctx context.Context, host peer.RemoteHost,
	localPath, remotePath string, recursive bool) (int64, error) {

	fi, err := c.fs.Stat(localPath)
	if err != nil {
		return 0, errors.WithContext(err, "stat local")
	}

	if !fi.IsDir() {
		return c.pushFile(ctx, host, localPath, remotePath, fi)
	}

	if _, err := c.run(ctx, host, "mkdir", MkdirCommand(remotePath)); err != nil {
		return 0, err
	}
	if !recursive {
		return 0, nil
	}

	var total int64
	err = afero.Walk(c.fs, localPath, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == localPath {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(localPath, p)
		if err != nil {
			return errors.WithContext(err, "relative path")
		}
		dst := path.Join(remotePath, filepath.ToSlash(rel))

		if fi.IsDir() {
			_, err := c.run(ctx, host, "mkdir", MkdirCommand(dst))
			return err
		}
		if !fi.Mode().IsRegular() {
			log.WithField("path", p).Debug("Skipping irregular file")
			return nil
		}

		n, err := c.pushFile(ctx, host, p, dst, fi)
		total += n
		return err
	})
	return total, err
}

func (c copier) pushFile(ctx context.Context, host peer.RemoteHost,
	localPath, remotePath string, fi os.FileInfo) (int64, error) {

	f, err := c.fs.Open(localPath)
	if err != nil {
		return 0, errors.WithContext(err, "open local")
	}
	defer f.Close()

	counter := &countingReader{r: f}
	res, err := c.sh.exec(ctx, host, ReceiveCommand(remotePath, fi.ModTime()), counter, io.Discard)
	if err != nil {
		return counter.n, err
	}
	if res.ExitCode != 0 {
		return counter.n, errors.TransportError{
			Op:       "write " + remotePath,
			Host:     host.Addr(),
			ExitCode: res.ExitCode,
			Stderr:   trimStderr(res.Stderr),
		}
	}
	return counter.n, nil
}

func (c copier) pull(ctx context.Context, host peer.RemoteHost,
	localPath, remotePath string, recursive bool) (int64, error) {

	res, err := c.run(ctx, host, "stat", StatCommand(remotePath))
	if err != nil {
		return 0, err
	}

	entries, err := ParseListing(res.Stdout)
	if err != nil || len(entries) != 1 {
		return 0, errors.TransportError{
			Op:   "stat " + remotePath,
			Host: host.Addr(),
			Err:  errors.New("unexpected stat output %q", res.Stdout),
		}
	}

	if !entries[0].IsDir {
		return c.pullFile(ctx, host, localPath, remotePath, entries[0])
	}

	if err := c.fs.MkdirAll(localPath, 0755); err != nil {
		return 0, errors.WithContext(err, "create local directory")
	}
	if !recursive {
		return 0, nil
	}

	res, err = c.run(ctx, host, "list", ListCommand(remotePath))
	if err != nil {
		return 0, err
	}

	entries, err = ParseListing(res.Stdout)
	if err != nil {
		return 0, errors.WithContext(err, "parse listing")
	}

	var total int64
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		dst := filepath.Join(localPath, filepath.FromSlash(entry.Path))
		if entry.IsDir {
			if err := c.fs.MkdirAll(dst, 0755); err != nil {
				return total, errors.WithContext(err, "create local directory")
			}
			continue
		}

		n, err := c.pullFile(ctx, host, dst, path.Join(remotePath, entry.Path), entry)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// pullFile downloads into a temporary file next to the destination, and
// renames it into place once the download is complete, so that a failed
// transfer never leaves a truncated file behind.
func (c copier) pullFile(ctx context.Context, host peer.RemoteHost,
	localPath, remotePath string, entry Entry) (int64, error) {

	if err := c.fs.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return 0, errors.WithContext(err, "create local parent")
	}

	tmpPath := filepath.Join(filepath.Dir(localPath), ".parasync-"+filepath.Base(localPath)+".tmp")
	f, err := c.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, errors.WithContext(err, "create local")
	}

	cleanup := func() {
		if err := c.fs.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			log.WithError(err).WithField("path", tmpPath).Warn("Failed to remove partial download")
		}
	}

	counter := &countingWriter{w: f}
	res, err := c.sh.exec(ctx, host, SendCommand(remotePath), nil, counter)
	closeErr := f.Close()
	switch {
	case err != nil:
		cleanup()
		return counter.n, err
	case res.ExitCode != 0:
		cleanup()
		return counter.n, errors.TransportError{
			Op:       "read " + remotePath,
			Host:     host.Addr(),
			ExitCode: res.ExitCode,
			Stderr:   trimStderr(res.Stderr),
		}
	case closeErr != nil:
		cleanup()
		return counter.n, errors.WithContext(closeErr, "close local")
	}

	if err := c.fs.Chtimes(tmpPath, entry.ModTime, entry.ModTime); err != nil {
		cleanup()
		return counter.n, errors.WithContext(err, "set modification time")
	}

	if err := c.fs.Rename(tmpPath, localPath); err != nil {
		cleanup()
		return counter.n, errors.WithContext(err, "rename into place")
	}
	return counter.n, nil
}

func (c copier) run(ctx context.Context, host peer.RemoteHost, op, command string) (Result, error) {
	res, err := c.sh.exec(ctx, host, command, nil, nil)
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

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
