package sync

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	goSync "sync"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/parasync/pkg/config"
	"github.com/sidkik/parasync/pkg/errors"
	"github.com/sidkik/parasync/pkg/peer"
	"github.com/sidkik/parasync/pkg/remote"
	"github.com/sidkik/parasync/pkg/tree"
)

// TrashRunFormat names the folder that a single apply trashes into.
const TrashRunFormat = "20060102T150405Z"

// Journal records the outcome of every apply.
type Journal interface {
	RecordSync(ctx context.Context, pair config.SyncPair, report SyncReport) error
}

// Prober checks whether the peer is still reachable.
type Prober interface {
	Probe(ctx context.Context, host peer.RemoteHost) peer.RemoteHost
}

// Syncer previews and applies syncs against a single peer.
type Syncer struct {
	Host      peer.RemoteHost
	Transport remote.Transport

	// Fs is the local filesystem. The transport is expected to operate on
	// the same filesystem.
	Fs    afero.Fs
	Clock clockwork.Clock

	// Prober and Journal are optional.
	Prober  Prober
	Journal Journal

	locksMu goSync.Mutex
	locks   map[string]chan struct{}
}

// New returns a Syncer that talks to `host` through `transport`.
func New(host peer.RemoteHost, transport remote.Transport) *Syncer {
	return &Syncer{
		Host:      host,
		Transport: transport,
		Fs:        afero.NewOsFs(),
		Clock:     clockwork.NewRealClock(),
	}
}

func (s *Syncer) indexer() tree.Indexer {
	return tree.Indexer{
		Fs:        s.Fs,
		Transport: s.Transport,
		Host:      s.Host,
		Clock:     s.Clock,
	}
}

// Preview indexes both sides of the pair and diffs them. Neither side is
// modified.
func (s *Syncer) Preview(ctx context.Context, pair config.SyncPair) (tree.DiffResult, error) {
	idx := s.indexer()
	local, err := idx.IndexLocal(pair.LocalRoot)
	if err != nil {
		return tree.DiffResult{}, errors.WithContext(err, "index local")
	}

	remoteSnapshot, err := idx.IndexRemote(ctx, pair.RemoteRoot)
	if err != nil {
		return tree.DiffResult{}, errors.WithContext(err, "index remote")
	}

	return tree.Diff(local, remoteSnapshot), nil
}

// Apply executes the diff according to the pair's mode. `diff` must have
// been returned by Preview for the same pair, and `confirmed` must be set
// once the caller has reviewed it.
//
// Only one apply runs at a time for each pair. The returned error is only
// set if the apply couldn't start, or was cancelled. Failures of individual
// operations are recorded in the report.
func (s *Syncer) Apply(ctx context.Context, pair config.SyncPair, diff tree.DiffResult,
	confirmed bool) (SyncReport, error) {

	if !confirmed {
		return SyncReport{}, errors.PreconditionError{
			Reason: fmt.Sprintf("sync of %q was not confirmed", pair.Name)}
	}
	if diff.LocalRoot != pair.LocalRoot || diff.RemoteRoot != pair.RemoteRoot {
		return SyncReport{}, errors.PreconditionError{
			Reason: fmt.Sprintf("diff of %s <-> %s doesn't belong to pair %q",
				diff.LocalRoot, diff.RemoteRoot, pair.Name)}
	}

	unlock, err := s.lock(ctx, pair)
	if err != nil {
		return SyncReport{}, err
	}
	defer unlock()

	if s.Prober != nil {
		if host := s.Prober.Probe(ctx, s.Host); !host.Reachable {
			return SyncReport{}, errors.TransportError{
				Op:   "connect",
				Host: s.Host.Addr(),
				Err:  errors.New("host is unreachable"),
			}
		}
	}

	localTrash, remoteTrash, err := pair.TrashRoots()
	if err != nil {
		return SyncReport{}, errors.WithContext(err, "trash location")
	}

	startedAt := s.Clock.Now().UTC()
	run := &applyRun{
		Syncer:      s,
		pair:        pair,
		runDir:      startedAt.Format(TrashRunFormat),
		localTrash:  localTrash,
		remoteTrash: remoteTrash,
		trashed:     map[string]string{},
		trashFailed: map[string]bool{},
		report: SyncReport{
			Pair:      pair.Name,
			Mode:      pair.Mode,
			StartedAt: startedAt,
		},
	}

	p := newPlan(pair.Mode, diff)
	run.report.Conflicts = p.conflicts
	run.report.Failed = append(run.report.Failed, p.skipped...)
	for _, conflict := range p.conflicts {
		log.WithField("pair", pair.Name).WithField("path", conflict).
			Warn("Modified on both sides at the same time. Keeping the local copy.")
	}

	applyErr := run.apply(ctx, p.ops)
	report := run.report
	report.FinishedAt = s.Clock.Now().UTC()

	if !p.empty() {
		log.WithField("pair", pair.Name).Infof("Copied %d files, trashed %d.",
			len(report.Copied), len(report.Trashed))
	}

	if s.Journal != nil {
		// The journal is written even if the apply was cancelled.
		if err := s.Journal.RecordSync(context.Background(), pair, report); err != nil {
			log.WithError(err).WithField("pair", pair.Name).Warn("Failed to record sync")
		}
	}
	return report, applyErr
}

// Sync previews the pair, and immediately applies the result. It's used by
// callers that have already been authorized to sync without review, such as
// the watch scheduler.
func (s *Syncer) Sync(ctx context.Context, pair config.SyncPair) (SyncReport, error) {
	diff, err := s.Preview(ctx, pair)
	if err != nil {
		return SyncReport{}, err
	}
	return s.Apply(ctx, pair, diff, true)
}

// ListRemote returns the top level entries of the pair's remote root. A root
// that doesn't exist yet has no entries.
func (s *Syncer) ListRemote(ctx context.Context, pair config.SyncPair) ([]tree.FileEntry, error) {
	snapshot, err := s.indexer().IndexRemote(ctx, pair.RemoteRoot)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var entries []tree.FileEntry
	for _, entry := range snapshot.Entries() {
		name := strings.SplitN(entry.RelativePath, "/", 2)[0]
		if seen[name] {
			continue
		}
		seen[name] = true

		if name != entry.RelativePath {
			entry = tree.FileEntry{RelativePath: name, IsDirectory: true}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// lock blocks until no other apply is running for the pair.
func (s *Syncer) lock(ctx context.Context, pair config.SyncPair) (func(), error) {
	s.locksMu.Lock()
	if s.locks == nil {
		s.locks = map[string]chan struct{}{}
	}
	sem, ok := s.locks[pair.Key()]
	if !ok {
		sem = make(chan struct{}, 1)
		s.locks[pair.Key()] = sem
	}
	s.locksMu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// applyRun is the state of a single apply.
type applyRun struct {
	*Syncer

	pair                    config.SyncPair
	runDir                  string
	localTrash, remoteTrash string

	// trashed maps directories trashed during this run to where they were
	// moved, so that entries beneath them aren't moved twice.
	trashed map[string]string

	// trashFailed holds the paths that couldn't be moved to the trash. They
	// must not be overwritten.
	trashFailed map[string]bool

	report SyncReport
}

func (r *applyRun) apply(ctx context.Context, ops []operation) error {
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			r.report.Cancelled = true
			log.WithField("pair", r.pair.Name).WithField("remaining", len(ops)-i).
				Warn("Sync cancelled")
			return err
		}

		var err error
		switch op.kind {
		case opTrash:
			if err = r.trash(ctx, op); err != nil {
				r.trashFailed[op.side.String()+":"+op.path] = true
			}
		case opCopy:
			err = r.copy(ctx, op)
		}
		if err != nil {
			log.WithError(err).WithField("path", op.path).Warn("Failed to sync file")
			r.report.fail(op.path, err)
		}
	}
	return nil
}

func (r *applyRun) copy(ctx context.Context, op operation) error {
	dst := tree.Remote
	if op.direction == remote.FromRemote {
		dst = tree.Local
	}
	if r.trashFailed[dst.String()+":"+op.path] {
		return errors.New("not overwritten: trash failed")
	}

	localPath := filepath.Join(r.pair.LocalRoot, filepath.FromSlash(op.path))
	remotePath := path.Join(r.pair.RemoteRoot, op.path)

	n, err := r.Transport.Copy(ctx, r.Host, op.direction, localPath, remotePath, false)
	r.report.BytesTransferred += n
	if err != nil {
		return errors.WithContext(err, op.direction.String())
	}

	if !op.isDir {
		r.report.Copied = append(r.report.Copied, op.path)
	}
	log.WithField("path", op.path).WithField("direction", op.direction).Debug("Copied")
	return nil
}

func (r *applyRun) trash(ctx context.Context, op operation) error {
	trashedAt := r.Clock.Now().UTC()
	trashedPath, ok := r.trashedAncestor(op.side, op.path)
	if !ok {
		var err error
		if op.side == tree.Remote {
			trashedPath, err = r.trashRemote(ctx, op.path)
		} else {
			trashedPath, err = r.trashLocal(op.path)
		}
		if err != nil {
			return errors.WithContext(err, "trash "+op.side.String())
		}
		r.trashed[op.side.String()+":"+op.path] = trashedPath
	}

	r.report.Trashed = append(r.report.Trashed, op.path)
	r.report.TrashRecords = append(r.report.TrashRecords, TrashRecord{
		OriginalRelativePath: op.path,
		TrashedPath:          trashedPath,
		TrashedAt:            trashedAt,
		Side:                 op.side,
	})
	log.WithField("path", op.path).WithField("side", op.side).
		WithField("trashedPath", trashedPath).Debug("Trashed")
	return nil
}

// trashedAncestor returns where `p` ended up if one of its parents was
// already moved to the trash during this run.
func (r *applyRun) trashedAncestor(side tree.Side, p string) (string, bool) {
	for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
		trashedDir, ok := r.trashed[side.String()+":"+dir]
		if !ok {
			continue
		}

		rel := strings.TrimPrefix(p, dir+"/")
		if side == tree.Remote {
			return path.Join(trashedDir, rel), true
		}
		return filepath.Join(trashedDir, filepath.FromSlash(rel)), true
	}
	return "", false
}

func (r *applyRun) trashRemote(ctx context.Context, p string) (string, error) {
	src := path.Join(r.pair.RemoteRoot, p)
	dst := path.Join(r.remoteTrash, r.runDir, p)
	res, err := remote.RunChecked(ctx, r.Transport, r.Host, "trash "+src,
		remote.TrashCommand(src, dst, path.Clean(r.pair.RemoteRoot)))
	if err != nil {
		return "", err
	}

	if trashedPath := strings.TrimSpace(res.Stdout); trashedPath != "" {
		return trashedPath, nil
	}
	return dst, nil
}

func (r *applyRun) trashLocal(p string) (string, error) {
	src := filepath.Join(r.pair.LocalRoot, filepath.FromSlash(p))
	base := filepath.Join(r.localTrash, r.runDir, filepath.FromSlash(p))
	if err := r.Fs.MkdirAll(filepath.Dir(base), 0700); err != nil {
		return "", errors.WithContext(err, "create trash directory")
	}

	dst := base
	for i := 1; ; i++ {
		if _, err := r.Fs.Stat(dst); os.IsNotExist(err) {
			break
		} else if err != nil {
			return "", errors.WithContext(err, "stat trash")
		}
		dst = fmt.Sprintf("%s_%d", base, i)
	}

	if err := r.Fs.Rename(src, dst); err != nil {
		return "", err
	}
	r.pruneLocal(p)
	return dst, nil
}

// pruneLocal removes the directories above `p` that are left empty, up to the
// local root.
func (r *applyRun) pruneLocal(p string) {
	for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
		abs := filepath.Join(r.pair.LocalRoot, filepath.FromSlash(dir))
		children, err := afero.ReadDir(r.Fs, abs)
		if err != nil || len(children) != 0 {
			return
		}
		if err := r.Fs.Remove(abs); err != nil {
			log.WithError(err).WithField("path", abs).Debug("Failed to remove empty directory")
			return
		}
	}
}
