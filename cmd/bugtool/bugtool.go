package bugtool

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/parasync/cmd/util"
	"github.com/sidkik/parasync/pkg/config"
	"github.com/sidkik/parasync/pkg/errors"
	"github.com/sidkik/parasync/pkg/remote"
	"github.com/sidkik/parasync/pkg/store"
	"github.com/sidkik/parasync/pkg/sync"
	"github.com/sidkik/parasync/pkg/version"
)

var fs = afero.NewOsFs()

// maxRuns is how many of the most recent syncs are included in the archive.
const maxRuns = 100

// New creates a new `bug-tool` command.
func New() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "bug-tool",
		Short: "Generate an archive for debugging parasync",
		Run:   func(_ *cobra.Command, _ []string) { main(out) },
	}
	cmd.Flags().StringVar(&out, "out", "", "path for archive")
	return cmd
}

func main(out string) {
	tmpdir, err := afero.TempDir(fs, "", "parasync-bug-tool")
	if err != nil {
		err = errors.NewFriendlyError("Failed to create out directory:\n%s", err)
		util.HandleFatalError(err)
	}

	// Wrap defer in a function to handle errors from fs.RemoveAll().
	defer func() {
		err := fs.RemoveAll(tmpdir)
		if err != nil {
			util.HandleFatalError(err)
		}
	}()

	setupInfo(tmpdir)

	if out == "" {
		out = fmt.Sprintf("parasync-bug-info-%s.tar.gz",
			time.Now().Format("Jan_02_2006-15-04-05"))
	}
	if err := tarDirectory(tmpdir, out); err != nil {
		err = errors.NewFriendlyError("Failed to tar:\n%s", err)
		util.HandleFatalError(err)
	}

	msg := `Created bug information archive at '%s'.
You may want to edit the archive, since it contains the names of synced files.
The archive contains:
 * The parasync settings.
 * The most recent syncs, and the files that failed to sync.
 * The files that were moved to the trash.
 * The version of parasync, and of the peer's operating system.
`
	fmt.Printf(msg, out)
}

func setupInfo(root string) {
	settings, err := util.LoadSettings()
	if err != nil {
		log.WithError(err).Error("Failed to parse settings")
	} else if err := setupSettings(root, settings); err != nil {
		log.WithError(err).Warn("Failed to setup settings")
	}

	journalPath, err := homedir.Expand(store.DefaultPath)
	if err != nil {
		log.WithError(err).Warn("Failed to find journal")
	} else if journal, err := store.Open(journalPath); err != nil {
		log.WithError(err).Warn("Failed to open journal")
	} else {
		if err := setupJournal(root, journal); err != nil {
			log.WithError(err).Warn("Failed to setup journal")
		}
		journal.Close()
	}

	if err := setupVersion(root); err != nil {
		log.WithError(err).Warn("Failed to setup version info")
	}
}

func setupSettings(root string, settings config.Settings) error {
	return writeYAML(filepath.Join(root, "settings.yaml"), settings)
}

type runInfo struct {
	store.Run
	Failures []sync.Failure `json:"failures,omitempty"`
}

func setupJournal(root string, journal *store.Store) error {
	ctx := context.Background()
	runs, err := journal.ListRuns(ctx, "", maxRuns)
	if err != nil {
		return errors.WithContext(err, "list runs")
	}

	var infos []runInfo
	for _, run := range runs {
		info := runInfo{Run: run}
		if run.Failed > 0 {
			info.Failures, err = journal.ListFailures(ctx, run.ID)
			if err != nil {
				return errors.WithContext(err, "list failures")
			}
		}
		infos = append(infos, info)
	}
	if err := writeYAML(filepath.Join(root, "runs.yaml"), infos); err != nil {
		return err
	}

	trash, err := journal.ListTrash(ctx, "")
	if err != nil {
		return errors.WithContext(err, "list trash")
	}
	return writeYAML(filepath.Join(root, "trash.yaml"), trash)
}

func setupVersion(root string) error {
	outdir := filepath.Join(root, "version")
	if err := fs.Mkdir(outdir, 0755); err != nil {
		return errors.WithContext(err, "mkdir")
	}

	localOut, err := fs.Create(filepath.Join(outdir, "local"))
	if err != nil {
		return errors.WithContext(err, "create")
	}
	defer localOut.Close()
	fmt.Fprintf(localOut, "local version: %s\n", version.Version)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	session, err := util.OpenSession(ctx)
	if err != nil {
		return errors.WithContext(err, "connect to peer")
	}
	defer session.Close()

	res, err := remote.RunChecked(ctx, session.Transport, session.Host, "uname", "uname -a")
	if err != nil {
		return errors.WithContext(err, "get peer version")
	}

	peerOut, err := fs.Create(filepath.Join(outdir, "peer"))
	if err != nil {
		return errors.WithContext(err, "create")
	}
	defer peerOut.Close()
	fmt.Fprintf(peerOut, "peer: %s\n", strings.TrimSpace(res.Stdout))
	return nil
}

func writeYAML(path string, v interface{}) error {
	yamlBytes, err := yaml.Marshal(v)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, path, yamlBytes, 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

func tarDirectory(src, outPath string) error {
	out, err := fs.Create(outPath)
	if err != nil {
		return errors.WithContext(err, "open destination")
	}
	defer out.Close()

	gzw := gzip.NewWriter(out)
	defer gzw.Close()

	tw := tar.NewWriter(gzw)
	defer tw.Close()

	return afero.Walk(fs, src, func(file string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(fi, fi.Name())
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("make header %s", file))
		}

		relPath, err := filepath.Rel(src, file)
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("get relative path of %s to %s", file, src))
		}

		header.Name = filepath.Join("parasync-bug-info", relPath)
		if err := tw.WriteHeader(header); err != nil {
			return errors.WithContext(err, fmt.Sprintf("write %s header", file))
		}

		// Only write contents if it's a file (i.e. not a directory).
		if !fi.Mode().IsRegular() {
			return nil
		}

		f, err := fs.Open(file)
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("open %s", file))
		}
		defer f.Close()

		if _, err := io.Copy(tw, f); err != nil {
			return errors.WithContext(err, fmt.Sprintf("copy %s", file))
		}
		return nil
	})
}
