package backup_test

import (
	"errors"
	"io/fs"
	"linksnap/internal/backup"
	"linksnap/internal/config"
	"linksnap/internal/engine"
	"linksnap/internal/model"
	"linksnap/internal/runlog"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		ArchiveName: "__ARCHIVE",
		LogsName:    "__LOGS",
		ShadowName:  ".__SHADOW",
		RunPrefix:   "run-",
		IgnoreList:  []string{"*.tmp"},
		Engine:      "native",
	}
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func nlink(t *testing.T, path string) uint64 {
	t.Helper()
	info, err := os.Lstat(path)
	require.NoError(t, err)
	return uint64(info.Sys().(*syscall.Stat_t).Nlink)
}

func sameFile(t *testing.T, a, b string) bool {
	t.Helper()
	ai, err := os.Lstat(a)
	require.NoError(t, err)
	bi, err := os.Lstat(b)
	require.NoError(t, err)
	return os.SameFile(ai, bi)
}

// listTree returns every path under root with its size, for before/after
// comparisons.
func listTree(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return nil
			}
			return err
		}
		entry := path
		if !d.IsDir() {
			info, ierr := d.Info()
			if ierr != nil {
				return ierr
			}
			entry += ":" + info.ModTime().String()
		}
		out = append(out, entry)
		return nil
	})
	require.NoError(t, err)
	sort.Strings(out)
	return out
}

// bucketPaths returns the run buckets currently present in the archive.
func bucketPaths(t *testing.T, backupRoot string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(backupRoot, "__ARCHIVE"))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)

	var out []string
	for _, e := range entries {
		out = append(out, filepath.Join(backupRoot, "__ARCHIVE", e.Name()))
	}
	return out
}

func newRunner(sink runlog.Sink) *backup.Runner {
	return backup.NewRunner(testConfig(), engine.NewNative(), sink, nil)
}

func TestFirstRunBuildsMirrorAndShadows(t *testing.T) {
	source, backupRoot := t.TempDir(), t.TempDir()
	write(t, filepath.Join(source, "a.txt"), "alpha")
	write(t, filepath.Join(source, "b", "c.txt"), "gamma")

	run, err := newRunner(nil).Run(backup.Options{Source: source, Backup: backupRoot})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSuccess, run.Status)

	mirror := filepath.Join(backupRoot, filepath.Base(source))
	assert.FileExists(t, filepath.Join(mirror, "a.txt"))
	assert.FileExists(t, filepath.Join(mirror, "b", "c.txt"))

	// Shadows on both roots, hard-linked to their current content.
	assert.True(t, sameFile(t, filepath.Join(source, "a.txt"), filepath.Join(source, ".__SHADOW", "a.txt")))
	assert.True(t, sameFile(t, filepath.Join(mirror, "a.txt"), filepath.Join(mirror, ".__SHADOW", "a.txt")))

	// Nothing was displaced, so no bucket survives pruning.
	assert.Empty(t, bucketPaths(t, backupRoot))

	// One run log was written.
	logs, err := os.ReadDir(filepath.Join(backupRoot, "__LOGS"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.NotEmpty(t, run.LogPath)
}

func TestIdleRerunIsIdempotent(t *testing.T) {
	source, backupRoot := t.TempDir(), t.TempDir()
	write(t, filepath.Join(source, "a.txt"), "alpha")

	runner := newRunner(nil)
	_, err := runner.Run(backup.Options{Source: source, Backup: backupRoot})
	require.NoError(t, err)

	mirror := filepath.Join(backupRoot, filepath.Base(source))
	before := listTree(t, mirror)

	run, err := runner.Run(backup.Options{Source: source, Backup: backupRoot})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusSuccess, run.Status)
	assert.Zero(t, run.Transferred)
	assert.Zero(t, run.Linked)
	assert.Equal(t, before, listTree(t, mirror))
	assert.Empty(t, bucketPaths(t, backupRoot))
}

func TestDeletionArchivedScenario(t *testing.T) {
	source, backupRoot := t.TempDir(), t.TempDir()
	write(t, filepath.Join(source, "a.txt"), "alpha")
	write(t, filepath.Join(source, "b", "c.txt"), "gamma")

	runner := newRunner(nil)
	_, err := runner.Run(backup.Options{Source: source, Backup: backupRoot})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(source, "b", "c.txt")))

	run, err := runner.Run(backup.Options{Source: source, Backup: backupRoot})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSuccess, run.Status)

	mirror := filepath.Join(backupRoot, filepath.Base(source))
	assert.NoFileExists(t, filepath.Join(mirror, "b", "c.txt"))
	assert.FileExists(t, filepath.Join(mirror, "a.txt"))

	buckets := bucketPaths(t, backupRoot)
	require.Len(t, buckets, 1)

	archived := filepath.Join(buckets[0], "b", "c.txt")
	require.FileExists(t, archived)
	data, err := os.ReadFile(archived)
	require.NoError(t, err)
	assert.Equal(t, "gamma", string(data))

	// After pruning the archived copy is a true orphan.
	assert.EqualValues(t, 1, nlink(t, archived))
}

func TestRenameTravelsAsLink(t *testing.T) {
	source, backupRoot := t.TempDir(), t.TempDir()
	write(t, filepath.Join(source, "a.txt"), "stable content")

	runner := newRunner(nil)
	_, err := runner.Run(backup.Options{Source: source, Backup: backupRoot})
	require.NoError(t, err)

	require.NoError(t, os.Rename(filepath.Join(source, "a.txt"), filepath.Join(source, "z.txt")))

	run, err := runner.Run(backup.Options{Source: source, Backup: backupRoot})
	require.NoError(t, err)

	mirror := filepath.Join(backupRoot, filepath.Base(source))
	assert.NoFileExists(t, filepath.Join(mirror, "a.txt"))
	assert.FileExists(t, filepath.Join(mirror, "z.txt"))

	// The rename moved as a hard link, not a re-transfer.
	assert.Zero(t, run.Transferred)
	assert.GreaterOrEqual(t, run.Linked, 1)

	// A rename is not a deletion: pruning leaves no trace in the archive.
	assert.Empty(t, bucketPaths(t, backupRoot))
}

func TestDryRunDoesNotMutate(t *testing.T) {
	source, backupRoot := t.TempDir(), t.TempDir()
	write(t, filepath.Join(source, "a.txt"), "alpha")

	runner := newRunner(nil)
	_, err := runner.Run(backup.Options{Source: source, Backup: backupRoot})
	require.NoError(t, err)

	write(t, filepath.Join(source, "fresh.txt"), "new file")
	require.NoError(t, os.Remove(filepath.Join(source, "a.txt")))

	sink := &runlog.MemorySink{}
	sourceBefore := listTree(t, source)
	backupBefore := listTree(t, backupRoot)

	run, err := backup.NewRunner(testConfig(), engine.NewNative(), sink, nil).
		Run(backup.Options{Source: source, Backup: backupRoot, DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, sourceBefore, listTree(t, source))
	assert.Equal(t, backupBefore, listTree(t, backupRoot))

	// The plan still itemizes both changes.
	require.NotNil(t, sink.Record)
	text := sink.Record.Render()
	assert.Contains(t, text, "fresh.txt")
	assert.Contains(t, text, "a.txt")
	assert.True(t, run.DryRun)
}

func TestDryRunOnFreshRootsCreatesNothing(t *testing.T) {
	source, backupRoot := t.TempDir(), t.TempDir()
	write(t, filepath.Join(source, "a.txt"), "alpha")

	sink := &runlog.MemorySink{}
	_, err := backup.NewRunner(testConfig(), engine.NewNative(), sink, nil).
		Run(backup.Options{Source: source, Backup: backupRoot, DryRun: true})
	require.NoError(t, err)

	entries, err := os.ReadDir(backupRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoDirExists(t, filepath.Join(source, ".__SHADOW"))
	require.NotNil(t, sink.Record)
}

func TestLockContention(t *testing.T) {
	source, backupRoot := t.TempDir(), t.TempDir()
	write(t, filepath.Join(source, "a.txt"), "alpha")

	lock, err := backup.AcquireLock(backupRoot)
	require.NoError(t, err)
	defer lock.Release()

	_, err = newRunner(nil).Run(backup.Options{Source: source, Backup: backupRoot})
	assert.ErrorIs(t, err, backup.ErrAlreadyRunning)

	_, err = backup.AcquireLock(backupRoot)
	assert.ErrorIs(t, err, backup.ErrAlreadyRunning)
}

type failEngine struct{}

func (failEngine) Sync(engine.Request) (*engine.Report, error) {
	return nil, errors.New("engine exploded")
}

func TestSyncFailureDoesNotBlockLaterPhases(t *testing.T) {
	source, backupRoot := t.TempDir(), t.TempDir()
	write(t, filepath.Join(source, "a.txt"), "alpha")

	sink := &runlog.MemorySink{}
	run, err := backup.NewRunner(testConfig(), failEngine{}, sink, nil).
		Run(backup.Options{Source: source, Backup: backupRoot})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusFailed, run.Status)

	require.NotNil(t, sink.Record)
	var names []string
	for _, p := range sink.Record.Phases {
		names = append(names, p.Name)
	}
	assert.Contains(t, names, "sync")
	assert.Contains(t, names, "shadow source")
	assert.Contains(t, names, "shadow mirror")
	assert.Contains(t, names, "prune archive")
}

type captureRepo struct {
	saved *model.Run
}

func (c *captureRepo) Save(run *model.Run) error {
	c.saved = run
	return nil
}

func TestRunRowPersisted(t *testing.T) {
	source, backupRoot := t.TempDir(), t.TempDir()
	write(t, filepath.Join(source, "a.txt"), "alpha")

	repo := &captureRepo{}
	run, err := backup.NewRunner(testConfig(), engine.NewNative(), nil, repo).
		Run(backup.Options{Source: source, Backup: backupRoot})
	require.NoError(t, err)

	require.NotNil(t, repo.saved)
	assert.Same(t, run, repo.saved)
	assert.Equal(t, model.RunStatusSuccess, repo.saved.Status)
	assert.False(t, repo.saved.StartedAt.IsZero())
	assert.False(t, repo.saved.FinishedAt.IsZero())
}

func TestMissingSourceFailsBeforeMutation(t *testing.T) {
	backupRoot := t.TempDir()

	_, err := newRunner(nil).Run(backup.Options{
		Source: filepath.Join(t.TempDir(), "absent"),
		Backup: backupRoot,
	})
	require.Error(t, err)

	entries, rerr := os.ReadDir(backupRoot)
	require.NoError(t, rerr)
	assert.Empty(t, entries)
}
