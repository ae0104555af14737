package archive

import (
	"io/fs"
	"linksnap/internal/logger"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Pruner keeps the archive honest: run buckets should hold only content that
// truly left the source, as single-link orphan files, with no shadow debris
// and no empty directories.
type Pruner struct {
	shadowName string
}

func NewPruner(shadowName string) *Pruner {
	return &Pruner{shadowName: shadowName}
}

type Result struct {
	Shadows   int
	Linked    int
	EmptyDirs int
	Failures  int
}

// Prune runs the three cleanup steps in their required order. Shadow
// subtrees must go first: a file linked only from a shadow entry inside the
// archive still counts >1 at that moment, and would otherwise be skipped
// and then stranded once the shadow vanishes. Re-running on a pruned
// archive is a no-op.
func (p *Pruner) Prune(archiveRoot string) Result {
	var res Result

	if _, err := os.Stat(archiveRoot); os.IsNotExist(err) {
		return res
	}

	p.removeShadows(archiveRoot, &res)
	p.removeLinked(archiveRoot, &res)
	p.removeEmptyDirs(archiveRoot, &res)

	return res
}

func (p *Pruner) removeShadows(root string, res *Result) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			p.fail(path, err, res)
			return nil
		}
		if !d.IsDir() || d.Name() != p.shadowName {
			return nil
		}

		if rerr := os.RemoveAll(path); rerr != nil {
			p.fail(path, rerr, res)
		} else {
			res.Shadows++
			logger.Log.Debug("removed archived shadow", zap.String("path", path))
		}

		return filepath.SkipDir
	})
}

// removeLinked drops files the mirror or a live shadow still references.
// They were displaced by a rename, not a deletion, so keeping them would
// misrepresent the archive and waste nothing but space.
func (p *Pruner) removeLinked(root string, res *Result) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			p.fail(path, err, res)
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		var st unix.Stat_t
		if lerr := unix.Lstat(path, &st); lerr != nil {
			p.fail(path, lerr, res)
			return nil
		}

		if st.Nlink > 1 {
			if rerr := os.Remove(path); rerr != nil {
				p.fail(path, rerr, res)
			} else {
				res.Linked++
				logger.Log.Debug("removed still-referenced file", zap.String("path", path))
			}
		}

		return nil
	})
}

func (p *Pruner) removeEmptyDirs(root string, res *Result) {
	var dirs []string

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			p.fail(path, err, res)
			return nil
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})

	// Deepest first, so a chain of empty parents collapses in one pass.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			p.fail(dir, err, res)
			continue
		}
		if len(entries) > 0 {
			continue
		}

		if rerr := os.Remove(dir); rerr != nil {
			p.fail(dir, rerr, res)
		} else {
			res.EmptyDirs++
		}
	}
}

func (p *Pruner) fail(path string, err error, res *Result) {
	res.Failures++
	logger.Log.Warn("prune entry failed",
		zap.String("path", path),
		zap.Error(err))
}
