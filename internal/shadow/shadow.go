package shadow

import (
	"fmt"
	"linksnap/internal/engine"
	"linksnap/internal/logger"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Updater maintains a root's shadow tree: a hard-linked clone of the root's
// current non-hidden content, kept purely so the sync engine can recognize
// moved files by inode identity. The whole tree is recomputed on every
// update; unchanged entries cost nothing because they stay hard links.
type Updater struct {
	eng     engine.Engine
	name    string
	exclude []string
}

func NewUpdater(eng engine.Engine, shadowName string, exclude []string) *Updater {
	return &Updater{
		eng:     eng,
		name:    shadowName,
		exclude: exclude,
	}
}

// Exists reports whether root already has a shadow tree.
func (u *Updater) Exists(root string) bool {
	info, err := os.Stat(filepath.Join(root, u.name))
	return err == nil && info.IsDir()
}

// Update recomputes root's shadow. Linking against the root itself means an
// unchanged file's shadow entry keeps sharing its inode, a changed file gets
// a fresh link to the new content, and paths gone from root fall out of the
// shadow along with their emptied directories.
func (u *Updater) Update(root string) (*engine.Report, error) {
	if root == "" {
		return nil, fmt.Errorf("shadow root is required")
	}

	report, err := u.eng.Sync(engine.Request{
		Source:  root,
		Dest:    filepath.Join(root, u.name),
		RefTree: root,
		Exclude: u.exclude,
	})
	if err != nil {
		return report, fmt.Errorf("failed to update shadow for %s: %w", root, err)
	}

	logger.Log.Debug("shadow updated",
		zap.String("root", root),
		zap.Int("linked", report.Stats.Linked),
		zap.Int("removed", report.Stats.Deleted))

	return report, nil
}
