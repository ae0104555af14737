package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrInvalidConfiguration = errors.New("source and backup roots are required")

// Paths is the derived backup skeleton for one source/backup root pair.
// It is computed once per invocation and passed through the pipeline as-is.
type Paths struct {
	Source     string
	Backup     string
	Mirror     string
	Archive    string
	Logs       string
	ShadowName string
	RunPrefix  string
}

func New(source, backup, archiveName, logsName, shadowName, runPrefix string) (Paths, error) {
	source = strings.TrimRight(source, string(os.PathSeparator))
	backup = strings.TrimRight(backup, string(os.PathSeparator))

	if source == "" || backup == "" {
		return Paths{}, ErrInvalidConfiguration
	}

	absSource, err := filepath.Abs(source)
	if err != nil {
		return Paths{}, fmt.Errorf("invalid source path: %w", err)
	}
	absBackup, err := filepath.Abs(backup)
	if err != nil {
		return Paths{}, fmt.Errorf("invalid backup path: %w", err)
	}

	return Paths{
		Source:     absSource,
		Backup:     absBackup,
		Mirror:     filepath.Join(absBackup, filepath.Base(absSource)),
		Archive:    filepath.Join(absBackup, archiveName),
		Logs:       filepath.Join(absBackup, logsName),
		ShadowName: shadowName,
		RunPrefix:  runPrefix,
	}, nil
}

// Materialize creates the mirror, archive and logs directories. Re-running on
// an existing skeleton is a no-op.
func (p Paths) Materialize() error {
	for _, dir := range []string{p.Mirror, p.Archive, p.Logs} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	return nil
}

func (p Paths) SourceShadow() string {
	return filepath.Join(p.Source, p.ShadowName)
}

func (p Paths) MirrorShadow() string {
	return filepath.Join(p.Mirror, p.ShadowName)
}

// Bucket returns the run-bucket path for stamp. Two runs within the same
// second would collide on the stamped name alone, so an already existing
// bucket gets a numeric suffix instead of being merged into.
func (p Paths) Bucket(stamp string) string {
	base := filepath.Join(p.Archive, p.RunPrefix+stamp)

	bucket := base
	for n := 2; ; n++ {
		if _, err := os.Stat(bucket); os.IsNotExist(err) {
			return bucket
		}
		bucket = fmt.Sprintf("%s-%d", base, n)
	}
}
