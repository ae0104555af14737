package runlog

import (
	"fmt"
	"os"
	"path/filepath"
)

type Sink interface {
	Write(r *Record) (string, error)
}

// FileSink renders records into one text file per run under Dir.
type FileSink struct {
	Dir string
}

func (s FileSink) Write(r *Record) (string, error) {
	name := r.Stamp + ".log"
	if r.DryRun {
		name = r.Stamp + "-dryrun.log"
	}

	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, []byte(r.Render()), 0644); err != nil {
		return "", fmt.Errorf("failed to write run log: %w", err)
	}

	return path, nil
}

// MemorySink keeps the last record for inspection in tests.
type MemorySink struct {
	Record *Record
}

func (s *MemorySink) Write(r *Record) (string, error) {
	s.Record = r
	return "", nil
}
