package engine

import (
	"path/filepath"
	"strings"
)

// Request describes one tree synchronization: copy Source to Dest, filter by
// glob lists, hard-link unchanged files from RefTree, and displace anything
// overwritten or deleted in Dest into BackupDir instead of discarding it.
type Request struct {
	Source string
	Dest   string

	// RefTree, when set, is consulted before copying: a file identical to its
	// counterpart at the same relative path under RefTree is hard-linked from
	// there instead of being transferred.
	RefTree string

	// BackupDir, when set, receives the pre-sync form of every Dest path that
	// sync would overwrite or delete, at its relative path. When empty such
	// paths are removed outright.
	BackupDir string

	// Exclude and Include are glob patterns matched against each path
	// segment. Include wins over Exclude for the segments it names.
	Exclude []string
	Include []string

	DryRun        bool
	NumericIDs    bool
	OneFileSystem bool
}

type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionLink   Action = "LINK"
	ActionDelete Action = "DELETE"
)

type Change struct {
	Action Action
	Path   string
	Bytes  int64
}

type Stats struct {
	Scanned     int
	Transferred int
	Linked      int
	Deleted     int
	Bytes       int64
	Failures    int
}

type Report struct {
	Itemized []Change
	Stats    Stats
}

// record books one itemized change. Transferred counts regular-file bodies
// only, so directory and symlink creations are charged by the caller leaving
// bytes untracked here.
func (r *Report) record(action Action, rel string, bytes int64) {
	r.Itemized = append(r.Itemized, Change{Action: action, Path: rel, Bytes: bytes})

	switch action {
	case ActionLink:
		r.Stats.Linked++
	case ActionDelete:
		r.Stats.Deleted++
	}
}

func (r *Report) transferred(bytes int64) {
	r.Stats.Transferred++
	r.Stats.Bytes += bytes
}

type Engine interface {
	Sync(req Request) (*Report, error)
}

type filter struct {
	exclude []string
	include []string
}

func newFilter(exclude, include []string) filter {
	return filter{exclude: exclude, include: include}
}

// Excluded reports whether rel is filtered out. A segment matching an include
// pattern is immune to the exclude list, so an otherwise hidden directory can
// still travel with the tree.
func (f filter) Excluded(rel string) bool {
	parts := strings.Split(filepath.ToSlash(rel), "/")

	for _, part := range parts {
		if f.matches(f.include, part) {
			continue
		}
		if f.matches(f.exclude, part) {
			return true
		}
	}

	return false
}

func (f filter) matches(patterns []string, part string) bool {
	for _, pattern := range patterns {
		matched, err := filepath.Match(pattern, part)
		if err == nil && matched {
			return true
		}
	}

	return false
}
