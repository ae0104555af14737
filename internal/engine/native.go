package engine

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"linksnap/internal/logger"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Native is the built-in synchronization engine: a sequential tree walker
// that implements the full Request contract without shelling out.
type Native struct{}

func NewNative() *Native {
	return &Native{}
}

type linkKey struct {
	dev uint64
	ino uint64
}

type nativeSync struct {
	req    Request
	report *Report
	filter filter
	srcDev uint64

	// links maps a multiply-linked source inode to the dest path already
	// produced for it, so every further occurrence becomes a hard link. A
	// renamed file shows up as a second path to the inode its shadow entry
	// still holds, which is what turns renames into link operations.
	links map[linkKey]string

	seen   map[string]bool
	failed map[string]bool
}

func (e *Native) Sync(req Request) (*Report, error) {
	if req.Source == "" || req.Dest == "" {
		return nil, errors.New("source and dest are required")
	}

	s := &nativeSync{
		req:    req,
		report: &Report{},
		filter: newFilter(req.Exclude, req.Include),
		links:  make(map[linkKey]string),
		seen:   make(map[string]bool),
		failed: make(map[string]bool),
	}

	var st unix.Stat_t
	if err := unix.Stat(req.Source, &st); err != nil {
		return nil, fmt.Errorf("failed to stat source: %w", err)
	}
	s.srcDev = uint64(st.Dev)

	if !req.DryRun {
		if err := os.MkdirAll(req.Dest, 0755); err != nil {
			return nil, fmt.Errorf("failed to create dest: %w", err)
		}
	}

	if err := s.copyPass(); err != nil {
		return s.report, err
	}
	if err := s.deletePass(); err != nil {
		return s.report, err
	}

	return s.report, nil
}

func (s *nativeSync) copyPass() error {
	return filepath.WalkDir(s.req.Source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.req.Source {
				return err
			}
			s.fail(path, err)
			return nil
		}

		rel, rerr := filepath.Rel(s.req.Source, path)
		if rerr != nil {
			return rerr
		}
		if rel == "." {
			return nil
		}

		if s.filter.Excluded(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		var st unix.Stat_t
		if lerr := unix.Lstat(path, &st); lerr != nil {
			s.fail(path, lerr)
			if d.IsDir() {
				s.failed[rel] = true
				return filepath.SkipDir
			}
			return nil
		}

		if s.req.OneFileSystem && d.IsDir() && uint64(st.Dev) != s.srcDev {
			logger.Log.Debug("not crossing mount point", zap.String("path", path))
			return filepath.SkipDir
		}

		s.seen[rel] = true
		s.report.Stats.Scanned++
		dstPath := filepath.Join(s.req.Dest, rel)

		var serr error
		switch st.Mode & unix.S_IFMT {
		case unix.S_IFDIR:
			serr = s.ensureDir(path, dstPath, rel, &st)
		case unix.S_IFLNK:
			serr = s.ensureSymlink(path, dstPath, rel)
		case unix.S_IFREG:
			serr = s.ensureFile(path, dstPath, rel, &st)
		default:
			logger.Log.Debug("skipping special file", zap.String("path", path))
		}

		if serr != nil {
			s.fail(path, serr)
			if d.IsDir() {
				s.failed[rel] = true
				return filepath.SkipDir
			}
		}

		return nil
	})
}

// deletePass displaces every dest path the copy pass did not account for.
// Subtrees whose source side failed to read are left alone rather than
// misread as deletions.
func (s *nativeSync) deletePass() error {
	return filepath.WalkDir(s.req.Dest, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.req.Dest {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			s.fail(path, err)
			return nil
		}

		rel, rerr := filepath.Rel(s.req.Dest, path)
		if rerr != nil {
			return rerr
		}
		if rel == "." {
			return nil
		}

		if s.filter.Excluded(rel) || s.underFailed(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if s.seen[rel] {
			return nil
		}

		s.report.record(ActionDelete, rel, 0)
		if derr := s.displace(path, rel); derr != nil {
			s.fail(path, derr)
		}
		if d.IsDir() {
			return filepath.SkipDir
		}

		return nil
	})
}

func (s *nativeSync) ensureDir(srcPath, dstPath, rel string, st *unix.Stat_t) error {
	info, err := os.Lstat(dstPath)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		s.report.record(ActionDelete, rel, 0)
		if derr := s.displace(dstPath, rel); derr != nil {
			return derr
		}
	case !os.IsNotExist(err):
		return err
	}

	s.report.record(ActionCreate, rel+"/", 0)
	if s.req.DryRun {
		return nil
	}

	if err := os.Mkdir(dstPath, 0755); err != nil {
		return fmt.Errorf("failed to create dir: %w", err)
	}

	return preserveAttrs(srcPath, dstPath, st, s.req.NumericIDs)
}

func (s *nativeSync) ensureSymlink(srcPath, dstPath, rel string) error {
	target, err := os.Readlink(srcPath)
	if err != nil {
		return err
	}

	if info, lerr := os.Lstat(dstPath); lerr == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			if cur, cerr := os.Readlink(dstPath); cerr == nil && cur == target {
				return nil
			}
		}
		if derr := s.displace(dstPath, rel); derr != nil {
			return derr
		}
	} else if !os.IsNotExist(lerr) {
		return lerr
	}

	s.report.record(ActionCreate, rel, 0)
	if s.req.DryRun {
		return nil
	}

	return os.Symlink(target, dstPath)
}

func (s *nativeSync) ensureFile(srcPath, dstPath, rel string, st *unix.Stat_t) error {
	key := linkKey{dev: uint64(st.Dev), ino: st.Ino}
	action := ActionCreate

	var dst unix.Stat_t
	derr := unix.Lstat(dstPath, &dst)
	switch {
	case derr == nil && unchanged(st, &dst):
		if st.Nlink > 1 {
			s.remember(key, dstPath)
		}
		return nil
	case derr == nil:
		action = ActionUpdate
		if err := s.displace(dstPath, rel); err != nil {
			return err
		}
	case !errors.Is(derr, unix.ENOENT):
		return derr
	}

	if st.Nlink > 1 {
		if prev, ok := s.links[key]; ok {
			s.report.record(ActionLink, rel, 0)
			if s.req.DryRun {
				return nil
			}
			return os.Link(prev, dstPath)
		}
	}

	if s.req.RefTree != "" {
		refPath := filepath.Join(s.req.RefTree, rel)
		if same, cerr := sameContent(srcPath, refPath, st); cerr == nil && same {
			s.report.record(ActionLink, rel, 0)
			s.remember(key, dstPath)
			if s.req.DryRun {
				return nil
			}
			return os.Link(refPath, dstPath)
		}
	}

	s.report.record(action, rel, st.Size)
	s.report.transferred(st.Size)
	s.remember(key, dstPath)
	if s.req.DryRun {
		return nil
	}

	if err := copyFile(srcPath, dstPath); err != nil {
		return err
	}

	return preserveAttrs(srcPath, dstPath, st, s.req.NumericIDs)
}

func (s *nativeSync) remember(key linkKey, dstPath string) {
	if _, ok := s.links[key]; !ok {
		s.links[key] = dstPath
	}
}

// displace moves a dest path out of the way, keeping its pre-sync form in the
// backup dir when one is configured.
func (s *nativeSync) displace(dstPath, rel string) error {
	if s.req.DryRun {
		return nil
	}

	if s.req.BackupDir == "" {
		return os.RemoveAll(dstPath)
	}

	target := filepath.Join(s.req.BackupDir, rel)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create backup dir: %w", err)
	}
	if err := os.Rename(dstPath, target); err != nil {
		return fmt.Errorf("failed to displace %s: %w", rel, err)
	}

	return nil
}

func (s *nativeSync) underFailed(rel string) bool {
	for p := rel; p != "." && p != string(os.PathSeparator); p = filepath.Dir(p) {
		if s.failed[p] {
			return true
		}
	}

	return false
}

func (s *nativeSync) fail(path string, err error) {
	s.report.Stats.Failures++
	logger.Log.Error("sync entry failed",
		zap.String("path", path),
		zap.Error(err))
}

// unchanged is the quick check: same file type, size and mtime.
func unchanged(src, dst *unix.Stat_t) bool {
	if src.Mode&unix.S_IFMT != dst.Mode&unix.S_IFMT {
		return false
	}

	return src.Size == dst.Size && src.Mtim == dst.Mtim
}

// sameContent decides whether ref can stand in for src. Identical inodes and
// the size+mtime fast path avoid reading bytes; a same-size file with a
// different mtime falls back to a checksum compare.
func sameContent(srcPath, refPath string, src *unix.Stat_t) (bool, error) {
	var ref unix.Stat_t
	if err := unix.Lstat(refPath, &ref); err != nil {
		return false, err
	}

	if ref.Mode&unix.S_IFMT != unix.S_IFREG {
		return false, nil
	}
	if uint64(ref.Dev) == uint64(src.Dev) && ref.Ino == src.Ino {
		return true, nil
	}
	if ref.Size != src.Size {
		return false, nil
	}
	if ref.Mtim == src.Mtim {
		return true, nil
	}

	srcSum, err := checksum(srcPath)
	if err != nil {
		return false, err
	}
	refSum, err := checksum(refPath)
	if err != nil {
		return false, err
	}

	return bytes.Equal(srcSum, refSum), nil
}

func checksum(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

// copyFile writes through a temp file so an interrupted transfer never leaves
// a half-written entry at the final path.
func copyFile(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open src: %w", err)
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent dir: %w", err)
	}

	tmp := dst + ".linksnap.tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(out, f); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write: %w", err)
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename: %w", err)
	}

	return nil
}
