package engine

import (
	"errors"
	"fmt"
	"linksnap/internal/logger"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// preserveAttrs carries mode, ownership, timestamps and xattrs from src to
// dst. Ownership is transferred by numeric id only, so the result does not
// depend on the host's account names.
func preserveAttrs(srcPath, dstPath string, st *unix.Stat_t, numericIDs bool) error {
	if err := os.Chmod(dstPath, os.FileMode(st.Mode&0777)); err != nil {
		return fmt.Errorf("failed to chmod: %w", err)
	}

	if numericIDs {
		if err := os.Lchown(dstPath, int(st.Uid), int(st.Gid)); err != nil {
			// Only root may give files away; everyone else keeps ownership.
			if !errors.Is(err, unix.EPERM) {
				return fmt.Errorf("failed to chown: %w", err)
			}
		}
	}

	copyXattrs(srcPath, dstPath)

	ts := []unix.Timespec{st.Atim, st.Mtim}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, dstPath, ts, 0); err != nil {
		return fmt.Errorf("failed to set times: %w", err)
	}

	return nil
}

func copyXattrs(srcPath, dstPath string) {
	size, err := unix.Llistxattr(srcPath, nil)
	if err != nil || size == 0 {
		return
	}

	buf := make([]byte, size)
	n, err := unix.Llistxattr(srcPath, buf)
	if err != nil {
		return
	}

	for _, name := range strings.Split(strings.TrimRight(string(buf[:n]), "\x00"), "\x00") {
		if name == "" {
			continue
		}

		vsize, err := unix.Lgetxattr(srcPath, name, nil)
		if err != nil {
			continue
		}

		val := make([]byte, vsize)
		vn, err := unix.Lgetxattr(srcPath, name, val)
		if err != nil {
			continue
		}

		if err := unix.Lsetxattr(dstPath, name, val[:vn], 0); err != nil {
			logger.Log.Debug("xattr not copied",
				zap.String("path", dstPath),
				zap.String("name", name),
				zap.Error(err))
		}
	}
}
