package engine

import (
	"bufio"
	"bytes"
	"fmt"
	"linksnap/internal/logger"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Rsync delegates the transfer to an rsync binary, translating the typed
// Request into the equivalent argv instead of scattering flags at call sites.
type Rsync struct {
	// Binary overrides the rsync executable looked up on PATH.
	Binary string
}

func NewRsync() *Rsync {
	return &Rsync{}
}

func (e *Rsync) Argv(req Request) []string {
	args := []string{"-a", "-i", "-H", "-X", "--delete"}

	if req.DryRun {
		args = append(args, "-n")
	}
	if req.NumericIDs {
		args = append(args, "--numeric-ids")
	}
	if req.OneFileSystem {
		args = append(args, "--one-file-system")
	}
	if req.BackupDir != "" {
		args = append(args, "--backup", "--backup-dir="+req.BackupDir)
	}
	if req.RefTree != "" {
		args = append(args, "--link-dest="+req.RefTree)
	}

	// rsync applies the first matching rule, so includes go first.
	for _, pattern := range req.Include {
		args = append(args, "--include="+pattern)
	}
	for _, pattern := range req.Exclude {
		args = append(args, "--exclude="+pattern)
	}

	args = append(args, req.Source+"/", req.Dest+"/")
	return args
}

func (e *Rsync) Sync(req Request) (*Report, error) {
	if req.Source == "" || req.Dest == "" {
		return nil, fmt.Errorf("source and dest are required")
	}

	binary := e.Binary
	if binary == "" {
		binary = "rsync"
	}

	args := e.Argv(req)
	logger.Log.Debug("running rsync", zap.Strings("args", args))

	cmd := exec.Command(binary, args...)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	err := cmd.Run()
	report := parseItemized(out.Bytes())

	if err != nil {
		// Exit codes 23/24 mean partial transfer; the run carries on with
		// what did transfer, like any other per-file failure.
		if ee, ok := err.(*exec.ExitError); ok && partialCode(ee.ExitCode()) {
			report.Stats.Failures++
			logger.Log.Error("rsync partial transfer",
				zap.Int("code", ee.ExitCode()),
				zap.String("stderr", errOut.String()))
			return report, nil
		}
		return report, fmt.Errorf("rsync failed: %w\n%s", err, errOut.String())
	}

	return report, nil
}

func partialCode(code int) bool {
	return code == 23 || code == 24
}

// parseItemized turns `rsync -i` output lines into the common Report form.
func parseItemized(out []byte) *Report {
	report := &Report{}
	scanner := bufio.NewScanner(bytes.NewReader(out))

	for scanner.Scan() {
		line := scanner.Text()
		flags, path, ok := strings.Cut(line, " ")
		if !ok || flags == "" {
			continue
		}
		path = strings.TrimSpace(path)

		report.Stats.Scanned++

		switch {
		case strings.HasPrefix(flags, "*deleting"):
			report.record(ActionDelete, path, 0)
		case len(flags) > 1 && flags[0] == '>' && flags[1] == 'f':
			if strings.ContainsRune(flags, '+') {
				report.record(ActionCreate, path, 0)
			} else {
				report.record(ActionUpdate, path, 0)
			}
			report.transferred(0)
		case flags[0] == 'h':
			report.record(ActionLink, path, 0)
		case flags[0] == 'c':
			report.record(ActionCreate, path, 0)
		}
	}

	return report
}
