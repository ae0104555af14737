package autostart

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"
)

const serviceTemplate = `[Unit]
Description=linksnap backup run

[Service]
Type=oneshot
ExecStart={{.ExecPath}} run {{.Source}} {{.Backup}}
`

const timerTemplate = `[Unit]
Description=Periodic linksnap backup

[Timer]
OnBootSec=5min
OnUnitActiveSec={{.Interval}}
Persistent=true

[Install]
WantedBy=timers.target
`

type LinuxScheduler struct{}

func (l *LinuxScheduler) unitDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(home, ".config", "systemd", "user")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	return dir, nil
}

func (l *LinuxScheduler) Install(s Schedule) error {
	dir, err := l.unitDir()
	if err != nil {
		return err
	}

	units := map[string]string{
		"linksnap.service": serviceTemplate,
		"linksnap.timer":   timerTemplate,
	}
	for name, text := range units {
		if err := writeUnit(filepath.Join(dir, name), text, s); err != nil {
			return err
		}
	}

	cmds := [][]string{
		{"systemctl", "--user", "daemon-reload"},
		{"systemctl", "--user", "enable", "linksnap.timer"},
		{"systemctl", "--user", "start", "linksnap.timer"},
	}

	for _, args := range cmds {
		cmd := exec.Command(args[0], args[1:]...)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("failed to run %v: %w\n%s", args, err, out)
		}
	}

	return nil
}

func writeUnit(path, text string, s Schedule) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create unit file: %w", err)
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	tmpl := template.Must(template.New(filepath.Base(path)).Parse(text))
	if err := tmpl.Execute(f, s); err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}

	return nil
}

func (l *LinuxScheduler) Uninstall() error {
	cmds := [][]string{
		{"systemctl", "--user", "stop", "linksnap.timer"},
		{"systemctl", "--user", "disable", "linksnap.timer"},
	}

	for _, args := range cmds {
		cmd := exec.Command(args[0], args[1:]...)
		_ = cmd.Run()
	}

	dir, err := l.unitDir()
	if err != nil {
		return err
	}

	for _, name := range []string{"linksnap.timer", "linksnap.service"} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	return nil
}

func (l *LinuxScheduler) IsInstalled() (bool, error) {
	dir, err := l.unitDir()
	if err != nil {
		return false, err
	}

	_, err = os.Stat(filepath.Join(dir, "linksnap.timer"))
	return err == nil, nil
}
