package autostart

import "runtime"

// Schedule is the periodic trigger for backup runs. linksnap itself never
// schedules anything; this only registers the run with the platform's
// scheduler.
type Schedule struct {
	ExecPath string
	Source   string
	Backup   string
	Interval string
}

type Scheduler interface {
	Install(s Schedule) error
	Uninstall() error
	IsInstalled() (bool, error)
}

func New() Scheduler {
	switch runtime.GOOS {
	case "linux":
		return &LinuxScheduler{}
	default:
		return &UnsupportedScheduler{}
	}
}

type UnsupportedScheduler struct{}

func (u *UnsupportedScheduler) Install(_ Schedule) error {
	return nil
}

func (u *UnsupportedScheduler) Uninstall() error {
	return nil
}

func (u *UnsupportedScheduler) IsInstalled() (bool, error) {
	return false, nil
}
