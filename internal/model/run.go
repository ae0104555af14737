package model

import (
	"time"

	"gorm.io/gorm"
)

type RunStatus string

const (
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusPartial RunStatus = "PARTIAL"
	RunStatusFailed  RunStatus = "FAILED"
)

// Worse reports whether b outranks a as a run outcome.
func Worse(a, b RunStatus) RunStatus {
	rank := map[RunStatus]int{
		RunStatusSuccess: 0,
		RunStatusPartial: 1,
		RunStatusFailed:  2,
	}

	if rank[b] > rank[a] {
		return b
	}

	return a
}

type Run struct {
	gorm.Model
	Source      string    `gorm:"not null"`
	Backup      string    `gorm:"not null"`
	Bucket      string    `gorm:"not null"`
	Status      RunStatus `gorm:"not null"`
	DryRun      bool      `gorm:"not null"`
	Transferred int       `gorm:"not null"`
	Linked      int       `gorm:"not null"`
	Failed      int       `gorm:"not null"`
	Bytes       int64     `gorm:"not null"`
	LogPath     string
	StartedAt   time.Time `gorm:"not null"`
	FinishedAt  time.Time `gorm:"not null"`
}
