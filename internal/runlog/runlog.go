package runlog

import (
	"fmt"
	"strings"
	"time"
)

// Record is the structured log of one run: an ordered list of phases, each
// with its own timestamps and detail lines. It stays in memory until a Sink
// renders it, so the pipeline never touches log files directly.
type Record struct {
	Stamp   string
	DryRun  bool
	Started time.Time
	Phases  []*Phase
}

type Phase struct {
	Name    string
	Started time.Time
	Ended   time.Time
	Lines   []string
	ErrMsg  string
}

func New(stamp string, dryRun bool) *Record {
	return &Record{
		Stamp:   stamp,
		DryRun:  dryRun,
		Started: time.Now(),
	}
}

func (r *Record) Begin(name string) *Phase {
	p := &Phase{
		Name:    name,
		Started: time.Now(),
	}
	r.Phases = append(r.Phases, p)

	return p
}

func (p *Phase) Logf(format string, args ...any) {
	p.Lines = append(p.Lines, fmt.Sprintf(format, args...))
}

func (p *Phase) Done(err error) {
	p.Ended = time.Now()
	if err != nil {
		p.ErrMsg = err.Error()
	}
}

func (p *Phase) Failed() bool {
	return p.ErrMsg != ""
}

const timeLayout = "2006-01-02 15:04:05"

// Render produces the banner-per-phase text form of the record.
func (r *Record) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "run %s", r.Stamp)
	if r.DryRun {
		b.WriteString(" (dry run)")
	}
	fmt.Fprintf(&b, "\nstarted %s\n", r.Started.Format(timeLayout))

	for _, p := range r.Phases {
		fmt.Fprintf(&b, "\n----- %s -----\n", p.Name)
		fmt.Fprintf(&b, "start %s\n", p.Started.Format(timeLayout))

		for _, line := range p.Lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}

		if p.ErrMsg != "" {
			fmt.Fprintf(&b, "error: %s\n", p.ErrMsg)
		}
		if !p.Ended.IsZero() {
			fmt.Fprintf(&b, "end %s\n", p.Ended.Format(timeLayout))
		}
	}

	return b.String()
}
