package history

import (
	"strings"
	"time"
)

// Run is one recorded build.
type Run struct {
	ID         string
	Album      string
	AlbumDir   string
	OutputDir  string
	Targets    []string
	StartedAt  time.Time
	FinishedAt time.Time
	Success    bool
	Cancelled  bool

	Succeeded  int
	Failed     int
	Propagated int
	// Aborted counts units that were cancelled.
	Aborted int

	Failures []Failure
}

// Failure is one root-cause unit failure of a run.
type Failure struct {
	Phase   string
	Unit    string
	Outcome string
	Message string
}

// Duration returns the wall-clock time the run took.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Status summarizes the run as "ok", "failed", or "cancelled".
func (r Run) Status() string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case r.Success:
		return "ok"
	default:
		return "failed"
	}
}

func joinTargets(targets []string) string {
	return strings.Join(targets, ",")
}

func splitTargets(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, ",")
}
