package pipeline

import (
	"context"
	"errors"

	"pressing/internal/services"
	"pressing/internal/workpool"
)

// Failure is one root-cause error reported by a run.
type Failure struct {
	Phase   PhaseKey
	Unit    string
	Err     error
	Outcome services.Outcome
}

// Summary counts terminal unit outcomes.
type Summary struct {
	Units      int
	Succeeded  int
	Failed     int
	Propagated int
	Cancelled  int
}

// Report is the aggregated result of a run.
type Report struct {
	Success  bool
	Failures []Failure
	Summary  Summary
}

// Aggregate waits for every unit in groups and collects failures in group
// creation order. Cancellations are counted but not reported, and a root
// failure reached through several dependents appears once.
func Aggregate(ctx context.Context, s *Scheduler) (Report, error) {
	var report Report
	seen := make(map[*workpool.Handle]struct{})

	for _, group := range s.Groups() {
		for _, h := range group.Handles() {
			err := h.WaitContext(ctx)
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Summary.Units++
			if err == nil {
				report.Summary.Succeeded++
				continue
			}
			if services.IsCancellation(err) {
				report.Summary.Cancelled++
				continue
			}

			origin, rootErr := h, err
			var prereq *PrerequisiteError
			if errors.As(err, &prereq) && prereq.Origin != nil {
				report.Summary.Propagated++
				origin, rootErr = prereq.Origin, prereq.Err
			} else {
				report.Summary.Failed++
			}
			if _, dup := seen[origin]; dup {
				continue
			}
			seen[origin] = struct{}{}

			phase, ok := s.PhaseOf(origin)
			if !ok {
				phase = group.Key()
			}
			report.Failures = append(report.Failures, Failure{
				Phase:   phase,
				Unit:    origin.Name(),
				Err:     rootErr,
				Outcome: services.Classify(rootErr),
			})
		}
	}
	report.Success = len(report.Failures) == 0 && report.Summary.Cancelled == 0
	return report, nil
}
