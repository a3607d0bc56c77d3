package pipeline

import (
	"context"
	"sort"
	"sync"

	"pressing/internal/targets"
	"pressing/internal/workpool"
)

// Stage is one step of a format's build.
type Stage string

const (
	StageEncode  Stage = "encode"
	StageBuild   Stage = "build"
	StageClean   Stage = "clean"
	StageZip     Stage = "zip"
	StagePublish Stage = "publish"
)

// PhaseKey identifies a phase group, e.g. encode-mp3.
type PhaseKey struct {
	Stage  Stage
	Target targets.Target
}

func (k PhaseKey) String() string {
	return string(k.Stage) + "-" + string(k.Target)
}

// Key builds a PhaseKey.
func Key(stage Stage, target targets.Target) PhaseKey {
	return PhaseKey{Stage: stage, Target: target}
}

// PhaseGroup is the ordered set of unit handles sharing a phase key.
type PhaseGroup struct {
	key PhaseKey

	mu      sync.Mutex
	handles []*workpool.Handle
}

func newPhaseGroup(key PhaseKey) *PhaseGroup {
	return &PhaseGroup{key: key}
}

// Key returns the group's phase key.
func (g *PhaseGroup) Key() PhaseKey { return g.key }

func (g *PhaseGroup) add(h *workpool.Handle) {
	g.mu.Lock()
	g.handles = append(g.handles, h)
	g.mu.Unlock()
}

// Handles returns a snapshot of the group's handles in submission order.
func (g *PhaseGroup) Handles() []*workpool.Handle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*workpool.Handle(nil), g.handles...)
}

// Len returns the number of units in the group.
func (g *PhaseGroup) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.handles)
}

// Wait blocks until every unit in the group is terminal or ctx ends. It
// returns the first unit error in submission order.
func (g *PhaseGroup) Wait(ctx context.Context) error {
	var first error
	for _, h := range g.Handles() {
		err := h.WaitContext(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Progress reports how many units are terminal, how many of those failed, and
// the group size. Cancelled units count as failed here.
func (g *PhaseGroup) Progress() (done, failed, total int) {
	for _, h := range g.Handles() {
		total++
		if h.IsDone() {
			done++
			if h.Err() != nil {
				failed++
			}
		}
	}
	return done, failed, total
}

// Protections is the append-only set of filenames cleanup must keep in one
// output directory.
type Protections struct {
	mu    sync.Mutex
	names map[string]struct{}
}

// NewProtections returns an empty set.
func NewProtections() *Protections {
	return &Protections{names: make(map[string]struct{})}
}

// Add records names as protected.
func (p *Protections) Add(names ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, name := range names {
		if name != "" {
			p.names[name] = struct{}{}
		}
	}
}

// Contains reports whether name is protected.
func (p *Protections) Contains(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.names[name]
	return ok
}

// Names returns the protected names sorted.
func (p *Protections) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.names))
	for name := range p.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
