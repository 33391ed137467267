package application

import (
	"sort"
	"strconv"
	"time"

	"github.com/davarch/ci-dash/internal/domain"
	"github.com/google/uuid"
)

type EffectKind int

const (
	EffectFlashSuccess EffectKind = iota
	EffectFlashFailure
	EffectTableFadeIn
	EffectSearchPulse
	EffectModalAppear
)

func (k EffectKind) String() string {
	switch k {
	case EffectFlashSuccess:
		return "success"
	case EffectFlashFailure:
		return "failure"
	case EffectTableFadeIn:
		return "fade-in"
	case EffectSearchPulse:
		return "pulse"
	case EffectModalAppear:
		return "modal"
	default:
		return "unknown"
	}
}

// Row targets that are not bound to a domain entity.
const (
	RowProjectsTable = "table:projects"
	RowSearch        = "search"
	RowModal         = "modal"
)

func PipelineRow(id int64) string { return "pipeline:" + strconv.FormatInt(id, 10) }

func JobRow(id int64) string { return "job:" + strconv.FormatInt(id, 10) }

// Effect is an opaque request handed to the renderer: what to animate,
// where, and for how long.
type Effect struct {
	Handle   uuid.UUID
	Kind     EffectKind
	Target   string
	Started  time.Time
	Duration time.Duration
}

// Progress is the elapsed fraction of the effect at now, in [0, 1].
func (e Effect) Progress(now time.Time) float64 {
	if e.Duration <= 0 {
		return 1
	}
	p := float64(now.Sub(e.Started)) / float64(e.Duration)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

func (e Effect) Done(now time.Time) bool {
	return !now.Before(e.Started.Add(e.Duration))
}

type statusRule struct {
	kind     EffectKind
	duration time.Duration
}

var (
	pipelineRules = map[domain.Status]statusRule{
		domain.StatusSuccess: {EffectFlashSuccess, 1500 * time.Millisecond},
		domain.StatusFailed:  {EffectFlashFailure, 1500 * time.Millisecond},
	}
	jobRules = map[domain.Status]statusRule{
		domain.StatusSuccess: {EffectFlashSuccess, time.Second},
		domain.StatusFailed:  {EffectFlashFailure, time.Second},
	}
	modeRules = map[Mode]struct {
		kind     EffectKind
		target   string
		duration time.Duration
	}{
		ModeSearch:  {EffectSearchPulse, RowSearch, 800 * time.Millisecond},
		ModeConfirm: {EffectModalAppear, RowModal, 300 * time.Millisecond},
		ModeHelp:    {EffectModalAppear, RowModal, 300 * time.Millisecond},
	}
)

const tableFadeIn = 600 * time.Millisecond

// EffectOrchestrator decides which effects run. It keeps at most one
// effect per row; a new trigger for a row supersedes the running one.
type EffectOrchestrator struct {
	enabled bool
	active  map[string]Effect

	tableShown bool
	newHandle  func() uuid.UUID
}

func NewEffectOrchestrator(enabled bool) *EffectOrchestrator {
	return &EffectOrchestrator{
		enabled:   enabled,
		active:    make(map[string]Effect),
		newHandle: uuid.New,
	}
}

// SetEnabled toggles animations. Disabling drops running effects.
func (o *EffectOrchestrator) SetEnabled(enabled bool) {
	o.enabled = enabled
	if !enabled {
		o.active = make(map[string]Effect)
	}
}

func (o *EffectOrchestrator) Enabled() bool { return o.enabled }

// OnEvent maps one domain event to an effect, if any.
func (o *EffectOrchestrator) OnEvent(ev domain.Event, store *Store, now time.Time) {
	switch ev := ev.(type) {
	case domain.PipelineStatusChanged:
		if r, ok := pipelineRules[ev.New]; ok {
			o.trigger(r.kind, PipelineRow(ev.PipelineID), r.duration, now)
		}
	case domain.JobStatusChanged:
		if r, ok := jobRules[ev.New]; ok {
			o.trigger(r.kind, JobRow(ev.JobID), r.duration, now)
		}
	case domain.ProjectListChanged:
		if !o.tableShown && len(store.Projects()) > 0 {
			o.tableShown = true
			o.trigger(EffectTableFadeIn, RowProjectsTable, tableFadeIn, now)
		}
	}
}

// OnModeChange maps a mode transition to an effect, if any.
func (o *EffectOrchestrator) OnModeChange(from, to Mode, now time.Time) {
	if from == to {
		return
	}
	if r, ok := modeRules[to]; ok {
		o.trigger(r.kind, r.target, r.duration, now)
	}
}

func (o *EffectOrchestrator) trigger(kind EffectKind, target string, d time.Duration, now time.Time) {
	if !o.enabled {
		return
	}
	o.active[target] = Effect{
		Handle:   o.newHandle(),
		Kind:     kind,
		Target:   target,
		Started:  now,
		Duration: d,
	}
}

// Expire drops finished effects and reports whether any were dropped.
func (o *EffectOrchestrator) Expire(now time.Time) bool {
	dropped := false
	for target, e := range o.active {
		if e.Done(now) {
			delete(o.active, target)
			dropped = true
		}
	}
	return dropped
}

// Active returns the effect bound to a row.
func (o *EffectOrchestrator) Active(target string) (Effect, bool) {
	e, ok := o.active[target]
	return e, ok
}

// Snapshot returns all running effects ordered by target.
func (o *EffectOrchestrator) Snapshot() []Effect {
	out := make([]Effect, 0, len(o.active))
	for _, e := range o.active {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

// Reset drops all effects, used on reconfiguration.
func (o *EffectOrchestrator) Reset() {
	o.active = make(map[string]Effect)
	o.tableShown = false
}
