package application

import (
	"time"

	"github.com/davarch/ci-dash/internal/domain"
)

// Frame is an immutable copy of everything the renderer paints. It is
// built on the dispatcher goroutine and handed over whole.
type Frame struct {
	At     time.Time
	Server string

	Mode   Mode
	Query  string
	Filter string
	Prompt string
	Banner Banner

	Projects      []domain.Project
	ProjectIndex  int
	Pipelines     []domain.Pipeline
	PipelineIndex int
	Jobs          []domain.Job

	Effects    map[string]Effect
	Animations bool

	Summary  domain.StatusSummary
	Loading  bool
	Fetching int
}

// Effect returns the effect bound to a row, if one is running.
func (f Frame) Effect(target string) (Effect, bool) {
	e, ok := f.Effects[target]
	return e, ok
}

func (f Frame) SelectedProject() (domain.Project, bool) {
	if f.ProjectIndex < 0 || f.ProjectIndex >= len(f.Projects) {
		return domain.Project{}, false
	}
	return f.Projects[f.ProjectIndex], true
}

func (f Frame) SelectedPipeline() (domain.Pipeline, bool) {
	if f.PipelineIndex < 0 || f.PipelineIndex >= len(f.Pipelines) {
		return domain.Pipeline{}, false
	}
	return f.Pipelines[f.PipelineIndex], true
}

// FailedJob is the first failed job with a log, if the selected pipeline
// has one.
func (f Frame) FailedJob() (domain.Job, bool) {
	return FailedJob(f.Jobs, true)
}

// FailedJob returns the first failed job of jobs, in stage order. With
// withLog set, jobs without a log are skipped.
func FailedJob(jobs []domain.Job, withLog bool) (domain.Job, bool) {
	for _, j := range jobs {
		if j.Status == domain.StatusFailed && (j.HasLog || !withLog) {
			return j, true
		}
	}
	return domain.Job{}, false
}

// FrameSink receives frames. Publish must not block.
type FrameSink interface {
	Publish(Frame)
}

// Mailbox is a FrameSink holding only the latest frame.
type Mailbox struct {
	ch chan Frame
}

func NewMailbox() *Mailbox {
	return &Mailbox{ch: make(chan Frame, 1)}
}

func (m *Mailbox) Publish(f Frame) { offerLatest(m.ch, f) }

func (m *Mailbox) Frames() <-chan Frame { return m.ch }

// offerLatest puts v into a one-slot channel, replacing a value nobody
// has picked up yet.
func offerLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
