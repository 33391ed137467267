package application

import (
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/davarch/ci-dash/internal/domain"
)

const jitterFactor = 0.1

type schedule struct {
	next     time.Time
	delay    time.Duration
	failures int
	paused   bool
	bo       *backoff.ExponentialBackOff
}

// Scheduler decides which resources are due for a fetch. At most one
// fetch per resource is in flight, even across Untrack and Track; failures
// push the next attempt out exponentially up to maxInterval.
type Scheduler struct {
	every       time.Duration
	maxInterval time.Duration

	res map[domain.Resource]*schedule

	// busy outlives the schedule: only a completion, Reset or Clear
	// releases a resource.
	busy map[domain.Resource]bool
}

func NewScheduler(every, maxInterval time.Duration) *Scheduler {
	if maxInterval < every {
		maxInterval = every
	}
	return &Scheduler{
		every:       every,
		maxInterval: maxInterval,
		res:         make(map[domain.Resource]*schedule),
		busy:        make(map[domain.Resource]bool),
	}
}

func (s *Scheduler) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * s.every
	bo.Multiplier = 2
	bo.RandomizationFactor = jitterFactor
	bo.MaxInterval = s.maxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// SetIntervals changes the base and cap. Pending due times are kept.
func (s *Scheduler) SetIntervals(every, maxInterval time.Duration) {
	if maxInterval < every {
		maxInterval = every
	}
	s.every, s.maxInterval = every, maxInterval
	for _, sc := range s.res {
		sc.bo = s.newBackOff()
		for i := 0; i < sc.failures; i++ {
			sc.bo.NextBackOff()
		}
	}
}

// Track registers a resource, due immediately. Known resources are left alone.
func (s *Scheduler) Track(r domain.Resource, now time.Time) {
	if _, ok := s.res[r]; ok {
		return
	}
	s.res[r] = &schedule{next: now, bo: s.newBackOff()}
}

func (s *Scheduler) Untrack(r domain.Resource) {
	delete(s.res, r)
}

func (s *Scheduler) Tracked(r domain.Resource) bool {
	_, ok := s.res[r]
	return ok
}

// Resources returns every tracked resource of kind k.
func (s *Scheduler) Resources(k domain.ResourceKind) []domain.Resource {
	var out []domain.Resource
	for r := range s.res {
		if r.Kind == k {
			out = append(out, r)
		}
	}
	sortResources(out)
	return out
}

// PollDue returns the resources whose due time has passed and that have
// no fetch in flight, and marks them in flight.
func (s *Scheduler) PollDue(now time.Time) []domain.Resource {
	var due []domain.Resource
	for r, sc := range s.res {
		if s.busy[r] || sc.paused || now.Before(sc.next) {
			continue
		}
		s.busy[r] = true
		due = append(due, r)
	}
	sortResources(due)
	return due
}

func (s *Scheduler) Succeeded(r domain.Resource, now time.Time) {
	delete(s.busy, r)
	sc, ok := s.res[r]
	if !ok {
		return
	}
	sc.failures = 0
	sc.bo.Reset()
	sc.delay = s.every
	sc.next = now.Add(s.every)
}

// Failed records a failed fetch. Unauthorized pauses the resource until
// Reset; a rate limit never retries sooner than the server asked.
func (s *Scheduler) Failed(r domain.Resource, now time.Time, err error) {
	delete(s.busy, r)
	sc, ok := s.res[r]
	if !ok {
		return
	}
	sc.failures++

	if domain.IsAuthFailure(err) {
		sc.paused = true
		return
	}

	d := sc.bo.NextBackOff()
	if d == backoff.Stop || d > s.maxInterval {
		d = s.maxInterval
	}
	if ra := domain.RetryAfter(err); ra > d {
		d = ra
	}
	sc.delay = d
	sc.next = now.Add(d)
}

// Abandon releases the in-flight mark without touching the schedule: the
// fetch never started, or its result is of no use.
func (s *Scheduler) Abandon(r domain.Resource) {
	delete(s.busy, r)
}

// Refresh makes every unpaused resource of kind k due now.
func (s *Scheduler) Refresh(k domain.ResourceKind, now time.Time) {
	for r, sc := range s.res {
		if r.Kind == k && !sc.paused {
			sc.next = now
		}
	}
}

// Expedite makes one resource due now unless it is paused.
func (s *Scheduler) Expedite(r domain.Resource, now time.Time) {
	if sc, ok := s.res[r]; ok && !sc.paused {
		sc.next = now
	}
}

// Reset forgets failures, pauses and in-flight marks and makes everything
// due now.
func (s *Scheduler) Reset(now time.Time) {
	s.busy = make(map[domain.Resource]bool)
	for _, sc := range s.res {
		sc.paused = false
		sc.failures = 0
		sc.delay = 0
		sc.bo.Reset()
		sc.next = now
	}
}

func (s *Scheduler) Clear() {
	s.res = make(map[domain.Resource]*schedule)
	s.busy = make(map[domain.Resource]bool)
}

func (s *Scheduler) InFlight(r domain.Resource) bool {
	return s.busy[r]
}

// InFlightCount counts running fetches, tracked or not.
func (s *Scheduler) InFlightCount() int {
	return len(s.busy)
}

func (s *Scheduler) Paused(r domain.Resource) bool {
	sc, ok := s.res[r]
	return ok && sc.paused
}

func (s *Scheduler) Failures(r domain.Resource) int {
	if sc, ok := s.res[r]; ok {
		return sc.failures
	}
	return 0
}

// NextDue reports when r is next due.
func (s *Scheduler) NextDue(r domain.Resource) (time.Time, bool) {
	sc, ok := s.res[r]
	if !ok {
		return time.Time{}, false
	}
	return sc.next, true
}

// NextDelay is the delay chosen by the last Succeeded or Failed call.
func (s *Scheduler) NextDelay(r domain.Resource) time.Duration {
	if sc, ok := s.res[r]; ok {
		return sc.delay
	}
	return 0
}

func sortResources(rs []domain.Resource) {
	sort.Slice(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.ProjectID != b.ProjectID {
			return a.ProjectID < b.ProjectID
		}
		return a.PipelineID < b.PipelineID
	})
}
