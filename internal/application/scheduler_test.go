package application

import (
	"errors"
	"testing"
	"time"

	"github.com/davarch/ci-dash/internal/domain"
)

var (
	t0          = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	errNetwork  = &domain.FetchError{Kind: domain.FailureNetwork, Err: errors.New("connection refused")}
	errAuth     = &domain.FetchError{Kind: domain.FailureUnauthorized, Status: 401}
	errTooMany  = &domain.FetchError{Kind: domain.FailureRateLimited, Status: 429, RetryAfter: 10 * time.Minute}
	projectsRes = domain.ProjectsResource()
)

func within(d, want time.Duration) bool {
	lo := time.Duration(float64(want) * (1 - jitterFactor))
	hi := time.Duration(float64(want) * (1 + jitterFactor))
	return d >= lo && d <= hi
}

func TestScheduler_TrackIsDueImmediately(t *testing.T) {
	s := NewScheduler(10*time.Second, 5*time.Minute)
	s.Track(projectsRes, t0)

	due := s.PollDue(t0)
	if len(due) != 1 || due[0] != projectsRes {
		t.Fatalf("expected projects due, got %v", due)
	}
	if !s.InFlight(projectsRes) {
		t.Error("polled resource should be in flight")
	}
}

func TestScheduler_NoDuplicateInFlight(t *testing.T) {
	s := NewScheduler(10*time.Second, 5*time.Minute)
	s.Track(projectsRes, t0)

	s.PollDue(t0)
	if due := s.PollDue(t0.Add(time.Hour)); len(due) != 0 {
		t.Fatalf("resource polled twice while in flight: %v", due)
	}

	s.Succeeded(projectsRes, t0.Add(time.Second))
	if due := s.PollDue(t0.Add(5 * time.Second)); len(due) != 0 {
		t.Fatalf("resource due before its interval: %v", due)
	}
	if due := s.PollDue(t0.Add(11 * time.Second)); len(due) != 1 {
		t.Fatalf("resource not due after its interval: %v", due)
	}
}

func TestScheduler_BackoffGrowsWithinJitterAndCap(t *testing.T) {
	every := 10 * time.Second
	maxInterval := 60 * time.Second
	s := NewScheduler(every, maxInterval)
	s.Track(projectsRes, t0)

	want := []time.Duration{20 * time.Second, 40 * time.Second}
	var prev time.Duration
	now := t0
	for i := 0; i < 6; i++ {
		s.PollDue(now)
		s.Failed(projectsRes, now, errNetwork)
		d := s.NextDelay(projectsRes)

		if i < len(want) && !within(d, want[i]) {
			t.Errorf("failure %d: delay %v not within 10%% of %v", i+1, d, want[i])
		}
		if d > maxInterval {
			t.Errorf("failure %d: delay %v above cap %v", i+1, d, maxInterval)
		}
		if i < 2 && d <= prev {
			t.Errorf("failure %d: delay %v did not grow from %v", i+1, d, prev)
		}
		prev = d

		next, _ := s.NextDue(projectsRes)
		if !next.Equal(now.Add(d)) {
			t.Errorf("failure %d: next due %v, want %v", i+1, next, now.Add(d))
		}
		now = next
	}
	if s.Failures(projectsRes) != 6 {
		t.Errorf("failures = %d, want 6", s.Failures(projectsRes))
	}
}

func TestScheduler_ThreeFailuresStrictlyIncrease(t *testing.T) {
	s := NewScheduler(10*time.Second, time.Hour)
	s.Track(projectsRes, t0)

	var delays []time.Duration
	now := t0
	for i := 0; i < 3; i++ {
		s.PollDue(now)
		s.Failed(projectsRes, now, errNetwork)
		delays = append(delays, s.NextDelay(projectsRes))
		now, _ = s.NextDue(projectsRes)
	}
	if !(delays[0] < delays[1] && delays[1] < delays[2]) {
		t.Fatalf("delays not strictly increasing: %v", delays)
	}
}

func TestScheduler_SuccessResetsBackoff(t *testing.T) {
	s := NewScheduler(10*time.Second, time.Hour)
	s.Track(projectsRes, t0)

	for i := 0; i < 3; i++ {
		s.PollDue(t0.Add(time.Duration(i) * time.Hour))
		s.Failed(projectsRes, t0, errNetwork)
	}
	s.PollDue(t0.Add(10 * time.Hour))
	s.Succeeded(projectsRes, t0)

	if s.Failures(projectsRes) != 0 || s.NextDelay(projectsRes) != 10*time.Second {
		t.Fatalf("success did not reset: failures=%d delay=%v", s.Failures(projectsRes), s.NextDelay(projectsRes))
	}

	s.PollDue(t0.Add(time.Hour))
	s.Failed(projectsRes, t0, errNetwork)
	if d := s.NextDelay(projectsRes); !within(d, 20*time.Second) {
		t.Errorf("backoff after success restarted at %v, want ~20s", d)
	}
}

func TestScheduler_RateLimitHonoursRetryAfter(t *testing.T) {
	s := NewScheduler(10*time.Second, 5*time.Minute)
	s.Track(projectsRes, t0)

	s.PollDue(t0)
	s.Failed(projectsRes, t0, errTooMany)

	if d := s.NextDelay(projectsRes); d != 10*time.Minute {
		t.Fatalf("delay = %v, want the server's 10m", d)
	}
}

func TestScheduler_AuthFailurePausesUntilReset(t *testing.T) {
	s := NewScheduler(10*time.Second, 5*time.Minute)
	s.Track(projectsRes, t0)

	s.PollDue(t0)
	s.Failed(projectsRes, t0, errAuth)

	if !s.Paused(projectsRes) {
		t.Fatal("auth failure should pause the resource")
	}
	s.Refresh(domain.KindProjects, t0)
	s.Expedite(projectsRes, t0)
	if due := s.PollDue(t0.Add(24 * time.Hour)); len(due) != 0 {
		t.Fatalf("paused resource polled: %v", due)
	}

	s.Reset(t0)
	if s.Paused(projectsRes) {
		t.Fatal("reset should clear the pause")
	}
	if due := s.PollDue(t0); len(due) != 1 {
		t.Fatalf("resource not due after reset: %v", due)
	}
}

func TestScheduler_RefreshAndExpedite(t *testing.T) {
	s := NewScheduler(time.Minute, time.Hour)
	jobs := domain.JobsResource(1, 42)
	pipes := domain.PipelinesResource(1)
	s.Track(pipes, t0)
	s.Track(jobs, t0)

	s.PollDue(t0)
	s.Succeeded(pipes, t0)
	s.Succeeded(jobs, t0)

	s.Expedite(jobs, t0.Add(time.Second))
	due := s.PollDue(t0.Add(time.Second))
	if len(due) != 1 || due[0] != jobs {
		t.Fatalf("expected only jobs due, got %v", due)
	}

	s.Refresh(domain.KindPipelines, t0.Add(2*time.Second))
	due = s.PollDue(t0.Add(2 * time.Second))
	if len(due) != 1 || due[0] != pipes {
		t.Fatalf("expected only pipelines due, got %v", due)
	}
}

func TestScheduler_UntrackAndAbandon(t *testing.T) {
	s := NewScheduler(time.Minute, time.Hour)
	r := domain.PipelinesResource(7)
	s.Track(r, t0)

	s.PollDue(t0)
	s.Abandon(r)
	if s.InFlight(r) {
		t.Fatal("abandon should release the in-flight mark")
	}
	if due := s.PollDue(t0); len(due) != 1 {
		t.Fatalf("abandoned resource should be due again, got %v", due)
	}

	s.Untrack(r)
	if s.Tracked(r) {
		t.Fatal("resource still tracked")
	}
	s.Succeeded(r, t0)
	s.Failed(r, t0, errNetwork)
	if s.Tracked(r) {
		t.Fatal("completion re-tracked an untracked resource")
	}
}

func TestScheduler_RetrackKeepsFetchInFlight(t *testing.T) {
	s := NewScheduler(time.Minute, time.Hour)
	r := domain.PipelinesResource(2)
	s.Track(r, t0)

	if due := s.PollDue(t0); len(due) != 1 {
		t.Fatalf("expected the resource due, got %v", due)
	}
	s.Untrack(r)
	s.Track(r, t0)

	if !s.InFlight(r) {
		t.Fatal("re-tracking forgot the running fetch")
	}
	if due := s.PollDue(t0); len(due) != 0 {
		t.Fatalf("second fetch handed out while the first is running: %v", due)
	}
	if s.InFlightCount() != 1 {
		t.Errorf("in flight = %d, want 1", s.InFlightCount())
	}

	s.Succeeded(r, t0)
	if s.InFlight(r) {
		t.Fatal("completion should release the resource")
	}
	if due := s.PollDue(t0.Add(time.Minute)); len(due) != 1 {
		t.Fatalf("resource not due after its interval: %v", due)
	}
}

func TestScheduler_ResetAndClearReleaseFetches(t *testing.T) {
	s := NewScheduler(time.Minute, time.Hour)
	r := domain.PipelinesResource(2)
	s.Track(r, t0)
	s.PollDue(t0)
	s.Untrack(r)

	s.Reset(t0)
	if s.InFlightCount() != 0 {
		t.Fatal("reset kept an untracked fetch in flight")
	}

	s.Track(r, t0)
	s.PollDue(t0)
	s.Clear()
	if s.InFlight(r) {
		t.Fatal("clear kept the fetch in flight")
	}
}

func TestScheduler_PollDueIsSorted(t *testing.T) {
	s := NewScheduler(time.Minute, time.Hour)
	s.Track(domain.JobsResource(1, 5), t0)
	s.Track(domain.PipelinesResource(2), t0)
	s.Track(domain.PipelinesResource(1), t0)
	s.Track(projectsRes, t0)

	due := s.PollDue(t0)
	want := []domain.Resource{projectsRes, domain.PipelinesResource(1), domain.PipelinesResource(2), domain.JobsResource(1, 5)}
	if len(due) != len(want) {
		t.Fatalf("expected %d resources, got %v", len(want), due)
	}
	for i := range want {
		if due[i] != want[i] {
			t.Errorf("position %d = %v, want %v", i, due[i], want[i])
		}
	}
}
