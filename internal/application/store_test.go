package application

import (
	"errors"
	"testing"
	"time"

	"github.com/davarch/ci-dash/internal/domain"
)

func projectsSnap(ps ...domain.Project) domain.Snapshot {
	return domain.Snapshot{Resource: domain.ProjectsResource(), Projects: ps}
}

func pipelinesSnap(projectID int64, ps ...domain.Pipeline) domain.Snapshot {
	return domain.Snapshot{Resource: domain.PipelinesResource(projectID), Pipelines: ps}
}

func jobsSnap(projectID, pipelineID int64, js ...domain.Job) domain.Snapshot {
	return domain.Snapshot{Resource: domain.JobsResource(projectID, pipelineID), Jobs: js}
}

func mustApply(t *testing.T, s *Store, snap domain.Snapshot) []domain.Event {
	t.Helper()
	events, err := s.Apply(snap)
	if err != nil {
		t.Fatalf("apply %s: %v", snap.Resource, err)
	}
	return events
}

func countEvents[T domain.Event](events []domain.Event) int {
	n := 0
	for _, ev := range events {
		if _, ok := ev.(T); ok {
			n++
		}
	}
	return n
}

func TestStore_ApplyIsIdempotent(t *testing.T) {
	s := NewStore()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	snaps := []domain.Snapshot{
		projectsSnap(domain.Project{ID: 1, Path: "g/a", LastActivity: at}),
		pipelinesSnap(1, domain.Pipeline{ID: 42, Ref: "main", Status: domain.StatusRunning}),
		jobsSnap(1, 42, domain.Job{ID: 2, Name: "b"}, domain.Job{ID: 1, Name: "a"}),
	}

	for _, snap := range snaps {
		if events := mustApply(t, s, snap); len(events) == 0 {
			t.Fatalf("first apply of %s produced no events", snap.Resource)
		}
		if events := mustApply(t, s, snap); len(events) != 0 {
			t.Fatalf("second apply of %s produced %v", snap.Resource, events)
		}
	}
}

func TestStore_PipelineStatusChange(t *testing.T) {
	s := NewStore()
	mustApply(t, s, projectsSnap(domain.Project{ID: 1, Path: "g/a"}))
	mustApply(t, s, pipelinesSnap(1,
		domain.Pipeline{ID: 41, Status: domain.StatusSuccess},
		domain.Pipeline{ID: 42, Status: domain.StatusRunning},
	))

	events := mustApply(t, s, pipelinesSnap(1,
		domain.Pipeline{ID: 41, Status: domain.StatusSuccess},
		domain.Pipeline{ID: 42, Status: domain.StatusSuccess},
	))

	if n := countEvents[domain.PipelineStatusChanged](events); n != 1 {
		t.Fatalf("expected exactly one status event, got %d: %v", n, events)
	}
	ev := events[0].(domain.PipelineStatusChanged)
	if ev.PipelineID != 42 || ev.Old != domain.StatusRunning || ev.New != domain.StatusSuccess {
		t.Errorf("unexpected event: %+v", ev)
	}
	if countEvents[domain.PipelineListChanged](events) != 0 {
		t.Error("status-only change should not report a list change")
	}

	p, _ := s.Project(1)
	if p.LastStatus != domain.StatusSuccess {
		t.Errorf("project last status = %s, want success", p.LastStatus)
	}
	if countEvents[domain.ProjectListChanged](events) != 1 {
		t.Error("last status change should report a project list change")
	}
}

func TestStore_PipelinesNewestFirstAndDeduplicated(t *testing.T) {
	s := NewStore()
	mustApply(t, s, projectsSnap(domain.Project{ID: 1}))
	mustApply(t, s, pipelinesSnap(1,
		domain.Pipeline{ID: 40, Status: domain.StatusFailed},
		domain.Pipeline{ID: 42, Status: domain.StatusPending},
		domain.Pipeline{ID: 40, Status: domain.StatusSuccess},
		domain.Pipeline{ID: 41, Status: domain.StatusSuccess},
	))

	got := s.Pipelines(1)
	want := []int64{42, 41, 40}
	if len(got) != len(want) {
		t.Fatalf("expected %d pipelines, got %d", len(want), len(got))
	}
	for i, p := range got {
		if p.ID != want[i] {
			t.Errorf("position %d = %d, want %d", i, p.ID, want[i])
		}
	}
	if got[2].Status != domain.StatusSuccess {
		t.Errorf("duplicate should keep the last entry, got %s", got[2].Status)
	}
}

func TestStore_RemovalCascades(t *testing.T) {
	s := NewStore()
	mustApply(t, s, projectsSnap(domain.Project{ID: 1}, domain.Project{ID: 2}))
	mustApply(t, s, pipelinesSnap(1, domain.Pipeline{ID: 42}))
	mustApply(t, s, jobsSnap(1, 42, domain.Job{ID: 7}))

	events := mustApply(t, s, projectsSnap(domain.Project{ID: 2}))
	if countEvents[domain.ProjectListChanged](events) != 1 {
		t.Fatalf("expected one ProjectListChanged, got %v", events)
	}
	if _, ok := s.Pipeline(42); ok {
		t.Error("pipeline of removed project still present")
	}
	if _, ok := s.Job(7); ok {
		t.Error("job of removed project still present")
	}
}

func TestStore_PipelineRemovalReportsListChange(t *testing.T) {
	s := NewStore()
	mustApply(t, s, projectsSnap(domain.Project{ID: 1}))
	mustApply(t, s, pipelinesSnap(1, domain.Pipeline{ID: 41}, domain.Pipeline{ID: 42}))

	events := mustApply(t, s, pipelinesSnap(1, domain.Pipeline{ID: 42}))
	if countEvents[domain.PipelineListChanged](events) != 1 {
		t.Fatalf("expected one PipelineListChanged, got %v", events)
	}
	if _, ok := s.Pipeline(41); ok {
		t.Error("removed pipeline still present")
	}
}

func TestStore_UnknownParent(t *testing.T) {
	s := NewStore()

	if _, err := s.Apply(pipelinesSnap(9, domain.Pipeline{ID: 1})); !errors.Is(err, domain.ErrUnknownEntity) {
		t.Errorf("pipelines for unknown project: got %v", err)
	}
	if _, err := s.Apply(jobsSnap(9, 1, domain.Job{ID: 1})); !errors.Is(err, domain.ErrUnknownEntity) {
		t.Errorf("jobs for unknown pipeline: got %v", err)
	}
}

func TestStore_JobsKeepOrderAndReportChanges(t *testing.T) {
	s := NewStore()
	mustApply(t, s, projectsSnap(domain.Project{ID: 1}))
	mustApply(t, s, pipelinesSnap(1, domain.Pipeline{ID: 42, Status: domain.StatusRunning}))

	mustApply(t, s, jobsSnap(1, 42,
		domain.Job{ID: 3, Stage: "build", Status: domain.StatusSuccess},
		domain.Job{ID: 1, Stage: "test", Status: domain.StatusRunning},
		domain.Job{ID: 2, Stage: "test", Status: domain.StatusRunning},
	))

	jobs := s.Jobs(42)
	if len(jobs) != 3 || jobs[0].ID != 3 || jobs[1].ID != 1 || jobs[2].ID != 2 {
		t.Fatalf("jobs not in received order: %+v", jobs)
	}

	events := mustApply(t, s, jobsSnap(1, 42,
		domain.Job{ID: 3, Stage: "build", Status: domain.StatusSuccess},
		domain.Job{ID: 1, Stage: "test", Status: domain.StatusFailed},
		domain.Job{ID: 2, Stage: "test", Status: domain.StatusSuccess},
	))

	if n := countEvents[domain.JobStatusChanged](events); n != 2 {
		t.Fatalf("expected 2 job status events, got %v", events)
	}
	if events[0].(domain.JobStatusChanged).JobID != 1 || events[1].(domain.JobStatusChanged).JobID != 2 {
		t.Errorf("job events not in id order: %v", events)
	}
	if countEvents[domain.JobListChanged](events) != 0 {
		t.Error("status-only change should not report a list change")
	}

	pl, _ := s.Pipeline(42)
	if pl.Status != domain.StatusRunning {
		t.Errorf("pipeline status must not be derived from jobs, got %s", pl.Status)
	}
}

func TestStore_PipelineRefetchKeepsJobs(t *testing.T) {
	s := NewStore()
	mustApply(t, s, projectsSnap(domain.Project{ID: 1}))
	mustApply(t, s, pipelinesSnap(1, domain.Pipeline{ID: 42}))
	mustApply(t, s, jobsSnap(1, 42, domain.Job{ID: 7}))

	mustApply(t, s, pipelinesSnap(1, domain.Pipeline{ID: 42, Status: domain.StatusSuccess}))

	if jobs := s.Jobs(42); len(jobs) != 1 {
		t.Fatalf("jobs lost on pipeline refetch: %+v", jobs)
	}
}

func TestStore_FavoritesSurviveRefetchAndClear(t *testing.T) {
	s := NewStore()
	s.SetFavoritePaths([]string{"g/a"})

	mustApply(t, s, projectsSnap(domain.Project{ID: 1, Path: "g/a"}, domain.Project{ID: 2, Path: "g/b"}))
	if p, _ := s.Project(1); !p.Favorite {
		t.Fatal("configured favorite not applied")
	}

	if !s.SetFavorite(2, true) {
		t.Fatal("SetFavorite reported no change")
	}
	if s.SetFavorite(2, true) {
		t.Error("SetFavorite twice should report no change")
	}
	mustApply(t, s, projectsSnap(domain.Project{ID: 1, Path: "g/a"}, domain.Project{ID: 2, Path: "g/b"}))
	if p, _ := s.Project(2); !p.Favorite {
		t.Error("favorite lost on refetch")
	}

	s.Clear()
	mustApply(t, s, projectsSnap(domain.Project{ID: 2, Path: "g/b"}))
	if p, _ := s.Project(2); !p.Favorite {
		t.Error("favorite lost on clear")
	}
	if got := s.FavoritePaths(); len(got) != 2 || got[0] != "g/a" || got[1] != "g/b" {
		t.Errorf("unexpected favorite paths: %v", got)
	}
}

func TestStore_Summary(t *testing.T) {
	s := NewStore()
	mustApply(t, s, projectsSnap(domain.Project{ID: 1}, domain.Project{ID: 2}, domain.Project{ID: 3}))
	mustApply(t, s, pipelinesSnap(1, domain.Pipeline{ID: 10, Status: domain.StatusRunning}))
	mustApply(t, s, pipelinesSnap(2, domain.Pipeline{ID: 20, Status: domain.StatusFailed}))
	mustApply(t, s, pipelinesSnap(3, domain.Pipeline{ID: 30, Status: domain.StatusSuccess}))

	sum := s.Summary()
	if sum.Projects != 3 || sum.Running != 1 || sum.Failed != 1 || sum.Succeeded != 1 {
		t.Errorf("unexpected summary: %+v", sum)
	}
}
