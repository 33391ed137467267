package application

import (
	"fmt"
	"slices"
	"sort"

	"github.com/davarch/ci-dash/internal/domain"
)

// Store holds the authoritative snapshot of projects, pipelines and jobs.
// It is not safe for concurrent use; the dispatcher goroutine owns it.
type Store struct {
	projects  map[int64]domain.Project
	pipelines map[int64]domain.Pipeline
	jobs      map[int64]domain.Job

	// pipeline ids per project, newest first
	byProject map[int64][]int64

	favorites map[string]bool
}

func NewStore() *Store {
	s := &Store{favorites: make(map[string]bool)}
	s.Clear()
	return s
}

// Clear drops every entity. Favorites survive since they are local.
func (s *Store) Clear() {
	s.projects = make(map[int64]domain.Project)
	s.pipelines = make(map[int64]domain.Pipeline)
	s.jobs = make(map[int64]domain.Job)
	s.byProject = make(map[int64][]int64)
}

// Apply diffs snap against the held collection for its resource and
// returns the resulting events. Applying the same snapshot twice yields
// no events the second time.
func (s *Store) Apply(snap domain.Snapshot) ([]domain.Event, error) {
	switch snap.Resource.Kind {
	case domain.KindProjects:
		return s.applyProjects(snap.Projects), nil
	case domain.KindPipelines:
		return s.applyPipelines(snap.Resource.ProjectID, snap.Pipelines)
	case domain.KindJobs:
		return s.applyJobs(snap.Resource.PipelineID, snap.Jobs)
	default:
		return nil, fmt.Errorf("apply %s: unsupported resource", snap.Resource)
	}
}

func (s *Store) applyProjects(items []domain.Project) []domain.Event {
	changed := false
	seen := make(map[int64]bool, len(items))

	for _, p := range items {
		seen[p.ID] = true
		old, ok := s.projects[p.ID]
		if ok {
			p.Favorite = old.Favorite
			p.LastStatus = old.LastStatus
		} else {
			p.Favorite = s.favorites[p.Path]
		}
		if !ok || !sameProject(old, p) {
			changed = true
		}
		s.projects[p.ID] = p
	}

	for id := range s.projects {
		if !seen[id] {
			s.removeProject(id)
			changed = true
		}
	}

	if !changed {
		return nil
	}
	return []domain.Event{domain.ProjectListChanged{}}
}

func (s *Store) applyPipelines(projectID int64, items []domain.Pipeline) ([]domain.Event, error) {
	project, ok := s.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("pipelines for project %d: %w", projectID, domain.ErrUnknownEntity)
	}

	incoming := dedupPipelines(items)
	sort.Slice(incoming, func(i, j int) bool { return incoming[i].ID < incoming[j].ID })

	var events []domain.Event
	listChanged := false
	seen := make(map[int64]bool, len(incoming))

	for _, p := range incoming {
		p.ProjectID = projectID
		seen[p.ID] = true

		old, ok := s.pipelines[p.ID]
		if !ok {
			listChanged = true
		} else {
			if p.Jobs == nil {
				p.Jobs = old.Jobs
			}
			if old.Status != p.Status {
				events = append(events, domain.PipelineStatusChanged{
					ProjectID:  projectID,
					PipelineID: p.ID,
					Old:        old.Status,
					New:        p.Status,
				})
			}
			if !samePipeline(old, p) {
				listChanged = true
			}
		}
		s.pipelines[p.ID] = p
	}

	for _, id := range s.byProject[projectID] {
		if !seen[id] {
			s.removePipeline(id)
			listChanged = true
		}
	}

	ids := make([]int64, 0, len(incoming))
	for _, p := range incoming {
		ids = append(ids, p.ID)
	}
	slices.Reverse(ids)
	s.byProject[projectID] = ids

	if listChanged {
		events = append(events, domain.PipelineListChanged{ProjectID: projectID})
	}

	var last domain.Status
	if len(ids) > 0 {
		last = s.pipelines[ids[0]].Status
	}
	if last != project.LastStatus {
		project.LastStatus = last
		s.projects[projectID] = project
		events = append(events, domain.ProjectListChanged{})
	}

	return events, nil
}

func (s *Store) applyJobs(pipelineID int64, items []domain.Job) ([]domain.Event, error) {
	pipeline, ok := s.pipelines[pipelineID]
	if !ok {
		return nil, fmt.Errorf("jobs for pipeline %d: %w", pipelineID, domain.ErrUnknownEntity)
	}

	order := make([]int64, 0, len(items))
	byID := make(map[int64]domain.Job, len(items))
	for _, j := range items {
		if _, dup := byID[j.ID]; !dup {
			order = append(order, j.ID)
		}
		j.PipelineID = pipelineID
		byID[j.ID] = j
	}

	ids := slices.Clone(order)
	slices.Sort(ids)

	var events []domain.Event
	listChanged := !slices.Equal(order, pipeline.Jobs)

	for _, id := range ids {
		j := byID[id]
		old, ok := s.jobs[id]
		if !ok {
			listChanged = true
		} else {
			if old.Status != j.Status {
				events = append(events, domain.JobStatusChanged{
					PipelineID: pipelineID,
					JobID:      id,
					Old:        old.Status,
					New:        j.Status,
				})
			}
			if !sameJob(old, j) {
				listChanged = true
			}
		}
		s.jobs[id] = j
	}

	for _, id := range pipeline.Jobs {
		if _, ok := byID[id]; !ok {
			delete(s.jobs, id)
		}
	}

	pipeline.Jobs = order
	s.pipelines[pipelineID] = pipeline

	if listChanged {
		events = append(events, domain.JobListChanged{PipelineID: pipelineID})
	}
	return events, nil
}

func (s *Store) removeProject(id int64) {
	for _, pid := range s.byProject[id] {
		s.removePipeline(pid)
	}
	delete(s.byProject, id)
	delete(s.projects, id)
}

func (s *Store) removePipeline(id int64) {
	if p, ok := s.pipelines[id]; ok {
		for _, jid := range p.Jobs {
			delete(s.jobs, jid)
		}
	}
	delete(s.pipelines, id)
}

// Projects returns all projects ordered by id.
func (s *Store) Projects() []domain.Project {
	out := make([]domain.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Project(id int64) (domain.Project, bool) {
	p, ok := s.projects[id]
	return p, ok
}

// Pipelines returns the pipelines of a project, newest first.
func (s *Store) Pipelines(projectID int64) []domain.Pipeline {
	ids := s.byProject[projectID]
	out := make([]domain.Pipeline, 0, len(ids))
	for _, id := range ids {
		p := s.pipelines[id]
		p.Jobs = slices.Clone(p.Jobs)
		out = append(out, p)
	}
	return out
}

func (s *Store) Pipeline(id int64) (domain.Pipeline, bool) {
	p, ok := s.pipelines[id]
	p.Jobs = slices.Clone(p.Jobs)
	return p, ok
}

// Jobs returns the jobs of a pipeline in stage order.
func (s *Store) Jobs(pipelineID int64) []domain.Job {
	p, ok := s.pipelines[pipelineID]
	if !ok {
		return nil
	}
	out := make([]domain.Job, 0, len(p.Jobs))
	for _, id := range p.Jobs {
		if j, ok := s.jobs[id]; ok {
			out = append(out, j)
		}
	}
	return out
}

func (s *Store) Job(id int64) (domain.Job, bool) {
	j, ok := s.jobs[id]
	return j, ok
}

// SetFavorite flips the local favorite flag of a project. It reports
// whether anything changed.
func (s *Store) SetFavorite(id int64, fav bool) bool {
	p, ok := s.projects[id]
	if !ok || p.Favorite == fav {
		return false
	}
	p.Favorite = fav
	s.projects[id] = p
	if fav {
		s.favorites[p.Path] = true
	} else {
		delete(s.favorites, p.Path)
	}
	return true
}

// SetFavoritePaths replaces the favorite set and refreshes the flag of
// every known project.
func (s *Store) SetFavoritePaths(paths []string) bool {
	s.favorites = make(map[string]bool, len(paths))
	for _, p := range paths {
		s.favorites[p] = true
	}
	changed := false
	for id, p := range s.projects {
		fav := s.favorites[p.Path]
		if p.Favorite != fav {
			p.Favorite = fav
			s.projects[id] = p
			changed = true
		}
	}
	return changed
}

func (s *Store) FavoritePaths() []string {
	out := make([]string, 0, len(s.favorites))
	for p := range s.favorites {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s *Store) Summary() domain.StatusSummary {
	sum := domain.StatusSummary{Projects: len(s.projects)}
	for _, p := range s.projects {
		switch p.LastStatus {
		case domain.StatusRunning, domain.StatusPending:
			sum.Running++
		case domain.StatusFailed:
			sum.Failed++
		case domain.StatusSuccess:
			sum.Succeeded++
		}
	}
	return sum
}

func dedupPipelines(items []domain.Pipeline) []domain.Pipeline {
	idx := make(map[int64]int, len(items))
	out := make([]domain.Pipeline, 0, len(items))
	for _, p := range items {
		if i, ok := idx[p.ID]; ok {
			out[i] = p
			continue
		}
		idx[p.ID] = len(out)
		out = append(out, p)
	}
	return out
}

func sameProject(a, b domain.Project) bool {
	return a.Name == b.Name &&
		a.Path == b.Path &&
		a.WebURL == b.WebURL &&
		a.LastActivity.Equal(b.LastActivity)
}

func samePipeline(a, b domain.Pipeline) bool {
	return a.Ref == b.Ref &&
		a.WebURL == b.WebURL &&
		a.CreatedAt.Equal(b.CreatedAt) &&
		a.Duration == b.Duration
}

func sameJob(a, b domain.Job) bool {
	return a.Name == b.Name &&
		a.Stage == b.Stage &&
		a.WebURL == b.WebURL &&
		a.HasLog == b.HasLog &&
		a.StartedAt.Equal(b.StartedAt) &&
		a.FinishedAt.Equal(b.FinishedAt)
}
