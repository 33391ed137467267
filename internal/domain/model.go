package domain

import (
	"strconv"
	"time"
)

type Status string

const (
	StatusCreated  Status = "created"
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
	StatusSkipped  Status = "skipped"
)

// Active reports whether a pipeline or job in this status can still change.
func (s Status) Active() bool {
	switch s {
	case StatusCreated, StatusPending, StatusRunning:
		return true
	default:
		return false
	}
}

type Project struct {
	ID           int64
	Name         string
	Path         string
	WebURL       string
	LastStatus   Status
	LastActivity time.Time
	Favorite     bool
}

type Pipeline struct {
	ID        int64
	ProjectID int64
	Ref       string
	Status    Status
	WebURL    string
	CreatedAt time.Time
	Duration  time.Duration
	Jobs      []int64
}

type Job struct {
	ID         int64
	PipelineID int64
	Name       string
	Stage      string
	Status     Status
	StartedAt  time.Time
	FinishedAt time.Time
	WebURL     string
	HasLog     bool
}

type ResourceKind int

const (
	KindProjects ResourceKind = iota
	KindPipelines
	KindJobs
)

func (k ResourceKind) String() string {
	switch k {
	case KindProjects:
		return "projects"
	case KindPipelines:
		return "pipelines"
	case KindJobs:
		return "jobs"
	default:
		return "unknown"
	}
}

// Resource identifies one fetchable collection. ProjectID is set for
// pipelines and jobs, PipelineID for jobs only.
type Resource struct {
	Kind       ResourceKind
	ProjectID  int64
	PipelineID int64
}

func ProjectsResource() Resource { return Resource{Kind: KindProjects} }

func PipelinesResource(projectID int64) Resource {
	return Resource{Kind: KindPipelines, ProjectID: projectID}
}

func JobsResource(projectID, pipelineID int64) Resource {
	return Resource{Kind: KindJobs, ProjectID: projectID, PipelineID: pipelineID}
}

func (r Resource) String() string {
	switch r.Kind {
	case KindPipelines:
		return "pipelines/" + strconv.FormatInt(r.ProjectID, 10)
	case KindJobs:
		return "jobs/" + strconv.FormatInt(r.ProjectID, 10) + "/" + strconv.FormatInt(r.PipelineID, 10)
	default:
		return r.Kind.String()
	}
}

// Snapshot is the full collection returned by one fetch of Resource.
// Only the slice matching Resource.Kind is read.
type Snapshot struct {
	Resource  Resource
	Projects  []Project
	Pipelines []Pipeline
	Jobs      []Job
}

// StatusSummary is the condensed view written for status bars.
type StatusSummary struct {
	Projects  int
	Running   int
	Failed    int
	Succeeded int
	Retrieved int64
}
