package domain

// Event is a change derived from diffing a snapshot against the store.
// The set of implementations is closed.
type Event interface {
	isEvent()
}

// ProjectListChanged is emitted when projects appear, disappear or change.
type ProjectListChanged struct{}

type PipelineListChanged struct {
	ProjectID int64
}

type PipelineStatusChanged struct {
	ProjectID  int64
	PipelineID int64
	Old        Status
	New        Status
}

type JobListChanged struct {
	PipelineID int64
}

type JobStatusChanged struct {
	PipelineID int64
	JobID      int64
	Old        Status
	New        Status
}

type FetchFailed struct {
	Resource Resource
	Err      error
}

func (ProjectListChanged) isEvent()    {}
func (PipelineListChanged) isEvent()   {}
func (PipelineStatusChanged) isEvent() {}
func (JobListChanged) isEvent()        {}
func (JobStatusChanged) isEvent()      {}
func (FetchFailed) isEvent()           {}
