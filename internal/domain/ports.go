package domain

import "context"

type RemoteClient interface {
	FetchProjects(ctx context.Context) ([]Project, error)
	FetchPipelines(ctx context.Context, projectID int64) ([]Pipeline, error)
	FetchJobs(ctx context.Context, projectID, pipelineID int64) ([]Job, error)
	// FetchJobLog returns the raw log of one job.
	FetchJobLog(ctx context.Context, projectID, jobID int64) (string, error)
}

// Notification is a desktop message about a finished pipeline. Critical
// ones ask the desktop to keep them until dismissed.
type Notification struct {
	Title    string
	Body     string
	URL      string
	Critical bool
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type StatusCache interface {
	Write(ctx context.Context, s StatusSummary) error
}

type Clipboard interface {
	Copy(text string) error
}

type Browser interface {
	Open(ctx context.Context, url string) error
}

// FavoritesStore persists the favorite project paths.
type FavoritesStore interface {
	SaveFavorites(paths []string) error
}
