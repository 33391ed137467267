package domain

import (
	"context"
	"sync"
)

// MockRemote serves canned snapshots. It is safe for use from fetch workers.
type MockRemote struct {
	mu sync.Mutex

	Projects  []Project
	Pipelines map[int64][]Pipeline
	Jobs      map[int64][]Job
	Logs      map[int64]string
	Err       error
	Called    map[ResourceKind]int

	// Block, when set, is received from before answering. A done context
	// ends the wait with the context's error.
	Block chan struct{}
}

func (m *MockRemote) record(ctx context.Context, k ResourceKind) error {
	m.mu.Lock()
	if m.Called == nil {
		m.Called = make(map[ResourceKind]int)
	}
	m.Called[k]++
	block := m.Block
	err := m.Err
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (m *MockRemote) FetchProjects(ctx context.Context) ([]Project, error) {
	if err := m.record(ctx, KindProjects); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Project(nil), m.Projects...), nil
}

func (m *MockRemote) FetchPipelines(ctx context.Context, projectID int64) ([]Pipeline, error) {
	if err := m.record(ctx, KindPipelines); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Pipeline(nil), m.Pipelines[projectID]...), nil
}

func (m *MockRemote) FetchJobs(ctx context.Context, projectID, pipelineID int64) ([]Job, error) {
	if err := m.record(ctx, KindJobs); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Job(nil), m.Jobs[pipelineID]...), nil
}

func (m *MockRemote) FetchJobLog(ctx context.Context, projectID, jobID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	log, ok := m.Logs[jobID]
	if !ok {
		return "", &FetchError{Kind: FailureNotFound, Status: 404}
	}
	return log, nil
}

func (m *MockRemote) Calls(k ResourceKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Called[k]
}

func (m *MockRemote) SetBlock(block chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Block = block
}

func (m *MockRemote) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

func (m *MockRemote) SetJobs(pipelineID int64, js []Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Jobs == nil {
		m.Jobs = make(map[int64][]Job)
	}
	m.Jobs[pipelineID] = js
}

func (m *MockRemote) SetPipelines(projectID int64, ps []Pipeline) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Pipelines == nil {
		m.Pipelines = make(map[int64][]Pipeline)
	}
	m.Pipelines[projectID] = ps
}

type MockNotifier struct {
	mu   sync.Mutex
	Sent []Notification
	Err  error
}

func (n *MockNotifier) Notify(ctx context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, msg)
	return n.Err
}

func (n *MockNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Sent)
}

func (n *MockNotifier) Last() Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.Sent) == 0 {
		return Notification{}
	}
	return n.Sent[len(n.Sent)-1]
}

type MockCache struct {
	mu        sync.Mutex
	Summaries []StatusSummary
	Err       error
}

func (c *MockCache) Write(ctx context.Context, s StatusSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Summaries = append(c.Summaries, s)
	return nil
}

func (c *MockCache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Summaries)
}

type MockClipboard struct {
	mu     sync.Mutex
	Copied []string
	Err    error
}

func (c *MockClipboard) Copy(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Copied = append(c.Copied, text)
	return nil
}

func (c *MockClipboard) Texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Copied...)
}

type MockBrowser struct {
	mu     sync.Mutex
	Opened []string
	Err    error
}

func (b *MockBrowser) Open(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return b.Err
	}
	b.Opened = append(b.Opened, url)
	return nil
}

func (b *MockBrowser) URLs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.Opened...)
}

type MockFavorites struct {
	mu    sync.Mutex
	Saved [][]string
}

func (f *MockFavorites) SaveFavorites(paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Saved = append(f.Saved, append([]string(nil), paths...))
	return nil
}

func (f *MockFavorites) Last() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Saved) == 0 {
		return nil
	}
	return f.Saved[len(f.Saved)-1]
}
