package gitlab_http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/davarch/ci-dash/internal/domain"
)

type Client struct {
	baseUrl string
	token   string
	hc      *http.Client
}

// New builds a client for a GitLab instance. Each call is bounded by
// timeout; callers may shorten it through the context.
func New(baseUrl string, token string, timeout time.Duration) *Client {
	tr := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		baseUrl: trimSlash(baseUrl),
		token:   token,
		hc:      &http.Client{Transport: tr, Timeout: timeout},
	}
}

type projectDTO struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	PathWithNamespace string    `json:"path_with_namespace"`
	WebURL            string    `json:"web_url"`
	LastActivityAt    time.Time `json:"last_activity_at"`
}

type pipelineDTO struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	Ref       string    `json:"ref"`
	Status    string    `json:"status"`
	WebURL    string    `json:"web_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Duration  *float64  `json:"duration"`
}

type jobDTO struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Stage      string     `json:"stage"`
	Status     string     `json:"status"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	WebURL     string     `json:"web_url"`
	Pipeline   struct {
		ID int64 `json:"id"`
	} `json:"pipeline"`
	Artifacts []struct {
		FileType string `json:"file_type"`
	} `json:"artifacts"`
}

func (c *Client) FetchProjects(ctx context.Context) ([]domain.Project, error) {
	q := url.Values{}
	q.Set("membership", "true")
	q.Set("archived", "false")
	q.Set("order_by", "last_activity_at")
	q.Set("per_page", "100")

	var list []projectDTO
	if err := c.get(ctx, "/projects?"+q.Encode(), &list); err != nil {
		return nil, err
	}

	out := make([]domain.Project, 0, len(list))
	for _, p := range list {
		out = append(out, domain.Project{
			ID:           p.ID,
			Name:         p.Name,
			Path:         p.PathWithNamespace,
			WebURL:       p.WebURL,
			LastActivity: p.LastActivityAt,
		})
	}
	return out, nil
}

func (c *Client) FetchPipelines(ctx context.Context, projectID int64) ([]domain.Pipeline, error) {
	path := fmt.Sprintf("/projects/%d/pipelines?per_page=20", projectID)

	var list []pipelineDTO
	if err := c.get(ctx, path, &list); err != nil {
		return nil, err
	}

	out := make([]domain.Pipeline, 0, len(list))
	for _, p := range list {
		pl := domain.Pipeline{
			ID:        p.ID,
			ProjectID: projectID,
			Ref:       p.Ref,
			Status:    mapStatus(p.Status),
			WebURL:    p.WebURL,
			CreatedAt: p.CreatedAt,
		}
		if p.Duration != nil {
			pl.Duration = time.Duration(*p.Duration * float64(time.Second))
		}
		out = append(out, pl)
	}
	return out, nil
}

func (c *Client) FetchJobs(ctx context.Context, projectID, pipelineID int64) ([]domain.Job, error) {
	path := fmt.Sprintf("/projects/%d/pipelines/%d/jobs?per_page=100", projectID, pipelineID)

	var list []jobDTO
	if err := c.get(ctx, path, &list); err != nil {
		return nil, err
	}

	// GitLab lists jobs newest first; stage order is the reverse.
	out := make([]domain.Job, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		j := list[i]
		job := domain.Job{
			ID:         j.ID,
			PipelineID: pipelineID,
			Name:       j.Name,
			Stage:      j.Stage,
			Status:     mapStatus(j.Status),
			WebURL:     j.WebURL,
			HasLog:     hasTrace(j),
		}
		if j.StartedAt != nil {
			job.StartedAt = *j.StartedAt
		}
		if j.FinishedAt != nil {
			job.FinishedAt = *j.FinishedAt
		}
		out = append(out, job)
	}
	return out, nil
}

// FetchJobLog returns the raw trace of a job.
func (c *Client) FetchJobLog(ctx context.Context, projectID, jobID int64) (string, error) {
	resp, err := c.do(ctx, fmt.Sprintf("/projects/%d/jobs/%d/trace", projectID, jobID), "text/plain")
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.FetchError{Kind: domain.FailureNetwork, Status: resp.StatusCode, Err: err}
	}
	return string(b), nil
}

func hasTrace(j jobDTO) bool {
	for _, a := range j.Artifacts {
		if a.FileType == "trace" {
			return true
		}
	}
	return j.StartedAt != nil
}

// do performs one authenticated GET. Every failure is returned as a
// *domain.FetchError; on success the caller closes the body.
func (c *Client) do(ctx context.Context, path, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseUrl+"/api/v4"+path, nil)
	if err != nil {
		return nil, &domain.FetchError{Kind: domain.FailureNetwork, Err: err}
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)
	req.Header.Set("Accept", accept)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &domain.FetchError{Kind: domain.FailureNetwork, Err: err}
	}

	if err := classify(resp); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// get decodes the JSON body of path into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, path, "application/json")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return &domain.FetchError{Kind: domain.FailureNetwork, Err: err}
		}
		return &domain.FetchError{Kind: domain.FailureDecode, Status: resp.StatusCode, Err: err}
	}
	return nil
}

func classify(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code < 300:
		return nil
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return &domain.FetchError{Kind: domain.FailureUnauthorized, Status: code}
	case code == http.StatusNotFound:
		return &domain.FetchError{Kind: domain.FailureNotFound, Status: code}
	case code == http.StatusTooManyRequests:
		fe := &domain.FetchError{Kind: domain.FailureRateLimited, Status: code}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if sec, _ := strconv.Atoi(ra); sec > 0 {
				fe.RetryAfter = time.Duration(sec) * time.Second
			}
		}
		return fe
	default:
		return &domain.FetchError{Kind: domain.FailureNetwork, Status: code, Err: fmt.Errorf("gitlab %s", resp.Status)}
	}
}

func mapStatus(s string) domain.Status {
	switch s {
	case "created":
		return domain.StatusCreated
	case "pending", "waiting_for_resource", "preparing", "scheduled":
		return domain.StatusPending
	case "running":
		return domain.StatusRunning
	case "success":
		return domain.StatusSuccess
	case "failed":
		return domain.StatusFailed
	case "canceled", "canceling":
		return domain.StatusCanceled
	case "skipped", "manual":
		return domain.StatusSkipped
	default:
		return domain.StatusCreated
	}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
