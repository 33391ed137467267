package cache_fs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/davarch/ci-dash/internal/domain"
)

// FSCache writes the latest status summary as JSON, for status bars and
// shell prompts to pick up.
type FSCache struct {
	path string
}

func New(path string) *FSCache { return &FSCache{path: path} }

type summaryJSON struct {
	Projects  int   `json:"projects"`
	Running   int   `json:"running"`
	Failed    int   `json:"failed"`
	Succeeded int   `json:"succeeded"`
	Retrieved int64 `json:"retrieved"`
}

func (c *FSCache) Write(_ context.Context, s domain.StatusSummary) error {
	if c.path == "" {
		return errors.New("cache path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}

	tmp := c.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")

	err = enc.Encode(summaryJSON{
		Projects:  s.Projects,
		Running:   s.Running,
		Failed:    s.Failed,
		Succeeded: s.Succeeded,
		Retrieved: s.Retrieved,
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, c.path)
}
