package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalid marks a configuration that loads but cannot be used.
	ErrInvalid = errors.New("invalid configuration")
	// ErrStore marks a configuration file that cannot be read or written.
	ErrStore = errors.New("configuration store unavailable")
)

type Config struct {
	GitLab struct {
		BaseURL string        `yaml:"base_url"`
		Token   string        `yaml:"token"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"gitlab"`

	Poll struct {
		Interval      time.Duration `yaml:"interval"`
		MaxInterval   time.Duration `yaml:"max_interval"`
		MaxConcurrent int           `yaml:"max_concurrent"`
		ActiveWindow  time.Duration `yaml:"active_window"`
	} `yaml:"poll"`

	UI struct {
		Animations bool     `yaml:"animations"`
		Favorites  []string `yaml:"favorites,omitempty"`
	} `yaml:"ui"`

	Notify struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"notify"`

	Cache struct {
		Path string `yaml:"path"`
	} `yaml:"cache"`

	Log struct {
		Path  string `yaml:"path"`
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// SameServer reports whether switching from c to o keeps the server and
// credentials, so the held data stays valid.
func (c Config) SameServer(o Config) bool {
	return c.GitLab.BaseURL == o.GitLab.BaseURL && c.GitLab.Token == o.GitLab.Token
}

// DefaultPath is $XDG_CONFIG_HOME/ci-dash/config.yaml or its platform
// equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStore, err)
	}
	return filepath.Join(dir, "ci-dash", "config.yaml"), nil
}

// Resolve returns path, or the default path when path is empty.
func Resolve(path string) (string, error) {
	if path != "" {
		return expandHome(path), nil
	}
	return DefaultPath()
}

func defaults() Config {
	var c Config
	c.GitLab.BaseURL = "https://gitlab.com"
	c.GitLab.Timeout = 10 * time.Second
	c.Poll.Interval = 30 * time.Second
	c.Poll.MaxInterval = 5 * time.Minute
	c.Poll.MaxConcurrent = 4
	c.Poll.ActiveWindow = 7 * 24 * time.Hour
	c.UI.Animations = true
	c.Log.Path = expandHome("~/.cache/ci-dash/ci-dash.log")
	c.Log.Level = "info"
	return c
}

// ReadFile returns the defaults overlaid with the YAML file at path,
// without environment overrides or validation.
func ReadFile(path string) (Config, error) {
	c := defaults()
	if path == "" {
		return c, nil
	}

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return c, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return c, nil
}

// Load reads the YAML file at path (a missing file is fine), applies
// environment overrides and validates the result. Errors wrap ErrStore
// or ErrInvalid.
func Load(path string) (Config, error) {
	c, err := ReadFile(path)
	if err != nil {
		return c, err
	}

	if v := os.Getenv("GITLAB_BASE_URL"); v != "" {
		c.GitLab.BaseURL = v
	}

	if v := os.Getenv("GITLAB_TOKEN"); v != "" {
		c.GitLab.Token = v
	}

	if v := os.Getenv("GITLAB_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.GitLab.Timeout = d
		}
	}

	if v := os.Getenv("INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Poll.Interval = d
		}
	}

	if v := os.Getenv("CACHE_PATH"); v != "" {
		c.Cache.Path = v
	}

	if v := os.Getenv("CI_DASH_ANIMATIONS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.UI.Animations = b
		}
	}

	c.Cache.Path = expandHome(c.Cache.Path)
	c.Log.Path = expandHome(c.Log.Path)
	c.GitLab.BaseURL = strings.TrimRight(c.GitLab.BaseURL, "/")

	if c.Poll.Interval <= 0 {
		c.Poll.Interval = 30 * time.Second
	}

	if c.Poll.MaxInterval < c.Poll.Interval {
		c.Poll.MaxInterval = c.Poll.Interval
	}

	if c.Poll.MaxConcurrent <= 0 {
		c.Poll.MaxConcurrent = 4
	}

	if c.GitLab.Timeout <= 0 {
		c.GitLab.Timeout = 10 * time.Second
	}

	return c, c.Validate()
}

func (c Config) Validate() error {
	if c.GitLab.Token == "" {
		return fmt.Errorf("%w: gitlab.token (or GITLAB_TOKEN) is required", ErrInvalid)
	}
	u, err := url.Parse(c.GitLab.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: gitlab.base_url %q is not an http(s) URL", ErrInvalid, c.GitLab.BaseURL)
	}
	return nil
}

// SetFavorite adds or removes a project path from the favorites and
// reports whether the list changed.
func (c *Config) SetFavorite(path string, fav bool) bool {
	i := slices.Index(c.UI.Favorites, path)
	switch {
	case fav && i < 0:
		c.UI.Favorites = append(c.UI.Favorites, path)
		slices.Sort(c.UI.Favorites)
		return true
	case !fav && i >= 0:
		c.UI.Favorites = slices.Delete(c.UI.Favorites, i, i+1)
		return true
	}
	return false
}

func Save(path string, c Config) error {
	if path == "" {
		return errors.New("empty config path")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	lockFile := path + ".lock"
	lf, err := os.OpenFile(lockFile, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = lf.Close() }()

	if runtime.GOOS != "windows" {
		if err := syscall.Flock(int(lf.Fd()), syscall.LOCK_EX); err != nil {
			return err
		}
		defer func() { _ = syscall.Flock(int(lf.Fd()), syscall.LOCK_UN) }()
	}

	b, err := yaml.Marshal(&c)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}

	defer func() { _ = f.Close() }()

	if _, err := f.Write(b); err != nil {
		return err
	}

	if err := f.Sync(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

// FavoritesFile persists favorites into the config file at Path, leaving
// every other setting as it is on disk.
type FavoritesFile struct {
	Path string
}

func (f FavoritesFile) SaveFavorites(paths []string) error {
	c, err := ReadFile(f.Path)
	if err != nil {
		return err
	}
	c.UI.Favorites = append([]string(nil), paths...)
	return Save(f.Path, c)
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if h, _ := os.UserHomeDir(); h != "" {
			return h + p[1:]
		}
	}
	return p
}
