package browser_exec

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
)

var ErrNoURL = errors.New("nothing to open")

// Browser opens URLs with the platform's default handler.
type Browser struct {
	goos string
}

func New() *Browser { return &Browser{goos: runtime.GOOS} }

func (b *Browser) Open(ctx context.Context, url string) error {
	if url == "" {
		return ErrNoURL
	}
	name, args := command(b.goos, url)
	return exec.CommandContext(ctx, name, args...).Start()
}

func command(goos, url string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return "xdg-open", []string{url}
	}
}
