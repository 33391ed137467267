package browser_exec

import (
	"context"
	"errors"
	"testing"
)

func TestCommand(t *testing.T) {
	tests := []struct {
		goos string
		want string
	}{
		{goos: "linux", want: "xdg-open"},
		{goos: "freebsd", want: "xdg-open"},
		{goos: "darwin", want: "open"},
		{goos: "windows", want: "rundll32"},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			name, args := command(tt.goos, "https://example.com")
			if name != tt.want {
				t.Errorf("command = %q, want %q", name, tt.want)
			}
			if args[len(args)-1] != "https://example.com" {
				t.Errorf("url not passed last: %v", args)
			}
		})
	}
}

func TestOpen_EmptyURL(t *testing.T) {
	if err := New().Open(context.Background(), ""); !errors.Is(err, ErrNoURL) {
		t.Fatalf("expected ErrNoURL, got %v", err)
	}
}
