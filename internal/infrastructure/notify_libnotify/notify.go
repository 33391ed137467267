package notify_libnotify

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/davarch/ci-dash/internal/domain"
)

// normalExpire is how long non-critical notifications stay on screen.
const normalExpire = 10 * time.Second

type Notifier struct {
	soft    bool
	command string
}

func New() *Notifier     { return &Notifier{soft: false, command: "notify-send"} }
func NewSoft() *Notifier { return &Notifier{soft: true, command: "notify-send"} }

type Options struct {
	Urgency string
	Expire  time.Duration
}

func optionsFor(n domain.Notification) Options {
	if n.Critical {
		return Options{Urgency: "critical"}
	}
	return Options{Urgency: "normal", Expire: normalExpire}
}

func (n *Notifier) Notify(ctx context.Context, msg domain.Notification) error {
	body := msg.Body
	if url := strings.TrimSpace(msg.URL); url != "" {
		if body == "" {
			body = url
		} else {
			body = body + "\n" + url
		}
	}

	cmd := exec.CommandContext(ctx, n.command, args(msg.Title, body, optionsFor(msg))...)
	if err := cmd.Run(); err != nil {
		if n.soft {
			return nil
		}
		return err
	}

	return nil
}

func args(title, body string, opt Options) []string {
	out := []string{"--app-name=ci-dash"}
	if opt.Urgency != "" {
		out = append(out, "--urgency="+opt.Urgency)
	}
	if opt.Expire > 0 {
		out = append(out, "--expire-time="+strconv.Itoa(int(opt.Expire/time.Millisecond)))
	}
	return append(out, title, body)
}
