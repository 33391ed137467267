package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/davarch/ci-dash/internal/application"
	"github.com/davarch/ci-dash/internal/infrastructure/browser_exec"
	"github.com/davarch/ci-dash/internal/infrastructure/cache_fs"
	"github.com/davarch/ci-dash/internal/infrastructure/clipboard_atotto"
	"github.com/davarch/ci-dash/internal/infrastructure/config"
	"github.com/davarch/ci-dash/internal/infrastructure/gitlab_http"
	"github.com/davarch/ci-dash/internal/infrastructure/logging"
	"github.com/davarch/ci-dash/internal/infrastructure/notify_libnotify"
	"github.com/davarch/ci-dash/internal/tui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runDashboard(cmd *cobra.Command) error {
	path, err := config.Resolve(cfgPath)
	if err != nil {
		return err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Log.Path, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("%w: log file: %v", errStartup, err)
	}
	defer func() { _ = log.Sync() }()

	deps := application.Deps{
		Client:    gitlab_http.New(cfg.GitLab.BaseURL, cfg.GitLab.Token, cfg.GitLab.Timeout),
		Log:       log,
		Notifier:  notify_libnotify.NewSoft(),
		Clipboard: clipboard_atotto.New(),
		Browser:   browser_exec.New(),
		Favorites: config.FavoritesFile{Path: path},
	}
	if cfg.Cache.Path != "" {
		deps.Cache = cache_fs.New(cfg.Cache.Path)
	}
	mailbox := application.NewMailbox()
	deps.Sink = mailbox

	d := application.NewDispatcher(deps, settingsFrom(cfg))

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	current := cfg
	err = config.Watch(ctx, path, log, func(next config.Config) {
		if current.SameServer(next) {
			d.UpdateSettings(settingsFrom(next))
		} else {
			d.Reconfigure(gitlab_http.New(next.GitLab.BaseURL, next.GitLab.Token, next.GitLab.Timeout), settingsFrom(next))
		}
		current = next
	})
	if err != nil {
		log.Warn("config watch disabled", zap.String("path", path), zap.Error(err))
	}

	log.Info("start",
		zap.String("version", version),
		zap.String("config", path),
		zap.String("gitlab", cfg.GitLab.BaseURL),
		zap.Duration("every", cfg.Poll.Interval),
		zap.Int("favorites", len(cfg.UI.Favorites)),
		zap.String("cache", cfg.Cache.Path),
	)

	p := tea.NewProgram(
		tui.New(d, mailbox.Frames(), application.DefaultKeyMap()),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
		p.Quit()
	}()

	_, uiErr := p.Run()
	interrupted := ctx.Err() != nil
	cancel()
	runErr := <-done

	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) && !interrupted {
		return fmt.Errorf("%w: terminal: %v", errStartup, uiErr)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	log.Info("stop")
	return nil
}

func settingsFrom(c config.Config) application.Settings {
	return application.Settings{
		Server:        c.GitLab.BaseURL,
		Interval:      c.Poll.Interval,
		MaxInterval:   c.Poll.MaxInterval,
		Timeout:       c.GitLab.Timeout,
		MaxConcurrent: c.Poll.MaxConcurrent,
		ActiveWindow:  c.Poll.ActiveWindow,
		Animations:    c.UI.Animations,
		Notify:        c.Notify.Enabled,
		Favorites:     c.UI.Favorites,
	}
}
