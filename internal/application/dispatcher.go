package application

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/davarch/ci-dash/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Settings are the runtime knobs derived from the configuration.
type Settings struct {
	Server        string
	Interval      time.Duration
	MaxInterval   time.Duration
	Timeout       time.Duration
	MaxConcurrent int
	ActiveWindow  time.Duration
	Animations    bool
	Notify        bool
	Favorites     []string
	TickEvery     time.Duration
	Grace         time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.Interval <= 0 {
		s.Interval = 30 * time.Second
	}
	if s.MaxInterval < s.Interval {
		s.MaxInterval = 10 * s.Interval
	}
	if s.Timeout <= 0 {
		s.Timeout = 10 * time.Second
	}
	if s.MaxConcurrent <= 0 {
		s.MaxConcurrent = 4
	}
	if s.ActiveWindow <= 0 {
		s.ActiveWindow = 7 * 24 * time.Hour
	}
	if s.TickEvery <= 0 {
		s.TickEvery = 250 * time.Millisecond
	}
	if s.Grace <= 0 {
		s.Grace = 2 * time.Second
	}
	return s
}

type Deps struct {
	Client    domain.RemoteClient
	Log       *zap.Logger
	Sink      FrameSink
	Notifier  domain.Notifier
	Cache     domain.StatusCache
	Clipboard domain.Clipboard
	Browser   domain.Browser
	Favorites domain.FavoritesStore
	Now       func() time.Time
}

type source int

const (
	sourceControl source = iota
	sourceInput
	sourceResult
	sourceNotice
	sourceTick
)

type controlKind int

const (
	controlQuit controlKind = iota
	controlReconfigure
	controlSettings
)

type controlMsg struct {
	kind     controlKind
	client   domain.RemoteClient
	settings Settings
}

type fetchResult struct {
	gen  uint64
	snap domain.Snapshot
	err  error
}

type queued struct {
	source  source
	control controlMsg
	input   KeyInput
	result  fetchResult
	notice  string
	tick    time.Time
}

// Dispatcher is the single consumer of user input, fetch completions and
// timer ticks. Store, Scheduler, AppState and EffectOrchestrator are only
// touched from the goroutine running Run.
type Dispatcher struct {
	log  *zap.Logger
	deps Deps
	now  func() time.Time

	control chan controlMsg
	input   chan KeyInput
	results chan fetchResult
	notices chan string
	ticks   chan time.Time
	done    chan struct{}
	stop    sync.Once

	client   domain.RemoteClient
	settings Settings

	store   *Store
	sched   *Scheduler
	app     *AppState
	effects *EffectOrchestrator

	gen       uint64
	genCtx    context.Context
	genCancel context.CancelFunc
	workers   *errgroup.Group
	wg        sync.WaitGroup
	loaded    bool

	summaries chan domain.StatusSummary
}

func NewDispatcher(deps Deps, settings Settings) *Dispatcher {
	settings = settings.withDefaults()
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	d := &Dispatcher{
		log:       deps.Log,
		deps:      deps,
		now:       deps.Now,
		control:   make(chan controlMsg, 8),
		input:     make(chan KeyInput, 64),
		results:   make(chan fetchResult, 64),
		notices:   make(chan string, 8),
		ticks:     make(chan time.Time, 1),
		done:      make(chan struct{}),
		summaries: make(chan domain.StatusSummary, 1),
		store:     NewStore(),
		sched:     NewScheduler(settings.Interval, settings.MaxInterval),
		app:       NewAppState(DefaultKeyMap()),
		effects:   NewEffectOrchestrator(settings.Animations),
	}
	d.configure(deps.Client, settings, d.now())
	return d
}

// Quit asks the loop to stop. Safe from any goroutine.
func (d *Dispatcher) Quit() {
	d.sendControl(controlMsg{kind: controlQuit})
}

// Reconfigure switches to a new server or token: in-flight fetches are
// cancelled and all data is dropped.
func (d *Dispatcher) Reconfigure(client domain.RemoteClient, s Settings) {
	d.sendControl(controlMsg{kind: controlReconfigure, client: client, settings: s})
}

// UpdateSettings applies settings that do not need the data to be dropped.
func (d *Dispatcher) UpdateSettings(s Settings) {
	d.sendControl(controlMsg{kind: controlSettings, settings: s})
}

func (d *Dispatcher) sendControl(c controlMsg) {
	select {
	case d.control <- c:
	case <-d.done:
	}
}

// Input queues a key press. It blocks while the queue is full; input is
// never dropped.
func (d *Dispatcher) Input(k KeyInput) {
	select {
	case d.input <- k:
	case <-d.done:
	}
}

// Tick queues a timer tick. Ticks coalesce when the loop is busy.
func (d *Dispatcher) Tick(t time.Time) {
	select {
	case d.ticks <- t:
	default:
	}
}

// Run consumes events until ctx is done or a quit is requested, then
// drains in-flight fetches for at most the grace period.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.shutdown()

	go d.tickLoop(d.settings.TickEvery)
	if d.deps.Cache != nil {
		go d.summaryLoop()
	}

	d.log.Info("dispatcher started",
		zap.String("server", d.settings.Server),
		zap.Duration("interval", d.settings.Interval),
		zap.Duration("max_interval", d.settings.MaxInterval),
	)
	d.Tick(d.now())
	d.publish()

	for {
		q, ok := d.next(ctx)
		if !ok {
			return ctx.Err()
		}
		if d.apply(q) {
			return nil
		}
		d.publish()
	}
}

func (d *Dispatcher) tickLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-d.done:
			return
		case now := <-t.C:
			d.Tick(now)
		}
	}
}

// next takes one event, honouring control > input > results > ticks.
func (d *Dispatcher) next(ctx context.Context) (queued, bool) {
	select {
	case <-ctx.Done():
		return queued{}, false
	case c := <-d.control:
		return queued{source: sourceControl, control: c}, true
	default:
	}
	select {
	case in := <-d.input:
		return queued{source: sourceInput, input: in}, true
	default:
	}
	select {
	case r := <-d.results:
		return queued{source: sourceResult, result: r}, true
	case n := <-d.notices:
		return queued{source: sourceNotice, notice: n}, true
	default:
	}

	select {
	case <-ctx.Done():
		return queued{}, false
	case c := <-d.control:
		return queued{source: sourceControl, control: c}, true
	case in := <-d.input:
		return queued{source: sourceInput, input: in}, true
	case r := <-d.results:
		return queued{source: sourceResult, result: r}, true
	case n := <-d.notices:
		return queued{source: sourceNotice, notice: n}, true
	case t := <-d.ticks:
		return queued{source: sourceTick, tick: t}, true
	}
}

// apply handles one event completely. It reports whether the loop must stop.
func (d *Dispatcher) apply(q queued) bool {
	now := d.now()
	switch q.source {
	case sourceControl:
		return d.handleControl(q.control, now)
	case sourceInput:
		return d.handleInput(q.input, now)
	case sourceResult:
		d.handleResult(q.result, now)
	case sourceNotice:
		d.app.ShowNotice(q.notice, now)
	case sourceTick:
		d.handleTick(q.tick)
	}
	return false
}

func (d *Dispatcher) handleControl(c controlMsg, now time.Time) bool {
	switch c.kind {
	case controlQuit:
		d.log.Info("quit requested")
		return true
	case controlReconfigure:
		d.log.Info("reconfiguring", zap.String("server", c.settings.Server))
		d.configure(c.client, c.settings.withDefaults(), now)
	case controlSettings:
		d.applySettings(c.settings.withDefaults(), now)
	}
	return false
}

// configure starts a new generation: everything fetched so far and every
// fetch still running belongs to the previous server and is dropped.
func (d *Dispatcher) configure(client domain.RemoteClient, s Settings, now time.Time) {
	if d.genCancel != nil {
		d.genCancel()
	}
	d.gen++
	d.genCtx, d.genCancel = context.WithCancel(context.Background())
	d.workers = new(errgroup.Group)
	d.workers.SetLimit(s.MaxConcurrent)

	d.client = client
	d.settings = s
	d.loaded = false

	d.store.Clear()
	d.store.SetFavoritePaths(s.Favorites)
	d.sched.Clear()
	d.sched.SetIntervals(s.Interval, s.MaxInterval)
	d.sched.Track(domain.ProjectsResource(), now)
	d.effects.Reset()
	d.effects.SetEnabled(s.Animations)
	d.app.ResetSelection()
	d.app.ClearBanner()
	d.app.Refresh(d.store)
}

func (d *Dispatcher) applySettings(s Settings, now time.Time) {
	s.Server = d.settings.Server
	s.MaxConcurrent = d.settings.MaxConcurrent
	d.settings = s
	d.sched.SetIntervals(s.Interval, s.MaxInterval)
	d.effects.SetEnabled(s.Animations)
	if d.store.SetFavoritePaths(s.Favorites) {
		d.app.Refresh(d.store)
		d.syncTracking(now)
	}
	d.log.Info("settings updated",
		zap.Duration("interval", s.Interval),
		zap.Bool("animations", s.Animations),
		zap.Int("favorites", len(s.Favorites)),
	)
}

func (d *Dispatcher) handleInput(in KeyInput, now time.Time) bool {
	before := d.app.Mode
	act := d.app.HandleKey(in)
	d.app.Refresh(d.store)
	d.effects.OnModeChange(before, d.app.Mode, now)
	d.syncTracking(now)

	switch act {
	case ActionQuit:
		d.log.Info("quit confirmed")
		return true
	case ActionReset:
		d.log.Info("reset confirmed")
		d.configure(d.client, d.settings, now)
	case ActionRefresh:
		d.sched.Refresh(domain.KindProjects, now)
		d.sched.Refresh(domain.KindPipelines, now)
		d.sched.Refresh(domain.KindJobs, now)
		d.app.ShowNotice("refreshing", now)
	case ActionOpen:
		if url := d.selectedURL(); url != "" && d.deps.Browser != nil {
			d.runAction("open "+url, func(ctx context.Context) error {
				return d.deps.Browser.Open(ctx, url)
			})
		}
	case ActionCopy:
		if url := d.selectedURL(); url != "" && d.deps.Clipboard != nil {
			d.runAction("copied "+url, func(context.Context) error {
				return d.deps.Clipboard.Copy(url)
			})
		}
	case ActionFavorite:
		d.toggleFavorite(now)
	case ActionCopyLog:
		d.copyFailedLog(now)
	case ActionOpenJob:
		d.openFailedJob(now)
	}
	return false
}

// selectedJobs returns the project of the selected pipeline and its jobs.
func (d *Dispatcher) selectedJobs() (int64, []domain.Job, bool) {
	projectID, ok := d.app.SelectedProject()
	if !ok {
		return 0, nil, false
	}
	pipelineID, ok := d.app.SelectedPipeline()
	if !ok {
		return 0, nil, false
	}
	return projectID, d.store.Jobs(pipelineID), true
}

// copyFailedLog fetches the log of the selected pipeline's first failed
// job and puts it on the clipboard.
func (d *Dispatcher) copyFailedLog(now time.Time) {
	projectID, jobs, ok := d.selectedJobs()
	job, found := FailedJob(jobs, true)
	if !ok || !found {
		d.app.ShowNotice("no failed job log", now)
		return
	}
	if d.deps.Clipboard == nil || d.client == nil {
		return
	}

	client, clip := d.client, d.deps.Clipboard
	d.log.Info("copying job log", zap.Int64("project", projectID), zap.Int64("job", job.ID))
	d.runAction("copied log of "+job.Name, func(ctx context.Context) error {
		trace, err := client.FetchJobLog(ctx, projectID, job.ID)
		if err != nil {
			return err
		}
		return clip.Copy(trace)
	})
}

func (d *Dispatcher) openFailedJob(now time.Time) {
	_, jobs, ok := d.selectedJobs()
	job, found := FailedJob(jobs, false)
	if !ok || !found || job.WebURL == "" {
		d.app.ShowNotice("no failed job", now)
		return
	}
	if d.deps.Browser == nil {
		return
	}
	url := job.WebURL
	d.runAction("open "+url, func(ctx context.Context) error {
		return d.deps.Browser.Open(ctx, url)
	})
}

func (d *Dispatcher) toggleFavorite(now time.Time) {
	id, ok := d.app.SelectedProject()
	if !ok {
		return
	}
	p, _ := d.store.Project(id)
	if !d.store.SetFavorite(id, !p.Favorite) {
		return
	}
	d.app.Refresh(d.store)
	d.syncTracking(now)

	paths := d.store.FavoritePaths()
	d.settings.Favorites = paths
	if d.deps.Favorites != nil {
		d.runAction("", func(context.Context) error {
			return d.deps.Favorites.SaveFavorites(paths)
		})
	}
}

// runAction executes a side effect off the loop; its outcome comes back
// as a notice.
func (d *Dispatcher) runAction(success string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		msg := success
		if err := fn(ctx); err != nil {
			d.log.Warn("action failed", zap.Error(err))
			msg = "action failed: " + err.Error()
		}
		if msg == "" {
			return
		}
		select {
		case d.notices <- msg:
		default:
		}
	}()
}

func (d *Dispatcher) selectedURL() string {
	if id, ok := d.app.SelectedPipeline(); ok {
		if p, ok := d.store.Pipeline(id); ok && p.WebURL != "" {
			return p.WebURL
		}
	}
	if id, ok := d.app.SelectedProject(); ok {
		if p, ok := d.store.Project(id); ok {
			return p.WebURL
		}
	}
	return ""
}

func (d *Dispatcher) handleTick(now time.Time) {
	d.effects.Expire(now)
	d.app.ExpireBanner(now)
	for _, r := range d.sched.PollDue(now) {
		if !d.launch(r) {
			d.sched.Abandon(r)
		}
	}
}

// launch starts a fetch worker unless the worker limit is reached.
func (d *Dispatcher) launch(r domain.Resource) bool {
	gen, ctx, client, timeout := d.gen, d.genCtx, d.client, d.settings.Timeout
	if client == nil {
		return false
	}

	d.wg.Add(1)
	started := d.workers.TryGo(func() error {
		defer d.wg.Done()

		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		snap, err := fetch(cctx, client, r)

		select {
		case d.results <- fetchResult{gen: gen, snap: snap, err: err}:
		case <-d.done:
		}
		return nil
	})
	if !started {
		d.wg.Done()
		return false
	}
	d.log.Debug("fetch started", zap.Stringer("resource", r), zap.Uint64("generation", gen))
	return true
}

func fetch(ctx context.Context, c domain.RemoteClient, r domain.Resource) (domain.Snapshot, error) {
	snap := domain.Snapshot{Resource: r}
	var err error
	switch r.Kind {
	case domain.KindProjects:
		snap.Projects, err = c.FetchProjects(ctx)
	case domain.KindPipelines:
		snap.Pipelines, err = c.FetchPipelines(ctx, r.ProjectID)
	case domain.KindJobs:
		snap.Jobs, err = c.FetchJobs(ctx, r.ProjectID, r.PipelineID)
	}
	if err == nil && ctx.Err() != nil {
		err = &domain.FetchError{Kind: domain.FailureNetwork, Err: ctx.Err()}
	}
	return snap, err
}

func (d *Dispatcher) handleResult(res fetchResult, now time.Time) {
	r := res.snap.Resource
	if res.gen != d.gen {
		d.log.Debug("stale fetch result dropped", zap.Stringer("resource", r), zap.Uint64("generation", res.gen))
		return
	}
	if !d.sched.Tracked(r) {
		d.sched.Abandon(r)
		d.log.Debug("fetch result for untracked resource dropped", zap.Stringer("resource", r))
		return
	}

	if res.err != nil {
		d.sched.Failed(r, now, res.err)
		d.log.Warn("fetch failed",
			zap.Stringer("resource", r),
			zap.Int("failures", d.sched.Failures(r)),
			zap.Duration("retry_in", d.sched.NextDelay(r)),
			zap.Error(res.err),
		)
		d.route([]domain.Event{domain.FetchFailed{Resource: r, Err: res.err}}, now)
		return
	}

	d.sched.Succeeded(r, now)
	d.app.Recovered(r)
	if r.Kind == domain.KindProjects {
		d.loaded = true
	}

	events, err := d.store.Apply(res.snap)
	if err != nil {
		d.log.Error("snapshot discarded",
			zap.Stringer("resource", r),
			zap.Int("projects", len(res.snap.Projects)),
			zap.Int("pipelines", len(res.snap.Pipelines)),
			zap.Int("jobs", len(res.snap.Jobs)),
			zap.Error(err),
		)
		return
	}
	d.route(events, now)
}

// route hands domain events to the app state, the effects, the notifier
// and the status cache.
func (d *Dispatcher) route(events []domain.Event, now time.Time) {
	if len(events) == 0 {
		return
	}
	for _, ev := range events {
		if err := d.check(ev); err != nil {
			d.log.Error("event discarded", zap.Any("event", ev), zap.Error(err))
			continue
		}
		switch ev := ev.(type) {
		case domain.FetchFailed:
			d.app.ShowFailure(ev.Resource, ev.Err, now)
		case domain.PipelineStatusChanged:
			d.log.Info("pipeline status changed",
				zap.Int64("project", ev.ProjectID),
				zap.Int64("pipeline", ev.PipelineID),
				zap.String("old", string(ev.Old)),
				zap.String("new", string(ev.New)),
			)
			d.notifyStatus(ev)
			if !ev.New.Active() {
				d.sched.Expedite(domain.JobsResource(ev.ProjectID, ev.PipelineID), now)
			}
		case domain.JobStatusChanged:
			d.log.Debug("job status changed",
				zap.Int64("pipeline", ev.PipelineID),
				zap.Int64("job", ev.JobID),
				zap.String("old", string(ev.Old)),
				zap.String("new", string(ev.New)),
			)
		}
		d.effects.OnEvent(ev, d.store, now)
	}

	d.app.Refresh(d.store)
	d.syncTracking(now)
	if d.deps.Cache != nil {
		sum := d.store.Summary()
		sum.Retrieved = now.Unix()
		offerLatest(d.summaries, sum)
	}
}

var errNoSuchEntity = errors.New("event for entity missing from store")

// check guards against events that do not match the store.
func (d *Dispatcher) check(ev domain.Event) error {
	switch ev := ev.(type) {
	case domain.PipelineStatusChanged:
		if _, ok := d.store.Pipeline(ev.PipelineID); !ok {
			return errNoSuchEntity
		}
	case domain.JobStatusChanged:
		if _, ok := d.store.Job(ev.JobID); !ok {
			return errNoSuchEntity
		}
	case domain.PipelineListChanged:
		if _, ok := d.store.Project(ev.ProjectID); !ok {
			return errNoSuchEntity
		}
	}
	return nil
}

func (d *Dispatcher) notifyStatus(ev domain.PipelineStatusChanged) {
	if !d.settings.Notify || d.deps.Notifier == nil || ev.New.Active() || !ev.Old.Active() {
		return
	}
	p, ok := d.store.Project(ev.ProjectID)
	if !ok || !p.Favorite {
		return
	}
	pl, _ := d.store.Pipeline(ev.PipelineID)
	msg := domain.Notification{
		Title:    titleFor(ev.New),
		Body:     p.Path + " #" + strconv.FormatInt(ev.PipelineID, 10) + " (" + pl.Ref + ")",
		URL:      pl.WebURL,
		Critical: ev.New == domain.StatusFailed,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.deps.Notifier.Notify(ctx, msg); err != nil {
			d.log.Warn("notify failed", zap.Error(err))
		}
	}()
}

func titleFor(s domain.Status) string {
	switch s {
	case domain.StatusSuccess:
		return "✅ CI: success"
	case domain.StatusFailed:
		return "❌ CI: failed"
	case domain.StatusRunning:
		return "▶️ CI: running"
	case domain.StatusCanceled:
		return "⛔ CI: canceled"
	default:
		return "ℹ️ CI: " + string(s)
	}
}

// syncTracking aligns the scheduled resources with what is worth polling:
// pipelines of recently active, favorite or selected projects, and jobs of
// active or selected pipelines.
func (d *Dispatcher) syncTracking(now time.Time) {
	want := map[domain.Resource]bool{domain.ProjectsResource(): true}

	selProject, hasProject := d.app.SelectedProject()
	selPipeline, hasPipeline := d.app.SelectedPipeline()

	for _, p := range d.store.Projects() {
		recent := !p.LastActivity.IsZero() && now.Sub(p.LastActivity) <= d.settings.ActiveWindow
		if !(p.Favorite || recent || (hasProject && p.ID == selProject)) {
			continue
		}
		want[domain.PipelinesResource(p.ID)] = true

		for _, pl := range d.store.Pipelines(p.ID) {
			if pl.Status.Active() || (hasPipeline && pl.ID == selPipeline) || d.hasActiveJobs(pl.ID) {
				want[domain.JobsResource(p.ID, pl.ID)] = true
			}
		}
	}

	for _, k := range []domain.ResourceKind{domain.KindPipelines, domain.KindJobs} {
		for _, r := range d.sched.Resources(k) {
			if !want[r] {
				d.sched.Untrack(r)
			}
		}
	}
	for r := range want {
		d.sched.Track(r, now)
	}
}

func (d *Dispatcher) hasActiveJobs(pipelineID int64) bool {
	for _, j := range d.store.Jobs(pipelineID) {
		if j.Status.Active() {
			return true
		}
	}
	return false
}

func (d *Dispatcher) publish() {
	if d.deps.Sink == nil {
		return
	}
	d.deps.Sink.Publish(d.frame(d.now()))
}

func (d *Dispatcher) frame(now time.Time) Frame {
	f := Frame{
		At:            now,
		Server:        d.settings.Server,
		Mode:          d.app.Mode,
		Query:         d.app.Query,
		Filter:        d.app.Filter,
		Prompt:        d.app.Pending.Prompt(),
		Banner:        d.app.Banner,
		Projects:      append([]domain.Project(nil), d.app.Visible()...),
		ProjectIndex:  d.app.ProjectIndex,
		Pipelines:     append([]domain.Pipeline(nil), d.app.VisiblePipelines()...),
		PipelineIndex: d.app.PipelineIndex,
		Effects:       make(map[string]Effect),
		Animations:    d.effects.Enabled(),
		Summary:       d.store.Summary(),
		Loading:       !d.loaded,
	}
	if id, ok := d.app.SelectedPipeline(); ok {
		f.Jobs = d.store.Jobs(id)
	}
	for _, e := range d.effects.Snapshot() {
		f.Effects[e.Target] = e
	}
	f.Fetching = d.sched.InFlightCount()
	return f
}

func (d *Dispatcher) summaryLoop() {
	for {
		select {
		case <-d.done:
			return
		case s := <-d.summaries:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := d.deps.Cache.Write(ctx, s); err != nil {
				d.log.Warn("status cache write failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// shutdown stops issuing fetches and waits for running ones, cancelling
// them once the grace period is over.
func (d *Dispatcher) shutdown() {
	d.stop.Do(func() { close(d.done) })

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(d.settings.Grace):
		d.log.Warn("grace period over, cancelling fetches")
		d.genCancel()
		<-drained
	}
	d.genCancel()
	d.log.Info("dispatcher stopped")
}
