package application

import (
	"errors"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/davarch/ci-dash/internal/domain"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// NoSelection marks an empty selection.
const NoSelection = -1

const bannerTTL = 5 * time.Second

// Mode is the top-level interaction context.
type Mode int

const (
	ModeNormal Mode = iota
	ModeSearch
	ModeConfirm
	ModeHelp
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeSearch:
		return "search"
	case ModeConfirm:
		return "confirm"
	case ModeHelp:
		return "help"
	default:
		return "unknown"
	}
}

// ConfirmKind is the local action awaiting confirmation.
type ConfirmKind int

const (
	ConfirmNone ConfirmKind = iota
	ConfirmQuit
	ConfirmReset
)

func (c ConfirmKind) Prompt() string {
	switch c {
	case ConfirmQuit:
		return "Quit ci-dash?"
	case ConfirmReset:
		return "Drop all data and refetch everything?"
	default:
		return ""
	}
}

// Action is what the dispatcher must carry out after a key was handled.
type Action int

const (
	ActionNone Action = iota
	ActionQuit
	ActionReset
	ActionRefresh
	ActionOpen
	ActionCopy
	ActionFavorite
	ActionCopyLog
	ActionOpenJob
)

var (
	ErrInvalidModeTransition = errors.New("invalid mode transition")
	ErrNothingPending        = errors.New("no action awaiting confirmation")
)

// Banner is the status message shown above the tables.
type Banner struct {
	Message    string
	Persistent bool
	Since      time.Time
	Resource   domain.Resource
}

// AppState holds everything the user can see besides the domain data.
// Selection is kept both as an index into the visible list and as the id
// it pointed at, so it can follow the entity when the list reorders.
type AppState struct {
	Mode    Mode
	Query   string
	Filter  string
	Pending ConfirmKind
	Banner  Banner

	ProjectIndex  int
	PipelineIndex int

	prior      Mode
	projectID  int64
	pipelineID int64

	keys    KeyMap
	visible []domain.Project
	lines   []domain.Pipeline
}

func NewAppState(keys KeyMap) *AppState {
	return &AppState{
		Mode:          ModeNormal,
		ProjectIndex:  NoSelection,
		PipelineIndex: NoSelection,
		keys:          keys,
	}
}

// EnterSearch starts an empty query. Only valid in normal mode.
func (a *AppState) EnterSearch() error {
	if a.Mode != ModeNormal {
		return ErrInvalidModeTransition
	}
	a.Mode = ModeSearch
	a.Query = ""
	return nil
}

// CancelSearch drops the query and keeps the previous filter.
func (a *AppState) CancelSearch() error {
	if a.Mode != ModeSearch {
		return ErrInvalidModeTransition
	}
	a.Mode = ModeNormal
	a.Query = ""
	return nil
}

// AcceptSearch turns the query into the active filter.
func (a *AppState) AcceptSearch() error {
	if a.Mode != ModeSearch {
		return ErrInvalidModeTransition
	}
	a.Mode = ModeNormal
	a.Filter = strings.TrimSpace(a.Query)
	a.Query = ""
	return nil
}

func (a *AppState) EnterConfirm(kind ConfirmKind) error {
	if a.Mode != ModeNormal {
		return ErrInvalidModeTransition
	}
	if kind == ConfirmNone {
		return ErrNothingPending
	}
	a.Mode = ModeConfirm
	a.Pending = kind
	return nil
}

// Confirm resolves the prompt and returns the confirmed action.
func (a *AppState) Confirm() (ConfirmKind, error) {
	if a.Mode != ModeConfirm {
		return ConfirmNone, ErrInvalidModeTransition
	}
	kind := a.Pending
	a.Mode = ModeNormal
	a.Pending = ConfirmNone
	return kind, nil
}

func (a *AppState) CancelConfirm() error {
	if a.Mode != ModeConfirm {
		return ErrInvalidModeTransition
	}
	a.Mode = ModeNormal
	a.Pending = ConfirmNone
	return nil
}

// ToggleHelp enters help from any mode, or returns to the mode help was
// entered from.
func (a *AppState) ToggleHelp() {
	if a.Mode == ModeHelp {
		a.Mode = a.prior
		return
	}
	a.prior = a.Mode
	a.Mode = ModeHelp
}

// HandleKey applies one key press. The returned action is carried out by
// the caller; mode changes are visible through a.Mode.
func (a *AppState) HandleKey(in KeyInput) Action {
	switch a.Mode {
	case ModeHelp:
		if key.Matches(in, a.keys.Help, a.keys.Cancel) {
			a.ToggleHelp()
		}
		return ActionNone

	case ModeSearch:
		switch {
		case key.Matches(in, a.keys.Accept):
			_ = a.AcceptSearch()
		case key.Matches(in, a.keys.Cancel):
			_ = a.CancelSearch()
		case key.Matches(in, a.keys.Delete):
			if r := []rune(a.Query); len(r) > 0 {
				a.Query = string(r[:len(r)-1])
			}
		case in.Text():
			a.Query += string(in.Runes)
		case key.Matches(in, a.keys.Help):
			a.ToggleHelp()
		}
		return ActionNone

	case ModeConfirm:
		switch {
		case key.Matches(in, a.keys.Confirm):
			kind, _ := a.Confirm()
			switch kind {
			case ConfirmQuit:
				return ActionQuit
			case ConfirmReset:
				return ActionReset
			}
		case key.Matches(in, a.keys.Deny):
			_ = a.CancelConfirm()
		case key.Matches(in, a.keys.Help):
			a.ToggleHelp()
		}
		return ActionNone
	}

	switch {
	case key.Matches(in, a.keys.Up):
		a.moveProject(-1)
	case key.Matches(in, a.keys.Down):
		a.moveProject(1)
	case key.Matches(in, a.keys.Prev):
		a.movePipeline(-1)
	case key.Matches(in, a.keys.Next):
		a.movePipeline(1)
	case key.Matches(in, a.keys.Search):
		_ = a.EnterSearch()
	case key.Matches(in, a.keys.Cancel):
		a.Filter = ""
	case key.Matches(in, a.keys.Help):
		a.ToggleHelp()
	case key.Matches(in, a.keys.Quit):
		_ = a.EnterConfirm(ConfirmQuit)
	case key.Matches(in, a.keys.Reset):
		_ = a.EnterConfirm(ConfirmReset)
	case key.Matches(in, a.keys.Refresh):
		return ActionRefresh
	case key.Matches(in, a.keys.Open):
		return ActionOpen
	case key.Matches(in, a.keys.Copy):
		return ActionCopy
	case key.Matches(in, a.keys.Favorite):
		return ActionFavorite
	case key.Matches(in, a.keys.CopyLog):
		return ActionCopyLog
	case key.Matches(in, a.keys.OpenJob):
		return ActionOpenJob
	}
	return ActionNone
}

// ActiveFilter is the query narrowing the project list: the live query
// while searching, the accepted filter otherwise.
func (a *AppState) ActiveFilter() string {
	if a.Mode == ModeSearch || (a.Mode == ModeHelp && a.prior == ModeSearch) {
		return strings.TrimSpace(a.Query)
	}
	return a.Filter
}

// Refresh recomputes the visible lists from the store and clamps the
// selection onto them.
func (a *AppState) Refresh(st *Store) {
	a.visible = VisibleProjects(st.Projects(), a.ActiveFilter())

	ids := make([]int64, len(a.visible))
	for i, p := range a.visible {
		ids[i] = p.ID
	}
	prevProject := a.projectID
	a.ProjectIndex, a.projectID = reselect(ids, a.ProjectIndex, a.projectID)

	if a.projectID != prevProject {
		a.PipelineIndex, a.pipelineID = NoSelection, 0
	}
	a.lines = nil
	if a.ProjectIndex != NoSelection {
		a.lines = st.Pipelines(a.projectID)
	}
	pids := make([]int64, len(a.lines))
	for i, p := range a.lines {
		pids[i] = p.ID
	}
	a.PipelineIndex, a.pipelineID = reselect(pids, a.PipelineIndex, a.pipelineID)
}

// reselect keeps the selection on id when it is still listed, otherwise
// on the nearest remaining index.
func reselect(ids []int64, idx int, id int64) (int, int64) {
	if len(ids) == 0 {
		return NoSelection, 0
	}
	if idx != NoSelection {
		if i := slices.Index(ids, id); i >= 0 {
			return i, id
		}
	}
	if idx < 0 {
		idx = 0
	}
	if idx > len(ids)-1 {
		idx = len(ids) - 1
	}
	return idx, ids[idx]
}

func (a *AppState) moveProject(delta int) {
	if len(a.visible) == 0 {
		return
	}
	i := clamp(a.ProjectIndex+delta, len(a.visible))
	if i == a.ProjectIndex {
		return
	}
	a.ProjectIndex = i
	a.projectID = a.visible[i].ID
	a.PipelineIndex, a.pipelineID = NoSelection, 0
	a.lines = nil
}

func (a *AppState) movePipeline(delta int) {
	if len(a.lines) == 0 {
		return
	}
	i := clamp(a.PipelineIndex+delta, len(a.lines))
	a.PipelineIndex = i
	a.pipelineID = a.lines[i].ID
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}

// SelectedProject returns the id of the selected project.
func (a *AppState) SelectedProject() (int64, bool) {
	return a.projectID, a.ProjectIndex != NoSelection
}

// SelectedPipeline returns the id of the selected pipeline.
func (a *AppState) SelectedPipeline() (int64, bool) {
	return a.pipelineID, a.PipelineIndex != NoSelection
}

func (a *AppState) Visible() []domain.Project { return a.visible }

func (a *AppState) VisiblePipelines() []domain.Pipeline { return a.lines }

// ShowFailure raises a banner for a failed fetch. Authentication failures
// stick until ClearBanner; a sticky banner is never replaced by a
// transient one.
func (a *AppState) ShowFailure(r domain.Resource, err error, now time.Time) {
	persistent := domain.IsAuthFailure(err)
	if a.Banner.Persistent && !persistent {
		return
	}
	msg := r.Kind.String() + ": " + err.Error()
	if persistent {
		msg = "authentication failed, check the access token in the config file"
	}
	a.Banner = Banner{Message: msg, Persistent: persistent, Since: now, Resource: r}
}

// ShowNotice raises a transient banner.
func (a *AppState) ShowNotice(msg string, now time.Time) {
	if a.Banner.Persistent {
		return
	}
	a.Banner = Banner{Message: msg, Since: now}
}

// Recovered clears a transient banner raised for r.
func (a *AppState) Recovered(r domain.Resource) {
	if !a.Banner.Persistent && a.Banner.Message != "" && a.Banner.Resource == r {
		a.Banner = Banner{}
	}
}

// ExpireBanner drops transient banners older than the banner TTL.
func (a *AppState) ExpireBanner(now time.Time) bool {
	if a.Banner.Message == "" || a.Banner.Persistent {
		return false
	}
	if now.Sub(a.Banner.Since) < bannerTTL {
		return false
	}
	a.Banner = Banner{}
	return true
}

func (a *AppState) ClearBanner() { a.Banner = Banner{} }

// ResetSelection forgets the selection, used when the store is cleared.
func (a *AppState) ResetSelection() {
	a.ProjectIndex, a.projectID = NoSelection, 0
	a.PipelineIndex, a.pipelineID = NoSelection, 0
	a.visible, a.lines = nil, nil
}

// VisibleProjects filters projects by a fuzzy query on path and name and
// orders them favorites first, then by most recent activity.
func VisibleProjects(all []domain.Project, query string) []domain.Project {
	out := make([]domain.Project, 0, len(all))
	for _, p := range all {
		if query == "" || fuzzy.MatchNormalizedFold(query, p.Path) || fuzzy.MatchNormalizedFold(query, p.Name) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Favorite != b.Favorite {
			return a.Favorite
		}
		if !a.LastActivity.Equal(b.LastActivity) {
			return a.LastActivity.After(b.LastActivity)
		}
		return a.ID < b.ID
	})
	return out
}
