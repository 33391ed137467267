// Package tui renders dispatcher frames with Bubbletea and forwards key
// presses back to the dispatcher. It holds no dashboard state of its own.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/davarch/ci-dash/internal/application"
	"github.com/davarch/ci-dash/internal/domain"
)

const animationStep = 50 * time.Millisecond

// Controller receives what the user does.
type Controller interface {
	Input(application.KeyInput)
	Quit()
}

// frameMsg carries a new frame from the dispatcher.
type frameMsg application.Frame

// animTickMsg advances running effects.
type animTickMsg time.Time

// framesClosedMsg is sent once the frame channel is closed.
type framesClosedMsg struct{}

type Model struct {
	width  int
	height int
	ready  bool

	ctrl   Controller
	frames <-chan application.Frame
	keys   application.KeyMap

	frame     application.Frame
	hasFrame  bool
	now       time.Time
	animating bool

	spinner spinner.Model
	help    help.Model
}

func New(ctrl Controller, frames <-chan application.Frame, keys application.KeyMap) Model {
	sp := spinner.New(spinner.WithSpinner(spinner.MiniDot))
	sp.Style = statusStyle(domain.StatusRunning)

	return Model{
		ctrl:    ctrl,
		frames:  frames,
		keys:    keys,
		spinner: sp,
		help:    help.New(),
		now:     time.Now(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitFrame(), m.spinner.Tick)
}

func (m Model) waitFrame() tea.Cmd {
	frames := m.frames
	return func() tea.Msg {
		f, ok := <-frames
		if !ok {
			return framesClosedMsg{}
		}
		return frameMsg(f)
	}
}

func animTick() tea.Cmd {
	return tea.Tick(animationStep, func(t time.Time) tea.Msg { return animTickMsg(t) })
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.ForceQuit) {
			m.ctrl.Quit()
			return m, nil
		}
		m.ctrl.Input(application.KeyInput{Key: msg.String(), Runes: msg.Runes})
		return m, nil

	case frameMsg:
		m.frame = application.Frame(msg)
		m.hasFrame = true
		if m.frame.At.After(m.now) {
			m.now = m.frame.At
		}
		cmds := []tea.Cmd{m.waitFrame()}
		if !m.animating && animating(m.frame, m.now) {
			m.animating = true
			cmds = append(cmds, animTick())
		}
		return m, tea.Batch(cmds...)

	case animTickMsg:
		m.now = time.Time(msg)
		if animating(m.frame, m.now) {
			return m, animTick()
		}
		m.animating = false
		return m, nil

	case framesClosedMsg:
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready || !m.hasFrame {
		return "Loading..."
	}
	return m.render()
}
