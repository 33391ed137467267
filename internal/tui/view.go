package tui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/davarch/ci-dash/internal/application"
	"github.com/davarch/ci-dash/internal/domain"
)

const minProjectsWidth = 28

func (m Model) render() string {
	f := m.frame

	if f.Mode == application.ModeHelp {
		return lipgloss.JoinVertical(lipgloss.Left,
			m.header(),
			paneTitleStyle.Render("Keys"),
			m.help.FullHelpView(m.keys.FullHelp()),
		)
	}

	var top []string
	top = append(top, m.header())
	if b := m.banner(); b != "" {
		top = append(top, b)
	}
	if s := m.searchLine(); s != "" {
		top = append(top, s)
	}
	footer := statusBarStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp()))

	bodyHeight := m.height - len(top) - 1
	if bodyHeight < 3 {
		bodyHeight = 3
	}

	leftWidth := m.width * 2 / 5
	if leftWidth < minProjectsWidth {
		leftWidth = minProjectsWidth
	}
	rightWidth := m.width - leftWidth - 1
	if rightWidth < 10 {
		rightWidth = 10
	}

	left := lipgloss.NewStyle().Width(leftWidth).Height(bodyHeight).MaxHeight(bodyHeight).
		Render(m.projectsPane(leftWidth, bodyHeight))
	right := lipgloss.NewStyle().Width(rightWidth).Height(bodyHeight).MaxHeight(bodyHeight).
		Render(m.detailPane(rightWidth, bodyHeight))
	body := lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right)

	if f.Mode == application.ModeConfirm {
		body = lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Center, m.modal())
	}

	parts := append(top, body, footer)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) header() string {
	f := m.frame
	brand := headerStyle.Render("ci-dash")

	stats := fmt.Sprintf("%s  %d projects  %d running  %d failed",
		f.Server, f.Summary.Projects, f.Summary.Running, f.Summary.Failed)
	switch {
	case f.Loading:
		stats += "  " + m.spinner.View() + " loading"
	case f.Fetching > 0:
		stats += "  ⟳ " + strconv.Itoa(f.Fetching)
	}

	line := lipgloss.JoinHorizontal(lipgloss.Top, brand, headerStatsStyle.Render(stats))
	return lipgloss.NewStyle().Width(m.width).Background(primaryColor).Render(line)
}

func (m Model) banner() string {
	b := m.frame.Banner
	if b.Message == "" {
		return ""
	}
	if b.Persistent {
		return bannerErrorStyle.Render("! " + b.Message)
	}
	return bannerStyle.Render(b.Message)
}

func (m Model) searchLine() string {
	f := m.frame
	switch {
	case f.Mode == application.ModeSearch:
		st := paint(searchStyle, f, application.RowSearch, m.now)
		return st.Render("/" + f.Query + "█")
	case f.Filter != "":
		return searchStyle.Foreground(mutedColor).Render("filter: " + f.Filter + "  (esc clears)")
	}
	return ""
}

func (m Model) projectsPane(width, height int) string {
	f := m.frame
	rows := []string{paneTitleStyle.Render("Projects")}

	if len(f.Projects) == 0 {
		msg := "No projects"
		if f.Loading {
			msg = "Fetching projects..."
		} else if f.Filter != "" || f.Query != "" {
			msg = "No matching projects"
		}
		return lipgloss.JoinVertical(lipgloss.Left, append(rows, emptyStyle.Render(msg))...)
	}

	first, last := window(len(f.Projects), f.ProjectIndex, height-1)
	for i := first; i < last; i++ {
		p := f.Projects[i]

		star := "  "
		if p.Favorite {
			star = favoriteStyle.Render("★") + " "
		}
		glyph := statusStyle(p.LastStatus).Render(statusGlyph(p.LastStatus, m.spinner.View()))
		text := truncate(p.Path, width-7)

		st := rowStyle
		if i == f.ProjectIndex {
			st = rowSelectedStyle
		}
		st = paint(st.Width(width), f, application.RowProjectsTable, m.now)
		rows = append(rows, st.Render(star+glyph+" "+text))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) detailPane(width, height int) string {
	f := m.frame
	p, ok := f.SelectedProject()
	if !ok {
		return emptyStyle.Render("Select a project")
	}

	rows := []string{paneTitleStyle.Render(truncate(p.Path, width-2))}
	if len(f.Pipelines) == 0 {
		rows = append(rows, emptyStyle.Render("No pipelines"))
		return lipgloss.JoinVertical(lipgloss.Left, rows...)
	}

	plHeight := (height - 2) / 2
	if plHeight < 1 {
		plHeight = 1
	}
	first, last := window(len(f.Pipelines), f.PipelineIndex, plHeight)
	for i := first; i < last; i++ {
		pl := f.Pipelines[i]
		st := rowStyle
		if i == f.PipelineIndex {
			st = rowSelectedStyle
		}
		st = paint(st.Width(width), f, application.PipelineRow(pl.ID), m.now)
		rows = append(rows, st.Render(m.pipelineLine(pl, width-2)))
	}

	if pl, ok := f.SelectedPipeline(); ok {
		title := paneTitleStyle.Render(fmt.Sprintf("Jobs #%d", pl.ID))
		if j, ok := f.FailedJob(); ok {
			title += mutedStyle.Render(truncate("  e: copy log of "+j.Name, width-12))
		}
		rows = append(rows, title)
		if len(f.Jobs) == 0 {
			rows = append(rows, mutedStyle.Padding(0, 1).Render("no jobs yet"))
		}
		budget := height - len(rows)
		for i, j := range f.Jobs {
			if i >= budget {
				rows = append(rows, mutedStyle.Padding(0, 1).Render(fmt.Sprintf("… %d more", len(f.Jobs)-i)))
				break
			}
			st := paint(rowStyle.Width(width), f, application.JobRow(j.ID), m.now)
			rows = append(rows, st.Render(m.jobLine(j, width-2)))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) pipelineLine(pl domain.Pipeline, width int) string {
	glyph := statusStyle(pl.Status).Render(statusGlyph(pl.Status, m.spinner.View()))
	meta := string(pl.Status)
	if pl.Duration > 0 {
		meta += " " + pl.Duration.Round(time.Second).String()
	}
	if !pl.CreatedAt.IsZero() {
		meta += " " + age(m.now.Sub(pl.CreatedAt))
	}
	text := fmt.Sprintf("#%d %s", pl.ID, pl.Ref)
	return glyph + " " + truncate(text, width-len(meta)-4) + "  " + mutedStyle.Render(meta)
}

func (m Model) jobLine(j domain.Job, width int) string {
	glyph := statusStyle(j.Status).Render(statusGlyph(j.Status, m.spinner.View()))
	text := truncate(j.Stage+" / "+j.Name, width-4)
	return glyph + " " + text
}

func (m Model) modal() string {
	f := m.frame
	st := paint(modalStyle, f, application.RowModal, m.now)
	hint := mutedStyle.Render(m.keys.Confirm.Help().Key + " confirm · " + m.keys.Deny.Help().Key + " cancel")
	return st.Render(lipgloss.JoinVertical(lipgloss.Center, f.Prompt, "", hint))
}

// window returns the slice bounds of at most size rows keeping sel visible.
func window(n, sel, size int) (int, int) {
	if size <= 0 || n <= size {
		return 0, n
	}
	first := 0
	if sel >= size {
		first = sel - size + 1
	}
	return first, first + size
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}

func age(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return strconv.Itoa(int(d/time.Minute)) + "m ago"
	case d < 24*time.Hour:
		return strconv.Itoa(int(d/time.Hour)) + "h ago"
	default:
		return strconv.Itoa(int(d/(24*time.Hour))) + "d ago"
	}
}
