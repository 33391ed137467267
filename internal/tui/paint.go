package tui

import (
	"math"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/davarch/ci-dash/internal/application"
)

// Effects are painted from their progress alone, so a frame can be
// redrawn at any time without keeping animation state here.

func blend(from, to colorful.Color, t float64) lipgloss.Color {
	return lipgloss.Color(from.BlendLab(to, t).Clamped().Hex())
}

// flash tints a row with the status color and fades it out.
func flash(st lipgloss.Style, e application.Effect, now time.Time) lipgloss.Style {
	from := flashSuccess
	if e.Kind == application.EffectFlashFailure {
		from = flashFailure
	}
	return st.Background(blend(from, rowBackground, e.Progress(now)))
}

// fadeIn brings text up from the background color.
func fadeIn(st lipgloss.Style, e application.Effect, now time.Time) lipgloss.Style {
	return st.Foreground(blend(rowBackground, textColor, e.Progress(now)))
}

// pulse swings to the accent color and back once.
func pulse(st lipgloss.Style, e application.Effect, now time.Time) lipgloss.Style {
	t := 1 - math.Abs(2*e.Progress(now)-1)
	return st.Foreground(blend(textColor, accentColor, t))
}

// appear draws the modal border in from the background.
func appear(st lipgloss.Style, e application.Effect, now time.Time) lipgloss.Style {
	return st.BorderForeground(blend(rowBackground, accentColor, e.Progress(now)))
}

func paint(st lipgloss.Style, f application.Frame, target string, now time.Time) lipgloss.Style {
	e, ok := f.Effect(target)
	if !ok || !f.Animations || e.Done(now) {
		return st
	}
	switch e.Kind {
	case application.EffectFlashSuccess, application.EffectFlashFailure:
		return flash(st, e, now)
	case application.EffectTableFadeIn:
		return fadeIn(st, e, now)
	case application.EffectSearchPulse:
		return pulse(st, e, now)
	case application.EffectModalAppear:
		return appear(st, e, now)
	}
	return st
}

// animating reports whether any effect of f still runs at now.
func animating(f application.Frame, now time.Time) bool {
	if !f.Animations {
		return false
	}
	for _, e := range f.Effects {
		if !e.Done(now) {
			return true
		}
	}
	return false
}
