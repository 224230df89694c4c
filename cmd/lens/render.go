package main

import (
	"fmt"
	"io"
	"strings"

	"laserlens/internal/agent"
	"laserlens/internal/state"

	"github.com/charmbracelet/lipgloss"
)

var (
	bannerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	errStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F87"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))
	labelStyle  = lipgloss.NewStyle().Bold(true)
)

// maxResultPreview caps directive output echoed to the terminal.
const maxResultPreview = 300

// printer renders driver events to a writer.
type printer struct {
	out       io.Writer
	lastLoop  int
	midStream bool
}

func (p *printer) event(ev agent.Event) {
	switch ev.Kind {
	case agent.EventChunk:
		if ev.Loop != p.lastLoop {
			fmt.Fprintln(p.out, bannerStyle.Render(fmt.Sprintf("── Loop %d of %d ──", ev.Loop, ev.Total)))
			p.lastLoop = ev.Loop
		}
		fmt.Fprint(p.out, ev.Text)
		p.midStream = true
	case agent.EventTurnEnd:
		if p.midStream {
			fmt.Fprintln(p.out)
			p.midStream = false
		}
		for _, r := range ev.Directives {
			style := okStyle
			if !r.IsSuccess() {
				style = errStyle
			}
			fmt.Fprintf(p.out, "%s %s\n", style.Render("▶ "+r.Name), preview(r.Output))
		}
		fmt.Fprintln(p.out, dimStyle.Render(fmt.Sprintf("loop %d of %d complete (%d chars)", ev.Loop, ev.Total, len(ev.Text))))
	case agent.EventError:
		if p.midStream {
			fmt.Fprintln(p.out)
			p.midStream = false
		}
		fmt.Fprintln(p.out, errStyle.Render("✗ "+ev.Text))
	}
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > maxResultPreview {
		return string(r[:maxResultPreview]) + "…"
	}
	return s
}

// printSession writes a status summary of a persisted session.
func printSession(out io.Writer, s *state.Session) {
	status := s.Status()
	if status == state.StatusEmpty {
		fmt.Fprintln(out, "No session state found.")
		return
	}
	fmt.Fprintln(out, bannerStyle.Render("Session "+s.SessionID))
	row := func(k, v string) { fmt.Fprintf(out, "  %s %s\n", labelStyle.Render(fmt.Sprintf("%-10s", k+":")), v) }
	row("Topic", s.Topic)
	if s.Model != "" {
		row("Model", s.Model)
	}
	row("Status", string(status))
	row("Loop", fmt.Sprintf("%d of %d", s.CurrentLoopIndex, s.TotalLoops))
	row("Turns", fmt.Sprintf("%d", len(s.History)))
	if s.Paused != nil {
		row("Paused", *s.Paused)
	}
	if s.Cancelled != nil {
		row("Cancelled", *s.Cancelled)
	}
	if s.TmpStreamPath != "" {
		row("Stream", s.TmpStreamPath)
	}
	if !s.UpdatedAt.IsZero() {
		row("Updated", s.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if s.LastThought != "" {
		fmt.Fprintln(out, dimStyle.Render("  last thought: "+preview(firstLine(s.LastThought))))
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
