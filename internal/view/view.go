// Package view derives a renderable terminal frame from a point-in-time
// snapshot of engine state. It is a pure function: nothing here mutates
// state or performs I/O beyond returning a string for the caller to
// write to stdout. Each frame is a full redraw — clear, home, repaint —
// rather than an incremental diff against the previous frame.
package view

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Siiichenggg/cc-workbench/internal/model"
)

// Focus names the pane currently receiving keyboard input.
type Focus int

const (
	FocusOutput Focus = iota
	FocusHistory
)

// HistoryRow is one line of the history panel.
type HistoryRow struct {
	Idx     int
	Text    string
	Landed  bool // snapshot commit has arrived
	Pending bool // snapshot job in flight, no commit yet
}

// DiffView is the transient diff-modal projection of model.DiffPreview.
type DiffView struct {
	Title          string
	Lines          []string
	ScrollOffset   int
	PendingRestore bool
}

// State is everything the renderer needs, already resolved by the engine
// loop — no pointers back into mutable engine state.
type State struct {
	Width, Height     int
	OutputLines       []string
	Quota             []model.UsageEntry
	ContextUsed       int64
	ContextLimit      int64
	CompressThreshold float64
	History           []HistoryRow
	Selected          int
	Focus             Focus
	Diff              *DiffView
	ChildExited       bool
	Notice            string
}

const sidebarWidth = 34
const barLength = 20

// PaneSize returns the output pane's inner width and height for a
// terminal of cols x rows — the same dimensions Render actually gives
// the output pane. The PTY pump must be sized to exactly this, not the
// full terminal, or the wrapped child wraps its own output assuming
// columns it is never given to render into.
func PaneSize(cols, rows int) (width, height int) {
	width = cols - sidebarWidth - 1
	if width < 10 {
		width = cols
	}
	height = rows - 1
	if height < 1 {
		height = rows
	}
	return width, height
}

// Render produces the full frame: a clear-and-home escape followed by the
// output pane on the left and the workbench sidebar on the right, with an
// optional centered diff modal overlay.
func Render(s State) string {
	var b strings.Builder
	b.WriteString("\x1b[2J\x1b[H")

	leftWidth, _ := PaneSize(s.Width, s.Height)

	left := renderOutputPane(s, leftWidth)
	right := renderSidebar(s)

	rows := s.Height
	for i := 0; i < rows; i++ {
		l := lineAt(left, i)
		r := lineAt(right, i)
		b.WriteString(padTo(l, leftWidth))
		if leftWidth < s.Width {
			b.WriteString(" ")
			b.WriteString(r)
		}
		b.WriteString("\n")
	}

	if s.Diff != nil {
		b.WriteString(renderDiffModal(*s.Diff, s.Width, s.Height))
	}
	return b.String()
}

func renderOutputPane(s State, width int) []string {
	out := make([]string, len(s.OutputLines))
	for i, l := range s.OutputLines {
		out[i] = truncate(l, width)
	}
	return out
}

func renderSidebar(s State) []string {
	var lines []string
	lines = append(lines, renderQuotaPanel(s.Quota)...)
	lines = append(lines, "")
	lines = append(lines, renderContextPanel(s)...)
	lines = append(lines, "")
	lines = append(lines, renderHistoryList(s)...)
	if s.ChildExited {
		lines = append(lines, "", color.New(color.FgYellow).Sprint("child exited — output ceased"))
	}
	if s.Notice != "" {
		lines = append(lines, "", truncate(s.Notice, sidebarWidth))
	}
	return lines
}

func renderQuotaPanel(entries []model.UsageEntry) []string {
	if len(entries) == 0 {
		return nil
	}
	var lines []string
	first := entries[0]
	lines = append(lines, "quota")
	if first.Used != nil && first.Limit != nil {
		lines = append(lines, progressBar(first.Provider, fraction(first), false))
	} else {
		lines = append(lines, fmt.Sprintf("%s: %s", first.Provider, usageText(first)))
	}
	for _, e := range entries[1:] {
		lines = append(lines, fmt.Sprintf("  %s: %s", e.Provider, usageText(e)))
	}
	return lines
}

func renderContextPanel(s State) []string {
	used := s.ContextUsed
	limit := s.ContextLimit
	frac := 0.0
	if limit > 0 {
		frac = float64(used) / float64(limit)
	}
	warn := s.CompressThreshold > 0 && frac >= s.CompressThreshold
	pct := fmt.Sprintf("%s / %s tokens", humanize.Comma(used), humanize.Comma(limit))
	return []string{
		"context",
		progressBar(pct, frac, warn),
	}
}

func progressBar(label string, frac float64, warn bool) string {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	filled := int(frac * barLength)
	empty := barLength - filled
	bar := strings.Repeat("█", filled) + strings.Repeat("░", empty)
	pct := frac * 100
	line := fmt.Sprintf("%s [%s] %.0f%%", label, bar, pct)
	if warn {
		return color.New(color.FgRed).Sprint(line)
	}
	return color.New(color.FgGreen).Sprint(line)
}

func fraction(e model.UsageEntry) float64 {
	if e.Used == nil || e.Limit == nil || *e.Limit == 0 {
		return 0
	}
	return float64(*e.Used) / float64(*e.Limit)
}

// usageText prefers a numeric reading whenever one is present: a cached
// successful entry must keep displaying even after a later poll fails
// and records a status. Status is only shown when no numeric reading
// exists at all (pre-first-poll "loading", or a failure before any poll
// ever succeeded).
func usageText(e model.UsageEntry) string {
	if e.Used != nil && e.Limit != nil {
		return fmt.Sprintf("%s/%s", humanize.Comma(*e.Used), humanize.Comma(*e.Limit))
	}
	if e.Status != "" {
		return e.Status
	}
	return "n/a"
}

func renderHistoryList(s State) []string {
	tbl := table.NewWriter()
	tbl.AppendHeader(table.Row{"#", "prompt", ""})
	for i, row := range s.History {
		glyph := ""
		switch {
		case row.Landed:
			glyph = color.New(color.FgGreen).Sprint("✓")
		case row.Pending:
			glyph = "…"
		}
		text := truncate(row.Text, 20)
		line := table.Row{row.Idx, text, glyph}
		if i == s.Selected && s.Focus == FocusHistory {
			tbl.AppendRow(table.Row{"> " + fmt.Sprint(row.Idx), text, glyph})
			continue
		}
		tbl.AppendRow(line)
	}
	return strings.Split(tbl.Render(), "\n")
}

func renderDiffModal(d DiffView, width, height int) string {
	modalW := width * 2 / 3
	modalH := height * 2 / 3
	if modalW < 20 {
		modalW = width
	}
	if modalH < 6 {
		modalH = height
	}
	top := (width - modalW) / 2
	rowTop := (height - modalH) / 2

	var b strings.Builder
	title := d.Title
	b.WriteString(fmt.Sprintf("\x1b[%d;%dH", rowTop+1, top+1))
	b.WriteString("+" + strings.Repeat("-", modalW-2) + "+")
	b.WriteString(fmt.Sprintf("\x1b[%d;%dH", rowTop+2, top+1))
	b.WriteString("| " + padTo(title, modalW-4) + " |")

	visible := window(d.Lines, d.ScrollOffset, modalH-4)
	for i, l := range visible {
		b.WriteString(fmt.Sprintf("\x1b[%d;%dH", rowTop+3+i, top+1))
		b.WriteString("| " + padTo(truncate(l, modalW-4), modalW-4) + " |")
	}

	footer := "Esc/q close"
	if d.PendingRestore {
		footer = "restore? y/n"
	}
	b.WriteString(fmt.Sprintf("\x1b[%d;%dH", rowTop+modalH, top+1))
	b.WriteString("+" + strings.Repeat("-", modalW-2) + "+ " + footer)
	return b.String()
}

func window(lines []string, start, height int) []string {
	if start < 0 {
		start = 0
	}
	if start >= len(lines) {
		return nil
	}
	end := start + height
	if end > len(lines) {
		end = len(lines)
	}
	return lines[start:end]
}

func lineAt(lines []string, i int) string {
	if i < 0 || i >= len(lines) {
		return ""
	}
	return lines[i]
}

func padTo(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}
