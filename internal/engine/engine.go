// Package engine is the single-owner reducer that fuses keystrokes, PTY
// output, snapshot results, and config reloads into one consistent
// application model and drives the view projection. Exactly one
// goroutine — Run's caller — ever touches the state in this package;
// every other subsystem talks to it exclusively over channels, which
// keeps the ordering guarantees provable without any lock hierarchy.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/Siiichenggg/cc-workbench/internal/ansiline"
	"github.com/Siiichenggg/cc-workbench/internal/config"
	"github.com/Siiichenggg/cc-workbench/internal/model"
	"github.com/Siiichenggg/cc-workbench/internal/ptypump"
	"github.com/Siiichenggg/cc-workbench/internal/quota"
	"github.com/Siiichenggg/cc-workbench/internal/sessionlog"
	"github.com/Siiichenggg/cc-workbench/internal/snapshot"
	"github.com/Siiichenggg/cc-workbench/internal/tokenest"
	"github.com/Siiichenggg/cc-workbench/internal/view"
)

const inputPollInterval = 50 * time.Millisecond

// Deps bundles everything the engine loop reads from or writes to,
// already constructed by the caller (cmd/ccwb's bootstrap).
type Deps struct {
	Pump      *ptypump.Pump
	Snapshots *snapshot.Engine
	Quota     *quota.Aggregator
	Log       *sessionlog.Log
	Config    *config.Config
	ConfigCh  <-chan *config.Config
	Workspace string
	DataDir   string
	SessionID string
	Logger    *slog.Logger
	Stdin     *os.File
	Stdout    *os.File
}

// Engine owns all mutable application state.
type Engine struct {
	deps Deps

	focus          view.Focus
	prompts        []model.PromptEntry
	buf            *ansiline.Buffer
	selected       int
	scrollOffset   int
	follow         bool
	input          []byte
	diff           *model.DiffPreview
	notice         string
	dirty          bool
	cols, rows     int
	childExited    bool
	contextLimit   int64
	compressThresh float64
}

// New constructs an Engine ready to Run. cols/rows are the initial
// terminal dimensions.
func New(deps Deps, cols, rows int) *Engine {
	return &Engine{
		deps:           deps,
		focus:          view.FocusOutput,
		buf:            ansiline.New(),
		follow:         true,
		cols:           cols,
		rows:           rows,
		dirty:          true,
		contextLimit:   deps.Config.ContextLimit,
		compressThresh: deps.Config.CompressThreshold,
	}
}

// Run drives the reducer loop until ctx is canceled, Ctrl-Q is pressed,
// or stdin reaches EOF; the child exiting alone does not end it. It
// returns an error only if raw mode cannot be entered. It puts the
// terminal in raw mode for the duration, restoring it on return.
func (e *Engine) Run(ctx context.Context) error {
	fd := int(e.deps.Stdin.Fd())
	var restore func()
	if term.IsTerminal(fd) {
		old, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("engine: enter raw mode: %w", err)
		}
		restore = func() { term.Restore(fd, old) }
		defer restore()
	}

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)

	inputCh := make(chan []byte, 64)
	go e.readStdin(ctx, inputCh)

	ticker := time.NewTicker(inputPollInterval)
	defer ticker.Stop()

	e.render()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			if e.dirty {
				e.render()
				e.dirty = false
			}

		case <-winch:
			if w, h, err := term.GetSize(fd); err == nil {
				e.cols, e.rows = w, h
				paneW, paneH := view.PaneSize(w, h)
				e.deps.Pump.Resize(paneW, paneH)
				e.dirty = true
			}

		case chunk, ok := <-inputCh:
			if !ok {
				return nil
			}
			if quit := e.handleInput(chunk); quit {
				return nil
			}

		case chunk, ok := <-e.deps.Pump.Output():
			if !ok {
				e.childExited = true
				e.dirty = true
				continue
			}
			e.handleOutput(chunk)

		case res, ok := <-e.deps.Snapshots.Results():
			if !ok {
				continue
			}
			e.handleSnapshotResult(res)

		case cfg, ok := <-e.deps.ConfigCh:
			if ok && cfg != nil {
				e.contextLimit = cfg.ContextLimit
				e.compressThresh = cfg.CompressThreshold
				e.dirty = true
			}
		}
	}
}

func (e *Engine) readStdin(ctx context.Context, out chan<- []byte) {
	defer close(out)
	buf := make([]byte, 4096)
	for {
		n, err := e.deps.Stdin.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// handleInput dispatches one raw stdin chunk and reports whether the
// engine should exit (Ctrl-Q).
func (e *Engine) handleInput(chunk []byte) bool {
	for _, ev := range parseInput(chunk) {
		if e.dispatch(ev) {
			return true
		}
	}
	return false
}

func (e *Engine) dispatch(ev Event) (quit bool) {
	e.dirty = true

	// Quit is global: it works even while a diff modal is open.
	if ev.Kind == EvCtrlQ {
		return true
	}

	if e.diff != nil {
		e.dispatchDiffModal(ev)
		return false
	}

	switch ev.Kind {
	case EvTab:
		if e.focus == view.FocusOutput {
			e.focus = view.FocusHistory
		} else {
			e.focus = view.FocusOutput
		}
		return false
	case EvPageUp:
		e.scrollOffset = e.buf.Clamp(e.scrollOffset - 10)
		e.follow = false
		return false
	case EvPageDown:
		e.scrollOffset = e.buf.Clamp(e.scrollOffset + 10)
		e.follow = false
		return false
	case EvEnd:
		e.follow = true
		e.scrollOffset = e.buf.Len() - 1
		return false
	}

	if e.focus == view.FocusHistory {
		e.dispatchHistory(ev)
		return false
	}
	e.dispatchOutput(ev)
	return false
}

func (e *Engine) dispatchOutput(ev Event) {
	switch ev.Kind {
	case EvEnter:
		e.deps.Pump.Send([]byte("\r"))
		e.submitPrompt()
	case EvBackspace:
		e.input = trimLastRune(e.input)
		e.deps.Pump.Send(ev.Raw)
	case EvArrowUp, EvArrowDown, EvArrowLeft, EvArrowRight, EvEsc:
		e.deps.Pump.Send(ev.Raw)
	case EvChar:
		e.deps.Pump.Send(ev.Raw)
		if ev.Raw[0] >= 0x20 {
			e.input = append(e.input, ev.Raw...)
		}
	}
}

func (e *Engine) dispatchHistory(ev Event) {
	switch ev.Kind {
	case EvArrowUp:
		if e.selected > 0 {
			e.selected--
		}
	case EvArrowDown:
		if e.selected < len(e.prompts)-1 {
			e.selected++
		}
	case EvEnter:
		if e.selected < len(e.prompts) {
			p := e.prompts[e.selected]
			e.scrollOffset = e.buf.Clamp(p.OutputLine)
			e.follow = false
		}
	case EvChar:
		switch ev.Raw[0] {
		case 'd':
			e.openDiff(e.selected, false)
		case 'r':
			e.openDiff(e.selected, true)
		}
	}
}

func (e *Engine) dispatchDiffModal(ev Event) {
	switch ev.Kind {
	case EvArrowUp:
		if e.diff.ScrollOffset > 0 {
			e.diff.ScrollOffset--
		}
	case EvArrowDown:
		e.diff.ScrollOffset++
	case EvPageUp:
		e.diff.ScrollOffset -= 10
		if e.diff.ScrollOffset < 0 {
			e.diff.ScrollOffset = 0
		}
	case EvPageDown:
		e.diff.ScrollOffset += 10
	case EvEsc:
		e.closeDiff()
	case EvChar:
		switch ev.Raw[0] {
		case 'q':
			e.closeDiff()
		case 'y':
			if e.diff.PendingRestore.Valid() {
				e.restore(e.diff.PendingRestore)
			}
			e.closeDiff()
		case 'n':
			e.closeDiff()
		}
	}
}

func (e *Engine) openDiff(idx int, armRestore bool) {
	if idx < 0 || idx >= len(e.prompts) {
		return
	}
	p := e.prompts[idx]
	if !p.SnapshotCommit.Valid() {
		return
	}
	e.notice = ""
	lines, err := e.deps.Snapshots.Diff(context.Background(), p.SnapshotCommit)
	if err != nil {
		e.deps.Logger.Warn("diff failed", "error", err)
		return
	}
	preview := &model.DiffPreview{
		Title: fmt.Sprintf("prompt %d", p.Idx),
		Lines: lines,
	}
	if armRestore {
		preview.PendingRestore = p.SnapshotCommit
	}
	e.diff = preview
}

func (e *Engine) closeDiff() {
	e.diff = nil
}

func (e *Engine) restore(commit model.Commit) {
	if err := e.deps.Snapshots.Restore(context.Background(), e.deps.DataDir, commit, e.deps.Workspace, time.Now()); err != nil {
		e.deps.Logger.Warn("restore failed", "error", err)
		e.notice = fmt.Sprintf("restore failed: %v", err)
		return
	}
	short := string(commit)
	if len(short) > 8 {
		short = short[:8]
	}
	e.notice = "restored " + short
}

func trimLastRune(b []byte) []byte {
	if len(b) == 0 {
		return b
	}
	_, size := utf8.DecodeLastRune(b)
	return b[:len(b)-size]
}

func (e *Engine) submitPrompt() {
	text := bytes.TrimRight(e.input, " \t\r\n")
	e.input = nil
	if len(text) == 0 {
		return
	}
	idx := len(e.prompts) + 1
	entry := model.PromptEntry{
		Idx:        idx,
		ID:         uuid.NewString(),
		Text:       string(text),
		OutputLine: e.buf.Len() - 1,
	}
	e.prompts = append(e.prompts, entry)
	e.selected = len(e.prompts) - 1

	if e.deps.Log != nil {
		if err := e.deps.Log.AppendPrompt(e.deps.SessionID, idx, "user", entry.Text); err != nil {
			e.deps.Logger.Warn("failed to log prompt", "error", err)
		}
	}
	e.deps.Snapshots.Enqueue(snapshot.Job{PromptID: entry.ID, PromptIdx: idx})
}

func (e *Engine) handleOutput(chunk []byte) {
	e.buf.Append(chunk)
	if len(e.prompts) > 0 {
		last := &e.prompts[len(e.prompts)-1]
		last.AssistantText += ansiline.StripANSI(string(chunk))
	}
	if e.follow {
		e.scrollOffset = e.buf.Len() - 1
	}
	e.dirty = true
}

func (e *Engine) handleSnapshotResult(res snapshot.Result) {
	for i := range e.prompts {
		if e.prompts[i].ID == res.PromptID {
			if res.Commit.Valid() {
				e.prompts[i].SnapshotCommit = res.Commit
				if e.deps.Log != nil {
					if err := e.deps.Log.AppendSnapshot(e.deps.SessionID, e.prompts[i].Idx, res.Commit); err != nil {
						e.deps.Logger.Warn("failed to log snapshot", "error", err)
					}
				}
			}
			break
		}
	}
	e.dirty = true
}

func (e *Engine) contextTokens() int {
	total := 0
	for _, p := range e.prompts {
		total += tokenest.Estimate(p.Text)
		total += tokenest.Estimate(p.AssistantText)
	}
	return total
}

func (e *Engine) render() {
	tokens := e.contextTokens()
	s := view.State{
		Width:             e.cols,
		Height:            e.rows,
		OutputLines:       e.buf.Window(e.windowStart(), e.rows-1),
		Quota:             e.deps.Quota.Entries(tokens),
		ContextUsed:       int64(tokens),
		ContextLimit:      e.contextLimit,
		CompressThreshold: e.compressThresh,
		History:           e.historyRows(),
		Selected:          e.selected,
		Focus:             e.focus,
		ChildExited:       e.childExited,
		Notice:            e.notice,
	}
	if e.diff != nil {
		s.Diff = &view.DiffView{
			Title:          e.diff.Title,
			Lines:          e.diff.Lines,
			ScrollOffset:   e.diff.ScrollOffset,
			PendingRestore: e.diff.PendingRestore.Valid(),
		}
	}
	frame := view.Render(s)
	e.deps.Stdout.WriteString(frame)
}

func (e *Engine) windowStart() int {
	start := e.scrollOffset - (e.rows - 1) + 1
	return e.buf.Clamp(start)
}

func (e *Engine) historyRows() []view.HistoryRow {
	rows := make([]view.HistoryRow, len(e.prompts))
	for i, p := range e.prompts {
		rows[i] = view.HistoryRow{
			Idx:     p.Idx,
			Text:    p.Text,
			Landed:  p.SnapshotCommit.Valid(),
			Pending: !p.SnapshotCommit.Valid(),
		}
	}
	return rows
}
