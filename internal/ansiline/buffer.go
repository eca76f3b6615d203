// Package ansiline strips ANSI control sequences from child-agent output
// and appends the cleaned bytes to a bounded, FIFO-evicting line store.
//
// This is deliberately not a terminal emulator: the buffer keeps a flat
// transcript of what the child wrote, so escape sequences are dropped
// rather than interpreted. Cursor motion, erase, and alt-screen
// semantics would overwrite transcript text that callers (prompt
// attribution, token estimation) need to keep.
package ansiline

import "strings"

// MaxLines is the hard cap on stored lines; the oldest are evicted FIFO.
const MaxLines = 5000

// Buffer is a bounded, append-only sequence of display lines fed by
// arbitrary byte chunks. It is not safe for concurrent use; callers
// (the engine loop) own it exclusively.
type Buffer struct {
	lines      []string
	totalChars int // running rune count of stored content, newlines included
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{lines: []string{""}}
}

// Append strips ANSI sequences from chunk and appends the result, folding
// a still-open trailing line into the next write the way a real terminal
// does. It returns the number of characters the cleaned chunk contributed
// (pre-eviction).
func (b *Buffer) Append(chunk []byte) int {
	clean := StripANSI(string(chunk))
	if clean == "" {
		return 0
	}
	n := runeCount(clean)

	parts := strings.Split(clean, "\n")
	if len(b.lines) == 0 {
		b.lines = []string{""}
	}
	// First fragment extends the currently-open last line.
	last := len(b.lines) - 1
	b.lines[last] += parts[0]
	for _, p := range parts[1:] {
		b.lines = append(b.lines, p)
	}
	b.totalChars += n

	b.evict()
	return n
}

// TotalChars returns the running rune count of everything ever appended,
// minus whatever was evicted from the front.
func (b *Buffer) TotalChars() int { return b.totalChars }

func runeCount(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}

// evict drops lines from the front until the cap is respected. Offsets
// held elsewhere are not rebased; callers must clamp stale anchors.
func (b *Buffer) evict() {
	if len(b.lines) <= MaxLines {
		return
	}
	drop := len(b.lines) - MaxLines
	for _, l := range b.lines[:drop] {
		// +1 for the newline that terminated the evicted line; every
		// dropped line has one since lines exist after it.
		b.totalChars -= runeCount(l) + 1
	}
	b.lines = append([]string(nil), b.lines[drop:]...)
}

// Len returns the current number of stored lines.
func (b *Buffer) Len() int { return len(b.lines) }

// Line returns the line at idx, clamped into range. Negative or
// out-of-range offsets clamp to the nearest valid index, so anchors that
// went stale through eviction still resolve.
func (b *Buffer) Line(idx int) string {
	if len(b.lines) == 0 {
		return ""
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= len(b.lines) {
		idx = len(b.lines) - 1
	}
	return b.lines[idx]
}

// Window returns a slice of lines [start, start+height), clamping both
// ends into range. Used by the view projection to derive a scroll window.
func (b *Buffer) Window(start, height int) []string {
	if height <= 0 || len(b.lines) == 0 {
		return nil
	}
	if start < 0 {
		start = 0
	}
	if start >= len(b.lines) {
		start = len(b.lines) - 1
	}
	end := start + height
	if end > len(b.lines) {
		end = len(b.lines)
	}
	return b.lines[start:end]
}

// Clamp bounds an arbitrary line offset (e.g. a stale prompt output_line
// anchor) into the buffer's current valid range.
func (b *Buffer) Clamp(idx int) int {
	if idx < 0 {
		return 0
	}
	if idx >= len(b.lines) {
		if len(b.lines) == 0 {
			return 0
		}
		return len(b.lines) - 1
	}
	return idx
}

// StripANSI removes CSI escape sequences (ESC '[' ... final-byte) and bare
// ESC bytes, and elides carriage returns. Characters following a bare ESC
// pass through untouched. It is idempotent and the identity function on
// strings containing no ESC.
func StripANSI(s string) string {
	if !strings.ContainsRune(s, 0x1b) {
		return stripCR(s)
	}
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\r' {
			continue
		}
		if r != 0x1b {
			b.WriteRune(r)
			continue
		}
		// ESC seen. Determine if it's a CSI sequence (ESC '[').
		if i+1 < len(runes) && runes[i+1] == '[' {
			i += 2
			for i < len(runes) {
				c := runes[i]
				if c >= '@' && c <= '~' {
					break
				}
				i++
			}
			// i now points at the terminator (or past the end); the
			// outer loop's i++ will advance past it.
			continue
		}
		// Bare ESC (no '['): drop just the ESC byte itself.
	}
	return b.String()
}

func stripCR(s string) string {
	if !strings.ContainsRune(s, '\r') {
		return s
	}
	return strings.ReplaceAll(s, "\r", "")
}
