package engine

// EventKind discriminates one parsed input event.
type EventKind int

const (
	EvChar EventKind = iota
	EvEnter
	EvBackspace
	EvTab
	EvCtrlQ
	EvArrowUp
	EvArrowDown
	EvArrowLeft
	EvArrowRight
	EvPageUp
	EvPageDown
	EvEnd
	EvEsc
)

// Event is one recognized keystroke, or a single raw byte when nothing
// more specific matched.
type Event struct {
	Kind EventKind
	Raw  []byte
}

const ctrlQ = 0x11 // DC1, the conventional Ctrl-Q control byte

// parseInput splits a raw stdin chunk into a sequence of Events. Arrow
// keys and navigation keys arrive as CSI escape sequences (ESC '[' ...);
// everything else is handled byte-by-byte so that a Ctrl-<letter> control
// byte (0x01-0x1A) reaches the child verbatim via EvChar's Raw field —
// the terminal driver in raw mode has already translated Ctrl-letter to
// its control byte. The exceptions are the bytes matched above: 0x08
// (Backspace), 0x09 (Tab), 0x0A and 0x0D (Enter) and 0x11 (Ctrl-Q).
func parseInput(data []byte) []Event {
	var events []Event
	i := 0
	for i < len(data) {
		b := data[i]
		switch {
		case b == 0x1b:
			ev, n := parseEscape(data[i:])
			events = append(events, ev)
			i += n
		case b == '\r' || b == '\n':
			events = append(events, Event{Kind: EvEnter, Raw: []byte{b}})
			i++
		case b == 0x7f || b == 0x08:
			events = append(events, Event{Kind: EvBackspace, Raw: []byte{b}})
			i++
		case b == 0x09:
			events = append(events, Event{Kind: EvTab, Raw: []byte{b}})
			i++
		case b == ctrlQ:
			events = append(events, Event{Kind: EvCtrlQ, Raw: []byte{b}})
			i++
		default:
			events = append(events, Event{Kind: EvChar, Raw: []byte{b}})
			i++
		}
	}
	return events
}

// parseEscape interprets one escape sequence starting at data[0] == ESC
// and returns the event plus how many bytes it consumed. Unrecognized
// sequences are passed through as a single EvEsc covering the whole run,
// so they still reach the child verbatim.
func parseEscape(data []byte) (Event, int) {
	if len(data) < 2 || data[1] != '[' {
		return Event{Kind: EvEsc, Raw: data[:1]}, 1
	}
	if len(data) >= 3 {
		switch data[2] {
		case 'A':
			return Event{Kind: EvArrowUp, Raw: data[:3]}, 3
		case 'B':
			return Event{Kind: EvArrowDown, Raw: data[:3]}, 3
		case 'C':
			return Event{Kind: EvArrowRight, Raw: data[:3]}, 3
		case 'D':
			return Event{Kind: EvArrowLeft, Raw: data[:3]}, 3
		case 'F':
			return Event{Kind: EvEnd, Raw: data[:3]}, 3
		}
	}
	if len(data) >= 4 && data[3] == '~' {
		switch data[2] {
		case '5':
			return Event{Kind: EvPageUp, Raw: data[:4]}, 4
		case '6':
			return Event{Kind: EvPageDown, Raw: data[:4]}, 4
		case '4':
			return Event{Kind: EvEnd, Raw: data[:4]}, 4
		}
	}
	// Unknown CSI sequence: consume through the terminator byte so the
	// remainder of the chunk parses cleanly, same range ansiline uses.
	end := 2
	for end < len(data) {
		c := data[end]
		if c >= '@' && c <= '~' {
			end++
			break
		}
		end++
	}
	return Event{Kind: EvEsc, Raw: data[:end]}, end
}
