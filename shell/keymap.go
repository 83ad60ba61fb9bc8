/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package shell

// Key names the keyboard events a terminal UI can produce. Printable keys
// carry their rune in Char instead of using a named constant.
type Key int

const (
	KeyChar Key = iota
	KeyEnter
	KeyBackspace
	KeyTab
	KeyEsc
	KeyUp
	KeyDown
	KeyRight
	KeyLeft
	KeyHome
	KeyEnd
	KeyPgUp
	KeyPgDn
	KeyDelete
	KeyInsert
	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12
)

// Event describes one keyboard event as a terminal UI observes it, before
// translation to the byte sequence that travels in a protocol.KeyEvent.
type Event struct {
	Key  Key
	Char rune
	Ctrl bool
	Alt  bool
}

var fKeySeq = map[Key]string{
	KeyF1: "\x1bOP", KeyF2: "\x1bOQ", KeyF3: "\x1bOR", KeyF4: "\x1bOS",
	KeyF5: "\x1b[15~", KeyF6: "\x1b[17~", KeyF7: "\x1b[18~", KeyF8: "\x1b[19~",
	KeyF9: "\x1b[20~", KeyF10: "\x1b[21~", KeyF11: "\x1b[23~", KeyF12: "\x1b[24~",
}

var namedSeq = map[Key]string{
	KeyEnter:     "\x0d",
	KeyBackspace: "\x7f",
	KeyTab:       "\x09",
	KeyEsc:       "\x1b",
	KeyUp:        "\x1b[A",
	KeyDown:      "\x1b[B",
	KeyRight:     "\x1b[C",
	KeyLeft:      "\x1b[D",
	KeyHome:      "\x1b[H",
	KeyEnd:       "\x1b[F",
	KeyPgUp:      "\x1b[5~",
	KeyPgDn:      "\x1b[6~",
	KeyDelete:    "\x1b[3~",
	KeyInsert:    "\x1b[2~",
}

// Encode translates a terminal UI key event to the byte sequence that
// belongs in a protocol.KeyEvent.Data, per the normative client->host
// mapping: control+letter maps to 0x01-0x1A, alt+X prefixes X with ESC, and
// named keys use their ANSI/VT sequences.
func Encode(ev Event) []byte {
	if seq, ok := fKeySeq[ev.Key]; ok {
		return []byte(seq)
	}
	if seq, ok := namedSeq[ev.Key]; ok {
		return []byte(seq)
	}

	if ev.Ctrl && ev.Char >= 'a' && ev.Char <= 'z' {
		return []byte{byte(ev.Char-'a') + 1}
	}
	if ev.Ctrl && ev.Char >= 'A' && ev.Char <= 'Z' {
		return []byte{byte(ev.Char-'A') + 1}
	}

	if ev.Alt {
		return append([]byte{0x1b}, []byte(string(ev.Char))...)
	}

	return []byte(string(ev.Char))
}
