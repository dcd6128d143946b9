// Package keycode maps Linux input key codes to the characters a barcode
// scanner in keyboard-emulation mode produces.
package keycode

import (
	"fmt"

	"github.com/holoplot/go-evdev"
)

// Kind categorizes a decoded key.
type Kind int

const (
	Unmapped   Kind = iota // No mapping for this code
	Printable              // A character that belongs in a payload
	Terminator             // End of scan (Enter, keypad Enter)
	Space                  // Blank; carries no payload content
)

func (k Kind) String() string {
	switch k {
	case Printable:
		return "printable"
	case Terminator:
		return "terminator"
	case Space:
		return "space"
	default:
		return "unmapped"
	}
}

// Char is the result of decoding one key code.
type Char struct {
	Kind Kind
	Rune rune
}

// Convenience values for the non-printable kinds.
var (
	None  = Char{Kind: Unmapped}
	EOL   = Char{Kind: Terminator, Rune: '\n'}
	Blank = Char{Kind: Space, Rune: ' '}
)

// Of returns the printable Char for r.
func Of(r rune) Char {
	return Char{Kind: Printable, Rune: r}
}

// Ignored reports whether the character contributes nothing to a scan.
func (c Char) Ignored() bool {
	return c.Kind == Unmapped || c.Kind == Space
}

func (c Char) String() string {
	switch c.Kind {
	case Printable:
		return string(c.Rune)
	case Terminator:
		return `\n`
	case Space:
		return " "
	default:
		return "?"
	}
}

// tableSize bounds the codes a scanner is known to emit (KEY_KPENTER is 96).
const tableSize = 128

type entry struct {
	code int
	char Char
}

var entries = []entry{
	{int(evdev.KEY_1), Of('1')},
	{int(evdev.KEY_2), Of('2')},
	{int(evdev.KEY_3), Of('3')},
	{int(evdev.KEY_4), Of('4')},
	{int(evdev.KEY_5), Of('5')},
	{int(evdev.KEY_6), Of('6')},
	{int(evdev.KEY_7), Of('7')},
	{int(evdev.KEY_8), Of('8')},
	{int(evdev.KEY_9), Of('9')},
	{int(evdev.KEY_0), Of('0')},
	{int(evdev.KEY_A), Of('a')},
	{int(evdev.KEY_B), Of('b')},
	{int(evdev.KEY_C), Of('c')},
	{int(evdev.KEY_ENTER), EOL},
	{int(evdev.KEY_KPENTER), EOL},
	{int(evdev.KEY_SPACE), Blank},
}

var table = buildTable(entries)

// buildTable panics on an invalid entry list; it only runs at init.
func buildTable(es []entry) [tableSize]Char {
	var t [tableSize]Char
	seen := make(map[int]bool, len(es))
	for _, e := range es {
		if e.code < 0 || e.code >= tableSize {
			panic(fmt.Sprintf("keycode: code %d outside table", e.code))
		}
		if seen[e.code] {
			panic(fmt.Sprintf("keycode: duplicate entry for code %d", e.code))
		}
		if e.char.Kind == Printable && (e.char.Rune == '\n' || e.char.Rune == '\r') {
			panic(fmt.Sprintf("keycode: code %d maps a line break as printable", e.code))
		}
		seen[e.code] = true
		t[e.code] = e.char
	}
	return t
}

// Decode maps a raw key code to a character. Codes outside the table,
// negative ones included, decode to None.
func Decode(code int) Char {
	if code < 0 || code >= tableSize {
		return None
	}
	return table[code]
}
