// Package barproto implements the subset of the i3bar protocol used by the
// calibration editor.
//
// https://i3wm.org/docs/i3bar-protocol.html
package barproto

import (
	"slices"
	"strconv"
	"syscall"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/tidwall/gjson"
)

const Version = 1 // i3 v4.3+

// Mouse buttons.
const (
	ButtonLeft       = 1
	ButtonMiddle     = 2
	ButtonRight      = 3
	ButtonScrollUp   = 4
	ButtonScrollDown = 5
)

// Init represents an i3bar initialization message.
type Init struct {
	StopSignal  syscall.Signal
	ContSignal  syscall.Signal
	ClickEvents bool
}

func (x Init) MarshalJSON() ([]byte, error) {
	return x.AppendJSON(nil), nil
}

func (x Init) AppendJSON(s []byte) []byte {
	s = append(s, `{"version":`...)
	s = strconv.AppendInt(s, int64(Version), 10)
	if v := x.StopSignal; v != 0 {
		s = append(s, `,"stop_signal":`...)
		s = strconv.AppendInt(s, int64(v), 10)
	}
	if v := x.ContSignal; v != 0 {
		s = append(s, `,"cont_signal":`...)
		s = strconv.AppendInt(s, int64(v), 10)
	}
	if x.ClickEvents {
		s = append(s, `,"click_events":true`...)
	}
	return append(s, '}')
}

// Event represents an i3bar click event.
type Event struct {
	Name      string
	Instance  string
	Button    int // Button*
	Modifiers int // xproto.ModMask*
}

// Shift checks whether shift was held.
func (e Event) Shift() bool {
	return e.Modifiers&xproto.ModMaskShift != 0
}

// FromJSON parses b without any error checking.
func (e *Event) FromJSON(b []byte) {
	var event Event
	gjson.ParseBytes(b).ForEach(func(key, value gjson.Result) bool {
		switch key.Str {
		case "name":
			event.Name = value.Str
		case "instance":
			event.Instance = value.Str
		case "button":
			event.Button = int(value.Int())
		case "modifiers":
			value.ForEach(func(_, value gjson.Result) bool {
				switch value.Str {
				case "Shift":
					event.Modifiers |= xproto.ModMaskShift
				case "Control":
					event.Modifiers |= xproto.ModMaskControl
				case "Mod1": // Alt
					event.Modifiers |= xproto.ModMask1
				case "Mod4": // Super
					event.Modifiers |= xproto.ModMask4
				}
				return true
			})
		}
		return true
	})
	*e = event
}

// Block represents an i3bar block.
type Block struct {
	Name           string // optional, passed as-is for events
	Instance       string // optional, passed as-is for events
	FullText       string
	ShortText      string // optional
	Color          uint32 // 0xRRGGBBAA, zero for the bar default
	Background     uint32 // ^
	MinWidthString string // optional
	Align          string // left|center|right, used if smaller than MinWidthString
	Urgent         bool
	Separator      bool // whether to draw a separator line after the block
}

func (b Block) MarshalJSON() ([]byte, error) {
	return b.AppendJSON(nil), nil
}

func (b Block) AppendJSON(s []byte) []byte {
	s = append(s, `{"full_text":`...)
	s = jsonString(s, b.FullText)
	if v := b.ShortText; v != "" {
		s = append(s, `,"short_text":`...)
		s = jsonString(s, v)
	}
	if v := b.Color; v != 0 {
		s = append(s, `,"color":"`...)
		s = hexColor(s, v)
		s = append(s, '"')
	}
	if v := b.Background; v != 0 {
		s = append(s, `,"background":"`...)
		s = hexColor(s, v)
		s = append(s, '"')
	}
	if v := b.Name; v != "" {
		s = append(s, `,"name":`...)
		s = jsonString(s, v)
	}
	if v := b.Instance; v != "" {
		s = append(s, `,"instance":`...)
		s = jsonString(s, v)
	}
	if v := b.MinWidthString; v != "" {
		s = append(s, `,"min_width":`...)
		s = jsonString(s, v)
	}
	if v := b.Align; v != "" {
		s = append(s, `,"align":`...)
		s = jsonString(s, v)
	}
	if b.Urgent {
		s = append(s, `,"urgent":true`...)
	}
	if b.Separator {
		s = append(s, `,"separator":true`...)
	} else {
		s = append(s, `,"separator":false,"separator_block_width":0`...)
	}
	return append(s, '}')
}

func hexColor(b []byte, rrggbbaa uint32) []byte {
	const hex = "0123456789ABCDEF"
	n := 8
	if rrggbbaa&0xFF == 0xFF {
		n = 6 // opaque
	}
	b = slices.Grow(b, n+1)
	b = append(b, '#')
	for i := range n {
		b = append(b, hex[(rrggbbaa>>(28-4*i))&0xF])
	}
	return b
}

func jsonString(b []byte, s string) []byte {
	b = slices.Grow(b, len(s)+2)
	b = append(b, '"')
	x := 0 // note: this won't break utf-8 since we only check for < 0x20
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x20 && c != '\\' && c != '"' {
			continue
		}
		b = append(b, s[x:i]...)
		switch c {
		case '\\', '"':
			b = append(b, '\\', c)
		case '\n':
			b = append(b, '\\', 'n')
		case '\t':
			b = append(b, '\\', 't')
		default:
			b = append(b, '\\', 'u', '0', '0', "0123456789abcdef"[c>>4], "0123456789abcdef"[c&0xF])
		}
		x = i + 1
	}
	b = append(b, s[x:]...)
	return append(b, '"')
}
