package osd

import (
	"fmt"
	"strconv"

	"golang.org/x/image/colornames"
)

// Anchor is a position on the screen.
type Anchor int

const (
	AnchorTopLeft Anchor = iota
	AnchorTopCenter
	AnchorTopRight
	AnchorMiddleLeft
	AnchorMiddleCenter
	AnchorMiddleRight
	AnchorBottomLeft
	AnchorBottomCenter
	AnchorBottomRight
)

// Dim is a dimension relative to the screen size plus an absolute offset in
// pixels.
type Dim struct {
	Rel float64
	Abs int
}

// Style controls the overlay layout. Colors are #rgb, #rrggbb, or SVG color
// names.
type Style struct {
	X         Dim // center of the overlay
	Y         Dim // ^
	Length    Dim // of each channel bar
	Thickness int // of each channel bar
	Gap       int // between channel bars
	Border    int
	Padding   int
	Outline   int

	Background  string
	BorderColor string
	Channels    [3]string // fill color for each channel
}

// Anchor positions the overlay at the specified point, offset from the edge
// of the screen.
func (s Style) Anchor(anchor Anchor, offset int) Style {
	switch anchor % 3 {
	case 0:
		s.X = Dim{0.0, offset}
	case 1:
		s.X = Dim{0.5, 0}
	case 2:
		s.X = Dim{1.0, -offset}
	}
	switch anchor / 3 {
	case 0:
		s.Y = Dim{0.0, offset}
	case 1:
		s.Y = Dim{0.5, 0}
	case 2:
		s.Y = Dim{1.0, -offset}
	}
	return s
}

// DefaultStyle returns a style similar to the i3 default colors.
func DefaultStyle() Style {
	return Style{
		X:           Dim{Rel: 0.5},
		Y:           Dim{Rel: 1, Abs: -96},
		Length:      Dim{Rel: 0.25},
		Thickness:   12,
		Gap:         4,
		Border:      1,
		Padding:     4,
		Outline:     0,
		Background:  "#222222",
		BorderColor: "#4c7899",
		Channels:    [3]string{"#ff5555", "#55ff55", "#5555ff"},
	}
}

// parseColor parses a hex color or color name.
func parseColor(color string) (r, g, b uint8, err error) {
	if len(color) != 0 && color[0] == '#' {
		var n uint64
		switch len(color) {
		case 7:
			if n, err = strconv.ParseUint(color[1:], 16, 24); err == nil {
				return uint8(n >> 16), uint8(n >> 8), uint8(n), nil
			}
		case 4:
			if n, err = strconv.ParseUint(color[1:], 16, 12); err == nil {
				return uint8(n>>8&0xF) * 17, uint8(n>>4&0xF) * 17, uint8(n&0xF) * 17, nil
			}
		default:
			return 0, 0, 0, fmt.Errorf("invalid hex color %q: wrong length", color)
		}
		return 0, 0, 0, fmt.Errorf("invalid hex color %q: %w", color, err)
	}
	c, ok := colornames.Map[color]
	if !ok {
		return 0, 0, 0, fmt.Errorf("unknown color %q", color)
	}
	return c.R, c.G, c.B, nil
}
