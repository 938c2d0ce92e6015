// Package osd draws an X11 overlay showing the channels of a calibration
// vector while it is being edited.
//
// Based on github.com/florentc/xob@d6ca69d6a45a9c1ac1c99e00357d0df32f956f19.
package osd

import (
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/pgaskin/kcal/calproto"
)

// Overlay is an override-redirect window with a bar for each channel.
type Overlay struct {
	conn     *xgb.Conn
	screen   *xproto.ScreenInfo
	window   xproto.Window
	mapped   bool
	geometry geometry

	bg       xproto.Gcontext
	border   xproto.Gcontext
	channels [calproto.Channels]xproto.Gcontext
	gcs      []xproto.Gcontext
}

type geometry struct {
	X, Y      int // top-left corner of the window
	Outline   int
	Border    int
	Padding   int
	Length    int
	Thickness int
	Gap       int
}

func (g geometry) fat() int {
	return g.Outline + g.Border + g.Padding
}

func (g geometry) Width() int {
	return g.Length + 2*g.fat()
}

func (g geometry) Height() int {
	return calproto.Channels*g.Thickness + (calproto.Channels-1)*g.Gap + 2*g.fat()
}

// Bar gets the rectangle for the filled part of a channel bar.
func (g geometry) Bar(channel int, value uint8) xproto.Rectangle {
	return xproto.Rectangle{
		X:      int16(g.fat()),
		Y:      int16(g.fat() + channel*(g.Thickness+g.Gap)),
		Width:  uint16(int(value) * g.Length / calproto.Max),
		Height: uint16(g.Thickness),
	}
}

// layout computes the geometry for a screen size.
func layout(s Style, width, height int) geometry {
	g := geometry{
		Outline:   s.Outline,
		Border:    s.Border,
		Padding:   s.Padding,
		Thickness: s.Thickness,
		Gap:       s.Gap,
	}
	g.Length = clamp(int(float64(width)*s.Length.Rel)+s.Length.Abs, 0, width-2*g.fat())
	g.X = clamp(int(float64(width)*s.X.Rel)-g.Width()/2, 0, width-g.Width()) + s.X.Abs
	g.Y = clamp(int(float64(height)*s.Y.Rel)-g.Height()/2, 0, height-g.Height()) + s.Y.Abs
	return g
}

// New creates a hidden overlay on the default screen of $DISPLAY.
func New(style Style) (*Overlay, error) {
	var (
		o   Overlay
		err error
	)
	if o.conn, err = xgb.NewConn(); err != nil {
		return nil, fmt.Errorf("connect to display: %w", err)
	}
	o.screen = xproto.Setup(o.conn).DefaultScreen(o.conn)
	o.geometry = layout(style, int(o.screen.WidthInPixels), int(o.screen.HeightInPixels))

	if o.window, err = xproto.NewWindowId(o.conn); err != nil {
		o.Close()
		return nil, err
	}
	if err = xproto.CreateWindowChecked(
		o.conn,
		o.screen.RootDepth, o.window, o.screen.Root,
		int16(o.geometry.X), int16(o.geometry.Y),
		uint16(o.geometry.Width()), uint16(o.geometry.Height()),
		0,
		xproto.WindowClassInputOutput, o.screen.RootVisual,
		xproto.CwBackPixel|xproto.CwBorderPixel|xproto.CwOverrideRedirect|xproto.CwColormap, []uint32{o.screen.BlackPixel, o.screen.BlackPixel, 1, uint32(o.screen.DefaultColormap)},
	).Check(); err != nil {
		o.window = 0
		o.Close()
		return nil, fmt.Errorf("create window: %w", err)
	}
	for _, atom := range []xproto.Atom{xproto.AtomWmName, xproto.AtomWmClass} {
		if err = xproto.ChangePropertyChecked(o.conn, xproto.PropModeReplace, o.window, atom, xproto.AtomString, 8, 4, []byte("kcal")).Check(); err != nil {
			o.Close()
			return nil, fmt.Errorf("set window properties: %w", err)
		}
	}
	if err := o.above(); err != nil {
		o.Close()
		return nil, fmt.Errorf("set window state: %w", err)
	}

	for _, v := range []struct {
		gc    *xproto.Gcontext
		color string
	}{
		{&o.bg, style.Background},
		{&o.border, style.BorderColor},
		{&o.channels[0], style.Channels[0]},
		{&o.channels[1], style.Channels[1]},
		{&o.channels[2], style.Channels[2]},
	} {
		if *v.gc, err = o.gc(v.color); err != nil {
			o.Close()
			return nil, err
		}
	}
	return &o, nil
}

// above makes the window always-on-top.
func (o *Overlay) above() error {
	ts, err := xproto.InternAtom(o.conn, false, uint16(len("_NET_WM_STATE")), "_NET_WM_STATE").Reply()
	if err != nil {
		return err
	}
	tsa, err := xproto.InternAtom(o.conn, false, uint16(len("_NET_WM_STATE_ABOVE")), "_NET_WM_STATE_ABOVE").Reply()
	if err != nil {
		return err
	}
	return xproto.SendEventChecked(o.conn, false, o.screen.Root, xproto.EventMaskSubstructureNotify|xproto.EventMaskSubstructureRedirect, string(xproto.ClientMessageEvent{
		Type:   ts.Atom,
		Window: o.window,
		Format: 32,
		Data: xproto.ClientMessageDataUnionData32New([]uint32{
			1, // _NET_WM_STATE_ADD
			uint32(tsa.Atom),
			0,
			0,
			0,
		}),
	}.Bytes())).Check()
}

func (o *Overlay) gc(color string) (xproto.Gcontext, error) {
	r, g, b, err := parseColor(color)
	if err != nil {
		return 0, err
	}
	xc, err := xproto.AllocColor(o.conn, o.screen.DefaultColormap, uint16(r)*257, uint16(g)*257, uint16(b)*257).Reply()
	if err != nil {
		return 0, fmt.Errorf("allocate color %q: %w", color, err)
	}
	xg, err := xproto.NewGcontextId(o.conn)
	if err != nil {
		return 0, err
	}
	if err := xproto.CreateGCChecked(o.conn, xg, xproto.Drawable(o.window), xproto.GcForeground, []uint32{xc.Pixel}).Check(); err != nil {
		return 0, fmt.Errorf("create gc: %w", err)
	}
	o.gcs = append(o.gcs, xg)
	return xg, nil
}

// Show shows the overlay if hidden, and draws v.
func (o *Overlay) Show(v calproto.Vector) error {
	if !o.mapped {
		if err := xproto.MapWindowChecked(o.conn, o.window).Check(); err != nil {
			return err
		}
		o.mapped = true
		if err := xproto.ConfigureWindowChecked(o.conn, o.window, xproto.ConfigWindowStackMode, []uint32{xproto.StackModeAbove}).Check(); err != nil {
			return err
		}
	}
	g := o.geometry
	if err := o.fill(o.bg, xproto.Rectangle{
		Width:  uint16(g.Width()),
		Height: uint16(g.Height()),
	}); err != nil {
		return err
	}
	if g.Border != 0 {
		if err := o.fill(o.border, xproto.Rectangle{
			X:      int16(g.Outline),
			Y:      int16(g.Outline),
			Width:  uint16(g.Width() - 2*g.Outline),
			Height: uint16(g.Height() - 2*g.Outline),
		}); err != nil {
			return err
		}
		if err := o.fill(o.bg, xproto.Rectangle{
			X:      int16(g.Outline + g.Border),
			Y:      int16(g.Outline + g.Border),
			Width:  uint16(g.Width() - 2*(g.Outline+g.Border)),
			Height: uint16(g.Height() - 2*(g.Outline+g.Border)),
		}); err != nil {
			return err
		}
	}
	for ch, gc := range o.channels {
		if err := o.fill(gc, g.Bar(ch, v[ch])); err != nil {
			return err
		}
	}
	o.conn.Sync()
	return nil
}

func (o *Overlay) fill(gc xproto.Gcontext, r xproto.Rectangle) error {
	if r.Width == 0 || r.Height == 0 {
		return nil
	}
	return xproto.PolyFillRectangleChecked(o.conn, xproto.Drawable(o.window), gc, []xproto.Rectangle{r}).Check()
}

// Hide hides the overlay.
func (o *Overlay) Hide() error {
	if o.conn == nil || !o.mapped {
		return nil
	}
	if err := xproto.UnmapWindowChecked(o.conn, o.window).Check(); err != nil {
		return err
	}
	o.mapped = false
	return nil
}

// Close destroys the overlay.
func (o *Overlay) Close() {
	if o.conn == nil {
		return
	}
	if o.window != 0 {
		_ = o.Hide()
		_ = xproto.DestroyWindowChecked(o.conn, o.window).Check()
	}
	for _, gc := range o.gcs {
		_ = xproto.FreeGCChecked(o.conn, gc).Check()
	}
	o.conn.Close()
	o.conn = nil
}

func clamp(value, lo, hi int) int {
	return max(lo, min(value, hi))
}
