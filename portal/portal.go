// Package portal reads the day/night mode from the freedesktop appearance
// settings exposed by xdg-desktop-portal.
package portal

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
	"github.com/pgaskin/kcal"
)

const (
	portalName      = "org.freedesktop.portal.Desktop"
	portalPath      = "/org/freedesktop/portal/desktop"
	settingsIface   = "org.freedesktop.portal.Settings"
	appearanceNS    = "org.freedesktop.appearance"
	colorSchemeKey  = "color-scheme"
	preferDark      = 1
	settingsChanged = settingsIface + ".SettingChanged"
)

// ColorScheme is a mode flag which is unset while the desktop prefers a dark
// color scheme.
type ColorScheme struct {
	conn   *dbus.Conn
	obj    dbus.BusObject
	logger *slog.Logger
}

var _ kcal.ModeFlag = (*ColorScheme)(nil)

// New connects to the session bus. If logger is not nil, it is used for debug
// logs from this package.
func New(logger *slog.Logger) (*ColorScheme, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	return &ColorScheme{
		conn:   conn,
		obj:    conn.Object(portalName, dbus.ObjectPath(portalPath)),
		logger: logger,
	}, nil
}

// IsDay checks whether the desktop doesn't prefer a dark color scheme. If the
// setting can't be read, it defaults to true.
func (c *ColorScheme) IsDay() bool {
	v, err := c.read()
	if err != nil {
		c.logger.Debug("portal: failed to read color scheme", "error", err)
		return true
	}
	scheme, ok := colorScheme(v)
	if !ok {
		c.logger.Debug("portal: unexpected color scheme value", "value", v)
		return true
	}
	return scheme != preferDark
}

func (c *ColorScheme) read() (dbus.Variant, error) {
	var v dbus.Variant
	err := c.obj.Call(settingsIface+".ReadOne", 0, appearanceNS, colorSchemeKey).Store(&v)
	if err != nil {
		// ReadOne was added in version 2 of the interface
		err = c.obj.Call(settingsIface+".Read", 0, appearanceNS, colorSchemeKey).Store(&v)
	}
	return v, err
}

// Watch calls fn whenever the color scheme changes. It returns a function to
// stop watching.
func (c *ColorScheme) Watch(fn func()) (func(), error) {
	if err := c.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(portalPath),
		dbus.WithMatchInterface(settingsIface),
		dbus.WithMatchMember("SettingChanged"),
		dbus.WithMatchArg(0, appearanceNS),
		dbus.WithMatchArg(1, colorSchemeKey),
	); err != nil {
		return nil, fmt.Errorf("add match: %w", err)
	}
	ch := make(chan *dbus.Signal, 6)
	c.conn.Signal(ch)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-ch:
				if sig.Name == settingsChanged && len(sig.Body) == 3 && sig.Body[0] == appearanceNS && sig.Body[1] == colorSchemeKey {
					fn()
				}
			case <-done:
				return
			}
		}
	}()
	return func() {
		c.conn.RemoveSignal(ch)
		close(done)
	}, nil
}

// Close closes the session bus connection.
func (c *ColorScheme) Close() error {
	return c.conn.Close()
}

// colorScheme unwraps the setting value, which is nested in another variant
// when returned by the deprecated Read method.
func colorScheme(v dbus.Variant) (uint32, bool) {
	for range 2 {
		switch x := v.Value().(type) {
		case uint32:
			return x, true
		case dbus.Variant:
			v = x
		default:
			return 0, false
		}
	}
	return 0, false
}
