// Package kcal implements a live-preview editor for display color calibration
// vectors with separate day and night profiles.
//
// A [Controller] owns a single edit session at a time. Every change made
// during the session is written to the hardware immediately, and the hardware
// is always returned to the value it had before the session unless the session
// is confirmed.
package kcal

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/pgaskin/kcal/calproto"
	"github.com/pgaskin/kcal/preset"
)

// Some errors.
var (
	ErrUnset           = errors.New("calibration not set")
	ErrStoreWrite      = errors.New("failed to save calibration")
	ErrHardwareWrite   = errors.New("failed to apply calibration")
	ErrSessionActive   = errors.New("calibration session already active")
	ErrInvalidSnapshot = errors.New("invalid calibration snapshot")
)

// Store persists the calibration for each profile.
type Store interface {
	// Get gets the persisted calibration for a profile. If it is not set, the
	// error must wrap ErrUnset.
	Get(calproto.Profile) (calproto.Vector, error)

	// Set persists the calibration for a profile.
	Set(calproto.Profile, calproto.Vector) error
}

// Hardware is a calibration control surface.
type Hardware interface {
	// Read reads the currently active calibration.
	Read() (calproto.Vector, error)

	// Write writes an entire calibration vector at once.
	Write(calproto.Vector) error
}

// ModeFlag determines which profile is currently active system-wide.
type ModeFlag interface {
	IsDay() bool
}

// State is the state of a [Controller].
type State int

const (
	Closed State = iota
	Loading
	Editing
	Committing
	Cancelling
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Loading:
		return "loading"
	case Editing:
		return "editing"
	case Committing:
		return "committing"
	case Cancelling:
		return "cancelling"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Controller edits calibration profiles, previewing changes live on the
// hardware. It is not safe for concurrent use, and only one controller may
// edit a hardware channel at once.
type Controller struct {
	store   Store
	hw      Hardware
	mode    ModeFlag
	presets *preset.Catalog
	logger  *slog.Logger

	state    State
	profile  calproto.Profile
	explicit bool // profile chosen by the user, not the mode flag

	original *calproto.Vector // nil if not captured yet
	working  calproto.Vector
	selected int
}

// New creates a new closed Controller. If logger is nil, diagnostics are
// discarded. If presets is nil, an empty catalog is used.
func New(store Store, hw Hardware, mode ModeFlag, presets *preset.Catalog, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if presets == nil {
		presets = preset.New("Custom")
	}
	return &Controller{
		store:   store,
		hw:      hw,
		mode:    mode,
		presets: presets,
		logger:  logger,
		profile: calproto.ProfileOf(mode.IsDay()),
	}
}

// State gets the current state.
func (c *Controller) State() State {
	return c.state
}

// Profile gets the profile being edited, or which will be edited by the next
// session.
func (c *Controller) Profile() calproto.Profile {
	return c.profile
}

// Working gets the live calibration. It is only meaningful while editing.
func (c *Controller) Working() calproto.Vector {
	return c.working
}

// Original gets the calibration which will be restored if the session is
// cancelled.
func (c *Controller) Original() (calproto.Vector, bool) {
	if c.original == nil {
		return calproto.Vector{}, false
	}
	return *c.original, true
}

// Selected gets the index of the preset matching the live calibration, or
// [preset.None].
func (c *Controller) Selected() int {
	return c.selected
}

// Presets gets the preset catalog.
func (c *Controller) Presets() *preset.Catalog {
	return c.presets
}

// BeginSession starts editing the profile selected by the mode flag, or the
// one chosen with SwitchProfile.
func (c *Controller) BeginSession() error {
	if c.state != Closed {
		c.logger.Debug("ignoring begin session", "state", c.state)
		return nil
	}
	if !c.explicit {
		c.profile = calproto.ProfileOf(c.mode.IsDay())
	}
	return c.load()
}

// load transitions through Loading to Editing for the current profile,
// capturing the original vector if required.
func (c *Controller) load() error {
	c.state = Loading
	if c.original == nil {
		v := c.persisted(c.profile)
		c.original = &v
		c.working = v
	}
	c.state = Editing
	c.logger.Debug("editing calibration", "profile", c.profile, "original", *c.original)
	return c.apply()
}

// persisted gets the persisted calibration for p, falling back to
// [calproto.Default].
func (c *Controller) persisted(p calproto.Profile) calproto.Vector {
	v, err := c.store.Get(p)
	if err != nil {
		if errors.Is(err, ErrUnset) {
			c.logger.Debug("using default calibration", "profile", p)
		} else {
			c.logger.Warn("failed to read calibration, using default", "profile", p, "error", err)
		}
		return calproto.Default
	}
	return v
}

// apply re-syncs the preset selection and writes the working vector.
func (c *Controller) apply() error {
	c.selected = c.presets.IndexOf(c.working)
	return c.write(c.working)
}

func (c *Controller) write(v calproto.Vector) error {
	if err := c.hw.Write(v); err != nil {
		c.logger.Error("failed to write calibration", "vector", v, "error", err)
		return fmt.Errorf("%w %q: %w", ErrHardwareWrite, v, err)
	}
	return nil
}

// AdjustChannel sets a single channel, clamping value to the channel range.
func (c *Controller) AdjustChannel(channel, value int) error {
	if c.state != Editing {
		c.logger.Debug("ignoring adjust channel", "state", c.state)
		return nil
	}
	if channel < 0 || channel >= calproto.Channels {
		c.logger.Debug("ignoring adjust channel", "channel", channel)
		return nil
	}
	c.working = c.working.With(channel, value)
	return c.apply()
}

// ApplyPreset replaces the calibration with a preset. The index must not be
// [preset.None].
func (c *Controller) ApplyPreset(index int) error {
	if c.state != Editing {
		c.logger.Debug("ignoring apply preset", "state", c.state)
		return nil
	}
	e, ok := c.presets.At(index)
	if !ok || index == preset.None {
		c.logger.Debug("ignoring apply preset", "index", index)
		return nil
	}
	c.working = e.Vector
	return c.apply()
}

// ResetToDefault replaces the calibration with [calproto.Default].
func (c *Controller) ResetToDefault() error {
	if c.state != Editing {
		c.logger.Debug("ignoring reset", "state", c.state)
		return nil
	}
	c.working = calproto.Default
	return c.apply()
}

// SwitchProfile changes the profile being edited, discarding any changes made
// to the current one and loading the new one. The hardware is not restored
// first since loading the new profile overwrites it anyway. If not editing, it
// chooses the profile for the next session instead of the mode flag. Switching
// to the current profile does nothing.
func (c *Controller) SwitchProfile(p calproto.Profile) error {
	if !p.Valid() {
		c.logger.Debug("ignoring switch profile", "profile", p)
		return nil
	}
	switch c.state {
	case Closed:
		if p == c.profile {
			return nil
		}
		c.profile, c.explicit = p, true
		return nil
	case Editing:
		if p == c.profile {
			return nil
		}
		c.profile, c.explicit = p, true
		c.original = nil
		return c.load()
	default:
		c.logger.Debug("ignoring switch profile", "state", c.state)
		return nil
	}
}

// Confirm persists the calibration and closes the session. The hardware is
// left as-is. The session is closed even if persisting fails.
func (c *Controller) Confirm() error {
	if c.state != Editing {
		c.logger.Debug("ignoring confirm", "state", c.state)
		return nil
	}
	c.state = Committing
	defer c.close()

	if err := c.store.Set(c.profile, c.working); err != nil {
		c.logger.Error("failed to save calibration", "profile", c.profile, "vector", c.working, "error", err)
		return fmt.Errorf("%w for %s: %w", ErrStoreWrite, c.profile, err)
	}
	c.logger.Info("saved calibration", "profile", c.profile, "vector", c.working)
	return nil
}

// Cancel restores the original calibration and closes the session.
func (c *Controller) Cancel() error {
	if c.state != Editing {
		c.logger.Debug("ignoring cancel", "state", c.state)
		return nil
	}
	return c.cancel()
}

func (c *Controller) cancel() error {
	c.state = Cancelling
	defer c.close()

	c.logger.Debug("restoring calibration", "profile", c.profile, "vector", *c.original)
	return c.write(*c.original)
}

func (c *Controller) close() {
	c.state = Closed
	c.original = nil
	c.working = calproto.Vector{}
	c.selected = preset.None
}

// ApplyActive writes the persisted calibration for the profile currently
// selected by the mode flag. It does nothing while a session is open.
func (c *Controller) ApplyActive() error {
	if c.state != Closed {
		c.logger.Debug("ignoring apply active", "state", c.state)
		return nil
	}
	p := calproto.ProfileOf(c.mode.IsDay())
	return c.write(c.persisted(p))
}
