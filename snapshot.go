package kcal

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pgaskin/kcal/calproto"
	"github.com/tidwall/gjson"
)

// Snapshot is the state of an in-progress edit session. It is opaque to
// hosts, which should only store it and pass it back to [Controller.Resume].
type Snapshot struct {
	Profile  calproto.Profile
	Original calproto.Vector
	Working  calproto.Vector
	Explicit bool      // whether the profile was chosen by the user
	Saved    time.Time // to the second
}

// Suspend stops the current session, restoring the original calibration, and
// returns a snapshot which can be used to continue the session later. Since
// the snapshot may never be resumed, the hardware is left in the same state
// as if the session was cancelled.
func (c *Controller) Suspend() (Snapshot, bool, error) {
	if c.state != Editing {
		c.logger.Debug("ignoring suspend", "state", c.state)
		return Snapshot{}, false, nil
	}
	s := Snapshot{
		Profile:  c.profile,
		Original: *c.original,
		Working:  c.working,
		Explicit: c.explicit,
		Saved:    time.Now().Truncate(time.Second),
	}
	c.logger.Debug("suspending calibration session", "profile", s.Profile, "working", s.Working)
	return s, true, c.cancel()
}

// Resume continues a suspended session, re-applying the in-progress
// calibration. The persisted profile is not re-read.
func (c *Controller) Resume(s Snapshot) error {
	if c.state != Closed {
		return ErrSessionActive
	}
	if !s.Profile.Valid() {
		return fmt.Errorf("%w: unknown profile %d", ErrInvalidSnapshot, s.Profile)
	}
	c.profile, c.explicit = s.Profile, s.Explicit
	c.original = new(s.Original)
	c.working = s.Working
	c.state = Editing
	c.logger.Debug("resuming calibration session", "profile", s.Profile, "working", s.Working)
	return c.apply()
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	return s.AppendJSON(nil), nil
}

func (s Snapshot) AppendJSON(b []byte) []byte {
	b = append(b, `{"profile":`...)
	b = strconv.AppendQuote(b, s.Profile.String())
	b = append(b, `,"original":"`...)
	b, _ = s.Original.AppendText(b)
	b = append(b, `","working":"`...)
	b, _ = s.Working.AppendText(b)
	b = append(b, '"')
	if s.Explicit {
		b = append(b, `,"explicit":true`...)
	}
	if !s.Saved.IsZero() {
		b = append(b, `,"saved":`...)
		b = strconv.AppendInt(b, s.Saved.Unix(), 10)
	}
	b = append(b, '}')
	return b
}

// ParseSnapshot parses a snapshot encoded by [Snapshot.AppendJSON].
func ParseSnapshot(b []byte) (Snapshot, error) {
	var s Snapshot
	if !gjson.ValidBytes(b) {
		return s, fmt.Errorf("%w: invalid json", ErrInvalidSnapshot)
	}
	r := gjson.ParseBytes(b)
	if !r.IsObject() {
		return s, fmt.Errorf("%w: not an object", ErrInvalidSnapshot)
	}
	var err error
	if s.Profile, err = calproto.ParseProfile(r.Get("profile").String()); err != nil {
		return s, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	if s.Original, err = calproto.Parse(r.Get("original").String()); err != nil {
		return s, fmt.Errorf("%w: original: %w", ErrInvalidSnapshot, err)
	}
	if s.Working, err = calproto.Parse(r.Get("working").String()); err != nil {
		return s, fmt.Errorf("%w: working: %w", ErrInvalidSnapshot, err)
	}
	s.Explicit = r.Get("explicit").Bool()
	if v := r.Get("saved"); v.Exists() {
		s.Saved = time.Unix(v.Int(), 0)
	}
	return s, nil
}
