package props

import (
	"fmt"

	"github.com/pgaskin/kcal"
	"github.com/pgaskin/kcal/calproto"
)

// Property keys.
const (
	KeyDay   = "persist.screen.color_day"
	KeyNight = "persist.screen.color_night"
	KeyIsDay = "screen.color_isday"
)

// Key returns the property key for a profile.
func Key(p calproto.Profile) string {
	if p == calproto.Night {
		return KeyNight
	}
	return KeyDay
}

// Profiles persists calibration profiles as properties.
type Profiles struct {
	Store *Store
}

var _ kcal.Store = Profiles{}

func (p Profiles) Get(profile calproto.Profile) (calproto.Vector, error) {
	key := Key(profile)
	s, ok, err := p.Store.Get(key)
	if err != nil {
		return calproto.Vector{}, err
	}
	if !ok || s == "" {
		return calproto.Vector{}, fmt.Errorf("%s: %w", key, kcal.ErrUnset)
	}
	v, err := calproto.Parse(s)
	if err != nil {
		return calproto.Vector{}, fmt.Errorf("%s=%q: %w", key, s, err)
	}
	return v, nil
}

func (p Profiles) Set(profile calproto.Profile, v calproto.Vector) error {
	return p.Store.Set(Key(profile), v.String())
}

// ModeFlag reads the day mode flag property, which is set by whatever
// switches between the day and night profiles. It defaults to day.
type ModeFlag struct {
	Store *Store
}

var _ kcal.ModeFlag = ModeFlag{}

func (m ModeFlag) IsDay() bool {
	return m.Store.GetBool(KeyIsDay, true)
}
