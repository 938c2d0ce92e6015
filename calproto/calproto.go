// Package calproto implements the one-line textual protocol used by display
// color calibration (kcal) control files and the properties which persist
// them.
//
// A vector is written as three space-separated decimal integers in R, G, B
// order, each between 0 and 255 (e.g., "255 255 255").
package calproto

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Channel limits.
const (
	Channels = 3
	Min      = 0
	Max      = 255
)

// ErrMalformed is returned when a string is not a valid vector.
var ErrMalformed = errors.New("malformed color vector")

// Default is the neutral calibration vector, with every channel at maximum.
var Default = Vector{Max, Max, Max}

// Vector is a calibration value for the red, green, and blue channels.
type Vector [Channels]uint8

// Parse parses a vector. Surrounding whitespace (including the trailing
// newline from a control file) is ignored.
func Parse(s string) (Vector, error) {
	var v Vector
	fs := strings.Fields(s)
	if len(fs) != Channels {
		return v, ErrMalformed
	}
	for i, f := range fs {
		n, err := strconv.ParseUint(f, 10, 8)
		if err != nil {
			return v, ErrMalformed
		}
		v[i] = uint8(n)
	}
	return v, nil
}

// AppendText appends the textual encoding of v to b.
func (v Vector) AppendText(b []byte) ([]byte, error) {
	return v.append(b), nil
}

func (v Vector) append(b []byte) []byte {
	for i, c := range v {
		if i != 0 {
			b = append(b, ' ')
		}
		b = strconv.AppendUint(b, uint64(c), 10)
	}
	return b
}

func (v Vector) String() string {
	return string(v.append(make([]byte, 0, len("255 255 255"))))
}

func (v Vector) MarshalText() ([]byte, error) {
	return v.append(nil), nil
}

func (v *Vector) UnmarshalText(b []byte) error {
	x, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = x
	return nil
}

// With returns a copy of v with the specified channel replaced. The value is
// clamped to [Min, Max]. It panics if the channel is out of range.
func (v Vector) With(channel int, value int) Vector {
	v[channel] = uint8(min(max(value, Min), Max))
	return v
}

// Percent returns the channel value as a rounded percentage of Max.
func (v Vector) Percent(channel int) int {
	return int(math.Round(100 * float64(v[channel]-Min) / float64(Max-Min)))
}

// Profile is one of the two persisted calibration targets.
type Profile int

const (
	Day Profile = iota
	Night
)

// ProfileOf returns the profile for the current mode.
func ProfileOf(isDay bool) Profile {
	if isDay {
		return Day
	}
	return Night
}

// Valid checks whether p is a known profile.
func (p Profile) Valid() bool {
	return p == Day || p == Night
}

func (p Profile) String() string {
	switch p {
	case Day:
		return "day"
	case Night:
		return "night"
	default:
		return "Profile(" + strconv.Itoa(int(p)) + ")"
	}
}

// ParseProfile parses a profile name as returned by [Profile.String].
func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day":
		return Day, nil
	case "night":
		return Night, nil
	default:
		return 0, errors.New("unknown profile " + strconv.Quote(s))
	}
}
