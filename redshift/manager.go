// Package redshift applies calibration vectors to X11 displays using gamma
// ramps, for displays without a hardware calibration interface.
package redshift

import (
	"errors"
	"log/slog"
	"math"
	"os"

	"github.com/pgaskin/kcal"
	"github.com/pgaskin/kcal/calproto"
)

// WhitePoint is the relative intensity of each channel. A value of 1 is
// neutral.
type WhitePoint [3]float64

// WhitePointOf converts a calibration vector to a white point.
func WhitePointOf(v calproto.Vector) WhitePoint {
	var w WhitePoint
	for i, c := range v {
		w[i] = float64(c) / calproto.Max
	}
	return w
}

// Vector converts a white point back into a calibration vector.
func (w WhitePoint) Vector() calproto.Vector {
	var v calproto.Vector
	for i, c := range w {
		v[i] = uint8(math.Round(min(max(c, 0), 1) * calproto.Max))
	}
	return v
}

// Manager controls color ramps for a display manager. It is safe for concurrent
// usage.
type Manager interface {
	// Set sets the color ramp for all current and future outputs, waiting for
	// it to be applied to any current ones.
	Set(WhitePoint) error

	// Get gets the white point of the first output.
	Get() (WhitePoint, error)

	// Close closes the connection to the display manager. It may or may not
	// revert the color ramps.
	Close()
}

// New creates a [Manager] for the current display manager, if supported. If a
// fatal error occurs, the chan will return it, and the connection should be
// closed as it will no longer be usable. If logger is not nil, it is used for
// debug logs from this package.
func New(logger *slog.Logger) (Manager, <-chan error, error) {
	switch {
	case os.Getenv("DISPLAY") != "":
		return NewX11("", logger)
	default:
		return nil, nil, errors.ErrUnsupported
	}
}

// GammaRamp computes a gamma ramp.
func GammaRamp[C ~uint8 | uint16 | ~uint32 | uint64](r, g, b []C, white WhitePoint) {
	for ch, ramp := range [...][]C{r, g, b} {
		for index := range len(ramp) {
			ramp[index] = C(float64(index) / float64(len(ramp)-1) * float64(^C(0)) * white[ch])
		}
	}
}

// Hardware adapts a [Manager] into a calibration control surface.
type Hardware struct {
	Manager Manager
}

var _ kcal.Hardware = Hardware{}

func (h Hardware) Read() (calproto.Vector, error) {
	w, err := h.Manager.Get()
	if err != nil {
		return calproto.Vector{}, err
	}
	return w.Vector(), nil
}

func (h Hardware) Write(v calproto.Vector) error {
	return h.Manager.Set(WhitePointOf(v))
}
