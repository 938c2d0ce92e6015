package ddc

import (
	"errors"
	"fmt"
	"math"

	"github.com/pgaskin/kcal"
	"github.com/pgaskin/kcal/calproto"
)

var gainVCP = [calproto.Channels]byte{VCP_GainRed, VCP_GainGreen, VCP_GainBlue}

// Gain controls the RGB video gain of a monitor as a calibration vector. Since
// DDC-CI can only set one VCP at a time, only changed channels are written.
//
// Unlike the other backends, writes are not atomic: the monitor shows a mix of
// the old and new vectors until every changed channel has been set.
type Gain struct {
	ci   *CI
	max  [calproto.Channels]uint16
	last *calproto.Vector // last successful write
}

var _ kcal.Hardware = (*Gain)(nil)

// NewGain queries the gain range of the monitor. If blind is true, the
// monitor isn't queried (some monitors have broken reads) and the range is
// assumed to be 0-100.
func NewGain(ci *CI, blind bool) (*Gain, error) {
	g := &Gain{ci: ci}
	for ch, vcp := range gainVCP {
		if blind {
			g.max[ch] = 100
			continue
		}
		_, max, err := ci.GetVCP(vcp)
		if err != nil {
			return nil, fmt.Errorf("get gain range for channel %d: %w", ch, err)
		}
		if max == 0 {
			return nil, fmt.Errorf("get gain range for channel %d: %w: zero maximum", ch, ErrBadReply)
		}
		g.max[ch] = max
	}
	return g, nil
}

func (g *Gain) Read() (calproto.Vector, error) {
	var v calproto.Vector
	for ch, vcp := range gainVCP {
		val, max, err := g.ci.GetVCP(vcp)
		if err != nil {
			return v, fmt.Errorf("get gain for channel %d: %w", ch, err)
		}
		if max == 0 || val > max {
			return v, fmt.Errorf("get gain for channel %d: %w: value %d out of range %d", ch, ErrBadReply, val, max)
		}
		v[ch] = uint8(math.Round(float64(val) / float64(max) * calproto.Max))
	}
	return v, nil
}

// Write sets the changed channels of v. If setting a channel fails, the
// channels already set are set back to the previous vector, if known.
func (g *Gain) Write(v calproto.Vector) error {
	var written []int
	for ch := range gainVCP {
		if g.last != nil && g.last[ch] == v[ch] {
			continue
		}
		if err := g.set(ch, v[ch]); err != nil {
			err = fmt.Errorf("set gain for channel %d: %w", ch, err)
			if g.last != nil {
				for _, prev := range written {
					if rerr := g.set(prev, g.last[prev]); rerr != nil {
						err = errors.Join(err, fmt.Errorf("restore gain for channel %d: %w", prev, rerr))
						break
					}
				}
			}
			g.last = nil // the failed channel is unknown
			return err
		}
		written = append(written, ch)
	}
	g.last = new(v)
	return nil
}

func (g *Gain) set(ch int, value uint8) error {
	return g.ci.SetVCP(gainVCP[ch], uint16(math.Round(float64(value)/calproto.Max*float64(g.max[ch]))))
}
