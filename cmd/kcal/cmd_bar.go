package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pgaskin/kcal"
	"github.com/pgaskin/kcal/bar"
	"github.com/pgaskin/kcal/barproto"
	"github.com/pgaskin/kcal/calproto"
	"github.com/pgaskin/kcal/osd"
	"github.com/pgaskin/kcal/props"
	"github.com/spf13/cobra"
)

/*
	bar {
		status_command exec kcal bar
	}
*/

var barCmd = &cobra.Command{
	Use:   "bar",
	Short: "Run an i3bar status command for editing the calibration",
	Long: `Run an i3bar status command for editing the calibration.

Left-click to start editing. While editing, click the profile to switch
between day and night, scroll the channels to adjust them (hold shift for
larger steps), left/right-click the preset to cycle through presets, and click
reset, save, or cancel. Hiding the bar suspends the session until it is shown
again. Exiting (or restarting after the binary is rebuilt) suspends it until
the next start.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		m := Calibration{
			Controller:   a.Controller(),
			Store:        a.store,
			Mode:         a.mode,
			Props:        a.props,
			WatchMode:    a.watchMode,
			State:        a.cfg.State,
			ResumeWindow: a.cfg.ResumeWindow,
			AutoApply:    a.cfg.AutoApply,
			OSDTimeout:   a.cfg.OSD.Timeout,
		}
		if a.cfg.OSD.Enabled {
			o, err := osd.New(a.cfg.OverlayStyle())
			if err != nil {
				return fmt.Errorf("create overlay: %w", err)
			}
			defer o.Close()
			m.OSD = o
		}
		return bar.Main(time.Second, a.logger, m)
	},
}

func init() {
	rootCmd.AddCommand(barCmd)
}

// Calibration is a status bar module for editing the calibration.
type Calibration struct {
	Controller *kcal.Controller
	Store      kcal.Store
	Mode       kcal.ModeFlag

	// Props and WatchMode, if not nil, are watched for changes to the active
	// profile.
	Props     *props.Store
	WatchMode func(func()) (func(), error)

	// State is the file suspended sessions are saved to. Sessions older than
	// ResumeWindow are discarded instead of resumed (zero to always resume).
	State        string
	ResumeWindow time.Duration

	// AutoApply applies the active profile when it changes while not editing.
	AutoApply bool

	// OSD, if not nil, shows the working calibration for OSDTimeout after
	// each change.
	OSD        Overlay
	OSDTimeout time.Duration

	Now func() time.Time // defaults to time.Now
}

// Overlay shows a calibration vector on the screen.
type Overlay interface {
	Show(calproto.Vector) error
	Hide() error
}

func (m Calibration) Run(i bar.Instance) error {
	log := i.Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 1)
	notify := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	if m.Props != nil {
		go func() {
			if err := m.Props.Watch(ctx, notify); err != nil && ctx.Err() == nil {
				log.Warn("failed to watch properties", "error", err)
			}
		}()
	}
	if m.WatchMode != nil {
		stop, err := m.WatchMode(notify)
		if err != nil {
			log.Warn("failed to watch mode", "error", err)
		} else {
			defer stop()
		}
	}

	var lastErr error
	if !i.IsStopped() {
		lastErr = m.resume(i)
	}
	isDay := m.Mode.IsDay()

	var hide *time.Timer
	if m.OSD != nil {
		hide = time.NewTimer(time.Hour)
		hide.Stop()
		defer m.OSD.Hide()
	}

	i.Tick(time.Minute)
	for isEvent := false; ; {
		i.Update(isEvent, func(render bar.Renderer) {
			m.render(render)
			if lastErr != nil {
				render.Err(lastErr)
			}
		})

		for isEvent = false; ; {
			select {
			case <-i.Ticked():
				if day := m.Mode.IsDay(); day != isDay {
					isDay = day
					lastErr = m.autoApply(i)
				}
			case <-changed:
				isDay = m.Mode.IsDay()
				lastErr = m.autoApply(i)
			case <-i.Stopped():
				if i.IsStopped() {
					lastErr = m.suspend(i)
				} else {
					lastErr = m.resume(i)
				}
			case event := <-i.Event():
				isEvent = true
				lastErr = m.handle(event)
				m.showOSD(i, hide)
			case <-i.Done():
				return m.suspend(i)
			case <-timerC(hide):
				if err := m.OSD.Hide(); err != nil {
					log.Warn("failed to hide overlay", "error", err)
				}
			}
			break
		}
	}
}

// showOSD shows the working calibration if editing, restarting the hide timer,
// or hides it otherwise.
func (m Calibration) showOSD(i bar.Instance, timer *time.Timer) {
	if m.OSD == nil {
		return
	}
	if m.Controller.State() != kcal.Editing {
		timer.Stop()
		if err := m.OSD.Hide(); err != nil {
			i.Logger().Warn("failed to hide overlay", "error", err)
		}
		return
	}
	if err := m.OSD.Show(m.Controller.Working()); err != nil {
		i.Logger().Warn("failed to show overlay", "error", err)
	}
	timer.Reset(m.OSDTimeout)
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (m Calibration) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m Calibration) autoApply(i bar.Instance) error {
	if !m.AutoApply || m.Controller.State() != kcal.Closed {
		return nil
	}
	i.Logger().Debug("applying active profile")
	return m.Controller.ApplyActive()
}

// suspend suspends the session, if any, into the state file.
func (m Calibration) suspend(i bar.Instance) error {
	s, ok, err := m.Controller.Suspend()
	if !ok {
		return err
	}
	if merr := os.MkdirAll(filepath.Dir(m.State), 0755); merr != nil {
		return errors.Join(err, fmt.Errorf("save session: %w", merr))
	}
	if werr := os.WriteFile(m.State, s.AppendJSON(nil), 0600); werr != nil {
		return errors.Join(err, fmt.Errorf("save session: %w", werr))
	}
	i.Logger().Info("suspended calibration session", "profile", s.Profile, "working", s.Working)
	return err
}

// resume resumes the session from the state file, if any and not stale.
func (m Calibration) resume(i bar.Instance) error {
	s, err := readSnapshot(m.State)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		os.Remove(m.State)
		return err
	}
	if err := os.Remove(m.State); err != nil {
		i.Logger().Warn("failed to remove session file", "error", err)
	}
	if m.ResumeWindow > 0 && m.now().Sub(s.Saved) > m.ResumeWindow {
		i.Logger().Info("discarding stale calibration session", "saved", humanize.RelTime(s.Saved, m.now(), "ago", "from now"))
		return nil
	}
	i.Logger().Info("resuming calibration session", "profile", s.Profile, "working", s.Working)
	return m.Controller.Resume(s)
}

func (m Calibration) handle(e barproto.Event) error {
	c := m.Controller
	if c.State() != kcal.Editing {
		if e.Instance == "closed" && e.Button == barproto.ButtonLeft {
			return c.BeginSession()
		}
		return nil
	}
	switch e.Instance {
	case "mode":
		if e.Button == barproto.ButtonLeft {
			if c.Profile() == calproto.Day {
				return c.SwitchProfile(calproto.Night)
			}
			return c.SwitchProfile(calproto.Day)
		}
	case "r", "g", "b":
		ch := channelOf(e.Instance)
		step := 1
		if e.Shift() {
			step = 10
		}
		v := int(c.Working()[ch])
		switch e.Button {
		case barproto.ButtonScrollUp:
			return c.AdjustChannel(ch, v+step)
		case barproto.ButtonScrollDown:
			return c.AdjustChannel(ch, v-step)
		}
	case "preset":
		n := c.Presets().Len()
		if n <= 1 {
			return nil
		}
		cur := c.Selected()
		switch e.Button {
		case barproto.ButtonLeft:
			if cur++; cur >= n {
				cur = 1
			}
			return c.ApplyPreset(cur)
		case barproto.ButtonRight:
			if cur--; cur < 1 {
				cur = n - 1
			}
			return c.ApplyPreset(cur)
		}
	case "reset":
		if e.Button == barproto.ButtonLeft {
			return c.ResetToDefault()
		}
	case "ok":
		if e.Button == barproto.ButtonLeft {
			return c.Confirm()
		}
	case "cancel":
		if e.Button == barproto.ButtonLeft {
			return c.Cancel()
		}
	}
	return nil
}

func channelOf(instance string) int {
	switch instance {
	case "g":
		return 1
	case "b":
		return 2
	default:
		return 0
	}
}

func (m Calibration) render(render bar.Renderer) {
	c := m.Controller
	if c.State() != kcal.Editing {
		p := calproto.ProfileOf(m.Mode.IsDay())
		v, err := m.Store.Get(p)
		if err != nil {
			v = calproto.Default
		}
		render(barproto.Block{
			Instance:  "closed",
			FullText:  p.String() + " " + v.String(),
			ShortText: p.String(),
			Color:     vectorColor(v),
			Separator: true,
		})
		return
	}

	render(barproto.Block{
		Instance:       "mode",
		FullText:       c.Profile().String() + " ",
		MinWidthString: "night ",
		Align:          "center",
		Color:          profileColor(c.Profile()),
	})

	v := c.Working()
	for ch, name := range [calproto.Channels]string{"r", "g", "b"} {
		render(barproto.Block{
			Instance:       name,
			FullText:       fmt.Sprintf("%s%d%% ", strings.ToUpper(name), v.Percent(ch)),
			MinWidthString: "R100% ",
			Align:          "right",
			Color:          0xFF<<(24-8*ch) | 0xFF,
		})
	}

	e, _ := c.Presets().At(c.Selected())
	render(barproto.Block{
		Instance:  "preset",
		FullText:  " " + e.Name + " ",
		Color:     vectorColor(v),
		Separator: true,
	})
	render(barproto.Block{
		Instance:  "reset",
		FullText:  " reset ",
		Separator: true,
	})
	render(barproto.Block{
		Instance: "ok",
		FullText: " save ",
		Color:    0x00FF00FF,
	})
	render(barproto.Block{
		Instance:  "cancel",
		FullText:  " cancel ",
		Color:     0xFF0000FF,
		Separator: true,
	})
}

func profileColor(p calproto.Profile) uint32 {
	if p == calproto.Night {
		return 0x8888FFFF
	}
	return 0xFFFF00FF
}

func vectorColor(v calproto.Vector) uint32 {
	return uint32(v[0])<<24 | uint32(v[1])<<16 | uint32(v[2])<<8 | 0xFF
}
