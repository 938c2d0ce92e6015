package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pgaskin/kcal"
	"github.com/pgaskin/kcal/bar"
	"github.com/pgaskin/kcal/barproto"
	"github.com/pgaskin/kcal/calproto"
	"github.com/pgaskin/kcal/preset"
	"github.com/pgaskin/kcal/props"
	"github.com/pgaskin/kcal/sysfs"
)

// testEnv is a controller backed by a property file and a fake control file.
type testEnv struct {
	dir   string
	props *props.Store
	hw    sysfs.File
	c     *kcal.Controller
}

func newTestEnv(t *testing.T, properties string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	e := &testEnv{
		dir:   dir,
		props: props.Open(filepath.Join(dir, "properties")),
		hw:    sysfs.File{Path: filepath.Join(dir, "kcal")},
	}
	if properties != "" {
		if err := os.WriteFile(e.props.Path(), []byte(properties), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(e.hw.Path, []byte("255 255 255\n"), 0644); err != nil {
		t.Fatal(err)
	}
	e.c = kcal.New(props.Profiles{Store: e.props}, e.hw, props.ModeFlag{Store: e.props}, preset.Default(), nil)
	return e
}

func (e *testEnv) hardware(t *testing.T) string {
	t.Helper()
	buf, err := os.ReadFile(e.hw.Path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.TrimSpace(string(buf))
}

func (e *testEnv) persisted(t *testing.T, key string) string {
	t.Helper()
	v, _, err := e.props.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_STATE_HOME", "/xdg/state")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing config: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("expected defaults (-want +got):\n%s", diff)
	}
	if cfg.Properties != "/xdg/config/kcal/properties" || cfg.State != "/xdg/state/kcal/session.json" {
		t.Errorf("unexpected default paths %q %q", cfg.Properties, cfg.State)
	}
	if p := DefaultConfigPath(); p != "/xdg/config/kcal/config.yaml" {
		t.Errorf("unexpected default config path %q", p)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(`
hardware:
  backend: ddc
  monitor: ACRE70C-A55C5042
  blind: true
mode:
  source: solar
  latitude: 44.5
  longitude: -76.5
resume_window: 90s
auto_apply: true
`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	exp := DefaultConfig()
	exp.Hardware.Backend = "ddc"
	exp.Hardware.Monitor = "ACRE70C-A55C5042"
	exp.Hardware.Blind = true
	exp.Mode.Source = "solar"
	exp.Mode.Latitude = 44.5
	exp.Mode.Longitude = -76.5
	exp.ResumeWindow = 90 * time.Second
	exp.AutoApply = true
	if diff := cmp.Diff(exp, cfg); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	for _, tc := range []string{
		"hardware: {backend: fbdev}",
		"hardware: {backend: ddc}",
		"mode: {source: clock}",
		"mode: {source: solar, latitude: 100}",
		"resume_window: -1m",
		"resume_window: soon",
		"properties: ''",
		"osd: {anchor: nowhere}",
		"osd: {timeout: 0s}",
		"[",
	} {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte(tc), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Errorf("%q: expected error", tc)
		}
	}
}

func TestLoadPresets(t *testing.T) {
	cfg := DefaultConfig()
	if c, err := cfg.LoadPresets(); err != nil || c.Len() != preset.Default().Len() {
		t.Errorf("expected default catalog, got %v", err)
	}
	cfg.Presets = filepath.Join(t.TempDir(), "presets.yaml")
	if err := os.WriteFile(cfg.Presets, []byte("custom: Mine\npresets:\n  - name: Red\n    vector: 255 0 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := cfg.LoadPresets()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff([]string{"Mine", "Red"}, c.Names()); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
}

func TestEditor(t *testing.T) {
	e := newTestEnv(t, "persist.screen.color_night=255 190 130\nscreen.color_isday=false\n")

	var out strings.Builder
	in := strings.NewReader("g 100\nfoo\nr 300\nshow\npreset 1\nb 0\nok\nr 1\n")
	if err := runEditor(t.Context(), e.c, in, &out); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if v := e.persisted(t, props.KeyNight); v != "255 255 0" {
		t.Errorf("expected saved night profile, got %q", v)
	}
	if v := e.hardware(t); v != "255 255 0" {
		t.Errorf("expected hardware to keep saved value, got %q", v)
	}
	if e.c.State() != kcal.Closed {
		t.Errorf("expected closed, got %s", e.c.State())
	}
	for _, s := range []string{
		"night  255 190 130  R 100%  G  75%  B  51%  [6] Night",
		"night  255 100 130",
		`error: unknown command "foo"`,
		"error: r: value 300 out of range",
		"[1] Neutral",
	} {
		if !strings.Contains(out.String(), s) {
			t.Errorf("expected output to contain %q, got:\n%s", s, out.String())
		}
	}
}

func TestEditorCancel(t *testing.T) {
	for _, tc := range []struct {
		name  string
		input string
	}{
		{"command", "r 0\ncancel\n"},
		{"eof", "r 0\n"},
	} {
		e := newTestEnv(t, "persist.screen.color_day=200 200 200\n")
		var out strings.Builder
		if err := runEditor(t.Context(), e.c, strings.NewReader(tc.input), &out); err != nil {
			t.Errorf("%s: edit: %v", tc.name, err)
		}
		if v := e.hardware(t); v != "200 200 200" {
			t.Errorf("%s: expected hardware to be restored, got %q", tc.name, v)
		}
		if v := e.persisted(t, props.KeyDay); v != "200 200 200" {
			t.Errorf("%s: expected store to be untouched, got %q", tc.name, v)
		}
	}
}

func TestEditCommandProfile(t *testing.T) {
	e := newTestEnv(t, "persist.screen.color_day=200 200 200\npersist.screen.color_night=100 100 100\n")
	if err := e.c.BeginSession(); err != nil {
		t.Fatal(err)
	}
	for _, line := range []string{"r 10", "mode night"} {
		if done, err := editCommand(e.c, line); done || err != nil {
			t.Fatalf("%q: %t %v", line, done, err)
		}
	}
	if e.c.Profile() != calproto.Night || e.hardware(t) != "100 100 100" {
		t.Errorf("expected night profile to be loaded, got %s %s", e.c.Profile(), e.hardware(t))
	}
	if _, err := editCommand(e.c, "mode dusk"); err == nil {
		t.Errorf("expected error for unknown profile")
	}
	if _, err := editCommand(e.c, "preset 0"); err == nil {
		t.Errorf("expected error for sentinel preset")
	}
	if done, _ := editCommand(e.c, "cancel"); !done {
		t.Errorf("expected cancel to end the session")
	}
	if v := e.hardware(t); v != "100 100 100" {
		t.Errorf("expected night original to be restored, got %q", v)
	}
}

type testInstance struct {
	bar.Instance
	stopped bool
}

func (i *testInstance) Logger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func (i *testInstance) IsStopped() bool {
	return i.stopped
}

func newTestCalibration(e *testEnv) Calibration {
	return Calibration{
		Controller: e.c,
		Store:      props.Profiles{Store: e.props},
		Mode:       props.ModeFlag{Store: e.props},
		State:      filepath.Join(e.dir, "state", "session.json"),
	}
}

func renderBlocks(m Calibration) []barproto.Block {
	var bs []barproto.Block
	m.render(func(b barproto.Block) {
		bs = append(bs, b)
	})
	return bs
}

func TestCalibrationEvents(t *testing.T) {
	e := newTestEnv(t, "persist.screen.color_day=255 235 210\n")
	m := newTestCalibration(e)

	if bs := renderBlocks(m); len(bs) != 1 || bs[0].FullText != "day 255 235 210" || bs[0].Color != 0xFFEBD2FF {
		t.Errorf("unexpected closed blocks %+v", bs)
	}

	for _, tc := range []struct {
		event  barproto.Event
		vector string
		preset string
	}{
		{barproto.Event{Instance: "r", Button: barproto.ButtonScrollUp}, "255 255 255", ""}, // not editing
		{barproto.Event{Instance: "closed", Button: barproto.ButtonLeft}, "255 235 210", " Warm "},
		{barproto.Event{Instance: "g", Button: barproto.ButtonScrollDown}, "255 234 210", " Custom "},
		{barproto.Event{Instance: "g", Button: barproto.ButtonScrollUp, Modifiers: 1}, "255 244 210", " Custom "},
		{barproto.Event{Instance: "b", Button: barproto.ButtonScrollUp, Modifiers: 1}, "255 244 220", " Custom "},
		{barproto.Event{Instance: "preset", Button: barproto.ButtonLeft}, "255 255 255", " Neutral "},
		{barproto.Event{Instance: "preset", Button: barproto.ButtonRight}, "180 180 180", " Dim "},
		{barproto.Event{Instance: "preset", Button: barproto.ButtonLeft}, "255 255 255", " Neutral "},
		{barproto.Event{Instance: "preset", Button: barproto.ButtonLeft}, "255 235 210", " Warm "},
		{barproto.Event{Instance: "r", Button: barproto.ButtonScrollDown}, "254 235 210", " Custom "},
		{barproto.Event{Instance: "reset", Button: barproto.ButtonRight}, "254 235 210", " Custom "},
		{barproto.Event{Instance: "reset", Button: barproto.ButtonLeft}, "255 255 255", " Neutral "},
	} {
		if err := m.handle(tc.event); err != nil {
			t.Fatalf("%+v: %v", tc.event, err)
		}
		if v := e.hardware(t); v != tc.vector {
			t.Errorf("%+v: expected hardware %q, got %q", tc.event, tc.vector, v)
		}
		if tc.preset != "" {
			bs := renderBlocks(m)
			if len(bs) != 8 {
				t.Fatalf("%+v: expected editing blocks, got %+v", tc.event, bs)
			}
			if bs[4].Instance != "preset" || bs[4].FullText != tc.preset {
				t.Errorf("%+v: expected preset %q, got %+v", tc.event, tc.preset, bs[4])
			}
		}
	}

	if err := m.handle(barproto.Event{Instance: "mode", Button: barproto.ButtonLeft}); err != nil {
		t.Fatal(err)
	}
	if bs := renderBlocks(m); bs[0].FullText != "night " || e.hardware(t) != "255 255 255" {
		t.Errorf("expected night profile, got %+v", bs[0])
	}
	if err := m.handle(barproto.Event{Instance: "r", Button: barproto.ButtonScrollDown, Modifiers: 1}); err != nil {
		t.Fatal(err)
	}
	if bs := renderBlocks(m); bs[1].FullText != "R96% " {
		t.Errorf("unexpected red block %+v", bs[1])
	}
	if err := m.handle(barproto.Event{Instance: "ok", Button: barproto.ButtonLeft}); err != nil {
		t.Fatal(err)
	}
	if v := e.persisted(t, props.KeyNight); v != "245 255 255" {
		t.Errorf("expected night profile to be saved, got %q", v)
	}
	if v := e.persisted(t, props.KeyDay); v != "255 235 210" {
		t.Errorf("expected day profile to be untouched, got %q", v)
	}
	if e.c.State() != kcal.Closed {
		t.Errorf("expected closed, got %s", e.c.State())
	}
}

func TestCalibrationSuspend(t *testing.T) {
	e := newTestEnv(t, "persist.screen.color_day=200 200 200\n")
	m := newTestCalibration(e)
	i := &testInstance{}

	if err := m.suspend(i); err != nil {
		t.Fatalf("suspend while closed: %v", err)
	}
	if _, err := os.Stat(m.State); !os.IsNotExist(err) {
		t.Fatalf("expected no session file, got %v", err)
	}

	if err := m.handle(barproto.Event{Instance: "closed", Button: barproto.ButtonLeft}); err != nil {
		t.Fatal(err)
	}
	if err := m.handle(barproto.Event{Instance: "b", Button: barproto.ButtonScrollUp, Modifiers: 1}); err != nil {
		t.Fatal(err)
	}
	if err := m.suspend(i); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if v := e.hardware(t); v != "200 200 200" {
		t.Errorf("expected original to be restored, got %q", v)
	}
	if e.c.State() != kcal.Closed {
		t.Errorf("expected closed, got %s", e.c.State())
	}

	// simulate a restart
	e.c = kcal.New(props.Profiles{Store: e.props}, e.hw, props.ModeFlag{Store: e.props}, preset.Default(), nil)
	m.Controller = e.c
	if err := m.resume(i); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if v := e.hardware(t); v != "200 200 210" {
		t.Errorf("expected working to be re-applied, got %q", v)
	}
	if o, ok := e.c.Original(); !ok || o.String() != "200 200 200" {
		t.Errorf("expected original to be kept, got %v %t", o, ok)
	}
	if _, err := os.Stat(m.State); !os.IsNotExist(err) {
		t.Errorf("expected session file to be removed, got %v", err)
	}
	if err := m.resume(i); err != nil {
		t.Errorf("resume without session: %v", err)
	}
	if err := m.handle(barproto.Event{Instance: "cancel", Button: barproto.ButtonLeft}); err != nil {
		t.Fatal(err)
	}
	if v := e.hardware(t); v != "200 200 200" {
		t.Errorf("expected original to be restored, got %q", v)
	}
}

// runInstance is an instance for driving Calibration.Run.
type runInstance struct {
	testInstance
	events    chan barproto.Event
	stoppedCh chan struct{}
	done      chan struct{}
	updated   chan []barproto.Block
}

func newRunInstance() *runInstance {
	return &runInstance{
		events:    make(chan barproto.Event),
		stoppedCh: make(chan struct{}, 1),
		done:      make(chan struct{}),
		updated:   make(chan []barproto.Block, 16),
	}
}

func (i *runInstance) Tick(time.Duration) {}

func (i *runInstance) Update(now bool, fn func(bar.Renderer)) {
	var bs []barproto.Block
	fn(func(b barproto.Block) {
		bs = append(bs, b)
	})
	i.updated <- bs
}

func (i *runInstance) Event() <-chan barproto.Event {
	return i.events
}

func (i *runInstance) Stopped() <-chan struct{} {
	return i.stoppedCh
}

func (i *runInstance) Ticked() <-chan struct{} {
	return nil
}

func (i *runInstance) Done() <-chan struct{} {
	return i.done
}

func (i *runInstance) waitUpdate(t *testing.T) []barproto.Block {
	t.Helper()
	select {
	case bs := <-i.updated:
		return bs
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for update")
		return nil
	}
}

func TestCalibrationExit(t *testing.T) {
	for _, tc := range []struct {
		channel string
		scrolls int
		working string
	}{
		{"r", 2, "198 200 200"},
		{"g", 1, "200 199 200"},
	} {
		t.Run(tc.channel, func(t *testing.T) {
			e := newTestEnv(t, "persist.screen.color_day=200 200 200\n")
			m := newTestCalibration(e)
			i := newRunInstance()

			errCh := make(chan error, 1)
			go func() {
				errCh <- m.Run(i)
			}()
			i.waitUpdate(t)

			events := []barproto.Event{{Instance: "closed", Button: barproto.ButtonLeft}}
			for range tc.scrolls {
				events = append(events, barproto.Event{Instance: tc.channel, Button: barproto.ButtonScrollDown})
			}
			for _, ev := range events {
				i.events <- ev
				i.waitUpdate(t)
			}
			if v := e.hardware(t); v == "200 200 200" {
				t.Fatalf("expected working calibration to be applied, got %q", v)
			}

			close(i.done)
			select {
			case err := <-errCh:
				if err != nil {
					t.Fatalf("run: %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("expected run to return when done")
			}
			if v := e.hardware(t); v != "200 200 200" {
				t.Errorf("expected persisted calibration to be restored, got %q", v)
			}
			if v := e.persisted(t, props.KeyDay); v != "200 200 200" {
				t.Errorf("expected day profile to be untouched, got %q", v)
			}
			if e.c.State() != kcal.Closed {
				t.Errorf("expected closed, got %s", e.c.State())
			}
			s, err := readSnapshot(m.State)
			if err != nil {
				t.Fatalf("expected session to be saved: %v", err)
			}
			if s.Working.String() != tc.working {
				t.Errorf("expected saved working calibration %q, got %q", tc.working, s.Working)
			}
		})
	}
}

func TestCalibrationExitClosed(t *testing.T) {
	e := newTestEnv(t, "persist.screen.color_day=200 200 200\n")
	m := newTestCalibration(e)
	i := newRunInstance()

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.Run(i)
	}()
	if bs := i.waitUpdate(t); len(bs) != 1 || bs[0].Instance != "closed" {
		t.Errorf("unexpected blocks %+v", bs)
	}
	close(i.done)
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("expected run to return when done")
	}
	if v := e.hardware(t); v != "255 255 255" {
		t.Errorf("expected hardware to be untouched, got %q", v)
	}
	if _, err := os.Stat(m.State); !os.IsNotExist(err) {
		t.Errorf("expected no session file, got %v", err)
	}
}

func TestCalibrationStale(t *testing.T) {
	e := newTestEnv(t, "")
	m := newTestCalibration(e)
	m.ResumeWindow = time.Minute
	i := &testInstance{}

	if err := e.c.BeginSession(); err != nil {
		t.Fatal(err)
	}
	if err := e.c.AdjustChannel(0, 0); err != nil {
		t.Fatal(err)
	}
	if err := m.suspend(i); err != nil {
		t.Fatal(err)
	}
	m.Now = func() time.Time { return time.Now().Add(time.Hour) }
	if err := m.resume(i); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if e.c.State() != kcal.Closed || e.hardware(t) != "255 255 255" {
		t.Errorf("expected stale session to be discarded, got %s %s", e.c.State(), e.hardware(t))
	}
	if _, err := os.Stat(m.State); !os.IsNotExist(err) {
		t.Errorf("expected session file to be removed, got %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.State), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(m.State, []byte("garbage"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := m.resume(i); err == nil {
		t.Errorf("expected error for invalid session file")
	}
	if _, err := os.Stat(m.State); !os.IsNotExist(err) {
		t.Errorf("expected invalid session file to be removed, got %v", err)
	}
}

func TestCalibrationAutoApply(t *testing.T) {
	e := newTestEnv(t, "persist.screen.color_day=200 200 200\npersist.screen.color_night=100 100 100\n")
	m := newTestCalibration(e)
	i := &testInstance{}

	if err := m.autoApply(i); err != nil || e.hardware(t) != "255 255 255" {
		t.Errorf("expected nothing to be applied while disabled, got %v %s", err, e.hardware(t))
	}
	m.AutoApply = true
	if err := m.autoApply(i); err != nil || e.hardware(t) != "200 200 200" {
		t.Errorf("expected day to be applied, got %v %s", err, e.hardware(t))
	}
	if err := e.props.Set(props.KeyIsDay, "false"); err != nil {
		t.Fatal(err)
	}
	if err := m.autoApply(i); err != nil || e.hardware(t) != "100 100 100" {
		t.Errorf("expected night to be applied, got %v %s", err, e.hardware(t))
	}
	if err := e.c.BeginSession(); err != nil {
		t.Fatal(err)
	}
	if err := e.c.AdjustChannel(1, 0); err != nil {
		t.Fatal(err)
	}
	if err := m.autoApply(i); err != nil || e.hardware(t) != "100 0 100" {
		t.Errorf("expected nothing to be applied while editing, got %v %s", err, e.hardware(t))
	}
}

type testOverlay struct {
	shown  []string
	hidden int
}

func (o *testOverlay) Show(v calproto.Vector) error {
	o.shown = append(o.shown, v.String())
	return nil
}

func (o *testOverlay) Hide() error {
	o.hidden++
	return nil
}

func TestCalibrationOSD(t *testing.T) {
	e := newTestEnv(t, "persist.screen.color_day=200 200 200\n")
	o := &testOverlay{}
	m := newTestCalibration(e)
	m.OSD, m.OSDTimeout = o, time.Hour
	i := &testInstance{}

	hide := time.NewTimer(time.Hour)
	hide.Stop()

	for _, ev := range []barproto.Event{
		{Instance: "closed", Button: barproto.ButtonLeft},
		{Instance: "r", Button: barproto.ButtonScrollUp},
		{Instance: "cancel", Button: barproto.ButtonLeft},
	} {
		if err := m.handle(ev); err != nil {
			t.Fatal(err)
		}
		m.showOSD(i, hide)
	}
	if diff := cmp.Diff([]string{"200 200 200", "201 200 200"}, o.shown); diff != "" {
		t.Errorf("shown (-want +got):\n%s", diff)
	}
	if o.hidden != 1 {
		t.Errorf("expected overlay to be hidden once, got %d", o.hidden)
	}
	select {
	case <-hide.C:
		t.Errorf("expected hide timer to be stopped")
	default:
	}
}
