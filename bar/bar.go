// Package bar runs immediate-mode i3bar modules.
package bar

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pgaskin/kcal/barproto"
)

// Module is a single immediate-mode status bar module with its own main loop
// and state. The struct implementing Module should contain stateless read-only
// configuration, and all state should be contained within Run.
type Module interface {
	// Run contains the main loop for the module, running until the instance
	// is done and returning an error if a fatal error occurs.
	Run(Instance) error
}

// ModuleFunc wraps a function in a Module.
type ModuleFunc func(Instance) error

func (fn ModuleFunc) Run(instance Instance) error {
	return fn(instance)
}

// Instance provides per-instance functions to interact with the bar.
type Instance interface {
	// Tick enables the Ticked event. The provided duration is rounded to a
	// multiple of the bar's base tick rate, and zero disables it.
	Tick(time.Duration)

	// Update builds and submits an update for the bar. The renderer must only
	// be used within the function. If now is true, the new bar will be drawn
	// immediately instead of attempting to coalesce draws. The Block.Name field
	// is used internally and will be overridden.
	Update(now bool, fn func(render Renderer))

	// IsStopped checks whether the bar is currently stopped (i.e., hidden).
	IsStopped() bool

	// Event gets the event channel. Up to 16 events are buffered.
	Event() <-chan barproto.Event

	// Stopped gets a channel which notifies when IsStopped changes. The buffer
	// size is 1 since the actual value is read from IsStopped.
	Stopped() <-chan struct{}

	// Done gets a channel which is closed when the bar is exiting or restarting
	// itself. Run should put away any state it doesn't want to lose, then
	// return. The bar waits for it before exiting.
	Done() <-chan struct{}

	// Ticked gets a channel which notifies at the configured tick interval. The
	// buffer size is 1.
	Ticked() <-chan struct{}

	// Logger gets a logger for the instance.
	Logger() *slog.Logger
}

// Renderer renders raw blocks.
type Renderer func(barproto.Block)

// Err renders an error message block.
func (r Renderer) Err(err error) {
	var s string
	if err != nil {
		s = err.Error()
	} else {
		s = "<nil>"
	}
	r(barproto.Block{
		FullText:   " error: " + s + " ",
		ShortText:  "ERR",
		Urgent:     true,
		Separator:  true,
		Background: 0xFF0000FF,
	})
}

type instanceImpl struct {
	name       string
	invalidate func(now bool)
	tickBase   time.Duration
	logger     *slog.Logger

	// notify
	eventCh   chan barproto.Event
	tickCh    chan struct{}
	stoppedCh chan struct{}

	// exit state
	done     chan struct{}
	doneOnce sync.Once
	exited   chan struct{}

	// tick state
	tickInterval atomic.Uint64
	tickCount    atomic.Uint64

	// stopped state
	stopped atomic.Bool

	// last renderer output
	buf1m sync.Mutex
	buf1b []byte

	// renderer output
	buf2m sync.Mutex
	buf2b []byte
}

func newInstance(name string, tickBase time.Duration, logger *slog.Logger, invalidate func(now bool)) *instanceImpl {
	return &instanceImpl{
		name:       name,
		invalidate: invalidate,
		tickBase:   tickBase,
		logger:     logger.With("instance", name),
		eventCh:    make(chan barproto.Event, 16),
		tickCh:     make(chan struct{}, 1),
		stoppedCh:  make(chan struct{}, 1),
		done:       make(chan struct{}),
		exited:     make(chan struct{}),
	}
}

func instantiate(m Module, name string, tickBase time.Duration, logger *slog.Logger, invalidate func(now bool)) *instanceImpl {
	instance := newInstance(name, tickBase, logger, invalidate)
	go func() {
		defer close(instance.exited)
		for {
			err := func() (err error) {
				defer func() {
					if p := recover(); p != nil {
						err = fmt.Errorf("panic: %v", p)
					}
				}()
				return m.Run(instance)
			}()
			if err == nil {
				break
			}
			select {
			case <-instance.done:
				instance.logger.Error("module failed while exiting", "error", err)
				return
			default:
			}
			instance.logger.Error("module failed", "error", err)
			instance.Tick(0)
			instance.drain()
			instance.Update(true, func(r Renderer) {
				r.Err(fmt.Errorf("fatal: %w", err))
			})
			select {
			case <-instance.eventCh: // restart on click
			case <-instance.done:
				return
			}
		}
	}()
	return instance
}

func (i *instanceImpl) drain() {
	for {
		select {
		case <-i.eventCh:
		case <-i.tickCh:
		default:
			return
		}
	}
}

func (i *instanceImpl) Tick(interval time.Duration) {
	i.tickInterval.Store(uint64((interval + i.tickBase/2) / i.tickBase))
}

func (i *instanceImpl) Update(now bool, fn func(Renderer)) {
	i.buf2m.Lock()
	defer i.buf2m.Unlock()

	i.buf2b = i.buf2b[:0]
	fn(Renderer(func(b barproto.Block) {
		b.Name = i.name
		i.buf2b = b.AppendJSON(append(i.buf2b, ','))
	}))

	i.buf1m.Lock()
	defer i.buf1m.Unlock()

	i.buf1b, i.buf2b = i.buf2b, i.buf1b

	if !bytes.Equal(i.buf1b, i.buf2b) {
		i.invalidate(now)
	}
}

func (i *instanceImpl) IsStopped() bool {
	return i.stopped.Load()
}

func (i *instanceImpl) Event() <-chan barproto.Event {
	return i.eventCh
}

func (i *instanceImpl) Stopped() <-chan struct{} {
	return i.stoppedCh
}

func (i *instanceImpl) Done() <-chan struct{} {
	return i.done
}

func (i *instanceImpl) Ticked() <-chan struct{} {
	return i.tickCh
}

func (i *instanceImpl) Logger() *slog.Logger {
	return i.logger
}

func (i *instanceImpl) SendTick() {
	if interval := i.tickInterval.Load(); interval != 0 {
		if i.tickCount.Add(1)%interval == 0 {
			select {
			case i.tickCh <- struct{}{}:
			default:
			}
		}
	}
}

func (i *instanceImpl) SendEvent(event barproto.Event) {
	if event.Name == i.name {
		select {
		case i.eventCh <- event:
		default:
		}
	}
}

func (i *instanceImpl) SendStopped(stopped bool) {
	i.stopped.Store(stopped)
	select {
	case i.stoppedCh <- struct{}{}:
	default:
	}
}

func (i *instanceImpl) SendDone() {
	i.doneOnce.Do(func() {
		close(i.done)
	})
}

func (i *instanceImpl) WriteTo(w io.Writer, comma bool) (bool, error) {
	i.buf1m.Lock()
	defer i.buf1m.Unlock()

	if len(i.buf1b) <= 1 {
		return comma, nil
	}

	var err error
	if comma {
		_, err = w.Write(i.buf1b)
	} else {
		_, err = w.Write(i.buf1b[1:])
	}
	return true, err
}

// Main runs the status bar with the provided modules on stdin/stdout. If
// logger is not nil, it is used for diagnostics.
//
// Do not use the Block/Event Name field from the modules; this is used
// internally to differentiate between instantiated modules for events. Use the
// Event Instance field for handling click events on different blocks
// differently.
//
// Main returns once all modules have exited after stdin is closed, stdout
// fails, or an exit signal is received. If the executable is replaced, all
// modules exit, then the process re-executes itself.
func Main(tickRate time.Duration, logger *slog.Logger, modules ...Module) error {
	const (
		restartEnv  = "KCAL_BAR_RESTARTED=1"
		stopSignal  = syscall.SIGUSR1
		contSignal  = syscall.SIGUSR2
		updateDelay = time.Millisecond * 25
		exitTimeout = time.Second * 5
	)
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var (
		ticker          = time.NewTicker(tickRate)
		delayer         *time.Timer
		instances       = make([]*instanceImpl, len(modules))
		invalidateCh    = make(chan struct{}, 1)
		invalidateNowCh = make(chan struct{}, 1)
		exitCh          = make(chan error, 1)
		exitOnce        sync.Once
	)
	for i, module := range modules {
		instances[i] = instantiate(module, strconv.Itoa(i), tickRate, logger, func(now bool) {
			if now {
				select {
				case invalidateNowCh <- struct{}{}:
				default:
				}
			} else {
				select {
				case invalidateCh <- struct{}{}:
				default:
				}
			}
		})
	}
	// exit waits for the modules to exit, then stops the bar with the error
	// returned by then
	exit := func(then func() error) {
		exitOnce.Do(func() {
			if !shutdown(instances, exitTimeout) {
				logger.Warn("timed out waiting for modules to exit", "timeout", exitTimeout)
			}
			exitCh <- then()
		})
	}
	go func() {
		exe, err := os.Executable()
		if err != nil {
			logger.Warn("watcher: failed to watch own binary: get own path", "error", err)
			return
		}

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			logger.Warn("watcher: failed to watch own binary: create watcher", "error", err)
			return
		}
		defer watcher.Close()

		if err := watcher.Add(exe); err != nil {
			logger.Warn("watcher: failed to watch own binary: update watcher", "error", err)
			return
		}
		for {
			select {
			case event, ok := <-watcher.Events:
				if ok && event.Has(fsnotify.Chmod) {
					// go build chmods it at the end of the build
					logger.Info("watcher: got chmod, exiting modules and restarting")
					exit(func() error {
						if err := syscall.Exec(exe, os.Args, append(os.Environ(), restartEnv)); err != nil {
							return fmt.Errorf("restart: %w", err)
						}
						return nil
					})
					return
				}
			case err, ok := <-watcher.Errors:
				if ok {
					logger.Warn("watcher: error", "error", err)
				}
			}
		}
	}()
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			event, ok := parseEventLine(sc.Bytes())
			if !ok {
				if sc.Text() != "[" && sc.Text() != "" {
					logger.Warn("invalid event line", "line", sc.Text())
				}
				continue
			}
			for _, instance := range instances {
				instance.SendEvent(event)
			}
		}
		logger.Info("stdin closed, exiting", "error", sc.Err())
		exit(func() error {
			if err := sc.Err(); err != nil {
				return fmt.Errorf("read events: %w", err)
			}
			return nil
		})
	}()
	go func() {
		sigCh := make(chan os.Signal, 2)
		signal.Notify(sigCh, stopSignal, contSignal, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
		for sig := range sigCh {
			logger.Debug("got signal", "signal", sig)
			switch sig {
			case stopSignal, contSignal:
				for _, instance := range instances {
					instance.SendStopped(sig == stopSignal)
				}
			default:
				logger.Info("exiting", "signal", sig)
				go exit(func() error { return nil })
			}
		}
	}()
	if !slices.Contains(os.Environ(), restartEnv) {
		os.Stdout.Write(append(barproto.Init{
			StopSignal:  stopSignal,
			ContSignal:  contSignal,
			ClickEvents: true,
		}.AppendJSON(nil), "\n[[]\n"...))
	}
	for render := false; ; {
		if render {
			select {
			case <-invalidateCh:
				continue
			default:
			}
			select {
			case <-invalidateNowCh:
				continue
			default:
			}
			render = false

			if err := writeStatus(os.Stdout, instances); err != nil {
				logger.Error("failed to write status line, exiting", "error", err)
				exit(func() error {
					return fmt.Errorf("write status line: %w", err)
				})
				return <-exitCh
			}
		}
		select {
		case err := <-exitCh:
			return err
		case <-ticker.C:
			for _, instance := range instances {
				instance.SendTick()
			}
		case <-invalidateNowCh:
			render = true
			continue
		case <-invalidateCh:
			render = true
		}
		if delayer == nil {
			delayer = time.NewTimer(updateDelay)
		} else {
			delayer.Reset(updateDelay)
		}
		select {
		case <-delayer.C:
		case <-invalidateNowCh:
			render = true
		}
	}
}

// shutdown tells all instances to exit, then waits up to timeout for their
// modules to return. It returns false if any did not.
func shutdown(instances []*instanceImpl, timeout time.Duration) bool {
	for _, instance := range instances {
		instance.SendDone()
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for _, instance := range instances {
		select {
		case <-instance.exited:
		case <-deadline.C:
			return false
		}
	}
	return true
}

// parseEventLine parses a single line of the infinite click event array.
func parseEventLine(buf []byte) (barproto.Event, bool) {
	if len(buf) != 0 && (buf[0] == '[' || buf[0] == ',') {
		buf = buf[1:]
	}
	if len(buf) == 0 || buf[0] != '{' || buf[len(buf)-1] != '}' {
		return barproto.Event{}, false
	}
	var event barproto.Event
	event.FromJSON(buf)
	return event, true
}

func writeStatus(w io.Writer, instances []*instanceImpl) error {
	if _, err := io.WriteString(w, ",["); err != nil {
		return err
	}
	var (
		comma bool
		err   error
	)
	for _, instance := range instances {
		if comma, err = instance.WriteTo(w, comma); err != nil {
			return err
		}
	}
	_, err = io.WriteString(w, "]\n")
	return err
}
