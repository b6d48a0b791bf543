package turn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Stage is the inactivity state of one address.
type Stage int

const (
	// StageIdle means no inactivity timer is running.
	StageIdle Stage = iota
	// StageArmed means the warning is scheduled.
	StageArmed
	// StageWarned means the warning went out and the close is scheduled.
	StageWarned
	// StageClosed means the session-closed message went out.
	StageClosed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageArmed:
		return "armed"
	case StageWarned:
		return "warned"
	case StageClosed:
		return "closed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Alerter performs the side effect of an inactivity stage: StageWarned for
// the warning, StageClosed for the session close.
type Alerter interface {
	Alert(ctx context.Context, address string, stage Stage) error
}

// AlerterFunc adapts a function to Alerter.
type AlerterFunc func(ctx context.Context, address string, stage Stage) error

// Alert implements Alerter.
func (f AlerterFunc) Alert(ctx context.Context, address string, stage Stage) error {
	return f(ctx, address, stage)
}

type watch struct {
	stage Stage
	timer Timer
	gen   uint64
}

// Watchdog runs the two-stage inactivity timer per address: a warning after
// WarnAfter, then a close after a further CloseAfter.
type Watchdog struct {
	mu      sync.Mutex
	watches map[string]*watch
	seq     uint64
	closed  bool
	wg      sync.WaitGroup

	warnAfter  time.Duration
	closeAfter time.Duration
	timeout    time.Duration
	clock      Clock
	alerter    Alerter
	log        zerolog.Logger
}

// WatchdogOpts holds parameters for creating a Watchdog.
type WatchdogOpts struct {
	Alerter      Alerter
	WarnAfter    time.Duration // default 5m
	CloseAfter   time.Duration // default 10m
	AlertTimeout time.Duration // bound on one Alert call, default 30s
	Clock        Clock
	Logger       zerolog.Logger
}

// NewWatchdog creates a Watchdog.
func NewWatchdog(opts WatchdogOpts) (*Watchdog, error) {
	if opts.Alerter == nil {
		return nil, fmt.Errorf("turn: alerter is required")
	}
	w := &Watchdog{
		watches:    make(map[string]*watch),
		warnAfter:  opts.WarnAfter,
		closeAfter: opts.CloseAfter,
		timeout:    opts.AlertTimeout,
		clock:      opts.Clock,
		alerter:    opts.Alerter,
		log:        opts.Logger,
	}
	if w.warnAfter <= 0 {
		w.warnAfter = 5 * time.Minute
	}
	if w.closeAfter <= 0 {
		w.closeAfter = 10 * time.Minute
	}
	if w.timeout <= 0 {
		w.timeout = 30 * time.Second
	}
	if w.clock == nil {
		w.clock = RealClock()
	}
	return w, nil
}

// Arm starts (or restarts) the inactivity timer for address.
func (w *Watchdog) Arm(address string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if e, ok := w.watches[address]; ok && e.timer != nil {
		e.timer.Stop()
	}
	w.seq++
	gen := w.seq
	e := &watch{stage: StageArmed, gen: gen}
	e.timer = w.clock.AfterFunc(w.warnAfter, func() { w.fire(address, gen) })
	w.watches[address] = e
	w.log.Debug().Str("address", address).Msg("turn: inactivity watchdog armed")
}

// Cancel stops any inactivity timer for address. A stage whose callback
// has not started yet will not run.
func (w *Watchdog) Cancel(address string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.watches[address]
	if !ok {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(w.watches, address)
}

// State returns the current stage for address.
func (w *Watchdog) State(address string) Stage {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.watches[address]; ok {
		return e.stage
	}
	return StageIdle
}

// fire advances the stage and performs its alert. Stale generations are
// ignored. The close stage is scheduled only after the warning alert
// returns, and only if the watch was not cancelled or re-armed meanwhile.
func (w *Watchdog) fire(address string, gen uint64) {
	w.mu.Lock()
	e, ok := w.watches[address]
	if w.closed || !ok || e.gen != gen {
		w.mu.Unlock()
		return
	}
	var stage Stage
	switch e.stage {
	case StageArmed:
		stage = StageWarned
	case StageWarned:
		stage = StageClosed
	default:
		w.mu.Unlock()
		return
	}
	e.stage = stage
	e.timer = nil
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	w.alert(address, stage)

	if stage != StageWarned {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if cur, ok := w.watches[address]; w.closed || !ok || cur != e || cur.gen != gen {
		return
	}
	e.timer = w.clock.AfterFunc(w.closeAfter, func() { w.fire(address, gen) })
}

func (w *Watchdog) alert(address string, stage Stage) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.alerter.Alert(ctx, address, stage); err != nil {
		w.log.Error().Err(err).Str("address", address).Stringer("stage", stage).Msg("turn: inactivity alert failed")
		return
	}
	w.log.Info().Str("address", address).Stringer("stage", stage).Msg("turn: inactivity alert sent")
}

// Close stops every timer and waits for alerts in progress.
func (w *Watchdog) Close() {
	w.mu.Lock()
	w.closed = true
	for addr, e := range w.watches {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(w.watches, addr)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
