// Package turn merges bursts of inbound chat fragments into single turns
// and watches open conversations for inactivity.
//
// A Scheduler buffers fragments per customer address and hands the joined
// text to a Handler once the address has been quiet for the debounce
// period. Turns for one address run strictly one after another; different
// addresses run concurrently.
package turn

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// AttachmentMarker is prepended to the fragment that announces an accepted
// attachment. Customer text never carries it; the inbound adapter strips it.
const AttachmentMarker = "[ARCHIVO ADJUNTO]"

// DefaultQuiet is the debounce period used when none is configured.
const DefaultQuiet = 4 * time.Second

// DefaultTurnTimeout bounds a single handler run.
const DefaultTurnTimeout = 2 * time.Minute

// Turn is one settled burst.
type Turn struct {
	Address     string
	DisplayName string
	Text        string
	Fragments   []string
	SettledAt   time.Time

	gen uint64
}

// Outcome tells the scheduler what a handled turn did.
type Outcome struct {
	Replied      bool
	OrderCreated bool
}

// Handler processes settled turns.
type Handler interface {
	HandleTurn(ctx context.Context, t Turn) (Outcome, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, t Turn) (Outcome, error)

// HandleTurn implements Handler.
func (f HandlerFunc) HandleTurn(ctx context.Context, t Turn) (Outcome, error) { return f(ctx, t) }

// burst is the buffer of fragments still waiting to settle.
type burst struct {
	fragments []string
	name      string
	timer     Timer
	gen       uint64
}

// lane queues settled turns of one address so they run in order.
type lane struct {
	queue   []Turn
	running bool
}

// Scheduler debounces fragments into turns.
type Scheduler struct {
	mu      sync.Mutex
	bursts  map[string]*burst
	lanes   map[string]*lane
	lastGen map[string]uint64 // generation of the newest fragment per address
	seq     uint64
	closed  bool
	wg      sync.WaitGroup

	quiet       time.Duration
	turnTimeout time.Duration
	clock       Clock
	handler     Handler
	watchdog    *Watchdog
	log         zerolog.Logger
}

// Opts holds parameters for creating a Scheduler.
type Opts struct {
	Handler     Handler
	Watchdog    *Watchdog     // nil disables inactivity tracking
	Quiet       time.Duration // debounce period, default 4s
	TurnTimeout time.Duration // per-turn handler deadline, default 2m
	Clock       Clock         // default RealClock
	Logger      zerolog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(opts Opts) (*Scheduler, error) {
	if opts.Handler == nil {
		return nil, fmt.Errorf("turn: handler is required")
	}
	s := &Scheduler{
		bursts:      make(map[string]*burst),
		lanes:       make(map[string]*lane),
		lastGen:     make(map[string]uint64),
		quiet:       opts.Quiet,
		turnTimeout: opts.TurnTimeout,
		clock:       opts.Clock,
		handler:     opts.Handler,
		watchdog:    opts.Watchdog,
		log:         opts.Logger,
	}
	if s.quiet <= 0 {
		s.quiet = DefaultQuiet
	}
	if s.turnTimeout <= 0 {
		s.turnTimeout = DefaultTurnTimeout
	}
	if s.clock == nil {
		s.clock = RealClock()
	}
	return s, nil
}

// OnFragment buffers one inbound fragment for address and restarts the
// quiet period. Any pending inactivity warning for the address is
// cancelled. Blank fragments are ignored.
func (s *Scheduler) OnFragment(address, fragment, displayName string) {
	fragment = strings.TrimSpace(fragment)
	if address == "" || fragment == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.watchdog != nil {
		s.watchdog.Cancel(address)
	}

	s.seq++
	gen := s.seq
	b, ok := s.bursts[address]
	if !ok {
		b = &burst{}
		s.bursts[address] = b
	} else if b.timer != nil {
		b.timer.Stop()
	}
	b.fragments = append(b.fragments, fragment)
	if displayName != "" {
		b.name = displayName
	}
	b.gen = gen
	s.lastGen[address] = gen
	b.timer = s.clock.AfterFunc(s.quiet, func() { s.settle(address, gen) })
}

// Activity records customer activity that carries no text, such as a
// refused attachment. Any pending inactivity warning for address is
// cancelled.
func (s *Scheduler) Activity(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.watchdog == nil {
		return
	}
	s.watchdog.Cancel(address)
}

// Buffered returns the fragments waiting to settle for address.
func (s *Scheduler) Buffered(address string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bursts[address]
	if !ok {
		return nil
	}
	return append([]string(nil), b.fragments...)
}

// settle hands the burst to the address lane. A firing whose generation no
// longer matches the buffer was superseded and does nothing.
func (s *Scheduler) settle(address string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bursts[address]
	if s.closed || !ok || b.gen != gen {
		return
	}
	delete(s.bursts, address)

	t := Turn{
		Address:     address,
		DisplayName: b.name,
		Text:        strings.Join(b.fragments, " "),
		Fragments:   b.fragments,
		SettledAt:   s.clock.Now(),
		gen:         gen,
	}

	ln, ok := s.lanes[address]
	if !ok {
		ln = &lane{}
		s.lanes[address] = ln
	}
	ln.queue = append(ln.queue, t)
	if ln.running {
		return
	}
	ln.running = true
	s.wg.Add(1)
	go s.drain(address, ln)
}

// drain runs queued turns of one address until the lane is empty.
func (s *Scheduler) drain(address string, ln *lane) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		if len(ln.queue) == 0 {
			ln.running = false
			delete(s.lanes, address)
			s.mu.Unlock()
			return
		}
		t := ln.queue[0]
		ln.queue = ln.queue[1:]
		s.mu.Unlock()

		out, ok := s.invoke(t)
		s.finish(t, out, ok)
	}
}

// invoke runs the handler, converting errors and panics into a dropped
// turn.
func (s *Scheduler) invoke(t Turn) (out Outcome, ok bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.turnTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Str("address", t.Address).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("turn: handler panicked, turn dropped")
			out, ok = Outcome{}, false
		}
	}()

	out, err := s.handler.HandleTurn(ctx, t)
	if err != nil {
		s.log.Error().Err(err).Str("address", t.Address).Msg("turn: handler failed, turn dropped")
		return Outcome{}, false
	}
	return out, true
}

// finish arms the watchdog after a reply that did not create an order,
// unless a newer fragment arrived for the address meanwhile.
func (s *Scheduler) finish(t Turn, out Outcome, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.lastGen[t.Address] == t.gen
	if current {
		delete(s.lastGen, t.Address)
	}
	if s.closed || s.watchdog == nil || !current || !ok {
		return
	}
	if out.Replied && !out.OrderCreated {
		s.watchdog.Arm(t.Address)
	}
}

// Wait blocks until every settled turn has been handled.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Close discards unsettled bursts and waits for running turns to finish.
// Fragments arriving after Close are ignored.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for addr, b := range s.bursts {
		if b.timer != nil {
			b.timer.Stop()
		}
		delete(s.bursts, addr)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
