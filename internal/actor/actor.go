// Package actor runs every façade call on one dedicated OS thread.
//
// The shell's objects belong to the apartment of the thread that created
// them, so the actor locks a goroutine to its thread, attaches it, and feeds
// it work items one at a time over an unbuffered channel. Transient failures
// are retried after dropping every cached reference.
package actor

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/1broseidon/winvd/internal/platform"
	"github.com/1broseidon/winvd/internal/session"
	"github.com/1broseidon/winvd/internal/vderr"
)

// DefaultMaxAttempts is the total number of tries for a call, including the
// first.
const DefaultMaxAttempts = 5

// Config holds configuration for the actor.
type Config struct {
	Connector   platform.Connector
	MaxAttempts int
	Priority    platform.Priority
	Session     session.Options
	Logger      *slog.Logger
}

// Func is a unit of work. It runs on the actor thread with exclusive use of
// the session.
type Func func(s *session.Session) (any, error)

type result struct {
	val any
	err error
}

type work struct {
	fn    Func
	reply chan result
}

// Stats counts what the actor has done since it started.
type Stats struct {
	Calls    int64 `json:"calls"`
	Retries  int64 `json:"retries"`
	Failures int64 `json:"failures"`
}

// Actor owns the thread. Do may be called from any goroutine.
type Actor struct {
	work        chan work
	quit        chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
	maxAttempts int
	logger      *slog.Logger

	calls    atomic.Int64
	retries  atomic.Int64
	failures atomic.Int64
}

// New starts the actor thread and waits until it is attached. An attach
// failure is returned and no thread is left running.
func New(cfg Config) (*Actor, error) {
	if cfg.Connector == nil {
		return nil, fmt.Errorf("actor: no connector")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	a := &Actor{
		work:        make(chan work),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		maxAttempts: cfg.MaxAttempts,
		logger:      cfg.Logger,
	}
	ready := make(chan error, 1)
	go a.run(cfg, ready)
	if err := <-ready; err != nil {
		<-a.done
		return nil, err
	}
	return a, nil
}

func (a *Actor) run(cfg Config, ready chan<- error) {
	defer close(a.done)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	detach, err := cfg.Connector.Attach()
	if err != nil {
		ready <- fmt.Errorf("actor: attach thread: %w", err)
		return
	}
	defer detach()
	if err := cfg.Connector.SetPriority(cfg.Priority); err != nil {
		// Running at normal priority only makes calls slower.
		a.logger.Warn("actor: failed to raise thread priority", "priority", cfg.Priority.String(), "error", err)
	}

	s := session.New(cfg.Connector, cfg.Session)
	defer s.DropAll()
	ready <- nil

	a.logger.Debug("actor started")
	for {
		select {
		case <-a.quit:
			a.logger.Debug("actor stopped")
			return
		case w := <-a.work:
			w.reply <- a.execute(s, w.fn)
		}
	}
}

// execute runs fn, retrying transient failures with a fresh session.
func (a *Actor) execute(s *session.Session, fn Func) result {
	a.calls.Add(1)
	var r result
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		r = a.attempt(s, fn)
		if r.err == nil || !vderr.IsTransient(r.err) {
			break
		}
		s.DropAll()
		if attempt < a.maxAttempts {
			a.retries.Add(1)
			a.logger.Warn("actor: transient failure, retrying",
				"attempt", attempt,
				"max_attempts", a.maxAttempts,
				"error", r.err)
		}
	}
	if r.err != nil {
		a.failures.Add(1)
	}
	return r
}

func (a *Actor) attempt(s *session.Session, fn Func) (r result) {
	defer func() {
		if p := recover(); p != nil {
			a.logger.Error("actor: work panic recovered", "error", p)
			r = result{err: fmt.Errorf("actor: work panicked: %v", p)}
		}
	}()
	v, err := fn(s)
	return result{val: v, err: err}
}

// Do runs fn on the actor thread and returns its result. It blocks until the
// actor accepts the item and then until the item completes.
func (a *Actor) Do(fn Func) (any, error) {
	w := work{fn: fn, reply: make(chan result, 1)}
	select {
	case a.work <- w:
	case <-a.quit:
		return nil, vderr.New("submit", vderr.SenderError)
	}
	r, ok := <-w.reply
	if !ok {
		return nil, vderr.New("receive", vderr.ReceiverError)
	}
	return r.val, r.err
}

// Call is Do with a typed result.
func Call[T any](a *Actor, fn func(s *session.Session) (T, error)) (T, error) {
	v, err := a.Do(func(s *session.Session) (any, error) { return fn(s) })
	t, _ := v.(T)
	return t, err
}

// Stats returns a snapshot of the counters.
func (a *Actor) Stats() Stats {
	return Stats{
		Calls:    a.calls.Load(),
		Retries:  a.retries.Load(),
		Failures: a.failures.Load(),
	}
}

// Close stops the thread after the item in progress, if any, completes.
// Later calls to Do fail with SenderError.
func (a *Actor) Close() {
	a.closeOnce.Do(func() { close(a.quit) })
	<-a.done
}
