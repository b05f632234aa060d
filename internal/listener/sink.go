package listener

import (
	"time"

	"github.com/1broseidon/winvd/internal/vderr"
)

// Sink receives events on the listener thread. Send must not block for long:
// callbacks are delivered one at a time.
type Sink interface {
	Send(ev Event) error
}

type chanSink struct {
	ch chan<- Event
}

// ChanSink sends without blocking. A full channel drops the event and
// reports SenderError.
func ChanSink(ch chan<- Event) Sink { return chanSink{ch: ch} }

func (s chanSink) Send(ev Event) error {
	select {
	case s.ch <- ev:
		return nil
	default:
		return vderr.New("send event", vderr.SenderError)
	}
}

type blockingChanSink struct {
	ch      chan<- Event
	timeout time.Duration
}

// BlockingChanSink waits up to timeout for room in ch.
func BlockingChanSink(ch chan<- Event, timeout time.Duration) Sink {
	return blockingChanSink{ch: ch, timeout: timeout}
}

func (s blockingChanSink) Send(ev Event) error {
	t := time.NewTimer(s.timeout)
	defer t.Stop()
	select {
	case s.ch <- ev:
		return nil
	case <-t.C:
		return vderr.New("send event", vderr.SenderError)
	}
}

// FuncSink hands each event to fn, typically a proxy into an application
// event loop.
type FuncSink func(Event)

func (f FuncSink) Send(ev Event) error {
	f(ev)
	return nil
}
