package actor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/1broseidon/winvd/internal/platform"
	"github.com/1broseidon/winvd/internal/platform/fakeshell"
	"github.com/1broseidon/winvd/internal/session"
	"github.com/1broseidon/winvd/internal/vderr"
)

func newActor(t *testing.T, sh *fakeshell.Shell, guard session.Guard) (*Actor, *fakeshell.Connector) {
	t.Helper()
	c := sh.NewConnector()
	a, err := New(Config{
		Connector: c,
		Priority:  platform.PriorityTimeCritical,
		Session:   session.Options{Guard: guard},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(a.Close)
	return a, c
}

func count(s *session.Session) (uint32, error) { return s.Count() }

func TestCallReturnsResult(t *testing.T) {
	sh := fakeshell.New(3)
	defer sh.Close()
	a, c := newActor(t, sh, nil)

	n, err := Call(a, count)
	if err != nil || n != 3 {
		t.Fatalf("Call(count) = %d, %v, want 3, nil", n, err)
	}
	if got := c.Attaches(); got != 1 {
		t.Errorf("Attaches() = %d, want 1", got)
	}
	if got := c.Priority(); got != platform.PriorityTimeCritical {
		t.Errorf("Priority() = %v, want %v", got, platform.PriorityTimeCritical)
	}
}

func TestUnsetPriorityRunsTimeCritical(t *testing.T) {
	sh := fakeshell.New(1)
	defer sh.Close()
	c := sh.NewConnector()
	a, err := New(Config{Connector: c})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if _, err := Call(a, count); err != nil {
		t.Fatal(err)
	}
	if lvl, set := c.ThreadLevel(); !set || lvl != 15 {
		t.Errorf("ThreadLevel() = %d, %v, want 15, true", lvl, set)
	}
}

func TestTransientFailureRetried(t *testing.T) {
	sh := fakeshell.New(2)
	defer sh.Close()
	a, _ := newActor(t, sh, nil)

	sh.FailNext(3, vderr.CodeObjectNotConnected)
	n, err := Call(a, count)
	if err != nil || n != 2 {
		t.Fatalf("Call(count) = %d, %v, want 2, nil", n, err)
	}
	st := a.Stats()
	if st.Retries != 3 || st.Failures != 0 {
		t.Errorf("Stats() = %+v, want 3 retries and no failures", st)
	}
}

func TestRetriesBounded(t *testing.T) {
	sh := fakeshell.New(2)
	defer sh.Close()
	a, c := newActor(t, sh, nil)

	sh.FailNext(100, vderr.CodeRPCUnavailable)
	_, err := Call(a, count)
	if !errors.Is(err, vderr.RPCServerUnavailable) {
		t.Fatalf("Call(count) error = %v, want RPC unavailable", err)
	}
	st := a.Stats()
	if st.Retries != DefaultMaxAttempts-1 || st.Failures != 1 {
		t.Errorf("Stats() = %+v, want %d retries and 1 failure", st, DefaultMaxAttempts-1)
	}
	// Every attempt fails while connecting.
	if got := c.Connects(); got != 0 {
		t.Errorf("Connects() = %d, want 0 while every call fails", got)
	}
}

func TestNonTransientNotRetried(t *testing.T) {
	sh := fakeshell.New(2)
	defer sh.Close()
	a, _ := newActor(t, sh, nil)

	sh.FailOp("count", 1, vderr.CodeElementNotFound)
	if _, err := Call(a, count); !errors.Is(err, vderr.ElementNotFound) {
		t.Fatalf("Call(count) error = %v, want ElementNotFound", err)
	}
	if st := a.Stats(); st.Retries != 0 {
		t.Errorf("Retries = %d, want 0", st.Retries)
	}
}

func TestConcurrentCallsNeverOverlap(t *testing.T) {
	sh := fakeshell.New(4)
	defer sh.Close()
	sh.SetDelay(time.Millisecond)
	g := &session.OccupancyGuard{}
	a, c := newActor(t, sh, g)

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := Call(a, func(s *session.Session) (int, error) {
				refs, err := s.Desktops()
				return len(refs), err
			}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent call error = %v", err)
	}
	if got := g.Overlaps(); got != 0 {
		t.Errorf("session overlaps = %d, want 0", got)
	}
	if got := c.Overlaps(); got != 0 {
		t.Errorf("native overlaps = %d, want 0", got)
	}
	if got := g.Calls(); got != callers {
		t.Errorf("session calls = %d, want %d", got, callers)
	}
}

func TestOutageRecovery(t *testing.T) {
	sh := fakeshell.New(2)
	defer sh.Close()
	a, _ := newActor(t, sh, nil)
	if _, err := Call(a, count); err != nil {
		t.Fatal(err)
	}

	sh.Crash()
	done := make(chan error, 1)
	go func() {
		_, err := Call(a, count)
		done <- err
	}()
	select {
	case err := <-done:
		if !vderr.IsTransient(err) {
			t.Errorf("Call during outage error = %v, want the transient outage error", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("call during outage did not return")
	}

	sh.Restart()
	n, err := Call(a, count)
	if err != nil || n != 2 {
		t.Errorf("Call after restart = %d, %v, want 2, nil", n, err)
	}
}

func TestStaleSessionHealsWithinBound(t *testing.T) {
	sh := fakeshell.New(2)
	defer sh.Close()
	a, c := newActor(t, sh, nil)
	if _, err := Call(a, count); err != nil {
		t.Fatal(err)
	}
	sh.Restart()
	if _, err := Call(a, count); err != nil {
		t.Fatalf("Call after restart error = %v, want nil", err)
	}
	if got := c.Connects(); got != 2 {
		t.Errorf("Connects() = %d, want 2", got)
	}
}

func TestDoAfterClose(t *testing.T) {
	sh := fakeshell.New(1)
	defer sh.Close()
	a, _ := newActor(t, sh, nil)
	a.Close()
	a.Close()
	if _, err := Call(a, count); !errors.Is(err, vderr.SenderError) {
		t.Errorf("Call after Close error = %v, want SenderError", err)
	}
}

func TestPanicIsReturned(t *testing.T) {
	sh := fakeshell.New(1)
	defer sh.Close()
	a, _ := newActor(t, sh, nil)

	_, err := a.Do(func(*session.Session) (any, error) { panic("boom") })
	if err == nil {
		t.Fatal("Do(panicking) error = nil, want error")
	}
	if n, err := Call(a, count); err != nil || n != 1 {
		t.Errorf("Call after panic = %d, %v, want 1, nil", n, err)
	}
}

func TestReleasesOnClose(t *testing.T) {
	sh := fakeshell.New(2)
	defer sh.Close()
	c := sh.NewConnector()
	a, err := New(Config{Connector: c})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Call(a, func(s *session.Session) ([]string, error) {
		if _, err := s.Desktops(); err != nil {
			return nil, err
		}
		return nil, nil
	}); err != nil {
		t.Fatal(err)
	}
	a.Close()
	if got := sh.LiveObjects(); got != 0 {
		t.Errorf("LiveObjects() after Close = %d, want 0", got)
	}
}
