package daemon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/creachadair/taskgroup"

	"github.com/1broseidon/winvd/internal/config"
	"github.com/1broseidon/winvd/internal/ipc"
	"github.com/1broseidon/winvd/internal/journal"
	"github.com/1broseidon/winvd/internal/listener"
	"github.com/1broseidon/winvd/internal/platform"
	"github.com/1broseidon/winvd/internal/runtimepath"
	"github.com/1broseidon/winvd/internal/vd"
)

// Options configures Run. Only Config is required.
type Options struct {
	Config *config.Config
	// Connector and ListenerConnector default to the native connector.
	Connector         platform.Connector
	ListenerConnector platform.Connector
	// SocketPath and PIDPath override the runtime directory defaults.
	SocketPath string
	PIDPath    string
	Logger     *slog.Logger
	// Ready, when set, is called once the socket accepts connections.
	Ready func(socketPath string)
}

// Run starts the desktop service, the listener, the monitor and the IPC
// server, and blocks until ctx is done.
func Run(ctx context.Context, opts Options) error {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	j, err := journal.New(cfg.GetJournalConfig())
	if err != nil {
		return err
	}
	defer j.Close()

	svc, err := vd.New(vd.Config{
		Connector:         opts.Connector,
		ListenerConnector: opts.ListenerConnector,
		MaxAttempts:       cfg.Actor.MaxAttempts,
		Priority:          cfg.Priority(),
		ListenInterval:    cfg.Listener.Interval,
		Journal:           j,
		Logger:            logger.With("component", "actor"),
	})
	if err != nil {
		return err
	}
	defer svc.Close()

	events := NewBroadcaster(cfg.Listener.EventBuffer, j)
	defer events.Close()

	var h *listener.Handle
	if cfg.Listener.Enabled {
		h, err = svc.Listen(events)
		if err != nil {
			// The monitor keeps reporting the shell state; listing and
			// switching still work without notifications.
			logger.Warn("listener unavailable", "error", err)
			h = nil
		} else {
			defer h.Stop()
		}
	}

	mon := NewMonitor(MonitorConfig{
		Interval: cfg.Monitor.Interval,
		Journal:  j,
		Logger:   logger.With("component", "monitor"),
	}, svc)

	socketPath := opts.SocketPath
	if socketPath == "" {
		socketPath = cfg.SocketPath
	}
	srv, err := ipc.NewServer(ipc.ServerConfig{
		SocketPath: socketPath,
		Desktops:   svc,
		Events:     events,
		Status:     statusHook(h, events, mon, svc),
		Logger:     logger.With("component", "ipc"),
	})
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Stop()

	pidPath, err := writePID(opts.PIDPath)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	logger.Info("daemon started", "socket", srv.SocketPath(), "pid", os.Getpid())
	if opts.Ready != nil {
		opts.Ready(srv.SocketPath())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var g taskgroup.Group
	g.Go(func() error {
		defer cancel()
		return mon.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		srv.Stop()
		return nil
	})
	err = g.Wait()

	logger.Info("daemon stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func statusHook(h *listener.Handle, events *Broadcaster, mon *Monitor, svc *vd.Service) func(*ipc.StatusData) {
	return func(st *ipc.StatusData) {
		st.Listener = "disabled"
		if h != nil {
			st.Listener = h.State().String()
			st.Registrations = h.Registrations()
			st.Delivered = h.Delivered()
			st.Dropped = h.Dropped() + events.Dropped()
		}
		st.Subscribers = events.Subscribers()
		st.LastProbe = mon.Last().Time
		st.Actor = svc.Stats()
	}
}

func writePID(path string) (string, error) {
	if path == "" {
		var err error
		if path, err = runtimepath.PIDPath(); err != nil {
			return "", fmt.Errorf("failed to resolve pid file: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("failed to create pid directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0600); err != nil {
		return "", fmt.Errorf("failed to write pid file: %w", err)
	}
	return path, nil
}

// ReadPID returns the pid recorded by a running daemon.
func ReadPID(path string) (int, error) {
	if path == "" {
		var err error
		if path, err = runtimepath.PIDPath(); err != nil {
			return 0, err
		}
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(string(bytes.TrimSpace(b)))
	if err != nil {
		return 0, fmt.Errorf("malformed pid file %s: %w", path, err)
	}
	return pid, nil
}

