package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v3"

	"github.com/1broseidon/winvd/internal/config"
	"github.com/1broseidon/winvd/internal/daemon"
)

// daemonFlags override the config file. Each can also be set through a
// WINVD_ environment variable, e.g. WINVD_LOG_LEVEL=debug.
type daemonFlags struct {
	configPath string
	socket     string
	logLevel   string
	listen     string
	interval   time.Duration
	journal    string
}

func runDaemon(args []string) int {
	var df daemonFlags
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.StringVar(&df.configPath, "config", "", "Config file path (env WINVD_CONFIG)")
	fs.StringVar(&df.socket, "socket", "", "IPC socket path (env WINVD_SOCKET)")
	fs.StringVar(&df.logLevel, "log-level", "", "debug, info, warn or error (env WINVD_LOG_LEVEL)")
	fs.StringVar(&df.listen, "listen", "", "Enable the notification listener: true or false (env WINVD_LISTEN)")
	fs.DurationVar(&df.interval, "monitor-interval", 0, "Health probe interval (env WINVD_MONITOR_INTERVAL)")
	fs.StringVar(&df.journal, "journal", "", "Journal file path; enables the journal (env WINVD_JOURNAL)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: winvd daemon [options]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Run the desktop daemon in the foreground. Flags override the config file.")
		fmt.Fprintln(os.Stderr, "")
		fs.PrintDefaults()
	}
	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("WINVD")); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon takes no arguments")
		fs.Usage()
		return 2
	}

	cfg, err := loadDaemonConfig(df)
	if err != nil {
		return fail(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := daemon.Run(ctx, daemon.Options{Config: cfg, Logger: logger}); err != nil {
		logger.Error("daemon failed", "error", err)
		return 1
	}
	return 0
}

// loadDaemonConfig loads the config file and applies flag overrides, then
// validates the result.
func loadDaemonConfig(df daemonFlags) (*config.Config, error) {
	var (
		res *config.LoadResult
		err error
	)
	if df.configPath == "" {
		res, err = config.LoadWithSources()
	} else {
		res, err = config.LoadFromPath(df.configPath)
	}
	if err != nil {
		return nil, err
	}
	cfg := res.Config
	if df.socket != "" {
		cfg.SocketPath = df.socket
	}
	if df.logLevel != "" {
		cfg.LogLevel = df.logLevel
	}
	switch df.listen {
	case "":
	case "true", "1", "yes":
		cfg.Listener.Enabled = true
	case "false", "0", "no":
		cfg.Listener.Enabled = false
	default:
		return nil, fmt.Errorf("invalid --listen value %q", df.listen)
	}
	if df.interval != 0 {
		cfg.Monitor.Interval = df.interval
	}
	if df.journal != "" {
		cfg.Journal.Enabled = true
		cfg.Journal.File = df.journal
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
