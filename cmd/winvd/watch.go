package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/1broseidon/winvd/internal/listener"
)

func runWatch(args []string) int {
	var common commonFlags
	fs := newCommand("watch", nil, "Usage: winvd watch [--json] [--history N]", "", "Stream desktop notifications from the daemon until interrupted.")
	fs.StringVar(&common.configPath, "config", "", "Config file path")
	asJSON := fs.Bool("json", false, "Print one JSON object per event (default when stdout is not a terminal)")
	history := fs.Int("history", 0, "Print the last N buffered events first")
	if code := parse(fs, args, 0); code >= 0 {
		return code
	}

	client, err := common.client()
	if err != nil {
		return fail(err)
	}
	jsonOut := *asJSON || !isTerminal(os.Stdout)
	enc := json.NewEncoder(os.Stdout)
	emit := func(ev listener.Event) {
		if jsonOut {
			enc.Encode(ev)
			return
		}
		fmt.Println(formatEvent(ev))
	}

	if *history > 0 {
		events, err := client.RecentEvents(*history)
		if err != nil {
			return fail(err)
		}
		for _, ev := range events {
			emit(ev)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := client.Subscribe(ctx, emit); err != nil {
		return fail(err)
	}
	return 0
}
