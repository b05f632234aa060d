package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/platform"
)

func runStatus(args []string) int {
	var common commonFlags
	fs := newCommand("status", nil, "Usage: winvd status [--json]", "", "Show daemon status via IPC.")
	fs.StringVar(&common.configPath, "config", "", "Config file path")
	asJSON := fs.Bool("json", false, "Print JSON")
	if code := parse(fs, args, 0); code >= 0 {
		return code
	}

	client, err := common.client()
	if err != nil {
		return fail(err)
	}
	status, err := client.GetStatus()
	if err != nil {
		return fail(err)
	}
	if *asJSON {
		return printJSON(os.Stdout, status)
	}
	fmt.Printf("daemon_running: %v\n", status.DaemonRunning)
	fmt.Printf("connected:      %v\n", status.Connected)
	fmt.Printf("desktops:       %d\n", status.Count)
	fmt.Printf("current:        %s\n", status.Current)
	fmt.Printf("listener:       %s\n", status.Listener)
	fmt.Printf("events:         %d delivered, %d dropped, %d subscribers\n", status.Delivered, status.Dropped, status.Subscribers)
	fmt.Printf("actor_calls:    %d (%d retries, %d failures)\n", status.Actor.Calls, status.Actor.Retries, status.Actor.Failures)
	if !status.LastProbe.IsZero() {
		fmt.Printf("last_probe:     %s\n", status.LastProbe.Format(time.RFC3339))
	}
	fmt.Printf("uptime_seconds: %d\n", status.UptimeSeconds)
	return 0
}

func runList(args []string) int {
	var common commonFlags
	fs := newCommand("list", &common, "Usage: winvd list [--json] [--direct]", "", "List desktops. Prints a table on a terminal and JSON otherwise.")
	asJSON := fs.Bool("json", false, "Always print JSON")
	if code := parse(fs, args, 0); code >= 0 {
		return code
	}

	b, release, err := common.open()
	if err != nil {
		return fail(err)
	}
	defer release()
	infos, err := b.Describe()
	if err != nil {
		return fail(err)
	}
	if *asJSON || !isTerminal(os.Stdout) {
		return printJSON(os.Stdout, infos)
	}
	printDesktopTable(os.Stdout, infos)
	return 0
}

func runCurrent(args []string) int {
	var common commonFlags
	fs := newCommand("current", &common, "Usage: winvd current [--direct]")
	if code := parse(fs, args, 0); code >= 0 {
		return code
	}

	b, release, err := common.open()
	if err != nil {
		return fail(err)
	}
	defer release()
	infos, err := b.Describe()
	if err != nil {
		return fail(err)
	}
	for _, info := range infos {
		if info.Current {
			fmt.Println(describeLine(info))
			return 0
		}
	}
	return fail(fmt.Errorf("no current desktop reported"))
}

func runSwitch(args []string) int {
	var common commonFlags
	fs := newCommand("switch", &common, "Usage: winvd switch [--direct] <desktop>")
	if code := parse(fs, args, 1); code >= 0 {
		return code
	}
	ref, err := desktop.ParseRef(fs.Arg(0))
	if err != nil {
		return usageError(fs, err)
	}

	b, release, err := common.open()
	if err != nil {
		return fail(err)
	}
	defer release()
	if err := b.Switch(ref); err != nil {
		return fail(err)
	}
	return 0
}

func runCreate(args []string) int {
	var common commonFlags
	fs := newCommand("create", &common, "Usage: winvd create [--direct] [name]", "", "Create a desktop at the end and print its index and id.")
	if code := parse(fs, args, 0, 1); code >= 0 {
		return code
	}

	b, release, err := common.open()
	if err != nil {
		return fail(err)
	}
	defer release()
	ref, err := b.Create()
	if err != nil {
		return fail(err)
	}
	if name := fs.Arg(0); name != "" {
		if err := b.SetName(ref, name); err != nil {
			return fail(err)
		}
	}
	fmt.Println(ref)
	return 0
}

func runRemove(args []string) int {
	var common commonFlags
	fs := newCommand("remove", &common, "Usage: winvd remove [--direct] [--fallback desktop] <desktop>", "", "Remove a desktop. Its windows move to the fallback, a neighbour by default.")
	fallbackArg := fs.String("fallback", "", "Desktop that receives the windows")
	if code := parse(fs, args, 1); code >= 0 {
		return code
	}
	ref, err := desktop.ParseRef(fs.Arg(0))
	if err != nil {
		return usageError(fs, err)
	}
	var fallback desktop.Ref
	if *fallbackArg != "" {
		if fallback, err = desktop.ParseRef(*fallbackArg); err != nil {
			return usageError(fs, err)
		}
	}

	b, release, err := common.open()
	if err != nil {
		return fail(err)
	}
	defer release()
	if err := b.Remove(ref, fallback); err != nil {
		return fail(err)
	}
	return 0
}

func runRename(args []string) int {
	var common commonFlags
	fs := newCommand("rename", &common, "Usage: winvd rename [--direct] <desktop> <name>", "", "An empty name restores the default label.")
	if code := parse(fs, args, 2); code >= 0 {
		return code
	}
	ref, err := desktop.ParseRef(fs.Arg(0))
	if err != nil {
		return usageError(fs, err)
	}

	b, release, err := common.open()
	if err != nil {
		return fail(err)
	}
	defer release()
	if err := b.SetName(ref, fs.Arg(1)); err != nil {
		return fail(err)
	}
	return 0
}

func runWallpaper(args []string) int {
	var common commonFlags
	fs := newCommand("wallpaper", &common, "Usage: winvd wallpaper [--direct] <desktop|all> <path>")
	if code := parse(fs, args, 2); code >= 0 {
		return code
	}
	all := strings.EqualFold(fs.Arg(0), "all")
	var ref desktop.Ref
	if !all {
		var err error
		if ref, err = desktop.ParseRef(fs.Arg(0)); err != nil {
			return usageError(fs, err)
		}
	}

	b, release, err := common.open()
	if err != nil {
		return fail(err)
	}
	defer release()
	if all {
		err = b.SetWallpaperForAll(fs.Arg(1))
	} else {
		err = b.SetWallpaper(ref, fs.Arg(1))
	}
	if err != nil {
		return fail(err)
	}
	return 0
}

func runMoveDesktop(args []string) int {
	var common commonFlags
	fs := newCommand("move-desktop", &common, "Usage: winvd move-desktop [--direct] <desktop> <index>")
	if code := parse(fs, args, 2); code >= 0 {
		return code
	}
	ref, err := desktop.ParseRef(fs.Arg(0))
	if err != nil {
		return usageError(fs, err)
	}
	index, err := strconv.ParseUint(fs.Arg(1), 10, 32)
	if err != nil {
		return usageError(fs, fmt.Errorf("invalid index %q", fs.Arg(1)))
	}

	b, release, err := common.open()
	if err != nil {
		return fail(err)
	}
	defer release()
	if err := b.MoveDesktop(ref, uint32(index)); err != nil {
		return fail(err)
	}
	return 0
}

func runMoveWindow(args []string) int {
	var common commonFlags
	fs := newCommand("move-window", &common, "Usage: winvd move-window [--direct] <hwnd> <desktop>")
	if code := parse(fs, args, 2); code >= 0 {
		return code
	}
	hwnd, err := platform.ParseHWND(fs.Arg(0))
	if err != nil {
		return usageError(fs, err)
	}
	ref, err := desktop.ParseRef(fs.Arg(1))
	if err != nil {
		return usageError(fs, err)
	}

	b, release, err := common.open()
	if err != nil {
		return fail(err)
	}
	defer release()
	if err := b.MoveWindow(hwnd, ref); err != nil {
		return fail(err)
	}
	return 0
}

func runWindow(args []string) int {
	var common commonFlags
	fs := newCommand("window", &common, "Usage: winvd window [--direct] <hwnd>", "", "Print the desktop a window is on.")
	if code := parse(fs, args, 1); code >= 0 {
		return code
	}
	hwnd, err := platform.ParseHWND(fs.Arg(0))
	if err != nil {
		return usageError(fs, err)
	}

	b, release, err := common.open()
	if err != nil {
		return fail(err)
	}
	defer release()
	ref, err := b.WindowDesktop(hwnd)
	if err != nil {
		return fail(err)
	}
	fmt.Println(ref)
	return 0
}

func runPin(args []string, unpin bool) int {
	name := "pin"
	if unpin {
		name = "unpin"
	}
	var common commonFlags
	fs := newCommand(name, &common, fmt.Sprintf("Usage: winvd %s [--direct] [--app] <hwnd>", name))
	app := fs.Bool("app", false, "Apply to every window of the window's application")
	if code := parse(fs, args, 1); code >= 0 {
		return code
	}
	hwnd, err := platform.ParseHWND(fs.Arg(0))
	if err != nil {
		return usageError(fs, err)
	}

	b, release, err := common.open()
	if err != nil {
		return fail(err)
	}
	defer release()
	op := pinOp(b, *app, unpin)
	if err := op(hwnd); err != nil {
		return fail(err)
	}
	return 0
}

func pinOp(b desktops, app, unpin bool) func(platform.HWND) error {
	switch {
	case app && unpin:
		return b.UnpinApp
	case app:
		return b.PinApp
	case unpin:
		return b.UnpinWindow
	default:
		return b.PinWindow
	}
}
