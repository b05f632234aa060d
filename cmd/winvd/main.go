package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/1broseidon/winvd/internal/config"
	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/ipc"
	"github.com/1broseidon/winvd/internal/mcp"
	"github.com/1broseidon/winvd/internal/platform"
	"github.com/1broseidon/winvd/internal/vd"
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}
	os.Exit(run(os.Args[1], os.Args[2:]))
}

func run(cmd string, args []string) int {
	switch cmd {
	case "daemon":
		return runDaemon(args)
	case "status":
		return runStatus(args)
	case "list":
		return runList(args)
	case "current":
		return runCurrent(args)
	case "switch":
		return runSwitch(args)
	case "create":
		return runCreate(args)
	case "remove":
		return runRemove(args)
	case "rename":
		return runRename(args)
	case "wallpaper":
		return runWallpaper(args)
	case "move-desktop":
		return runMoveDesktop(args)
	case "move-window":
		return runMoveWindow(args)
	case "window":
		return runWindow(args)
	case "pin":
		return runPin(args, false)
	case "unpin":
		return runPin(args, true)
	case "watch":
		return runWatch(args)
	case "tui":
		return runTUI(args)
	case "config":
		return runConfig(args)
	case "mcp":
		return runMCP(args)
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printMainUsage(os.Stderr)
		return 2
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: winvd <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  daemon                      Start the winvd daemon (foreground)")
	fmt.Fprintln(w, "  status                      Show daemon status")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  list                        List desktops")
	fmt.Fprintln(w, "  current                     Show the current desktop")
	fmt.Fprintln(w, "  switch <desktop>            Switch to a desktop")
	fmt.Fprintln(w, "  create [name]               Create a desktop")
	fmt.Fprintln(w, "  remove <desktop>            Remove a desktop")
	fmt.Fprintln(w, "  rename <desktop> <name>     Rename a desktop")
	fmt.Fprintln(w, "  wallpaper <desktop> <path>  Set a desktop wallpaper ('all' for every desktop)")
	fmt.Fprintln(w, "  move-desktop <desktop> <n>  Move a desktop to position n")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  move-window <hwnd> <desktop> Move a window to a desktop")
	fmt.Fprintln(w, "  window <hwnd>               Show the desktop of a window")
	fmt.Fprintln(w, "  pin <hwnd>                  Pin a window to all desktops")
	fmt.Fprintln(w, "  unpin <hwnd>                Unpin a window")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  watch                       Stream desktop notifications from the daemon")
	fmt.Fprintln(w, "  tui                         Interactive desktop picker")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate             Validate configuration")
	fmt.Fprintln(w, "  config print                Print configuration")
	fmt.Fprintln(w, "  config explain              Explain a config value")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  mcp serve                   Start MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "A desktop is a zero-based index (2 or #2) or a GUID. A window handle is")
	fmt.Fprintln(w, "decimal or 0x-prefixed hex. Commands talk to the daemon unless --direct is given.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'winvd <command> --help' for command-specific options.")
}

// desktops is what the CLI commands need from either backend.
type desktops interface {
	mcp.Backend
	Count() (uint32, error)
	SetWallpaper(ref desktop.Ref, path string) error
	SetWallpaperForAll(path string) error
	MoveDesktop(ref desktop.Ref, index uint32) error
	WindowDesktop(hwnd platform.HWND) (desktop.Ref, error)
}

var (
	_ desktops = (*vd.Service)(nil)
	_ desktops = (*ipc.Client)(nil)
)

// commonFlags are accepted by every desktop command.
type commonFlags struct {
	direct     bool
	configPath string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.BoolVar(&c.direct, "direct", false, "Talk to the shell in-process instead of through the daemon")
	fs.StringVar(&c.configPath, "config", "", "Config file path (default: <UserConfigDir>/winvd/config.yaml)")
}

func (c *commonFlags) loadConfig() (*config.Config, error) {
	if c.configPath == "" {
		return config.Load()
	}
	res, err := config.LoadFromPath(c.configPath)
	if err != nil {
		return nil, err
	}
	return res.Config, nil
}

func (c *commonFlags) client() (*ipc.Client, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.SocketPath != "" {
		return ipc.NewClientWithSocket(cfg.SocketPath), nil
	}
	return ipc.NewClient(), nil
}

// open returns the backend selected by --direct and a function releasing it.
func (c *commonFlags) open() (desktops, func(), error) {
	if !c.direct {
		client, err := c.client()
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	vd.Configure(vd.Config{
		MaxAttempts: cfg.Actor.MaxAttempts,
		Priority:    cfg.Priority(),
	})
	svc, err := vd.Default()
	if err != nil {
		return nil, nil, err
	}
	return svc, vd.Shutdown, nil
}

// newCommand builds a flag set whose usage prints the given lines to stderr.
func newCommand(name string, common *commonFlags, usage ...string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if common != nil {
		common.register(fs)
	}
	fs.Usage = func() {
		for _, line := range usage {
			fmt.Fprintln(os.Stderr, line)
		}
		if len(usage) > 0 {
			fmt.Fprintln(os.Stderr, "")
		}
		fs.PrintDefaults()
	}
	return fs
}

// parse returns -1 when parsing succeeded, otherwise the exit code.
func parse(fs *flag.FlagSet, args []string, nargs ...int) int {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if len(nargs) > 0 {
		lo, hi := nargs[0], nargs[0]
		if len(nargs) > 1 {
			hi = nargs[1]
		}
		if fs.NArg() < lo || fs.NArg() > hi {
			fmt.Fprintf(os.Stderr, "%s: wrong number of arguments\n", fs.Name())
			fs.Usage()
			return 2
		}
	}
	return -1
}

func fail(err error) int {
	fmt.Fprintln(os.Stderr, err)
	return 1
}

func usageError(fs *flag.FlagSet, err error) int {
	fmt.Fprintf(os.Stderr, "%s: %v\n", fs.Name(), err)
	return 2
}
