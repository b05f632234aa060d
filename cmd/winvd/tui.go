package main

import (
	"github.com/1broseidon/winvd/internal/tui"
)

func runTUI(args []string) int {
	var common commonFlags
	fs := newCommand("tui", &common, "Usage: winvd tui [--direct] [--stay]")
	stay := fs.Bool("stay", false, "Keep the picker open after switching")
	if code := parse(fs, args, 0); code >= 0 {
		return code
	}

	b, release, err := common.open()
	if err != nil {
		return fail(err)
	}
	defer release()
	if err := tui.Run(b, tui.Options{Stay: *stay}); err != nil {
		return fail(err)
	}
	return 0
}
