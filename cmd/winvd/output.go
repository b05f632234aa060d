package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/1broseidon/winvd/internal/listener"
	"github.com/1broseidon/winvd/internal/vd"
)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func printJSON(w io.Writer, v any) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fail(err)
	}
	return 0
}

func printDesktopTable(w io.Writer, infos []vd.DesktopInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tINDEX\tNAME\tID")
	for _, info := range infos {
		marker := ""
		if info.Current {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", marker, info.Index, info.Name, info.ID)
	}
	tw.Flush()
}

func describeLine(info vd.DesktopInfo) string {
	if info.Name == "" {
		return fmt.Sprintf("#%d %s", info.Index, info.ID)
	}
	return fmt.Sprintf("#%d %s %q", info.Index, info.ID, info.Name)
}

// formatEvent renders one notification for watch.
func formatEvent(ev listener.Event) string {
	ts := ev.Time.Format("15:04:05.000")
	switch ev.Kind {
	case listener.Created:
		return fmt.Sprintf("%s created   %s", ts, ev.Desktop)
	case listener.Destroyed:
		return fmt.Sprintf("%s destroyed %s (windows moved to %s)", ts, ev.Desktop, ev.Fallback)
	case listener.CurrentChanged:
		return fmt.Sprintf("%s switched  %s -> %s", ts, ev.Old, ev.New)
	case listener.NameChanged:
		return fmt.Sprintf("%s renamed   %s to %q", ts, ev.Desktop, ev.Name)
	case listener.WallpaperChanged:
		return fmt.Sprintf("%s wallpaper %s %s", ts, ev.Desktop, ev.Path)
	case listener.Moved:
		return fmt.Sprintf("%s moved     %s from %d to %d", ts, ev.Desktop, ev.OldIndex, ev.NewIndex)
	case listener.ViewChanged:
		return fmt.Sprintf("%s view      %s", ts, ev.Window)
	default:
		return fmt.Sprintf("%s %s", ts, ev.Kind)
	}
}
