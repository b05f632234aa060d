package mcp

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/listener"
	"github.com/1broseidon/winvd/internal/platform"
	"github.com/1broseidon/winvd/internal/vd"
)

const defaultEventLimit = 20

func textResult(format string, args ...any) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

func parseRef(field, s string) (desktop.Ref, error) {
	ref, err := desktop.ParseRef(s)
	if err != nil {
		return desktop.Ref{}, fmt.Errorf("%s: %w", field, err)
	}
	return ref, nil
}

func toOutput(info vd.DesktopInfo) DesktopOutput {
	return DesktopOutput{
		Index:   info.Index,
		ID:      info.ID.String(),
		Name:    info.Name,
		Current: info.Current,
	}
}

func refString(r desktop.Ref) string {
	if r.IsZero() {
		return ""
	}
	return r.String()
}

func eventOutput(ev listener.Event) EventOutput {
	out := EventOutput{
		Time:     ev.Time.Format(time.RFC3339Nano),
		Kind:     string(ev.Kind),
		Desktop:  refString(ev.Desktop),
		Fallback: refString(ev.Fallback),
		Old:      refString(ev.Old),
		New:      refString(ev.New),
		Name:     ev.Name,
		Path:     ev.Path,
		OldIndex: ev.OldIndex,
		NewIndex: ev.NewIndex,
	}
	if ev.Window != 0 {
		out.Window = ev.Window.String()
	}
	return out
}

func (s *Server) handleListDesktops(_ context.Context, _ *mcpsdk.CallToolRequest, _ ListDesktopsInput) (*mcpsdk.CallToolResult, ListDesktopsOutput, error) {
	infos, err := s.backend.Describe()
	if err != nil {
		return nil, ListDesktopsOutput{}, err
	}
	out := ListDesktopsOutput{Desktops: make([]DesktopOutput, 0, len(infos))}
	for _, info := range infos {
		out.Desktops = append(out.Desktops, toOutput(info))
	}
	return nil, out, nil
}

func (s *Server) handleCurrentDesktop(_ context.Context, _ *mcpsdk.CallToolRequest, _ CurrentDesktopInput) (*mcpsdk.CallToolResult, DesktopOutput, error) {
	infos, err := s.backend.Describe()
	if err != nil {
		return nil, DesktopOutput{}, err
	}
	for _, info := range infos {
		if info.Current {
			return nil, toOutput(info), nil
		}
	}
	return nil, DesktopOutput{}, fmt.Errorf("no current desktop reported")
}

func (s *Server) handleSwitchDesktop(_ context.Context, _ *mcpsdk.CallToolRequest, args SwitchDesktopInput) (*mcpsdk.CallToolResult, any, error) {
	ref, err := parseRef("desktop", args.Desktop)
	if err != nil {
		return nil, nil, err
	}
	if err := s.backend.Switch(ref); err != nil {
		return nil, nil, err
	}
	s.logger.Info("mcp: switched desktop", "desktop", ref)
	return textResult("Switched to desktop %s", ref), nil, nil
}

func (s *Server) handleCreateDesktop(_ context.Context, _ *mcpsdk.CallToolRequest, args CreateDesktopInput) (*mcpsdk.CallToolResult, DesktopOutput, error) {
	ref, err := s.backend.Create()
	if err != nil {
		return nil, DesktopOutput{}, err
	}
	if args.Name != "" {
		if err := s.backend.SetName(ref, args.Name); err != nil {
			return nil, DesktopOutput{}, fmt.Errorf("created %s but naming failed: %w", ref, err)
		}
	}
	s.logger.Info("mcp: created desktop", "desktop", ref, "name", args.Name)

	out := DesktopOutput{Name: args.Name}
	if n, ok := ref.Index(); ok {
		out.Index = n
	}
	if id, ok := ref.ID(); ok {
		out.ID = id.String()
	}
	return nil, out, nil
}

func (s *Server) handleRemoveDesktop(_ context.Context, _ *mcpsdk.CallToolRequest, args RemoveDesktopInput) (*mcpsdk.CallToolResult, any, error) {
	ref, err := parseRef("desktop", args.Desktop)
	if err != nil {
		return nil, nil, err
	}
	var fallback desktop.Ref
	if args.Fallback != "" {
		if fallback, err = parseRef("fallback", args.Fallback); err != nil {
			return nil, nil, err
		}
	}
	if err := s.backend.Remove(ref, fallback); err != nil {
		return nil, nil, err
	}
	s.logger.Info("mcp: removed desktop", "desktop", ref)
	return textResult("Removed desktop %s", ref), nil, nil
}

func (s *Server) handleRenameDesktop(_ context.Context, _ *mcpsdk.CallToolRequest, args RenameDesktopInput) (*mcpsdk.CallToolResult, any, error) {
	ref, err := parseRef("desktop", args.Desktop)
	if err != nil {
		return nil, nil, err
	}
	if err := s.backend.SetName(ref, args.Name); err != nil {
		return nil, nil, err
	}
	return textResult("Renamed desktop %s to %q", ref, args.Name), nil, nil
}

func (s *Server) handleMoveWindow(_ context.Context, _ *mcpsdk.CallToolRequest, args MoveWindowInput) (*mcpsdk.CallToolResult, any, error) {
	hwnd, err := platform.ParseHWND(args.Window)
	if err != nil {
		return nil, nil, err
	}
	ref, err := parseRef("desktop", args.Desktop)
	if err != nil {
		return nil, nil, err
	}
	if err := s.backend.MoveWindow(hwnd, ref); err != nil {
		return nil, nil, err
	}
	return textResult("Moved window %s to desktop %s", hwnd, ref), nil, nil
}

func (s *Server) handlePinWindow(_ context.Context, _ *mcpsdk.CallToolRequest, args PinWindowInput) (*mcpsdk.CallToolResult, any, error) {
	hwnd, err := platform.ParseHWND(args.Window)
	if err != nil {
		return nil, nil, err
	}
	var (
		op   func(platform.HWND) error
		verb string
	)
	switch {
	case args.App && args.Unpin:
		op, verb = s.backend.UnpinApp, "Unpinned the application of"
	case args.App:
		op, verb = s.backend.PinApp, "Pinned the application of"
	case args.Unpin:
		op, verb = s.backend.UnpinWindow, "Unpinned"
	default:
		op, verb = s.backend.PinWindow, "Pinned"
	}
	if err := op(hwnd); err != nil {
		return nil, nil, err
	}
	return textResult("%s window %s", verb, hwnd), nil, nil
}

func (s *Server) handleRecentEvents(_ context.Context, _ *mcpsdk.CallToolRequest, args RecentEventsInput) (*mcpsdk.CallToolResult, RecentEventsOutput, error) {
	history, ok := s.backend.(EventHistory)
	if !ok {
		return nil, RecentEventsOutput{}, fmt.Errorf("recent_events needs the daemon; start it with 'winvd daemon'")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	events, err := history.RecentEvents(limit)
	if err != nil {
		return nil, RecentEventsOutput{}, err
	}
	out := RecentEventsOutput{Events: make([]EventOutput, 0, len(events))}
	for _, ev := range events {
		out.Events = append(out.Events, eventOutput(ev))
	}
	return nil, out, nil
}
