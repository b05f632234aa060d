package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"

	"github.com/1broseidon/winvd/internal/vd"
)

var (
	currentMarker = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("●")
	otherMarker   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("○")
	unnamedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
)

// desktopItem implements list.Item for one desktop.
type desktopItem struct {
	info vd.DesktopInfo
}

func (i desktopItem) Title() string {
	marker := otherMarker
	if i.info.Current {
		marker = currentMarker
	}
	name := i.info.Name
	if name == "" {
		name = unnamedStyle.Render("(unnamed)")
	}
	return fmt.Sprintf("%s #%d %s", marker, i.info.Index, name)
}

func (i desktopItem) Description() string { return i.info.ID.String() }

func (i desktopItem) FilterValue() string {
	if i.info.Name != "" {
		return i.info.Name
	}
	return fmt.Sprintf("#%d", i.info.Index)
}

func buildItems(infos []vd.DesktopInfo) []list.Item {
	items := make([]list.Item, 0, len(infos))
	for _, info := range infos {
		items = append(items, desktopItem{info: info})
	}
	return items
}

// currentIndex returns the list position of the current desktop, or 0.
func currentIndex(infos []vd.DesktopInfo) int {
	for i, info := range infos {
		if info.Current {
			return i
		}
	}
	return 0
}
