// Package tui is an interactive desktop picker. It lists desktops and lets the
// user switch, create, rename and remove them through any backend that offers
// those operations, in-process or through the daemon.
package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/vd"
)

// Desktops is what the picker needs from a backend.
type Desktops interface {
	Describe() ([]vd.DesktopInfo, error)
	Switch(ref desktop.Ref) error
	Create() (desktop.Ref, error)
	Remove(ref, fallback desktop.Ref) error
	SetName(ref desktop.Ref, name string) error
}

// Options tune the picker.
type Options struct {
	// Stay keeps the picker open after switching desktops.
	Stay bool
}

// Run starts the picker on the terminal and blocks until the user quits.
func Run(d Desktops, opts Options) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("tui requires an interactive terminal (stdin/stdout must be TTYs)")
	}
	final, err := tea.NewProgram(newModel(d, opts), tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}
	if m, ok := final.(model); ok && m.err != nil {
		return m.err
	}
	return nil
}

type mode int

const (
	modeBrowse mode = iota
	modeRename
	modeCreate
	modeRemove
)

// refreshedMsg carries a fresh listing.
type refreshedMsg struct {
	infos []vd.DesktopInfo
	err   error
}

// doneMsg is sent after a desktop operation completes.
type doneMsg struct {
	status string
	err    error
	quit   bool
}

// formFields outlives model copies so huh can write through its pointers.
type formFields struct {
	name    string
	confirm bool
}

type model struct {
	desktops Desktops
	opts     Options

	list   list.Model
	input  textinput.Model
	form   *huh.Form
	fields *formFields
	mode   mode
	target desktopItem

	loaded bool
	status string
	err    error

	width  int
	height int
}

func newModel(d Desktops, opts Options) model {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(lipgloss.Color("15")).
		BorderForeground(lipgloss.Color("62"))
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(lipgloss.Color("250")).
		BorderForeground(lipgloss.Color("62"))

	l := list.New(nil, delegate, 0, 0)
	l.Title = "Desktops"
	l.Styles.Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("62")).
		Padding(0, 1)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.DisableQuitKeybindings()

	ti := textinput.New()
	ti.Placeholder = "desktop name"
	ti.CharLimit = 128

	return model{
		desktops: d,
		opts:     opts,
		list:     l,
		input:    ti,
		fields:   &formFields{},
	}
}

// Init implements tea.Model.
func (m model) Init() tea.Cmd { return m.refresh() }

func (m model) refresh() tea.Cmd {
	d := m.desktops
	return func() tea.Msg {
		infos, err := d.Describe()
		return refreshedMsg{infos: infos, err: err}
	}
}

// Update implements tea.Model.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, m.listHeight())
		return m, nil
	case refreshedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		cmd := m.list.SetItems(buildItems(msg.infos))
		if !m.loaded {
			m.list.Select(currentIndex(msg.infos))
			m.loaded = true
		}
		return m, cmd
	case doneMsg:
		m.status = msg.status
		m.err = msg.err
		if msg.err == nil && msg.quit {
			return m, tea.Quit
		}
		return m, m.refresh()
	}

	switch m.mode {
	case modeRename:
		return m.updateRename(msg)
	case modeCreate, modeRemove:
		return m.updateForm(msg)
	}
	return m.updateBrowse(msg)
}

func (m model) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok && m.list.FilterState() != list.Filtering {
		switch km.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "enter":
			if item, ok := m.selected(); ok {
				return m, m.switchTo(item, !m.opts.Stay)
			}
			return m, nil
		case "n":
			return m.startCreate()
		case "r":
			if item, ok := m.selected(); ok {
				return m.startRename(item)
			}
			return m, nil
		case "x", "delete":
			if item, ok := m.selected(); ok {
				return m.startRemove(item)
			}
			return m, nil
		case "g":
			return m, m.refresh()
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m model) updateRename(msg tea.Msg) (tea.Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch km.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.mode = modeBrowse
			m.input.Blur()
			return m, nil
		case "enter":
			m.mode = modeBrowse
			m.input.Blur()
			return m, m.rename(m.target, strings.TrimSpace(m.input.Value()))
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch km.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.mode = modeBrowse
			m.form = nil
			return m, nil
		}
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}
	switch m.form.State {
	case huh.StateCompleted:
		done := m.mode
		m.mode = modeBrowse
		m.form = nil
		if done == modeCreate {
			return m, m.create(strings.TrimSpace(m.fields.name))
		}
		if m.fields.confirm {
			return m, m.remove(m.target)
		}
		return m, nil
	case huh.StateAborted:
		m.mode = modeBrowse
		m.form = nil
		return m, nil
	}
	return m, cmd
}

func (m model) selected() (desktopItem, bool) {
	item, ok := m.list.SelectedItem().(desktopItem)
	return item, ok
}

func (m model) startRename(item desktopItem) (tea.Model, tea.Cmd) {
	m.mode = modeRename
	m.target = item
	m.input.SetValue(item.info.Name)
	m.input.CursorEnd()
	return m, m.input.Focus()
}

func (m model) startCreate() (tea.Model, tea.Cmd) {
	m.fields.name = ""
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("name").
				Title("New desktop").
				Description("Leave empty to keep the shell's default name").
				CharLimit(128).
				Value(&m.fields.name),
		),
	).WithWidth(m.formWidth()).WithShowHelp(true)
	m.mode = modeCreate
	return m, m.form.Init()
}

func (m model) startRemove(item desktopItem) (tea.Model, tea.Cmd) {
	m.target = item
	m.fields.confirm = false
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Key("confirm").
				Title(fmt.Sprintf("Remove desktop #%d?", item.info.Index)).
				Description("Its windows move to a neighbouring desktop.").
				Affirmative("Remove").
				Negative("Cancel").
				Value(&m.fields.confirm),
		),
	).WithWidth(m.formWidth()).WithShowHelp(true)
	m.mode = modeRemove
	return m, m.form.Init()
}

func (m model) switchTo(item desktopItem, quit bool) tea.Cmd {
	d := m.desktops
	return func() tea.Msg {
		if err := d.Switch(desktop.WithID(item.info.ID)); err != nil {
			return doneMsg{err: err}
		}
		return doneMsg{status: fmt.Sprintf("switched to #%d", item.info.Index), quit: quit}
	}
}

func (m model) create(name string) tea.Cmd {
	d := m.desktops
	return func() tea.Msg {
		ref, err := d.Create()
		if err != nil {
			return doneMsg{err: err}
		}
		if name != "" {
			if err := d.SetName(ref, name); err != nil {
				return doneMsg{err: err}
			}
		}
		return doneMsg{status: "created " + ref.String()}
	}
}

func (m model) rename(item desktopItem, name string) tea.Cmd {
	d := m.desktops
	return func() tea.Msg {
		if err := d.SetName(desktop.WithID(item.info.ID), name); err != nil {
			return doneMsg{err: err}
		}
		return doneMsg{status: fmt.Sprintf("renamed #%d", item.info.Index)}
	}
}

func (m model) remove(item desktopItem) tea.Cmd {
	d := m.desktops
	return func() tea.Msg {
		if err := d.Remove(desktop.WithID(item.info.ID), desktop.Ref{}); err != nil {
			return doneMsg{err: err}
		}
		return doneMsg{status: fmt.Sprintf("removed #%d", item.info.Index)}
	}
}

func (m model) listHeight() int {
	// status line and help line
	h := m.height - 2
	if h < 1 {
		h = 1
	}
	return h
}

func (m model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	return w
}
