// Package tui is the terminal front end of smartmark. It renders the
// view-state synchronizer's snapshots and turns key presses into its
// operations; all remote work runs in tea commands.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/patric-chuzhbe/smartmark/internal/viewstate"
)

// Empty state texts.
const (
	NoBookmarksText = "No bookmarks yet. Add your first one above."
	NoMatchesText   = "No matches found for your search."
)

type synchronizer interface {
	Snapshot() viewstate.Snapshot
	SetSession(ctx context.Context, session *viewstate.Session)
	SetTitle(title string)
	SetURL(url string)
	SetSearch(search string)
	Refresh(ctx context.Context)
	Add(ctx context.Context) error
	Delete(ctx context.Context, id string) error
	SignOut(ctx context.Context) error
}

// SessionResolver turns a pasted session token into a session.
type SessionResolver func(ctx context.Context, token string) (*viewstate.Session, error)

type focus int

const (
	focusToken focus = iota
	focusTitle
	focusURL
	focusSearch
	focusList
)

type (
	snapshotMsg  viewstate.Snapshot
	addDoneMsg   struct{ err error }
	signInMsg    struct{ err error }
	signedOutMsg struct{ err error }
	doneMsg      struct{}
)

// Model is the bubbletea model of the bookmark screen.
type Model struct {
	ctx      context.Context
	sync     synchronizer
	resolve  SessionResolver
	loginURL string

	snapshot  viewstate.Snapshot
	token     textinput.Model
	title     textinput.Model
	url       textinput.Model
	search    textinput.Model
	focus     focus
	cursor    int
	width     int
	signInErr string
	quitting  bool
}

func newInput(placeholder string, limit int) textinput.Model {
	input := textinput.New()
	input.Placeholder = placeholder
	input.CharLimit = limit
	input.Width = 48
	input.Prompt = ""
	return input
}

// NewModel builds the model. loginURL is shown on the sign-in screen.
func NewModel(ctx context.Context, sync synchronizer, resolve SessionResolver, loginURL string) Model {
	m := Model{
		ctx:      ctx,
		sync:     sync,
		resolve:  resolve,
		loginURL: loginURL,
		snapshot: sync.Snapshot(),
		token:    newInput("paste your session token", 4096),
		title:    newInput("Bookmark title", 256),
		url:      newInput("https://example.com", 2048),
		search:   newInput("Search by title", 256),
	}
	m.token.EchoMode = textinput.EchoPassword

	if m.snapshot.Session == nil {
		m.setFocus(focusToken)
	} else {
		m.setFocus(focusTitle)
	}

	return m
}

// SnapshotMsg wraps a snapshot for tea.Program.Send.
func SnapshotMsg(snapshot viewstate.Snapshot) tea.Msg {
	return snapshotMsg(snapshot)
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	for target, input := range map[focus]*textinput.Model{
		focusToken:  &m.token,
		focusTitle:  &m.title,
		focusURL:    &m.url,
		focusSearch: &m.search,
	} {
		if target == f {
			input.Focus()
		} else {
			input.Blur()
		}
	}
}

func (m *Model) cycleFocus(step int) {
	order := []focus{focusTitle, focusURL, focusSearch, focusList}
	current := 0
	for i, f := range order {
		if f == m.focus {
			current = i
		}
	}
	m.setFocus(order[(current+step+len(order))%len(order)])
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.snapshot.Visible) {
		m.cursor = len(m.snapshot.Visible) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case snapshotMsg:
		wasSignedIn := m.snapshot.Session != nil
		m.snapshot = viewstate.Snapshot(msg)
		m.clampCursor()
		if wasSignedIn && m.snapshot.Session == nil {
			m.setFocus(focusToken)
		}
		return m, nil

	case addDoneMsg:
		if msg.err == nil {
			m.title.SetValue("")
			m.url.SetValue("")
			m.setFocus(focusTitle)
		}
		return m, nil

	case signInMsg:
		if msg.err != nil {
			m.signInErr = "Sign-in failed: " + msg.err.Error()
			return m, nil
		}
		m.signInErr = ""
		m.token.SetValue("")
		m.snapshot = m.sync.Snapshot()
		m.setFocus(focusTitle)
		return m, nil

	case signedOutMsg:
		if msg.err != nil {
			return m, nil
		}
		m.snapshot = m.sync.Snapshot()
		m.title.SetValue("")
		m.url.SetValue("")
		m.search.SetValue("")
		m.cursor = 0
		m.setFocus(focusToken)
		return m, nil

	case doneMsg:
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	}

	if m.snapshot.Session == nil {
		return m.handleSignInKey(msg)
	}

	switch msg.String() {
	case "tab":
		m.cycleFocus(1)
		return m, nil

	case "shift+tab":
		m.cycleFocus(-1)
		return m, nil

	case "enter":
		if m.focus == focusTitle || m.focus == focusURL {
			return m, m.addCmd()
		}
		return m, nil

	case "ctrl+d":
		if m.focus == focusList && len(m.snapshot.Visible) > 0 {
			return m, m.deleteCmd(m.snapshot.Visible[m.cursor].ID)
		}
		return m, nil

	case "ctrl+o":
		return m, m.signOutCmd()

	case "ctrl+r":
		return m, m.refreshCmd()
	}

	if m.focus == focusList {
		switch msg.String() {
		case "up", "k":
			m.cursor--
		case "down", "j":
			m.cursor++
		}
		m.clampCursor()
		return m, nil
	}

	return m.updateFocusedInput(msg)
}

func (m Model) handleSignInKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "enter" {
		token := strings.TrimSpace(m.token.Value())
		if token == "" {
			return m, nil
		}
		return m, m.signInCmd(token)
	}

	var cmd tea.Cmd
	m.token, cmd = m.token.Update(msg)
	return m, cmd
}

func (m Model) updateFocusedInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.focus {
	case focusTitle:
		before := m.title.Value()
		m.title, cmd = m.title.Update(msg)
		if m.title.Value() != before {
			m.sync.SetTitle(m.title.Value())
		}

	case focusURL:
		before := m.url.Value()
		m.url, cmd = m.url.Update(msg)
		if m.url.Value() != before {
			m.sync.SetURL(m.url.Value())
		}

	case focusSearch:
		before := m.search.Value()
		m.search, cmd = m.search.Update(msg)
		if m.search.Value() != before {
			m.sync.SetSearch(m.search.Value())
			m.cursor = 0
		}
	}

	return m, cmd
}

func (m Model) addCmd() tea.Cmd {
	ctx, sync := m.ctx, m.sync
	return func() tea.Msg {
		return addDoneMsg{err: sync.Add(ctx)}
	}
}

func (m Model) deleteCmd(id string) tea.Cmd {
	ctx, sync := m.ctx, m.sync
	return func() tea.Msg {
		_ = sync.Delete(ctx, id)
		return doneMsg{}
	}
}

func (m Model) refreshCmd() tea.Cmd {
	ctx, sync := m.ctx, m.sync
	return func() tea.Msg {
		sync.Refresh(ctx)
		return doneMsg{}
	}
}

func (m Model) signOutCmd() tea.Cmd {
	ctx, sync := m.ctx, m.sync
	return func() tea.Msg {
		return signedOutMsg{err: sync.SignOut(ctx)}
	}
}

func (m Model) signInCmd(token string) tea.Cmd {
	ctx, sync, resolve := m.ctx, m.sync, m.resolve
	return func() tea.Msg {
		session, err := resolve(ctx, token)
		if err != nil {
			return signInMsg{err: err}
		}
		sync.SetSession(ctx, session)
		return signInMsg{}
	}
}

// CountLabel renders "1 saved link" / "n saved links".
func CountLabel(n int) string {
	if n == 1 {
		return "1 saved link"
	}
	return fmt.Sprintf("%d saved links", n)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.snapshot.Session == nil {
		return m.signInView()
	}

	var b strings.Builder

	b.WriteString(chipStyle.Render(m.snapshot.Session.Email))
	b.WriteString("\n")
	b.WriteString(headingStyle.Render("Your bookmarks"))
	b.WriteString("\n")
	b.WriteString(subheadingStyle.Render(CountLabel(len(m.snapshot.Bookmarks))))
	b.WriteString("\n\n")

	addLabel := "enter: Add link"
	if m.snapshot.Saving {
		addLabel = "Adding..."
	}
	b.WriteString(lipgloss.JoinHorizontal(
		lipgloss.Center,
		m.field(m.title, focusTitle),
		" ",
		m.field(m.url, focusURL),
		" ",
		helpStyle.Render(addLabel),
	))
	b.WriteString("\n")
	b.WriteString(m.field(m.search, focusSearch))
	b.WriteString("\n\n")

	b.WriteString(m.listView())

	if toast := m.snapshot.Toast; toast != nil {
		style := toastInfoStyle
		if toast.Kind == viewstate.ToastError {
			style = toastErrorStyle
		}
		b.WriteString("\n")
		b.WriteString(style.Render(toast.Message))
	}

	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("tab focus • enter add • ctrl+d delete • ctrl+r refresh • ctrl+o logout • esc quit"))
	b.WriteString("\n")

	return b.String()
}

func (m Model) field(input textinput.Model, f focus) string {
	if m.focus == f {
		return focusedFieldStyle.Render(input.View())
	}
	return fieldStyle.Render(input.View())
}

func (m Model) listView() string {
	switch m.snapshot.EmptyState {
	case viewstate.EmptyNoBookmarks:
		return emptyStyle.Render(NoBookmarksText)
	case viewstate.EmptyNoMatches:
		return emptyStyle.Render(NoMatchesText)
	}

	var b strings.Builder
	for i, bookmark := range m.snapshot.Visible {
		marker := "  "
		title := titleStyle.Render(bookmark.Title)
		if m.focus == focusList && i == m.cursor {
			marker = selectedStyle.Render("> ")
			title = selectedStyle.Render(bookmark.Title)
		}
		b.WriteString(marker + title + "\n")
		b.WriteString("  " + urlStyle.Render(bookmark.URL) + "\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func (m Model) signInView() string {
	var b strings.Builder

	b.WriteString(headingStyle.Render("Smart Bookmark"))
	b.WriteString("\n")
	b.WriteString(subheadingStyle.Render("Save links, search faster, and keep your research organized."))
	b.WriteString("\n\n")
	b.WriteString("Sign in at " + titleStyle.Render(m.loginURL) + ",\n")
	b.WriteString("then paste the token shown at /api/session:\n\n")
	b.WriteString(m.field(m.token, focusToken))
	b.WriteString("\n")

	if m.signInErr != "" {
		b.WriteString(toastErrorStyle.Render(m.signInErr))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter sign in • esc quit"))
	b.WriteString("\n")

	return b.String()
}
