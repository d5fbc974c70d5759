// Package tui rendert eine Such-Session im Terminal.
package tui

import (
	"errors"
	"fmt"
	"strings"

	"citesearch/session"
	"citesearch/views"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// clipboardWriteAll is a package-level variable to allow mocking in tests.
var clipboardWriteAll = clipboard.WriteAll

const (
	msgSearchInFlight = "A search is already running. Please wait for it to finish."
	msgClipboard      = "Failed to copy to clipboard"
	helpLine          = "enter search • alt+enter newline • ctrl+l clear • tab focus • ↑/↓ select • c/i copy • esc quit"
)

// ChangedMsg meldet, dass sich der Zustand der Session geändert hat.
type ChangedMsg struct{}

// Bridge leitet Änderungen der Session an das laufende Programm weiter, ohne den Aufrufer
// zu blockieren. Mehrere Änderungen zwischen zwei Renderings fallen zu einer zusammen.
type Bridge struct {
	ch   chan struct{}
	done chan struct{}
}

// NewBridge erstellt eine neue Bridge.
func NewBridge() *Bridge {
	return &Bridge{ch: make(chan struct{}, 1), done: make(chan struct{})}
}

// OnChange ist als session.Options.OnChange gedacht.
func (b *Bridge) OnChange() {
	select {
	case b.ch <- struct{}{}:
	default:
	}
}

// Wait liefert einen Cmd, der auf die nächste Änderung wartet.
func (b *Bridge) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-b.ch:
			return ChangedMsg{}
		case <-b.done:
			return nil
		}
	}
}

// Close beendet wartende Wait-Cmds.
func (b *Bridge) Close() {
	close(b.done)
}

type styles struct {
	cite, search, tagline, muted, title, label, copied, overlay, notice, card, selected lipgloss.Style
}

func defaultStyles() styles {
	card := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("250")).Padding(0, 1)
	return styles{
		cite:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0d9488")),
		search:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#581c87")),
		tagline:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f766e")),
		label:    lipgloss.NewStyle().Bold(true),
		copied:   lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e")),
		overlay:  lipgloss.NewStyle().Foreground(lipgloss.Color("#b91c1c")).Background(lipgloss.Color("#fee2e2")).Padding(0, 1),
		notice:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		card:     card,
		selected: card.BorderForeground(lipgloss.Color("#0d9488")),
	}
}

// Model ist das bubbletea-Modell über einer session.Session.
type Model struct {
	sess   *session.Session
	bridge *Bridge

	input    textarea.Model
	spinner  spinner.Model
	snap     session.Snapshot
	selected int
	width    int

	// notice überlagert den Fehler der Session (z.B. abgelehnte Suche, Clipboard-Fehler)
	notice string
	styles styles
}

// New erstellt das Modell. bridge muss als OnChange der Session registriert sein.
func New(sess *session.Session, bridge *Bridge) Model {
	ta := textarea.New()
	ta.Placeholder = "Enter a paragraph to find citations"
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter")
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		sess:    sess,
		bridge:  bridge,
		input:   ta,
		spinner: sp,
		snap:    sess.Snapshot(),
		styles:  defaultStyles(),
	}
}

// Init startet Cursor, Spinner und das Warten auf Session-Änderungen.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, m.bridge.Wait())
}

// Update verarbeitet Nachrichten.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.SetWidth(msg.Width - 2)
		return m, nil

	case ChangedMsg:
		m.refresh()
		return m, m.bridge.Wait()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		return m, tea.Quit

	case "enter":
		m.notice = ""
		if _, err := m.sess.Submit(m.input.Value()); err != nil {
			if errors.Is(err, session.ErrSearchInFlight) {
				m.notice = msgSearchInFlight
			} else {
				m.notice = err.Error()
			}
		}
		m.selected = 0
		m.refresh()
		return m, nil

	case "ctrl+l":
		m.input.Reset()
		m.sess.Clear()
		m.refresh()
		return m, nil

	case "tab":
		if m.input.Focused() {
			m.input.Blur()
			return m, nil
		}
		return m, m.input.Focus()
	}

	if m.input.Focused() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		m.sess.SetQuery(m.input.Value())
		return m, cmd
	}

	switch msg.String() {
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.snap.Citations)-1 {
			m.selected++
		}
	case "c":
		m.copy(session.FieldReference)
	case "i":
		m.copy(session.FieldInText)
	}
	return m, nil
}

func (m *Model) copy(field string) {
	text, err := m.sess.CopyCitationField(m.selected, field)
	if err != nil {
		return
	}
	if err := clipboardWriteAll(text); err != nil {
		m.notice = msgClipboard
	} else {
		m.notice = ""
	}
	m.refresh()
}

// refresh übernimmt den aktuellen Zustand der Session. Mit neuen Ergebnissen wandert der
// Fokus in die Ergebnisliste, damit c/i direkt kopieren.
func (m *Model) refresh() {
	prev := m.snap.View
	m.snap = m.sess.Snapshot()
	if m.selected >= len(m.snap.Citations) {
		m.selected = 0
	}
	if prev != session.ViewResults && m.snap.View == session.ViewResults {
		m.input.Blur()
	}
}

// View rendert den Bildschirm.
func (m Model) View() string {
	var b strings.Builder
	s := m.styles

	b.WriteString(s.cite.Render("Cite") + s.search.Render("Search™") + "\n")
	if m.snap.View == session.ViewLanding || m.snap.View == session.ViewEmpty {
		b.WriteString(s.tagline.Render("Find PubMed™ citations that support your writing") + "\n")
	}
	b.WriteString("\n" + m.input.View() + "\n\n")

	switch m.snap.View {
	case session.ViewLoading:
		b.WriteString(m.spinner.View() + " " + s.label.Render("Searching for citations...") + "\n")
		b.WriteString(s.muted.Render(m.snap.LoadingMessage) + "\n")

	case session.ViewEmpty:
		b.WriteString("🔍 No results found. Try refining your search.\n")

	case session.ViewResults:
		n := len(m.snap.Citations)
		b.WriteString(s.muted.Render(fmt.Sprintf("Found %d %s in %s seconds", n, views.Plural(n, "result", "results"), views.FormatSeconds(m.snap.Elapsed))) + "\n")
		for i := range m.snap.Citations {
			b.WriteString(m.renderCitation(i) + "\n")
		}
	}

	if overlay := m.overlay(); overlay != "" {
		b.WriteString("\n" + s.overlay.Render(overlay) + "\n")
	}
	b.WriteString("\n" + s.muted.Render(helpLine))
	return b.String()
}

func (m Model) overlay() string {
	if m.notice != "" {
		return m.notice
	}
	return m.snap.Error
}

func (m Model) renderCitation(i int) string {
	s := m.styles
	c := m.snap.Citations[i]

	var b strings.Builder
	b.WriteString(s.title.Render(c.Title) + "\n")
	if c.PMCLink != "" {
		b.WriteString(s.muted.Render(c.PMCLink) + "\n")
	}
	doi := c.DOIOrPlaceholder()
	if c.HasDOI() {
		doi = c.DOILink()
	}
	b.WriteString(s.label.Render("DOI: ") + doi + "   " + s.label.Render("Published: ") + c.PublicationDate + "\n\n")
	b.WriteString(c.SupportingPassage + "\n\n")
	b.WriteString(s.label.Render("🤖 AI reasoning") + "\n" + c.Reasoning + "\n\n")
	b.WriteString(s.label.Render("Reference list") + m.copiedMark(i, session.FieldReference) + "\n" + c.ReferenceListCitation + "\n")
	b.WriteString(s.label.Render("In-text") + m.copiedMark(i, session.FieldInText) + "\n" + c.InTextCitation)

	style := s.card
	if i == m.selected && !m.input.Focused() {
		style = s.selected
	}
	if m.width > 4 {
		style = style.Width(m.width - 4)
	}
	return style.Render(b.String())
}

func (m Model) copiedMark(i int, field string) string {
	if m.snap.IsCopied(i, field) {
		return " " + m.styles.copied.Render("✓ Copied!")
	}
	return ""
}
