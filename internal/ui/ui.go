package ui

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jdefrancesco/dskOrder/internal/dcommit"
	"github.com/jdefrancesco/dskOrder/internal/dset"
	"github.com/jdefrancesco/dskOrder/internal/dsklog"
	"github.com/jdefrancesco/dskOrder/internal/session"
	"github.com/jdefrancesco/dskOrder/pkg/utils"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// Styles using Lip Gloss
var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true).
			Padding(0, 1)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("35")).
			Padding(0, 1)

	normalFileStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	markedFileStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	cursorStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("240")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)
)

type mode int

const (
	modeList mode = iota
	modeDelete
	modePreview
	modeRestore
	modeQuit
)

// chrome is the number of lines used around the entry list.
const chrome = 7

// Model holds the state of the TUI
type Model struct {
	sess     *session.Session
	entries  []dset.Entry
	cursor   int
	offset   int
	selected dset.Selection
	anchor   int

	mode        mode
	dialogInput string
	dialogCode  string
	dialogError string
	preview     []string

	status   string
	failed   bool
	working  bool
	width    int
	height   int
	quitting bool
}

type tickMsg time.Time

type commitDoneMsg struct {
	report *dcommit.Report
	err    error
}

type restoreDoneMsg struct {
	report *dcommit.RestoreReport
	err    error
}

// LaunchTUI runs the arranger over sess until the user quits.
func LaunchTUI(sess *session.Session) error {
	p := tea.NewProgram(NewModel(sess), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// NewModel creates the initial model for the TUI
func NewModel(sess *session.Session) Model {
	return Model{
		sess:     sess,
		entries:  sess.Entries(),
		selected: dset.Selection{},
		anchor:   -1,
		width:    80,
		height:   24,
	}
}

func tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init is called when the program starts
func (m Model) Init() tea.Cmd {
	if m.sess.Scanning() {
		return tick()
	}
	return nil
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.clampCursor()
		return m, nil

	case tickMsg:
		m.refresh()
		if m.sess.Scanning() {
			loaded, total := m.sess.Progress()
			m.setStatus(fmt.Sprintf("Loading %d of %d", loaded, total), false)
			return m, tick()
		}
		m.setStatus(fmt.Sprintf("Loaded %d images", len(m.entries)), false)
		return m, nil

	case commitDoneMsg:
		m.working = false
		m.refresh()
		m.reportCommit(msg.report, msg.err)
		return m, nil

	case restoreDoneMsg:
		m.working = false
		m.refresh()
		if msg.err != nil {
			m.setStatus("Restore failed: "+msg.err.Error(), true)
		} else {
			m.setStatus(msg.report.Summary(), !msg.report.OK())
		}
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case modeDelete:
			return m.updateDialog(msg)
		case modePreview:
			return m.updatePreview(msg)
		case modeRestore, modeQuit:
			return m.updateConfirm(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.sess.Dirty() {
			m.mode = modeQuit
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}

	case "home", "g":
		m.cursor = 0

	case "end", "G":
		m.cursor = max(len(m.entries)-1, 0)

	case " ":
		if id, ok := m.current(); ok {
			if m.selected.Has(id) {
				delete(m.selected, id)
			} else {
				m.selected[id] = struct{}{}
			}
			m.anchor = m.cursor
		}

	case "v":
		// Range select from the anchor to the cursor.
		from := m.anchor
		if from < 0 {
			from = m.cursor
		}
		lo, hi := min(from, m.cursor), max(from, m.cursor)
		for i := lo; i <= hi && i < len(m.entries); i++ {
			m.selected[m.entries[i].ID] = struct{}{}
		}

	case "esc":
		m.clearSelection()

	case "m":
		m.moveSelection(false)

	case "M":
		m.moveSelection(true)

	case "d":
		if len(m.selected) > 0 {
			m.mode = modeDelete
			m.dialogCode = GenConfirmationCode()
			m.dialogInput = ""
			m.dialogError = ""
		}

	case "p":
		plan, err := m.sess.Plan()
		if err != nil {
			m.setStatus(err.Error(), true)
			break
		}
		m.preview = plan.Lines()
		m.mode = modePreview

	case "c":
		return m.startCommit()

	case "u":
		if !m.working {
			m.mode = modeRestore
		}
	}

	m.clampCursor()
	return m, nil
}

// moveSelection drops the selected block before the cursor entry, or at
// the end. Dropping onto the selection itself does nothing.
func (m *Model) moveSelection(toEnd bool) {
	if len(m.selected) == 0 {
		m.setStatus("Nothing selected", false)
		return
	}
	var before dset.ID
	if !toEnd {
		id, ok := m.current()
		if !ok {
			return
		}
		if m.selected.Has(id) {
			return
		}
		before = id
	}

	if err := m.sess.Move(m.selected, before); err != nil {
		m.setStatus(err.Error(), true)
		return
	}
	first := -1
	m.refresh()
	for i, e := range m.entries {
		if m.selected.Has(e.ID) {
			first = i
			break
		}
	}
	if first >= 0 {
		m.cursor = first
	}
	dsklog.Dlogger.Debugf("Moved %d entries", len(m.selected))
	m.clearSelection()
}

func (m Model) startCommit() (tea.Model, tea.Cmd) {
	if m.working {
		return m, nil
	}
	m.mode = modeList
	m.working = true
	m.setStatus("Renaming…", false)
	sess := m.sess
	return m, func() tea.Msg {
		report, err := sess.Commit(context.Background())
		return commitDoneMsg{report: report, err: err}
	}
}

func (m *Model) reportCommit(report *dcommit.Report, err error) {
	switch {
	case errors.Is(err, dcommit.ErrNoChanges):
		m.setStatus("Order already matches the filenames", false)
	case report == nil && err != nil:
		m.setStatus("Commit failed: "+err.Error(), true)
	case err != nil:
		m.setStatus(report.Summary()+"; journal not written: "+err.Error(), true)
	default:
		m.setStatus(report.Summary(), !report.OK())
	}
}

func (m Model) updatePreview(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "c", "enter":
		return m.startCommit()
	case "esc", "p", "q":
		m.mode = modeList
	}
	return m, nil
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		if m.mode == modeQuit {
			m.quitting = true
			return m, tea.Quit
		}
		m.mode = modeList
		m.working = true
		m.setStatus("Restoring…", false)
		sess := m.sess
		return m, func() tea.Msg {
			report, err := sess.Restore(context.Background())
			return restoreDoneMsg{report: report, err: err}
		}
	case "n", "N", "esc":
		m.mode = modeList
	}
	return m, nil
}

// updateDialog handles updates when the delete confirmation dialog is shown
func (m Model) updateDialog(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeList
		m.dialogInput = ""
		m.dialogError = ""

	case "enter":
		if m.dialogInput != m.dialogCode {
			m.dialogError = "Incorrect code. Try again."
			m.dialogInput = ""
			break
		}
		n := len(m.selected)
		if err := m.sess.Delete(m.selected); err != nil {
			m.setStatus("Delete failed: "+err.Error(), true)
		} else {
			m.setStatus(fmt.Sprintf("Deleted %d file(s)", n), false)
		}
		m.mode = modeList
		m.dialogInput = ""
		m.dialogError = ""
		m.clearSelection()
		m.refresh()

	case "backspace":
		if len(m.dialogInput) > 0 {
			m.dialogInput = m.dialogInput[:len(m.dialogInput)-1]
		}

	default:
		if len(msg.String()) == 1 && len(m.dialogInput) < len(m.dialogCode) {
			ch := msg.String()[0]
			if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
				m.dialogInput += msg.String()
			}
		}
	}
	return m, nil
}

func (m *Model) refresh() {
	m.entries = m.sess.Entries()
	m.clampCursor()
}

func (m *Model) clearSelection() {
	m.selected = dset.Selection{}
	m.anchor = -1
}

func (m *Model) setStatus(s string, failed bool) {
	m.status, m.failed = s, failed
}

func (m Model) current() (dset.ID, bool) {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return "", false
	}
	return m.entries[m.cursor].ID, true
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.entries) {
		m.cursor = len(m.entries) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}

	rows := m.rows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
}

func (m Model) rows() int {
	return max(m.height-chrome, 1)
}

// View renders the UI
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	switch m.mode {
	case modeDelete:
		return m.renderDialog()
	case modePreview:
		return m.renderPreview()
	}

	var b strings.Builder
	title := fmt.Sprintf("dskOrder: %s", m.sess.Dir())
	if m.sess.Dirty() {
		title += " (modified)"
	}
	b.WriteString(titleStyle.Render(truncate(title, m.width-4)) + "\n")
	b.WriteString(helpStyle.Render("[space=select v=range m=move here M=move to end d=delete p=preview c=commit u=undo q=quit]") + "\n\n")

	seqWidth := utils.Digits(len(m.entries))
	nameWidth := m.width - seqWidth - 12
	end := min(m.offset+m.rows(), len(m.entries))
	for i := m.offset; i < end; i++ {
		e := m.entries[i]
		mark := "[ ]"
		style := normalFileStyle
		if m.selected.Has(e.ID) {
			mark = "[x]"
			style = markedFileStyle
		}
		line := fmt.Sprintf("%s %s %s", mark, utils.PadSeq(i+1, seqWidth), truncate(e.CurrentName, nameWidth))
		if i == m.cursor {
			style = style.Inherit(cursorStyle)
		}
		b.WriteString(style.Render(line) + "\n")
	}

	b.WriteString("\n")
	switch m.mode {
	case modeQuit:
		b.WriteString(statusStyle.Render(quitQuestion(len(m.sess.Stranded()))))
	case modeRestore:
		b.WriteString(statusStyle.Render("Restore original filenames from the latest journal? (y/n)"))
	default:
		if m.failed {
			b.WriteString(errorStyle.Render(m.status))
		} else {
			b.WriteString(statusStyle.Render(m.status))
		}
		if len(m.selected) > 0 {
			b.WriteString(helpStyle.Render(fmt.Sprintf("  %d selected", len(m.selected))))
		}
	}

	return borderStyle.Render(b.String())
}

func (m Model) renderPreview() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Preview") + "\n")
	b.WriteString(helpStyle.Render("[c=commit esc=back]") + "\n\n")

	limit := min(len(m.preview), m.rows())
	for _, line := range m.preview[:limit] {
		b.WriteString(normalFileStyle.Render(truncate(line, m.width-6)) + "\n")
	}
	if rest := len(m.preview) - limit; rest > 0 {
		b.WriteString(helpStyle.Render(fmt.Sprintf("… and %d more", rest)) + "\n")
	}
	return borderStyle.Render(b.String())
}

// renderDialog renders the delete confirmation dialog
func (m Model) renderDialog() string {
	var b strings.Builder

	dialogStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(lipgloss.Color("196")).
		Padding(1, 2).
		Width(60)

	b.WriteString(fmt.Sprintf("Type the confirmation code below to delete %d file(s):\n\n", len(m.selected)))
	b.WriteString(statusStyle.Render(m.dialogCode))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Code: %s\n", m.dialogInput))

	if m.dialogError != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.dialogError))
	}

	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("[enter=confirm, esc=cancel]"))

	return lipgloss.Place(
		m.width, m.height,
		lipgloss.Center, lipgloss.Center,
		dialogStyle.Render(b.String()),
	)
}

// truncate shortens s to w terminal cells.
func truncate(s string, w int) string {
	if w < 1 {
		return ""
	}
	return runewidth.Truncate(s, w, "…")
}

// GenConfirmationCode generates a random alphanumeric confirmation code
// user will need to type to confirm the deletion of files.
func GenConfirmationCode() string {

	const kAlnum = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// #nosec G404 -- used intentionally. Not being used for crypto just UX.
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	length := r.Intn(4) + 5 // Random length between 5 and 8
	code := make([]byte, length)

	for i := range code {
		code[i] = kAlnum[r.Intn(len(kAlnum))]
	}

	return string(code)

}

func quitQuestion(stranded int) string {
	if stranded > 0 {
		return fmt.Sprintf("%d files wait in a staging directory; press u to restore them. Quit anyway? (y/n)", stranded)
	}
	return "The new order is not saved. Quit anyway? (y/n)"
}
