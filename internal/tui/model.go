package tui

import (
	"context"
	"fmt"
	"image/color"
	"strings"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/ycnlabs/prospect/internal/app"
	"github.com/ycnlabs/prospect/internal/auth"
	"github.com/ycnlabs/prospect/internal/domain"
)

// Service drives the board. Mutations apply optimistically; the board
// repaints through BoardChanged notifications.
type Service interface {
	Board() *app.Board
	RefreshLeads(context.Context) error
	MoveLead(context.Context, string, domain.Column) error
	CreateLead(context.Context, string, domain.Rating) (domain.Lead, error)
	DeleteLead(context.Context, string) error
}

// Authenticator exposes the credential provider surface the UI needs.
type Authenticator interface {
	SignIn(context.Context) (auth.Account, error)
	SignOut(context.Context) error
	CurrentAccount() (auth.Account, bool)
}

// inputMode represents a selectable mode.
type inputMode int

// modeNone and related constants define package defaults.
const (
	modeNone inputMode = iota
	modeAddLead
	modeConfirmDelete
	modeSignIn
)

// Model is the board UI state.
type Model struct {
	svc   Service
	authn Authenticator

	ready  bool
	width  int
	height int
	err    error

	status string

	help help.Model
	keys keyMap

	boardFields BoardFieldConfig

	columns        []app.ColumnView
	selectedColumn int
	selectedLead   int

	mode      inputMode
	nameInput textinput.Model

	deviceCode  *auth.DeviceCode
	account     *auth.Account
	signingIn   bool
	markdown    markdownRenderer
	deleteID    string
	deleteName  string
	confirmKeep int
}

// BoardChanged signals that the shared board mutated outside the update
// loop. The program forwards it through Program.Send from the service's
// change hook.
type BoardChanged struct{}

// refreshDoneMsg carries message data through update handling.
type refreshDoneMsg struct {
	err error
}

// moveSettledMsg reports the outcome of one optimistic move.
type moveSettledMsg struct {
	id  string
	err error
}

// createDoneMsg carries the server's record for a new lead.
type createDoneMsg struct {
	lead domain.Lead
	err  error
}

// deleteSettledMsg reports the outcome of one optimistic delete.
type deleteSettledMsg struct {
	id  string
	err error
}

// deviceCodeMsg carries sign-in instructions from the credential provider.
type deviceCodeMsg struct {
	code auth.DeviceCode
}

// signInDoneMsg carries the interactive sign-in outcome.
type signInDoneMsg struct {
	account auth.Account
	err     error
}

// signOutDoneMsg carries the sign-out outcome.
type signOutDoneMsg struct {
	err error
}

// NewModel constructs a new value for this package.
func NewModel(svc Service, authn Authenticator, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	nameInput := textinput.New()
	nameInput.Prompt = "name: "
	nameInput.Placeholder = "prospect name"
	nameInput.CharLimit = 120
	m := Model{
		svc:         svc,
		authn:       authn,
		status:      "loading...",
		help:        h,
		keys:        newKeyMap(),
		boardFields: DefaultBoardFieldConfig(),
		nameInput:   nameInput,
		confirmKeep: 1,
	}
	if account, ok := authn.CurrentAccount(); ok {
		m.account = &account
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

// ProgramPrompter adapts a running program into the credential provider's
// device-code prompter. Wire it after tea.NewProgram so the interactive
// fallback can surface instructions mid-session.
type ProgramPrompter struct {
	Send func(tea.Msg)
}

// PromptDeviceCode forwards sign-in instructions into the update loop.
func (p ProgramPrompter) PromptDeviceCode(_ context.Context, code auth.DeviceCode) error {
	if p.Send != nil {
		p.Send(deviceCodeMsg{code: code})
	}
	return nil
}

// Init handles init.
func (m Model) Init() tea.Cmd {
	if m.account == nil {
		return nil
	}
	return m.refreshCmd()
}

// Update updates state for the requested operation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case BoardChanged:
		m.reloadColumns()
		return m, nil

	case refreshDoneMsg:
		if msg.err != nil {
			m.status = statusForError("refresh failed", msg.err)
			return m, nil
		}
		m.reloadColumns()
		m.status = "ready"
		return m, nil

	case moveSettledMsg:
		if msg.err != nil {
			m.status = statusForError("move reverted", msg.err)
			return m, nil
		}
		m.status = "ready"
		return m, nil

	case createDoneMsg:
		if msg.err != nil {
			m.status = statusForError("create failed", msg.err)
			return m, nil
		}
		m.reloadColumns()
		m.focusLead(msg.lead.ID)
		m.status = fmt.Sprintf("created %q", msg.lead.Name)
		return m, nil

	case deleteSettledMsg:
		if msg.err != nil {
			m.status = statusForError("delete reverted", msg.err)
			return m, nil
		}
		m.status = "lead deleted"
		return m, nil

	case deviceCodeMsg:
		code := msg.code
		m.deviceCode = &code
		m.mode = modeSignIn
		return m, nil

	case signInDoneMsg:
		m.signingIn = false
		m.deviceCode = nil
		if m.mode == modeSignIn {
			m.mode = modeNone
		}
		if msg.err != nil {
			m.status = statusForError("sign-in failed", msg.err)
			return m, nil
		}
		account := msg.account
		m.account = &account
		m.status = "signed in as " + account.Username
		return m, m.refreshCmd()

	case signOutDoneMsg:
		m.account = nil
		m.columns = nil
		m.selectedColumn = 0
		m.selectedLead = 0
		if msg.err != nil {
			m.status = statusForError("sign-out incomplete", msg.err)
			return m, nil
		}
		m.status = "signed out"
		return m, nil

	case tea.KeyPressMsg:
		if m.mode != modeNone {
			return m.handleInputModeKey(msg)
		}
		return m.handleNormalModeKey(msg)

	default:
		return m, nil
	}
}

// reloadColumns re-reads the shared board into the view.
func (m *Model) reloadColumns() {
	m.columns = m.svc.Board().Columns()
	m.clampSelection()
}

// clampSelection keeps the cursor on a real lead after board changes.
func (m *Model) clampSelection() {
	if len(m.columns) == 0 {
		m.selectedColumn = 0
		m.selectedLead = 0
		return
	}
	m.selectedColumn = clamp(m.selectedColumn, 0, len(m.columns)-1)
	leads := m.columns[m.selectedColumn].Leads
	if len(leads) == 0 {
		m.selectedLead = 0
		return
	}
	m.selectedLead = clamp(m.selectedLead, 0, len(leads)-1)
}

// focusLead moves the cursor to the given lead wherever it landed.
func (m *Model) focusLead(id string) {
	for colIdx, column := range m.columns {
		for leadIdx, lead := range column.Leads {
			if lead.ID == id {
				m.selectedColumn = colIdx
				m.selectedLead = leadIdx
				return
			}
		}
	}
}

// selectedLeadRecord returns the lead under the cursor.
func (m Model) selectedLeadRecord() (domain.Lead, bool) {
	if m.selectedColumn < 0 || m.selectedColumn >= len(m.columns) {
		return domain.Lead{}, false
	}
	leads := m.columns[m.selectedColumn].Leads
	if m.selectedLead < 0 || m.selectedLead >= len(leads) {
		return domain.Lead{}, false
	}
	return leads[m.selectedLead], true
}

func (m Model) handleNormalModeKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.refresh):
		m.status = "refreshing..."
		return m, m.refreshCmd()

	case key.Matches(msg, m.keys.signIn):
		if m.account != nil || m.signingIn {
			return m, nil
		}
		m.signingIn = true
		m.status = "starting sign-in..."
		return m, m.signInCmd()

	case key.Matches(msg, m.keys.signOut):
		if m.account == nil {
			return m, nil
		}
		m.status = "signing out..."
		return m, m.signOutCmd()

	case key.Matches(msg, m.keys.columnLeft):
		if m.selectedColumn > 0 {
			m.selectedColumn--
			m.clampSelection()
		}
		return m, nil

	case key.Matches(msg, m.keys.columnRight):
		if m.selectedColumn < len(m.columns)-1 {
			m.selectedColumn++
			m.clampSelection()
		}
		return m, nil

	case key.Matches(msg, m.keys.leadUp):
		if m.selectedLead > 0 {
			m.selectedLead--
		}
		return m, nil

	case key.Matches(msg, m.keys.leadDown):
		if m.selectedColumn < len(m.columns) && m.selectedLead < len(m.columns[m.selectedColumn].Leads)-1 {
			m.selectedLead++
		}
		return m, nil

	case key.Matches(msg, m.keys.moveLeadLeft):
		return m.moveSelected(-1)

	case key.Matches(msg, m.keys.moveLeadRight):
		return m.moveSelected(1)

	case key.Matches(msg, m.keys.addLead):
		if m.account == nil {
			m.status = "sign in first"
			return m, nil
		}
		m.mode = modeAddLead
		m.nameInput.SetValue("")
		return m, m.nameInput.Focus()

	case key.Matches(msg, m.keys.deleteLead):
		lead, ok := m.selectedLeadRecord()
		if !ok {
			return m, nil
		}
		m.mode = modeConfirmDelete
		m.deleteID = lead.ID
		m.deleteName = lead.Name
		m.confirmKeep = 1
		return m, nil

	default:
		return m, nil
	}
}

func (m Model) handleInputModeKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeAddLead:
		switch msg.String() {
		case "esc":
			m.mode = modeNone
			m.nameInput.Blur()
			return m, nil
		case "enter":
			name := strings.TrimSpace(m.nameInput.Value())
			m.mode = modeNone
			m.nameInput.Blur()
			if name == "" {
				m.status = "lead name required"
				return m, nil
			}
			rating, err := m.currentColumn().Rating()
			if err != nil {
				rating = domain.RatingCold
			}
			m.status = fmt.Sprintf("creating %q...", name)
			return m, m.createCmd(name, rating)
		}
		var cmd tea.Cmd
		m.nameInput, cmd = m.nameInput.Update(msg)
		return m, cmd

	case modeConfirmDelete:
		switch msg.String() {
		case "esc", "n":
			m.mode = modeNone
			m.deleteID = ""
			return m, nil
		case "left", "h", "right", "l", "tab":
			m.confirmKeep = 1 - m.confirmKeep
			return m, nil
		case "y":
			return m.submitDelete()
		case "enter":
			if m.confirmKeep == 0 {
				return m.submitDelete()
			}
			m.mode = modeNone
			m.deleteID = ""
			return m, nil
		}
		return m, nil

	case modeSignIn:
		switch msg.String() {
		case "esc", "q":
			// Dismiss the panel; polling continues in the background.
			m.mode = modeNone
			return m, nil
		}
		return m, nil

	default:
		m.mode = modeNone
		return m, nil
	}
}

func (m Model) submitDelete() (tea.Model, tea.Cmd) {
	id := m.deleteID
	name := m.deleteName
	m.mode = modeNone
	m.deleteID = ""
	m.status = fmt.Sprintf("deleting %q...", name)
	return m, m.deleteCmd(id)
}

// moveSelected shifts the lead under the cursor one column over.
func (m Model) moveSelected(delta int) (tea.Model, tea.Cmd) {
	lead, ok := m.selectedLeadRecord()
	if !ok {
		return m, nil
	}
	columns := domain.Columns()
	current := 0
	for idx, column := range columns {
		if column == lead.Column() {
			current = idx
			break
		}
	}
	target := current + delta
	if target < 0 || target >= len(columns) {
		return m, nil
	}
	m.status = fmt.Sprintf("moving %q to %s...", lead.Name, columns[target].Label())
	return m, m.moveCmd(lead.ID, columns[target])
}

// currentColumn returns the column under the cursor.
func (m Model) currentColumn() domain.Column {
	columns := domain.Columns()
	if m.selectedColumn < 0 || m.selectedColumn >= len(columns) {
		return domain.ColumnCold
	}
	return columns[m.selectedColumn]
}

func (m Model) refreshCmd() tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		return refreshDoneMsg{err: svc.RefreshLeads(context.Background())}
	}
}

func (m Model) moveCmd(id string, target domain.Column) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		return moveSettledMsg{id: id, err: svc.MoveLead(context.Background(), id, target)}
	}
}

func (m Model) createCmd(name string, rating domain.Rating) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		lead, err := svc.CreateLead(context.Background(), name, rating)
		return createDoneMsg{lead: lead, err: err}
	}
}

func (m Model) deleteCmd(id string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		return deleteSettledMsg{id: id, err: svc.DeleteLead(context.Background(), id)}
	}
}

func (m Model) signInCmd() tea.Cmd {
	authn := m.authn
	return func() tea.Msg {
		account, err := authn.SignIn(context.Background())
		return signInDoneMsg{account: account, err: err}
	}
}

func (m Model) signOutCmd() tea.Cmd {
	authn := m.authn
	return func() tea.Msg {
		return signOutDoneMsg{err: authn.SignOut(context.Background())}
	}
}

// statusForError keeps auth failures readable in the status line.
func statusForError(prefix string, err error) string {
	if err == nil {
		return prefix
	}
	if strings.Contains(err.Error(), app.ErrAuthRequired.Error()) {
		return prefix + ": sign-in required (press s)"
	}
	return prefix + ": " + err.Error()
}

// View handles view.
func (m Model) View() tea.View {
	if m.err != nil {
		v := tea.NewView("error: " + m.err.Error() + "\n\npress q to quit\n")
		v.AltScreen = true
		return v
	}
	if !m.ready {
		v := tea.NewView("loading...")
		v.AltScreen = true
		return v
	}

	accent := lipgloss.Color("62")
	muted := lipgloss.Color("241")
	dim := lipgloss.Color("239")
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	statusStyle := lipgloss.NewStyle().Foreground(dim)

	if m.account == nil {
		sections := []string{
			titleStyle.Render("prospect"),
			"",
			"Not signed in.",
			"Press s to sign in with a device code.",
			"Press q to quit.",
		}
		if strings.TrimSpace(m.status) != "" && m.status != "ready" {
			sections = append(sections, "", statusStyle.Render(m.status))
		}
		content := strings.Join(sections, "\n")
		if m.mode == modeSignIn && m.deviceCode != nil {
			content = overlayOnContent(content, m.renderSignInPanel(accent, muted), max(1, m.width), max(1, m.height))
		}
		v := tea.NewView(content)
		v.AltScreen = true
		return v
	}

	header := titleStyle.Render("prospect") + "  " + m.account.Username
	if m.account.DisplayName != "" {
		header += statusStyle.Render("  (" + m.account.DisplayName + ")")
	}

	boardWidth := m.width
	colWidth := m.columnWidthFor(boardWidth)
	baseColStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dim).
		Padding(1, 2).
		MarginRight(1).
		Width(colWidth)
	selColStyle := baseColStyle.BorderForeground(accent)
	colTitle := lipgloss.NewStyle().Bold(true).Foreground(accent)
	selectedLeadStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	leadSubStyle := lipgloss.NewStyle().Foreground(muted)

	columnViews := make([]string, 0, len(m.columns))
	for colIdx, column := range m.columns {
		title := column.Column.Label()
		if m.boardFields.ShowCounts {
			title += fmt.Sprintf(" (%d)", len(column.Leads))
		}
		lines := []string{colTitle.Render(title), ""}
		if len(column.Leads) == 0 {
			lines = append(lines, leadSubStyle.Render("empty"))
		}
		for leadIdx, lead := range column.Leads {
			name := truncate(lead.Name, max(4, colWidth-6))
			if colIdx == m.selectedColumn && leadIdx == m.selectedLead {
				lines = append(lines, selectedLeadStyle.Render("> "+name))
			} else {
				lines = append(lines, "  "+name)
			}
			if m.boardFields.ShowTimestamps && !lead.ModifiedAt.IsZero() {
				lines = append(lines, leadSubStyle.Render("  "+lead.ModifiedAt.Format("2006-01-02 15:04")))
			}
		}
		style := baseColStyle
		if colIdx == m.selectedColumn {
			style = selColStyle
		}
		columnViews = append(columnViews, style.Render(strings.Join(lines, "\n")))
	}
	board := lipgloss.JoinHorizontal(lipgloss.Top, columnViews...)

	helpBubble := m.help
	helpBubble.SetWidth(max(0, m.width-2))
	helpLine := lipgloss.NewStyle().
		Foreground(muted).
		BorderTop(true).
		BorderForeground(dim).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(helpBubble.View(m.keys))

	statusLine := statusStyle.Render(m.status)
	content := header + "\n\n" + board + "\n" + statusLine

	if m.height > 0 {
		helpHeight := lipgloss.Height(helpLine)
		content = fitLines(content, max(0, m.height-helpHeight))
	}
	fullContent := content + "\n" + helpLine

	if overlay := m.renderOverlay(accent, muted, dim); overlay != "" {
		overlayHeight := lipgloss.Height(fullContent)
		if m.height > 0 {
			overlayHeight = m.height
		}
		fullContent = overlayOnContent(fullContent, overlay, max(1, m.width), max(1, overlayHeight))
	}

	v := tea.NewView(fullContent)
	v.AltScreen = true
	return v
}

// renderOverlay renders the active modal, if any.
func (m Model) renderOverlay(accent, muted, dim color.Color) string {
	switch m.mode {
	case modeAddLead:
		panel := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(1, 2)
		title := lipgloss.NewStyle().Bold(true).Render("New lead in " + m.currentColumn().Label())
		hint := lipgloss.NewStyle().Foreground(muted).Render("enter save • esc cancel")
		return panel.Render(title + "\n\n" + m.nameInput.View() + "\n\n" + hint)

	case modeConfirmDelete:
		panel := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(1, 2)
		title := lipgloss.NewStyle().Bold(true).Render("Delete lead?")
		name := truncate(m.deleteName, 48)
		yes := " delete "
		no := " keep "
		chosen := lipgloss.NewStyle().Bold(true).Background(accent).Foreground(lipgloss.Color("252"))
		plain := lipgloss.NewStyle().Foreground(muted)
		if m.confirmKeep == 0 {
			yes = chosen.Render(yes)
			no = plain.Render(no)
		} else {
			yes = plain.Render(yes)
			no = chosen.Render(no)
		}
		hint := lipgloss.NewStyle().Foreground(muted).Render("y delete • n/esc keep")
		return panel.Render(title + "\n\n" + name + "\n\n" + yes + "  " + no + "\n\n" + hint)

	case modeSignIn:
		if m.deviceCode == nil {
			return ""
		}
		return m.renderSignInPanel(accent, muted)
	}
	return ""
}

// renderSignInPanel shows the device-code instructions as rendered markdown.
func (m Model) renderSignInPanel(accent, muted color.Color) string {
	code := m.deviceCode
	body := code.Message
	if strings.TrimSpace(body) == "" {
		body = fmt.Sprintf("To sign in, open **%s** and enter the code **%s**.", code.VerificationURI, code.UserCode)
	}
	markdown := "# Sign in\n\n" + body + "\n\n" +
		fmt.Sprintf("Code: `%s`", code.UserCode)
	rendered := (&m.markdown).render(markdown, max(24, m.width/2))
	hint := lipgloss.NewStyle().Foreground(muted).Render("waiting for verification... • esc hide")
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(1, 2).
		Render(rendered + "\n\n" + hint)
}

// columnWidthFor splits the board width across the three columns.
func (m Model) columnWidthFor(boardWidth int) int {
	count := len(m.columns)
	if count == 0 {
		count = len(domain.Columns())
	}
	width := boardWidth/count - 3
	if width < 16 {
		width = 16
	}
	return width
}

func clamp(v, minV, maxV int) int {
	if maxV < minV {
		return minV
	}
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

// max returns the larger of the provided values.
func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// fitLines fits lines.
func fitLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > maxLines:
		if maxLines == 1 {
			lines = []string{"…"}
		} else {
			lines = append(lines[:maxLines-1], "…")
		}
	case len(lines) < maxLines:
		padding := make([]string, maxLines-len(lines))
		lines = append(lines, padding...)
	}
	return strings.Join(lines, "\n")
}

// overlayOnContent overlays on content.
func overlayOnContent(base, overlay string, width, height int) string {
	if width <= 0 || height <= 0 {
		if strings.TrimSpace(overlay) == "" {
			return base
		}
		return overlay + "\n\n" + base
	}

	base = fitLines(base, height)
	canvas := lipgloss.NewCanvas(width, height)
	baseLayer := lipgloss.NewLayer(base).X(0).Y(0).Z(0)
	centeredOverlay := lipgloss.Place(
		width,
		height,
		lipgloss.Center,
		lipgloss.Center,
		overlay,
	)
	overlayLayer := lipgloss.NewLayer(centeredOverlay).X(0).Y(0).Z(10)

	canvas.Compose(baseLayer)
	canvas.Compose(overlayLayer)
	return canvas.Render()
}

// truncate truncates the requested operation.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	if max <= 1 {
		return string(rs[:max])
	}
	return string(rs[:max-1]) + "…"
}
