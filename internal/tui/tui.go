// Package tui is a terminal client for playing one game against a server.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/lox/settlersforbots/internal/game"
	"github.com/lox/settlersforbots/internal/server"
)

// Submitter submits actions for the game a Model shows.
type Submitter interface {
	Submit(ctx context.Context, action *game.Action, expected int) (server.GameView, error)
}

// Model is the Bubble Tea model for one game.
type Model struct {
	ctx    context.Context
	games  Submitter
	feed   <-chan server.GameView
	logger *log.Logger

	// UI components
	logViewport viewport.Model
	actionInput textinput.Model

	view        server.GameView
	hasView     bool
	gameLog     []string
	status      string
	pending     bool
	quitting    bool
	focusedPane int // 0 = log, 1 = input

	width       int
	height      int
	initialized bool
}

// ViewMsg carries a state returned by a submission.
type ViewMsg struct{ View server.GameView }

type feedMsg struct{ view server.GameView }

type feedClosedMsg struct{}

type submitErrMsg struct{ err error }

// NewModel creates a model showing initial and following feed.
func NewModel(ctx context.Context, games Submitter, initial server.GameView, feed <-chan server.GameView, logger *log.Logger) *Model {
	vp := viewport.New(10, 5)
	vp.SetContent("")

	ti := textinput.New()
	ti.Placeholder = "Number of an action, or Enter to let a bot move"
	ti.Focus()
	ti.CharLimit = 8
	ti.Width = 60
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	ti.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA"))
	ti.Prompt = "> "

	m := &Model{
		ctx:         ctx,
		games:       games,
		feed:        feed,
		logger:      logger.WithPrefix("tui"),
		logViewport: vp,
		actionInput: ti,
		focusedPane: 1,
	}
	m.apply(initial)
	return m
}

// Init starts the cursor blink and the state feed.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listen())
}

func (m *Model) listen() tea.Cmd {
	if m.feed == nil {
		return nil
	}
	return func() tea.Msg {
		v, ok := <-m.feed
		if !ok {
			return feedClosedMsg{}
		}
		return feedMsg{view: v}
	}
}

func (m *Model) submit(action *game.Action, expected int) tea.Cmd {
	return func() tea.Msg {
		v, err := m.games.Submit(m.ctx, action, expected)
		if err != nil {
			return submitErrMsg{err: err}
		}
		return ViewMsg{View: v}
	}
}

// apply shows v unless a newer state is already on screen. The feed and
// submission responses race, so views may arrive out of order.
func (m *Model) apply(v server.GameView) {
	if m.hasView && v.StateIndex <= m.view.StateIndex {
		return
	}
	if v.LastAction != nil {
		m.addLogEntry(fmt.Sprintf("#%d %s", v.StateIndex, v.LastAction))
	} else if !m.hasView {
		m.addLogEntry(fmt.Sprintf("Game %s at state #%d", v.GameID, v.StateIndex))
	}
	if v.WinningColor != "" {
		m.addLogEntry(SuccessStyle.Render(fmt.Sprintf("%s wins", v.WinningColor)))
	}
	m.view = v
	m.hasView = true
}

// Update handles messages in the TUI
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case feedMsg:
		m.apply(msg.view)
		return m, m.listen()

	case feedClosedMsg:
		m.status = ErrorStyle.Render("State feed disconnected")
		return m, nil

	case ViewMsg:
		m.pending = false
		m.status = ""
		m.apply(msg.View)
		return m, nil

	case submitErrMsg:
		m.pending = false
		var apiErr *APIError
		if errors.As(msg.err, &apiErr) && apiErr.Code == "conflict" {
			m.status = ErrorStyle.Render("The game moved on, pick again")
		} else {
			m.status = ErrorStyle.Render("Rejected: " + msg.err.Error())
		}
		m.logger.Debug("Submission failed", "error", msg.err)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Sequence(tea.ClearScreen, tea.Quit)
		case "tab":
			if m.focusedPane == 0 {
				m.focusedPane = 1
				m.actionInput.Focus()
			} else {
				m.focusedPane = 0
				m.actionInput.Blur()
			}
		case "enter":
			if m.focusedPane == 1 {
				cmd := m.processInput(strings.TrimSpace(m.actionInput.Value()))
				m.actionInput.SetValue("")
				if cmd != nil {
					return m, cmd
				}
			}
		case "up", "k":
			if m.focusedPane == 0 {
				m.logViewport.ScrollUp(1)
			}
		case "down", "j":
			if m.focusedPane == 0 {
				m.logViewport.ScrollDown(1)
			}
		case "home", "g":
			if m.focusedPane == 0 {
				m.logViewport.GotoTop()
			}
		case "end", "G":
			if m.focusedPane == 0 {
				m.logViewport.GotoBottom()
			}
		}
	}

	var cmd tea.Cmd
	if m.focusedPane == 1 {
		m.actionInput, cmd = m.actionInput.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.logViewport, cmd = m.logViewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// processInput turns a line of input into a submission.
func (m *Model) processInput(input string) tea.Cmd {
	switch strings.ToLower(input) {
	case "q", "quit":
		m.quitting = true
		return tea.Sequence(tea.ClearScreen, tea.Quit)
	}
	if m.pending || !m.hasView {
		return nil
	}
	if m.view.WinningColor != "" {
		m.status = InfoStyle.Render("The game is over")
		return nil
	}
	action, err := parseChoice(input, m.view.CurrentPlayableActions)
	if err != nil {
		m.status = ErrorStyle.Render(err.Error())
		return nil
	}
	m.pending = true
	m.status = InfoStyle.Render("Submitting...")
	return m.submit(action, m.view.StateIndex)
}

// parseChoice maps a 1-based action number to an action. Empty input is a
// bot tick.
func parseChoice(input string, actions []game.Action) (*game.Action, error) {
	if input == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(input)
	if err != nil {
		return nil, fmt.Errorf("%q is not an action number", input)
	}
	if n < 1 || n > len(actions) {
		return nil, fmt.Errorf("pick an action between 1 and %d", len(actions))
	}
	a := actions[n-1]
	return &a, nil
}

// View renders the TUI
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	actionContent := m.renderActionPane()
	actionHeight := lipgloss.Height(actionContent)
	actionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(max(m.width-2, 1))
	if m.focusedPane == 1 {
		actionStyle = actionStyle.BorderForeground(lipgloss.Color("#04B575"))
	}
	actionPane := actionStyle.Render(actionContent)

	sidebarContent := m.renderSidebarPane()
	sidebarWidth := max(lipgloss.Width(sidebarContent), 28)
	paneHeight := max(m.height-actionHeight-4, 1)
	sidebarPane := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(sidebarWidth).
		Height(paneHeight).
		Render(sidebarContent)

	logWidth := max(m.width-sidebarWidth-4, 1)
	m.logViewport.Width = logWidth
	m.logViewport.Height = paneHeight
	m.logViewport.SetContent(strings.Join(m.gameLog, "\n"))
	if !m.initialized && logWidth > 1 && paneHeight > 1 {
		m.logViewport.GotoBottom()
		m.initialized = true
	}

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(logWidth).
		Height(paneHeight)
	if m.focusedPane == 0 {
		logStyle = logStyle.BorderForeground(lipgloss.Color("#04B575"))
	}
	logPane := logStyle.Render(m.logViewport.View())

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, logPane, sidebarPane)
	return lipgloss.JoinVertical(lipgloss.Top, topRow, actionPane)
}

// renderSidebarPane lists every seat with its points and hand.
func (m *Model) renderSidebarPane() string {
	if !m.hasView || m.view.State == nil {
		return InfoStyle.Render("Waiting for state...")
	}
	s := m.view.State

	var b strings.Builder
	b.WriteString(HeaderStyle.Render(fmt.Sprintf(" State #%d ", m.view.StateIndex)))
	b.WriteString("\n\n")
	for _, p := range s.Players {
		marker := "  "
		if p.Color == m.view.CurrentColor {
			marker = "> "
		}
		kind := ""
		if m.isBot(p.Color) {
			kind = InfoStyle.Render(" (bot)")
		}
		fmt.Fprintf(&b, "%s%s%s  %d VP\n", marker, colorName(p.Color), kind, s.PublicVictoryPoints(p.Color))
		fmt.Fprintf(&b, "    %s\n", p.Resources)
		if p.Knights > 0 || p.PlayedKnights > 0 {
			fmt.Fprintf(&b, "    knights %d, played %d\n", p.Knights+p.NewKnights, p.PlayedKnights)
		}
	}
	b.WriteString("\n")
	b.WriteString(InfoStyle.Render(fmt.Sprintf("Robber on site %d", s.Robber)))
	b.WriteString("\n")
	b.WriteString(InfoStyle.Render(fmt.Sprintf("Development cards left: %d", m.view.DevCardsRemaining)))
	if s.Trade != nil {
		b.WriteString("\n\n")
		b.WriteString(ActionsStyle.Render(fmt.Sprintf("Trade by %s: %s", s.Colors[s.Trade.Initiator], s.Trade.Offer)))
	}
	return b.String()
}

func (m *Model) isBot(c game.Color) bool {
	for _, b := range m.view.BotColors {
		if b == c {
			return true
		}
	}
	return false
}

// renderActionPane shows the prompt, the numbered playable actions and the
// input line.
func (m *Model) renderActionPane() string {
	var b strings.Builder
	if m.hasView {
		if m.view.WinningColor != "" {
			b.WriteString(SuccessStyle.Render(fmt.Sprintf("Game over: %s wins", colorName(m.view.WinningColor))))
		} else {
			b.WriteString(PromptStyle.Render(fmt.Sprintf("%s to act: %s", m.view.CurrentColor, m.view.CurrentPrompt)))
			if m.isBot(m.view.CurrentColor) {
				b.WriteString(InfoStyle.Render("  (press Enter to let the bot move)"))
			}
		}
		b.WriteString("\n")
		b.WriteString(m.renderAvailableActions())
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(m.status)
		b.WriteString("\n")
	}
	b.WriteString(m.actionInput.View())
	b.WriteString("\n")
	if m.focusedPane == 0 {
		b.WriteString(InfoStyle.Render("Log focused: ↑↓ scroll, Home/End, Tab to input"))
	} else {
		b.WriteString(InfoStyle.Render("Tab to scroll log • Enter to submit • q or Ctrl+C to quit"))
	}
	return b.String()
}

func (m *Model) renderAvailableActions() string {
	if m.view.WinningColor != "" {
		return ""
	}
	actions := make([]string, 0, len(m.view.CurrentPlayableActions))
	for i, a := range m.view.CurrentPlayableActions {
		actions = append(actions, fmt.Sprintf("[%d] %s", i+1, a))
	}
	if len(actions) == 0 {
		return ErrorStyle.Render("[no actions available]")
	}
	return ActionsStyle.Render("Actions: ") + strings.Join(actions, "  ")
}

// addLogEntry appends to the game log and keeps the newest line in view.
func (m *Model) addLogEntry(entry string) {
	m.gameLog = append(m.gameLog, entry)
	m.logViewport.SetContent(strings.Join(m.gameLog, "\n"))
	if m.logViewport.Height > 0 && m.logViewport.Width > 0 {
		m.logViewport.GotoBottom()
	}
}

// Log returns the lines of the game log.
func (m *Model) Log() []string {
	out := make([]string, len(m.gameLog))
	copy(out, m.gameLog)
	return out
}

// Run plays gameID on the server at baseURL until the user quits or ctx
// ends.
func Run(ctx context.Context, baseURL, gameID string, logger *log.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := NewClient(baseURL, gameID, nil, logger)
	initial, err := client.State(ctx)
	if err != nil {
		return fmt.Errorf("load game %s: %w", gameID, err)
	}
	feed, err := client.Watch(ctx)
	if err != nil {
		return err
	}

	p := tea.NewProgram(NewModel(ctx, client, initial, feed, logger), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
