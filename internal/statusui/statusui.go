// Package statusui implements the interactive node status dashboard.
package statusui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/berth-sh/berth/internal/config"
	"github.com/berth-sh/berth/internal/daemon"
	"github.com/berth-sh/berth/internal/db"
	"github.com/berth-sh/berth/internal/models"
)

const (
	defaultRefreshInterval = 1 * time.Second
	defaultLogLines        = 100

	minWindowWidth  = 60
	minWindowHeight = 16
)

// Config controls dashboard behavior.
type Config struct {
	AppConfig       *config.Config
	RefreshInterval time.Duration
	LogLines        int
}

// Run starts the dashboard and blocks until the user quits.
func Run(database *db.DB, cfg Config) error {
	if cfg.AppConfig == nil {
		cfg.AppConfig = config.DefaultConfig()
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}
	if cfg.LogLines <= 0 {
		cfg.LogLines = defaultLogLines
	}

	model := newModel(database, cfg)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}

// nodeView is one registry row plus what the dashboard observed about
// the actual process.
type nodeView struct {
	Node  *models.Node
	Alive bool
	Init  bool
}

type refreshMsg struct {
	nodes    []nodeView
	selected string
	tail     []string
	err      error
}

type tickMsg struct{}

type model struct {
	db              *db.DB
	sup             *daemon.Supervisor
	refreshInterval time.Duration
	logLines        int

	width  int
	height int

	nodes       []nodeView
	selectedIdx int
	selectedID  string
	logTail     []string

	err      error
	quitting bool
}

func newModel(database *db.DB, cfg Config) model {
	return model{
		db:              database,
		sup:             daemon.NewSupervisor(cfg.AppConfig),
		refreshInterval: cfg.RefreshInterval,
		logLines:        cfg.LogLines,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(), m.tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, m.fetchCmd()
	case tickMsg:
		return m, tea.Batch(m.fetchCmd(), m.tickCmd())
	case refreshMsg:
		m.err = msg.err
		if msg.err == nil {
			m.nodes = msg.nodes
			m.clampSelection()
			if m.selectedID == msg.selected {
				m.logTail = msg.tail
			} else if m.selectedID != "" {
				// Selection moved between fetch and delivery.
				return m, m.fetchCmd()
			} else {
				m.logTail = nil
			}
		}
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "j", "down":
			m = m.moveSelection(1)
			return m, m.fetchCmd()
		case "k", "up":
			m = m.moveSelection(-1)
			return m, m.fetchCmd()
		case "g":
			m = m.selectIndex(0)
			return m, m.fetchCmd()
		case "G":
			m = m.selectIndex(len(m.nodes) - 1)
			return m, m.fetchCmd()
		case "r":
			return m, m.fetchCmd()
		}
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	width := m.effectiveWidth()
	height := m.effectiveHeight()

	header := m.renderHeader(width)
	footer := m.renderFooter(width)
	paneHeight := maxInt(6, height-4)

	listWidth := width * 2 / 5
	if listWidth < 30 {
		listWidth = 30
	}
	logWidth := maxInt(20, width-listWidth-1)

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderNodePane(listWidth, paneHeight),
		m.renderLogPane(logWidth, paneHeight),
	)

	parts := []string{header, body, footer}
	if m.err != nil {
		parts = append(parts, errorStyle.Render("Error: "+m.err.Error()))
	}
	return strings.Join(parts, "\n")
}

func (m model) fetchCmd() tea.Cmd {
	database := m.db
	sup := m.sup
	selectedID := m.selectedID
	logLines := m.logLines

	if selectedID == "" && len(m.nodes) > 0 && m.selectedIdx >= 0 && m.selectedIdx < len(m.nodes) {
		selectedID = m.nodes[m.selectedIdx].Node.ID
	}

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		nodeRepo := db.NewNodeRepository(database)
		nodes, err := nodeRepo.List(ctx)
		if err != nil {
			return refreshMsg{err: err}
		}

		views := make([]nodeView, 0, len(nodes))
		for _, node := range nodes {
			views = append(views, nodeView{
				Node:  node,
				Alive: sup.Alive(node),
				Init:  daemon.IsInitialized(node.RepoDir),
			})
		}

		var tail []string
		resolved := ""
		for _, view := range views {
			if view.Node.ID == selectedID {
				resolved = view.Node.ID
				tail = tailLines(sup.LogPath(view.Node), logLines)
				break
			}
		}
		if resolved == "" && len(views) > 0 {
			resolved = views[0].Node.ID
			tail = tailLines(sup.LogPath(views[0].Node), logLines)
		}

		return refreshMsg{nodes: views, selected: resolved, tail: tail}
	}
}

func (m model) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func tailLines(path string, n int) []string {
	content := daemon.TailLog(path, n)
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(content, "\n"), "\n")
}

func (m model) moveSelection(delta int) model {
	return m.selectIndex(m.selectedIdx + delta)
}

func (m model) selectIndex(idx int) model {
	if len(m.nodes) == 0 {
		m.selectedIdx = 0
		m.selectedID = ""
		return m
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= len(m.nodes) {
		idx = len(m.nodes) - 1
	}
	m.selectedIdx = idx
	m.selectedID = m.nodes[idx].Node.ID
	return m
}

// clampSelection keeps the cursor on the same node across refreshes,
// falling back to a valid index when the node is gone.
func (m *model) clampSelection() {
	if len(m.nodes) == 0 {
		m.selectedIdx = 0
		m.selectedID = ""
		return
	}

	if m.selectedID != "" {
		for i, view := range m.nodes {
			if view.Node.ID == m.selectedID {
				m.selectedIdx = i
				return
			}
		}
	}

	if m.selectedIdx >= len(m.nodes) {
		m.selectedIdx = len(m.nodes) - 1
	}
	if m.selectedIdx < 0 {
		m.selectedIdx = 0
	}
	m.selectedID = m.nodes[m.selectedIdx].Node.ID
}

func (m model) selectedNode() *nodeView {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.nodes) {
		return nil
	}
	return &m.nodes[m.selectedIdx]
}

func (m model) effectiveWidth() int {
	if m.width <= 0 {
		return 100
	}
	return maxInt(m.width, minWindowWidth)
}

func (m model) effectiveHeight() int {
	if m.height <= 0 {
		return 28
	}
	return maxInt(m.height, minWindowHeight)
}

func (m model) renderHeader(width int) string {
	running := 0
	for _, view := range m.nodes {
		if view.Node.State == models.NodeStateRunning {
			running++
		}
	}

	left := headerStyle.Render(fmt.Sprintf(" berth · %d node(s) · %d running", len(m.nodes), running))
	right := dimStyle.Render(time.Now().Format("15:04:05") + " ")
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m model) renderNodePane(width, height int) string {
	lines := make([]string, 0, height)
	lines = append(lines, dimStyle.Render(padLine("  NAME        STATE     PID     UPTIME", width)))

	now := time.Now()
	for i, view := range m.nodes {
		if len(lines) >= height {
			break
		}
		node := view.Node

		marker := "  "
		if i == m.selectedIdx {
			marker = "> "
		}

		pid := "-"
		if node.PID > 0 {
			pid = fmt.Sprintf("%d", node.PID)
		}
		uptime := "-"
		if up := node.Uptime(now); up > 0 {
			uptime = formatUptime(up)
		}

		state := string(node.State)
		if view.Node.IsRunning() && !view.Alive {
			state = "stale"
		}

		row := fmt.Sprintf("%s%-11s %-9s %-7s %s", marker, clip(node.Name, 11), state, pid, uptime)
		row = padLine(row, width)
		styled := stateStyle(node.State, view.Alive).Render(row)
		if i == m.selectedIdx {
			styled = selectedStyle.Render(row)
		}
		lines = append(lines, styled)
	}

	if len(m.nodes) == 0 {
		lines = append(lines, dimStyle.Render(padLine("  no nodes registered", width)))
	}

	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func (m model) renderLogPane(width, height int) string {
	lines := make([]string, 0, height)

	title := " log"
	if selected := m.selectedNode(); selected != nil {
		title = fmt.Sprintf(" log · %s", selected.Node.Name)
	}
	lines = append(lines, dimStyle.Render(padLine(title, width)))

	tail := m.logTail
	visible := height - 1
	if len(tail) > visible {
		tail = tail[len(tail)-visible:]
	}
	for _, line := range tail {
		if len(lines) >= height {
			break
		}
		lines = append(lines, padLine(" "+clip(line, width-2), width))
	}

	if len(m.logTail) == 0 {
		lines = append(lines, dimStyle.Render(padLine(" (no log output)", width)))
	}

	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func (m model) renderFooter(width int) string {
	return dimStyle.Render(padLine(" j/k move · g/G jump · r refresh · q quit", width))
}

func padLine(s string, width int) string {
	if lipgloss.Width(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-lipgloss.Width(s))
}

func clip(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if len(s) <= width {
		return s
	}
	if width <= 1 {
		return s[:width]
	}
	return s[:width-1] + "…"
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	if d >= 24*time.Hour {
		return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
	}
	if d >= time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	runningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	startingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	stoppedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	deadStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func stateStyle(state models.NodeState, alive bool) lipgloss.Style {
	switch state {
	case models.NodeStateRunning, models.NodeStateStarting:
		if !alive {
			return deadStyle
		}
		if state == models.NodeStateStarting {
			return startingStyle
		}
		return runningStyle
	case models.NodeStateError:
		return deadStyle
	default:
		return stoppedStyle
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
