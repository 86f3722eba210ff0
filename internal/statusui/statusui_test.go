package statusui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/berth-sh/berth/internal/config"
	"github.com/berth-sh/berth/internal/models"
)

func testModel(t *testing.T, names ...string) model {
	t.Helper()
	m := newModel(nil, Config{
		AppConfig:       config.DefaultConfig(),
		RefreshInterval: defaultRefreshInterval,
		LogLines:        defaultLogLines,
	})

	views := make([]nodeView, 0, len(names))
	for _, name := range names {
		views = append(views, nodeView{
			Node: &models.Node{
				ID:      "node-" + name,
				ShortID: "node-" + name,
				Name:    name,
				State:   models.NodeStateStopped,
			},
			Alive: false,
		})
	}
	m.nodes = views
	m.clampSelection()
	return m
}

func TestSelectIndexClampsToBounds(t *testing.T) {
	m := testModel(t, "a", "b", "c")

	m = m.selectIndex(10)
	require.Equal(t, 2, m.selectedIdx)
	require.Equal(t, "node-c", m.selectedID)

	m = m.selectIndex(-5)
	require.Equal(t, 0, m.selectedIdx)
	require.Equal(t, "node-a", m.selectedID)
}

func TestMoveSelection(t *testing.T) {
	m := testModel(t, "a", "b", "c")

	m = m.moveSelection(1)
	require.Equal(t, 1, m.selectedIdx)

	m = m.moveSelection(1)
	m = m.moveSelection(1)
	require.Equal(t, 2, m.selectedIdx, "selection should stop at the last node")

	m = m.moveSelection(-10)
	require.Equal(t, 0, m.selectedIdx)
}

func TestSelectionSurvivesReorder(t *testing.T) {
	m := testModel(t, "a", "b", "c")
	m = m.selectIndex(1)
	require.Equal(t, "node-b", m.selectedID)

	// Refresh delivers the same nodes in a different order; the cursor
	// must follow the node, not the index.
	reordered := []nodeView{m.nodes[2], m.nodes[0], m.nodes[1]}
	m.nodes = reordered
	m.clampSelection()

	require.Equal(t, 2, m.selectedIdx)
	require.Equal(t, "node-b", m.selectedID)
}

func TestClampSelectionAfterNodeRemoved(t *testing.T) {
	m := testModel(t, "a", "b")
	m = m.selectIndex(1)

	m.nodes = m.nodes[:1]
	m.clampSelection()

	require.Equal(t, 0, m.selectedIdx)
	require.Equal(t, "node-a", m.selectedID)
}

func TestClampSelectionEmptyRegistry(t *testing.T) {
	m := testModel(t, "a")
	m.nodes = nil
	m.clampSelection()

	require.Equal(t, 0, m.selectedIdx)
	require.Empty(t, m.selectedID)
}

func TestUpdateQuitKeys(t *testing.T) {
	m := testModel(t, "a")

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	require.True(t, updated.(model).quitting)

	m = testModel(t, "a")
	updated, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	require.True(t, updated.(model).quitting)
}

func TestUpdateRefreshMsgStoresNodes(t *testing.T) {
	m := newModel(nil, Config{AppConfig: config.DefaultConfig()})

	started := time.Now().Add(-2 * time.Minute).UTC()
	msg := refreshMsg{
		nodes: []nodeView{
			{
				Node: &models.Node{
					ID:        "node-1",
					Name:      "main",
					State:     models.NodeStateRunning,
					PID:       4242,
					StartedAt: &started,
				},
				Alive: true,
			},
		},
		selected: "node-1",
		tail:     []string{"Daemon is ready"},
	}

	updated, _ := m.Update(msg)
	got := updated.(model)

	require.Len(t, got.nodes, 1)
	require.Equal(t, "node-1", got.selectedID)
	require.Equal(t, []string{"Daemon is ready"}, got.logTail)
	require.NoError(t, got.err)
}

func TestViewRendersNodesAndLog(t *testing.T) {
	m := testModel(t, "main", "gateway")
	m.width = 100
	m.height = 30
	m.logTail = []string{"Initializing daemon...", "Daemon is ready"}

	view := m.View()
	require.Contains(t, view, "main")
	require.Contains(t, view, "gateway")
	require.Contains(t, view, "Daemon is ready")
	require.Contains(t, view, "q quit")
}

func TestViewMarksStaleNodes(t *testing.T) {
	m := testModel(t, "main")
	m.width = 100
	m.height = 30
	m.nodes[0].Node.State = models.NodeStateRunning
	m.nodes[0].Alive = false

	view := m.View()
	require.Contains(t, view, "stale")
}

func TestFormatUptime(t *testing.T) {
	require.Equal(t, "45s", formatUptime(45*time.Second))
	require.Equal(t, "1m30s", formatUptime(90*time.Second))
	require.Equal(t, "2h5m", formatUptime(2*time.Hour+5*time.Minute))
	require.Equal(t, "1d2h", formatUptime(26*time.Hour))
}

func TestClip(t *testing.T) {
	require.Equal(t, "abc", clip("abc", 10))
	require.Equal(t, "ab…", clip("abcdef", 3))
	require.Equal(t, "", clip("abc", 0))
}
