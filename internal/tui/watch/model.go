// Package watch is a terminal monitor for recent webhook deliveries.
package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/forgehook/forgehook/internal/store"
)

const (
	pollInterval   = 2 * time.Second
	deliveryLimit  = 100
	digestColWidth = 12
)

// DeliverySource supplies the rows the monitor renders.
type DeliverySource interface {
	RecentDeliveries(ctx context.Context, limit int) ([]store.Delivery, error)
}

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	source DeliverySource

	table  table.Model
	width  int
	height int

	lastPoll  time.Time
	lastError string

	titleStyle  lipgloss.Style
	statusStyle lipgloss.Style
	errorStyle  lipgloss.Style
}

type (
	tickMsg       time.Time
	deliveriesMsg []store.Delivery
	pollErrMsg    struct{ err error }
)

// New creates a new watch TUI model.
func New(source DeliverySource) *Model {
	columns := []table.Column{
		{Title: "Time", Width: 19},
		{Title: "Event", Width: 12},
		{Title: "Installation", Width: 24},
		{Title: "Outcome", Width: 20},
		{Title: "Status", Width: 6},
		{Title: "Digest", Width: digestColWidth},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(20),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))
	t.SetStyles(styles)

	return &Model{
		source:      source,
		table:       t,
		titleStyle:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1),
		statusStyle: lipgloss.NewStyle().Faint(true).Padding(0, 1),
		errorStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Padding(0, 1),
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.pollDeliveries(),
		tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) }),
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.height > 6 {
			m.table.SetHeight(m.height - 4)
		}

	case tickMsg:
		return m, tea.Batch(
			m.pollDeliveries(),
			tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) }),
		)

	case deliveriesMsg:
		m.lastPoll = time.Now()
		m.lastError = ""
		m.table.SetRows(deliveryRows(msg))

	case pollErrMsg:
		m.lastError = msg.err.Error()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) View() string {
	title := m.titleStyle.Render("forgehook deliveries")

	status := m.statusStyle.Render(fmt.Sprintf("last poll %s · q to quit",
		m.lastPoll.Format("15:04:05")))
	if m.lastError != "" {
		status = m.errorStyle.Render("poll failed: " + m.lastError)
	}

	return lipgloss.JoinVertical(lipgloss.Left, title, m.table.View(), status)
}

func (m *Model) pollDeliveries() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), pollInterval)
		defer cancel()
		deliveries, err := m.source.RecentDeliveries(ctx, deliveryLimit)
		if err != nil {
			return pollErrMsg{err: err}
		}
		return deliveriesMsg(deliveries)
	}
}

func deliveryRows(deliveries []store.Delivery) []table.Row {
	rows := make([]table.Row, 0, len(deliveries))
	for _, d := range deliveries {
		digest := d.Digest
		if len(digest) > digestColWidth {
			digest = digest[:digestColWidth]
		}
		rows = append(rows, table.Row{
			d.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			d.Event,
			d.InstallationExternalID,
			d.Outcome,
			fmt.Sprintf("%d", d.Status),
			digest,
		})
	}
	return rows
}

// Run starts the monitor and blocks until the user quits.
func Run(source DeliverySource) error {
	_, err := tea.NewProgram(New(source), tea.WithAltScreen()).Run()
	return err
}
