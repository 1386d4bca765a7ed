package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/steveyegge/gasgauge/internal/monitor"
	"github.com/steveyegge/gasgauge/internal/quota"
	"github.com/steveyegge/gasgauge/internal/style"
	"golang.org/x/term"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: GroupMonitor,
	Short:   "Continuously monitor quotas in the terminal",
	Long: `Watch quota levels live. Providers are re-probed on a fixed
interval; press q to quit.

Examples:
  gg watch                   # Default interval from config
  gg watch --interval 2m     # Probe every two minutes`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Refresh interval (default from config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("watch needs an interactive terminal; use `gg status` or `gg serve` instead")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	interval := watchInterval
	if interval <= 0 {
		interval = cfg.RefreshInterval()
	}

	logger := newLogger()
	mon := newMonitor(cfg, logger)
	defer mon.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	events := mon.Start(ctx, interval)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = style.Info

	m := watchModel{
		mon:      mon,
		events:   events,
		spin:     sp,
		interval: interval,
		states:   mon.States(),
	}

	_, err = tea.NewProgram(m).Run()
	return err
}

type refreshedMsg monitor.Event

type streamClosedMsg struct{}

type watchModel struct {
	mon      *monitor.Monitor
	events   <-chan monitor.Event
	spin     spinner.Model
	interval time.Duration

	states      []monitor.State
	lastRefresh time.Time
	quitting    bool
}

func waitForEvent(events <-chan monitor.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return refreshedMsg(ev)
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, waitForEvent(m.events))
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			// Manual refresh outside the polling cadence.
			go m.mon.RefreshAll(context.Background())
			m.states = m.mon.States()
			return m, nil
		}
	case refreshedMsg:
		m.states = m.mon.States()
		m.lastRefresh = msg.At
		return m, waitForEvent(m.events)
	case streamClosedMsg:
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		// Keep the spinner in step with probe activity.
		m.states = m.mon.States()
		return m, cmd
	}
	return m, nil
}

func (m watchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n  " + style.Bold.Render("Gas Gauge") + "\n\n")

	for _, st := range m.states {
		b.WriteString(m.providerView(st))
	}

	b.WriteString("\n  " + style.Dim.Render(m.footer()) + "\n")
	return b.String()
}

func (m watchModel) providerView(st monitor.State) string {
	var b strings.Builder

	name := st.DisplayName
	if st.Syncing {
		name += " " + m.spin.View()
	}
	b.WriteString("  " + style.Bold.Render(name) + "\n")

	if st.Err != nil {
		b.WriteString("    " + style.Error.Render(probeErrorLine(st.Err)) + "\n\n")
		return b.String()
	}
	if st.Snapshot == nil {
		b.WriteString("    " + style.Dim.Render("waiting for first probe") + "\n\n")
		return b.String()
	}

	now := time.Now()
	for _, q := range st.Snapshot.Quotas {
		line := fmt.Sprintf("    %-20s %s %3.0f%%", quotaLabel(q), gaugeBar(q), q.PercentRemaining)
		if !q.ResetsAt.IsZero() {
			line += style.Dim.Render("  resets in " + quota.FormatUntil(q.ResetsAt, now))
		} else if q.ResetText != "" {
			line += style.Dim.Render("  " + q.ResetText)
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")
	return b.String()
}

// gaugeBar renders a 20-cell meter colored by the quota's status.
func gaugeBar(q quota.Quota) string {
	const width = 20
	filled := int(q.PercentRemaining / 100 * width)
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return statusStyle(q.Status()).Render(bar)
}

func (m watchModel) footer() string {
	parts := []string{fmt.Sprintf("every %s", m.interval)}
	if !m.lastRefresh.IsZero() {
		parts = append(parts, "updated "+m.lastRefresh.Format("15:04:05"))
	}
	parts = append(parts, "q quit", "r refresh")
	return strings.Join(parts, "  ·  ")
}
