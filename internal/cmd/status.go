package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/steveyegge/gasgauge/internal/monitor"
	"github.com/steveyegge/gasgauge/internal/quota"
	"github.com/steveyegge/gasgauge/internal/style"
)

var (
	statusJSON     bool
	statusProvider string
	statusTimeout  time.Duration
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: GroupMonitor,
	Short:   "Probe each provider once and show remaining quota",
	Long: `Check the current quota of every configured provider.

Each provider's CLI is driven through a pseudo-terminal to read the
usage report it shows interactively. Providers are probed in parallel;
one broken CLI never hides another's result.

Examples:
  gg status                  # All providers
  gg status -p claude        # Just Claude Code
  gg status --json           # Machine-readable output`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	statusCmd.Flags().StringVarP(&statusProvider, "provider", "p", "", "Probe a single provider")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 2*time.Minute, "Overall probe deadline")
}

// statusRow is the JSON output shape for one provider.
type statusRow struct {
	Provider  string          `json:"provider"`
	Name      string          `json:"name"`
	Status    quota.Status    `json:"status"`
	Quotas    []quota.Quota   `json:"quotas,omitempty"`
	Email     string          `json:"email,omitempty"`
	CostUSD   float64         `json:"cost_usd,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind quota.ErrorKind `json:"error_kind,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger()
	mon := newMonitor(cfg, logger)
	defer mon.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
	defer cancel()

	if statusProvider != "" {
		if !mon.Refresh(ctx, statusProvider) {
			return fmt.Errorf("unknown provider %q (have: %s)",
				statusProvider, strings.Join(mon.Providers(), ", "))
		}
	} else {
		mon.RefreshAll(ctx)
	}

	states := mon.States()
	if statusProvider != "" {
		states = filterStates(states, statusProvider)
	}

	if statusJSON {
		return outputStatusJSON(states)
	}
	return outputStatusHuman(states)
}

func filterStates(states []monitor.State, id string) []monitor.State {
	var out []monitor.State
	for _, st := range states {
		if st.ProviderID == id {
			out = append(out, st)
		}
	}
	return out
}

func outputStatusJSON(states []monitor.State) error {
	rows := make([]statusRow, 0, len(states))
	for _, st := range states {
		row := statusRow{
			Provider: st.ProviderID,
			Name:     st.DisplayName,
			Status:   st.Status,
		}
		if st.Snapshot != nil {
			row.Quotas = st.Snapshot.Quotas
			row.Email = st.Snapshot.Email
			if st.Snapshot.HasCost {
				row.CostUSD = st.Snapshot.CostUSD
			}
		}
		if st.Err != nil {
			row.Error = st.Err.Error()
			row.ErrorKind = quota.KindOf(st.Err)
		}
		rows = append(rows, row)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func outputStatusHuman(states []monitor.State) error {
	if len(states) == 0 {
		fmt.Println(style.Dim.Render("No providers configured"))
		return nil
	}

	fmt.Printf("\n%s\n\n", style.Bold.Render("Quota Status"))

	fmt.Printf("%-14s %-22s %10s %10s %-18s\n",
		"Provider", "Quota", "Left", "Status", "Resets")
	fmt.Println(strings.Repeat("─", 78))

	now := time.Now()
	for _, st := range states {
		if st.Err != nil {
			fmt.Printf("%-14s %s\n", st.DisplayName,
				style.Error.Render(probeErrorLine(st.Err)))
			continue
		}
		if st.Snapshot == nil {
			fmt.Printf("%-14s %s\n", st.DisplayName, style.Dim.Render("not probed"))
			continue
		}

		name := st.DisplayName
		for _, q := range st.Snapshot.Quotas {
			reset := q.ResetText
			if !q.ResetsAt.IsZero() {
				reset = "in " + quota.FormatUntil(q.ResetsAt, now)
			}
			qs := q.Status()
			fmt.Printf("%-14s %-22s %10s %10s %-18s\n",
				name,
				quotaLabel(q),
				fmt.Sprintf("%.0f%%", q.PercentRemaining),
				statusStyle(qs).Render(string(qs)),
				reset)
			name = "" // only print the provider on its first row
		}
		if st.Snapshot.HasCost {
			fmt.Printf("%-14s %s\n", "",
				style.Dim.Render(fmt.Sprintf("session cost $%.2f", st.Snapshot.CostUSD)))
		}
	}
	fmt.Println()
	return nil
}

func quotaLabel(q quota.Quota) string {
	switch q.Kind {
	case quota.KindSession:
		return "session"
	case quota.KindWeekly:
		return "weekly (all models)"
	case quota.KindModel:
		return "weekly (" + q.Model + ")"
	default:
		return string(q.Kind)
	}
}

// probeErrorLine renders a probe failure as a short actionable message.
func probeErrorLine(err error) string {
	switch quota.KindOf(err) {
	case quota.ErrCLINotFound:
		return "CLI not installed"
	case quota.ErrAuthRequired:
		return "not logged in"
	case quota.ErrSessionExpired:
		return "session expired, log in again"
	case quota.ErrFolderTrust:
		if pe, ok := quota.AsProbeError(err); ok && pe.Path != "" {
			return "waiting on folder trust: " + pe.Path
		}
		return "waiting on folder trust prompt"
	case quota.ErrTimeout:
		return "probe timed out"
	default:
		return err.Error()
	}
}
