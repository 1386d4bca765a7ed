package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/steveyegge/gasgauge/internal/ledger"
	"github.com/steveyegge/gasgauge/internal/style"
)

var (
	historyJSON     bool
	historyToday    bool
	historyWeek     bool
	historyProvider string
)

var historyCmd = &cobra.Command{
	Use:     "history",
	GroupID: GroupData,
	Short:   "Show recorded quota history from the usage ledger",
	Long: `Summarize past probe results from ~/.gasgauge/usage.jsonl.

Every successful probe is appended to the ledger, so history works
across gg runs and machines sharing a home directory.

Examples:
  gg history                 # Everything on record
  gg history --today         # Today's samples
  gg history --week          # Last 7 days
  gg history -p claude       # One provider
  gg history --json          # Output as JSON`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON")
	historyCmd.Flags().BoolVar(&historyToday, "today", false, "Only today's entries")
	historyCmd.Flags().BoolVar(&historyWeek, "week", false, "Only the last 7 days")
	historyCmd.Flags().StringVarP(&historyProvider, "provider", "p", "", "Only one provider")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	led := ledger.New(cfg.LedgerPath)
	entries, err := led.Read()
	if err != nil {
		return fmt.Errorf("reading ledger: %w", err)
	}

	now := time.Now()
	var period string
	switch {
	case historyToday:
		entries = ledger.Since(entries, startOfDay(now))
		period = "today"
	case historyWeek:
		entries = ledger.Since(entries, now.AddDate(0, 0, -7))
		period = "this week"
	}

	byProvider := ledger.ByProvider(entries)
	if historyProvider != "" {
		only, ok := byProvider[historyProvider]
		if !ok {
			only = nil
		}
		byProvider = map[string][]ledger.Entry{historyProvider: only}
	}

	ids := make([]string, 0, len(byProvider))
	for id := range byProvider {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	summaries := make([]ledger.Summary, 0, len(ids))
	for _, id := range ids {
		if len(byProvider[id]) == 0 {
			continue
		}
		summaries = append(summaries, ledger.Summarize(byProvider[id]))
	}

	if historyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	return outputHistoryHuman(summaries, period)
}

// startOfDay is midnight in t's own location, not UTC midnight.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func outputHistoryHuman(summaries []ledger.Summary, period string) error {
	if len(summaries) == 0 {
		fmt.Println(style.Dim.Render("No usage history recorded yet. Run gg status first."))
		return nil
	}

	periodStr := ""
	if period != "" {
		periodStr = fmt.Sprintf(" (%s)", period)
	}
	fmt.Printf("\n%s%s\n\n", style.Bold.Render("Usage History"), periodStr)

	fmt.Printf("%-12s %8s %10s %10s %10s %10s\n",
		"Provider", "Samples", "Latest", "Weekly", "Low mark", "Cost")
	fmt.Println(strings.Repeat("─", 66))

	for _, s := range summaries {
		weekly := "—"
		if s.HasWeekly {
			weekly = fmt.Sprintf("%.0f%%", s.LatestWeekly)
		}
		cost := "—"
		if s.TotalCostUSD > 0 {
			cost = fmt.Sprintf("$%.2f", s.TotalCostUSD)
		}
		fmt.Printf("%-12s %8d %10s %10s %10s %10s\n",
			s.ProviderID,
			s.Samples,
			fmt.Sprintf("%.0f%%", s.LatestSession),
			weekly,
			fmt.Sprintf("%.0f%%", s.MinSessionPct),
			cost)
	}
	fmt.Println()
	return nil
}
