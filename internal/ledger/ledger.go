// Package ledger persists usage snapshots as append-only JSON lines
// under ~/.gasgauge, so quota history survives across runs.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/steveyegge/gasgauge/internal/quota"
)

const fileName = "usage.jsonl"

// Entry is one recorded probe result. It flattens the snapshot's
// session and weekly quotas into top-level fields so history queries
// don't have to re-walk the quota list.
type Entry struct {
	ID             string    `json:"id"`
	ProviderID     string    `json:"provider"`
	CapturedAt     time.Time `json:"captured_at"`
	SessionPercent float64   `json:"session_pct"`
	WeeklyPercent  float64   `json:"weekly_pct,omitempty"`
	HasWeekly      bool      `json:"has_weekly,omitempty"`
	Status         string    `json:"status"`
	CostUSD        float64   `json:"cost_usd,omitempty"`
	HasCost        bool      `json:"has_cost,omitempty"`
}

// Ledger reads and appends usage entries at a fixed path.
type Ledger struct {
	path string
}

// DefaultPath returns ~/.gasgauge/usage.jsonl.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".gasgauge", fileName)
}

// New opens a ledger at the given path. An empty path uses DefaultPath.
func New(path string) *Ledger {
	if path == "" {
		path = DefaultPath()
	}
	return &Ledger{path: path}
}

// Path returns the backing file path.
func (l *Ledger) Path() string { return l.path }

// Record appends one snapshot to the ledger.
func (l *Ledger) Record(snap *quota.UsageSnapshot) error {
	entry := Entry{
		ID:         snap.ID,
		ProviderID: snap.ProviderID,
		CapturedAt: snap.CapturedAt,
		Status:     string(snap.OverallStatus()),
		CostUSD:    snap.CostUSD,
		HasCost:    snap.HasCost,
	}
	if q, ok := snap.Quota(quota.KindSession); ok {
		entry.SessionPercent = q.PercentRemaining
	}
	if q, ok := snap.Quota(quota.KindWeekly); ok {
		entry.WeeklyPercent = q.PercentRemaining
		entry.HasWeekly = true
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating ledger directory: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer file.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling entry: %w", err)
	}

	_, err = file.Write(append(data, '\n'))
	return err
}

// Read returns every entry in the ledger, oldest first. Malformed
// lines are skipped. A missing ledger file yields an empty slice.
func (l *Ledger) Read() ([]Entry, error) {
	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

// Since filters entries captured at or after the cutoff.
func Since(entries []Entry, cutoff time.Time) []Entry {
	var out []Entry
	for _, e := range entries {
		if !e.CapturedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// ByProvider groups entries by provider ID, preserving order within
// each group.
func ByProvider(entries []Entry) map[string][]Entry {
	out := make(map[string][]Entry)
	for _, e := range entries {
		out[e.ProviderID] = append(out[e.ProviderID], e)
	}
	return out
}

// Summary aggregates a provider's entries for display.
type Summary struct {
	ProviderID      string  `json:"provider"`
	Samples         int     `json:"samples"`
	MinSessionPct   float64 `json:"min_session_pct"`
	LatestSession   float64 `json:"latest_session_pct"`
	LatestWeekly    float64 `json:"latest_weekly_pct,omitempty"`
	HasWeekly       bool    `json:"has_weekly,omitempty"`
	TotalCostUSD    float64 `json:"total_cost_usd,omitempty"`
	LatestTimestamp string  `json:"latest_at,omitempty"`
}

// Summarize folds one provider's entries into a Summary. Entries must
// belong to a single provider and be in ledger (oldest-first) order.
func Summarize(entries []Entry) Summary {
	var s Summary
	if len(entries) == 0 {
		return s
	}
	s.ProviderID = entries[0].ProviderID
	s.Samples = len(entries)
	s.MinSessionPct = entries[0].SessionPercent
	for _, e := range entries {
		if e.SessionPercent < s.MinSessionPct {
			s.MinSessionPct = e.SessionPercent
		}
		if e.HasCost {
			s.TotalCostUSD += e.CostUSD
		}
	}
	last := entries[len(entries)-1]
	s.LatestSession = last.SessionPercent
	s.LatestWeekly = last.WeeklyPercent
	s.HasWeekly = last.HasWeekly
	s.LatestTimestamp = last.CapturedAt.Format(time.RFC3339)
	return s
}
