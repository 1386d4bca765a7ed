package quota

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ParseRules carries the provider-specific phrasing the parser anchors
// on. The parsing machinery itself is provider-agnostic; adapters inject
// their CLI's labels and error markers.
type ParseRules struct {
	ProviderID string

	// TrustMarkers are folder-trust prompt phrases. Their presence
	// (without the session label) means the CLI is waiting for the user
	// to trust the working directory, not reporting usage.
	TrustMarkers []string

	// TrustPathRe extracts the folder path from the trust prompt body.
	TrustPathRe *regexp.Regexp

	// ExpiredMarkers and AuthMarkers signal a dead login session vs. a
	// CLI that was never authenticated. Expiry is checked first; its
	// phrasing tends to be the more specific of the two.
	ExpiredMarkers []string
	AuthMarkers    []string

	// SessionLabel anchors the required session quota. WeeklyLabel and
	// ModelLabels anchor the optional ones; ModelLabels maps a model
	// name to its label line.
	SessionLabel string
	WeeklyLabel  string
	ModelLabels  map[string]string

	// WindowLines bounds how many lines after a label are scanned for
	// the percentage and reset phrase. Zero means the default.
	WindowLines int
}

const defaultWindowLines = 6

// Extraction patterns shared by all providers.
var (
	percentRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%\s*(used|left|remaining)`)
	resetRe   = regexp.MustCompile(`(?i)resets?\s+(.+?)(?:\s{2,}|$)`)
	emailRe   = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	orgRe     = regexp.MustCompile(`(?im)org(?:anization)?:\s*(\S[^\n]*?)\s*$`)
	loginRe   = regexp.MustCompile(`(?im)login method:\s*(\S[^\n]*?)\s*$`)
	costRe    = regexp.MustCompile(`\$(\d+(?:\.\d+)?)`)
)

// Parser turns rendered CLI output into a usage snapshot or a typed
// probe error. Detection precedes extraction: an error screen must never
// be mis-read as zero usage.
type Parser struct {
	rules ParseRules
	now   func() time.Time
}

// NewParser builds a Parser for one provider's phrasing.
func NewParser(rules ParseRules) *Parser {
	if rules.WindowLines <= 0 {
		rules.WindowLines = defaultWindowLines
	}
	return &Parser{rules: rules, now: time.Now}
}

// Parse classifies and extracts one rendered probe capture.
func (p *Parser) Parse(rendered string) (*UsageSnapshot, error) {
	lower := strings.ToLower(rendered)
	hasSession := p.rules.SessionLabel != "" &&
		strings.Contains(lower, strings.ToLower(p.rules.SessionLabel))

	// A trust prompt suppresses all usage output, so the session label
	// being present means the prompt text is stale scrollback.
	if !hasSession {
		for _, marker := range p.rules.TrustMarkers {
			if strings.Contains(lower, strings.ToLower(marker)) {
				return nil, &ProbeError{Kind: ErrFolderTrust, Path: p.trustPath(rendered)}
			}
		}
	}

	for _, marker := range p.rules.ExpiredMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return nil, &ProbeError{Kind: ErrSessionExpired}
		}
	}
	for _, marker := range p.rules.AuthMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return nil, &ProbeError{Kind: ErrAuthRequired, Reason: strings.TrimSpace(marker)}
		}
	}

	lines := strings.Split(rendered, "\n")
	now := p.now()

	session, ok := p.findQuota(lines, p.rules.SessionLabel, KindSession, "", now)
	if !ok {
		// Garbled or partial output must not turn into a zero-quota
		// snapshot.
		return nil, NewProbeError(ErrParseFailed, "session quota not found in output")
	}

	snap := &UsageSnapshot{
		ID:         uuid.NewString(),
		ProviderID: p.rules.ProviderID,
		Quotas:     []Quota{session},
		CapturedAt: now,
	}

	if q, ok := p.findQuota(lines, p.rules.WeeklyLabel, KindWeekly, "", now); ok {
		snap.Quotas = append(snap.Quotas, q)
	}
	for model, label := range p.rules.ModelLabels {
		if q, ok := p.findQuota(lines, label, KindModel, model, now); ok {
			snap.Quotas = append(snap.Quotas, q)
		}
	}

	snap.Email = emailRe.FindString(rendered)
	if m := orgRe.FindStringSubmatch(rendered); m != nil {
		snap.Org = strings.TrimSpace(m[1])
	}
	if m := loginRe.FindStringSubmatch(rendered); m != nil {
		snap.LoginMethod = strings.TrimSpace(m[1])
	}
	if m := costRe.FindStringSubmatch(rendered); m != nil {
		snap.CostUSD = parseFloat(m[1])
		snap.HasCost = true
	}

	return snap, nil
}

func (p *Parser) trustPath(rendered string) string {
	if p.rules.TrustPathRe == nil {
		return ""
	}
	if m := p.rules.TrustPathRe.FindStringSubmatch(rendered); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// findQuota locates the label line and scans a bounded window of the
// following lines for a percentage and reset phrase. Scanning the whole
// document instead would let one section's bar bleed into another's.
func (p *Parser) findQuota(lines []string, label string, kind QuotaKind, model string, now time.Time) (Quota, bool) {
	if label == "" {
		return Quota{}, false
	}
	needle := strings.ToLower(label)
	for i, line := range lines {
		if !strings.Contains(strings.ToLower(line), needle) {
			continue
		}
		end := i + 1 + p.rules.WindowLines
		if end > len(lines) {
			end = len(lines)
		}
		window := lines[i:end]

		pct, found := findPercent(window)
		if !found {
			return Quota{}, false
		}
		q := NewQuota(kind, pct)
		q.Model = model
		if phrase, ok := findResetPhrase(window); ok {
			q.ResetText = phrase
			if at, ok := ParseResetPhrase(phrase, now); ok {
				q.ResetsAt = at
			}
		}
		return q, true
	}
	return Quota{}, false
}

func findPercent(window []string) (float64, bool) {
	for _, line := range window {
		m := percentRe.FindStringSubmatch(strings.ToLower(line))
		if m == nil {
			continue
		}
		val := parseFloat(m[1])
		if m[2] == "used" {
			val = 100 - val
		}
		return val, true
	}
	return 0, false
}

func findResetPhrase(window []string) (string, bool) {
	for _, line := range window {
		if m := resetRe.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
