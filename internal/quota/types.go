// Package quota defines the usage-quota data model shared across the
// probing pipeline: quota measurements, usage snapshots, and the tagged
// probe error type callers branch on.
package quota

import (
	"errors"
	"fmt"
	"time"
)

// QuotaKind identifies which limit window a quota measures.
type QuotaKind string

const (
	KindSession   QuotaKind = "session"
	KindWeekly    QuotaKind = "weekly"
	KindModel     QuotaKind = "model"
	KindTimeLimit QuotaKind = "time_limit"
)

// Status classifies how much headroom a quota (or snapshot) has left.
type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusHealthy  Status = "healthy"
	StatusLow      Status = "low"
	StatusCritical Status = "critical"
	StatusDepleted Status = "depleted"
)

// Thresholds for deriving Status from percent remaining.
const (
	lowThresholdPct      = 25.0
	criticalThresholdPct = 10.0
)

// severity orders statuses from best to worst for overall-status folding.
func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 1
	case StatusLow:
		return 2
	case StatusCritical:
		return 3
	case StatusDepleted:
		return 4
	default:
		return 0
	}
}

// Quota is a single usage-limit measurement. PercentRemaining is always
// clamped to [0,100] at construction time.
type Quota struct {
	Kind             QuotaKind `json:"kind"`
	Model            string    `json:"model,omitempty"`
	PercentRemaining float64   `json:"percent_remaining"`
	ResetsAt         time.Time `json:"resets_at,omitzero"`
	ResetText        string    `json:"reset_text,omitempty"`
}

// NewQuota builds a Quota, clamping out-of-range percentages.
func NewQuota(kind QuotaKind, percentRemaining float64) Quota {
	return Quota{Kind: kind, PercentRemaining: ClampPercent(percentRemaining)}
}

// ClampPercent forces a raw percentage into [0,100].
func ClampPercent(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Status derives the health classification for this quota.
func (q Quota) Status() Status {
	switch {
	case q.PercentRemaining <= 0:
		return StatusDepleted
	case q.PercentRemaining <= criticalThresholdPct:
		return StatusCritical
	case q.PercentRemaining <= lowThresholdPct:
		return StatusLow
	default:
		return StatusHealthy
	}
}

// UsageSnapshot is the result of one successful probe cycle for a provider.
type UsageSnapshot struct {
	ID          string    `json:"id"`
	ProviderID  string    `json:"provider_id"`
	Quotas      []Quota   `json:"quotas"`
	CapturedAt  time.Time `json:"captured_at"`
	Email       string    `json:"email,omitempty"`
	Org         string    `json:"org,omitempty"`
	LoginMethod string    `json:"login_method,omitempty"`
	CostUSD     float64   `json:"cost_usd,omitempty"`
	HasCost     bool      `json:"has_cost,omitempty"`
}

// OverallStatus folds the snapshot's quotas into the worst status present.
// It is derived on demand, never stored, so it cannot drift from the quotas.
func (s *UsageSnapshot) OverallStatus() Status {
	worst := StatusUnknown
	for _, q := range s.Quotas {
		if st := q.Status(); st.severity() > worst.severity() {
			worst = st
		}
	}
	return worst
}

// Quota returns the first quota of the given kind, if present.
func (s *UsageSnapshot) Quota(kind QuotaKind) (Quota, bool) {
	for _, q := range s.Quotas {
		if q.Kind == kind {
			return q, true
		}
	}
	return Quota{}, false
}

// ErrorKind tags a ProbeError so callers can branch on the failure class
// instead of matching message strings.
type ErrorKind string

const (
	ErrCLINotFound     ErrorKind = "cli_not_found"
	ErrAuthRequired    ErrorKind = "auth_required"
	ErrFolderTrust     ErrorKind = "folder_trust_required"
	ErrSessionExpired  ErrorKind = "session_expired"
	ErrTimeout         ErrorKind = "timeout"
	ErrParseFailed     ErrorKind = "parse_failed"
	ErrExecutionFailed ErrorKind = "execution_failed"
)

// ProbeError is the tagged failure type produced by the probing pipeline.
// Path carries the folder for ErrFolderTrust; Reason carries detail for
// ErrParseFailed and ErrExecutionFailed.
type ProbeError struct {
	Kind   ErrorKind
	Path   string
	Reason string
	Err    error
}

func (e *ProbeError) Error() string {
	switch e.Kind {
	case ErrCLINotFound:
		return "CLI binary not found" + suffix(e.Reason)
	case ErrAuthRequired:
		return "authentication required" + suffix(e.Reason)
	case ErrFolderTrust:
		return fmt.Sprintf("folder trust required: %s", e.Path)
	case ErrSessionExpired:
		return "session expired, reauthentication needed"
	case ErrTimeout:
		return "probe timed out" + suffix(e.Reason)
	case ErrParseFailed:
		return "could not parse CLI output" + suffix(e.Reason)
	default:
		return "probe failed" + suffix(e.Reason)
	}
}

func (e *ProbeError) Unwrap() error { return e.Err }

func suffix(reason string) string {
	if reason == "" {
		return ""
	}
	return ": " + reason
}

// NewProbeError builds a ProbeError with a free-form reason.
func NewProbeError(kind ErrorKind, reason string) *ProbeError {
	return &ProbeError{Kind: kind, Reason: reason}
}

// WrapProbeError builds a ProbeError wrapping an underlying cause.
func WrapProbeError(kind ErrorKind, err error) *ProbeError {
	if err == nil {
		return &ProbeError{Kind: kind}
	}
	return &ProbeError{Kind: kind, Reason: err.Error(), Err: err}
}

// AsProbeError extracts a ProbeError from an error chain.
func AsProbeError(err error) (*ProbeError, bool) {
	var pe *ProbeError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// KindOf reports the ErrorKind of err, or ErrExecutionFailed for errors
// that did not originate in the pipeline.
func KindOf(err error) ErrorKind {
	if pe, ok := AsProbeError(err); ok {
		return pe.Kind
	}
	return ErrExecutionFailed
}
