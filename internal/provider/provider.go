// Package provider defines the uniform probing contract for AI coding
// CLIs (Claude Code, Codex, etc.) and the registry the monitor draws
// from. Each adapter hides its CLI's invocation mechanics (which
// command to send, which ready marker to wait for, which prompts to
// auto-answer) behind the same Probe interface.
package provider

import (
	"context"

	"github.com/steveyegge/gasgauge/internal/quota"
)

// Probe is implemented once per provider.
type Probe interface {
	// ID is the stable provider identifier ("claude", "codex").
	ID() string

	// DisplayName is the human-facing provider name.
	DisplayName() string

	// Available reports whether the provider's CLI is installed.
	Available() bool

	// Probe drives the CLI and returns a usage snapshot. Failures are
	// *quota.ProbeError values so callers can branch on the kind.
	Probe(ctx context.Context) (*quota.UsageSnapshot, error)
}

// Stopper is implemented by probes that hold a long-lived CLI session
// open between probes. The monitor stops them on shutdown.
type Stopper interface {
	Stop()
}
