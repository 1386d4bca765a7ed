// Package codex implements the usage probe for Codex.
//
// Codex starts fast, so each probe is a one-shot run: spawn the CLI,
// type /status, capture until the output settles, exit. Codex blocks on
// a cursor-position report during startup when it thinks a terminal is
// attached, so the run answers DSR queries with a fixed home-position
// reply.
package codex

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/steveyegge/gasgauge/internal/locate"
	"github.com/steveyegge/gasgauge/internal/pty"
	"github.com/steveyegge/gasgauge/internal/quota"
	"github.com/steveyegge/gasgauge/internal/term"
)

const (
	providerID  = "codex"
	displayName = "Codex"

	statusCommand = "/status"

	// DSR cursor-position query and the canned reply.
	cursorQuery = "\x1b[6n"
	cursorReply = "\x1b[1;1R"
)

var parseRules = quota.ParseRules{
	ProviderID: providerID,
	TrustMarkers: []string{
		"Allow Codex to work in this folder",
	},
	ExpiredMarkers: []string{
		"session expired",
		"token expired",
	},
	AuthMarkers: []string{
		"Sign in with ChatGPT",
		"Not signed in",
		"codex login",
	},
	SessionLabel: "5h limit",
	WeeklyLabel:  "Weekly limit",
}

// Options tunes the probe.
type Options struct {
	Binary      string // defaults to "codex"
	Args        []string
	WorkDir     string
	Timeout     time.Duration
	IdleWindow  time.Duration
	SettleDelay time.Duration
}

// Probe is the Codex adapter.
type Probe struct {
	opts   Options
	runner *pty.Runner
	finder *locate.Finder
	parser *quota.Parser
}

// New returns a Codex probe.
func New(opts Options, finder *locate.Finder, logger *log.Logger) *Probe {
	if opts.Binary == "" {
		opts.Binary = "codex"
	}
	if opts.SettleDelay <= 0 {
		// Codex paints its banner before it will accept slash input.
		opts.SettleDelay = 2500 * time.Millisecond
	}
	return &Probe{
		opts:   opts,
		runner: pty.NewRunner(finder, logger),
		finder: finder,
		parser: quota.NewParser(parseRules),
	}
}

func (p *Probe) ID() string          { return providerID }
func (p *Probe) DisplayName() string { return displayName }

// Available reports whether the codex binary can be located.
func (p *Probe) Available() bool {
	return p.finder.Available(p.opts.Binary)
}

// Probe runs codex once, types /status, and parses the rendered screen.
func (p *Probe) Probe(ctx context.Context) (*quota.UsageSnapshot, error) {
	res, err := p.runner.Run(ctx, p.opts.Binary, statusCommand, pty.RunOptions{
		Args:        p.opts.Args,
		WorkDir:     p.opts.WorkDir,
		Timeout:     p.opts.Timeout,
		IdleWindow:  p.opts.IdleWindow,
		SettleDelay: p.opts.SettleDelay,
		RawResponses: map[string]string{
			cursorQuery: cursorReply,
		},
		AutoResponses: map[string]string{
			"Press enter to continue": "\r",
			"Try the new model":       "\r",
		},
	})
	if err != nil && res.Output == "" {
		return nil, p.wrap(err)
	}
	if err != nil && !errors.Is(err, pty.ErrRunTimeout) {
		return nil, p.wrap(err)
	}
	// A timed-out run that still captured output is worth parsing; the
	// parser decides whether the capture is usable.

	screen := term.NewScreen(pty.TermRows, pty.TermCols)
	screen.Feed([]byte(res.Output))
	return p.parser.Parse(screen.Text())
}

func (p *Probe) wrap(err error) error {
	if _, ok := quota.AsProbeError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, locate.ErrNotFound):
		return quota.WrapProbeError(quota.ErrCLINotFound, err)
	case errors.Is(err, pty.ErrRunTimeout), errors.Is(err, context.DeadlineExceeded):
		return quota.WrapProbeError(quota.ErrTimeout, err)
	default:
		return quota.WrapProbeError(quota.ErrExecutionFailed, err)
	}
}
