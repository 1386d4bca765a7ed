// Package claude implements the usage probe for Claude Code.
//
// Claude Code takes several seconds to boot, so the probe keeps one
// interactive session alive across refresh cycles and types /usage into
// it each time, rather than paying the startup cost per probe.
package claude

import (
	"context"
	"errors"
	"log"
	"regexp"
	"sync"
	"time"

	"github.com/steveyegge/gasgauge/internal/locate"
	"github.com/steveyegge/gasgauge/internal/pty"
	"github.com/steveyegge/gasgauge/internal/quota"
	"github.com/steveyegge/gasgauge/internal/term"
)

const (
	providerID  = "claude"
	displayName = "Claude Code"

	// readyMarker is the shortcut hint Claude Code prints under its
	// input box whenever it is idle.
	readyMarker = "? for shortcuts"

	usageCommand = "/usage"
)

var parseRules = quota.ParseRules{
	ProviderID: providerID,
	TrustMarkers: []string{
		"Do you trust the files in this folder",
		"trust the files in this workspace",
	},
	TrustPathRe: regexp.MustCompile(`(?m)^\s*([~/][^\r\n]+?)/?\s*$`),
	ExpiredMarkers: []string{
		"session expired",
		"OAuth token has expired",
	},
	AuthMarkers: []string{
		"Please run /login",
		"Invalid API key",
		"not logged in",
	},
	SessionLabel: "Current session",
	WeeklyLabel:  "Current week (all models)",
	ModelLabels: map[string]string{
		"Opus": "Current week (Opus)",
	},
}

// Options tunes the probe. Zero durations use the pty package defaults.
type Options struct {
	Binary         string // defaults to "claude"
	Args           []string
	WorkDir        string
	Timeout        time.Duration
	IdleWindow     time.Duration
	StartupTimeout time.Duration
}

// Probe is the Claude Code adapter.
type Probe struct {
	opts   Options
	finder *locate.Finder
	parser *quota.Parser
	logger *log.Logger

	mu   sync.Mutex
	sess *pty.PersistentSession
}

// New returns a Claude Code probe.
func New(opts Options, finder *locate.Finder, logger *log.Logger) *Probe {
	if opts.Binary == "" {
		opts.Binary = "claude"
	}
	return &Probe{
		opts:   opts,
		finder: finder,
		parser: quota.NewParser(parseRules),
		logger: logger,
	}
}

func (p *Probe) ID() string          { return providerID }
func (p *Probe) DisplayName() string { return displayName }

// Available reports whether the claude binary can be located.
func (p *Probe) Available() bool {
	return p.finder.Available(p.opts.Binary)
}

// Probe types /usage into the persistent session and parses the
// rendered screen. A dead session is torn down so the next probe starts
// a fresh one.
func (p *Probe) Probe(ctx context.Context) (*quota.UsageSnapshot, error) {
	sess, err := p.session(ctx)
	if err != nil {
		return nil, p.wrap(err)
	}

	raw, err := sess.SendCommand(ctx, pty.Command{
		Text:    usageCommand,
		Timeout: p.opts.Timeout,
		DoneMarkers: []string{
			"Current session",
			"% used",
			"% left",
		},
	})
	if err != nil {
		if errors.Is(err, pty.ErrSessionDied) {
			p.teardown()
		}
		return nil, p.wrap(err)
	}

	screen := term.NewScreen(pty.TermRows, pty.TermCols)
	screen.Feed([]byte(raw))
	return p.parser.Parse(screen.Text())
}

// session returns the live persistent session, starting one if needed.
func (p *Probe) session(ctx context.Context) (*pty.PersistentSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sess != nil && p.sess.State() != pty.StateStopped {
		return p.sess, nil
	}

	sess := pty.NewPersistentSession(pty.SessionConfig{
		Name:           p.opts.Binary,
		Args:           p.opts.Args,
		WorkDir:        p.opts.WorkDir,
		ReadyMarker:    readyMarker,
		StartupTimeout: p.opts.StartupTimeout,
		IdleWindow:     p.opts.IdleWindow,
		AutoResponses: map[string]string{
			// Theme picker on first run; accept the default.
			"Choose the text style":   "\r",
			"Press Enter to continue": "\r",
		},
	}, p.finder, p.logger)

	if err := sess.Start(ctx); err != nil {
		return nil, err
	}
	p.sess = sess
	return sess, nil
}

// Stop tears down the persistent session. Safe when none is running.
func (p *Probe) Stop() {
	p.teardown()
}

func (p *Probe) teardown() {
	p.mu.Lock()
	sess := p.sess
	p.sess = nil
	p.mu.Unlock()
	if sess != nil {
		sess.Stop()
	}
}

// wrap maps interaction-layer failures onto typed probe errors. Parse
// errors already arrive typed and pass through untouched.
func (p *Probe) wrap(err error) error {
	if _, ok := quota.AsProbeError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, locate.ErrNotFound):
		return quota.WrapProbeError(quota.ErrCLINotFound, err)
	case errors.Is(err, pty.ErrRunTimeout), errors.Is(err, pty.ErrStartupTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return quota.WrapProbeError(quota.ErrTimeout, err)
	default:
		return quota.WrapProbeError(quota.ErrExecutionFailed, err)
	}
}
