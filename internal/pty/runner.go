package pty

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/steveyegge/gasgauge/internal/term"
)

// Completion and pacing defaults. CLI startup latency varies wildly by
// tool and machine, so every one of these can be overridden per provider
// through RunOptions (and, upstream, the config file).
const (
	DefaultTimeout     = 60 * time.Second
	DefaultSettleDelay = 1500 * time.Millisecond
	DefaultIdleWindow  = 3 * time.Second
	pollInterval       = 50 * time.Millisecond
)

// Sentinel errors for the interaction layer. Providers translate these
// into the typed probe errors surfaced to callers.
var (
	ErrRunTimeout     = errors.New("pty: run timed out")
	ErrSessionDied    = errors.New("pty: session process died")
	ErrStartupTimeout = errors.New("pty: ready marker never appeared")
	ErrNotStarted     = errors.New("pty: session not started")
)

// RunOptions configures one interactive run.
type RunOptions struct {
	Args    []string
	Env     map[string]string
	WorkDir string

	// Timeout is the hard deadline for the whole run.
	Timeout time.Duration

	// SettleDelay is how long to wait after spawn before sending input,
	// giving the CLI time to finish its startup repaint.
	SettleDelay time.Duration

	// IdleWindow is how long meaningful output must stay quiet before
	// the run is considered complete.
	IdleWindow time.Duration

	// AutoResponses maps prompt substrings (matched case-insensitively
	// against escape-stripped output) to replies. Each prompt is
	// answered at most once per run.
	AutoResponses map[string]string

	// RawResponses maps raw byte sequences to replies, answered every
	// time the sequence shows up in a chunk. Used for terminal protocol
	// queries like DSR cursor-position reports, which some CLIs block
	// on during startup.
	RawResponses map[string]string
}

func (o *RunOptions) fill() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.IdleWindow <= 0 {
		o.IdleWindow = DefaultIdleWindow
	}
}

// Result is the captured outcome of one run.
type Result struct {
	// Output is the raw byte stream, escape sequences included. Feed it
	// through term.Render before parsing.
	Output string

	// ExitCode is the child's exit code, or -1 if it was still running
	// when the capture completed.
	ExitCode int
}

// Locator resolves a CLI name to an executable path. The real
// implementation lives in internal/locate; runners only need this seam.
type Locator interface {
	Resolve(name string) (string, error)
}

// Runner performs one-shot interactive runs: spawn, send a single input
// line, capture until the completion heuristic fires, clean up.
type Runner struct {
	locate Locator
	logger *log.Logger
}

// NewRunner returns a Runner using the given locator. A nil logger
// discards logs.
func NewRunner(locate Locator, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Runner{locate: locate, logger: logger}
}

// Run drives one command through a fresh pty session.
//
// Completion is heuristic and dual: a hard deadline from opts.Timeout,
// and an idle-based early exit once the capture contains meaningful
// content (printable text surviving escape stripping) and none has
// arrived for opts.IdleWindow. A stream of cursor movements and OSC
// title updates alone never satisfies the idle exit.
func (r *Runner) Run(ctx context.Context, name, input string, opts RunOptions) (Result, error) {
	opts.fill()

	path, err := r.locate.Resolve(name)
	if err != nil {
		return Result{}, err
	}

	sess, err := Open(LaunchOptions{
		Path:    path,
		Args:    opts.Args,
		Env:     opts.Env,
		WorkDir: opts.WorkDir,
	}, r.logger)
	if err != nil {
		return Result{}, err
	}
	defer sess.Terminate()

	deadline := time.Now().Add(opts.Timeout)

	if err := sleepCtx(ctx, opts.SettleDelay); err != nil {
		return Result{}, err
	}
	if input != "" {
		if err := sess.WriteString(input + "\r"); err != nil {
			return Result{}, err
		}
	}

	out := newCapture(sess, opts.AutoResponses)
	out.rawReplies = opts.RawResponses
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if time.Now().After(deadline) {
			return Result{Output: out.String(), ExitCode: sess.ExitCode()}, ErrRunTimeout
		}

		progressed := out.poll()

		if !sess.Running() && !progressed {
			// Final drain happened above; the child is gone.
			return Result{Output: out.String(), ExitCode: sess.ExitCode()}, nil
		}
		if out.idleFor(opts.IdleWindow) {
			return Result{Output: out.String(), ExitCode: sess.ExitCode()}, nil
		}

		if err := sleepCtx(ctx, pollInterval); err != nil {
			return Result{}, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// capture accumulates raw output for one command and tracks the
// meaningful-output clock and auto-response state.
type capture struct {
	sess       *Session
	raw        strings.Builder
	stripped   strings.Builder
	meaningful int
	lastGrowth time.Time
	pending    map[string]string // unanswered prompt -> reply
	rawReplies map[string]string // protocol query -> reply, repeatable
}

func newCapture(sess *Session, autoResponses map[string]string) *capture {
	pending := make(map[string]string, len(autoResponses))
	for prompt, reply := range autoResponses {
		pending[strings.ToLower(prompt)] = reply
	}
	return &capture{sess: sess, pending: pending, lastGrowth: time.Now()}
}

// poll drains available output, answers any newly visible prompts, and
// reports whether the capture advanced.
func (c *capture) poll() bool {
	chunk := c.sess.ReadAvailable()
	if len(chunk) == 0 {
		return false
	}
	c.raw.Write(chunk)
	c.stripped.WriteString(strings.ToLower(term.StripANSI(string(chunk))))

	if n := term.MeaningfulLen(string(chunk)); n > 0 {
		c.meaningful += n
		c.lastGrowth = time.Now()
	}

	// Search a little behind the chunk boundary so a query split across
	// two reads is still seen.
	if len(c.rawReplies) > 0 {
		all := c.raw.String()
		start := len(all) - len(chunk) - 8
		if start < 0 {
			start = 0
		}
		for query, reply := range c.rawReplies {
			if strings.Contains(all[start:], query) {
				_ = c.sess.WriteString(reply)
			}
		}
	}

	c.respondToPrompts()
	return true
}

// respondToPrompts answers each configured prompt at most once, and
// resets the idle clock so the CLI gets time to react to the reply.
func (c *capture) respondToPrompts() {
	if len(c.pending) == 0 {
		return
	}
	seen := c.stripped.String()
	for prompt, reply := range c.pending {
		if strings.Contains(seen, prompt) {
			_ = c.sess.WriteString(reply)
			delete(c.pending, prompt)
			c.lastGrowth = time.Now()
		}
	}
}

// idleFor reports whether meaningful output exists and has been quiet
// for at least window.
func (c *capture) idleFor(window time.Duration) bool {
	return c.meaningful > 0 && time.Since(c.lastGrowth) >= window
}

func (c *capture) String() string { return c.raw.String() }

// contains reports whether the escape-stripped capture includes the
// marker, case-insensitively.
func (c *capture) contains(marker string) bool {
	return strings.Contains(c.stripped.String(), strings.ToLower(marker))
}
