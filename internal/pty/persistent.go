package pty

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"
)

// Persistent session pacing. Slash commands are typed rune by rune so
// the target CLI's autocomplete popup keeps up; pasting the whole line
// at once makes some CLIs swallow the leading slash.
const (
	DefaultStartupTimeout = 45 * time.Second
	DefaultTypeDelay      = 25 * time.Millisecond
	DefaultSubmitDelay    = 250 * time.Millisecond
)

// SessionState tracks the persistent session lifecycle.
type SessionState int

const (
	StateNotStarted SessionState = iota
	StateStarting
	StateReady
	StateBusy
	StateStopped
)

func (s SessionState) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SessionConfig describes how to start and talk to a long-lived CLI
// session. Timing fields zero-default to the package constants.
type SessionConfig struct {
	Name    string // CLI name, resolved through the locator
	Args    []string
	Env     map[string]string
	WorkDir string

	// ReadyMarker is the string the CLI prints when idle and awaiting
	// input. Matched case-insensitively against escape-stripped output.
	ReadyMarker string

	// AutoResponses are applied while waiting for startup, the same way
	// the one-shot runner applies them.
	AutoResponses map[string]string

	StartupTimeout time.Duration
	IdleWindow     time.Duration
	TypeDelay      time.Duration
	SubmitDelay    time.Duration
}

func (c *SessionConfig) fill() {
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = DefaultStartupTimeout
	}
	if c.IdleWindow <= 0 {
		c.IdleWindow = DefaultIdleWindow
	}
	if c.TypeDelay <= 0 {
		c.TypeDelay = DefaultTypeDelay
	}
	if c.SubmitDelay <= 0 {
		c.SubmitDelay = DefaultSubmitDelay
	}
}

// Command is one request sent into a ready session.
type Command struct {
	// Text is the input. Text starting with '/' is typed rune by rune
	// with inter-key delays; anything else is sent as a whole line.
	Text string

	// Timeout bounds the capture for this command.
	Timeout time.Duration

	// DoneMarkers are content strings whose appearance signals the
	// command has produced its output. Completion requires a marker
	// plus either the ready marker reappearing or the idle window
	// elapsing.
	DoneMarkers []string
}

// PersistentSession keeps one CLI process alive across commands,
// amortizing its startup cost. State transitions:
// NotStarted -> Starting -> Ready -> (Busy <-> Ready)* -> Stopped.
type PersistentSession struct {
	cfg    SessionConfig
	locate Locator
	logger *log.Logger

	mu    sync.Mutex
	state SessionState
	sess  *Session
}

// NewPersistentSession builds a session in the NotStarted state.
func NewPersistentSession(cfg SessionConfig, locate Locator, logger *log.Logger) *PersistentSession {
	cfg.fill()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &PersistentSession{cfg: cfg, locate: locate, logger: logger}
}

// State reports the current lifecycle state.
func (p *PersistentSession) State() SessionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start spawns the CLI and waits for its ready marker, applying
// configured auto-responses while it boots. On failure the child is
// terminated before returning.
func (p *PersistentSession) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateNotStarted {
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("pty: start from state %s", state)
	}
	p.state = StateStarting
	p.mu.Unlock()

	path, err := p.locate.Resolve(p.cfg.Name)
	if err != nil {
		p.setState(StateStopped)
		return err
	}

	sess, err := Open(LaunchOptions{
		Path:    path,
		Args:    p.cfg.Args,
		Env:     p.cfg.Env,
		WorkDir: p.cfg.WorkDir,
	}, p.logger)
	if err != nil {
		p.setState(StateStopped)
		return err
	}

	deadline := time.Now().Add(p.cfg.StartupTimeout)
	out := newCapture(sess, p.cfg.AutoResponses)
	for !out.contains(p.cfg.ReadyMarker) {
		if err := ctx.Err(); err != nil {
			sess.Terminate()
			p.setState(StateStopped)
			return err
		}
		if time.Now().After(deadline) {
			sess.Terminate()
			p.setState(StateStopped)
			return ErrStartupTimeout
		}
		if !sess.Running() {
			sess.Terminate()
			p.setState(StateStopped)
			return ErrSessionDied
		}
		out.poll()
		if err := sleepCtx(ctx, pollInterval); err != nil {
			sess.Terminate()
			p.setState(StateStopped)
			return err
		}
	}

	p.mu.Lock()
	p.sess = sess
	p.state = StateReady
	p.mu.Unlock()
	p.logger.Printf("pty: %s session ready", p.cfg.Name)
	return nil
}

// SendCommand types one command into a ready session and returns the
// raw output captured for that command only. If the CLI process has
// died it fails immediately with ErrSessionDied instead of hanging.
func (p *PersistentSession) SendCommand(ctx context.Context, cmd Command) (string, error) {
	if cmd.Timeout <= 0 {
		cmd.Timeout = DefaultTimeout
	}

	p.mu.Lock()
	switch {
	case p.state == StateNotStarted || p.state == StateStarting:
		p.mu.Unlock()
		return "", ErrNotStarted
	case p.state == StateStopped:
		p.mu.Unlock()
		return "", ErrSessionDied
	case p.state == StateBusy:
		p.mu.Unlock()
		return "", fmt.Errorf("pty: session busy")
	}
	sess := p.sess
	p.state = StateBusy
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.state == StateBusy {
			p.state = StateReady
		}
		p.mu.Unlock()
	}()

	if !sess.Running() {
		return "", ErrSessionDied
	}

	// Drop whatever the CLI printed since the last command so this
	// capture holds only this command's output.
	sess.DiscardPending()

	if err := p.typeCommand(ctx, sess, cmd.Text); err != nil {
		return "", err
	}

	deadline := time.Now().Add(cmd.Timeout)
	out := newCapture(sess, nil)
	for {
		if err := ctx.Err(); err != nil {
			return out.String(), err
		}
		if time.Now().After(deadline) {
			return out.String(), ErrRunTimeout
		}
		if !sess.Running() {
			out.poll()
			return out.String(), ErrSessionDied
		}

		out.poll()

		if markerSeen(out, cmd.DoneMarkers) {
			// Output has landed; wait for the prompt to come back or
			// for the stream to settle before handing it over.
			if out.contains(p.cfg.ReadyMarker) || out.idleFor(p.cfg.IdleWindow) {
				return out.String(), nil
			}
		}

		if err := sleepCtx(ctx, pollInterval); err != nil {
			return out.String(), err
		}
	}
}

func markerSeen(out *capture, markers []string) bool {
	if len(markers) == 0 {
		// No content markers configured: fall back to pure idle.
		return true
	}
	for _, m := range markers {
		if out.contains(m) {
			return true
		}
	}
	return false
}

// typeCommand delivers input in the mode the command shape requires:
// slash commands rune by rune with inter-key delays and a settle pause
// before Enter, everything else as one literal line.
func (p *PersistentSession) typeCommand(ctx context.Context, sess *Session, text string) error {
	if !strings.HasPrefix(text, "/") {
		return sess.WriteString(text + "\r")
	}
	for _, r := range text {
		if err := sess.WriteString(string(r)); err != nil {
			return err
		}
		if err := sleepCtx(ctx, p.cfg.TypeDelay); err != nil {
			return err
		}
	}
	if err := sleepCtx(ctx, p.cfg.SubmitDelay); err != nil {
		return err
	}
	return sess.WriteString("\r")
}

// Stop terminates the CLI. Idempotent; a session cannot be restarted.
func (p *PersistentSession) Stop() {
	p.mu.Lock()
	sess := p.sess
	p.state = StateStopped
	p.sess = nil
	p.mu.Unlock()

	if sess != nil {
		sess.Terminate()
	}
}

func (p *PersistentSession) setState(s SessionState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}
