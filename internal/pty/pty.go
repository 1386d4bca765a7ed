// Package pty drives interactive CLIs through a pseudo-terminal.
//
// Several AI coding CLIs refuse to produce parseable output unless they
// believe a human is at the keyboard: they check isatty, query the
// terminal size, and repaint their screen with cursor movement. Session
// gives a child process a real pty with a fixed virtual geometry so its
// behavior is deterministic, and exposes non-blocking reads over a
// capture buffer filled by a background reader.
package pty

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
)

// Virtual terminal geometry given to every child. Wide enough that quota
// tables are not wrapped mid-label.
const (
	TermRows = 50
	TermCols = 160
)

// terminateGrace is how long Terminate waits after SIGTERM before
// escalating to SIGKILL.
const terminateGrace = 2 * time.Second

// LaunchOptions configures a child process attached to a new pty.
type LaunchOptions struct {
	Path    string            // resolved executable path
	Args    []string          // argument list, not including argv[0]
	Env     map[string]string // overrides applied on top of os.Environ
	WorkDir string            // optional working directory
}

// Session owns one pty pair and one child process. It is exclusively
// owned by its runner; handles are never shared across probes.
type Session struct {
	cmd    *exec.Cmd
	ptmx   *os.File
	logger *log.Logger

	mu  sync.Mutex
	buf bytes.Buffer

	exited   chan struct{}
	waitErr  error
	exitCode int

	closeOnce sync.Once
}

// Open spawns the executable attached to a fresh pty sized to the fixed
// virtual terminal. The child gets TERM=xterm-256color and the caller's
// PATH/HOME unless overridden.
func Open(opts LaunchOptions, logger *log.Logger) (*Session, error) {
	if opts.Path == "" {
		return nil, errors.New("pty: no executable path")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	cmd := exec.Command(opts.Path, opts.Args...)
	cmd.Dir = opts.WorkDir
	cmd.Env = buildEnv(opts.Env)
	setProcAttrs(cmd)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: TermRows, Cols: TermCols})
	if err != nil {
		return nil, fmt.Errorf("starting %s under pty: %w", opts.Path, err)
	}

	s := &Session{
		cmd:    cmd,
		ptmx:   ptmx,
		logger: logger,
		exited: make(chan struct{}),
	}

	go s.readLoop()
	go s.reap()

	logger.Printf("pty: started %s (pid %d)", opts.Path, cmd.Process.Pid)
	return s, nil
}

func buildEnv(overrides map[string]string) []string {
	merged := map[string]string{"TERM": "xterm-256color"}
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			merged[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range overrides {
		merged[k] = v
	}
	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	return env
}

// readLoop drains the pty master into the capture buffer until the child
// side closes. Reads on a closed pty surface as EIO; both that and EOF
// mean the stream is done.
func (s *Session) readLoop() {
	tmp := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(tmp)
		if n > 0 {
			s.mu.Lock()
			s.buf.Write(tmp[:n])
			s.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// reap waits for the child exactly once so it never becomes a zombie.
func (s *Session) reap() {
	err := s.cmd.Wait()
	s.mu.Lock()
	s.waitErr = err
	if s.cmd.ProcessState != nil {
		s.exitCode = s.cmd.ProcessState.ExitCode()
	}
	s.mu.Unlock()
	close(s.exited)
}

// Write sends raw bytes to the child's input.
func (s *Session) Write(p []byte) error {
	_, err := s.ptmx.Write(p)
	return err
}

// WriteString sends text to the child's input.
func (s *Session) WriteString(text string) error {
	return s.Write([]byte(text))
}

// ReadAvailable drains and returns everything the child has produced
// since the last call. It never blocks; it returns nil when nothing is
// pending.
func (s *Session) ReadAvailable() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() == 0 {
		return nil
	}
	out := append([]byte(nil), s.buf.Bytes()...)
	s.buf.Reset()
	return out
}

// DiscardPending throws away any buffered output. Persistent sessions
// call this before each command so one command's capture never bleeds
// into the next.
func (s *Session) DiscardPending() {
	s.mu.Lock()
	s.buf.Reset()
	s.mu.Unlock()
}

// Running reports whether the child process is still alive.
func (s *Session) Running() bool {
	select {
	case <-s.exited:
		return false
	default:
		return true
	}
}

// ExitCode returns the child's exit code, or -1 while it is running.
func (s *Session) ExitCode() int {
	select {
	case <-s.exited:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.exitCode
	default:
		return -1
	}
}

// Terminate stops the child and releases the pty. It sends SIGTERM to
// the process group, waits out a grace window, escalates to SIGKILL,
// and always closes the master fd. Safe to call more than once and on
// any exit path; leaking a pty on the error path is a defect.
func (s *Session) Terminate() {
	s.closeOnce.Do(func() {
		if s.Running() {
			terminateGroup(s.cmd.Process.Pid)
			select {
			case <-s.exited:
			case <-time.After(terminateGrace):
				s.logger.Printf("pty: pid %d ignored SIGTERM, killing", s.cmd.Process.Pid)
				killGroup(s.cmd.Process.Pid)
				<-s.exited
			}
		}
		_ = s.ptmx.Close()
	})
}
