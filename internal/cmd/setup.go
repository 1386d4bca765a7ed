package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/steveyegge/gasgauge/internal/config"
	"github.com/steveyegge/gasgauge/internal/ledger"
	"github.com/steveyegge/gasgauge/internal/locate"
	"github.com/steveyegge/gasgauge/internal/monitor"
	"github.com/steveyegge/gasgauge/internal/provider"
	"github.com/steveyegge/gasgauge/internal/provider/claude"
	"github.com/steveyegge/gasgauge/internal/provider/codex"
	"github.com/steveyegge/gasgauge/internal/quota"
	"github.com/steveyegge/gasgauge/internal/style"
)

var verboseFlag bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log probe activity to stderr")
}

func newLogger() *log.Logger {
	if verboseFlag {
		return log.New(os.Stderr, "gg: ", log.Ltime)
	}
	return log.New(io.Discard, "", 0)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(config.DefaultPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// buildProbes constructs every enabled provider probe from config and
// registers each in the provider registry. Unavailable CLIs are
// included: the probe itself reports the missing binary, which is more
// useful than a silent omission.
func buildProbes(cfg *config.Config, logger *log.Logger) []provider.Probe {
	// Overrides are keyed by the binary name each probe resolves, so a
	// configured path that is not executable surfaces as an error
	// instead of falling through to a PATH lookup.
	overrides := make(map[string]string)
	if pc := cfg.Provider("claude"); pc.Binary != "" {
		overrides["claude"] = pc.Binary
	}
	if pc := cfg.Provider("codex"); pc.Binary != "" {
		overrides["codex"] = pc.Binary
	}
	finder := locate.NewFinder(overrides)

	provider.Reset()

	if cfg.Enabled("claude") {
		pc := cfg.Provider("claude")
		provider.Register(claude.New(claude.Options{
			WorkDir:        pc.WorkDir,
			Timeout:        time.Duration(pc.TimeoutSec) * time.Second,
			IdleWindow:     time.Duration(pc.IdleWindowMS) * time.Millisecond,
			StartupTimeout: time.Duration(pc.StartupTimeout) * time.Second,
		}, finder, logger))
	}

	if cfg.Enabled("codex") {
		pc := cfg.Provider("codex")
		provider.Register(codex.New(codex.Options{
			WorkDir:     pc.WorkDir,
			Timeout:     time.Duration(pc.TimeoutSec) * time.Second,
			IdleWindow:  time.Duration(pc.IdleWindowMS) * time.Millisecond,
			SettleDelay: time.Duration(pc.SettleDelayMS) * time.Millisecond,
		}, finder, logger))
	}

	return provider.All()
}

func newMonitor(cfg *config.Config, logger *log.Logger, opts ...monitor.Option) *monitor.Monitor {
	probes := buildProbes(cfg, logger)
	opts = append(opts,
		monitor.WithLogger(logger),
		monitor.WithRecorder(ledger.New(cfg.LedgerPath)),
	)
	return monitor.New(probes, opts...)
}

// statusStyle picks the display style for a quota status.
func statusStyle(s quota.Status) lipgloss.Style {
	switch s {
	case quota.StatusHealthy:
		return style.Success
	case quota.StatusLow:
		return style.Warning
	case quota.StatusCritical, quota.StatusDepleted:
		return style.Error
	default:
		return style.Dim
	}
}
