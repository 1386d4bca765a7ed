package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/steveyegge/gasgauge/internal/monitor"
	"github.com/steveyegge/gasgauge/internal/quota"
	"github.com/steveyegge/gasgauge/internal/style"
	"github.com/steveyegge/gasgauge/internal/web"
)

var (
	serveAddr     string
	serveInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: GroupMonitor,
	Short:   "Run the web quota dashboard",
	Long: `Serve an HTML dashboard plus a JSON endpoint at /status.json.

Providers are probed continuously in the background; the dashboard
always shows the latest completed probe.

Examples:
  gg serve                       # Config address, default localhost:7373
  gg serve --addr :8080          # All interfaces, port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
	serveCmd.Flags().DurationVar(&serveInterval, "interval", 0, "Refresh interval (default from config)")
}

// monitorFetcher adapts monitor state to the web handler's rows.
type monitorFetcher struct {
	mon *monitor.Monitor
}

func (f *monitorFetcher) FetchStatus() ([]web.Row, error) {
	states := f.mon.States()
	rows := make([]web.Row, 0, len(states))
	now := time.Now()
	for _, st := range states {
		row := web.Row{
			ProviderID:  st.ProviderID,
			DisplayName: st.DisplayName,
			Syncing:     st.Syncing,
			Status:      string(st.Status),
		}
		if !st.RefreshedAt.IsZero() {
			row.RefreshedAt = st.RefreshedAt.Format("15:04:05")
		}
		if st.Err != nil {
			row.Error = probeErrorLine(st.Err)
		}
		if st.Snapshot != nil {
			if q, ok := st.Snapshot.Quota(quota.KindSession); ok {
				row.SessionPercent = q.PercentRemaining
				row.HasSession = true
				if !q.ResetsAt.IsZero() {
					row.ResetText = "in " + quota.FormatUntil(q.ResetsAt, now)
				} else {
					row.ResetText = q.ResetText
				}
			}
			if q, ok := st.Snapshot.Quota(quota.KindWeekly); ok {
				row.WeeklyPercent = q.PercentRemaining
				row.HasWeekly = true
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.ListenAddr
	}
	interval := serveInterval
	if interval <= 0 {
		interval = cfg.RefreshInterval()
	}

	logger := newLogger()
	mon := newMonitor(cfg, logger)
	defer mon.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	events := mon.Start(ctx, interval)
	go func() {
		// Drain the event stream; the dashboard reads state on demand.
		for range events {
		}
	}()

	handler, err := web.NewStatusHandler(&monitorFetcher{mon: mon})
	if err != nil {
		return err
	}

	server := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	fmt.Printf("%s Dashboard on http://%s (probing every %s)\n",
		style.Success.Render("✓"), addr, interval)

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving dashboard: %w", err)
	}
	return nil
}
