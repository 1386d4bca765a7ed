// Package web serves the quota dashboard over HTTP.
package web

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"
)

// Row is one provider's quota state prepared for rendering.
type Row struct {
	ProviderID     string  `json:"provider"`
	DisplayName    string  `json:"display_name"`
	Syncing        bool    `json:"syncing"`
	SessionPercent float64 `json:"session_pct"`
	HasSession     bool    `json:"has_session"`
	WeeklyPercent  float64 `json:"weekly_pct,omitempty"`
	HasWeekly      bool    `json:"has_weekly,omitempty"`
	Status         string  `json:"status"`
	ResetText      string  `json:"reset_text,omitempty"`
	Error          string  `json:"error,omitempty"`
	RefreshedAt    string  `json:"refreshed_at,omitempty"`
}

// StatusClass maps a row's status onto a CSS class for the template.
func (r Row) StatusClass() string {
	switch r.Status {
	case "healthy":
		return "status-healthy"
	case "low":
		return "status-low"
	case "critical", "depleted":
		return "status-critical"
	default:
		return "status-unknown"
	}
}

// StatusFetcher supplies the current rows. The monitor satisfies this
// through a thin adapter so the handler stays independently testable.
type StatusFetcher interface {
	FetchStatus() ([]Row, error)
}

const dashboardTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>gasgauge</title>
<script src="https://unpkg.com/htmx.org@1.9.12"></script>
<style>
  body { font-family: -apple-system, sans-serif; background: #1a1a2e; color: #e0e0e0; margin: 2rem; }
  h1 { font-size: 1.4rem; }
  table { border-collapse: collapse; min-width: 40rem; }
  th, td { text-align: left; padding: 0.5rem 1rem; border-bottom: 1px solid #333; }
  .gauge-bar { background: #333; border-radius: 4px; width: 12rem; height: 0.8rem; }
  .gauge-fill { height: 100%; border-radius: 4px; background: #4caf50; }
  .status-healthy { color: #4caf50; }
  .status-low { color: #ffc107; }
  .status-critical { color: #f44336; }
  .status-unknown { color: #888; }
  .error { color: #f44336; font-size: 0.85rem; }
  .dim { color: #888; }
</style>
</head>
<body>
<div hx-get="/" hx-trigger="every 30s" hx-select="#gauges" hx-target="#gauges" hx-swap="outerHTML">
<h1>Quota Gauges</h1>
<div id="gauges">
{{if .Rows}}
<table>
  <tr><th>Provider</th><th>Session</th><th>Weekly</th><th>Status</th><th>Resets</th><th>Checked</th></tr>
  {{range .Rows}}
  <tr>
    <td>{{.DisplayName}}{{if .Syncing}} <span class="dim">(syncing)</span>{{end}}</td>
    <td>
      {{if .HasSession}}
      <div class="gauge-bar"><div class="gauge-fill" style="width: {{printf "%.0f" .SessionPercent}}%"></div></div>
      {{printf "%.0f" .SessionPercent}}%
      {{else}}<span class="dim">&mdash;</span>{{end}}
    </td>
    <td>{{if .HasWeekly}}{{printf "%.0f" .WeeklyPercent}}%{{else}}<span class="dim">&mdash;</span>{{end}}</td>
    <td class="{{.StatusClass}}">{{.Status}}</td>
    <td>{{if .ResetText}}{{.ResetText}}{{else}}<span class="dim">&mdash;</span>{{end}}</td>
    <td class="dim">{{.RefreshedAt}}</td>
  </tr>
  {{if .Error}}<tr><td></td><td colspan="5" class="error">{{.Error}}</td></tr>{{end}}
  {{end}}
</table>
{{else}}
<p class="dim">No providers configured</p>
{{end}}
</div>
<p class="dim">Updated {{.Now}}</p>
</div>
</body>
</html>
`

// StatusHandler renders the dashboard and its JSON counterpart.
type StatusHandler struct {
	fetcher StatusFetcher
	tmpl    *template.Template
}

// NewStatusHandler builds a handler over the given fetcher.
func NewStatusHandler(f StatusFetcher) (*StatusHandler, error) {
	tmpl, err := template.New("dashboard").Parse(dashboardTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing dashboard template: %w", err)
	}
	return &StatusHandler{fetcher: f, tmpl: tmpl}, nil
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/status.json" {
		h.serveJSON(w)
		return
	}

	rows, err := h.fetcher.FetchStatus()
	if err != nil {
		http.Error(w, "Failed to fetch quota status: "+err.Error(), http.StatusInternalServerError)
		return
	}

	data := struct {
		Rows []Row
		Now  string
	}{
		Rows: rows,
		Now:  time.Now().Format("15:04:05"),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.Execute(w, data); err != nil {
		http.Error(w, "Failed to render dashboard", http.StatusInternalServerError)
	}
}

func (h *StatusHandler) serveJSON(w http.ResponseWriter) {
	rows, err := h.fetcher.FetchStatus()
	if err != nil {
		http.Error(w, `{"error":"fetch failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if rows == nil {
		rows = []Row{}
	}
	_ = enc.Encode(struct {
		Rows []Row `json:"providers"`
	}{Rows: rows})
}
