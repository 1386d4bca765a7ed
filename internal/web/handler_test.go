package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var errFetchFailed = errors.New("fetch failed")

// MockStatusFetcher is a mock implementation for testing.
type MockStatusFetcher struct {
	Rows  []Row
	Error error
}

func (m *MockStatusFetcher) FetchStatus() ([]Row, error) {
	return m.Rows, m.Error
}

func TestStatusHandler_RendersRows(t *testing.T) {
	mock := &MockStatusFetcher{
		Rows: []Row{
			{
				ProviderID:     "claude",
				DisplayName:    "Claude Code",
				SessionPercent: 65,
				HasSession:     true,
				WeeklyPercent:  80,
				HasWeekly:      true,
				Status:         "healthy",
				ResetText:      "resets 11pm",
				RefreshedAt:    "14:02:11",
			},
		},
	}

	handler, err := NewStatusHandler(mock)
	if err != nil {
		t.Fatalf("NewStatusHandler() error = %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	body := w.Body.String()

	if !strings.Contains(body, "Claude Code") {
		t.Error("Response should contain provider display name")
	}
	if !strings.Contains(body, "65%") {
		t.Error("Response should contain session percentage")
	}
	if !strings.Contains(body, "80%") {
		t.Error("Response should contain weekly percentage")
	}
	if !strings.Contains(body, "resets 11pm") {
		t.Error("Response should contain reset text")
	}
}

func TestStatusHandler_StatusClasses(t *testing.T) {
	tests := []struct {
		name      string
		status    string
		wantClass string
	}{
		{"green for healthy", "healthy", "status-healthy"},
		{"yellow for low", "low", "status-low"},
		{"red for critical", "critical", "status-critical"},
		{"red for depleted", "depleted", "status-critical"},
		{"grey for unknown", "unknown", "status-unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockStatusFetcher{
				Rows: []Row{
					{ProviderID: "claude", DisplayName: "Claude Code", HasSession: true, Status: tt.status},
				},
			}

			handler, err := NewStatusHandler(mock)
			if err != nil {
				t.Fatalf("NewStatusHandler() error = %v", err)
			}

			req := httptest.NewRequest("GET", "/", nil)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if !strings.Contains(w.Body.String(), tt.wantClass) {
				t.Errorf("Response should contain %q", tt.wantClass)
			}
		})
	}
}

func TestStatusHandler_EmptyProviders(t *testing.T) {
	mock := &MockStatusFetcher{Rows: []Row{}}

	handler, err := NewStatusHandler(mock)
	if err != nil {
		t.Fatalf("NewStatusHandler() error = %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "No providers") {
		t.Error("Response should show empty state message")
	}
}

func TestStatusHandler_ContentType(t *testing.T) {
	mock := &MockStatusFetcher{Rows: []Row{}}

	handler, err := NewStatusHandler(mock)
	if err != nil {
		t.Fatalf("NewStatusHandler() error = %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	contentType := w.Header().Get("Content-Type")
	if !strings.Contains(contentType, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", contentType)
	}
}

func TestStatusHandler_FetchError(t *testing.T) {
	mock := &MockStatusFetcher{Error: errFetchFailed}

	handler, err := NewStatusHandler(mock)
	if err != nil {
		t.Fatalf("NewStatusHandler() error = %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if !strings.Contains(w.Body.String(), "Failed to fetch quota status") {
		t.Error("Response should contain error message")
	}
}

func TestStatusHandler_ProbeErrorRow(t *testing.T) {
	mock := &MockStatusFetcher{
		Rows: []Row{
			{
				ProviderID:  "codex",
				DisplayName: "Codex",
				Status:      "unknown",
				Error:       "codex: sign-in required",
			},
		},
	}

	handler, err := NewStatusHandler(mock)
	if err != nil {
		t.Fatalf("NewStatusHandler() error = %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d (per-provider errors are non-fatal)", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "sign-in required") {
		t.Error("Response should contain the provider error")
	}
}

func TestStatusHandler_JSON(t *testing.T) {
	mock := &MockStatusFetcher{
		Rows: []Row{
			{
				ProviderID:     "claude",
				DisplayName:    "Claude Code",
				SessionPercent: 42,
				HasSession:     true,
				Status:         "low",
			},
		},
	}

	handler, err := NewStatusHandler(mock)
	if err != nil {
		t.Fatalf("NewStatusHandler() error = %v", err)
	}

	req := httptest.NewRequest("GET", "/status.json", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get("Content-Type"); !strings.Contains(got, "application/json") {
		t.Errorf("Content-Type = %q, want application/json", got)
	}

	var payload struct {
		Providers []Row `json:"providers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(payload.Providers) != 1 {
		t.Fatalf("providers = %d, want 1", len(payload.Providers))
	}
	if payload.Providers[0].SessionPercent != 42 {
		t.Errorf("session_pct = %v, want 42", payload.Providers[0].SessionPercent)
	}
}

func TestStatusHandler_AutoRefresh(t *testing.T) {
	mock := &MockStatusFetcher{Rows: []Row{}}

	handler, err := NewStatusHandler(mock)
	if err != nil {
		t.Fatalf("NewStatusHandler() error = %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "hx-get") {
		t.Error("Response should contain hx-get attribute")
	}
	if !strings.Contains(body, "every 30s") {
		t.Error("Response should contain refresh trigger interval")
	}
}
