package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/recap/internal/pipeline"
	slackclient "github.com/kalambet/recap/internal/slack"
	"github.com/kalambet/recap/internal/storage"
	"github.com/kalambet/recap/internal/syncer"
	"github.com/kalambet/recap/internal/workflow"
)

// --- mocks ---

type mockStore struct {
	count      int
	countErr   error
	summaries  []storage.Summary
	prefs      storage.Preferences
	updated    *storage.Preferences
	runs       []storage.WorkflowRun
	lastLimit  int
	lastOffset int
}

func (m *mockStore) CountMessages() (int, error) {
	return m.count, m.countErr
}

func (m *mockStore) GetSummary(id string) (storage.Summary, error) {
	for _, s := range m.summaries {
		if s.ID == id {
			return s, nil
		}
	}
	return storage.Summary{}, storage.ErrNotFound
}

func (m *mockStore) ListSummaries(limit, offset int) ([]storage.Summary, error) {
	m.lastLimit, m.lastOffset = limit, offset
	return m.summaries, nil
}

func (m *mockStore) GetPreferences() (storage.Preferences, error) {
	return m.prefs, nil
}

func (m *mockStore) UpdatePreferences(p storage.Preferences) error {
	m.updated = &p
	return nil
}

func (m *mockStore) ListWorkflowRuns(int) ([]storage.WorkflowRun, error) {
	return m.runs, nil
}

type mockSlack struct {
	configured bool
	channels   []slackclient.Channel
}

func (m *mockSlack) Configured() bool { return m.configured }

func (m *mockSlack) AuthTest(context.Context) (slackclient.AuthInfo, error) {
	return slackclient.AuthInfo{}, nil
}

func (m *mockSlack) ListChannels(context.Context) ([]slackclient.Channel, error) {
	return m.channels, nil
}

type mockSync struct {
	window time.Duration
}

func (m *mockSync) Sync(_ context.Context, window time.Duration) (syncer.Result, error) {
	m.window = window
	return syncer.Result{ChannelsProcessed: 1, MessagesStored: 4}, nil
}

type mockWorkflows struct {
	req     workflow.Request
	summary *storage.Summary
	err     error
}

func (m *mockWorkflows) Run(_ context.Context, req workflow.Request) (*storage.Summary, error) {
	m.req = req
	return m.summary, m.err
}

type mockEvents struct {
	events []pipeline.Event
}

func (m *mockEvents) HandleEvent(_ context.Context, ev pipeline.Event) error {
	m.events = append(m.events, ev)
	return nil
}

type mockSummarizer struct {
	configured bool
}

func (m *mockSummarizer) Configured() bool { return m.configured }
func (m *mockSummarizer) Model() string    { return "gpt-4o-mini" }

type testEnv struct {
	store      *mockStore
	slack      *mockSlack
	sync       *mockSync
	workflows  *mockWorkflows
	events     *mockEvents
	summarizer *mockSummarizer
	deps       Deps
}

func newTestEnv() *testEnv {
	e := &testEnv{
		store:      &mockStore{prefs: storage.DefaultPreferences()},
		slack:      &mockSlack{configured: true},
		sync:       &mockSync{},
		workflows:  &mockWorkflows{},
		events:     &mockEvents{},
		summarizer: &mockSummarizer{configured: true},
	}
	e.deps = Deps{
		Store:      e.store,
		Slack:      e.slack,
		Sync:       e.sync,
		Workflows:  e.workflows,
		Events:     e.events,
		Summarizer: e.summarizer,
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return e
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return out
}

// --- health ---

func TestHealthOK(t *testing.T) {
	e := newTestEnv()
	e.store.count = 42
	w := doJSON(t, NewHandler(e.deps), http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
	if body["messages"] != float64(42) {
		t.Errorf("messages = %v", body["messages"])
	}
}

func TestHealthDegradedWithoutCredentials(t *testing.T) {
	e := newTestEnv()
	e.slack.configured = false
	e.summarizer.configured = false
	body := decodeBody(t, doJSON(t, NewHandler(e.deps), http.MethodGet, "/health", nil))
	if body["status"] != "degraded" {
		t.Errorf("status = %v", body["status"])
	}
	components := body["components"].(map[string]any)
	if components["slack"] != "not_configured" || components["summarizer"] != "not_configured" {
		t.Errorf("components = %v", components)
	}
}

// --- auth ---

func TestBearerAuthEnforced(t *testing.T) {
	e := newTestEnv()
	e.deps.Token = "secret"
	h := NewHandler(e.deps)

	w := doJSON(t, h, http.MethodGet, "/api/preferences", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/preferences", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("with token: status = %d, want 200", w.Code)
	}
}

func TestBearerAuthDisabledWithEmptyToken(t *testing.T) {
	e := newTestEnv()
	w := doJSON(t, NewHandler(e.deps), http.MethodGet, "/api/preferences", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

// --- webhook ---

func signedRequest(t *testing.T, secret string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:%s", ts, body)
	sig := "v0=" + hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/api/slack/events", bytes.NewReader(body))
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", sig)
	return req
}

func TestWebhookURLVerification(t *testing.T) {
	e := newTestEnv()
	e.deps.SigningSecret = "sssh"
	h := NewHandler(e.deps)

	req := signedRequest(t, "sssh", map[string]string{
		"type":      "url_verification",
		"challenge": "abc123",
	})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := decodeBody(t, w); body["challenge"] != "abc123" {
		t.Errorf("challenge = %v", body["challenge"])
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	e := newTestEnv()
	e.deps.SigningSecret = "sssh"
	h := NewHandler(e.deps)

	req := signedRequest(t, "wrong-secret", map[string]string{"type": "url_verification"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if len(e.events.events) != 0 {
		t.Error("unverified payloads must not reach the dispatcher")
	}
}

func TestWebhookDispatchesEvent(t *testing.T) {
	e := newTestEnv()
	e.deps.SigningSecret = "sssh"
	h := NewHandler(e.deps)

	req := signedRequest(t, "sssh", map[string]any{
		"type": "event_callback",
		"event": map[string]any{
			"type":    "message",
			"ts":      "1710000000.000100",
			"user":    "U123",
			"channel": "C1",
			"text":    "hello",
		},
	})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(e.events.events) != 1 {
		t.Fatalf("dispatched %d events, want 1", len(e.events.events))
	}
	ev := e.events.events[0]
	if ev.Type != "message" || ev.Channel != "C1" || ev.Text != "hello" {
		t.Errorf("event = %+v", ev)
	}
}

// --- sync ---

func TestSyncDefaultsWindow(t *testing.T) {
	e := newTestEnv()
	w := doJSON(t, NewHandler(e.deps), http.MethodPost, "/api/slack/sync", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if e.sync.window != 24*time.Hour {
		t.Errorf("window = %v, want 24h", e.sync.window)
	}
}

func TestSyncCustomWindow(t *testing.T) {
	e := newTestEnv()
	w := doJSON(t, NewHandler(e.deps), http.MethodPost, "/api/slack/sync", map[string]int{"window_hours": 72})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if e.sync.window != 72*time.Hour {
		t.Errorf("window = %v", e.sync.window)
	}
}

func TestSyncRejectsBadWindow(t *testing.T) {
	e := newTestEnv()
	w := doJSON(t, NewHandler(e.deps), http.MethodPost, "/api/slack/sync", map[string]int{"window_hours": -1})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// --- summary generation ---

func TestGenerateSummary(t *testing.T) {
	e := newTestEnv()
	e.workflows.summary = &storage.Summary{
		ID:           "sum-1",
		Type:         "EOD",
		SummaryText:  "all good",
		PDFPath:      "/data/reports/sum-1.pdf",
		MessageCount: 7,
	}
	w := doJSON(t, NewHandler(e.deps), http.MethodPost, "/api/summary/generate", generateRequest{
		Type:     "EOD",
		Style:    "executive",
		Channels: []string{"C1"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["id"] != "sum-1" || body["pdf_url"] != "/api/reports/sum-1/pdf" {
		t.Errorf("body = %v", body)
	}
	if e.workflows.req.Style != "executive" || len(e.workflows.req.Channels) != 1 {
		t.Errorf("request = %+v", e.workflows.req)
	}
	if e.workflows.req.ReplyChannel != "" {
		t.Error("API-triggered runs must not deliver to a channel")
	}
}

func TestGenerateSummaryRejectsBadType(t *testing.T) {
	e := newTestEnv()
	w := doJSON(t, NewHandler(e.deps), http.MethodPost, "/api/summary/generate", generateRequest{Type: "MONTHLY"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGenerateSummaryEmptyWindow(t *testing.T) {
	e := newTestEnv()
	w := doJSON(t, NewHandler(e.deps), http.MethodPost, "/api/summary/generate", generateRequest{Type: "EOW"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["summary"] != nil {
		t.Errorf("summary = %v, want null", body["summary"])
	}
}

// --- history / reports ---

func TestSummaryHistoryPreview(t *testing.T) {
	e := newTestEnv()
	e.store.summaries = []storage.Summary{{
		ID:          "sum-1",
		Type:        "EOD",
		SummaryText: strings.Repeat("z", 400),
	}}
	w := doJSON(t, NewHandler(e.deps), http.MethodGet, "/api/summary/history?limit=5&offset=2", nil)
	body := decodeBody(t, w)
	previews := body["summaries"].([]any)
	preview := previews[0].(map[string]any)["preview"].(string)
	if len(preview) != 203 || !strings.HasSuffix(preview, "...") {
		t.Errorf("preview length = %d", len(preview))
	}
	if e.store.lastLimit != 5 || e.store.lastOffset != 2 {
		t.Errorf("limit/offset = %d/%d", e.store.lastLimit, e.store.lastOffset)
	}
}

func TestReportPDFDownload(t *testing.T) {
	e := newTestEnv()
	dir := t.TempDir()
	path := filepath.Join(dir, "sum-1.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	e.store.summaries = []storage.Summary{{ID: "sum-1", Type: "EOD", PDFPath: path}}

	w := doJSON(t, NewHandler(e.deps), http.MethodGet, "/api/reports/sum-1/pdf", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
}

func TestReportPDFNotFound(t *testing.T) {
	e := newTestEnv()
	w := doJSON(t, NewHandler(e.deps), http.MethodGet, "/api/reports/nope/pdf", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	body := decodeBody(t, w)
	errObj := body["error"].(map[string]any)
	if errObj["type"] != "not_found_error" {
		t.Errorf("error = %v", errObj)
	}
}

// --- preferences ---

func TestPutPreferencesPartialUpdate(t *testing.T) {
	e := newTestEnv()
	w := doJSON(t, NewHandler(e.deps), http.MethodPut, "/api/preferences", map[string]any{
		"summary_style":        "executive",
		"notification_channel": "C99",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if e.store.updated == nil {
		t.Fatal("preferences were not saved")
	}
	if e.store.updated.SummaryStyle != "executive" || e.store.updated.NotificationChannel != "C99" {
		t.Errorf("updated = %+v", e.store.updated)
	}
	// Untouched fields keep their defaults.
	if !e.store.updated.IncludeThreads {
		t.Error("include_threads should keep its default")
	}
}

func TestPutPreferencesRejectsBadStyle(t *testing.T) {
	e := newTestEnv()
	w := doJSON(t, NewHandler(e.deps), http.MethodPut, "/api/preferences", map[string]any{
		"summary_style": "sarcastic",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// --- workflows ---

func TestListWorkflows(t *testing.T) {
	e := newTestEnv()
	e.store.runs = []storage.WorkflowRun{{ID: "run-1", Kind: "EOD", Status: "completed"}}
	body := decodeBody(t, doJSON(t, NewHandler(e.deps), http.MethodGet, "/api/workflows", nil))
	runs := body["workflows"].([]any)
	if len(runs) != 1 {
		t.Fatalf("runs = %d", len(runs))
	}
}
