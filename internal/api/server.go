// Package api exposes the HTTP surface: the Slack events webhook, the
// bearer-authenticated management API, and the MCP tool server.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/recap/internal/pipeline"
	slackclient "github.com/kalambet/recap/internal/slack"
	"github.com/kalambet/recap/internal/storage"
	"github.com/kalambet/recap/internal/syncer"
	"github.com/kalambet/recap/internal/workflow"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Store is the storage slice the API reads and writes.
type Store interface {
	CountMessages() (int, error)
	GetSummary(id string) (storage.Summary, error)
	ListSummaries(limit, offset int) ([]storage.Summary, error)
	GetPreferences() (storage.Preferences, error)
	UpdatePreferences(p storage.Preferences) error
	ListWorkflowRuns(limit int) ([]storage.WorkflowRun, error)
}

// SlackClient is the Slack slice the API depends on.
type SlackClient interface {
	Configured() bool
	AuthTest(ctx context.Context) (slackclient.AuthInfo, error)
	ListChannels(ctx context.Context) ([]slackclient.Channel, error)
}

// Synchronizer runs manual syncs.
type Synchronizer interface {
	Sync(ctx context.Context, window time.Duration) (syncer.Result, error)
}

// WorkflowRunner runs summary workflows.
type WorkflowRunner interface {
	Run(ctx context.Context, req workflow.Request) (*storage.Summary, error)
}

// EventHandler receives verified webhook events.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev pipeline.Event) error
}

// SummarizerInfo reports summarizer availability for health checks.
type SummarizerInfo interface {
	Configured() bool
	Model() string
}

// Deps holds everything the HTTP handler needs.
type Deps struct {
	Store         Store
	Slack         SlackClient
	Sync          Synchronizer
	Workflows     WorkflowRunner
	Events        EventHandler
	Summarizer    SummarizerInfo
	SigningSecret string
	Token         string
	Log           *slog.Logger
}

// NewHandler assembles the full HTTP route tree. The webhook endpoint is
// Slack-signed rather than bearer-authenticated; everything else under /api
// requires the token when one is configured.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))
	r.Post("/api/slack/events", handleSlackEvents(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/api/slack/channels", handleListChannels(deps))
		r.Post("/api/slack/sync", handleSync(deps))
		r.Post("/api/summary/generate", handleGenerateSummary(deps))
		r.Get("/api/summary/history", handleSummaryHistory(deps))
		r.Get("/api/reports", handleListReports(deps))
		r.Get("/api/reports/{id}/pdf", handleReportPDF(deps))
		r.Get("/api/preferences", handleGetPreferences(deps))
		r.Put("/api/preferences", handlePutPreferences(deps))
		r.Get("/api/workflows", handleListWorkflows(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := map[string]string{
			"store":      "ok",
			"slack":      "ok",
			"summarizer": "ok",
		}
		status := "ok"

		count, err := deps.Store.CountMessages()
		if err != nil {
			components["store"] = "error"
			status = "degraded"
		}
		if !deps.Slack.Configured() {
			components["slack"] = "not_configured"
			status = "degraded"
		}
		if !deps.Summarizer.Configured() {
			components["summarizer"] = "not_configured"
			status = "degraded"
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":     status,
			"components": components,
			"messages":   count,
			"model":      deps.Summarizer.Model(),
		})
	}
}
