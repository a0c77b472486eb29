package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/recap/internal/storage"
	"github.com/kalambet/recap/internal/workflow"
)

const summaryPreviewLen = 200

func handleListChannels(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channels, err := deps.Slack.ListChannels(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "listing channels: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
	}
}

func handleSync(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		req := struct {
			WindowHours int `json:"window_hours"`
		}{WindowHours: 24}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.WindowHours <= 0 || req.WindowHours > 24*30 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "window_hours must be between 1 and %d", 24*30)
			return
		}

		res, err := deps.Sync.Sync(r.Context(), time.Duration(req.WindowHours)*time.Hour)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "sync failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type generateRequest struct {
	Type         string   `json:"type"`
	Channels     []string `json:"channels"`
	Style        string   `json:"style"`
	CustomPrompt string   `json:"custom_prompt"`
}

func handleGenerateSummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Type != "EOD" && req.Type != "EOW" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "type must be EOD or EOW")
			return
		}

		summary, err := deps.Workflows.Run(r.Context(), workflow.Request{
			Type:         req.Type,
			Channels:     req.Channels,
			Style:        req.Style,
			CustomPrompt: req.CustomPrompt,
		})
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "summary generation failed: %v", err)
			return
		}
		if summary == nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"summary": nil,
				"message": "no messages found in the requested window",
			})
			return
		}
		writeJSON(w, http.StatusOK, summaryResponse(*summary))
	}
}

func handleSummaryHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 10, 100)
		offset := queryInt(r, "offset", 0, 1<<30)

		summaries, err := deps.Store.ListSummaries(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing summaries: %v", err)
			return
		}

		type preview struct {
			ID           string    `json:"id"`
			Type         string    `json:"type"`
			Preview      string    `json:"preview"`
			MessageCount int       `json:"message_count"`
			GeneratedAt  time.Time `json:"generated_at"`
		}
		out := make([]preview, len(summaries))
		for i, s := range summaries {
			out[i] = preview{
				ID:           s.ID,
				Type:         s.Type,
				Preview:      truncateRunes(s.SummaryText, summaryPreviewLen),
				MessageCount: s.MessageCount,
				GeneratedAt:  s.GeneratedAt,
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"summaries": out})
	}
}

func handleListReports(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summaries, err := deps.Store.ListSummaries(queryInt(r, "limit", 50, 500), 0)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing reports: %v", err)
			return
		}

		type reportInfo struct {
			ID          string    `json:"id"`
			Type        string    `json:"type"`
			GeneratedAt time.Time `json:"generated_at"`
			PDFURL      string    `json:"pdf_url"`
		}
		var out []reportInfo
		for _, s := range summaries {
			if s.PDFPath == "" {
				continue
			}
			out = append(out, reportInfo{
				ID:          s.ID,
				Type:        s.Type,
				GeneratedAt: s.GeneratedAt,
				PDFURL:      fmt.Sprintf("/api/reports/%s/pdf", s.ID),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"reports": out})
	}
}

func handleReportPDF(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		summary, err := deps.Store.GetSummary(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "no summary with id %s", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading summary: %v", err)
			return
		}
		if summary.PDFPath == "" {
			httpError(w, http.StatusNotFound, "not_found_error", "summary %s has no rendered report", id)
			return
		}
		if _, err := os.Stat(summary.PDFPath); err != nil {
			httpError(w, http.StatusNotFound, "not_found_error", "report file missing for summary %s", id)
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".pdf"))
		http.ServeFile(w, r, summary.PDFPath)
	}
}

func handleGetPreferences(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prefs, err := deps.Store.GetPreferences()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading preferences: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, preferencesResponse(prefs))
	}
}

// preferencesUpdate uses pointer fields so a PUT can change a subset without
// clobbering the rest.
type preferencesUpdate struct {
	SummaryStyle        *string  `json:"summary_style"`
	IncludeThreads      *bool    `json:"include_threads"`
	FilterChannels      []string `json:"filter_channels"`
	ReportFrequency     *string  `json:"report_frequency"`
	SlackUserID         *string  `json:"slack_user_id"`
	NotificationChannel *string  `json:"notification_channel"`
}

func handlePutPreferences(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var update preferencesUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if update.SummaryStyle != nil && !validStyle(*update.SummaryStyle) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "summary_style must be technical, executive, or detailed")
			return
		}

		prefs, err := deps.Store.GetPreferences()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading preferences: %v", err)
			return
		}

		if update.SummaryStyle != nil {
			prefs.SummaryStyle = *update.SummaryStyle
		}
		if update.IncludeThreads != nil {
			prefs.IncludeThreads = *update.IncludeThreads
		}
		if update.FilterChannels != nil {
			b, err := json.Marshal(update.FilterChannels)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid filter_channels: %v", err)
				return
			}
			prefs.FilterChannels = string(b)
		}
		if update.ReportFrequency != nil {
			prefs.ReportFrequency = *update.ReportFrequency
		}
		if update.SlackUserID != nil {
			prefs.SlackUserID = *update.SlackUserID
		}
		if update.NotificationChannel != nil {
			prefs.NotificationChannel = *update.NotificationChannel
		}

		if err := deps.Store.UpdatePreferences(prefs); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving preferences: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, preferencesResponse(prefs))
	}
}

func handleListWorkflows(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := deps.Store.ListWorkflowRuns(queryInt(r, "limit", 20, 200))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing workflow runs: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"workflows": runs})
	}
}

func summaryResponse(s storage.Summary) map[string]any {
	resp := map[string]any{
		"id":            s.ID,
		"type":          s.Type,
		"summary_text":  s.SummaryText,
		"message_count": s.MessageCount,
		"generated_at":  s.GeneratedAt,
		"range_start":   s.RangeStart,
		"range_end":     s.RangeEnd,
	}
	if s.PDFPath != "" {
		resp["pdf_url"] = fmt.Sprintf("/api/reports/%s/pdf", s.ID)
	}
	return resp
}

func preferencesResponse(p storage.Preferences) map[string]any {
	var channels []string
	if err := json.Unmarshal([]byte(p.FilterChannels), &channels); err != nil {
		channels = nil
	}
	return map[string]any{
		"summary_style":        p.SummaryStyle,
		"include_threads":      p.IncludeThreads,
		"filter_channels":      channels,
		"report_frequency":     p.ReportFrequency,
		"slack_user_id":        p.SlackUserID,
		"notification_channel": p.NotificationChannel,
		"updated_at":           p.UpdatedAt,
	}
}

func validStyle(style string) bool {
	switch style {
	case "technical", "executive", "detailed":
		return true
	}
	return false
}

func queryInt(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
