// Package workflow orchestrates summary generation end to end: notify the
// channel, sync fresh history, fetch the window, summarize, render a PDF,
// persist the result, and deliver it back.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kalambet/recap/internal/report"
	"github.com/kalambet/recap/internal/storage"
	"github.com/kalambet/recap/internal/syncer"
)

// Stage labels the step a run is on when it succeeds or fails.
type Stage string

const (
	StageNotified   Stage = "notified"
	StageSynced     Stage = "synced"
	StageFetched    Stage = "fetched"
	StageSummarized Stage = "summarized"
	StageRendered   Stage = "rendered"
	StagePersisted  Stage = "persisted"
	StageDelivered  Stage = "delivered"
)

// deliveryLimit caps the summary body posted back to the channel. The full
// text lives in the persisted summary and the PDF.
const deliveryLimit = 1500

const syncWindow = 24 * time.Hour

// Poster posts messages and files back to the workspace.
type Poster interface {
	PostMessage(ctx context.Context, channel, text, threadTS string) error
	UploadFile(ctx context.Context, channel, path, title, comment string) error
}

// Synchronizer refreshes local history before a summary.
type Synchronizer interface {
	Sync(ctx context.Context, window time.Duration) (syncer.Result, error)
}

// Summarizer generates summary text from a message window.
type Summarizer interface {
	Summarize(ctx context.Context, msgs []storage.Message, summaryType, style string) (string, error)
	Custom(ctx context.Context, msgs []storage.Message, prompt string) (string, error)
}

// Renderer writes the summary to a PDF file.
type Renderer interface {
	Render(text string, meta report.Meta) (string, error)
}

// Store is the storage slice the orchestrator reads and writes.
type Store interface {
	QueryMessages(start, end time.Time, channels []string) ([]storage.Message, error)
	SaveSummary(s storage.Summary) error
	GetPreferences() (storage.Preferences, error)
	SaveWorkflowRun(r storage.WorkflowRun) error
	FinishWorkflowRun(id, status, lastError string) error
}

// Request describes a single summary run.
type Request struct {
	Type         string   // "EOD" or "EOW"
	Channels     []string // empty = all channels
	Style        string   // empty = preference default
	CustomPrompt string   // non-empty replaces the standard summary prompt
	ReplyChannel string   // where to notify and deliver; empty = silent run
	ThreadTS     string   // reply in-thread when set
}

// Error is a run failure pinned to the stage it happened at.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("workflow failed at %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Orchestrator runs summary workflows.
type Orchestrator struct {
	poster     Poster
	sync       Synchronizer
	summarizer Summarizer
	renderer   Renderer
	store      Store
	log        *slog.Logger
	now        func() time.Time
}

func New(poster Poster, sync Synchronizer, summarizer Summarizer, renderer Renderer, store Store, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		poster:     poster,
		sync:       sync,
		summarizer: summarizer,
		renderer:   renderer,
		store:      store,
		log:        log,
		now:        time.Now,
	}
}

// Run executes the workflow and returns the persisted summary. On a zero
// message window it returns (nil, nil) after telling the channel there was
// nothing to summarize. On failure it posts a single notice naming the stage
// and returns a *Error.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*storage.Summary, error) {
	runID := uuid.NewString()
	started := o.now().UTC()
	if err := o.store.SaveWorkflowRun(storage.WorkflowRun{
		ID:        runID,
		Kind:      req.Type,
		Status:    "running",
		StartedAt: started,
	}); err != nil {
		return nil, fmt.Errorf("record workflow run: %w", err)
	}

	summary, err := o.run(ctx, req)
	if err != nil {
		o.finish(runID, "failed", err.Error())
		o.notifyFailure(ctx, req, err)
		return nil, err
	}
	o.finish(runID, "completed", "")
	return summary, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request) (*storage.Summary, error) {
	prefs, err := o.store.GetPreferences()
	if err != nil {
		return nil, &Error{Stage: StageNotified, Err: err}
	}
	style := req.Style
	if style == "" {
		style = prefs.SummaryStyle
	}

	// Notified. Best effort: a failed notice never aborts the run.
	if req.ReplyChannel != "" {
		notice := fmt.Sprintf("Generating your %s summary, this may take a moment...", req.Type)
		if err := o.poster.PostMessage(ctx, req.ReplyChannel, notice, req.ThreadTS); err != nil {
			o.log.Warn("progress notice failed", "channel", req.ReplyChannel, "error", err)
		}
	}

	// Synced. Stale data beats no summary, so a failed sync only logs.
	if _, err := o.sync.Sync(ctx, syncWindow); err != nil {
		o.log.Warn("pre-summary sync failed", "error", err)
	}

	// Fetched.
	start, end := o.window(req.Type)
	messages, err := o.store.QueryMessages(start, end, req.Channels)
	if err != nil {
		return nil, &Error{Stage: StageFetched, Err: err}
	}
	if len(messages) == 0 {
		if req.ReplyChannel != "" {
			text := fmt.Sprintf("No messages found for the %s window, nothing to summarize.", req.Type)
			if err := o.poster.PostMessage(ctx, req.ReplyChannel, text, req.ThreadTS); err != nil {
				return nil, &Error{Stage: StageDelivered, Err: err}
			}
		}
		o.log.Info("summary window empty", "type", req.Type, "start", start, "end", end)
		return nil, nil
	}

	// Summarized.
	var text string
	if req.CustomPrompt != "" {
		text, err = o.summarizer.Custom(ctx, messages, req.CustomPrompt)
	} else {
		text, err = o.summarizer.Summarize(ctx, messages, req.Type, style)
	}
	if err != nil {
		return nil, &Error{Stage: StageSummarized, Err: err}
	}

	// Rendered.
	summary := storage.Summary{
		ID:           uuid.NewString(),
		Type:         req.Type,
		SummaryText:  text,
		MessageCount: len(messages),
		Channels:     marshalChannels(req.Channels),
		GeneratedAt:  o.now().UTC(),
		RangeStart:   start,
		RangeEnd:     end,
	}
	pdfPath, err := o.renderer.Render(text, report.Meta{
		ID:           summary.ID,
		Type:         req.Type,
		Style:        style,
		GeneratedAt:  summary.GeneratedAt,
		MessageCount: len(messages),
		Channels:     req.Channels,
	})
	if err != nil {
		return nil, &Error{Stage: StageRendered, Err: err}
	}
	summary.PDFPath = pdfPath

	// Persisted.
	if err := o.store.SaveSummary(summary); err != nil {
		return nil, &Error{Stage: StagePersisted, Err: err}
	}

	// Delivered.
	if req.ReplyChannel != "" {
		if err := o.poster.PostMessage(ctx, req.ReplyChannel, deliveryText(&summary), req.ThreadTS); err != nil {
			return nil, &Error{Stage: StageDelivered, Err: err}
		}
		// The text already landed, so a failed PDF upload only logs.
		title := fmt.Sprintf("%s Summary %s", req.Type, summary.GeneratedAt.Format("2006-01-02"))
		if err := o.poster.UploadFile(ctx, req.ReplyChannel, pdfPath, title, "Full report"); err != nil {
			o.log.Warn("report upload failed", "channel", req.ReplyChannel, "error", err)
		}
	}

	o.log.Info("summary delivered",
		"type", req.Type,
		"id", summary.ID,
		"messages", summary.MessageCount,
		"channel", req.ReplyChannel)
	return &summary, nil
}

// window maps the summary type to its time range. EOD covers the local
// calendar day so a late-evening run still captures the morning; EOW is a
// trailing seven days.
func (o *Orchestrator) window(summaryType string) (start, end time.Time) {
	now := o.now()
	if summaryType == "EOW" {
		return now.UTC().Add(-7 * 24 * time.Hour), now.UTC()
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).UTC(), now.UTC()
}

func deliveryText(s *storage.Summary) string {
	body := s.SummaryText
	if len(body) > deliveryLimit {
		cut := deliveryLimit
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "..."
	}
	return fmt.Sprintf("*%s Summary*\n\n%s\n\n_Summarized %d messages. Full report saved as PDF._", s.Type, body, s.MessageCount)
}

func (o *Orchestrator) notifyFailure(ctx context.Context, req Request, err error) {
	if req.ReplyChannel == "" {
		return
	}
	stage := Stage("start")
	cause := err.Error()
	if werr, ok := err.(*Error); ok {
		stage = werr.Stage
		cause = werr.Err.Error()
	}
	text := fmt.Sprintf("⚠️ %s summary failed at %s stage: %s", req.Type, stage, cause)
	if perr := o.poster.PostMessage(ctx, req.ReplyChannel, text, req.ThreadTS); perr != nil {
		o.log.Error("failure notice undeliverable", "channel", req.ReplyChannel, "error", perr)
	}
}

func (o *Orchestrator) finish(runID, status, lastError string) {
	if err := o.store.FinishWorkflowRun(runID, status, lastError); err != nil {
		o.log.Error("finish workflow run", "id", runID, "error", err)
	}
}

func marshalChannels(channels []string) string {
	if len(channels) == 0 {
		return "[]"
	}
	b, err := json.Marshal(channels)
	if err != nil {
		return "[]"
	}
	return string(b)
}
