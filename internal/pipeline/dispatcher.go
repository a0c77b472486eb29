// Package pipeline routes incoming Slack events: gates duplicate deliveries,
// stores channel messages, and turns bot mentions into commands.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/recap/internal/dedup"
	"github.com/kalambet/recap/internal/intent"
	"github.com/kalambet/recap/internal/normalize"
	"github.com/kalambet/recap/internal/slack"
	"github.com/kalambet/recap/internal/storage"
	"github.com/kalambet/recap/internal/syncer"
	"github.com/kalambet/recap/internal/workflow"
)

const helpText = "Here's what I can do:\n" +
	"• `eod` – generate an end-of-day summary\n" +
	"• `eow` – generate an end-of-week summary\n" +
	"• `sync` – pull the latest channel history\n" +
	"• `help` – show this message"

const unknownText = "Sorry, I didn't catch that. Mention me with `help` to see what I can do."

const commandKeyTextLen = 50

// Event is the inner event object of a Slack Events API callback.
type Event struct {
	slack.RawMessage
	Channel string `json:"channel"`
	EventTS string `json:"event_ts"`
}

// Poster posts replies back to the workspace.
type Poster interface {
	PostMessage(ctx context.Context, channel, text, threadTS string) error
}

// Store persists normalized messages.
type Store interface {
	UpsertMessage(m storage.Message) (bool, error)
}

// WorkflowRunner executes summary workflows.
type WorkflowRunner interface {
	Run(ctx context.Context, req workflow.Request) (*storage.Summary, error)
}

// Synchronizer refreshes channel history on demand.
type Synchronizer interface {
	Sync(ctx context.Context, window time.Duration) (syncer.Result, error)
}

// Dispatcher is the webhook-facing entry point. Slack delivers events at
// least once, so two bounded recent-sets drop redeliveries before any work
// happens.
type Dispatcher struct {
	events   *dedup.RecentSet
	commands *dedup.RecentSet
	store    Store
	ids      normalize.IdentityResolver
	poster   Poster
	runner   WorkflowRunner
	sync     Synchronizer
	log      *slog.Logger

	// spawn runs command work off the webhook goroutine so the HTTP ack
	// stays fast. Replaced with a synchronous fn in tests.
	spawn func(fn func())
}

func New(store Store, ids normalize.IdentityResolver, poster Poster, runner WorkflowRunner, sync Synchronizer, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		events:   dedup.NewRecentSet(dedup.EventCapacity),
		commands: dedup.NewRecentSet(dedup.CommandCapacity),
		store:    store,
		ids:      ids,
		poster:   poster,
		runner:   runner,
		sync:     sync,
		log:      log,
		spawn:    func(fn func()) { go fn() },
	}
}

// HandleEvent processes one webhook event. Redeliveries and uninteresting
// event types are dropped silently.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev Event) error {
	key := eventKey(ev)
	if d.events.Seen(key) {
		d.log.Debug("duplicate event dropped", "key", key)
		return nil
	}
	d.events.Record(key)

	switch ev.Type {
	case "message":
		return d.handleMessage(ctx, ev)
	case "app_mention":
		d.handleMention(ctx, ev)
		return nil
	default:
		d.log.Debug("ignoring event", "type", ev.Type)
		return nil
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, ev Event) error {
	msg, ok := normalize.Normalize(ctx, ev.RawMessage, ev.Channel, d.ids)
	if !ok {
		return nil
	}
	inserted, err := d.store.UpsertMessage(msg)
	if err != nil {
		return fmt.Errorf("store message %s: %w", msg.ID, err)
	}
	if inserted {
		d.log.Debug("message stored", "channel", ev.Channel, "ts", ev.Ts)
	}
	return nil
}

// handleMention classifies the mention and dispatches the command. The
// command recent-set guards separately from the event set: Slack can wrap
// the same mention in distinct deliveries.
func (d *Dispatcher) handleMention(ctx context.Context, ev Event) {
	key := commandKey(ev)
	if d.commands.Seen(key) {
		d.log.Debug("duplicate command dropped", "key", key)
		return
	}
	d.commands.Record(key)

	in := intent.Classify(ev.Text)
	d.log.Info("command received", "intent", in.String(), "channel", ev.Channel, "user", ev.User)

	// Detach from the webhook request context: Slack only gives the
	// endpoint a few seconds before it retries.
	bg := context.WithoutCancel(ctx)
	switch in {
	case intent.GenerateEOD:
		d.spawn(func() { d.runSummary(bg, "EOD", ev) })
	case intent.GenerateEOW:
		d.spawn(func() { d.runSummary(bg, "EOW", ev) })
	case intent.Sync:
		d.spawn(func() { d.runSync(bg, ev) })
	case intent.Help:
		d.reply(ctx, ev, helpText)
	default:
		d.reply(ctx, ev, unknownText)
	}
}

func (d *Dispatcher) runSummary(ctx context.Context, summaryType string, ev Event) {
	_, err := d.runner.Run(ctx, workflow.Request{
		Type:         summaryType,
		ReplyChannel: ev.Channel,
		ThreadTS:     ev.ThreadTS,
	})
	if err != nil {
		// The orchestrator already posted the failure notice.
		d.log.Error("summary command failed", "type", summaryType, "error", err)
	}
}

func (d *Dispatcher) runSync(ctx context.Context, ev Event) {
	res, err := d.sync.Sync(ctx, 24*time.Hour)
	if err != nil {
		d.reply(ctx, ev, fmt.Sprintf("⚠️ Sync failed: %s", err))
		return
	}
	d.reply(ctx, ev, fmt.Sprintf("Synced %d new messages across %d channels.", res.MessagesStored, res.ChannelsProcessed))
}

func (d *Dispatcher) reply(ctx context.Context, ev Event, text string) {
	if err := d.poster.PostMessage(ctx, ev.Channel, text, ev.ThreadTS); err != nil {
		d.log.Warn("reply failed", "channel", ev.Channel, "error", err)
	}
}

func eventKey(ev Event) string {
	return strings.Join([]string{ev.Type, ev.Ts, ev.EventTS, ev.User, ev.Channel}, "|")
}

func commandKey(ev Event) string {
	text := ev.Text
	if len(text) > commandKeyTextLen {
		text = text[:commandKeyTextLen]
	}
	return strings.Join([]string{ev.User, ev.Channel, ev.Ts, text}, "|")
}
