package pipeline

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/recap/internal/slack"
	"github.com/kalambet/recap/internal/storage"
	"github.com/kalambet/recap/internal/syncer"
	"github.com/kalambet/recap/internal/workflow"
)

type mockStore struct {
	upserted []storage.Message
}

func (m *mockStore) UpsertMessage(msg storage.Message) (bool, error) {
	m.upserted = append(m.upserted, msg)
	return true, nil
}

type mockResolver struct{}

func (mockResolver) UserName(context.Context, string) string { return "dana" }

func (mockResolver) ChannelName(context.Context, string) string { return "general" }

type mockPoster struct {
	posts []string
}

func (m *mockPoster) PostMessage(_ context.Context, _, text, _ string) error {
	m.posts = append(m.posts, text)
	return nil
}

type mockRunner struct {
	requests []workflow.Request
}

func (m *mockRunner) Run(_ context.Context, req workflow.Request) (*storage.Summary, error) {
	m.requests = append(m.requests, req)
	return &storage.Summary{ID: "sum-1"}, nil
}

type mockSync struct {
	calls int
}

func (m *mockSync) Sync(context.Context, time.Duration) (syncer.Result, error) {
	m.calls++
	return syncer.Result{ChannelsProcessed: 2, MessagesStored: 5}, nil
}

type fixture struct {
	store  *mockStore
	poster *mockPoster
	runner *mockRunner
	sync   *mockSync
	d      *Dispatcher
}

func newFixture() *fixture {
	f := &fixture{
		store:  &mockStore{},
		poster: &mockPoster{},
		runner: &mockRunner{},
		sync:   &mockSync{},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.d = New(f.store, mockResolver{}, f.poster, f.runner, f.sync, log)
	f.d.spawn = func(fn func()) { fn() }
	return f
}

func messageEvent(ts, text string) Event {
	return Event{
		RawMessage: slack.RawMessage{Type: "message", Ts: ts, User: "U123", Text: text},
		Channel:    "C1",
		EventTS:    ts,
	}
}

func mentionEvent(ts, text string) Event {
	ev := messageEvent(ts, text)
	ev.Type = "app_mention"
	return ev
}

func TestHandleEventStoresMessage(t *testing.T) {
	f := newFixture()
	if err := f.d.HandleEvent(t.Context(), messageEvent("1710000000.000100", "shipped the fix")); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(f.store.upserted) != 1 {
		t.Fatalf("upserted %d messages, want 1", len(f.store.upserted))
	}
	if f.store.upserted[0].ChannelID != "C1" {
		t.Errorf("channel = %q", f.store.upserted[0].ChannelID)
	}
}

func TestHandleEventDropsRedelivery(t *testing.T) {
	f := newFixture()
	ev := messageEvent("1710000000.000100", "once only")
	for i := 0; i < 3; i++ {
		if err := f.d.HandleEvent(t.Context(), ev); err != nil {
			t.Fatalf("HandleEvent: %v", err)
		}
	}
	if len(f.store.upserted) != 1 {
		t.Errorf("upserted %d messages, want 1", len(f.store.upserted))
	}
}

func TestHandleEventDistinguishesDeliveries(t *testing.T) {
	f := newFixture()
	a := messageEvent("1710000000.000100", "first")
	b := messageEvent("1710000001.000100", "second")
	_ = f.d.HandleEvent(t.Context(), a)
	_ = f.d.HandleEvent(t.Context(), b)
	if len(f.store.upserted) != 2 {
		t.Errorf("upserted %d messages, want 2", len(f.store.upserted))
	}
}

func TestHandleEventIgnoresUnknownTypes(t *testing.T) {
	f := newFixture()
	ev := messageEvent("1710000000.000100", "x")
	ev.Type = "reaction_added"
	if err := f.d.HandleEvent(t.Context(), ev); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(f.store.upserted) != 0 {
		t.Error("unknown event types must not be stored")
	}
}

func TestMentionEODRunsWorkflow(t *testing.T) {
	f := newFixture()
	ev := mentionEvent("1710000000.000100", "<@UBOT> please run eod")
	ev.ThreadTS = "1709990000.000100"
	if err := f.d.HandleEvent(t.Context(), ev); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(f.runner.requests) != 1 {
		t.Fatalf("workflow runs = %d, want 1", len(f.runner.requests))
	}
	req := f.runner.requests[0]
	if req.Type != "EOD" || req.ReplyChannel != "C1" || req.ThreadTS != ev.ThreadTS {
		t.Errorf("request = %+v", req)
	}
}

func TestMentionEOWRunsWorkflow(t *testing.T) {
	f := newFixture()
	_ = f.d.HandleEvent(t.Context(), mentionEvent("1710000000.000100", "weekly report please"))
	if len(f.runner.requests) != 1 || f.runner.requests[0].Type != "EOW" {
		t.Fatalf("requests = %+v", f.runner.requests)
	}
}

func TestMentionHelpReplies(t *testing.T) {
	f := newFixture()
	_ = f.d.HandleEvent(t.Context(), mentionEvent("1710000000.000100", "<@UBOT> help"))
	if len(f.poster.posts) != 1 || !strings.Contains(f.poster.posts[0], "end-of-day summary") {
		t.Errorf("posts = %q", f.poster.posts)
	}
	if len(f.runner.requests) != 0 {
		t.Error("help must not start a workflow")
	}
}

func TestMentionSyncRepliesWithResult(t *testing.T) {
	f := newFixture()
	_ = f.d.HandleEvent(t.Context(), mentionEvent("1710000000.000100", "<@UBOT> sync please"))
	if f.sync.calls != 1 {
		t.Fatalf("sync calls = %d", f.sync.calls)
	}
	if len(f.poster.posts) != 1 || !strings.Contains(f.poster.posts[0], "Synced 5 new messages across 2 channels") {
		t.Errorf("posts = %q", f.poster.posts)
	}
}

func TestMentionUnknownReplies(t *testing.T) {
	f := newFixture()
	_ = f.d.HandleEvent(t.Context(), mentionEvent("1710000000.000100", "<@UBOT> make coffee"))
	if len(f.poster.posts) != 1 || !strings.Contains(f.poster.posts[0], "didn't catch that") {
		t.Errorf("posts = %q", f.poster.posts)
	}
}

func TestDuplicateCommandDropped(t *testing.T) {
	f := newFixture()
	// Same mention arriving under two different event envelopes.
	first := mentionEvent("1710000000.000100", "run eod")
	second := mentionEvent("1710000000.000100", "run eod")
	second.EventTS = "1710000000.000200"

	_ = f.d.HandleEvent(t.Context(), first)
	_ = f.d.HandleEvent(t.Context(), second)
	if len(f.runner.requests) != 1 {
		t.Errorf("workflow runs = %d, want 1", len(f.runner.requests))
	}
}

func TestCommandKeyUsesTextPrefix(t *testing.T) {
	long := strings.Repeat("x", 80)
	a := mentionEvent("1710000000.000100", long+"-tail-a")
	b := mentionEvent("1710000000.000100", long+"-tail-b")
	if commandKey(a) != commandKey(b) {
		t.Error("keys should match on the 50-char prefix")
	}
	c := mentionEvent("1710000000.000100", "short")
	if commandKey(a) == commandKey(c) {
		t.Error("different texts should produce different keys")
	}
}
