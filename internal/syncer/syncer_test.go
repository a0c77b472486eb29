package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kalambet/recap/internal/slack"
	"github.com/kalambet/recap/internal/storage"
)

type mockSlack struct {
	channels   []slack.Channel
	listErr    error
	history    map[string][]slack.RawMessage
	historyErr map[string]error
	replies    map[string][]slack.RawMessage
	repliesErr error
	primed     map[string]string
	replyCalls int
}

func (m *mockSlack) ListChannels(context.Context) ([]slack.Channel, error) {
	return m.channels, m.listErr
}

func (m *mockSlack) History(_ context.Context, channelID string, _, _ time.Time) ([]slack.RawMessage, error) {
	if err := m.historyErr[channelID]; err != nil {
		return nil, err
	}
	return m.history[channelID], nil
}

func (m *mockSlack) Replies(_ context.Context, _, threadTS string) ([]slack.RawMessage, error) {
	m.replyCalls++
	if m.repliesErr != nil {
		return nil, m.repliesErr
	}
	return m.replies[threadTS], nil
}

func (m *mockSlack) PrimeChannelName(id, name string) {
	if m.primed == nil {
		m.primed = map[string]string{}
	}
	m.primed[id] = name
}

func (m *mockSlack) UserName(context.Context, string) string { return "dana" }

func (m *mockSlack) ChannelName(_ context.Context, id string) string {
	if name, ok := m.primed[id]; ok {
		return name
	}
	return id
}

type mockStore struct {
	prefs    storage.Preferences
	prefsErr error
	upserted []storage.Message
	existing map[string]bool
}

func (m *mockStore) UpsertMessage(msg storage.Message) (bool, error) {
	m.upserted = append(m.upserted, msg)
	if m.existing[msg.ID] {
		return false, nil
	}
	return true, nil
}

func (m *mockStore) GetPreferences() (storage.Preferences, error) {
	if m.prefsErr != nil {
		return storage.Preferences{}, m.prefsErr
	}
	return m.prefs, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func raw(ts, text string) slack.RawMessage {
	return slack.RawMessage{Type: "message", Ts: ts, User: "U123", Text: text}
}

func TestSyncStoresAcrossChannels(t *testing.T) {
	sl := &mockSlack{
		channels: []slack.Channel{{ID: "C1", Name: "general"}, {ID: "C2", Name: "dev"}},
		history: map[string][]slack.RawMessage{
			"C1": {raw("1710000000.000100", "hello"), raw("1710000001.000100", "world")},
			"C2": {raw("1710000002.000100", "ship it")},
		},
	}
	st := &mockStore{prefs: storage.DefaultPreferences()}

	res, err := New(sl, st, discardLogger()).Sync(t.Context(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.ChannelsProcessed != 2 || res.ChannelsFailed != 0 {
		t.Errorf("channels = %d/%d failed", res.ChannelsProcessed, res.ChannelsFailed)
	}
	if res.MessagesStored != 3 {
		t.Errorf("MessagesStored = %d, want 3", res.MessagesStored)
	}
	if got := res.Latest.Sub(res.Oldest); got != 24*time.Hour {
		t.Errorf("window = %v", got)
	}
	if sl.primed["C2"] != "dev" {
		t.Error("channel names should be primed from the listing")
	}
	if st.upserted[0].ChannelName != "general" {
		t.Errorf("ChannelName = %q, want primed name", st.upserted[0].ChannelName)
	}
}

func TestSyncChannelFailureIsolated(t *testing.T) {
	sl := &mockSlack{
		channels: []slack.Channel{{ID: "C1", Name: "general"}, {ID: "C2", Name: "dev"}},
		history: map[string][]slack.RawMessage{
			"C2": {raw("1710000002.000100", "still here")},
		},
		historyErr: map[string]error{"C1": errors.New("rate limited")},
	}
	st := &mockStore{prefs: storage.DefaultPreferences()}

	res, err := New(sl, st, discardLogger()).Sync(t.Context(), time.Hour)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.ChannelsFailed != 1 || res.ChannelsProcessed != 1 {
		t.Errorf("channels = %d ok / %d failed, want 1/1", res.ChannelsProcessed, res.ChannelsFailed)
	}
	if res.MessagesStored != 1 {
		t.Errorf("MessagesStored = %d, want 1", res.MessagesStored)
	}
}

func TestSyncListFailureFatal(t *testing.T) {
	sl := &mockSlack{listErr: errors.New("invalid_auth")}
	st := &mockStore{prefs: storage.DefaultPreferences()}
	if _, err := New(sl, st, discardLogger()).Sync(t.Context(), time.Hour); err == nil {
		t.Fatal("expected error when channel listing fails")
	}
}

func TestSyncFetchesThreadReplies(t *testing.T) {
	parent := raw("1710000000.000100", "parent")
	parent.ThreadTS = parent.Ts
	parent.ReplyCount = 2

	reply := raw("1710000003.000100", "reply")
	reply.ThreadTS = parent.Ts

	sl := &mockSlack{
		channels: []slack.Channel{{ID: "C1", Name: "general"}},
		history:  map[string][]slack.RawMessage{"C1": {parent}},
		replies:  map[string][]slack.RawMessage{parent.Ts: {reply}},
	}
	st := &mockStore{prefs: storage.DefaultPreferences()}

	res, err := New(sl, st, discardLogger()).Sync(t.Context(), time.Hour)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.MessagesStored != 2 {
		t.Errorf("MessagesStored = %d, want parent and reply", res.MessagesStored)
	}
}

func TestSyncSkipsThreadsWhenDisabled(t *testing.T) {
	parent := raw("1710000000.000100", "parent")
	parent.ThreadTS = parent.Ts
	parent.ReplyCount = 2

	prefs := storage.DefaultPreferences()
	prefs.IncludeThreads = false

	sl := &mockSlack{
		channels: []slack.Channel{{ID: "C1", Name: "general"}},
		history:  map[string][]slack.RawMessage{"C1": {parent}},
	}
	st := &mockStore{prefs: prefs}

	if _, err := New(sl, st, discardLogger()).Sync(t.Context(), time.Hour); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if sl.replyCalls != 0 {
		t.Errorf("replyCalls = %d, want 0", sl.replyCalls)
	}
}

func TestSyncThreadFetchFailureKeepsChannel(t *testing.T) {
	parent := raw("1710000000.000100", "parent")
	parent.ThreadTS = parent.Ts
	parent.ReplyCount = 1

	sl := &mockSlack{
		channels:   []slack.Channel{{ID: "C1", Name: "general"}},
		history:    map[string][]slack.RawMessage{"C1": {parent}},
		repliesErr: errors.New("thread_not_found"),
	}
	st := &mockStore{prefs: storage.DefaultPreferences()}

	res, err := New(sl, st, discardLogger()).Sync(t.Context(), time.Hour)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.ChannelsProcessed != 1 || res.MessagesStored != 1 {
		t.Errorf("got %d channels / %d stored, want 1/1", res.ChannelsProcessed, res.MessagesStored)
	}
}

func TestSyncCountsDuplicatesAsSeenNotStored(t *testing.T) {
	sl := &mockSlack{
		channels: []slack.Channel{{ID: "C1", Name: "general"}},
		history:  map[string][]slack.RawMessage{"C1": {raw("1710000000.000100", "already there")}},
	}
	st := &mockStore{
		prefs:    storage.DefaultPreferences(),
		existing: map[string]bool{"1710000000.000100": true},
	}

	res, err := New(sl, st, discardLogger()).Sync(t.Context(), time.Hour)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.MessagesSeen != 1 || res.MessagesStored != 0 {
		t.Errorf("seen/stored = %d/%d, want 1/0", res.MessagesSeen, res.MessagesStored)
	}
}
