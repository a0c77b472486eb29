// Package syncer pulls recent channel history from Slack into local storage.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/recap/internal/normalize"
	"github.com/kalambet/recap/internal/slack"
	"github.com/kalambet/recap/internal/storage"
)

// ChannelLister is the slice of the Slack client the syncer depends on.
type ChannelLister interface {
	normalize.IdentityResolver
	ListChannels(ctx context.Context) ([]slack.Channel, error)
	History(ctx context.Context, channelID string, oldest, latest time.Time) ([]slack.RawMessage, error)
	Replies(ctx context.Context, channelID, threadTS string) ([]slack.RawMessage, error)
	PrimeChannelName(id, name string)
}

// Store is the storage slice the syncer writes through.
type Store interface {
	UpsertMessage(m storage.Message) (bool, error)
	GetPreferences() (storage.Preferences, error)
}

// Result reports what a sync pass covered.
type Result struct {
	ChannelsProcessed int       `json:"channels_processed"`
	ChannelsFailed    int       `json:"channels_failed"`
	MessagesSeen      int       `json:"messages_seen"`
	MessagesStored    int       `json:"messages_stored"`
	Oldest            time.Time `json:"oldest"`
	Latest            time.Time `json:"latest"`
}

// Syncer walks every channel the bot can read and upserts normalized
// messages.
type Syncer struct {
	slack ChannelLister
	store Store
	log   *slog.Logger
}

func New(sc ChannelLister, store Store, log *slog.Logger) *Syncer {
	return &Syncer{slack: sc, store: store, log: log}
}

// Sync fetches history for the trailing window across all visible channels.
// A failing channel is logged and skipped so one bad channel cannot sink the
// whole pass; Sync only errors when channel listing itself fails.
func (s *Syncer) Sync(ctx context.Context, window time.Duration) (Result, error) {
	latest := time.Now().UTC()
	oldest := latest.Add(-window)
	res := Result{Oldest: oldest, Latest: latest}

	prefs, err := s.store.GetPreferences()
	if err != nil {
		return res, fmt.Errorf("load preferences: %w", err)
	}

	channels, err := s.slack.ListChannels(ctx)
	if err != nil {
		return res, fmt.Errorf("list channels: %w", err)
	}

	for _, ch := range channels {
		s.slack.PrimeChannelName(ch.ID, ch.Name)
		seen, stored, err := s.syncChannel(ctx, ch, oldest, latest, prefs.IncludeThreads)
		res.MessagesSeen += seen
		res.MessagesStored += stored
		if err != nil {
			res.ChannelsFailed++
			s.log.Warn("channel sync failed", "channel", ch.Name, "error", err)
			continue
		}
		res.ChannelsProcessed++
	}

	s.log.Info("sync finished",
		"channels", res.ChannelsProcessed,
		"failed", res.ChannelsFailed,
		"stored", res.MessagesStored,
		"window", window.String())
	return res, nil
}

func (s *Syncer) syncChannel(ctx context.Context, ch slack.Channel, oldest, latest time.Time, includeThreads bool) (seen, stored int, err error) {
	history, err := s.slack.History(ctx, ch.ID, oldest, latest)
	if err != nil {
		return 0, 0, fmt.Errorf("history: %w", err)
	}

	for _, raw := range history {
		n, err := s.storeMessage(ctx, raw, ch.ID)
		seen++
		stored += n
		if err != nil {
			return seen, stored, err
		}

		if includeThreads && raw.IsThreadParent() {
			replies, err := s.slack.Replies(ctx, ch.ID, raw.Ts)
			if err != nil {
				// The parent is already stored; losing replies is not
				// worth failing the channel.
				s.log.Warn("thread fetch failed", "channel", ch.Name, "thread", raw.Ts, "error", err)
				continue
			}
			for _, reply := range replies {
				n, err := s.storeMessage(ctx, reply, ch.ID)
				seen++
				stored += n
				if err != nil {
					return seen, stored, err
				}
			}
		}
	}
	return seen, stored, nil
}

func (s *Syncer) storeMessage(ctx context.Context, raw slack.RawMessage, channelID string) (int, error) {
	msg, ok := normalize.Normalize(ctx, raw, channelID, s.slack)
	if !ok {
		return 0, nil
	}
	inserted, err := s.store.UpsertMessage(msg)
	if err != nil {
		return 0, fmt.Errorf("upsert message %s: %w", msg.ID, err)
	}
	if inserted {
		return 1, nil
	}
	return 0, nil
}
