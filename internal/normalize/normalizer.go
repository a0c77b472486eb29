// Package normalize converts raw Slack messages into the canonical record
// stored and summarized downstream. Automated and membership-change messages
// are filtered out; mention/link/emoji markup is rewritten to plain text.
package normalize

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/recap/internal/slack"
	"github.com/kalambet/recap/internal/storage"
)

// IdentityResolver resolves platform IDs to display names.
// Implemented by *slack.Client.
type IdentityResolver interface {
	UserName(ctx context.Context, userID string) string
	ChannelName(ctx context.Context, channelID string) string
}

// droppedSubtypes marks messages produced by automation or membership
// changes; they carry no content worth summarizing.
var droppedSubtypes = map[string]struct{}{
	"bot_message":     {},
	"channel_join":    {},
	"channel_leave":   {},
	"channel_topic":   {},
	"channel_purpose": {},
	"message_changed": {},
	"message_deleted": {},
}

var userIDPattern = regexp.MustCompile(`^[UW][A-Z0-9]+$`)

// Cleaning rules, applied in order. The order matters: labeled links must be
// rewritten before the bare-link rule would swallow them.
var (
	userMentionRe    = regexp.MustCompile(`<@[UW][A-Z0-9]+>`)
	channelMentionRe = regexp.MustCompile(`<#[A-Z0-9]+\|([^>]+)>`)
	labeledLinkRe    = regexp.MustCompile(`<https?://[^|>]+\|([^>]+)>`)
	bareLinkRe       = regexp.MustCompile(`<https?://[^>]+>`)
	emojiCodeRe      = regexp.MustCompile(`:[a-zA-Z0-9_+-]+:`)
)

// Normalize converts a raw message into a storage.Message. It returns
// ok=false (never an error) when the message should be skipped: automated
// subtypes, membership changes, missing or malformed author.
func Normalize(ctx context.Context, raw slack.RawMessage, channelID string, ids IdentityResolver) (storage.Message, bool) {
	if _, drop := droppedSubtypes[raw.Subtype]; drop {
		return storage.Message{}, false
	}
	if raw.BotID != "" {
		return storage.Message{}, false
	}
	if raw.User == "" || !userIDPattern.MatchString(raw.User) {
		return storage.Message{}, false
	}

	ts, err := ParseTimestamp(raw.Ts)
	if err != nil {
		return storage.Message{}, false
	}

	threadTS := raw.ThreadTS
	if threadTS == raw.Ts {
		// Thread parents reference themselves; only replies keep a parent pointer.
		threadTS = ""
	}

	msg := storage.Message{
		ID:          raw.Ts,
		ChannelID:   channelID,
		ChannelName: ids.ChannelName(ctx, channelID),
		UserID:      raw.User,
		Username:    ids.UserName(ctx, raw.User),
		Text:        raw.Text,
		CleanText:   CleanText(raw.Text),
		Timestamp:   ts,
		ThreadTS:    threadTS,
		Reactions:   string(raw.Reactions),
		Files:       string(raw.Files),
	}
	return msg, true
}

// CleanText strips Slack markup from message text: user mentions become
// "@user", channel mentions become "#<name>", labeled links keep the label,
// bare links become "[link]", emoji shortcodes vanish, and runs of
// whitespace collapse to single spaces.
func CleanText(text string) string {
	text = userMentionRe.ReplaceAllString(text, "@user")
	text = channelMentionRe.ReplaceAllString(text, "#$1")
	text = labeledLinkRe.ReplaceAllString(text, "$1")
	text = bareLinkRe.ReplaceAllString(text, "[link]")
	text = emojiCodeRe.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// ParseTimestamp converts a Slack timestamp string ("1700000000.000100")
// into a time.Time with microsecond precision.
func ParseTimestamp(ts string) (time.Time, error) {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(int64(f * 1e6)).UTC(), nil
}
