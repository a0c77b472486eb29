package slack

import "encoding/json"

// Channel is a conversation the bot can see.
type Channel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsPrivate  bool   `json:"is_private"`
	NumMembers int    `json:"num_members"`
}

// RawMessage mirrors the message shape returned by conversations.history and
// conversations.replies, and carried inside Events API payloads. It is the
// input to normalization; downstream code works with storage.Message.
type RawMessage struct {
	Type       string          `json:"type"`
	Subtype    string          `json:"subtype"`
	Ts         string          `json:"ts"`
	User       string          `json:"user"`
	BotID      string          `json:"bot_id"`
	Text       string          `json:"text"`
	ThreadTS   string          `json:"thread_ts"`
	ReplyCount int             `json:"reply_count"`
	Reactions  json.RawMessage `json:"reactions"`
	Files      json.RawMessage `json:"files"`
}

// IsThreadParent reports whether this message anchors a thread with replies.
func (m RawMessage) IsThreadParent() bool {
	return m.ThreadTS == m.Ts && m.ReplyCount > 0
}

// AuthInfo is the identity returned by auth.test.
type AuthInfo struct {
	BotID  string `json:"bot_id"`
	UserID string `json:"user_id"`
	User   string `json:"user"`
	Team   string `json:"team"`
}

// apiEnvelope holds the fields every Slack Web API response carries.
type apiEnvelope struct {
	OK               bool   `json:"ok"`
	Error            string `json:"error"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}
