package slack

import (
	"context"
	"net/url"
	"sync"
)

// identityCache remembers user and channel display names so repeated
// normalization does not hammer users.info / conversations.info.
type identityCache struct {
	mu       sync.RWMutex
	users    map[string]string
	channels map[string]string
}

func newIdentityCache() *identityCache {
	return &identityCache{
		users:    make(map[string]string),
		channels: make(map[string]string),
	}
}

// UserName resolves a user ID to a display name, preferring the profile
// display name, then the real name, then the account name. Lookup failures
// resolve to "unknown" and are not cached, so a transient error can recover.
func (c *Client) UserName(ctx context.Context, userID string) string {
	if userID == "" {
		return "unknown"
	}

	c.identity.mu.RLock()
	name, ok := c.identity.users[userID]
	c.identity.mu.RUnlock()
	if ok {
		return name
	}

	var resp struct {
		apiEnvelope
		User struct {
			Name     string `json:"name"`
			RealName string `json:"real_name"`
			Profile  struct {
				DisplayName string `json:"display_name"`
			} `json:"profile"`
		} `json:"user"`
	}
	if err := c.call(ctx, "users.info", url.Values{"user": {userID}}, &resp); err != nil {
		return "unknown"
	}

	name = resp.User.Profile.DisplayName
	if name == "" {
		name = resp.User.RealName
	}
	if name == "" {
		name = resp.User.Name
	}
	if name == "" {
		name = "unknown"
	}

	c.identity.mu.Lock()
	c.identity.users[userID] = name
	c.identity.mu.Unlock()
	return name
}

// ChannelName resolves a channel ID to its name. Failures resolve to
// "unknown" without caching.
func (c *Client) ChannelName(ctx context.Context, channelID string) string {
	if channelID == "" {
		return "unknown"
	}

	c.identity.mu.RLock()
	name, ok := c.identity.channels[channelID]
	c.identity.mu.RUnlock()
	if ok {
		return name
	}

	var resp struct {
		apiEnvelope
		Channel struct {
			Name string `json:"name"`
		} `json:"channel"`
	}
	if err := c.call(ctx, "conversations.info", url.Values{"channel": {channelID}}, &resp); err != nil {
		return "unknown"
	}

	name = resp.Channel.Name
	if name == "" {
		name = "unknown"
	}

	c.identity.mu.Lock()
	c.identity.channels[channelID] = name
	c.identity.mu.Unlock()
	return name
}

// PrimeChannelName seeds the channel cache, used when the listing already
// carried the name.
func (c *Client) PrimeChannelName(channelID, name string) {
	if channelID == "" || name == "" {
		return
	}
	c.identity.mu.Lock()
	c.identity.channels[channelID] = name
	c.identity.mu.Unlock()
}
