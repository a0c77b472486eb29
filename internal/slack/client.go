// Package slack is a hand-rolled client for the subset of the Slack Web API
// the bot needs: channel enumeration, history and thread fetches, message
// posting, file upload, and identity lookups.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrNotConfigured is returned when an operation requires a bot token that
// was never provided. Startup tolerates the missing token (health reports
// degraded); operations do not.
var ErrNotConfigured = errors.New("slack bot token not configured")

const (
	defaultBaseURL = "https://slack.com/api"
	historyPageLimit = 200
)

// Client communicates with the Slack Web API over HTTP.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	identity   *identityCache
}

// New creates a Client using the given bot token. An empty token yields a
// client whose operations fail with ErrNotConfigured.
func New(token string) *Client {
	return NewWithBaseURL(token, defaultBaseURL)
}

// NewWithBaseURL creates a Client targeting a non-default API base URL.
// Tests point this at a local httptest server.
func NewWithBaseURL(token, baseURL string) *Client {
	return &Client{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		identity: newIdentityCache(),
	}
}

// Configured reports whether a bot token is present.
func (c *Client) Configured() bool {
	return c.token != ""
}

// AuthTest verifies the token and returns the bot's identity.
func (c *Client) AuthTest(ctx context.Context) (AuthInfo, error) {
	var resp struct {
		apiEnvelope
		AuthInfo
	}
	if err := c.call(ctx, "auth.test", nil, &resp); err != nil {
		return AuthInfo{}, err
	}
	return resp.AuthInfo, nil
}

// ListChannels returns all non-archived public and private channels visible
// to the bot, following cursors until the listing is exhausted.
func (c *Client) ListChannels(ctx context.Context) ([]Channel, error) {
	var channels []Channel
	cursor := ""
	for {
		params := url.Values{
			"exclude_archived": {"true"},
			"types":            {"public_channel,private_channel"},
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var resp struct {
			apiEnvelope
			Channels []Channel `json:"channels"`
		}
		if err := c.call(ctx, "conversations.list", params, &resp); err != nil {
			return nil, err
		}

		channels = append(channels, resp.Channels...)
		cursor = resp.ResponseMetadata.NextCursor
		if cursor == "" {
			return channels, nil
		}
	}
}

// History returns all channel messages with timestamps in [oldest, latest],
// following cursors until the range is exhausted.
func (c *Client) History(ctx context.Context, channelID string, oldest, latest time.Time) ([]RawMessage, error) {
	var messages []RawMessage
	cursor := ""
	for {
		params := url.Values{
			"channel": {channelID},
			"oldest":  {formatTs(oldest)},
			"latest":  {formatTs(latest)},
			"limit":   {strconv.Itoa(historyPageLimit)},
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var resp struct {
			apiEnvelope
			Messages []RawMessage `json:"messages"`
		}
		if err := c.call(ctx, "conversations.history", params, &resp); err != nil {
			return nil, err
		}

		messages = append(messages, resp.Messages...)
		cursor = resp.ResponseMetadata.NextCursor
		if cursor == "" {
			return messages, nil
		}
	}
}

// Replies returns the replies of a thread, excluding the parent message
// (which history already returned).
func (c *Client) Replies(ctx context.Context, channelID, threadTS string) ([]RawMessage, error) {
	params := url.Values{
		"channel": {channelID},
		"ts":      {threadTS},
	}

	var resp struct {
		apiEnvelope
		Messages []RawMessage `json:"messages"`
	}
	if err := c.call(ctx, "conversations.replies", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Messages) <= 1 {
		return nil, nil
	}
	return resp.Messages[1:], nil
}

// PostMessage sends text to a channel, optionally inside a thread.
func (c *Client) PostMessage(ctx context.Context, channelID, text, threadTS string) error {
	params := url.Values{
		"channel": {channelID},
		"text":    {text},
	}
	if threadTS != "" {
		params.Set("thread_ts", threadTS)
	}

	var resp apiEnvelope
	return c.call(ctx, "chat.postMessage", params, &resp)
}

// UploadFile uploads a local file to a channel with a title and an optional
// initial comment.
func (c *Client) UploadFile(ctx context.Context, channelID, path, title, comment string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("creating multipart: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copying file: %w", err)
	}
	fields := map[string]string{
		"channels": channelID,
		"title":    title,
	}
	if comment != "" {
		fields["initial_comment"] = comment
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("writing field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files.upload", &body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("uploading file: %w", err)
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if !env.OK {
		return fmt.Errorf("slack files.upload: %s", env.Error)
	}
	return nil
}

// call posts form-encoded params to a Web API method and decodes the JSON
// response into out, which must embed apiEnvelope.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if params == nil {
		params = url.Values{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack %s: unexpected status %d", method, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decoding %s envelope: %w", method, err)
	}
	if !env.OK {
		return fmt.Errorf("slack %s: %s", method, env.Error)
	}
	return nil
}

// formatTs renders a time as a Slack timestamp (unix seconds with
// microsecond fraction).
func formatTs(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixMicro())/1e6, 'f', 6, 64)
}
