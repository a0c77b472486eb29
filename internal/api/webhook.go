package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/kalambet/recap/internal/pipeline"
	"github.com/kalambet/recap/internal/slack"
)

// eventEnvelope is the outer Slack Events API payload.
type eventEnvelope struct {
	Type      string         `json:"type"`
	Challenge string         `json:"challenge"`
	Event     pipeline.Event `json:"event"`
}

// handleSlackEvents is the webhook entry point. The raw body is needed for
// signature verification, so it is read before any JSON decoding. Slack
// retries on anything but a fast 200, which is why event processing errors
// still acknowledge the delivery.
func handleSlackEvents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading body: %v", err)
			return
		}

		if deps.SigningSecret != "" {
			ok := slack.VerifySignature(
				deps.SigningSecret,
				r.Header.Get("X-Slack-Request-Timestamp"),
				r.Header.Get("X-Slack-Signature"),
				body,
			)
			if !ok {
				deps.Log.Warn("webhook signature rejected", "remote", r.RemoteAddr)
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid request signature")
				return
			}
		} else {
			deps.Log.Warn("webhook signature verification disabled, no signing secret configured")
		}

		var envelope eventEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid payload: %v", err)
			return
		}

		switch envelope.Type {
		case "url_verification":
			writeJSON(w, http.StatusOK, map[string]string{"challenge": envelope.Challenge})
		case "event_callback":
			if err := deps.Events.HandleEvent(r.Context(), envelope.Event); err != nil {
				deps.Log.Error("event processing failed", "type", envelope.Event.Type, "error", err)
			}
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}
}
