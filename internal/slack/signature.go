package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// maxSignatureSkew bounds how old a signed request may be; Slack recommends
// rejecting anything older than five minutes to blunt replay.
const maxSignatureSkew = 5 * time.Minute

// VerifySignature checks a Slack request signature (v0 scheme): the
// signature must equal "v0=" + hex(HMAC-SHA256(secret, "v0:timestamp:body"))
// and the timestamp must be within maxSignatureSkew of now.
func VerifySignature(signingSecret, timestamp, signature string, body []byte) bool {
	if signingSecret == "" || timestamp == "" || signature == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := time.Since(time.Unix(ts, 0))
	if age > maxSignatureSkew || age < -maxSignatureSkew {
		return false
	}

	mac := hmac.New(sha256.New, []byte(signingSecret))
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
