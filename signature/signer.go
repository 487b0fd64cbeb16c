// Package signature signs outbound webhook bodies and verifies them on receipt.
//
// Two signatures are produced for every delivery:
//
//   - Body: "sha256=<hex>" over the raw body alone, for receivers that only
//     need integrity of the payload.
//   - Timestamped: "v1,<base64>" over "{msgID}.{timestamp}.{body}", the
//     Standard Webhooks scheme, which also lets receivers reject replays.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
)

// Header names attached to every delivery.
const (
	HeaderBody      = "X-Webhook-Signature-256"
	HeaderID        = "Webhook-Id"
	HeaderTimestamp = "Webhook-Timestamp"
	HeaderSignature = "Webhook-Signature"
)

// Sign returns "sha256=<hex hmac>" of body under key.
func Sign(body []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// SignTimestamped returns "v1,<base64 hmac>" of "{msgID}.{timestamp}.{body}" under key.
func SignTimestamped(msgID string, timestamp int64, body []byte, key string) string {
	return "v1," + base64.StdEncoding.EncodeToString(timestampedMAC(msgID, timestamp, body, key))
}

func timestampedMAC(msgID string, timestamp int64, body []byte, key string) []byte {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(msgID))
	mac.Write([]byte{'.'})
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return mac.Sum(nil)
}

// Headers returns every signature header for one delivery of body.
func Headers(msgID string, timestamp int64, body []byte, key string) map[string]string {
	return map[string]string{
		HeaderBody:      Sign(body, key),
		HeaderID:        msgID,
		HeaderTimestamp: strconv.FormatInt(timestamp, 10),
		HeaderSignature: SignTimestamped(msgID, timestamp, body, key),
	}
}
