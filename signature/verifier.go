package signature

import (
	"crypto/hmac"
	"encoding/base64"
	"strings"
)

// Verify reports whether sig is the body signature of body under key.
func Verify(body []byte, key, sig string) bool {
	return hmac.Equal([]byte(Sign(body, key)), []byte(sig))
}

// VerifyTimestamped checks a Webhook-Signature header value. The header may
// carry several space-separated "v1,<base64>" entries, e.g. during key rotation.
func VerifyTimestamped(msgID string, timestamp int64, body []byte, key, header string) bool {
	expected := timestampedMAC(msgID, timestamp, body, key)
	for _, part := range strings.Fields(header) {
		version, encoded, ok := strings.Cut(part, ",")
		if !ok || version != "v1" {
			continue
		}
		got, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return true
		}
	}
	return false
}
