package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// HMACAuth holds the key pair used to sign authenticated REST requests.
// Venues differ in how the signing message is assembled, so the venue
// clients build the message and call one of the signing helpers.
type HMACAuth struct {
	Key    string // API key, sent as a header
	Secret string // API secret, the HMAC key
}

// SignHex computes HMAC-SHA256 of message using the secret and returns the
// lowercase hex digest. This is the scheme coinex expects.
func (h *HMACAuth) SignHex(message string) string {
	mac := hmac.New(sha256.New, []byte(h.Secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// TimestampMillis returns the current Unix epoch milliseconds as a decimal
// string, the timestamp format signed request headers carry.
func TimestampMillis() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
