package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

func sum(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// SignHMAC returns the lowercase-hex HMAC-SHA256 of body under secret.
// This is the value the delivery worker puts in X-Signature.
func SignHMAC(secret string, body []byte) string {
	return hex.EncodeToString(sum(secret, body))
}

// VerifyHMAC reports whether provided is a valid signature for body.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	sig, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(sum(secret, body), sig)
}
