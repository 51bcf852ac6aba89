package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const keyPrefix = "btm"
const keyVersion = "v1"

// ParseAPIKey extracts secret_id and signature from API key format.
// Format: btm-v1-<secret_id>-<signature>, where secret_id is 32 hex chars
// and signature is the 64 hex char HMAC-SHA256 of secret_id.
// Returns ErrInvalidKeyFormat if format doesn't match.
func ParseAPIKey(key string) (secretID, signature string, err error) {
	parts := strings.Split(key, "-")
	if len(parts) != 4 || parts[0] != keyPrefix || parts[1] != keyVersion {
		return "", "", ErrInvalidKeyFormat
	}

	secretID = parts[2]
	signature = parts[3]
	if len(secretID) != 32 || len(signature) != 64 {
		return "", "", ErrInvalidKeyFormat
	}
	for _, c := range secretID + signature {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", "", ErrInvalidKeyFormat
		}
	}

	return secretID, signature, nil
}

// ComputeHMAC computes the HMAC-SHA256 of secretID under secret.
func ComputeHMAC(secret []byte, secretID string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(secretID))
	return h.Sum(nil)
}

// VerifyHMAC compares signatures in constant time.
func VerifyHMAC(expected, computed []byte) bool {
	return hmac.Equal(expected, computed)
}

// FormatAPIKey constructs API key from components.
func FormatAPIKey(secretID, signature string) string {
	return fmt.Sprintf("%s-%s-%s-%s", keyPrefix, keyVersion, secretID, signature)
}

// GenerateAPIKey derives the API key for secretID. The same secret always
// yields the same key, so rotating the secret is the revocation path.
func GenerateAPIKey(secretID string, secret []byte) string {
	return FormatAPIKey(secretID, hex.EncodeToString(ComputeHMAC(secret, secretID)))
}
