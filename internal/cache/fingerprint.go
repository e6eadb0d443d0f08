package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the cache key for a synthesis request. The model is
// deliberately not part of the key: clients using different models with the
// same text, voice and rate share one entry.
func Fingerprint(text, voice, rate string) string {
	hash := sha256.Sum256([]byte(text + "|" + voice + "|" + rate))
	return hex.EncodeToString(hash[:])
}

// ValidKey reports whether key is safe to use as a file name.
func ValidKey(key string) bool {
	if key == "" || len(key) > 128 {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// ShortKey trims a fingerprint for log output.
func ShortKey(key string) string {
	if len(key) > 16 {
		return key[:16]
	}
	return key
}
