// Package cache holds short-lived API responses. Predictions are never
// persisted; entries expire and vanish with the process.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache stores encoded responses by key
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives a cache key from its parts, e.g. the operation, claim id and criteria JSON
func Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return "claimguard:v1:" + hex.EncodeToString(hash[:])
}
