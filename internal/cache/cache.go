package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for byte caching. The fetcher uses it so
// a resumed run does not re-download pages it already paid for.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key generates a cache key from a URL
func Key(url string) string {
	hash := sha256.Sum256([]byte(url))
	return "prospector:v1:" + hex.EncodeToString(hash[:])
}
