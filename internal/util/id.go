package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random identifier such as "queue_9f2c...". The prefix names
// the entity kind and makes stored documents easier to read.
func NewID(prefix string) string {
	bytes := make([]byte, 12)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
