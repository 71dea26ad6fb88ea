// Package xid generates the prefixed record ids used across the store
// ("sale-", "ret-", "sess-", ...). Ids are ordered by creation time at
// nanosecond granularity and carry 64 random bits to break ties.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns "<prefix>-<unix nanos>-<16 hex chars>". If the random
// source fails the id degrades to the timestamp alone, which is still
// unique enough for single-process use.
func New(prefix string) string {
	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(suffix))
}
