package trace

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// IDGenerator produces globally unique trace and span identifiers as
// lowercase hex strings: 16 random bytes for trace IDs, 8 for span IDs.
type IDGenerator struct{}

// NewIDGenerator creates an ID generator backed by crypto/rand.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// NewTraceID returns a fresh 32-character hex trace ID.
func (*IDGenerator) NewTraceID() string {
	return randomHex(16)
}

// NewSpanID returns a fresh 16-character hex span ID.
func (*IDGenerator) NewSpanID() string {
	return randomHex(8)
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// Fallback to time-derived bytes if crypto/rand fails.
		now := time.Now().UnixNano()
		for i := range buf {
			buf[i] = byte(now >> (uint(i%8) * 8))
		}
	}
	return hex.EncodeToString(buf)
}
