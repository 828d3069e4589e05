// Package util provides identifiers and clock helpers shared across the
// reconciliation services.
package util

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// IDGenerator hands out time-ordered UUIDv7 identifiers. It is safe for
// concurrent use and satisfies reconcile.IDSource.
type IDGenerator struct {
	mu       sync.Mutex
	lastTime int64
	counter  uint16
}

// NewIDGenerator creates a new ID generator.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// NewID generates a new UUIDv7 identifier. Identifiers minted within the same
// millisecond stay ordered through a 12-bit counter.
func (g *IDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	if now <= g.lastTime {
		now = g.lastTime
		g.counter++
		if g.counter > 0x0FFF {
			// counter exhausted, move to the next millisecond
			for now <= g.lastTime {
				time.Sleep(100 * time.Microsecond)
				now = time.Now().UnixMilli()
			}
			g.lastTime = now
			g.counter = 0
		}
	} else {
		g.lastTime = now
		g.counter = 0
	}

	return generateUUIDv7(now, g.counter)
}

var defaultGenerator = NewIDGenerator()

// NewID generates a new UUIDv7 identifier from the process-wide generator.
func NewID() string {
	return defaultGenerator.NewID()
}

func generateUUIDv7(unixMilli int64, counter uint16) string {
	var id [16]byte

	// 48-bit big endian millisecond timestamp
	binary.BigEndian.PutUint32(id[0:4], uint32(unixMilli>>16))
	binary.BigEndian.PutUint16(id[4:6], uint16(unixMilli))

	id[6] = 0x70 | (byte(counter>>8) & 0x0F)
	id[7] = byte(counter)

	rand.Read(id[8:])
	id[8] = (id[8] & 0x3F) | 0x80

	return uuid.UUID(id).String()
}

// ParseID validates a UUID string and returns its canonical form.
func ParseID(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid ID format: %w", err)
	}
	return id.String(), nil
}

// IsValidID checks if a string is a valid UUID.
func IsValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// SequenceIDs yields predictable identifiers of the form prefix-0001. It is
// meant for tests and fixtures.
type SequenceIDs struct {
	Prefix string
	n      atomic.Int64
}

// NewID returns the next identifier in the sequence.
func (s *SequenceIDs) NewID() string {
	return fmt.Sprintf("%s-%04d", s.Prefix, s.n.Add(1))
}
