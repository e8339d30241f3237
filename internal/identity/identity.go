// Package identity generates the per-process client identifier used to
// tell self-originated presence frames apart from peers'.
package identity

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	once     sync.Once
	clientID string
)

// ClientID returns the identifier for this process. It is generated on
// first use and never changes afterwards.
func ClientID() string {
	once.Do(func() { clientID = New() })
	return clientID
}

// New generates a fresh identifier. It prefers a random UUID and falls
// back to a timestamp plus random suffix if the entropy source fails.
func New() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fallback(time.Now())
	}
	return id.String()
}

func fallback(now time.Time) string {
	return fmt.Sprintf("%d-%x", now.UnixMilli(), rand.Uint64())
}
