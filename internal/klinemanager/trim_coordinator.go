package klinemanager

import (
	"context"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const trimGateTTL = time.Hour

// TrimCoordinator gates the "at most once per hour across the whole
// fleet" retention trim so that more than one kline manager process can be
// deployed against the same database without all of them trimming in
// lockstep every tick.
type TrimCoordinator interface {
	// ShouldTrim reports whether the caller won the trim gate for this
	// hour. Only one caller across the fleet observes true per window.
	ShouldTrim(ctx context.Context) (bool, error)
}

// InMemoryTrimCoordinator guards a single process's trim cadence with a
// mutex-protected timestamp. It does not coordinate across processes — use
// RedisTrimCoordinator for fleet-wide deployments.
type InMemoryTrimCoordinator struct {
	mu       sync.Mutex
	lastTrim time.Time
}

// NewInMemoryTrimCoordinator builds a single-process trim gate.
func NewInMemoryTrimCoordinator() *InMemoryTrimCoordinator {
	return &InMemoryTrimCoordinator{}
}

func (c *InMemoryTrimCoordinator) ShouldTrim(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.lastTrim) < trimGateTTL {
		return false, nil
	}

	c.lastTrim = time.Now()

	return true, nil
}

// RedisTrimCoordinator gates the trim window fleet-wide using a single
// Redis key with SET NX EX: whichever process sets the key first wins the
// window, and every other process's SetNX fails until the key expires.
type RedisTrimCoordinator struct {
	client *goredis.Client
	key    string
}

// NewRedisTrimCoordinator builds a fleet-wide trim gate backed by client.
func NewRedisTrimCoordinator(client *goredis.Client) *RedisTrimCoordinator {
	return &RedisTrimCoordinator{client: client, key: "kline:trim:gate"}
}

func (c *RedisTrimCoordinator) ShouldTrim(ctx context.Context) (bool, error) {
	won, err := c.client.SetNX(ctx, c.key, "1", trimGateTTL).Result()
	if err != nil {
		return false, err
	}

	return won, nil
}

var (
	_ TrimCoordinator = (*InMemoryTrimCoordinator)(nil)
	_ TrimCoordinator = (*RedisTrimCoordinator)(nil)
)
