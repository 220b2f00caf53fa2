// Package telemetry collects service counters (events received, validation
// failures, alerts triggered, and so on) and periodically reports a JSON
// snapshot to Redis for operational visibility.
package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for service telemetry snapshots.
	KeyPrefix = "telemetry:"
	// SnapshotTTL is how long a snapshot stays in Redis if not refreshed.
	SnapshotTTL = 2 * time.Minute
	// DefaultReportInterval is the default interval between Redis writes.
	DefaultReportInterval = 30 * time.Second
)

// Snapshot is one point-in-time view of a service's counters.
type Snapshot struct {
	ServiceName string            `json:"service_name"`
	StartedAt   time.Time         `json:"started_at"`
	LastUpdated time.Time         `json:"last_updated"`
	Counters    map[string]uint64 `json:"counters"`
}

// Collector accumulates named counters and reports them to Redis. All
// methods are safe for concurrent use. A nil Redis client disables
// reporting but keeps counting, which tests rely on.
type Collector struct {
	serviceName    string
	redis          *redis.Client
	startedAt      time.Time
	reportInterval time.Duration

	mu       sync.RWMutex
	counters map[string]*atomic.Uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a collector for a service. redisClient may be nil.
func NewCollector(serviceName string, redisClient *redis.Client) *Collector {
	return &Collector{
		serviceName:    serviceName,
		redis:          redisClient,
		startedAt:      time.Now().UTC(),
		reportInterval: DefaultReportInterval,
		counters:       make(map[string]*atomic.Uint64),
		stopCh:         make(chan struct{}),
	}
}

// SetReportInterval overrides the Redis reporting interval.
func (c *Collector) SetReportInterval(interval time.Duration) {
	if interval > 0 {
		c.reportInterval = interval
	}
}

// Inc increments a named counter.
func (c *Collector) Inc(name string) {
	c.counter(name).Add(1)
}

// Add adds a value to a named counter.
func (c *Collector) Add(name string, value uint64) {
	c.counter(name).Add(value)
}

// Get returns the current value of a named counter.
func (c *Collector) Get(name string) uint64 {
	c.mu.RLock()
	counter, ok := c.counters[name]
	c.mu.RUnlock()
	if !ok {
		return 0
	}
	return counter.Load()
}

func (c *Collector) counter(name string) *atomic.Uint64 {
	c.mu.RLock()
	counter, ok := c.counters[name]
	c.mu.RUnlock()
	if ok {
		return counter
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Double-check after acquiring write lock
	if counter, ok = c.counters[name]; !ok {
		counter = &atomic.Uint64{}
		c.counters[name] = counter
	}
	return counter
}

// GetSnapshot returns current counters without writing to Redis.
func (c *Collector) GetSnapshot() *Snapshot {
	c.mu.RLock()
	counters := make(map[string]uint64, len(c.counters))
	for name, counter := range c.counters {
		counters[name] = counter.Load()
	}
	c.mu.RUnlock()

	return &Snapshot{
		ServiceName: c.serviceName,
		StartedAt:   c.startedAt,
		LastUpdated: time.Now().UTC(),
		Counters:    counters,
	}
}

// Start begins periodic snapshot reporting to Redis.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.writeSnapshot(context.Background()) // Final write
				return
			case <-c.stopCh:
				c.writeSnapshot(context.Background()) // Final write
				return
			case <-ticker.C:
				c.writeSnapshot(ctx)
			}
		}
	}()
}

// Stop stops the reporting loop.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Collector) writeSnapshot(ctx context.Context) {
	if c.redis == nil {
		return
	}

	snap := c.GetSnapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		slog.Error("Failed to marshal telemetry snapshot", "service", c.serviceName, "error", err)
		return
	}

	key := KeyPrefix + c.serviceName
	if err := c.redis.Set(ctx, key, data, SnapshotTTL).Err(); err != nil {
		slog.Error("Failed to write telemetry to Redis", "service", c.serviceName, "error", err)
	}
}

// ConnectRedis creates and validates a Redis connection.
func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
