package room

import (
	"context"
	"fmt"
	"time"
)

// RetentionPolicy names what happens to sessions nobody uses any more.
type RetentionPolicy string

const (
	// RetainForever keeps every session for the life of the process.
	RetainForever RetentionPolicy = "keep"
	// EvictIdle deletes sessions with no bound connections whose last
	// activity is older than Retention.IdleAfter.
	EvictIdle RetentionPolicy = "evict-idle"
)

type Retention struct {
	Policy     RetentionPolicy
	IdleAfter  time.Duration
	SweepEvery time.Duration
}

func ParseRetentionPolicy(s string) (RetentionPolicy, error) {
	switch p := RetentionPolicy(s); p {
	case "", RetainForever:
		return RetainForever, nil
	case EvictIdle:
		return p, nil
	default:
		return "", fmt.Errorf("unknown retention policy %q", s)
	}
}

// Sweep applies the retention policy once and returns the evicted room ids.
func (c *Coordinator) Sweep() []string {
	if c.cfg.Retention.Policy != EvictIdle {
		return nil
	}
	cutoff := c.now().Add(-c.cfg.Retention.IdleAfter)

	var evicted []string
	for _, s := range c.store.List() {
		if s.LastActivity.After(cutoff) || c.registry.Count(s.ID) > 0 {
			continue
		}
		if c.evictIfIdle(s.ID, cutoff) {
			evicted = append(evicted, s.ID)
		}
	}

	if len(evicted) > 0 {
		c.metrics.RoomsEvicted(len(evicted))
		c.logger.Info("idle rooms evicted", "count", len(evicted))
	}
	return evicted
}

func (c *Coordinator) evictIfIdle(roomID string, cutoff time.Time) bool {
	unlock := c.locks.lock(roomID)
	defer unlock()

	s, ok := c.store.Get(roomID)
	if !ok || s.LastActivity.After(cutoff) || c.registry.Count(roomID) > 0 {
		return false
	}
	return c.store.Delete(roomID)
}

// RunRetention sweeps on every Retention.SweepEvery tick until ctx is done.
// It returns immediately when the policy keeps sessions forever.
func (c *Coordinator) RunRetention(ctx context.Context) {
	if c.cfg.Retention.Policy != EvictIdle || c.cfg.Retention.SweepEvery <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.Retention.SweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}
