package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// LogStore implements ports.LogStore with a capped Redis list per run.
type LogStore struct {
	client   *backend.Client
	prefix   string
	capacity int64
	ttl      time.Duration
}

// NewLogStore creates a log store keeping the newest capacity entries per run.
// A positive ttl expires a run's list after its last append.
func NewLogStore(client *backend.Client, prefix string, capacity int64, ttl time.Duration) *LogStore {
	if prefix == "" {
		prefix = "weft:logs:"
	}
	if capacity <= 0 {
		capacity = 1000
	}
	return &LogStore{client: client, prefix: prefix, capacity: capacity, ttl: ttl}
}

// Append pushes an entry and trims the list.
func (s *LogStore) Append(ctx context.Context, runID string, entry domain.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}
	key := s.prefix + runID
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -s.capacity, -1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	return nil
}

// Read returns the run's entries matching the query, oldest first.
func (s *LogStore) Read(ctx context.Context, runID string, query domain.LogQuery) ([]domain.LogEntry, error) {
	raw, err := s.client.LRange(ctx, s.prefix+runID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read log entries: %w", err)
	}
	entries := make([]domain.LogEntry, 0, len(raw))
	for _, r := range raw {
		var e domain.LogEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return query.Filter(entries), nil
}
