package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisSink stores the record as a hash under prefix+session id and the
// segments as a JSON list under the same key with a ":segments" suffix.
type RedisSink struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisSink(client redis.Cmdable, prefix string, ttl time.Duration) *RedisSink {
	return &RedisSink{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisSink) Name() string { return "redis" }

// Key returns the hash key of a session.
func (r *RedisSink) Key(sessionID string) string {
	return r.prefix + sessionID
}

func (r *RedisSink) Export(ctx context.Context, rec Record) error {
	speakers, err := json.Marshal(rec.Speakers)
	if err != nil {
		return fmt.Errorf("encode speakers: %w", err)
	}
	segments := make([]any, 0, len(rec.Segments))
	for _, seg := range rec.Segments {
		data, err := json.Marshal(seg)
		if err != nil {
			return fmt.Errorf("encode segment: %w", err)
		}
		segments = append(segments, string(data))
	}

	key := r.Key(rec.SessionID)
	segKey := key + ":segments"
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key, segKey)
		pipe.HSet(ctx, key, map[string]any{
			"session_id": rec.SessionID,
			"provider":   rec.Provider,
			"mode":       rec.Mode,
			"started_at": rec.StartedAt.Format(time.RFC3339),
			"ended_at":   rec.EndedAt.Format(time.RFC3339),
			"duration":   rec.Duration.String(),
			"speakers":   string(speakers),
			"text":       rec.Text,
			"error":      rec.Error,
		})
		if len(segments) > 0 {
			pipe.RPush(ctx, segKey, segments...)
		}
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
			pipe.Expire(ctx, segKey, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hand-off %s: %w", key, err)
	}
	return nil
}
