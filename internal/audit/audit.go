// Package audit carries side-effect events for merges, claims and deletes.
// Sinks are best effort: a failing sink never fails the operation that
// produced the event.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	ActionCreate  = "content.create"
	ActionUpdate  = "content.update"
	ActionMerge   = "content.merge"
	ActionUnmerge = "content.unmerge"
	ActionClaim   = "content.claim"
	ActionDelete  = "content.delete"
	ActionRestore = "content.restore"
)

type Event struct {
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	ResourceID string         `json:"resource_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Sink interface {
	Record(ctx context.Context, event Event) error
}

// LogSink writes events to the structured log.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(_ context.Context, event Event) error {
	s.logger.Info().
		Str("actor_id", event.ActorID).
		Str("action", event.Action).
		Str("resource_id", event.ResourceID).
		Interface("metadata", event.Metadata).
		Time("occurred_at", event.OccurredAt).
		Msg("audit event")
	return nil
}

// RedisSink publishes events as JSON on a pub/sub channel for the
// notification workers.
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = "contenthub.events"
	}
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Channel() string {
	return s.channel
}

func (s *RedisSink) Record(ctx context.Context, event Event) error {
	if s.client == nil {
		return fmt.Errorf("redis client is not configured")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}

// Fanout delivers to every sink and logs failures instead of returning them.
type Fanout struct {
	sinks  []Sink
	logger zerolog.Logger
}

func NewFanout(logger zerolog.Logger, sinks ...Sink) *Fanout {
	kept := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			kept = append(kept, sink)
		}
	}
	return &Fanout{sinks: kept, logger: logger}
}

func (f *Fanout) Record(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	for _, sink := range f.sinks {
		if err := sink.Record(ctx, event); err != nil {
			f.logger.Warn().
				Err(err).
				Str("action", event.Action).
				Str("resource_id", event.ResourceID).
				Msg("audit sink failed")
		}
	}
	return nil
}
