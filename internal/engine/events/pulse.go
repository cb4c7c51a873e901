package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
)

// PulsePublisher appends the Events passed to its Publish method onto a
// Redis-backed Pulse stream, so a fleet of StreamKit engine processes can
// expose one merged feed to an external dashboard or alerting system even
// though each process's Broadcaster only ever fans out in-process. The
// Broadcaster does not forward to it; the caller invokes Publish.
// This is the cross-process telemetry sink named in spec §2 item 6
// ("Telemetry and metrics sinks ... out of scope" as a transport, but the
// engine still needs somewhere to emit the bounded publish interface to).
type PulsePublisher struct {
	stream *streaming.Stream
}

// NewPulsePublisher opens (creating if absent) the named Pulse stream on
// the given Redis connection.
func NewPulsePublisher(ctx context.Context, rdb *redis.Client, streamName string) (*PulsePublisher, error) {
	s, err := streaming.NewStream(streamName, rdb)
	if err != nil {
		return nil, fmt.Errorf("engine/events: open pulse stream %s: %w", streamName, err)
	}
	return &PulsePublisher{stream: s}, nil
}

// Publish appends ev to the stream. Errors are the caller's to log; a
// publish failure must never propagate back into the node whose state
// change triggered it.
func (p *PulsePublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(struct {
		SessionID string `json:"session_id"`
		NodeID    string `json:"node_id"`
		Kind      Kind   `json:"kind"`
		Timestamp int64  `json:"timestamp"`
		Payload   any    `json:"payload"`
	}{
		SessionID: ev.SessionID,
		NodeID:    ev.NodeID,
		Kind:      ev.Kind,
		Timestamp: ev.Timestamp.UnixNano(),
		Payload:   ev.Payload,
	})
	if err != nil {
		return fmt.Errorf("engine/events: marshal event: %w", err)
	}
	_, err = p.stream.Add(ctx, string(ev.Kind), payload)
	if err != nil {
		return fmt.Errorf("engine/events: publish: %w", err)
	}
	return nil
}

// Close destroys nothing; it releases no owned resources since the caller
// supplies the Redis connection, mirroring the teacher client's Close
// semantics for the same reason.
func (p *PulsePublisher) Close() {}
