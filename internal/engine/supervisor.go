// Package engine implements the Engine Supervisor (spec §4.6): it owns
// sealed plans, spawns per-node tasks in topological order, exposes the
// control plane (CreateSession/DestroySession/TuneNode/QueryGraph/
// SubscribeEvents), and runs the oneshot request/response profile over the
// same substrate as long-lived dynamic sessions.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"streamkit.dev/core/internal/engine/events"
	"streamkit.dev/core/internal/graph"
	"streamkit.dev/core/internal/node"
	"streamkit.dev/core/internal/registry"
	"streamkit.dev/core/internal/telemetry"
)

// TaskConfig carries the per-task knobs forwarded to every node.Task a
// session spawns (spec §6 configuration knobs table, minus the queue
// capacities already baked into the Plan by the graph builder).
type TaskConfig struct {
	BatchSize int
	Recovery  node.RecoveryPolicy
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Tracer    telemetry.Tracer
}

// Profile bundles the builder and task knobs for one of the presets named
// in spec §6 (balanced, low-latency, high-throughput).
type Profile struct {
	Graph graph.Config
	Task  TaskConfig
	// ShutdownGrace bounds DestroySession's wait for each node's cleanup
	// (spec §4.6 "Shutdown", §6 shutdown_grace_ms, default 5s).
	ShutdownGrace time.Duration
}

// Supervisor is the Engine Supervisor of spec §4.6.
type Supervisor struct {
	reg     *registry.Manager
	profile Profile

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSupervisor constructs a Supervisor bound to a registry and a profile
// applied to every CreateSession call; RunOneshot layers OneshotProfile over
// the same profile.
func NewSupervisor(reg *registry.Manager, profile Profile) *Supervisor {
	if profile.ShutdownGrace <= 0 {
		profile.ShutdownGrace = 5 * time.Second
	}
	return &Supervisor{reg: reg, profile: profile, sessions: make(map[string]*Session)}
}

// CreateSession builds a plan from desc and spawns its tasks in
// topological order (spec §4.6).
func (s *Supervisor) CreateSession(ctx context.Context, name string, desc graph.Description) (*Session, error) {
	plan, err := graph.Build(ctx, s.reg, desc, s.profile.Graph)
	if err != nil {
		return nil, err
	}

	id := name
	if id == "" {
		id = uuid.NewString()
	}

	sess := newSession(id, plan)
	sess.spawn(ctx, s.profile.Task, s.profile.ShutdownGrace)

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	return sess, nil
}

// DestroySession signals cancel and awaits nodes in reverse topological
// order up to the configured grace, then forces completion (spec §4.6).
func (s *Supervisor) DestroySession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return &NotFoundError{SessionID: sessionID}
	}
	sess.shutdown(s.profile.ShutdownGrace)
	return nil
}

// TuneNode forwards a parameter patch to a node's control inbox and awaits
// its ack (spec §4.6).
func (s *Supervisor) TuneNode(ctx context.Context, sessionID, nodeID string, patch map[string]any) error {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return &NotFoundError{SessionID: sessionID}
	}

	sess.mu.RLock()
	h, ok := sess.tasks[nodeID]
	sess.mu.RUnlock()
	if !ok {
		return &NodeNotFoundError{SessionID: sessionID, NodeID: nodeID}
	}

	reply := make(chan node.Result, 1)
	select {
	case h.task.Control() <- node.TuneRequest{Patch: patch, Reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case res := <-reply:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueryGraph returns a point-in-time snapshot of instances, edges, states,
// and stats (spec §4.6).
func (s *Supervisor) QueryGraph(sessionID string) (Snapshot, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return Snapshot{}, &NotFoundError{SessionID: sessionID}
	}
	return sess.snapshot(), nil
}

// SubscribeEvents returns a bounded channel of state transitions, stats
// deltas, and telemetry for sessionID, and an unsubscribe function (spec
// §4.6).
func (s *Supervisor) SubscribeEvents(sessionID string, bufferSize int) (<-chan events.Event, func(), error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, &NotFoundError{SessionID: sessionID}
	}
	ch, unsub := sess.events.Subscribe(bufferSize)
	return ch, unsub, nil
}

// Session looks up a running session created by CreateSession, for callers
// that need direct access to it. Oneshot runs are not registered here.
func (s *Supervisor) Session(sessionID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	return sess, ok
}

var errOneshotMissingIONode = fmt.Errorf("engine: oneshot description must name an io.input and io.output node")
