package engine

import (
	"context"
	"sync"
	"time"

	"streamkit.dev/core/internal/engine/events"
	"streamkit.dev/core/internal/graph"
	"streamkit.dev/core/internal/node"
)

// Mode mirrors graph.Mode for the Session entity of spec §3 ("mode ∈
// {dynamic, oneshot}").
type Mode = graph.Mode

// taskHandle pairs a running node.Task with the goroutine that drives it,
// so DestroySession can await its exit.
type taskHandle struct {
	task *node.Task
	done chan struct{}
}

// Session is a running engine instance: a sealed Plan plus the live tasks
// spawned against it (spec §3 Session entity).
type Session struct {
	ID   string
	Mode Mode

	plan    *graph.Plan
	tasks   map[string]*taskHandle
	events  *events.Broadcaster
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started time.Time

	shutdownGrace time.Duration
	shutdownOnce  sync.Once

	mu       sync.RWMutex
	failed   bool
	failedBy string
}

func newSession(id string, plan *graph.Plan) *Session {
	return &Session{
		ID:      id,
		Mode:    plan.Mode,
		plan:    plan,
		tasks:   make(map[string]*taskHandle),
		events:  events.NewBroadcaster(),
		started: time.Now(),
	}
}

// spawn starts one node.Task per plan node, in topological order (spec
// §4.6 "spawn tasks in topological order"). grace is the shutdown grace
// period applied both to an explicit DestroySession and to the automatic
// shutdown a required node's fatal failure triggers (spec §7).
func (s *Session) spawn(ctx context.Context, cfg TaskConfig, grace time.Duration) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.shutdownGrace = grace

	for _, id := range s.plan.Order {
		rec := s.plan.Nodes[id]
		for _, d := range rec.Outputs {
			d.Start(runCtx)
		}

		task := node.NewTask(node.Config{
			ID:            rec.ID,
			Kind:          rec.Kind,
			Instance:      rec.Instance,
			Tunable:       rec.Tunable,
			Inputs:        rec.Inputs,
			InputOrder:    rec.InputOrder,
			Outputs:       rec.Outputs,
			ExternallyFed: rec.ExternallyFed,
			BatchSize:     cfg.BatchSize,
			Recovery:      cfg.Recovery,
			InitParams:    rec.Params,
			Logger:        cfg.Logger,
			Metrics:       cfg.Metrics,
			Tracer:        cfg.Tracer,
		})

		done := make(chan struct{})
		s.tasks[id] = &taskHandle{task: task, done: done}

		s.wg.Add(1)
		go func(nodeID string, t *node.Task, done chan struct{}) {
			defer s.wg.Done()
			defer close(done)
			t.Run(runCtx)
			if t.State() == node.StateFailed && s.noteFailure(nodeID) {
				// A required node just failed fatally: the whole session is
				// failed (spec §7 "A fatal node error in a required node
				// causes the supervisor to shut down the session as a
				// failed state"). Shut down from a fresh goroutine so this
				// task's own exit (closing done, s.wg.Done) isn't blocked on
				// shutdown's wait for every task including itself.
				go s.shutdown(s.shutdownGrace)
			}
			s.events.Publish(events.Event{
				SessionID: s.ID, NodeID: nodeID, Kind: events.KindState,
				Timestamp: time.Now(), Payload: t.State().String(),
			})
		}(id, task, done)
	}
}

// noteFailure records a node's fatal failure and reports whether it marked
// the session as a whole Failed (i.e. the node was required).
func (s *Session) noteFailure(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.plan.Nodes[nodeID]
	if rec.Needs == graph.NeedsRequired || rec.Needs == "" {
		s.failed = true
		s.failedBy = nodeID
		return true
	}
	return false
}

// Failed reports whether a required node has entered the Failed state.
func (s *Session) Failed() (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failed, s.failedBy
}

// shutdown cancels every task and awaits them in reverse topological order,
// giving each node up to grace to finish (spec §4.6 "Shutdown"). A node
// still running past its grace gets a shutdown_grace_exceeded state event
// and is not waited for further; its state is left unchanged, not marked
// Failed. It runs at most once per session: an
// explicit DestroySession and an automatic required-node-failure shutdown
// can race, and only the first should drive the wind-down.
func (s *Session) shutdown(grace time.Duration) {
	s.shutdownOnce.Do(func() { s.runShutdown(grace) })
}

func (s *Session) runShutdown(grace time.Duration) {
	if s.cancel != nil {
		s.cancel()
	}
	for i := len(s.plan.Order) - 1; i >= 0; i-- {
		h := s.tasks[s.plan.Order[i]]
		select {
		case <-h.done:
		case <-time.After(grace):
			s.events.Publish(events.Event{
				SessionID: s.ID, NodeID: h.task.ID, Kind: events.KindState,
				Timestamp: time.Now(), Payload: "shutdown_grace_exceeded",
			})
		}
	}
	s.events.Close()
}

// Snapshot is the QueryGraph response (spec §4.6): the set of instances,
// edges, states, and stats at the moment of the call.
type Snapshot struct {
	SessionID string
	Nodes     []NodeSnapshot
	Edges     []graph.EdgeRecord
}

// NodeSnapshot is one node's state in a Snapshot.
type NodeSnapshot struct {
	ID    string
	Kind  string
	State node.State
	Stats node.Snapshot
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{SessionID: s.ID, Edges: s.plan.Edges}
	for _, id := range s.plan.Order {
		h := s.tasks[id]
		snap.Nodes = append(snap.Nodes, NodeSnapshot{
			ID:    id,
			Kind:  s.plan.Nodes[id].Kind,
			State: h.task.State(),
			Stats: h.task.Stats.Snapshot(),
		})
	}
	return snap
}
