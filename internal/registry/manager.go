package registry

import (
	"context"
	"fmt"
	"sync"

	"streamkit.dev/core/internal/telemetry"
)

// Manager is the process-wide Node Registry. Lookup is called once per
// node during graph materialization and is expected to dominate Register
// call volume by orders of magnitude, so it favors RWMutex readers (spec
// §2.2, §4.4 step 2).
type Manager struct {
	mu    sync.RWMutex
	kinds map[string]*Kind

	remotes []*RemoteSource

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for registration/lookup events.
func WithLogger(l telemetry.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(met telemetry.Metrics) Option {
	return func(m *Manager) { m.metrics = met }
}

// WithTracer sets the tracer used to span Lookup/Register calls.
func WithTracer(t telemetry.Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// NewManager builds an empty registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{kinds: make(map[string]*Kind)}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.logger == nil {
		m.logger = telemetry.NoopLogger{}
	}
	if m.metrics == nil {
		m.metrics = telemetry.NoopMetrics{}
	}
	if m.tracer == nil {
		m.tracer = telemetry.NoopTracer{}
	}
	return m
}

// Register adds a kind, replacing any prior registration of the same name.
// Graph builders call Lookup after this returns, so Register takes the
// exclusive lock and must be quick: no I/O, no schema compilation (the
// caller compiles the schema up front via CompileParamSchema).
func (m *Manager) Register(k *Kind) error {
	if k.Name == "" {
		return fmt.Errorf("registry: kind must have a name")
	}
	if k.Factory == nil {
		return fmt.Errorf("registry: kind %q has no factory", k.Name)
	}
	m.mu.Lock()
	m.kinds[k.Name] = k
	m.mu.Unlock()
	m.logger.Info(context.Background(), "registry: kind registered", "kind", k.Name, "categories", k.Categories)
	m.metrics.IncCounter("registry.kinds.registered", 1, "kind", k.Name)
	return nil
}

// Unregister removes a kind. Existing NodeInstances already materialized
// against the kind are unaffected; only future Lookups see the change.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	delete(m.kinds, name)
	m.mu.Unlock()
}

// Lookup resolves a kind by name, consulting locally registered kinds
// before any federated RemoteSource.
func (m *Manager) Lookup(ctx context.Context, name string) (*Kind, error) {
	m.mu.RLock()
	k, ok := m.kinds[name]
	m.mu.RUnlock()
	if ok {
		return k, nil
	}
	for _, r := range m.remotes {
		if info, err := r.Describe(ctx, name); err == nil && info != nil {
			return info, nil
		}
	}
	return nil, fmt.Errorf("registry: unknown kind %q", name)
}

// List returns every locally registered kind name.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.kinds))
	for name := range m.kinds {
		out = append(out, name)
	}
	return out
}

// Federate attaches a remote registry whose announced kinds are consulted
// on local Lookup misses (spec SPEC_FULL.md domain stack: registry
// federation across processes, distinct from distributed graph execution).
func (m *Manager) Federate(r *RemoteSource) {
	m.mu.Lock()
	m.remotes = append(m.remotes, r)
	m.mu.Unlock()
}
