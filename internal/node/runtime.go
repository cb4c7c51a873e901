package node

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"streamkit.dev/core/internal/fabric"
	"streamkit.dev/core/internal/packet"
	"streamkit.dev/core/internal/telemetry"
)

// ErrNotTunable is wrapped in the Result a TuneRequest replies with when the
// patch touches a property that the kind's schema did not mark tunable
// (spec §4.5, §7).
var ErrNotTunable = fmt.Errorf("not tunable")

type (
	// TuneRequest asks the task to apply a parameter patch between packets
	// (spec §4.5). Reply receives exactly one Result.
	TuneRequest struct {
		Patch map[string]any
		Reply chan Result
	}

	// StopRequest asks the task to shut down after completing its current
	// batch. Reply is closed as soon as the request is accepted; callers
	// that need to know cleanup has actually finished should await the
	// task's Run goroutine instead (the supervisor does this to enforce
	// shutdown_grace_ms, spec §4.6).
	StopRequest struct {
		Reply chan struct{}
	}
)

// Task is the cooperative runtime for one NodeInstance: it owns the state
// machine, drains input queues in fair batches, applies parameter updates
// between packets, and reports failures (spec §4.5).
type Task struct {
	ID   string
	Kind string

	instance Instance
	tunable  map[string]bool

	inputs        map[string]*fabric.Queue
	inputOrder    []string
	outputs       map[string]*fabric.Distributor
	externallyFed bool

	control   chan any
	batchSize int
	recovery  RecoveryPolicy
	limiter   *rate.Limiter

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	mu             sync.RWMutex
	state          State
	recoveryStreak int
	recoverySince  time.Time

	Stats Stats

	// initParams seeds Init; UpdateParams mutates a private copy thereafter
	// only through the node's own Instance (the Task never inspects it).
	initParams map[string]any
}

// Config configures a new Task.
type Config struct {
	ID         string
	Kind       string
	Instance   Instance
	Tunable    map[string]bool
	Inputs     map[string]*fabric.Queue
	InputOrder []string
	Outputs    map[string]*fabric.Distributor
	BatchSize  int
	Recovery   RecoveryPolicy
	InitParams map[string]any
	// ExternallyFed marks a zero-input node whose output is driven by code
	// outside this Task (the oneshot io.input boundary) rather than by its
	// own Flush; such a node must not be auto-flushed as a source.
	ExternallyFed bool

	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
}

// NewTask constructs a Task in state Initializing. Call Run to drive it.
func NewTask(cfg Config) *Task {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Task{
		ID:            cfg.ID,
		Kind:          cfg.Kind,
		instance:      cfg.Instance,
		tunable:       cfg.Tunable,
		inputs:        cfg.Inputs,
		inputOrder:    cfg.InputOrder,
		outputs:       cfg.Outputs,
		externallyFed: cfg.ExternallyFed,
		control:       make(chan any, 4),
		batchSize:     batchSize,
		recovery:      cfg.Recovery,
		limiter:       rate.NewLimiter(rate.Limit(50), 10),
		logger:        logger,
		metrics:       metrics,
		tracer:        tracer,
		state:         StateInitializing,
		initParams:    cfg.InitParams,
	}
}

// State returns the node's current state.
func (t *Task) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Control returns the control inbox used to send TuneRequest/StopRequest
// (spec §4.6 TuneNode, DestroySession).
func (t *Task) Control() chan<- any { return t.control }

// Run drives the node through Init, the batch-drain loop, and shutdown. It
// returns once Cleanup has completed and the node has reached Stopped (or
// Failed then Stopped). Run does not start the output distributors; the
// caller starts each one once before Run (Session.spawn does this).
func (t *Task) Run(ctx context.Context) {
	if t.runInit(ctx) {
		t.setState(StateReady)
		t.runLoop(ctx)
	}
	t.runShutdown(ctx)
}

func (t *Task) runInit(ctx context.Context) bool {
	ctx, span := t.tracer.Start(ctx, "node.init")
	defer span.End()
	res := t.instance.Init(ctx, t.initParams)
	if res.Severity == SeverityFatal {
		t.logger.Error(ctx, "node init failed", "node_id", t.ID, "kind", t.Kind, "err", errString(res.Err))
		span.RecordError(res.Err)
		t.setState(StateFailed)
		t.broadcastEndOfStream(ctx, nil)
		return false
	}
	return true
}

type loopAction int

const (
	loopContinue loopAction = iota
	loopEndOfStream
	loopStop
)

func (t *Task) runLoop(ctx context.Context) {
	// A node with no input pins (e.g. a source like src.constant) never has
	// a fire-able reflect.Select case of its own: waitAndDrainBatch would
	// block on ctx.Done()/control forever. The runtime instead delivers it
	// a synthetic end-of-stream immediately, which drives Flush (where such
	// nodes do their emitting) and then shuts the node down. A node that is
	// externally fed (the oneshot io.input boundary, written to directly by
	// RunOneshot) is zero-input for the same structural reason but must not
	// be auto-flushed; it keeps waiting on ctx.Done()/control like any other
	// node until the session tears it down.
	if len(t.inputOrder) == 0 && !t.externallyFed {
		if t.drainControlNonBlocking(ctx) == loopStop {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		t.flushAndBroadcastEOS(ctx, nil)
		return
	}

	for {
		if t.drainControlNonBlocking(ctx) == loopStop {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		switch t.waitAndDrainBatch(ctx) {
		case loopStop, loopEndOfStream:
			return
		case loopContinue:
		}
	}
}

// drainControlNonBlocking handles every control message currently queued
// without suspending, matching the pseudocode's drain_control_inbox step
// that runs at every batch boundary ahead of new data (spec §4.5, §9:
// control has strict priority over data).
func (t *Task) drainControlNonBlocking(ctx context.Context) loopAction {
	for {
		select {
		case msg := <-t.control:
			if t.handleControl(ctx, msg) == loopStop {
				return loopStop
			}
		default:
			return loopContinue
		}
	}
}

func (t *Task) handleControl(ctx context.Context, msg any) loopAction {
	switch m := msg.(type) {
	case TuneRequest:
		m.Reply <- t.applyTune(ctx, m.Patch)
		return loopContinue
	case StopRequest:
		defer close(m.Reply)
		return loopStop
	default:
		return loopContinue
	}
}

func (t *Task) applyTune(ctx context.Context, patch map[string]any) Result {
	for k := range patch {
		if !t.tunable[k] {
			return Result{Severity: SeverityFatal, Err: fmt.Errorf("%w: %q", ErrNotTunable, k)}
		}
	}
	if len(patch) == 0 {
		return OK()
	}
	res := t.instance.UpdateParams(ctx, patch)
	if res.Err != nil {
		t.logger.Warn(ctx, "tune rejected", "node_id", t.ID, "err", res.Err.Error())
	}
	return res
}

// waitAndDrainBatch implements wait_for_any + drain_up_to of spec §4.5: it
// blocks until data is available on some input pin, a control message
// arrives, or ctx is cancelled, then drains a fair batch and processes it.
func (t *Task) waitAndDrainBatch(ctx context.Context) loopAction {
	cases := make([]reflect.SelectCase, 0, len(t.inputOrder)+2)
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(t.control)})
	for _, pin := range t.inputOrder {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(t.inputs[pin].Chan())})
	}

	chosen, recv, ok := reflect.Select(cases)
	switch chosen {
	case 0:
		return loopStop
	case 1:
		if !ok {
			return loopStop
		}
		return t.handleControl(ctx, recv.Interface())
	default:
		if !ok {
			return loopStop
		}
		pin := t.inputOrder[chosen-2]
		p := recv.Interface().(packet.Packet)
		return t.drainBatch(ctx, pin, p)
	}
}

type batchItem struct {
	pin string
	p   packet.Packet
}

// drainBatch fills out a batch starting from the (pin, packet) pair that
// woke waitAndDrainBatch, then continues round-robin across every input pin
// with a per-pin credit of ceil(batch_size / pin_count) so a hot pin cannot
// starve its siblings (spec §4.5 "Fairness").
func (t *Task) drainBatch(ctx context.Context, firstPin string, first packet.Packet) loopAction {
	batch := []batchItem{{firstPin, first}}
	n := len(t.inputOrder)
	if n == 0 {
		n = 1
	}
	credit := (t.batchSize + n - 1) / n
	counts := make(map[string]int, n)
	counts[firstPin] = 1

	for len(batch) < t.batchSize {
		progressed := false
		for _, pin := range t.inputOrder {
			if len(batch) >= t.batchSize {
				break
			}
			if counts[pin] >= credit {
				continue
			}
			p, ok := t.inputs[pin].TryPop()
			if !ok {
				continue
			}
			batch = append(batch, batchItem{pin, p})
			counts[pin]++
			progressed = true
		}
		if !progressed {
			break
		}
	}

	for _, item := range batch {
		if _, isEOS := item.p.(packet.EndOfStream); isEOS {
			t.handleEndOfStream(ctx, item.p.(packet.EndOfStream))
			return loopEndOfStream
		}
		t.Stats.recordIn()
		if action := t.invokeProcess(ctx, item.pin, item.p); action == loopStop {
			return loopStop
		}
	}
	return loopContinue
}

func (t *Task) invokeProcess(ctx context.Context, pin string, p packet.Packet) loopAction {
	ctx, span := t.tracer.Start(ctx, "node.process")
	defer span.End()

	// Ready -> Running on the first packet received, so that a soft error
	// on that packet takes the legal Running -> Recovering path.
	if t.State() == StateReady {
		t.setState(StateRunning)
	}

	res := t.runProcessWithRetry(ctx, pin, p)

	switch res.Severity {
	case SeverityFatal:
		t.Stats.recordError()
		span.RecordError(res.Err)
		t.logger.Error(ctx, "node fatal error", "node_id", t.ID, "err", errString(res.Err))
		t.setState(StateFailed)
		t.broadcastEndOfStream(ctx, nil)
		return loopStop
	case SeveritySoft:
		t.Stats.recordError()
		t.logger.Warn(ctx, "node soft error, dropping packet", "node_id", t.ID, "err", errString(res.Err))
		t.enterRecovering(ctx)
		return loopContinue
	default:
		t.advanceRecovery(ctx)
		return loopContinue
	}
}

// runProcessWithRetry re-invokes Process on the same packet up to
// recovery.PacketRetries times after a soft error before giving up (spec
// §7); the default policy is zero retries: drop, log, continue.
func (t *Task) runProcessWithRetry(ctx context.Context, pin string, p packet.Packet) Result {
	var res Result
	attempts := t.recovery.PacketRetries + 1
	for i := 0; i < attempts; i++ {
		var emitted []batchItem
		emit := func(outPin string, pkt packet.Packet) {
			emitted = append(emitted, batchItem{outPin, pkt})
		}
		res = t.instance.Process(ctx, pin, p, emit)
		t.flushEmits(ctx, emitted)
		if res.Severity != SeveritySoft {
			return res
		}
		if i < attempts-1 {
			if err := t.limiter.Wait(ctx); err != nil {
				return res
			}
		}
	}
	return res
}

func (t *Task) flushEmits(ctx context.Context, emitted []batchItem) {
	for _, e := range emitted {
		d, ok := t.outputs[e.pin]
		if !ok {
			continue
		}
		if err := d.Send(ctx, e.p); err != nil {
			return
		}
		t.Stats.recordOut(1)
	}
}

func (t *Task) enterRecovering(ctx context.Context) {
	cur := t.State()
	if cur != StateRecovering {
		t.setState(StateRecovering)
	}
	t.recoveryStreak = 0
	t.recoverySince = time.Now()
}

// advanceRecovery applies the task's RecoveryPolicy on a clean process
// call while the node is Recovering or Degraded (spec table: "Recovering ->
// Running: recovery policy succeeded", "Recovering -> Degraded: partial
// success", "Degraded -> Running: next success").
func (t *Task) advanceRecovery(ctx context.Context) {
	cur := t.State()
	if cur != StateRecovering && cur != StateDegraded {
		if cur != StateRunning {
			t.setState(StateRunning)
		}
		return
	}

	switch t.recovery.Kind {
	case RecoveryByTimeWindow:
		window := time.Duration(t.recovery.Window)
		if window <= 0 || time.Since(t.recoverySince) >= window {
			t.setState(StateRunning)
			return
		}
	default: // RecoveryByRetryCount
		t.recoveryStreak++
		threshold := t.recovery.RetryCount
		if threshold <= 0 {
			threshold = 1
		}
		if t.recoveryStreak >= threshold {
			t.setState(StateRunning)
			return
		}
	}
	if cur == StateRecovering {
		t.setState(StateDegraded)
	}
}

func (t *Task) handleEndOfStream(ctx context.Context, eos packet.EndOfStream) {
	t.flushAndBroadcastEOS(ctx, eos.Meta_)
}

// flushAndBroadcastEOS runs Flush (the node's last chance to emit anything
// it was buffering, including a source node's entire output) and then
// forwards EndOfStream to every output pin, so a stream's end always
// propagates downstream the same way regardless of what triggered it: a
// real EndOfStream packet, a sourceless node's only pass through runLoop,
// or a fatal error upstream.
func (t *Task) flushAndBroadcastEOS(ctx context.Context, meta packet.Metadata) {
	var emitted []batchItem
	emit := func(outPin string, pkt packet.Packet) {
		emitted = append(emitted, batchItem{outPin, pkt})
	}
	res := t.instance.Flush(ctx, emit)
	if res.Err != nil {
		t.logger.Warn(ctx, "flush returned error", "node_id", t.ID, "err", res.Err.Error())
	}
	t.flushEmits(ctx, emitted)
	t.broadcastEndOfStream(ctx, meta)
}

// broadcastEndOfStream sends EndOfStream to every output pin without
// running Flush first, for the fatal-error paths (spec §7: "downstream
// receives EndOfStream on all of its pins") where the node has nothing
// left to flush cleanly.
func (t *Task) broadcastEndOfStream(ctx context.Context, meta packet.Metadata) {
	for _, d := range t.outputs {
		_ = d.Send(ctx, packet.EndOfStream{Meta_: meta})
	}
}

func (t *Task) runShutdown(ctx context.Context) {
	t.instance.Cleanup(ctx)
	for _, d := range t.outputs {
		d.Stop()
	}
	t.setState(StateStopped)
}

func (t *Task) setState(next State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == next {
		return
	}
	if !validTransition(t.state, next) {
		// A state machine bug would otherwise silently corrupt invariant 4;
		// force Failed rather than accept an illegal transition.
		t.logger.Error(context.Background(), "illegal state transition", "node_id", t.ID, "from", t.state.String(), "to", next.String())
		if next != StateStopped {
			t.state = StateFailed
			return
		}
	}
	t.state = next
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
