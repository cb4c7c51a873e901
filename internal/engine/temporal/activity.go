// Package temporal adapts the oneshot execution profile (spec §4.6
// RunOneshot) onto Temporal as a durable activity, for deployments where a
// oneshot pipeline run must survive a process restart mid-flight (e.g. a
// long transcription job queued from a workflow that also does billing or
// notification steps around it). The in-process engine.Supervisor remains
// the thing that actually builds and runs the plan; Temporal only adds
// at-least-once durability and retry around that call, mirroring how the
// teacher's Temporal engine adapter wraps a generic engine.Engine rather
// than reimplementing workflow execution itself.
package temporal

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"streamkit.dev/core/internal/engine"
	"streamkit.dev/core/internal/graph"
	"streamkit.dev/core/internal/packet"
)

// RunOneshotActivityName is the registered Temporal activity name workflows
// invoke to run a StreamKit pipeline durably.
const RunOneshotActivityName = "streamkit.RunOneshot"

// RunOneshotRequest is the activity input. Input packets are collected
// up front rather than streamed, since Temporal activity payloads are
// serialized as a single unit; long-running streaming oneshot runs should
// use the in-process engine.Supervisor directly instead of this adapter.
type RunOneshotRequest struct {
	Description graph.Description
	Input       []packet.Packet
}

// RunOneshotResult is the activity output.
type RunOneshotResult struct {
	Output []packet.Packet
}

// Activities bundles the Temporal activity implementations backed by a
// single Supervisor, registered once per worker (spec §5 "expensive
// synchronous work ... moved to a separate blocking-task executor" — here
// the executor is a Temporal worker's activity pool instead of an
// in-process goroutine pool).
type Activities struct {
	Supervisor *engine.Supervisor
}

// RunOneshot is the activity function. It feeds req.Input into the
// Supervisor's RunOneshot and returns the collected output, reporting
// heartbeats so Temporal does not time the activity out on long pipelines.
func (a *Activities) RunOneshot(ctx context.Context, req RunOneshotRequest) (*RunOneshotResult, error) {
	if a.Supervisor == nil {
		return nil, temporal.NewNonRetryableApplicationError("activities not wired to a supervisor", "Configuration", nil)
	}

	in := make(chan packet.Packet, len(req.Input))
	for _, p := range req.Input {
		in <- p
	}
	close(in)

	activity.RecordHeartbeat(ctx, "running")
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx, "running")
			}
		}
	}()
	out, err := a.Supervisor.RunOneshot(ctx, req.Description, in)
	if err != nil {
		return nil, fmt.Errorf("temporal: run oneshot: %w", err)
	}
	return &RunOneshotResult{Output: out}, nil
}

// RegisterWith registers the RunOneshot activity on a worker, using the
// canonical activity name so workflow code can invoke it without importing
// this package's Go symbol directly (e.g. from a generated workflow in a
// separate binary).
func (a *Activities) RegisterWith(w worker.Worker) {
	w.RegisterActivityWithOptions(a.RunOneshot, activity.RegisterOptions{Name: RunOneshotActivityName})
}

// RunOneshotWorkflow is a minimal workflow wrapping the activity with
// Temporal's default retry policy, for callers that want a durable handle
// (WorkflowID, history, queryability) around a single pipeline run rather
// than calling the activity directly from a larger workflow.
func RunOneshotWorkflow(ctx workflow.Context, req RunOneshotRequest) (*RunOneshotResult, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	var result RunOneshotResult
	if err := workflow.ExecuteActivity(ctx, RunOneshotActivityName, req).Get(ctx, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
