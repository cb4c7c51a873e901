package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"streamkit.dev/core/internal/engine"
	"streamkit.dev/core/internal/graph"
	"streamkit.dev/core/internal/node"
	"streamkit.dev/core/internal/packet"
	"streamkit.dev/core/internal/registry"
)

type passthroughInstance struct{}

func (passthroughInstance) Init(context.Context, map[string]any) node.Result { return node.OK() }
func (passthroughInstance) Process(_ context.Context, _ string, p packet.Packet, emit node.EmitFunc) node.Result {
	emit("out", p)
	return node.OK()
}
func (passthroughInstance) UpdateParams(context.Context, map[string]any) node.Result { return node.OK() }
func (passthroughInstance) Flush(context.Context, node.EmitFunc) node.Result         { return node.OK() }
func (passthroughInstance) Cleanup(context.Context)                                 {}

type upperInstance struct{}

func (upperInstance) Init(context.Context, map[string]any) node.Result { return node.OK() }
func (upperInstance) Process(_ context.Context, _ string, p packet.Packet, emit node.EmitFunc) node.Result {
	txt := p.(packet.Text)
	emit("out", packet.Text{Data: packet.NewStr(strings.ToUpper(txt.Data.String()))})
	return node.OK()
}
func (upperInstance) UpdateParams(context.Context, map[string]any) node.Result { return node.OK() }
func (upperInstance) Flush(context.Context, node.EmitFunc) node.Result         { return node.OK() }
func (upperInstance) Cleanup(context.Context)                                 {}

func textPin(name string, dir node.Direction) node.Pin {
	p := node.Pin{Name: name, Dir: dir}
	if dir == node.DirOut {
		p.Produces = packet.TypeDescriptor{Discriminant: packet.KindText}
		p.Arity = node.ArityBroadcast
	} else {
		p.Accepted = []packet.TypeDescriptor{{Discriminant: packet.KindText}}
		p.Arity = node.ArityOne
	}
	return p
}

func newOneshotRegistry(t *testing.T) *registry.Manager {
	t.Helper()
	m := registry.NewManager()
	require.NoError(t, m.Register(&registry.Kind{
		Name:    "io.input",
		Outputs: []node.Pin{textPin("out", node.DirOut)},
		Factory: func() node.Instance { return &passthroughInstance{} },
	}))
	require.NoError(t, m.Register(&registry.Kind{
		Name:    "core.uppercase",
		Inputs:  []node.Pin{textPin("in", node.DirIn)},
		Outputs: []node.Pin{textPin("out", node.DirOut)},
		Factory: func() node.Instance { return &upperInstance{} },
	}))
	require.NoError(t, m.Register(&registry.Kind{
		Name:   "io.output",
		Inputs: []node.Pin{textPin("in", node.DirIn)},
		Factory: func() node.Instance { return &passthroughInstance{} },
	}))
	return m
}

func TestRunOneshotUppercasesThroughIOBoundaryNodes(t *testing.T) {
	reg := newOneshotRegistry(t)
	sup := engine.NewSupervisor(reg, engine.Profile{})

	desc := graph.Description{
		Mode: graph.ModeOneshot,
		Steps: []graph.NodeSpec{
			{ID: "in", Kind: "io.input"},
			{ID: "up", Kind: "core.uppercase"},
			{ID: "out", Kind: "io.output"},
		},
	}

	input := make(chan packet.Packet, 2)
	input <- packet.Text{Data: packet.NewStr("hello")}
	input <- packet.Text{Data: packet.NewStr("world")}
	close(input)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := sup.RunOneshot(ctx, desc, input)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "HELLO", out[0].(packet.Text).Data.String())
	require.Equal(t, "WORLD", out[1].(packet.Text).Data.String())
}

// singleShotSource emits one Text packet through Flush, mirroring
// src.constant without pulling in the nodes package.
type singleShotSource struct{}

func (singleShotSource) Init(context.Context, map[string]any) node.Result { return node.OK() }
func (singleShotSource) Process(context.Context, string, packet.Packet, node.EmitFunc) node.Result {
	return node.OK()
}
func (singleShotSource) UpdateParams(context.Context, map[string]any) node.Result { return node.OK() }
func (singleShotSource) Flush(_ context.Context, emit node.EmitFunc) node.Result {
	emit("out", packet.Text{Data: packet.NewStr("boom")})
	return node.OK()
}
func (singleShotSource) Cleanup(context.Context) {}

// alwaysFatalInstance fails every packet it sees, simulating a node whose
// process step hits an unrecoverable error (spec §7, §8 scenario 6 "Fatal
// node isolation").
type alwaysFatalInstance struct{}

func (alwaysFatalInstance) Init(context.Context, map[string]any) node.Result { return node.OK() }
func (alwaysFatalInstance) Process(context.Context, string, packet.Packet, node.EmitFunc) node.Result {
	return node.Fatal(errors.New("boom"))
}
func (alwaysFatalInstance) UpdateParams(context.Context, map[string]any) node.Result { return node.OK() }
func (alwaysFatalInstance) Flush(context.Context, node.EmitFunc) node.Result         { return node.OK() }
func (alwaysFatalInstance) Cleanup(context.Context)                                 {}

func newFatalIsolationRegistry(t *testing.T) *registry.Manager {
	t.Helper()
	m := registry.NewManager()
	require.NoError(t, m.Register(&registry.Kind{
		Name:    "src",
		Outputs: []node.Pin{textPin("out", node.DirOut)},
		Factory: func() node.Instance { return &singleShotSource{} },
	}))
	require.NoError(t, m.Register(&registry.Kind{
		Name:    "failer",
		Inputs:  []node.Pin{textPin("in", node.DirIn)},
		Outputs: []node.Pin{textPin("out", node.DirOut)},
		Factory: func() node.Instance { return &alwaysFatalInstance{} },
	}))
	require.NoError(t, m.Register(&registry.Kind{
		Name:   "sink",
		Inputs: []node.Pin{textPin("in", node.DirIn)},
		Factory: func() node.Instance { return &passthroughInstance{} },
	}))
	return m
}

func TestFatalRequiredNodeShutsDownWholeSession(t *testing.T) {
	reg := newFatalIsolationRegistry(t)
	sup := engine.NewSupervisor(reg, engine.Profile{ShutdownGrace: time.Second})

	desc := graph.Description{
		Name: "scenario6",
		Mode: graph.ModeDynamic,
		Steps: []graph.NodeSpec{
			{ID: "src", Kind: "src"},
			{ID: "mid", Kind: "failer", Needs: graph.NeedsRequired},
			{ID: "sink", Kind: "sink"},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sess, err := sup.CreateSession(ctx, "scenario6", desc)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		failed, _ := sess.Failed()
		return failed
	}, time.Second, 10*time.Millisecond, "session never marked Failed")

	failed, failedBy := sess.Failed()
	require.True(t, failed)
	require.Equal(t, "mid", failedBy)

	// The automatic shutdown must tear down every task, including the sink
	// downstream of the failed node, not just the node that failed.
	require.Eventually(t, func() bool {
		snap, err := sup.QueryGraph(sess.ID)
		require.NoError(t, err)
		for _, n := range snap.Nodes {
			if n.State != node.StateStopped && n.State != node.StateFailed {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond, "session never finished shutting down")
}

func TestTuneNodeRejectsUnknownSession(t *testing.T) {
	reg := newOneshotRegistry(t)
	sup := engine.NewSupervisor(reg, engine.Profile{})
	err := sup.TuneNode(context.Background(), "nope", "n1", map[string]any{"gain": 1.0})
	require.Error(t, err)
	var notFound *engine.NotFoundError
	require.ErrorAs(t, err, &notFound)
}
