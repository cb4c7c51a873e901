package node_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"streamkit.dev/core/internal/fabric"
	"streamkit.dev/core/internal/node"
	"streamkit.dev/core/internal/packet"
)

// upperInstance uppercases Text packets it receives, mirroring the
// "core.uppercase" node used in spec §8 scenario 1.
type upperInstance struct {
	gain   float64
	fails  int
}

func (u *upperInstance) Init(ctx context.Context, params map[string]any) node.Result {
	return node.OK()
}

func (u *upperInstance) Process(ctx context.Context, inPin string, p packet.Packet, emit node.EmitFunc) node.Result {
	if u.fails > 0 {
		u.fails--
		return node.Soft(errors.New("transient"))
	}
	txt, ok := p.(packet.Text)
	if !ok {
		return node.Fatal(errors.New("unexpected packet type"))
	}
	emit("out", packet.Text{Data: packet.NewStr(strings.ToUpper(txt.Data.String())), Meta_: txt.Meta_})
	return node.OK()
}

func (u *upperInstance) UpdateParams(ctx context.Context, patch map[string]any) node.Result {
	if g, ok := patch["gain"]; ok {
		u.gain = g.(float64)
	}
	return node.OK()
}

func (u *upperInstance) Flush(ctx context.Context, emit node.EmitFunc) node.Result { return node.OK() }
func (u *upperInstance) Cleanup(ctx context.Context)                              {}

func newWiredTask(t *testing.T, inst node.Instance, tunable map[string]bool) (*node.Task, *fabric.Queue, *fabric.Queue) {
	in := fabric.NewQueue(4)
	out := fabric.NewQueue(4)
	outSub := fabric.Subscriber{NodeID: "sink", Pin: "in", Queue: out}
	dist := fabric.NewDistributor("n1", "out", 4, []fabric.Subscriber{outSub}, nil, nil)

	task := node.NewTask(node.Config{
		ID:         "n1",
		Kind:       "core.uppercase",
		Instance:   inst,
		Tunable:    tunable,
		Inputs:     map[string]*fabric.Queue{"in": in},
		InputOrder: []string{"in"},
		Outputs:    map[string]*fabric.Distributor{"out": dist},
		BatchSize:  8,
		Recovery:   node.DefaultRecoveryPolicy(),
	})
	return task, in, out
}

func TestTaskProcessesAndPropagatesEndOfStream(t *testing.T) {
	inst := &upperInstance{}
	task, in, out := newWiredTask(t, inst, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		task.Run(ctx)
		close(done)
	}()

	require.NoError(t, in.Push(ctx, packet.Text{Data: packet.NewStr("hello")}))
	require.NoError(t, in.Push(ctx, packet.EndOfStream{}))

	got, err := out.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "HELLO", got.(packet.Text).Data.String())

	eos, err := out.Pop(ctx)
	require.NoError(t, err)
	require.IsType(t, packet.EndOfStream{}, eos)

	<-done
	require.Equal(t, node.StateStopped, task.State())
	snap := task.Stats.Snapshot()
	require.Equal(t, uint64(1), snap.PacketsIn)
	require.Equal(t, uint64(1), snap.PacketsOut)
}

func TestTaskFatalErrorTransitionsToFailedThenStopped(t *testing.T) {
	inst := &upperInstance{}
	task, in, _ := newWiredTask(t, inst, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		task.Run(ctx)
		close(done)
	}()

	require.NoError(t, in.Push(ctx, packet.RawAudio{}))
	<-done
	require.Equal(t, node.StateStopped, task.State())
	require.Equal(t, uint64(1), task.Stats.Snapshot().Errors)
}

func TestTaskTuneRejectsNonTunableProperty(t *testing.T) {
	inst := &upperInstance{}
	task, in, _ := newWiredTask(t, inst, map[string]bool{"gain": true})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go task.Run(ctx)

	reply := make(chan node.Result, 1)
	task.Control() <- node.TuneRequest{Patch: map[string]any{"gain": 0.5}, Reply: reply}
	res := <-reply
	require.Equal(t, node.SeverityOK, res.Severity)
	require.Equal(t, 0.5, inst.gain)

	reply2 := make(chan node.Result, 1)
	task.Control() <- node.TuneRequest{Patch: map[string]any{"nonexistent": true}, Reply: reply2}
	res2 := <-reply2
	require.ErrorIs(t, res2.Err, node.ErrNotTunable)
	require.Equal(t, 0.5, inst.gain)

	stopReply := make(chan struct{})
	task.Control() <- node.StopRequest{Reply: stopReply}
	<-stopReply
}
