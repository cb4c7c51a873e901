package fabric_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"streamkit.dev/core/internal/fabric"
	"streamkit.dev/core/internal/packet"
)

func TestQueueCapacityOneMakesForwardProgress(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := fabric.NewQueue(1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			require.NoError(t, q.Push(ctx, packet.Text{Data: packet.NewStr("x")}))
		}
	}()

	for i := 0; i < 5; i++ {
		_, err := q.Pop(ctx)
		require.NoError(t, err)
	}
	<-done
}

func TestDistributorSingleSubscriberInline(t *testing.T) {
	ctx := context.Background()
	sub := fabric.Subscriber{NodeID: "b", Pin: "in", Queue: fabric.NewQueue(4)}
	d := fabric.NewDistributor("a", "out", 16, []fabric.Subscriber{sub}, nil, nil)
	d.Start(ctx)
	defer d.Stop()

	require.NoError(t, d.Send(ctx, packet.Text{Data: packet.NewStr("hello")}))
	got, err := sub.Queue.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "hello", got.(packet.Text).Data.String())
}

func TestDistributorFanOutPreservesOrderPerSubscriber(t *testing.T) {
	ctx := context.Background()
	subA := fabric.Subscriber{NodeID: "b", Pin: "in", Queue: fabric.NewQueue(8)}
	subB := fabric.Subscriber{NodeID: "c", Pin: "in", Queue: fabric.NewQueue(8)}
	d := fabric.NewDistributor("a", "out", 8, []fabric.Subscriber{subA, subB}, nil, nil)
	d.Start(ctx)
	defer d.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Send(ctx, packet.Text{Data: packet.NewStr(string(rune('1' + i)))}))
	}

	for _, q := range []*fabric.Queue{subA.Queue, subB.Queue} {
		for i := 0; i < 3; i++ {
			p, err := q.Pop(ctx)
			require.NoError(t, err)
			require.Equal(t, string(rune('1'+i)), p.(packet.Text).Data.String())
		}
	}
}

func TestDistributorZeroSubscribersDropsSilently(t *testing.T) {
	ctx := context.Background()
	d := fabric.NewDistributor("a", "out", 8, nil, nil, nil)
	d.Start(ctx)
	defer d.Stop()
	require.NoError(t, d.Send(ctx, packet.Text{}))
}
