// Command demo builds a tiny StreamKit pipeline and runs it both as a
// oneshot request and as a dynamic session, printing the results and the
// session's event stream.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"streamkit.dev/core/internal/engine"
	"streamkit.dev/core/internal/engineconfig"
	"streamkit.dev/core/internal/graph"
	"streamkit.dev/core/internal/nodes"
	"streamkit.dev/core/internal/packet"
	"streamkit.dev/core/internal/registry"
)

func main() {
	ctx := context.Background()

	reg := registry.NewManager()
	if err := nodes.RegisterBuiltins(reg); err != nil {
		log.Fatalf("demo: register builtin node kinds: %v", err)
	}

	profile, err := engineconfig.Preset("balanced")
	if err != nil {
		log.Fatalf("demo: resolve profile: %v", err)
	}
	sup := engine.NewSupervisor(reg, profile)

	runOneshotDemo(ctx, sup)
	runDynamicDemo(ctx, sup)
}

// runOneshotDemo pushes a fixed batch of text packets through an
// uppercasing pipeline and prints what comes out the other side.
func runOneshotDemo(ctx context.Context, sup *engine.Supervisor) {
	desc := graph.Description{
		Name: "demo-oneshot",
		Mode: graph.ModeOneshot,
		Steps: []graph.NodeSpec{
			{ID: "in", Kind: "io.input"},
			{ID: "shout", Kind: "core.uppercase"},
			{ID: "out", Kind: "io.output"},
		},
	}

	input := make(chan packet.Packet, 2)
	input <- packet.Text{Data: packet.NewStr("hello streamkit")}
	input <- packet.Text{Data: packet.NewStr("goodbye streamkit")}
	close(input)

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := sup.RunOneshot(runCtx, desc, input)
	if err != nil {
		log.Fatalf("demo: oneshot run: %v", err)
	}

	fmt.Println("oneshot output:")
	for _, p := range out {
		txt, ok := p.(packet.Text)
		if !ok {
			continue
		}
		fmt.Printf("  %s\n", txt.Data.String())
	}
}

// runDynamicDemo creates a long-lived session, subscribes to its event
// stream, lets a constant source free-run for a moment, then tears it down.
func runDynamicDemo(ctx context.Context, sup *engine.Supervisor) {
	desc := graph.Description{
		Name: "demo-dynamic",
		Mode: graph.ModeDynamic,
		Steps: []graph.NodeSpec{
			{ID: "src", Kind: "src.constant", Params: map[string]any{"value": "tick", "count": float64(3)}},
			{ID: "shout", Kind: "core.uppercase"},
			{ID: "sink", Kind: "core.sink"},
		},
	}

	sess, err := sup.CreateSession(ctx, "demo-session", desc)
	if err != nil {
		log.Fatalf("demo: create session: %v", err)
	}

	evCh, unsubscribe, err := sup.SubscribeEvents(sess.ID, 16)
	if err != nil {
		log.Fatalf("demo: subscribe events: %v", err)
	}
	defer unsubscribe()

	fmt.Println("dynamic session events:")
	timeout := time.After(500 * time.Millisecond)
drain:
	for {
		select {
		case ev, ok := <-evCh:
			if !ok {
				break drain
			}
			fmt.Printf("  node=%s kind=%s\n", ev.NodeID, ev.Kind)
		case <-timeout:
			break drain
		}
	}

	if err := sup.DestroySession(ctx, sess.ID); err != nil {
		log.Fatalf("demo: destroy session: %v", err)
	}
}
