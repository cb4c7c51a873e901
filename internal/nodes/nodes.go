// Package nodes provides a small set of reference node kinds used by the
// demo command and integration tests to exercise the engine end to end:
// a constant text source, an uppercasing transform, a counting sink, and
// the io.input/io.output boundary kinds RunOneshot wires into (spec §8
// scenario 1's "src.constant" / "core.uppercase" / "core.sink" and §4.6's
// oneshot I/O boundary).
package nodes

import (
	"context"
	"fmt"
	"strings"

	"streamkit.dev/core/internal/node"
	"streamkit.dev/core/internal/packet"
	"streamkit.dev/core/internal/registry"
)

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

// RegisterBuiltins registers every reference kind in this package with m.
func RegisterBuiltins(m *registry.Manager) error {
	kinds := []*registry.Kind{
		constantSourceKind(),
		uppercaseKind(),
		sinkKind(),
		ioInputKind(),
		ioOutputKind(),
	}
	for _, k := range kinds {
		if err := m.Register(k); err != nil {
			return err
		}
	}
	return nil
}

// constantSource emits its configured value count times, then stops (spec
// §8 scenario 1: "src.constant", params={value, count}").
type constantSource struct {
	value string
	count int
}

func (s *constantSource) Init(_ context.Context, params map[string]any) node.Result {
	if v, ok := params["value"].(string); ok {
		s.value = v
	}
	if c, ok := params["count"].(float64); ok {
		s.count = int(c)
	}
	return node.OK()
}

// Process is never called: constantSource has no input pins, so the
// runtime never drains a batch into it; Flush does the actual emitting on
// the synthetic EndOfStream the runtime delivers to source nodes with no
// inputs. Sources without any input pin are driven entirely through Flush.
func (s *constantSource) Process(context.Context, string, packet.Packet, node.EmitFunc) node.Result {
	return node.OK()
}

func (s *constantSource) UpdateParams(context.Context, map[string]any) node.Result { return node.OK() }

func (s *constantSource) Flush(_ context.Context, emit node.EmitFunc) node.Result {
	for i := 0; i < s.count; i++ {
		emit("out", packet.Text{Data: packet.NewStr(s.value)})
	}
	return node.OK()
}

func (s *constantSource) Cleanup(context.Context) {}

func constantSourceKind() *registry.Kind {
	schema, err := registry.CompileParamSchema("src.constant.json", []byte(`{
		"type": "object",
		"properties": {
			"value": {"type": "string"},
			"count": {"type": "number"}
		},
		"required": ["value", "count"]
	}`))
	if err != nil {
		panic(fmt.Sprintf("nodes: compile src.constant schema: %v", err))
	}
	return &registry.Kind{
		Name:       "src.constant",
		Outputs:    []node.Pin{textPin("out", node.DirOut)},
		Schema:     schema,
		Categories: []string{"source", "test"},
		Factory:    func() node.Instance { return &constantSource{} },
	}
}

// upperTransform uppercases Text packets, mirroring spec §8 scenario 1's
// "core.uppercase".
type upperTransform struct{}

func (upperTransform) Init(context.Context, map[string]any) node.Result { return node.OK() }

func (upperTransform) Process(_ context.Context, _ string, p packet.Packet, emit node.EmitFunc) node.Result {
	txt, ok := p.(packet.Text)
	if !ok {
		return node.Fatal(fmt.Errorf("nodes: core.uppercase: expected Text, got %T", p))
	}
	emit("out", packet.Text{Data: packet.NewStr(strings.ToUpper(txt.Data.String())), Meta_: txt.Meta_})
	return node.OK()
}

func (upperTransform) UpdateParams(context.Context, map[string]any) node.Result { return node.OK() }
func (upperTransform) Flush(context.Context, node.EmitFunc) node.Result         { return node.OK() }
func (upperTransform) Cleanup(context.Context)                                 {}

func uppercaseKind() *registry.Kind {
	return &registry.Kind{
		Name:       "core.uppercase",
		Inputs:     []node.Pin{textPin("in", node.DirIn)},
		Outputs:    []node.Pin{textPin("out", node.DirOut)},
		Categories: []string{"transform", "test"},
		Factory:    func() node.Instance { return &upperTransform{} },
	}
}

// sink counts the packets it receives and emits nothing (spec §8 scenario
// 1's "core.sink").
type sink struct{ received int }

func (s *sink) Init(context.Context, map[string]any) node.Result { return node.OK() }

func (s *sink) Process(context.Context, string, packet.Packet, node.EmitFunc) node.Result {
	s.received++
	return node.OK()
}

func (s *sink) UpdateParams(context.Context, map[string]any) node.Result { return node.OK() }
func (s *sink) Flush(context.Context, node.EmitFunc) node.Result         { return node.OK() }
func (s *sink) Cleanup(context.Context)                                 {}

func sinkKind() *registry.Kind {
	return &registry.Kind{
		Name:       "core.sink",
		Inputs:     []node.Pin{{Name: "in", Dir: node.DirIn, Arity: node.ArityOne, Accepted: []packet.TypeDescriptor{packet.Any()}}},
		Categories: []string{"sink", "test"},
		Factory:    func() node.Instance { return &sink{} },
	}
}

// ioBoundary is a transparent passthrough used for both io.input and
// io.output: RunOneshot writes directly into an io.input instance's output
// distributor and reads directly from an io.output instance's input queue
// (see internal/engine/oneshot.go), so the instance itself never actually
// runs Process in the oneshot path; it exists to give the graph builder a
// pin declaration and a real NodeInstance to report state/stats for.
type ioBoundary struct{}

func (ioBoundary) Init(context.Context, map[string]any) node.Result { return node.OK() }
func (ioBoundary) Process(_ context.Context, _ string, p packet.Packet, emit node.EmitFunc) node.Result {
	emit("out", p)
	return node.OK()
}
func (ioBoundary) UpdateParams(context.Context, map[string]any) node.Result { return node.OK() }
func (ioBoundary) Flush(context.Context, node.EmitFunc) node.Result         { return node.OK() }
func (ioBoundary) Cleanup(context.Context)                                 {}

func ioInputKind() *registry.Kind {
	return &registry.Kind{
		Name:       "io.input",
		Outputs:    []node.Pin{textPin("out", node.DirOut)},
		Categories: []string{"io"},
		Factory:    func() node.Instance { return &ioBoundary{} },
	}
}

func ioOutputKind() *registry.Kind {
	return &registry.Kind{
		Name:       "io.output",
		Inputs:     []node.Pin{{Name: "in", Dir: node.DirIn, Arity: node.ArityOne, Accepted: []packet.TypeDescriptor{packet.Any()}}},
		Categories: []string{"io"},
		Factory:    func() node.Instance { return &ioBoundary{} },
	}
}
