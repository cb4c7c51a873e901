// Package registry implements the process-wide Node Registry (spec §2.2): a
// mapping from a node kind string to a factory producing instances, guarded
// by a reader-biased lock since lookups vastly outnumber registrations, plus
// the JSON Schema parameter validation and the optional gRPC-based
// federation of remote registries described in SPEC_FULL.md's domain stack.
package registry

import (
	"streamkit.dev/core/internal/node"
)

// Factory produces an uninitialized node.Instance for one kind. Called once
// per NodeInstance during graph materialization (spec §4.4 step 2).
type Factory func() node.Instance

// Kind is a registered node type (spec §3 NodeKind entity).
type Kind struct {
	// Name is the kind string, e.g. "audio::gain" or "plugin::native::whisper".
	Name string
	// Inputs and Outputs declare the node's pins; immutable once registered.
	Inputs  []node.Pin
	Outputs []node.Pin
	// Schema is the JSON Schema (Draft 2020-12, with the "tunable"
	// extension) governing this kind's parameter map (spec §6).
	Schema *ParamSchema
	// Categories classify the kind for discovery/search (e.g. "audio", "ml").
	Categories []string
	// Recovery is a per-kind recovery policy. The engine does not read it:
	// every task of a session uses the profile's TaskConfig.Recovery.
	Recovery node.RecoveryPolicy
	// Bidirectional marks a kind whose declared output feeds back into its
	// own input; the self-edge is excluded from the acyclicity check
	// (spec §3 invariant 2, §9).
	Bidirectional bool
	// Factory constructs a new instance of this kind.
	Factory Factory
}

// Pin looks up a declared pin by name and direction.
func (k *Kind) Pin(name string, dir node.Direction) (node.Pin, bool) {
	pins := k.Inputs
	if dir == node.DirOut {
		pins = k.Outputs
	}
	for _, p := range pins {
		if p.Name == name {
			return p, true
		}
	}
	return node.Pin{}, false
}
