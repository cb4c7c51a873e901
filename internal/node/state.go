package node

import "fmt"

// State is one of the node lifecycle states of spec §3/§4.5. A node is in
// exactly one state at any time (invariant 4); transitions are linear and
// one-way except Running <-> Recovering <-> Degraded.
type State int

const (
	StateInitializing State = iota
	StateReady
	StateRunning
	StateRecovering
	StateDegraded
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateRecovering:
		return "recovering"
	case StateDegraded:
		return "degraded"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions enumerates every legal (from, to) edge from the table in
// spec §4.5. validTransition is the single source of truth the runtime
// consults before mutating a NodeInstance's state.
var transitions = map[State]map[State]bool{
	StateInitializing: {StateReady: true, StateFailed: true},
	StateReady:        {StateRunning: true, StateFailed: true, StateStopped: true},
	StateRunning:       {StateRecovering: true, StateFailed: true, StateStopped: true},
	StateRecovering:    {StateRunning: true, StateDegraded: true, StateFailed: true, StateStopped: true},
	// Degraded <-> Recovering is part of the cyclic trio called out by
	// invariant 4 ("Running <-> Recovering <-> Degraded"); a node can slip
	// back into Recovering from Degraded on a fresh soft error.
	StateDegraded: {StateRunning: true, StateRecovering: true, StateFailed: true, StateStopped: true},
	StateFailed:   {StateStopped: true},
	StateStopped:  {},
}

// validTransition reports whether moving from s to next is legal.
func validTransition(s, next State) bool {
	allowed, ok := transitions[s]
	if !ok {
		return false
	}
	return allowed[next]
}

// RecoveryPolicy decides when a Recovering node returns to Running (spec §9
// Open Question). A Task takes its policy from Config.Recovery, which the
// engine fills from the session profile's TaskConfig.Recovery; the
// registry.Kind.Recovery field is not consulted.
type RecoveryPolicy struct {
	// Kind selects the policy family governing the Recovering/Degraded ->
	// Running transition.
	Kind RecoveryPolicyKind
	// RetryCount is consulted when Kind == RecoveryByRetryCount: the node
	// returns to Running after this many consecutive successful process
	// calls following a soft error; short of that it sits in Degraded.
	RetryCount int
	// Window is consulted when Kind == RecoveryByTimeWindow: the node
	// returns to Running once this much time has elapsed without a new
	// soft error.
	Window int64 // nanoseconds; kept as an int64 so it can cross Temporal activity boundaries untouched
	// PacketRetries is how many times the runtime re-invokes Process on the
	// very same packet after a soft error before giving up on it (spec §7:
	// "retries the same packet up to the node's declared retry policy").
	// The default is 0: drop the packet, log, continue.
	PacketRetries int
}

// RecoveryPolicyKind selects which RecoveryPolicy field is authoritative.
type RecoveryPolicyKind int

const (
	// RecoveryByRetryCount is the default policy (spec §9 resolves the
	// Open Question this way in SPEC_FULL.md).
	RecoveryByRetryCount RecoveryPolicyKind = iota
	RecoveryByTimeWindow
)

// DefaultRecoveryPolicy is the policy every engineconfig preset uses: three
// consecutive clean process calls return the node to Running.
func DefaultRecoveryPolicy() RecoveryPolicy {
	return RecoveryPolicy{Kind: RecoveryByRetryCount, RetryCount: 3}
}
