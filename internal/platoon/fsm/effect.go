// Package fsm implements the leader and follower finite state machines
// of spec.md sections 4.7-4.8: explicit switch-dispatched transition
// functions over the event kinds emitted by the priority event queue.
//
// Following spec.md section 9's "tagged unions with overlapping
// payloads" re-architecture note, every side effect a transition
// needs to perform (broadcast a command, forward a UDP datagram,
// notify the leader of an intruder) is returned as an explicit Effect
// value rather than performed in place. This keeps Handle a pure
// function of (state, event) and pushes all I/O to the caller, which
// already owns the sockets and the topology registry under its own
// lock order (spec.md section 5).
package fsm

import "github.com/saidurrsaied/DPS-ESE/internal/platoon/wire"

// LeaderEffectKind tags the variant a LeaderEffect carries.
type LeaderEffectKind int

const (
	LeaderEffectBroadcastCmd LeaderEffectKind = iota
	LeaderEffectBroadcastEmergencyBrake
	LeaderEffectFinalizeTopology
	LeaderEffectRequestShutdown
	// LeaderEffectLocalTick signals that a pending turn was consumed
	// this Tick, so the caller must advance the matrix clock's local
	// component once, per spec.md section 4.6's "each consumed
	// waypoint triggers one local matrix-clock tick".
	LeaderEffectLocalTick
)

// LeaderEffect is one action the caller must perform after a Handle
// call returns. Only the field matching Kind is meaningful.
type LeaderEffect struct {
	Kind LeaderEffectKind
	Cmd  wire.LeaderCommand
}

// FollowerEffectKind tags the variant a FollowerEffect carries.
type FollowerEffectKind int

const (
	FollowerEffectNotifyLeaderIntruder FollowerEffectKind = iota
	FollowerEffectForwardRearEmergencyBrake
	FollowerEffectStartEmergencyTimer
	FollowerEffectRequestShutdown
	// FollowerEffectLocalTick is the follower-side counterpart of
	// LeaderEffectLocalTick, emitted by Tick when it consumes a
	// waypoint.
	FollowerEffectLocalTick
)

// FollowerEffect is one action the caller must perform after a
// Handle or Tick call returns.
type FollowerEffect struct {
	Kind     FollowerEffectKind
	Intruder wire.IntruderInfo
}
