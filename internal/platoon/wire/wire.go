// Package wire implements the tagged-record wire messages of
// spec.md section 4.3: Leader->Follower (TCP), Follower->Leader
// (TCP), and Follower->Follower (UDP) envelopes, each carrying the
// sender's matrix clock snapshot.
//
// Every payload is its own struct with only the fields spec.md
// section 4.3 lists for it. Envelope is one struct carrying the Kind
// tag, the clock, and one pointer field per payload struct; only the
// field matching the Kind is set.
package wire

import (
	"fmt"

	"github.com/saidurrsaied/DPS-ESE/internal/platoon/clock"
)

// Kind tags which payload variant an Envelope carries.
type Kind int

const (
	// Leader -> Follower
	KindAssignID Kind = iota
	KindSpawn
	KindUpdateRear
	KindCmd
	KindLeaderEmergencyBrake

	// Follower -> Leader
	KindPosition
	KindFollowerEmergencyBrake
	KindIntruderReport

	// Follower -> Follower (UDP)
	KindPeerPosition
	KindPeerEmergencyBrake
	KindPeerIntruderReport

	numKinds
)

func (k Kind) Known() bool { return k >= 0 && k < numKinds }

func (k Kind) String() string {
	switch k {
	case KindAssignID:
		return "AssignID"
	case KindSpawn:
		return "Spawn"
	case KindUpdateRear:
		return "UpdateRear"
	case KindCmd:
		return "Cmd"
	case KindLeaderEmergencyBrake:
		return "LeaderEmergencyBrake"
	case KindPosition:
		return "Position"
	case KindFollowerEmergencyBrake:
		return "FollowerEmergencyBrake"
	case KindIntruderReport:
		return "IntruderReport"
	case KindPeerPosition:
		return "PeerPosition"
	case KindPeerEmergencyBrake:
		return "PeerEmergencyBrake"
	case KindPeerIntruderReport:
		return "PeerIntruderReport"
	default:
		return "Invalid"
	}
}

// Direction is a Direction the spec's truck/command types carry.
type Direction int

const (
	North Direction = iota
	East
	South
	West
)

func (d Direction) String() string {
	switch d {
	case North:
		return "North"
	case East:
		return "East"
	case South:
		return "South"
	case West:
		return "West"
	default:
		return "Unknown"
	}
}

// RotateLeft/RotateRight implement the 90-degree turns referenced by
// the leader FSM's 'a'/'d' user input handling (spec.md section 4.7).
func (d Direction) RotateLeft() Direction  { return (d + 3) % 4 }
func (d Direction) RotateRight() Direction { return (d + 1) % 4 }

// Truck mirrors spec.md section 3's Truck record.
type Truck struct {
	X, Y  float64
	Speed float64
	Dir   Direction
}

// NetInfo mirrors spec.md section 3's NetInfo record.
type NetInfo struct {
	IP   string
	Port int
}

// LeaderCommand mirrors spec.md section 3's LeaderCommand record.
type LeaderCommand struct {
	CommandID      uint64
	Leader         Truck
	IsTurningEvent bool
	TurnPoint      struct{ X, Y float64 }
	TurnDir        Direction
}

// IntruderInfo mirrors spec.md section 3's IntruderInfo record.
// Speed == 0 is the sentinel meaning "intruder cleared".
type IntruderInfo struct {
	Speed      int
	Length     int
	DurationMS uint32
}

func (i IntruderInfo) Cleared() bool { return i.Speed == 0 }

// Envelope is the tagged-union wire record. At most one pointer
// field, the one matching Kind, is non-nil (the EmergencyBrake kinds
// set none); the rest are nil and are simply not encoded by gob.
type Envelope struct {
	Kind  Kind
	Clock clock.Snapshot

	AssignID      *AssignIDPayload
	Spawn         *SpawnPayload
	UpdateRear    *UpdateRearPayload
	Cmd           *LeaderCommand
	Position      *PositionPayload
	IntruderReport *IntruderInfo
	// EmergencyBrake variants carry no payload beyond Kind+Clock.
}

type AssignIDPayload struct {
	ID int32
}

type SpawnPayload struct {
	X, Y float64
	Dir  Direction
}

type UpdateRearPayload struct {
	HasRear bool
	Rear    NetInfo
}

type PositionPayload struct {
	X, Y, Speed float64
}

// ErrUnknownKind is returned by decoders when an envelope declares a
// Kind outside the known range. Per spec.md section 4.3 ("receivers
// must tolerate unknown tags"), callers should treat this as a silent
// skip, not a fatal decode error.
type ErrUnknownKind struct{ Kind Kind }

func (e ErrUnknownKind) Error() string {
	return fmt.Sprintf("wire: unknown envelope kind %d", int(e.Kind))
}
