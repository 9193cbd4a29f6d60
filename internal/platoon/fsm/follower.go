package fsm

import (
	"sync"

	"github.com/saidurrsaied/DPS-ESE/internal/platoon/control"
	"github.com/saidurrsaied/DPS-ESE/internal/platoon/eventqueue"
	"github.com/saidurrsaied/DPS-ESE/internal/platoon/turns"
	"github.com/saidurrsaied/DPS-ESE/internal/platoon/wire"
)

// FollowerState is one of the states spec.md section 4.8 names.
type FollowerState int

const (
	Platooning FollowerState = iota
	Cruise
	IntruderFollow
	EmergencyBrake
	Stopped
)

func (s FollowerState) String() string {
	switch s {
	case Platooning:
		return "Platooning"
	case Cruise:
		return "Cruise"
	case IntruderFollow:
		return "IntruderFollow"
	case EmergencyBrake:
		return "EmergencyBrake"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// FollowerConfig collects the tunables the follower FSM needs from
// spec.md section 6.
type FollowerConfig struct {
	TargetGap        float64
	IntruderLength   int
	MaxSpeedOverBase float64
	Kp, Kd           float64
	DT               float64
}

// Follower is the follower-side state machine. It owns the
// follower's own Truck pose and every field spec.md section 3 lists
// under "Follower" global per-role state.
type Follower struct {
	mu sync.Mutex

	state             FollowerState
	truck             wire.Truck
	frontRef          wire.Truck
	leaderBaseSpeed   float64
	platoonPosition   int
	hasRear           bool
	rearAddress       wire.NetInfo
	currentIntruder   wire.IntruderInfo
	currentTargetGap  float64
	needsSpawnSnap    bool
	haveFrontPosition bool

	turnQueue *turns.Queue
	cfg       FollowerConfig
}

// NewFollower constructs a Follower FSM in the initial Platooning
// state, per spec.md section 4.8.
func NewFollower(cfg FollowerConfig, turnQueue *turns.Queue) *Follower {
	return &Follower{
		state:          Platooning,
		needsSpawnSnap: true,
		turnQueue:      turnQueue,
		cfg:            cfg,
	}
}

// State returns the current state.
func (f *Follower) State() FollowerState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Truck returns a snapshot of the follower's own pose.
func (f *Follower) Truck() wire.Truck {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.truck
}

// SetIdentity records the platoon position the topology protocol has
// assigned, per spec.md section 4.3's AssignId message. Rear wiring
// is recorded separately by SetRear.
func (f *Follower) SetIdentity(platoonPosition int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.platoonPosition = platoonPosition
}

// SetRear records the follower's current rear-chain wiring.
func (f *Follower) SetRear(hasRear bool, rear wire.NetInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hasRear = hasRear
	f.rearAddress = rear
}

// HasRear and RearAddress report the current rear-chain wiring, used
// by the caller to decide whether/where to forward UDP telemetry.
func (f *Follower) HasRear() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasRear
}

func (f *Follower) RearAddress() wire.NetInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rearAddress
}

// Handle dispatches one event and returns the effects the caller must
// perform.
func (f *Follower) Handle(ev eventqueue.Event) []FollowerEffect {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch ev.Kind {
	case eventqueue.KindCruiseCmd:
		cmd, _ := ev.Payload.(wire.LeaderCommand)
		return f.onCruiseCmdLocked(cmd)

	case eventqueue.KindDistance:
		pos, _ := ev.Payload.(wire.PositionPayload)
		return f.onDistanceLocked(pos)

	case eventqueue.KindIntruder:
		info, _ := ev.Payload.(wire.IntruderInfo)
		return f.onIntruderLocked(info)

	case eventqueue.KindIntruderClear:
		return f.onIntruderClearLocked()

	case eventqueue.KindEmergency:
		return f.onEmergencyLocked()

	case eventqueue.KindEmergencyTimer:
		return f.onEmergencyTimerLocked()

	case eventqueue.KindLeaderTimeout:
		return f.onLeaderTimeoutLocked()

	case eventqueue.KindShutdown:
		return []FollowerEffect{{Kind: FollowerEffectRequestShutdown}}

	default:
		return nil
	}
}

func (f *Follower) onCruiseCmdLocked(cmd wire.LeaderCommand) []FollowerEffect {
	switch f.state {
	case EmergencyBrake:
		return nil
	default:
		widened := f.state == IntruderFollow
		f.applyCmdLocked(cmd, widened)
		if f.state != IntruderFollow {
			f.state = Cruise
		}
		if cmd.IsTurningEvent {
			f.turnQueue.Push(turns.Waypoint{X: cmd.TurnPoint.X, Y: cmd.TurnPoint.Y, Dir: cmd.TurnDir})
		}
		return nil
	}
}

func (f *Follower) applyCmdLocked(cmd wire.LeaderCommand, widened bool) {
	f.leaderBaseSpeed = cmd.Leader.Speed

	if f.needsSpawnSnap && f.platoonPosition > 0 {
		offset := float64(f.platoonPosition)*f.cfg.TargetGap + float64(f.cfg.IntruderLength)
		f.truck.X, f.truck.Y = behind(cmd.Leader, offset)
		f.truck.Dir = cmd.Leader.Dir
		f.needsSpawnSnap = false
	}

	front := cmd.Leader
	if f.platoonPosition > 1 && f.haveFrontPosition {
		front = f.frontRef
	}

	gap := f.cfg.TargetGap
	if widened {
		gap += float64(f.currentIntruder.Length)
	}
	f.currentTargetGap = gap

	f.truck.Speed = control.Step(control.Inputs{
		CurrentSpeed:     f.truck.Speed,
		FrontX:           front.X,
		FrontY:           front.Y,
		FrontSpeed:       front.Speed,
		LeaderBaseSpeed:  f.leaderBaseSpeed,
		SelfX:            f.truck.X,
		SelfY:            f.truck.Y,
		TargetGap:        gap,
		DT:               f.cfg.DT,
		Kp:               f.cfg.Kp,
		Kd:               f.cfg.Kd,
		MaxSpeedOverBase: f.cfg.MaxSpeedOverBase,
	})
}

// behind computes the spawn-snap position TARGET_GAP*k+INTRUDER_LENGTH
// back along leader's heading, per spec.md section 6.
func behind(leader wire.Truck, offset float64) (x, y float64) {
	switch leader.Dir {
	case wire.North:
		return leader.X, leader.Y - offset
	case wire.South:
		return leader.X, leader.Y + offset
	case wire.East:
		return leader.X - offset, leader.Y
	case wire.West:
		return leader.X + offset, leader.Y
	default:
		return leader.X, leader.Y
	}
}

func (f *Follower) onDistanceLocked(pos wire.PositionPayload) []FollowerEffect {
	switch f.state {
	case Platooning, EmergencyBrake:
		return nil
	case Stopped:
		f.frontRef = wire.Truck{X: pos.X, Y: pos.Y, Speed: pos.Speed}
		f.haveFrontPosition = true
		return nil
	default: // Cruise, IntruderFollow
		if f.platoonPosition <= 1 {
			return nil
		}
		f.frontRef = wire.Truck{X: pos.X, Y: pos.Y, Speed: pos.Speed}
		f.haveFrontPosition = true

		widened := f.state == IntruderFollow
		gap := f.cfg.TargetGap
		if widened {
			gap += float64(f.currentIntruder.Length)
		}
		f.currentTargetGap = gap

		f.truck.Speed = control.Step(control.Inputs{
			CurrentSpeed:     f.truck.Speed,
			FrontX:           f.frontRef.X,
			FrontY:           f.frontRef.Y,
			FrontSpeed:       f.frontRef.Speed,
			LeaderBaseSpeed:  f.leaderBaseSpeed,
			SelfX:            f.truck.X,
			SelfY:            f.truck.Y,
			TargetGap:        gap,
			DT:               f.cfg.DT,
			Kp:               f.cfg.Kp,
			Kd:               f.cfg.Kd,
			MaxSpeedOverBase: f.cfg.MaxSpeedOverBase,
		})
		return nil
	}
}

func (f *Follower) onIntruderLocked(info wire.IntruderInfo) []FollowerEffect {
	switch f.state {
	case Cruise:
		f.state = IntruderFollow
		f.currentIntruder = info
		return []FollowerEffect{{Kind: FollowerEffectNotifyLeaderIntruder, Intruder: info}}
	case IntruderFollow:
		f.currentIntruder = info
		return []FollowerEffect{{Kind: FollowerEffectNotifyLeaderIntruder, Intruder: info}}
	default:
		return nil
	}
}

func (f *Follower) onIntruderClearLocked() []FollowerEffect {
	if f.state != IntruderFollow {
		return nil
	}
	f.state = Cruise
	cleared := f.currentIntruder
	cleared.Speed = 0
	f.currentIntruder = wire.IntruderInfo{}
	return []FollowerEffect{{Kind: FollowerEffectNotifyLeaderIntruder, Intruder: cleared}}
}

func (f *Follower) onEmergencyLocked() []FollowerEffect {
	if f.state == EmergencyBrake {
		return nil
	}
	f.state = EmergencyBrake
	f.truck.Speed = 0

	effects := []FollowerEffect{{Kind: FollowerEffectStartEmergencyTimer}}
	if f.hasRear {
		effects = append(effects, FollowerEffect{Kind: FollowerEffectForwardRearEmergencyBrake})
	}
	return effects
}

func (f *Follower) onEmergencyTimerLocked() []FollowerEffect {
	if f.state != EmergencyBrake {
		return nil
	}
	f.state = Cruise
	return nil
}

func (f *Follower) onLeaderTimeoutLocked() []FollowerEffect {
	switch f.state {
	case Cruise, IntruderFollow:
		f.state = Stopped
		f.truck.Speed = 0
	}
	return nil
}

// Tick integrates the follower's own pose by speed*dt along its
// current heading and consults the turn queue, per spec.md section
// 4.10. It is driven by a dedicated ticker decoupled from the event
// queue, not by Handle, so a saturated queue never stalls motion. The
// returned effects carry FollowerEffectLocalTick whenever a waypoint
// was consumed this call, per spec.md section 4.6.
func (f *Follower) Tick() (wire.PositionPayload, []FollowerEffect) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == Stopped {
		f.truck.Speed = 0
	}

	d := f.truck.Speed * f.cfg.DT
	switch f.truck.Dir {
	case wire.North:
		f.truck.Y += d
	case wire.South:
		f.truck.Y -= d
	case wire.East:
		f.truck.X += d
	case wire.West:
		f.truck.X -= d
	}

	var effects []FollowerEffect
	if wp, ok := f.turnQueue.CheckAndUpdate(f.truck.X, f.truck.Y, f.truck.Dir); ok {
		f.truck.X, f.truck.Y = wp.X, wp.Y
		f.truck.Dir = wp.Dir
		effects = append(effects, FollowerEffect{Kind: FollowerEffectLocalTick})
	}

	return wire.PositionPayload{X: f.truck.X, Y: f.truck.Y, Speed: f.truck.Speed}, effects
}
