package fsm

import (
	"sync"

	"github.com/saidurrsaied/DPS-ESE/internal/platoon/eventqueue"
	"github.com/saidurrsaied/DPS-ESE/internal/platoon/wire"
)

// LeaderState is one of the states spec.md section 4.7 names.
type LeaderState int

const (
	LeaderStopped LeaderState = iota
	LeaderCruise
	LeaderEmergencyBrake
	LeaderIntruderFollow
)

func (s LeaderState) String() string {
	switch s {
	case LeaderStopped:
		return "Stopped"
	case LeaderCruise:
		return "Cruise"
	case LeaderEmergencyBrake:
		return "EmergencyBrake"
	case LeaderIntruderFollow:
		return "IntruderFollow"
	default:
		return "Unknown"
	}
}

// UserInput is the payload of a KindUserInput event: a single control
// key as named by spec.md section 6 ('w', 's', 'a', 'd', ' ', 'p', 'q').
type UserInput struct {
	Key byte
}

// FollowerMsg is the payload of a KindFollowerMsg event: one
// TCP-received report from a follower, tagged by which kind it is.
type FollowerMsg struct {
	Kind      wire.Kind // wire.KindIntruderReport or wire.KindFollowerEmergencyBrake
	Intruder  wire.IntruderInfo
	SessionID int
}

// LeaderConfig collects the tunables spec.md section 6 lists that the
// leader FSM needs.
type LeaderConfig struct {
	TickDT      float64
	SpeedStep   float64
	TargetGap   float64
	IntruderLen int
}

type pendingTurn struct {
	dir wire.Direction
}

// Leader is the leader-side state machine. It owns the leader's own
// Truck pose, unlike the topology registry which owns follower
// sessions; per spec.md section 5, the FSM is the sole writer of
// both `state` and (for the leader only) the truck it commands.
type Leader struct {
	mu sync.Mutex

	state             LeaderState
	truck             wire.Truck
	cmdID             uint64
	pending           *pendingTurn
	intruderLength    int
	formationComplete bool
	staleMode         bool

	cfg LeaderConfig
}

// NewLeader constructs a Leader FSM at rest, stopped, at the origin
// facing North.
func NewLeader(cfg LeaderConfig) *Leader {
	return &Leader{
		state: LeaderStopped,
		truck: wire.Truck{Dir: wire.North},
		cfg:   cfg,
	}
}

// State returns the current state.
func (l *Leader) State() LeaderState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Truck returns a snapshot of the leader's own pose.
func (l *Leader) Truck() wire.Truck {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.truck
}

// Handle dispatches one event and returns the effects the caller must
// perform. Handle never blocks and never itself performs I/O.
func (l *Leader) Handle(ev eventqueue.Event) []LeaderEffect {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch ev.Kind {
	case eventqueue.KindPlatoonFormed:
		l.formationComplete = true
		return []LeaderEffect{{Kind: LeaderEffectFinalizeTopology}}

	case eventqueue.KindTick:
		return l.handleTickLocked()

	case eventqueue.KindUserInput:
		in, _ := ev.Payload.(UserInput)
		return l.handleUserInputLocked(in)

	case eventqueue.KindFollowerMsg:
		msg, _ := ev.Payload.(FollowerMsg)
		return l.handleFollowerMsgLocked(msg)

	case eventqueue.KindShutdown:
		return []LeaderEffect{{Kind: LeaderEffectRequestShutdown}}

	default:
		return nil
	}
}

func (l *Leader) handleTickLocked() []LeaderEffect {
	if !l.formationComplete || l.staleMode {
		return nil
	}

	l.cmdID++
	cmd := wire.LeaderCommand{
		CommandID: l.cmdID,
		Leader:    l.truck,
	}
	turned := false
	if l.pending != nil {
		cmd.IsTurningEvent = true
		cmd.TurnPoint.X = l.truck.X
		cmd.TurnPoint.Y = l.truck.Y
		cmd.TurnDir = l.pending.dir
		l.truck.Dir = l.pending.dir
		l.pending = nil
		turned = true
	}

	l.moveTruckLocked()
	cmd.Leader = l.truck

	effects := []LeaderEffect{{Kind: LeaderEffectBroadcastCmd, Cmd: cmd}}
	if turned {
		effects = append(effects, LeaderEffect{Kind: LeaderEffectLocalTick})
	}
	return effects
}

// moveTruckLocked integrates the leader's own pose by speed*dt along
// its current heading, matching the follower physics loop's Euler
// step (spec.md section 4.10).
func (l *Leader) moveTruckLocked() {
	d := l.truck.Speed * l.cfg.TickDT
	switch l.truck.Dir {
	case wire.North:
		l.truck.Y += d
	case wire.South:
		l.truck.Y -= d
	case wire.East:
		l.truck.X += d
	case wire.West:
		l.truck.X -= d
	}
}

func (l *Leader) handleUserInputLocked(in UserInput) []LeaderEffect {
	if !l.formationComplete {
		return nil
	}
	switch in.Key {
	case 'w':
		l.truck.Speed += l.cfg.SpeedStep
		l.transitionOnSpeedLocked()
	case 's':
		l.truck.Speed -= l.cfg.SpeedStep
		l.transitionOnSpeedLocked()
	case 'a':
		l.pending = &pendingTurn{dir: l.truck.Dir.RotateLeft()}
	case 'd':
		l.pending = &pendingTurn{dir: l.truck.Dir.RotateRight()}
	case ' ':
		l.truck.Speed = 0
		l.state = LeaderEmergencyBrake
		return []LeaderEffect{{Kind: LeaderEffectBroadcastEmergencyBrake}}
	case 'p':
		l.staleMode = !l.staleMode
	case 'q':
		return []LeaderEffect{{Kind: LeaderEffectRequestShutdown}}
	}
	return nil
}

func (l *Leader) transitionOnSpeedLocked() {
	if l.truck.Speed <= 0 {
		l.truck.Speed = 0
		l.state = LeaderStopped
	} else {
		l.state = LeaderCruise
	}
}

func (l *Leader) handleFollowerMsgLocked(msg FollowerMsg) []LeaderEffect {
	switch msg.Kind {
	case wire.KindIntruderReport:
		if msg.Intruder.Cleared() {
			l.state = LeaderCruise
			l.intruderLength = 0
		} else {
			l.state = LeaderIntruderFollow
			l.truck.Speed = float64(msg.Intruder.Speed)
			l.intruderLength = msg.Intruder.Length
		}
		return nil
	case wire.KindFollowerEmergencyBrake:
		return []LeaderEffect{{Kind: LeaderEffectBroadcastEmergencyBrake}}
	default:
		return nil
	}
}

// IntruderLength returns the currently recorded intruder length, used
// by the spawn-geometry computation in topology registration.
func (l *Leader) IntruderLength() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.intruderLength
}
