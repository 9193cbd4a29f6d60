package fsm

import (
	"testing"

	"github.com/saidurrsaied/DPS-ESE/internal/platoon/eventqueue"
	"github.com/saidurrsaied/DPS-ESE/internal/platoon/wire"
)

func testLeaderConfig() LeaderConfig {
	return LeaderConfig{TickDT: 0.25, SpeedStep: 0.5, TargetGap: 10, IntruderLen: 10}
}

// TestLeaderTickBeforeFormationIsSilent is part of S1's formation
// gating: before PlatoonFormed, Tick produces no broadcast.
func TestLeaderTickBeforeFormationIsSilent(t *testing.T) {
	l := NewLeader(testLeaderConfig())
	effects := l.Handle(eventqueue.Event{Kind: eventqueue.KindTick})
	if len(effects) != 0 {
		t.Fatalf("expected no effects before formation, got %v", effects)
	}
}

// TestLeaderPlatoonFormedTriggersFinalize covers S1's PlatoonFormed
// handling.
func TestLeaderPlatoonFormedTriggersFinalize(t *testing.T) {
	l := NewLeader(testLeaderConfig())
	effects := l.Handle(eventqueue.Event{Kind: eventqueue.KindPlatoonFormed})
	if len(effects) != 1 || effects[0].Kind != LeaderEffectFinalizeTopology {
		t.Fatalf("expected FinalizeTopology effect, got %v", effects)
	}
}

// TestLeaderTickAfterFormationBroadcastsWithIncreasingIDs is I4.
func TestLeaderTickAfterFormationBroadcastsWithIncreasingIDs(t *testing.T) {
	l := NewLeader(testLeaderConfig())
	l.Handle(eventqueue.Event{Kind: eventqueue.KindPlatoonFormed})

	var lastID uint64
	for i := 0; i < 3; i++ {
		effects := l.Handle(eventqueue.Event{Kind: eventqueue.KindTick})
		if len(effects) != 1 || effects[0].Kind != LeaderEffectBroadcastCmd {
			t.Fatalf("tick %d: expected one BroadcastCmd effect, got %v", i, effects)
		}
		if effects[0].Cmd.CommandID <= lastID {
			t.Fatalf("tick %d: expected strictly increasing command id, got %d after %d", i, effects[0].Cmd.CommandID, lastID)
		}
		lastID = effects[0].Cmd.CommandID
	}
}

// TestLeaderTickConsumingTurnEmitsLocalTick covers section 4.6's "each
// consumed waypoint triggers one local matrix-clock tick": a pending
// turn applied on Tick must emit LeaderEffectLocalTick alongside the
// broadcast.
func TestLeaderTickConsumingTurnEmitsLocalTick(t *testing.T) {
	l := NewLeader(testLeaderConfig())
	l.Handle(eventqueue.Event{Kind: eventqueue.KindPlatoonFormed})
	l.Handle(eventqueue.Event{Kind: eventqueue.KindUserInput, Payload: UserInput{Key: 'd'}})

	effects := l.Handle(eventqueue.Event{Kind: eventqueue.KindTick})
	if len(effects) != 2 {
		t.Fatalf("expected BroadcastCmd + LocalTick effects, got %v", effects)
	}
	if effects[0].Kind != LeaderEffectBroadcastCmd {
		t.Fatalf("expected first effect to be BroadcastCmd, got %v", effects[0])
	}
	if effects[1].Kind != LeaderEffectLocalTick {
		t.Fatalf("expected second effect to be LocalTick, got %v", effects[1])
	}
	if !effects[0].Cmd.IsTurningEvent {
		t.Fatal("expected the broadcast command to carry IsTurningEvent")
	}

	// A tick with no pending turn must not emit LocalTick.
	effects = l.Handle(eventqueue.Event{Kind: eventqueue.KindTick})
	if len(effects) != 1 || effects[0].Kind != LeaderEffectBroadcastCmd {
		t.Fatalf("expected only BroadcastCmd on a non-turning tick, got %v", effects)
	}
}

// TestLeaderStaleModeSilencesTick covers the 'p' diagnostic toggle.
func TestLeaderStaleModeSilencesTick(t *testing.T) {
	l := NewLeader(testLeaderConfig())
	l.Handle(eventqueue.Event{Kind: eventqueue.KindPlatoonFormed})
	l.Handle(eventqueue.Event{Kind: eventqueue.KindUserInput, Payload: UserInput{Key: 'p'}})

	effects := l.Handle(eventqueue.Event{Kind: eventqueue.KindTick})
	if len(effects) != 0 {
		t.Fatalf("expected tick to be silenced in stale mode, got %v", effects)
	}
}

// TestLeaderSpeedDownToZeroStops exercises the w/s accel/decel rule.
func TestLeaderSpeedDownToZeroStops(t *testing.T) {
	l := NewLeader(testLeaderConfig())
	l.Handle(eventqueue.Event{Kind: eventqueue.KindPlatoonFormed})
	l.Handle(eventqueue.Event{Kind: eventqueue.KindUserInput, Payload: UserInput{Key: 's'}})

	if l.State() != LeaderStopped {
		t.Fatalf("expected Stopped after decel to <=0, got %v", l.State())
	}
}

// TestLeaderEmergencyBroadcastsAndStops is S5's leader-side half.
func TestLeaderEmergencyBroadcastsAndStops(t *testing.T) {
	l := NewLeader(testLeaderConfig())
	l.Handle(eventqueue.Event{Kind: eventqueue.KindPlatoonFormed})
	l.Handle(eventqueue.Event{Kind: eventqueue.KindUserInput, Payload: UserInput{Key: 'w'}})

	effects := l.Handle(eventqueue.Event{Kind: eventqueue.KindUserInput, Payload: UserInput{Key: ' '}})
	if len(effects) != 1 || effects[0].Kind != LeaderEffectBroadcastEmergencyBrake {
		t.Fatalf("expected BroadcastEmergencyBrake effect, got %v", effects)
	}
	if l.State() != LeaderEmergencyBrake {
		t.Fatalf("expected EmergencyBrake state, got %v", l.State())
	}
	if l.Truck().Speed != 0 {
		t.Fatalf("expected speed zeroed, got %v", l.Truck().Speed)
	}
}

// TestLeaderIntruderReportAdoptsSpeed is the leader-side half of I9's
// counterpart transition.
func TestLeaderIntruderReportAdoptsSpeed(t *testing.T) {
	l := NewLeader(testLeaderConfig())
	l.Handle(eventqueue.Event{Kind: eventqueue.KindPlatoonFormed})

	l.Handle(eventqueue.Event{Kind: eventqueue.KindFollowerMsg, Payload: FollowerMsg{
		Kind:     wire.KindIntruderReport,
		Intruder: wire.IntruderInfo{Speed: 15, Length: 12},
	}})
	if l.State() != LeaderIntruderFollow {
		t.Fatalf("expected IntruderFollow, got %v", l.State())
	}
	if l.Truck().Speed != 15 {
		t.Fatalf("expected adopted intruder speed 15, got %v", l.Truck().Speed)
	}
	if l.IntruderLength() != 12 {
		t.Fatalf("expected recorded intruder length 12, got %v", l.IntruderLength())
	}

	l.Handle(eventqueue.Event{Kind: eventqueue.KindFollowerMsg, Payload: FollowerMsg{
		Kind:     wire.KindIntruderReport,
		Intruder: wire.IntruderInfo{Speed: 0},
	}})
	if l.State() != LeaderCruise {
		t.Fatalf("expected Cruise after clear, got %v", l.State())
	}
	if l.IntruderLength() != 0 {
		t.Fatalf("expected intruder length cleared, got %v", l.IntruderLength())
	}
}
