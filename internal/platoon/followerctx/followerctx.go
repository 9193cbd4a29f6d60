// Package followerctx assembles the follower role's components into
// one explicit context record, the follower-side counterpart to
// leaderctx.
package followerctx

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/saidurrsaied/DPS-ESE/internal/platoon/clock"
	"github.com/saidurrsaied/DPS-ESE/internal/platoon/config"
	"github.com/saidurrsaied/DPS-ESE/internal/platoon/eventqueue"
	"github.com/saidurrsaied/DPS-ESE/internal/platoon/fsm"
	"github.com/saidurrsaied/DPS-ESE/internal/platoon/metrics"
	"github.com/saidurrsaied/DPS-ESE/internal/platoon/shutdown"
	"github.com/saidurrsaied/DPS-ESE/internal/platoon/turns"
	"github.com/saidurrsaied/DPS-ESE/internal/platoon/watchdog"
	"github.com/saidurrsaied/DPS-ESE/internal/platoon/wire"
)

// Context bundles every collaborator the follower role's worker
// goroutines need. There is exactly one per process.
type Context struct {
	Cfg     config.Config
	Log     zerolog.Logger
	Metrics *metrics.Collector

	Queue     *eventqueue.Queue
	Machine   *fsm.Follower
	Watchdog  *watchdog.Watchdog
	Shutdown  *shutdown.Latch

	clockMu sync.Mutex
	clock   *clock.Matrix

	leaderConn *wire.Codec
	udpCodec   *wire.PacketCodec

	rearMu sync.Mutex
	rearTo net.Addr
}

// New constructs a follower Context. self is this node's 1-based
// matrix-clock index (leader occupies 0); n is the total node count.
func New(cfg config.Config, log zerolog.Logger, self, n int) (*Context, error) {
	mc, err := clock.New(self, n)
	if err != nil {
		return nil, fmt.Errorf("followerctx: %w", err)
	}
	m := metrics.New()
	q := eventqueue.New(cfg.MaxEvents, log, m)
	tq := turns.New(8)

	machine := fsm.NewFollower(fsm.FollowerConfig{
		TargetGap:        cfg.TargetGap,
		IntruderLength:   cfg.IntruderLength,
		MaxSpeedOverBase: cfg.MaxSpeedOverBase,
		Kp:               cfg.Kp,
		Kd:               cfg.Kd,
		DT:               float64(cfg.FollowerPhysMS) / 1000,
	}, tq)

	wd := watchdog.New(time.Duration(cfg.LeaderRxTimeoutMS)*time.Millisecond, nil)
	wd.SetMuted(true) // Platooning is the initial state; I6.

	return &Context{
		Cfg:      cfg,
		Log:      log,
		Metrics:  m,
		clock:    mc,
		Queue:    q,
		Machine:  machine,
		Watchdog: wd,
		Shutdown: &shutdown.Latch{},
	}, nil
}

func (c *Context) onSend() clock.Snapshot {
	c.clockMu.Lock()
	defer c.clockMu.Unlock()
	return c.clock.OnSend()
}

func (c *Context) onReceive(incoming clock.Snapshot) {
	c.clockMu.Lock()
	defer c.clockMu.Unlock()
	c.clock.OnReceive(incoming)
}

// onLocalTick advances the matrix clock's local component for a local
// event that is not itself a send, e.g. consuming a turn waypoint
// (spec.md section 4.6).
func (c *Context) onLocalTick() {
	c.clockMu.Lock()
	defer c.clockMu.Unlock()
	c.clock.LocalTick()
}

// Run starts every follower worker goroutine and blocks until
// shutdown completes, mirroring leaderctx.Context.Run.
func (c *Context) Run(ctx context.Context, leaderConn net.Conn, udpConn net.PacketConn) error {
	c.leaderConn = wire.NewCodec(leaderConn)
	c.Shutdown.RegisterCloser(leaderConn)
	c.Shutdown.RegisterCloser(udpConn)
	c.Shutdown.RegisterWaker(func() { c.Queue.Push(eventqueue.Event{Kind: eventqueue.KindShutdown}) })

	c.udpCodec = wire.NewPacketCodec(udpConn)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { c.runPhysicsLoop(gctx); return nil })
	g.Go(func() error { c.runLeaderReceiver(); return nil })
	g.Go(func() error { c.runUDPReceiver(c.udpCodec); return nil })
	g.Go(func() error {
		c.Watchdog.Run(c.Shutdown.Done(), time.Duration(c.Cfg.WatchdogPeriodMS)*time.Millisecond, func() {
			c.Metrics.IncWatchdogStale()
			c.Queue.Push(eventqueue.Event{Kind: eventqueue.KindLeaderTimeout})
		})
		return nil
	})
	g.Go(func() error { c.runFSMConsumer(gctx); return nil })

	// A cancelled ctx (SIGINT/SIGTERM in cmd/follower) requests shutdown
	// like any other trigger, so the wait below ends.
	go func() {
		select {
		case <-ctx.Done():
			c.Shutdown.Request("signal received")
		case <-c.Shutdown.Done():
		}
	}()

	<-c.Shutdown.Done()
	return g.Wait()
}

// runPhysicsLoop integrates the follower's own pose every
// FOLLOWER_PHYS_DT and forwards telemetry to the rear peer, per
// spec.md section 4.10. It is deliberately independent of the event
// queue so a saturated queue never stalls motion.
func (c *Context) runPhysicsLoop(ctx context.Context) {
	period := time.Duration(c.Cfg.FollowerPhysMS) * time.Millisecond
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Shutdown.Done():
			return
		case <-ticker.C:
			pos, effects := c.Machine.Tick()
			for _, eff := range effects {
				c.applyEffect(eff)
			}
			c.forwardRearPosition(pos)
		}
	}
}

func (c *Context) forwardRearPosition(pos wire.PositionPayload) {
	if !c.Machine.HasRear() {
		return
	}
	dst := c.rearDst()
	if dst == nil {
		return
	}
	clk := c.onSend()
	if err := c.udpCodec.WriteEnvelope(wire.Envelope{Kind: wire.KindPeerPosition, Clock: clk, Position: &pos}, dst); err != nil {
		c.Log.Warn().Err(err).Msg("udp position forward failed")
	}
}

func (c *Context) rearDst() net.Addr {
	c.rearMu.Lock()
	defer c.rearMu.Unlock()
	return c.rearTo
}

// setRearAddr resolves and records the outbound UDP address for the
// rear peer, called whenever an UpdateRear envelope arrives. Telemetry
// is always sent from the same listening socket the follower reads
// its own front-peer traffic on (net.PacketConn supports writing to
// an arbitrary address without a separate dialed socket).
func (c *Context) setRearAddr(info wire.NetInfo) {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", info.IP, info.Port))
	if err != nil {
		c.Log.Warn().Err(err).Msg("failed to resolve rear address")
		return
	}
	c.rearMu.Lock()
	c.rearTo = addr
	c.rearMu.Unlock()
}

// runLeaderReceiver reads leader-originated TCP envelopes and turns
// them into events, also feeding the watchdog's liveness tracking.
func (c *Context) runLeaderReceiver() {
	for {
		env, err := c.leaderConn.ReadEnvelope()
		if err != nil {
			if _, ok := err.(wire.ErrUnknownKind); ok {
				continue
			}
			return
		}
		c.onReceive(env.Clock)
		c.Watchdog.NoteLeaderMessage()

		switch env.Kind {
		case wire.KindAssignID:
			if env.AssignID != nil {
				c.Machine.SetIdentity(int(env.AssignID.ID))
			}
		case wire.KindUpdateRear:
			if env.UpdateRear != nil {
				c.Machine.SetRear(env.UpdateRear.HasRear, env.UpdateRear.Rear)
				if env.UpdateRear.HasRear {
					c.setRearAddr(env.UpdateRear.Rear)
				}
			}
		case wire.KindCmd:
			if env.Cmd != nil {
				c.Watchdog.SetMuted(false)
				c.Queue.Push(eventqueue.Event{Kind: eventqueue.KindCruiseCmd, Payload: *env.Cmd})
			}
		case wire.KindLeaderEmergencyBrake:
			c.Queue.Push(eventqueue.Event{Kind: eventqueue.KindEmergency})
		}
	}
}

// runUDPReceiver reads front-peer telemetry over UDP and turns it
// into Distance/Emergency events.
func (c *Context) runUDPReceiver(codec *wire.PacketCodec) {
	for {
		env, _, err := codec.ReadEnvelope()
		if err != nil {
			if _, ok := err.(wire.ErrUnknownKind); ok {
				continue
			}
			return
		}
		c.onReceive(env.Clock)

		switch env.Kind {
		case wire.KindPeerPosition:
			if env.Position != nil {
				c.Queue.Push(eventqueue.Event{Kind: eventqueue.KindDistance, Payload: *env.Position})
			}
		case wire.KindPeerEmergencyBrake:
			c.Queue.Push(eventqueue.Event{Kind: eventqueue.KindEmergency})
		}
	}
}

// runFSMConsumer pops events and performs the effects Handle returns.
func (c *Context) runFSMConsumer(ctx context.Context) {
	for {
		ev, ok := c.Queue.Pop(ctx)
		if !ok {
			return
		}
		for _, eff := range c.Machine.Handle(ev) {
			c.applyEffect(eff)
		}
		if ev.Kind == eventqueue.KindShutdown {
			return
		}
	}
}

func (c *Context) applyEffect(eff fsm.FollowerEffect) {
	switch eff.Kind {
	case fsm.FollowerEffectNotifyLeaderIntruder:
		clk := c.onSend()
		c.leaderConn.WriteEnvelope(wire.Envelope{Kind: wire.KindIntruderReport, Clock: clk, IntruderReport: &eff.Intruder})
	case fsm.FollowerEffectForwardRearEmergencyBrake:
		if dst := c.rearDst(); dst != nil {
			clk := c.onSend()
			c.udpCodec.WriteEnvelope(wire.Envelope{Kind: wire.KindPeerEmergencyBrake, Clock: clk}, dst)
		}
	case fsm.FollowerEffectStartEmergencyTimer:
		go func() {
			select {
			case <-time.After(5 * time.Second):
				c.Queue.Push(eventqueue.Event{Kind: eventqueue.KindEmergencyTimer})
			case <-c.Shutdown.Done():
			}
		}()
	case fsm.FollowerEffectRequestShutdown:
		c.Shutdown.Request("user requested shutdown")
	case fsm.FollowerEffectLocalTick:
		c.onLocalTick()
	}
}
