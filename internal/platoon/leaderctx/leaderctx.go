// Package leaderctx assembles the leader role's components into one
// explicit context record, replacing the ambient globals spec.md
// section 9 flags for re-architecture: the event queue, topology
// registry, matrix clock, and shutdown latch are fields here, owned
// by one value passed to each worker goroutine, instead of
// package-level variables shared implicitly.
package leaderctx

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
	"github.com/saidurrsaied/DPS-ESE/internal/platoon/topology"
	"github.com/saidurrsaied/DPS-ESE/internal/platoon/wire"
)

// Context bundles every collaborator the leader role's worker
// goroutines need. There is exactly one per process.
type Context struct {
	Cfg     config.Config
	Log     zerolog.Logger
	Metrics *metrics.Collector

	Queue    *eventqueue.Queue
	Topology *topology.Registry
	Machine  *fsm.Leader
	Shutdown *shutdown.Latch

	clockMu sync.Mutex
	clock   *clock.Matrix

	cmdCh chan wire.LeaderCommand
}

// onSend ticks and snapshots the matrix clock under its guarding
// mutex, per spec.md section 4.1's atomicity requirement: Matrix
// itself performs no internal locking, so every goroutine that
// touches it (accept handlers, the FSM consumer, the command sender)
// must go through this or onReceive.
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

// New constructs a leader Context from a resolved config. N is the
// total node count (1 leader + followers) the matrix clock spans.
func New(cfg config.Config, log zerolog.Logger, n int) (*Context, error) {
	mc, err := clock.New(0, n)
	if err != nil {
		return nil, fmt.Errorf("leaderctx: %w", err)
	}
	m := metrics.New()
	q := eventqueue.New(cfg.MaxEvents, log, m)

	return &Context{
		Cfg:      cfg,
		Log:      log,
		Metrics:  m,
		clock:    mc,
		Queue:    q,
		Topology: topology.New(cfg.MaxFollowers),
		Machine: fsm.NewLeader(fsm.LeaderConfig{
			TickDT:      float64(cfg.LeaderTickMS) / 1000,
			SpeedStep:   0.5,
			TargetGap:   cfg.TargetGap,
			IntruderLen: cfg.IntruderLength,
		}),
		Shutdown: &shutdown.Latch{},
		cmdCh:    make(chan wire.LeaderCommand, cfg.CmdQueueSize),
	}, nil
}

// Run starts every leader worker goroutine and blocks until the
// shutdown latch is requested and every worker has exited, matching
// spec.md section 4.11's teardown sequence.
func (c *Context) Run(ctx context.Context, listener net.Listener) error {
	c.Shutdown.RegisterListener(listener)
	c.Shutdown.RegisterWaker(func() { c.Queue.Push(eventqueue.Event{Kind: eventqueue.KindShutdown}) })

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { c.runTickProducer(gctx); return nil })
	g.Go(func() error { c.runAcceptLoop(listener); return nil })
	g.Go(func() error { c.runFSMConsumer(gctx); return nil })
	g.Go(func() error { c.runCommandSender(); return nil })

	// A cancelled ctx (SIGINT/SIGTERM in cmd/leader) requests shutdown
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

// runTickProducer enqueues a Tick event every LEADER_TICK_DT, per
// spec.md section 4.10. It never blocks on event processing: a full
// Tick ring just drops this tick (logged by the queue itself).
func (c *Context) runTickProducer(ctx context.Context) {
	period := time.Duration(c.Cfg.LeaderTickMS) * time.Millisecond
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Shutdown.Done():
			return
		case <-ticker.C:
			c.Queue.Push(eventqueue.Event{Kind: eventqueue.KindTick})
		}
	}
}

// runAcceptLoop accepts follower TCP connections and registers each
// with the topology registry, per spec.md section 4.4.
func (c *Context) runAcceptLoop(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if c.Shutdown.Requested() {
				return
			}
			c.Log.Warn().Err(err).Msg("accept failed")
			continue
		}
		go c.handleFollowerConn(conn)
	}
}

// handleFollowerConn registers one follower session and relays its
// TCP-received envelopes into the event queue as FollowerMsg events
// until the connection closes.
func (c *Context) handleFollowerConn(conn net.Conn) {
	codec := wire.NewCodec(conn)
	c.Shutdown.RegisterCloser(conn)
	defer codec.Close()

	addr := wire.NetInfo{}
	if tcp, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		addr = wire.NetInfo{IP: tcp.IP.String(), Port: tcp.Port}
	}

	sender := &codecSender{codec: codec}
	id, token, formed, err := c.Topology.Register(addr, sender, c.Cfg.MinFollowers)
	if err != nil {
		c.Log.Warn().Err(err).Msg("follower registration rejected")
		return
	}
	c.Log.Info().Int("follower_id", id).Msg("follower registered")

	c.sendAssignAndSpawn(sender, id)
	if formed {
		c.Queue.Push(eventqueue.Event{Kind: eventqueue.KindPlatoonFormed})
	}

	for {
		env, err := codec.ReadEnvelope()
		if err != nil {
			if _, ok := err.(wire.ErrUnknownKind); ok {
				continue
			}
			break
		}
		c.onReceive(env.Clock)

		switch env.Kind {
		case wire.KindIntruderReport:
			if env.IntruderReport != nil {
				c.Queue.Push(eventqueue.Event{Kind: eventqueue.KindFollowerMsg, Payload: fsm.FollowerMsg{
					Kind: wire.KindIntruderReport, Intruder: *env.IntruderReport, SessionID: id,
				}})
			}
		case wire.KindFollowerEmergencyBrake:
			c.Queue.Push(eventqueue.Event{Kind: eventqueue.KindFollowerMsg, Payload: fsm.FollowerMsg{
				Kind: wire.KindFollowerEmergencyBrake, SessionID: id,
			}})
		}
	}

	reform, _ := c.Topology.Disconnect(token)
	c.Metrics.SetActiveFollowers(c.Topology.ActiveCount())
	if reform {
		c.Queue.Push(eventqueue.Event{Kind: eventqueue.KindPlatoonFormed})
	}
}

func (c *Context) sendAssignAndSpawn(sender *codecSender, id int) {
	leader := c.Machine.Truck()
	offset := float64(id)*c.Cfg.TargetGap + float64(c.Cfg.IntruderLength) + float64(c.Machine.IntruderLength())
	spawn := spawnBehind(leader, offset)

	clk := c.onSend()
	sender.WriteEnvelope(wire.Envelope{Kind: wire.KindAssignID, Clock: clk, AssignID: &wire.AssignIDPayload{ID: int32(id)}})

	clk = c.onSend()
	sender.WriteEnvelope(wire.Envelope{Kind: wire.KindSpawn, Clock: clk, Spawn: &wire.SpawnPayload{X: spawn.X, Y: spawn.Y, Dir: leader.Dir}})
}

func spawnBehind(leader wire.Truck, offset float64) wire.Truck {
	switch leader.Dir {
	case wire.North:
		return wire.Truck{X: leader.X, Y: leader.Y - offset}
	case wire.South:
		return wire.Truck{X: leader.X, Y: leader.Y + offset}
	case wire.East:
		return wire.Truck{X: leader.X - offset, Y: leader.Y}
	case wire.West:
		return wire.Truck{X: leader.X + offset, Y: leader.Y}
	default:
		return wire.Truck{X: leader.X, Y: leader.Y}
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

func (c *Context) applyEffect(eff fsm.LeaderEffect) {
	switch eff.Kind {
	case fsm.LeaderEffectBroadcastCmd:
		select {
		case c.cmdCh <- eff.Cmd:
		default:
			c.Log.Warn().Msg("command queue full, dropping command")
		}
	case fsm.LeaderEffectBroadcastEmergencyBrake:
		clk := c.onSend()
		c.Topology.Broadcast(wire.Envelope{Kind: wire.KindLeaderEmergencyBrake, Clock: clk}, func(id int, err error) {
			c.Log.Warn().Int("follower_id", id).Err(err).Msg("broadcast failed")
			c.Metrics.IncBroadcastFailure()
		})
	case fsm.LeaderEffectFinalizeTopology:
		c.finalizeTopology()
	case fsm.LeaderEffectRequestShutdown:
		c.Shutdown.Request("user requested shutdown")
	case fsm.LeaderEffectLocalTick:
		c.onLocalTick()
	}
}

func (c *Context) finalizeTopology() {
	plan := c.Topology.Finalize()
	c.Metrics.SetActiveFollowers(len(plan.AssignIDs))
	for _, a := range plan.AssignIDs {
		clk := c.onSend()
		c.Topology.Send(a.SessionID, wire.Envelope{Kind: wire.KindAssignID, Clock: clk, AssignID: &wire.AssignIDPayload{ID: int32(a.NewID)}})
	}
	for _, r := range plan.Rears {
		clk := c.onSend()
		c.Topology.Send(r.SessionID, wire.Envelope{Kind: wire.KindUpdateRear, Clock: clk, UpdateRear: &wire.UpdateRearPayload{HasRear: r.HasRear, Rear: r.Rear}})
	}
}

// runCommandSender drains cmdCh and broadcasts each LeaderCommand,
// a dedicated worker per spec.md section 5's "TCP sender blocks on a
// cond-var until a command is queued" — here a buffered channel plays
// that role idiomatically.
func (c *Context) runCommandSender() {
	for {
		select {
		case <-c.Shutdown.Done():
			return
		case cmd := <-c.cmdCh:
			clk := c.onSend()
			c.Topology.Broadcast(wire.Envelope{Kind: wire.KindCmd, Clock: clk, Cmd: &cmd}, func(id int, err error) {
				c.Log.Warn().Int("follower_id", id).Err(err).Msg("broadcast failed")
				c.Metrics.IncBroadcastFailure()
			})
		}
	}
}

// codecSender adapts *wire.Codec to topology.Sender.
type codecSender struct {
	codec *wire.Codec
}

func (s *codecSender) WriteEnvelope(env wire.Envelope) error { return s.codec.WriteEnvelope(env) }
