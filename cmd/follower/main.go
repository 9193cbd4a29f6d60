// Command follower runs one platoon follower: registers with the
// leader over TCP, receives commands and rear telemetry, and drives
// its own gap-keeping control loop.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/saidurrsaied/DPS-ESE/internal/platoon/config"
	"github.com/saidurrsaied/DPS-ESE/internal/platoon/eventqueue"
	"github.com/saidurrsaied/DPS-ESE/internal/platoon/followerctx"
	"github.com/saidurrsaied/DPS-ESE/internal/platoon/wire"
)

func main() {
	var cfgPath, leaderAddr, metricsAddr string
	var selfIndex int

	root := &cobra.Command{
		Use:   "follower <udp-port>",
		Short: "Run one platoon follower",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			udpPort, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid udp port %q: %w", args[0], err)
			}
			return run(cfg, udpPort, leaderAddr, selfIndex, metricsAddr)
		},
	}
	root.Flags().StringVar(&cfgPath, "config", "", "optional TOML config overlay")
	root.Flags().StringVar(&leaderAddr, "leader", "127.0.0.1:5000", "leader TCP address")
	// The matrix clock's self index must be fixed at construction
	// (see DESIGN.md); it is not rederived from the AssignId the
	// topology protocol sends later.
	root.Flags().IntVar(&selfIndex, "self-index", 1, "this node's matrix-clock row (0 is reserved for the leader)")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", "", "optional address to expose Prometheus metrics on, e.g. :9101 (unset disables exposition)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Config, udpPort int, leaderAddr string, selfIndex int, metricsAddr string) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("role", "follower").Logger()

	fc, err := followerctx.New(cfg, log, selfIndex, cfg.NumTrucks)
	if err != nil {
		return err
	}
	if srv := fc.Metrics.Serve(metricsAddr, log); srv != nil {
		fc.Shutdown.RegisterCloser(srv)
	}

	conn, err := net.Dial("tcp", leaderAddr)
	if err != nil {
		return fmt.Errorf("dial leader at %s: %w", leaderAddr, err)
	}

	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: udpPort})
	if err != nil {
		return fmt.Errorf("listen udp on port %d: %w", udpPort, err)
	}
	log.Info().Int("udp_port", udpPort).Str("leader", leaderAddr).Msg("follower connected")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go runKeyboard(fc)

	return fc.Run(ctx, conn, udpConn)
}

// runKeyboard reads single-character control keys from stdin, per
// spec.md section 6: i toggle intruder, e emergency, q quit.
func runKeyboard(fc *followerctx.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Split(bufio.ScanRunes)
	intruderActive := false
	for scanner.Scan() {
		key := scanner.Text()
		if len(key) == 0 {
			continue
		}
		switch key[0] {
		case 'i':
			if intruderActive {
				fc.Queue.Push(eventqueue.Event{Kind: eventqueue.KindIntruderClear})
			} else {
				fc.Queue.Push(eventqueue.Event{Kind: eventqueue.KindIntruder, Payload: wire.IntruderInfo{Speed: 5, Length: fc.Cfg.IntruderLength, DurationMS: 5000}})
			}
			intruderActive = !intruderActive
		case 'e':
			fc.Queue.Push(eventqueue.Event{Kind: eventqueue.KindEmergency})
		case 'q':
			fc.Shutdown.Request("user requested shutdown")
		}
	}
}
