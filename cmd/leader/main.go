// Command leader runs the platoon leader role: accepts follower
// registrations on TCP, drives the leader FSM, and broadcasts cruise
// commands and emergencies.
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
	"github.com/saidurrsaied/DPS-ESE/internal/platoon/fsm"
	"github.com/saidurrsaied/DPS-ESE/internal/platoon/leaderctx"
)

func main() {
	var cfgPath, metricsAddr string

	root := &cobra.Command{
		Use:   "leader [tcp-port]",
		Short: "Run the platoon leader",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			port := cfg.DefaultTCPPort
			if len(args) == 1 {
				p, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid tcp port %q: %w", args[0], err)
				}
				port = p
			}
			return run(cfg, port, metricsAddr)
		},
	}
	root.Flags().StringVar(&cfgPath, "config", "", "optional TOML config overlay")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", "", "optional address to expose Prometheus metrics on, e.g. :9100 (unset disables exposition)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Config, port int, metricsAddr string) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("role", "leader").Logger()

	lc, err := leaderctx.New(cfg, log, cfg.NumTrucks)
	if err != nil {
		return err
	}
	if srv := lc.Metrics.Serve(metricsAddr, log); srv != nil {
		lc.Shutdown.RegisterCloser(srv)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", port, err)
	}
	log.Info().Int("port", port).Msg("leader listening")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go runKeyboard(lc)

	return lc.Run(ctx, listener)
}

// runKeyboard reads single-character control keys from stdin, per
// spec.md section 6: w/s accel/decel, a/d turn, space emergency
// brake, p toggle stale mode, q quit.
func runKeyboard(lc *leaderctx.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Split(bufio.ScanRunes)
	for scanner.Scan() {
		key := scanner.Text()
		if len(key) == 0 {
			continue
		}
		lc.Queue.Push(eventqueue.Event{Kind: eventqueue.KindUserInput, Payload: fsm.UserInput{Key: key[0]}})
	}
}
