// Package config holds every compile-time tunable named in the
// specification, overridable by an optional TOML file.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config collects every tunable the coordination kernel needs.
type Config struct {
	MaxFollowers     int     `toml:"max_followers"`
	MinFollowers     int     `toml:"min_followers"`
	TargetGap        float64 `toml:"target_gap"`
	IntruderLength   int     `toml:"intruder_length"`
	LeaderTickMS     int     `toml:"leader_tick_ms"`
	FollowerPhysMS   int     `toml:"follower_phys_ms"`
	MaxSpeedOverBase float64 `toml:"max_speed_over_base"`
	LeaderRxTimeoutMS int    `toml:"leader_rx_timeout_ms"`
	WatchdogPeriodMS int     `toml:"watchdog_period_ms"`
	CmdQueueSize     int     `toml:"cmd_queue_size"`
	MaxEvents        int     `toml:"max_events"`
	NumTrucks        int     `toml:"num_trucks"`
	Kp               float64 `toml:"kp"`
	Kd               float64 `toml:"kd"`
	DefaultTCPPort   int     `toml:"default_tcp_port"`
}

// Default returns the tunables from spec.md section 6.
func Default() Config {
	return Config{
		MaxFollowers:      5,
		MinFollowers:      3,
		TargetGap:         10.0,
		IntruderLength:    10,
		LeaderTickMS:      250,
		FollowerPhysMS:    250,
		MaxSpeedOverBase:  100.0,
		LeaderRxTimeoutMS: 2000,
		WatchdogPeriodMS:  100,
		CmdQueueSize:      10,
		MaxEvents:         32,
		NumTrucks:         4,
		Kp:                0.35,
		Kd:                0.70,
		DefaultTCPPort:    5000,
	}
}

// Load overlays the TOML file at path onto the compiled-in defaults. An
// empty path (no --config flag given) returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}
