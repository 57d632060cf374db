// Copyright 2025 Transit Beacon Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config describes the TOML configuration of the relay and origin
// binaries.
package config

import (
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/transitbeacon/transitbeacon/pkg/log"
	"github.com/transitbeacon/transitbeacon/pkg/radio"
	"github.com/transitbeacon/transitbeacon/pkg/serrors"
	"github.com/transitbeacon/transitbeacon/private/origin"
	"github.com/transitbeacon/transitbeacon/private/relay"
)

// Development keys, matching the reference deployment. Production
// deployments must override them; the infrastructure key lives in fused
// storage on real hardware.
const (
	DefaultInfraKey  = "infra-secret-key-efuse!!"
	DefaultClientKey = "client-secret-key-app!!!"
)

// DurWrap is a wrapper to enable marshalling and unmarshalling of durations
// in the standard Go format.
type DurWrap struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DurWrap) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d DurWrap) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the combined configuration of both binaries. The relay ignores
// the origin section and vice versa.
type Config struct {
	Log     log.Config    `toml:"log,omitempty"`
	Metrics MetricsConfig `toml:"metrics,omitempty"`
	Keys    KeysConfig    `toml:"keys,omitempty"`
	Radio   RadioConfig   `toml:"radio,omitempty"`
	Relay   RelayConfig   `toml:"relay,omitempty"`
	Origin  OriginConfig  `toml:"origin,omitempty"`
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	// Prometheus is the address to expose /metrics on. Empty disables the
	// endpoint.
	Prometheus string `toml:"prometheus,omitempty"`
}

// KeysConfig holds the two authentication secrets.
type KeysConfig struct {
	// Infra is the infrastructure secret shared between the origin and
	// every relay.
	Infra string `toml:"infra,omitempty"`
	// Client is the client-facing secret held by relays and client
	// applications.
	Client string `toml:"client,omitempty"`
}

// RadioConfig configures the radio collaborator.
type RadioConfig struct {
	// Group is the multicast group of the UDP radio.
	Group string `toml:"group,omitempty"`
}

// RelayConfig configures the relay duty cycle.
type RelayConfig struct {
	ScanWindow  DurWrap `toml:"scan_window,omitempty"`
	Dwell       DurWrap `toml:"dwell,omitempty"`
	AdvInterval DurWrap `toml:"adv_interval,omitempty"`
	IdleDelay   DurWrap `toml:"idle_delay,omitempty"`
	Capacity    int     `toml:"capacity,omitempty"`
}

// OriginConfig configures the origin generator run.
type OriginConfig struct {
	Count        int     `toml:"count,omitempty"`
	DurationSecs uint16  `toml:"duration_secs,omitempty"`
	EmitPeriod   DurWrap `toml:"emit_period,omitempty"`
	AdvInterval  DurWrap `toml:"adv_interval,omitempty"`
}

// InitDefaults populates unset fields with default values.
func (cfg *Config) InitDefaults() {
	cfg.Log.InitDefaults()
	if cfg.Keys.Infra == "" {
		cfg.Keys.Infra = DefaultInfraKey
	}
	if cfg.Keys.Client == "" {
		cfg.Keys.Client = DefaultClientKey
	}
	if cfg.Radio.Group == "" {
		cfg.Radio.Group = radio.DefaultGroup
	}
	if cfg.Relay.ScanWindow.Duration <= 0 {
		cfg.Relay.ScanWindow.Duration = relay.DefaultScanWindow
	}
	if cfg.Relay.Dwell.Duration <= 0 {
		cfg.Relay.Dwell.Duration = relay.DefaultDwell
	}
	if cfg.Relay.AdvInterval.Duration <= 0 {
		cfg.Relay.AdvInterval.Duration = relay.DefaultAdvInterval
	}
	if cfg.Relay.IdleDelay.Duration <= 0 {
		cfg.Relay.IdleDelay.Duration = relay.DefaultIdleDelay
	}
	if cfg.Relay.Capacity <= 0 {
		cfg.Relay.Capacity = relay.DefaultCapacity
	}
	if cfg.Origin.Count <= 0 {
		cfg.Origin.Count = origin.DefaultCount
	}
	if cfg.Origin.DurationSecs == 0 {
		cfg.Origin.DurationSecs = origin.DefaultDurationSecs
	}
	if cfg.Origin.EmitPeriod.Duration <= 0 {
		cfg.Origin.EmitPeriod.Duration = origin.DefaultEmitPeriod
	}
	if cfg.Origin.AdvInterval.Duration <= 0 {
		cfg.Origin.AdvInterval.Duration = origin.DefaultAdvInterval
	}
}

// Validate checks the configuration for errors.
func (cfg *Config) Validate() error {
	if cfg.Keys.Infra == "" || cfg.Keys.Client == "" {
		return serrors.New("authentication keys must be set")
	}
	return nil
}

// Load reads and parses the configuration file at path. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, serrors.WrapStr("reading config file", err, "path", path)
		}
		if err := toml.Unmarshal(raw, &cfg); err != nil {
			return nil, serrors.WrapStr("parsing config file", err, "path", path)
		}
	}
	cfg.InitDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
