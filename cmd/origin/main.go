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

// The origin binary authors a batch of infra-signed transit notifications
// and broadcasts them one by one over the radio.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/transitbeacon/transitbeacon/pkg/log"
	"github.com/transitbeacon/transitbeacon/pkg/notif"
	"github.com/transitbeacon/transitbeacon/pkg/radio"
	"github.com/transitbeacon/transitbeacon/pkg/serrors"
	"github.com/transitbeacon/transitbeacon/private/config"
	"github.com/transitbeacon/transitbeacon/private/origin"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "origin",
		Short:         "Transit notification origin generator",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to the TOML config file")
	if err := cmd.Execute(); err != nil {
		log.Error("Fatal error", "err", err)
		log.Flush()
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := log.Setup(cfg.Log); err != nil {
		return serrors.WrapStr("setting up logging", err)
	}
	defer log.Flush()

	auth, err := notif.NewAuth([]byte(cfg.Keys.Infra), []byte(cfg.Keys.Client))
	if err != nil {
		return err
	}
	rd, err := radio.NewUDP(cfg.Radio.Group)
	if err != nil {
		return err
	}
	o, err := origin.Conf{
		Radio: rd,
		Generator: &origin.Generator{
			Auth:         auth,
			DurationSecs: cfg.Origin.DurationSecs,
		},
		Count:       cfg.Origin.Count,
		EmitPeriod:  cfg.Origin.EmitPeriod.Duration,
		AdvInterval: cfg.Origin.AdvInterval.Duration,
	}.New()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return o.Run(ctx)
}
