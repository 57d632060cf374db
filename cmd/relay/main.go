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

// The relay daemon receives transit notifications over the radio, verifies
// and stores them, and rebroadcasts them until their duration elapses.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/transitbeacon/transitbeacon/pkg/log"
	"github.com/transitbeacon/transitbeacon/pkg/notif"
	"github.com/transitbeacon/transitbeacon/pkg/radio"
	"github.com/transitbeacon/transitbeacon/pkg/serrors"
	"github.com/transitbeacon/transitbeacon/private/config"
	"github.com/transitbeacon/transitbeacon/private/relay"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "relay",
		Short:         "Transit notification flood relay",
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
	r, err := relay.Conf{
		Radio:       rd,
		Auth:        auth,
		Store:       relay.NewStore(cfg.Relay.Capacity),
		Metrics:     relay.NewMetrics(prometheus.DefaultRegisterer),
		ScanWindow:  cfg.Relay.ScanWindow.Duration,
		Dwell:       cfg.Relay.Dwell.Duration,
		AdvInterval: cfg.Relay.AdvInterval.Duration,
		IdleDelay:   cfg.Relay.IdleDelay.Duration,
	}.New()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, errCtx := errgroup.WithContext(ctx)
	if cfg.Metrics.Prometheus != "" {
		server := &http.Server{
			Addr:    cfg.Metrics.Prometheus,
			Handler: promhttp.Handler(),
		}
		log.Info("Exposing prometheus metrics", "addr", cfg.Metrics.Prometheus)
		g.Go(func() error {
			defer log.HandlePanic()
			err := server.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return serrors.WrapStr("serving metrics", err)
			}
			return nil
		})
		g.Go(func() error {
			defer log.HandlePanic()
			<-errCtx.Done()
			return server.Close()
		})
	}
	g.Go(func() error {
		defer log.HandlePanic()
		defer cancel()
		return r.Run(errCtx)
	})
	return g.Wait()
}
