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

// Package relay implements the relay node: the bounded active-notification
// store and the prune, scan, merge, rebroadcast duty cycle that drives it.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/transitbeacon/transitbeacon/pkg/log"
	"github.com/transitbeacon/transitbeacon/pkg/notif"
	"github.com/transitbeacon/transitbeacon/pkg/radio"
	"github.com/transitbeacon/transitbeacon/pkg/serrors"
)

// Default durations of the duty cycle phases.
const (
	// DefaultScanWindow is how long a scan phase passively receives
	// broadcasts.
	DefaultScanWindow = 3 * time.Second
	// DefaultDwell is how long each entry is advertised during the
	// rebroadcast phase.
	DefaultDwell = 2 * time.Second
	// DefaultAdvInterval is the advertising repetition interval.
	DefaultAdvInterval = 20 * time.Millisecond
	// DefaultIdleDelay is the pause before restarting the cycle when the
	// store is empty.
	DefaultIdleDelay = 500 * time.Millisecond
)

// Conf is the configuration to create a new relay.
type Conf struct {
	// Radio is the single radio resource of this node.
	Radio radio.Radio
	// Auth verifies infrastructure tags and signs client tags.
	Auth *notif.Auth
	// Store holds the active notifications. Nil creates a store with the
	// default capacity.
	Store *Store
	// Metrics may be nil.
	Metrics *Metrics
	// ScanWindow, Dwell, AdvInterval and IdleDelay override the default
	// phase durations when positive.
	ScanWindow  time.Duration
	Dwell       time.Duration
	AdvInterval time.Duration
	IdleDelay   time.Duration
}

// Relay runs the duty cycle on a single radio resource. The cycle phases are
// strictly serialized: a scan always runs to completion before any
// rebroadcast begins, and at most one advertisement is live at any instant.
type Relay struct {
	radio       radio.Radio
	auth        *notif.Auth
	store       *Store
	metrics     *Metrics
	scanWindow  time.Duration
	dwell       time.Duration
	advInterval time.Duration
	idleDelay   time.Duration

	// timeNow is the monotonic clock, overridable in tests.
	timeNow func() time.Time
}

// New creates a new relay from the configuration.
func (cfg Conf) New() (*Relay, error) {
	if cfg.Radio == nil {
		return nil, serrors.New("radio must be set")
	}
	if cfg.Auth == nil {
		return nil, serrors.New("auth must be set")
	}
	r := &Relay{
		radio:       cfg.Radio,
		auth:        cfg.Auth,
		store:       cfg.Store,
		metrics:     cfg.Metrics,
		scanWindow:  cfg.ScanWindow,
		dwell:       cfg.Dwell,
		advInterval: cfg.AdvInterval,
		idleDelay:   cfg.IdleDelay,
		timeNow:     time.Now,
	}
	if r.store == nil {
		r.store = NewStore(DefaultCapacity)
	}
	if r.scanWindow <= 0 {
		r.scanWindow = DefaultScanWindow
	}
	if r.dwell <= 0 {
		r.dwell = DefaultDwell
	}
	if r.advInterval <= 0 {
		r.advInterval = DefaultAdvInterval
	}
	if r.idleDelay <= 0 {
		r.idleDelay = DefaultIdleDelay
	}
	return r, nil
}

// Run executes the duty cycle until ctx is cancelled. Every per-packet and
// per-entry failure is contained where it occurs; nothing inside the loop
// aborts it.
func (r *Relay) Run(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info("Starting relay duty cycle",
		"scan_window", r.scanWindow, "dwell", r.dwell, "capacity", r.store.capacity)
	for ctx.Err() == nil {
		r.cycle(ctx)
	}
	logger.Info("Relay duty cycle stopped", "reason", ctx.Err())
	return nil
}

// cycle runs a single prune, scan, merge, rebroadcast pass.
func (r *Relay) cycle(ctx context.Context) {
	logger := log.FromCtx(ctx)

	if pruned := r.store.Prune(r.timeNow()); pruned > 0 {
		logger.Info("Pruned expired notifications", "count", pruned)
		r.metrics.addPruned(pruned)
	}
	r.metrics.setStoreEntries(r.store.Len())

	candidates := r.scan(ctx)
	r.merge(ctx, candidates)
	r.rebroadcast(ctx)
}

// scan receives raw candidate buffers from the radio for the scan window and
// returns the verified merge candidates. Discovered candidates are buffered
// here; the store is only mutated during merge.
func (r *Relay) scan(ctx context.Context) []Entry {
	logger := log.FromCtx(ctx)
	logger.Debug("Scanning", "window", r.scanWindow, "active", r.store.Len())

	var candidates []Entry
	err := r.radio.Scan(ctx, r.scanWindow, func(raw []byte) {
		if entry, ok := r.validate(ctx, raw); ok {
			candidates = append(candidates, entry)
		}
	})
	if err != nil && ctx.Err() == nil {
		logger.Error("Scan failed", "err", err)
		r.metrics.incRadioError(OpScan)
	}
	return candidates
}

// validate decodes and authenticates one received buffer. It returns the
// merge candidate and whether the buffer should be relayed.
func (r *Relay) validate(ctx context.Context, raw []byte) (Entry, bool) {
	logger := log.FromCtx(ctx)

	var pkt notif.Packet
	if err := pkt.DecodeFromBytes(raw); err != nil {
		logger.Debug("Dropping malformed notification", "err", err)
		r.metrics.incRejected(rejectReason(err))
		return Entry{}, false
	}
	if !r.auth.InfraVerify(&pkt) {
		logger.Error("Rejecting forged notification", "packet", pkt.String())
		r.metrics.incRejected(ReasonForged)
		return Entry{}, false
	}
	if pkt.DurationSecs == 0 {
		// Valid, but intentionally not relayed further.
		logger.Debug("Ignoring zero-duration notification", "packet", pkt.String())
		return Entry{}, false
	}
	if signed, err := r.auth.ClientSign(&pkt); err != nil {
		logger.Error("Signing client tag failed", "err", err)
		return Entry{}, false
	} else if signed {
		logger.Debug("Signed client tag", "id", pkt.NotificationID)
	}
	// Serialize the retransmission bytes from the verified packet so a
	// freshly signed client tag is carried along. For packets that already
	// carry a client tag this reproduces the received bytes exactly.
	buf := make([]byte, notif.PacketLen)
	if err := pkt.SerializeTo(buf); err != nil {
		logger.Error("Serializing verified notification failed", "err", err)
		return Entry{}, false
	}
	logger.Info("Verified notification", "packet", pkt.String())
	return Entry{
		Packet:    pkt,
		Raw:       buf,
		ExpiresAt: r.timeNow().Add(time.Duration(pkt.DurationSecs) * time.Second),
	}, true
}

// merge applies the buffered scan candidates to the store.
func (r *Relay) merge(ctx context.Context, candidates []Entry) {
	logger := log.FromCtx(ctx)
	for _, candidate := range candidates {
		if err := r.store.Merge(candidate); err != nil {
			if errors.Is(err, ErrStoreFull) {
				logger.Info("Store full, dropping notification",
					"id", candidate.Packet.NotificationID)
				r.metrics.incDroppedFull()
				continue
			}
			logger.Error("Merging notification failed", "err", err)
			continue
		}
		r.metrics.incMerged()
	}
	r.metrics.setStoreEntries(r.store.Len())
}

// rebroadcast advertises each live entry in turn for the dwell duration. The
// radio carries one advertisement at a time: each is stopped before the next
// is started. A failing entry is skipped, the cycle continues.
func (r *Relay) rebroadcast(ctx context.Context) {
	logger := log.FromCtx(ctx)
	snapshot := r.store.Snapshot()
	if len(snapshot) == 0 {
		logger.Debug("No active notifications to broadcast")
		sleep(ctx, r.idleDelay)
		return
	}
	logger.Debug("Rebroadcasting active notifications", "count", len(snapshot))
	for _, entry := range snapshot {
		if ctx.Err() != nil {
			return
		}
		handle, err := r.radio.Advertise(entry.Raw, r.advInterval, r.advInterval)
		if err != nil {
			logger.Error("Starting advertisement failed",
				"id", entry.Packet.NotificationID, "err", err)
			r.metrics.incRadioError(OpAdvertiseStart)
			continue
		}
		logger.Info("Rebroadcasting notification", "packet", entry.Packet.String(),
			"expires_in", entry.ExpiresAt.Sub(r.timeNow()).Round(time.Second))
		sleep(ctx, r.dwell)
		if err := handle.Stop(); err != nil {
			logger.Error("Stopping advertisement failed",
				"id", entry.Packet.NotificationID, "err", err)
			r.metrics.incRadioError(OpAdvertiseStop)
		}
	}
}

// rejectReason maps a decode error to its metrics label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, notif.ErrVersion):
		return ReasonVersion
	case errors.Is(err, notif.ErrInvalidEnum):
		return ReasonEnum
	default:
		return ReasonTooShort
	}
}

// sleep blocks for the given duration or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
