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

package origin

import (
	"context"
	"time"

	"github.com/transitbeacon/transitbeacon/pkg/log"
	"github.com/transitbeacon/transitbeacon/pkg/notif"
	"github.com/transitbeacon/transitbeacon/pkg/radio"
	"github.com/transitbeacon/transitbeacon/pkg/serrors"
)

// Default emission parameters.
const (
	// DefaultCount is the default number of notifications per run.
	DefaultCount = 5
	// DefaultEmitPeriod is how long each notification is advertised.
	DefaultEmitPeriod = 5 * time.Second
	// DefaultAdvInterval is the advertising repetition interval.
	DefaultAdvInterval = 20 * time.Millisecond
)

// Conf is the configuration to create a new origin.
type Conf struct {
	// Radio is the radio resource used for emission.
	Radio radio.Radio
	// Generator authors the notifications.
	Generator *Generator
	// Count is the number of notifications to emit. Non-positive selects
	// DefaultCount.
	Count int
	// EmitPeriod and AdvInterval override the default emission parameters
	// when positive.
	EmitPeriod  time.Duration
	AdvInterval time.Duration
}

// Origin generates a batch of notifications and advertises them one by one,
// strictly sequentially. Unlike the relay, its run is finite and radio
// errors are fatal.
type Origin struct {
	radio       radio.Radio
	generator   *Generator
	count       int
	emitPeriod  time.Duration
	advInterval time.Duration
}

// New creates a new origin from the configuration.
func (cfg Conf) New() (*Origin, error) {
	if cfg.Radio == nil {
		return nil, serrors.New("radio must be set")
	}
	if cfg.Generator == nil || cfg.Generator.Auth == nil {
		return nil, serrors.New("generator with auth must be set")
	}
	o := &Origin{
		radio:       cfg.Radio,
		generator:   cfg.Generator,
		count:       cfg.Count,
		emitPeriod:  cfg.EmitPeriod,
		advInterval: cfg.AdvInterval,
	}
	if o.count <= 0 {
		o.count = DefaultCount
	}
	if o.emitPeriod <= 0 {
		o.emitPeriod = DefaultEmitPeriod
	}
	if o.advInterval <= 0 {
		o.advInterval = DefaultAdvInterval
	}
	return o, nil
}

// Run generates the batch and emits each notification for the emit period
// before moving on to the next. It returns on the first error or once the
// batch is done.
func (o *Origin) Run(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	for i := 0; i < o.count; i++ {
		pkt, err := o.generator.Generate()
		if err != nil {
			return serrors.WrapStr("generating notification", err)
		}
		raw := make([]byte, notif.PacketLen)
		if err := pkt.SerializeTo(raw); err != nil {
			return serrors.WrapStr("serializing notification", err)
		}
		logger.Info("Broadcasting notification",
			"seq", i+1, "total", o.count, "packet", pkt.String())
		if err := o.emit(ctx, raw); err != nil {
			return serrors.WrapStr("emitting notification", err,
				"id", pkt.NotificationID)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	logger.Info("All notifications broadcast", "count", o.count)
	return nil
}

// emit advertises the raw packet for the emit period, then stops the
// advertisement before returning.
func (o *Origin) emit(ctx context.Context, raw []byte) error {
	handle, err := o.radio.Advertise(raw, o.advInterval, o.advInterval)
	if err != nil {
		return err
	}
	timer := time.NewTimer(o.emitPeriod)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	return handle.Stop()
}
