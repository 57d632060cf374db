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

package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection reasons for the rejected packets counter.
const (
	ReasonTooShort = "too_short"
	ReasonVersion  = "version_mismatch"
	ReasonEnum     = "invalid_enum"
	ReasonForged   = "infra_tag_mismatch"
)

// Radio operations for the radio errors counter.
const (
	OpAdvertiseStart = "advertise_start"
	OpAdvertiseStop  = "advertise_stop"
	OpScan           = "scan"
)

// Metrics exposes the relay's observability counters. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Rejected counts candidates dropped before merging, by reason.
	Rejected *prometheus.CounterVec
	// Merged counts candidates applied to the store.
	Merged prometheus.Counter
	// DroppedFull counts candidates rejected because the store was full.
	DroppedFull prometheus.Counter
	// Pruned counts entries removed by expiry.
	Pruned prometheus.Counter
	// RadioErrors counts failed radio operations, by operation.
	RadioErrors *prometheus.CounterVec
	// StoreEntries tracks the current store size.
	StoreEntries prometheus.Gauge
}

// NewMetrics creates and registers the relay metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_rejected_notifications_total",
			Help: "Candidates dropped before merging, by reason.",
		}, []string{"reason"}),
		Merged: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_merged_notifications_total",
			Help: "Verified candidates applied to the active store.",
		}),
		DroppedFull: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_store_full_drops_total",
			Help: "Candidates rejected because the store was at capacity.",
		}),
		Pruned: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_pruned_notifications_total",
			Help: "Entries removed from the store by expiry.",
		}),
		RadioErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_radio_errors_total",
			Help: "Failed radio operations, by operation.",
		}, []string{"op"}),
		StoreEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_store_entries",
			Help: "Currently active notifications in the store.",
		}),
	}
}

func (m *Metrics) incRejected(reason string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) incMerged() {
	if m == nil {
		return
	}
	m.Merged.Inc()
}

func (m *Metrics) incDroppedFull() {
	if m == nil {
		return
	}
	m.DroppedFull.Inc()
}

func (m *Metrics) addPruned(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Pruned.Add(float64(n))
}

func (m *Metrics) incRadioError(op string) {
	if m == nil {
		return
	}
	m.RadioErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) setStoreEntries(n int) {
	if m == nil {
		return
	}
	m.StoreEntries.Set(float64(n))
}
