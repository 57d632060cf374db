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

// Package notif implements the transit notification wire format and the
// two-tier authentication chain that protects it.
//
// A notification is a fixed-size packet authored by the infrastructure
// origin and flooded hop-by-hop by relays. The origin signs an 8-byte
// truncated HMAC tag with the infrastructure key; the first relay that
// validates a packet signs an additional 4-byte tag with the client key.
// Both tags authenticate the base payload, i.e. every byte preceding them.
package notif

import (
	"github.com/transitbeacon/transitbeacon/pkg/serrors"
)

// Version is the supported protocol version.
const Version uint8 = 1

// TransportType identifies the kind of vehicle a notification refers to.
type TransportType uint8

// Valid transport types.
const (
	Bus   TransportType = 1
	Train TransportType = 2
)

// ParseTransportType converts a raw nibble value into a TransportType. It
// fails for values outside the closed enumeration.
func ParseTransportType(v uint8) (TransportType, error) {
	switch t := TransportType(v); t {
	case Bus, Train:
		return t, nil
	default:
		return 0, serrors.WithCtx(ErrInvalidEnum, "field", "transport_type", "value", v)
	}
}

func (t TransportType) String() string {
	switch t {
	case Bus:
		return "bus"
	case Train:
		return "train"
	default:
		return "unknown"
	}
}

// TransportStatus describes the state of the vehicle relative to the stop.
type TransportStatus uint8

// Valid transport statuses.
const (
	Passing TransportStatus = 1
	Coming  TransportStatus = 2
	Late    TransportStatus = 3
)

// ParseTransportStatus converts a raw nibble value into a TransportStatus.
// It fails for values outside the closed enumeration.
func ParseTransportStatus(v uint8) (TransportStatus, error) {
	switch s := TransportStatus(v); s {
	case Passing, Coming, Late:
		return s, nil
	default:
		return 0, serrors.WithCtx(ErrInvalidEnum, "field", "transport_status", "value", v)
	}
}

func (s TransportStatus) String() string {
	switch s {
	case Passing:
		return "passing"
	case Coming:
		return "coming"
	case Late:
		return "late"
	default:
		return "unknown"
	}
}
