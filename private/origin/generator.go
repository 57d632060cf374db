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

// Package origin implements the infrastructure side of the protocol: it
// authors fresh, infra-signed notifications and emits them over the radio.
// It is the only component permitted to compute a first infrastructure tag.
package origin

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/transitbeacon/transitbeacon/pkg/notif"
)

// DefaultDurationSecs is the default relay TTL of generated notifications.
const DefaultDurationSecs uint16 = 30

// Generator produces fresh infra-signed notifications.
type Generator struct {
	// Auth signs the infrastructure tag.
	Auth *notif.Auth
	// DurationSecs is the relay TTL stamped on generated notifications.
	// Zero selects DefaultDurationSecs.
	DurationSecs uint16
}

// Generate creates a notification with fresh identifiers, a randomly chosen
// transport type and status, and a valid infrastructure tag. The client tag
// is left all-zero; the first relay sets it.
func (g *Generator) Generate() (notif.Packet, error) {
	pkt := notif.Packet{
		Version:        notif.Version,
		SourceID:       shortID(),
		NotificationID: shortID(),
		EventID:        uint8(rand.Intn(16)),
		DestinationID:  uint8(rand.Intn(16)),
		Type:           randTransportType(),
		Status:         randTransportStatus(),
		DurationSecs:   g.DurationSecs,
	}
	if pkt.DurationSecs == 0 {
		pkt.DurationSecs = DefaultDurationSecs
	}
	if err := g.Auth.InfraSign(&pkt); err != nil {
		return notif.Packet{}, err
	}
	return pkt, nil
}

// shortID returns the leading 4 bytes of a fresh UUIDv4 as a 32-bit opaque
// identifier.
func shortID() [4]byte {
	var id [4]byte
	u := uuid.New()
	copy(id[:], u[:4])
	return id
}

func randTransportType() notif.TransportType {
	if rand.Intn(2) == 0 {
		return notif.Bus
	}
	return notif.Train
}

func randTransportStatus() notif.TransportStatus {
	switch rand.Intn(3) {
	case 0:
		return notif.Passing
	case 1:
		return notif.Coming
	default:
		return notif.Late
	}
}
