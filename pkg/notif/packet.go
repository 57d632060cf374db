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

package notif

import (
	"encoding/binary"
	"fmt"

	"github.com/transitbeacon/transitbeacon/pkg/serrors"
)

const (
	// InfraTagLen is the length of the truncated infrastructure HMAC tag.
	InfraTagLen = 8
	// ClientTagLen is the length of the truncated client HMAC tag.
	ClientTagLen = 4
	// BasePayloadLen is the number of bytes preceding both tags. It is the
	// exact input to both HMAC computations.
	BasePayloadLen = 13
	// PacketLen is the size of a serialized packet in bytes.
	PacketLen = BasePayloadLen + InfraTagLen + ClientTagLen
)

// Byte offsets of the packet fields. All multi-byte fields are little-endian.
const (
	offVersion   = 0
	offSourceID  = 1
	offNotifID   = 5
	offEventDest = 9
	offTypeStat  = 10
	offDuration  = 11
	offInfraTag  = 13
	offClientTag = 21
)

// Decode errors.
var (
	// ErrTooShort indicates the buffer is smaller than a full packet.
	ErrTooShort = serrors.New("packet too short")
	// ErrVersion indicates an unsupported protocol version.
	ErrVersion = serrors.New("unsupported protocol version")
	// ErrInvalidEnum indicates an out-of-range transport type or status
	// nibble.
	ErrInvalidEnum = serrors.New("invalid enum value")
	// ErrFieldRange indicates a field exceeds its encodable range.
	ErrFieldRange = serrors.New("field out of range")
)

// Packet is a transit notification as it appears on the wire.
//
// Packet has the following format:
//
//	 0        1                5                9           10          11
//	+--------+----------------+----------------+-----------+-----------+----------+
//	|version |   source_id    |notification_id |event |dest|type |stat |duration  |
//	+--------+----------------+----------------+-----------+-----------+----------+
//	13                        21                  25
//	+-------------------------+-------------------+
//	|        infra_tag        |    client_tag     |
//	+-------------------------+-------------------+
//
// event/dest and type/stat are nibble pairs packed high/low into one byte
// each. duration is a little-endian uint16 of seconds. Both tags
// authenticate bytes [0, 13).
type Packet struct {
	// Version is the protocol version, must be Version.
	Version uint8
	// SourceID is the opaque identifier of the originating station.
	SourceID [4]byte
	// NotificationID is the opaque per-event identifier. It is the
	// deduplication key for relaying.
	NotificationID [4]byte
	// EventID is a 4-bit event code (0-15).
	EventID uint8
	// DestinationID is a 4-bit destination code (0-15).
	DestinationID uint8
	// Type is the transport type carried in the high nibble of the
	// type/status byte.
	Type TransportType
	// Status is the transport status carried in the low nibble of the
	// type/status byte.
	Status TransportStatus
	// DurationSecs is how long, in seconds, the notification should keep
	// being relayed from the moment it is freshly observed.
	DurationSecs uint16
	// InfraTag is the truncated HMAC computed by the origin with the
	// infrastructure key. It is immutable for the life of the packet.
	InfraTag [InfraTagLen]byte
	// ClientTag is the truncated HMAC computed by the first relay with the
	// client key. All-zero means unset.
	ClientTag [ClientTagLen]byte
}

// DecodeFromBytes populates the packet from a raw buffer. The buffer must be
// at least PacketLen bytes, extra bytes are ignored.
func (p *Packet) DecodeFromBytes(raw []byte) error {
	if len(raw) < PacketLen {
		return serrors.WithCtx(ErrTooShort, "expected", PacketLen, "actual", len(raw))
	}
	if raw[offVersion] != Version {
		return serrors.WithCtx(ErrVersion, "expected", Version, "actual", raw[offVersion])
	}
	typ, err := ParseTransportType(raw[offTypeStat] >> 4)
	if err != nil {
		return err
	}
	status, err := ParseTransportStatus(raw[offTypeStat] & 0x0F)
	if err != nil {
		return err
	}
	p.Version = raw[offVersion]
	copy(p.SourceID[:], raw[offSourceID:offSourceID+4])
	copy(p.NotificationID[:], raw[offNotifID:offNotifID+4])
	p.EventID = raw[offEventDest] >> 4
	p.DestinationID = raw[offEventDest] & 0x0F
	p.Type = typ
	p.Status = status
	p.DurationSecs = binary.LittleEndian.Uint16(raw[offDuration : offDuration+2])
	copy(p.InfraTag[:], raw[offInfraTag:offInfraTag+InfraTagLen])
	copy(p.ClientTag[:], raw[offClientTag:offClientTag+ClientTagLen])
	return nil
}

// SerializeTo writes the packet into the provided buffer. The buffer must be
// at least PacketLen bytes.
func (p *Packet) SerializeTo(b []byte) error {
	if len(b) < PacketLen {
		return serrors.WithCtx(ErrTooShort, "expected", PacketLen, "actual", len(b))
	}
	if err := p.serializeBase(b); err != nil {
		return err
	}
	copy(b[offInfraTag:offInfraTag+InfraTagLen], p.InfraTag[:])
	copy(b[offClientTag:offClientTag+ClientTagLen], p.ClientTag[:])
	return nil
}

// serializeBase writes the base payload, bytes [0, BasePayloadLen), into b.
func (p *Packet) serializeBase(b []byte) error {
	if p.EventID > 0x0F {
		return serrors.WithCtx(ErrFieldRange, "field", "event_id", "value", p.EventID)
	}
	if p.DestinationID > 0x0F {
		return serrors.WithCtx(ErrFieldRange, "field", "destination_id", "value", p.DestinationID)
	}
	b[offVersion] = p.Version
	copy(b[offSourceID:offSourceID+4], p.SourceID[:])
	copy(b[offNotifID:offNotifID+4], p.NotificationID[:])
	b[offEventDest] = p.EventID<<4 | p.DestinationID&0x0F
	b[offTypeStat] = uint8(p.Type)<<4 | uint8(p.Status)&0x0F
	binary.LittleEndian.PutUint16(b[offDuration:offDuration+2], p.DurationSecs)
	return nil
}

// BasePayload returns the exact bytes both HMAC tags authenticate.
func (p *Packet) BasePayload() ([]byte, error) {
	b := make([]byte, BasePayloadLen)
	if err := p.serializeBase(b); err != nil {
		return nil, err
	}
	return b, nil
}

// HasClientTag reports whether the client tag has been set (non-zero).
func (p *Packet) HasClientTag() bool {
	return p.ClientTag != [ClientTagLen]byte{}
}

func (p *Packet) String() string {
	return fmt.Sprintf("{id: %x, source: %x, event: %d, dest: %d, type: %s, status: %s, duration: %ds}",
		p.NotificationID, p.SourceID, p.EventID, p.DestinationID, p.Type, p.Status, p.DurationSecs)
}
