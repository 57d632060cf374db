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

// Package radio defines the radio collaborator interface the relay and the
// origin depend on, together with the vendor-data framing shared by all
// implementations.
//
// A radio can either scan or advertise, never both at once; callers are
// responsible for serializing the two. Notification packets travel inside an
// advertisement's vendor-specific data field, prefixed with the protocol's
// manufacturer identifier. The radio layer filters on that identifier and
// treats the rest of the frame as opaque bytes.
package radio

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/transitbeacon/transitbeacon/pkg/serrors"
)

// ManufacturerID tags advertisements that carry transit notifications.
const ManufacturerID uint16 = 0xFFFF

// frameHeaderLen is the length of the little-endian manufacturer identifier
// prefix.
const frameHeaderLen = 2

// Advertise errors.
var (
	// ErrStartFailed indicates an advertisement could not be started.
	ErrStartFailed = serrors.New("starting advertisement failed")
	// ErrStopFailed indicates a running advertisement could not be stopped.
	ErrStopFailed = serrors.New("stopping advertisement failed")
)

// Radio is the single radio resource a node owns.
type Radio interface {
	// Scan passively receives broadcasts for the duration of the window and
	// invokes onCandidate once per observed frame carrying the protocol's
	// manufacturer identifier, with the identifier prefix already stripped.
	// Scan returns once the window has elapsed or ctx is cancelled.
	Scan(ctx context.Context, window time.Duration, onCandidate func(raw []byte)) error
	// Advertise starts broadcasting the given payload, repeated within the
	// given interval bounds, until the returned handle is stopped. Only one
	// advertisement may be live at a time.
	Advertise(payload []byte, minInterval, maxInterval time.Duration) (Handle, error)
}

// Handle refers to a running advertisement.
type Handle interface {
	// Stop terminates the advertisement.
	Stop() error
}

// EncodeFrame prefixes the payload with the manufacturer identifier.
func EncodeFrame(payload []byte) []byte {
	frame := make([]byte, frameHeaderLen+len(payload))
	binary.LittleEndian.PutUint16(frame[:frameHeaderLen], ManufacturerID)
	copy(frame[frameHeaderLen:], payload)
	return frame
}

// DecodeFrame strips the manufacturer identifier prefix. It reports false
// for frames that are too short or tagged with a foreign identifier; those
// belong to other protocols and are ignored without error.
func DecodeFrame(frame []byte) ([]byte, bool) {
	if len(frame) < frameHeaderLen {
		return nil, false
	}
	if binary.LittleEndian.Uint16(frame[:frameHeaderLen]) != ManufacturerID {
		return nil, false
	}
	return frame[frameHeaderLen:], true
}
