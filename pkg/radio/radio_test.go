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

package radio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitbeacon/transitbeacon/pkg/radio"
)

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	frame := radio.EncodeFrame(payload)
	assert.Equal(t, []byte{0xFF, 0xFF, 0x01, 0x02, 0x03}, frame)

	got, ok := radio.DecodeFrame(frame)
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestDecodeFrameFiltersForeignProtocols(t *testing.T) {
	_, ok := radio.DecodeFrame([]byte{0x4C, 0x00, 0x01, 0x02})
	assert.False(t, ok)
}

func TestDecodeFrameTooShort(t *testing.T) {
	_, ok := radio.DecodeFrame(nil)
	assert.False(t, ok)
	_, ok = radio.DecodeFrame([]byte{0xFF})
	assert.False(t, ok)
}

func TestDecodeFrameEmptyPayload(t *testing.T) {
	got, ok := radio.DecodeFrame(radio.EncodeFrame(nil))
	require.True(t, ok)
	assert.Empty(t, got)
}

func TestNewUDPValidatesGroup(t *testing.T) {
	_, err := radio.NewUDP("not an address")
	assert.Error(t, err)

	// Unicast addresses are not a valid radio medium.
	_, err = radio.NewUDP("127.0.0.1:8629")
	assert.Error(t, err)

	_, err = radio.NewUDP("")
	assert.NoError(t, err)
}
