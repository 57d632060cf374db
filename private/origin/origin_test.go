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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitbeacon/transitbeacon/pkg/notif"
	"github.com/transitbeacon/transitbeacon/pkg/radio"
)

func testAuth(t *testing.T) *notif.Auth {
	t.Helper()
	auth, err := notif.NewAuth([]byte("test-infra-key"), []byte("test-client-key"))
	require.NoError(t, err)
	return auth
}

func TestGenerate(t *testing.T) {
	auth := testAuth(t)
	g := &Generator{Auth: auth, DurationSecs: 60}

	seen := make(map[[4]byte]bool)
	for i := 0; i < 20; i++ {
		pkt, err := g.Generate()
		require.NoError(t, err)

		assert.Equal(t, notif.Version, pkt.Version)
		assert.Equal(t, uint16(60), pkt.DurationSecs)
		assert.False(t, pkt.HasClientTag())
		assert.True(t, auth.InfraVerify(&pkt))
		assert.LessOrEqual(t, pkt.EventID, uint8(15))
		assert.LessOrEqual(t, pkt.DestinationID, uint8(15))

		// Round trip through the wire format.
		raw := make([]byte, notif.PacketLen)
		require.NoError(t, pkt.SerializeTo(raw))
		var got notif.Packet
		require.NoError(t, got.DecodeFromBytes(raw))
		assert.Equal(t, pkt, got)

		assert.False(t, seen[pkt.NotificationID], "duplicate notification id")
		seen[pkt.NotificationID] = true
	}
}

func TestGenerateDefaultDuration(t *testing.T) {
	g := &Generator{Auth: testAuth(t)}
	pkt, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, DefaultDurationSecs, pkt.DurationSecs)
}

type fakeRadio struct {
	advertised [][]byte
	live       bool
	overlapped bool
}

func (f *fakeRadio) Scan(ctx context.Context, window time.Duration,
	onCandidate func(raw []byte)) error {

	return nil
}

func (f *fakeRadio) Advertise(payload []byte, minInterval,
	maxInterval time.Duration) (radio.Handle, error) {

	if f.live {
		f.overlapped = true
	}
	f.live = true
	f.advertised = append(f.advertised, append([]byte(nil), payload...))
	return &fakeHandle{radio: f}, nil
}

type fakeHandle struct {
	radio *fakeRadio
}

func (h *fakeHandle) Stop() error {
	h.radio.live = false
	return nil
}

func TestOriginRunEmitsSequentially(t *testing.T) {
	auth := testAuth(t)
	rd := &fakeRadio{}
	o, err := Conf{
		Radio:       rd,
		Generator:   &Generator{Auth: auth},
		Count:       3,
		EmitPeriod:  time.Millisecond,
		AdvInterval: time.Millisecond,
	}.New()
	require.NoError(t, err)

	require.NoError(t, o.Run(context.Background()))

	require.Len(t, rd.advertised, 3)
	assert.False(t, rd.overlapped, "advertisements must not overlap")
	for _, raw := range rd.advertised {
		var pkt notif.Packet
		require.NoError(t, pkt.DecodeFromBytes(raw))
		assert.True(t, auth.InfraVerify(&pkt))
		assert.False(t, pkt.HasClientTag())
	}
}

func TestOriginConfValidation(t *testing.T) {
	_, err := Conf{Generator: &Generator{Auth: testAuth(t)}}.New()
	assert.Error(t, err)
	_, err = Conf{Radio: &fakeRadio{}}.New()
	assert.Error(t, err)
}
