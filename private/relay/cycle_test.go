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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/transitbeacon/transitbeacon/pkg/notif"
	"github.com/transitbeacon/transitbeacon/pkg/radio"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeRadio delivers the pending buffers on the next scan and records every
// advertised payload.
type fakeRadio struct {
	pending    [][]byte
	advertised [][]byte
	// failStarts makes the next n Advertise calls fail.
	failStarts int
	// live tracks whether an advertisement is currently running.
	live bool
	// overlapped records a second advertisement starting while one is live.
	overlapped bool
}

func (f *fakeRadio) Scan(ctx context.Context, window time.Duration,
	onCandidate func(raw []byte)) error {

	for _, raw := range f.pending {
		onCandidate(raw)
	}
	f.pending = nil
	return nil
}

func (f *fakeRadio) Advertise(payload []byte, minInterval,
	maxInterval time.Duration) (radio.Handle, error) {

	if f.failStarts > 0 {
		f.failStarts--
		return nil, radio.ErrStartFailed
	}
	if f.live {
		f.overlapped = true
	}
	f.live = true
	f.advertised = append(f.advertised, append([]byte(nil), payload...))
	return &fakeHandle{radio: f}, nil
}

type fakeHandle struct {
	radio *fakeRadio
	fail  bool
}

func (h *fakeHandle) Stop() error {
	h.radio.live = false
	if h.fail {
		return radio.ErrStopFailed
	}
	return nil
}

func testRelay(t *testing.T, rd *fakeRadio) (*Relay, *notif.Auth) {
	t.Helper()
	auth, err := notif.NewAuth([]byte("test-infra-key"), []byte("test-client-key"))
	require.NoError(t, err)
	r, err := Conf{
		Radio:       rd,
		Auth:        auth,
		Store:       NewStore(4),
		ScanWindow:  time.Millisecond,
		Dwell:       time.Millisecond,
		AdvInterval: time.Millisecond,
		IdleDelay:   time.Millisecond,
	}.New()
	require.NoError(t, err)
	return r, auth
}

// signedRaw serializes an infra-signed packet with the given id and duration.
func signedRaw(t *testing.T, auth *notif.Auth, id byte, duration uint16) []byte {
	t.Helper()
	pkt := notif.Packet{
		Version:        notif.Version,
		SourceID:       [4]byte{0xAA, 0xBB, 0xCC, 0xDD},
		NotificationID: [4]byte{id},
		EventID:        2,
		DestinationID:  4,
		Type:           notif.Bus,
		Status:         notif.Coming,
		DurationSecs:   duration,
	}
	require.NoError(t, auth.InfraSign(&pkt))
	raw := make([]byte, notif.PacketLen)
	require.NoError(t, pkt.SerializeTo(raw))
	return raw
}

func TestCycleRelaysVerifiedNotification(t *testing.T) {
	rd := &fakeRadio{}
	r, auth := testRelay(t, rd)
	rd.pending = [][]byte{signedRaw(t, auth, 1, 30)}

	r.cycle(context.Background())

	snapshot := r.store.Snapshot()
	require.Len(t, snapshot, 1)
	stored := snapshot[0]
	assert.Equal(t, [4]byte{1}, stored.Packet.NotificationID)

	// The first relay signs the client tag and rebroadcasts the re-signed
	// bytes.
	var rebroadcast notif.Packet
	require.NoError(t, rebroadcast.DecodeFromBytes(stored.Raw))
	assert.True(t, rebroadcast.HasClientTag())
	assert.True(t, auth.ClientVerify(&rebroadcast))
	assert.True(t, auth.InfraVerify(&rebroadcast))

	require.Len(t, rd.advertised, 1)
	assert.Equal(t, stored.Raw, rd.advertised[0])
	assert.False(t, rd.overlapped)
}

func TestCycleClientTagPassthrough(t *testing.T) {
	rd := &fakeRadio{}
	r, auth := testRelay(t, rd)

	// A packet that already carries a client tag from an upstream relay
	// must be forwarded byte-for-byte, even if the tag looks wrong for the
	// local key.
	pkt := notif.Packet{
		Version:        notif.Version,
		NotificationID: [4]byte{7},
		Type:           notif.Train,
		Status:         notif.Late,
		DurationSecs:   30,
		ClientTag:      [4]byte{0xDE, 0xAD, 0xBE, 0xEF},
	}
	require.NoError(t, auth.InfraSign(&pkt))
	raw := make([]byte, notif.PacketLen)
	require.NoError(t, pkt.SerializeTo(raw))
	rd.pending = [][]byte{raw}

	r.cycle(context.Background())

	snapshot := r.store.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, raw, snapshot[0].Raw)
	assert.Equal(t, [4]byte{0xDE, 0xAD, 0xBE, 0xEF}, snapshot[0].Packet.ClientTag)
}

func TestCycleRejectsForgedNotification(t *testing.T) {
	rd := &fakeRadio{}
	r, auth := testRelay(t, rd)

	forged := signedRaw(t, auth, 2, 30)
	forged[3] ^= 0xFF // corrupt the source id after signing

	// However often the forged packet is presented, it never reaches a
	// snapshot.
	for i := 0; i < 3; i++ {
		rd.pending = [][]byte{forged}
		r.cycle(context.Background())
		assert.Empty(t, r.store.Snapshot())
	}
	assert.Empty(t, rd.advertised)
}

func TestCycleIgnoresZeroDuration(t *testing.T) {
	rd := &fakeRadio{}
	r, auth := testRelay(t, rd)
	rd.pending = [][]byte{
		signedRaw(t, auth, 3, 0),
		signedRaw(t, auth, 4, 30),
	}

	r.cycle(context.Background())

	snapshot := r.store.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, [4]byte{4}, snapshot[0].Packet.NotificationID)
}

func TestCycleDropsMalformed(t *testing.T) {
	rd := &fakeRadio{}
	r, auth := testRelay(t, rd)
	rd.pending = [][]byte{
		{0x01, 0x02},
		signedRaw(t, auth, 5, 30),
	}

	r.cycle(context.Background())
	assert.Equal(t, 1, r.store.Len())
}

func TestCycleRefreshesExpiryOnRepeat(t *testing.T) {
	rd := &fakeRadio{}
	r, auth := testRelay(t, rd)

	now := time.Now()
	r.timeNow = func() time.Time { return now }
	rd.pending = [][]byte{signedRaw(t, auth, 6, 10)}
	r.cycle(context.Background())

	first := r.store.Snapshot()[0].ExpiresAt
	assert.Equal(t, now.Add(10*time.Second), first)

	// The same notification observed again later refreshes the expiry
	// without creating a second entry.
	now = now.Add(8 * time.Second)
	rd.pending = [][]byte{signedRaw(t, auth, 6, 10)}
	r.cycle(context.Background())

	snapshot := r.store.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, now.Add(10*time.Second), snapshot[0].ExpiresAt)
}

func TestCycleAdvertiseStartFailureSkipsEntry(t *testing.T) {
	rd := &fakeRadio{}
	r, auth := testRelay(t, rd)
	rd.pending = [][]byte{
		signedRaw(t, auth, 7, 30),
		signedRaw(t, auth, 8, 30),
	}
	rd.failStarts = 1

	r.cycle(context.Background())

	// The first advertisement fails, the second entry is still broadcast
	// and both remain in the store.
	require.Len(t, rd.advertised, 1)
	var got notif.Packet
	require.NoError(t, got.DecodeFromBytes(rd.advertised[0]))
	assert.Equal(t, [4]byte{8}, got.NotificationID)
	assert.Equal(t, 2, r.store.Len())
}

func TestCyclePrunesExpired(t *testing.T) {
	rd := &fakeRadio{}
	r, auth := testRelay(t, rd)

	now := time.Now()
	r.timeNow = func() time.Time { return now }
	rd.pending = [][]byte{signedRaw(t, auth, 9, 5)}
	r.cycle(context.Background())
	require.Equal(t, 1, r.store.Len())

	now = now.Add(5100 * time.Millisecond)
	r.cycle(context.Background())
	assert.Equal(t, 0, r.store.Len())
}

func TestRunStopsOnCancel(t *testing.T) {
	rd := &fakeRadio{}
	r, _ := testRelay(t, rd)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, r.Run(ctx))
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop on context cancellation")
	}
}
