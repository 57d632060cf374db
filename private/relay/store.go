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
	"time"

	"github.com/transitbeacon/transitbeacon/pkg/notif"
	"github.com/transitbeacon/transitbeacon/pkg/serrors"
)

// DefaultCapacity is the default bound on concurrently relayed
// notifications.
const DefaultCapacity = 16

// ErrStoreFull indicates the store is at capacity and the candidate carries
// a never-before-seen notification id. Existing entries are untouched.
var ErrStoreFull = serrors.New("active notification store full")

// Entry is a notification the relay is actively rebroadcasting. It is owned
// exclusively by the Store; consumers of Snapshot must treat it as
// read-only.
type Entry struct {
	// Packet is the verified notification.
	Packet notif.Packet
	// Raw is the exact serialized packet to retransmit.
	Raw []byte
	// ExpiresAt is the absolute monotonic timestamp at which the entry
	// stops being relayed.
	ExpiresAt time.Time
}

// Store is the capacity-bounded collection of currently relayed
// notifications, keyed by notification id. It is not safe for concurrent
// use; the duty cycle is its only writer.
type Store struct {
	capacity int
	entries  map[[4]byte]*Entry
	// order records first-sighting insertion order. Updates in place do not
	// reorder.
	order [][4]byte
}

// NewStore creates a store bounded at the given capacity. A non-positive
// capacity selects DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		entries:  make(map[[4]byte]*Entry, capacity),
	}
}

// Merge applies a verified candidate. If the notification id is already
// present, the entry's content is replaced and its expiry refreshed. A new
// id is inserted while there is spare capacity, otherwise the candidate is
// rejected with ErrStoreFull.
func (s *Store) Merge(candidate Entry) error {
	id := candidate.Packet.NotificationID
	if existing, ok := s.entries[id]; ok {
		*existing = candidate
		return nil
	}
	if len(s.entries) >= s.capacity {
		return serrors.WithCtx(ErrStoreFull,
			"capacity", s.capacity, "id", candidate.Packet.NotificationID)
	}
	s.entries[id] = &candidate
	s.order = append(s.order, id)
	return nil
}

// Prune removes every entry whose expiry is at or before now. It returns the
// number of entries removed.
func (s *Store) Prune(now time.Time) int {
	pruned := 0
	kept := s.order[:0]
	for _, id := range s.order {
		if !s.entries[id].ExpiresAt.After(now) {
			delete(s.entries, id)
			pruned++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return pruned
}

// Snapshot returns the current entries in insertion order of first sighting.
// The returned slice is a copy and remains valid across later mutations; the
// entries themselves are read-only for the caller.
func (s *Store) Snapshot() []*Entry {
	snapshot := make([]*Entry, 0, len(s.order))
	for _, id := range s.order {
		snapshot = append(snapshot, s.entries[id])
	}
	return snapshot
}

// Len returns the number of active entries.
func (s *Store) Len() int {
	return len(s.entries)
}
