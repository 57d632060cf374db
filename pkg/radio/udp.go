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

package radio

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/transitbeacon/transitbeacon/pkg/log"
	"github.com/transitbeacon/transitbeacon/pkg/serrors"
)

// DefaultGroup is the default multicast group the UDP radio operates on.
const DefaultGroup = "239.86.29.1:8629"

// readBufSize bounds a single received frame. Vendor data frames are tiny;
// this leaves generous headroom.
const readBufSize = 512

// UDP is a Radio implementation on top of a UDP multicast group. It stands
// in for the over-the-air scan/advertise primitives so that nodes can run on
// commodity hosts: scanning reads from the group for the duration of the
// window, advertising sends the frame periodically until stopped.
type UDP struct {
	group *net.UDPAddr
}

// NewUDP creates a UDP radio on the given multicast group address. An empty
// group selects DefaultGroup.
func NewUDP(group string) (*UDP, error) {
	if group == "" {
		group = DefaultGroup
	}
	addr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		return nil, serrors.WrapStr("resolving multicast group", err, "group", group)
	}
	if !addr.IP.IsMulticast() {
		return nil, serrors.New("group address is not multicast", "group", group)
	}
	return &UDP{group: addr}, nil
}

// Scan implements Radio.Scan. It listens on the multicast group until the
// window elapses and delivers every frame tagged with the protocol's
// manufacturer identifier.
func (u *UDP) Scan(ctx context.Context, window time.Duration,
	onCandidate func(raw []byte)) error {

	conn, err := net.ListenMulticastUDP("udp4", nil, u.group)
	if err != nil {
		return serrors.WrapStr("joining multicast group", err, "group", u.group)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		return serrors.WrapStr("setting scan deadline", err)
	}
	buf := make([]byte, readBufSize)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				// Window elapsed, the scan is complete.
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return serrors.WrapStr("reading from multicast group", err)
		}
		if payload, ok := DecodeFrame(buf[:n]); ok {
			raw := append([]byte(nil), payload...)
			onCandidate(raw)
		}
	}
}

// Advertise implements Radio.Advertise. The frame is sent immediately and
// then once per minInterval until the handle is stopped.
func (u *UDP) Advertise(payload []byte, minInterval, maxInterval time.Duration) (Handle, error) {
	if minInterval <= 0 {
		return nil, serrors.Wrap(ErrStartFailed,
			serrors.New("non-positive advertising interval", "min_interval", minInterval))
	}
	conn, err := net.DialUDP("udp4", nil, u.group)
	if err != nil {
		return nil, serrors.Wrap(ErrStartFailed, err, "group", u.group)
	}
	frame := EncodeFrame(payload)
	if _, err := conn.Write(frame); err != nil {
		conn.Close()
		return nil, serrors.Wrap(ErrStartFailed, err, "group", u.group)
	}
	adv := &udpAdvertisement{
		conn:  conn,
		stopc: make(chan struct{}),
		done:  make(chan struct{}),
	}
	go func() {
		defer log.HandlePanic()
		adv.run(frame, minInterval)
	}()
	return adv, nil
}

type udpAdvertisement struct {
	conn     *net.UDPConn
	stopc    chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	err      error
}

func (a *udpAdvertisement) run(frame []byte, interval time.Duration) {
	defer close(a.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopc:
			return
		case <-ticker.C:
			if _, err := a.conn.Write(frame); err != nil {
				a.err = err
				return
			}
		}
	}
}

// Stop terminates the advertisement and releases the underlying socket.
func (a *udpAdvertisement) Stop() error {
	var err error
	a.stopOnce.Do(func() {
		close(a.stopc)
		<-a.done
		closeErr := a.conn.Close()
		if a.err != nil {
			err = serrors.Wrap(ErrStopFailed, a.err)
			return
		}
		if closeErr != nil {
			err = serrors.Wrap(ErrStopFailed, closeErr)
		}
	})
	return err
}
