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
	"crypto/hmac"
	"crypto/sha256"

	"github.com/transitbeacon/transitbeacon/pkg/serrors"
)

// Auth holds the two independent keyed-MAC instances of the authentication
// chain. The infrastructure key authenticates packets along the relay chain,
// the client key authenticates them towards the client application. Tags are
// the leading bytes of an HMAC-SHA256 digest over the base payload.
type Auth struct {
	infraKey  []byte
	clientKey []byte
}

// NewAuth creates an Auth from the two secrets. Both keys must be non-empty.
func NewAuth(infraKey, clientKey []byte) (*Auth, error) {
	if len(infraKey) == 0 {
		return nil, serrors.New("empty infrastructure key")
	}
	if len(clientKey) == 0 {
		return nil, serrors.New("empty client key")
	}
	return &Auth{
		infraKey:  append([]byte(nil), infraKey...),
		clientKey: append([]byte(nil), clientKey...),
	}, nil
}

// InfraSign computes the infrastructure tag over the packet's base payload
// and sets it. Only the origin may compute a first infrastructure tag;
// relays verify, never regenerate it.
func (a *Auth) InfraSign(p *Packet) error {
	payload, err := p.BasePayload()
	if err != nil {
		return err
	}
	copy(p.InfraTag[:], computeTag(a.infraKey, payload, InfraTagLen))
	return nil
}

// InfraVerify recomputes the infrastructure tag and compares it against the
// packet's tag in constant time.
func (a *Auth) InfraVerify(p *Packet) bool {
	payload, err := p.BasePayload()
	if err != nil {
		return false
	}
	return hmac.Equal(p.InfraTag[:], computeTag(a.infraKey, payload, InfraTagLen))
}

// ClientSign computes and sets the client tag if it is currently unset. It
// returns whether the packet was signed. A tag that is already set is never
// recomputed; subsequent relays forward it byte-for-byte.
func (a *Auth) ClientSign(p *Packet) (bool, error) {
	if p.HasClientTag() {
		return false, nil
	}
	payload, err := p.BasePayload()
	if err != nil {
		return false, err
	}
	copy(p.ClientTag[:], computeTag(a.clientKey, payload, ClientTagLen))
	return true, nil
}

// ClientVerify recomputes the client tag and compares it against the
// packet's tag in constant time. Relays do not call this; it implements the
// verification rule the client application relies on.
func (a *Auth) ClientVerify(p *Packet) bool {
	payload, err := p.BasePayload()
	if err != nil {
		return false
	}
	return hmac.Equal(p.ClientTag[:], computeTag(a.clientKey, payload, ClientTagLen))
}

// computeTag returns the leading n bytes of the HMAC-SHA256 digest of data.
func computeTag(key, data []byte, n int) []byte {
	mac := hmac.New(sha256.New, key)
	// Write must not return an error: https://godoc.org/hash#Hash
	if _, err := mac.Write(data); err != nil {
		panic(err)
	}
	return mac.Sum(nil)[:n]
}
