// Package registry maps transport identities to the small integer peer ids
// the multiplayer protocol addresses endpoints with.
package registry

import (
	"errors"
	"fmt"

	"github.com/1ureka/relaypeer/internal/relay"
)

// PeerID is the protocol-level address of an endpoint, in [1, 2^31-1].
type PeerID int32

const (
	// Broadcast addresses every connected peer. It is never assigned.
	Broadcast PeerID = 0
	// Host is always the id of the session host.
	Host PeerID = 1
)

// peerIDModulus keeps derived ids inside the positive int32 range.
const peerIDModulus = 2147483647

var (
	ErrUnknownPeer    = errors.New("unknown peer")
	ErrPeerIDConflict = errors.New("peer id already taken by another identity")
	ErrInvalidID      = errors.New("invalid identity")
)

// Derive returns the peer id a non-host identity maps to.
// Results that would collide with the reserved ids are folded to the top of
// the range.
func Derive(id relay.Identity) PeerID {
	p := PeerID(uint64(id) % peerIDModulus)
	switch p {
	case Broadcast:
		return peerIDModulus - 1
	case Host:
		return peerIDModulus - 2
	}
	return p
}

// Registry is a bijection between known identities and peer ids.
// It is not safe for concurrent use; the owning peer serializes access.
type Registry struct {
	self relay.Identity
	host relay.Identity

	toPeer     map[relay.Identity]PeerID
	toIdentity map[PeerID]relay.Identity
}

// New creates an empty registry for the endpoint whose own identity is self.
func New(self relay.Identity) *Registry {
	return &Registry{
		self:       self,
		toPeer:     make(map[relay.Identity]PeerID),
		toIdentity: make(map[PeerID]relay.Identity),
	}
}

// Self returns the local identity.
func (r *Registry) Self() relay.Identity { return r.self }

// SetHost marks which identity is the session host. It must be called before
// that identity is registered; an existing entry for it is re-registered.
func (r *Registry) SetHost(id relay.Identity) error {
	if id == 0 {
		return ErrInvalidID
	}
	if r.host == id {
		return nil
	}

	if _, ok := r.toPeer[id]; ok {
		if other, taken := r.toIdentity[Host]; taken && other != id {
			return fmt.Errorf("%w: peer %d held by %s, wanted by %s", ErrPeerIDConflict, Host, other, id)
		}
		if err := r.Unregister(id); err != nil {
			return err
		}
		r.host = id
		_, err := r.Register(id)
		return err
	}

	r.host = id
	return nil
}

// Register stores the entry for id and returns its peer id. Registering an
// already known identity returns the existing id.
func (r *Registry) Register(id relay.Identity) (PeerID, error) {
	if id == 0 {
		return 0, ErrInvalidID
	}
	if p, ok := r.toPeer[id]; ok {
		return p, nil
	}

	p := Derive(id)
	if r.host != 0 && id == r.host {
		p = Host
	}

	if other, ok := r.toIdentity[p]; ok {
		return 0, fmt.Errorf("%w: peer %d held by %s, wanted by %s", ErrPeerIDConflict, p, other, id)
	}

	r.toPeer[id] = p
	r.toIdentity[p] = id
	return p, nil
}

// PeerIDFor returns the peer id registered for id.
func (r *Registry) PeerIDFor(id relay.Identity) (PeerID, error) {
	p, ok := r.toPeer[id]
	if !ok {
		return 0, fmt.Errorf("%w: identity %s", ErrUnknownPeer, id)
	}
	return p, nil
}

// IdentityFor returns the identity registered under p.
func (r *Registry) IdentityFor(p PeerID) (relay.Identity, error) {
	id, ok := r.toIdentity[p]
	if !ok {
		return 0, fmt.Errorf("%w: peer %d", ErrUnknownPeer, p)
	}
	return id, nil
}

// Unregister removes both directions of the entry for id.
func (r *Registry) Unregister(id relay.Identity) error {
	p, ok := r.toPeer[id]
	if !ok {
		return fmt.Errorf("%w: identity %s", ErrUnknownPeer, id)
	}
	delete(r.toPeer, id)
	delete(r.toIdentity, p)
	return nil
}

// Len returns the number of registered identities.
func (r *Registry) Len() int { return len(r.toPeer) }

// Each calls fn for every entry, in no particular order.
func (r *Registry) Each(fn func(id relay.Identity, p PeerID)) {
	for id, p := range r.toPeer {
		fn(id, p)
	}
}
