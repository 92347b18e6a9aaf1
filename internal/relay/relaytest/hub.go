// Package relaytest provides an in-memory relay network for tests.
//
// A Hub links any number of Endpoints. Connection-state changes are posted to
// each endpoint's event channel just like a real network would, and every send
// is recorded so tests can assert on exactly what went over the wire.
package relaytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/1ureka/relaypeer/internal/relay"
)

// firstIdentity is where the hub starts handing out identities.
const firstIdentity relay.Identity = 0x0110000100000001

// eventBuffer is the capacity of each endpoint's event channel.
const eventBuffer = 1024

// Hub is the shared in-memory network.
type Hub struct {
	mu        sync.Mutex
	next      relay.Identity
	endpoints map[relay.Identity]*Endpoint
}

// NewHub returns an empty network.
func NewHub() *Hub {
	return &Hub{
		next:      firstIdentity,
		endpoints: make(map[relay.Identity]*Endpoint),
	}
}

// NewEndpoint attaches a new endpoint with a fresh identity.
func (h *Hub) NewEndpoint() *Endpoint {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++

	e := &Endpoint{
		hub:    h,
		id:     id,
		events: make(chan relay.Event, eventBuffer),
		links:  make(map[relay.Handle]*link),
	}
	h.endpoints[id] = e
	return e
}

func (h *Hub) endpoint(id relay.Identity) *Endpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.endpoints[id]
}

// Send is one recorded SendMessage call.
type Send struct {
	Conn        relay.Handle
	Data        []byte
	Reliability relay.Reliability
}

type link struct {
	handle relay.Handle
	remote relay.Identity
	state  relay.State
	inbox  []relay.Message

	peer       *Endpoint
	peerHandle relay.Handle
}

// Endpoint implements relay.Network on top of a Hub.
type Endpoint struct {
	hub *Hub
	id  relay.Identity

	mu          sync.Mutex
	initialized bool
	listen      relay.ListenHandle
	nextHandle  relay.Handle
	links       map[relay.Handle]*link
	sends       []Send
	sendErr     error
	events      chan relay.Event
}

var _ relay.Network = (*Endpoint)(nil)

// Identity returns the endpoint's identity, initialized or not.
func (e *Endpoint) Identity() relay.Identity { return e.id }

// Sends returns a copy of every recorded send.
func (e *Endpoint) Sends() []Send {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Send(nil), e.sends...)
}

// FailSends makes every later SendMessage return err. Nil restores normal
// delivery.
func (e *Endpoint) FailSends(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sendErr = err
}

// Drop simulates a local failure of h: the endpoint sees
// ProblemDetectedLocally and the other side sees ClosedByPeer.
func (e *Endpoint) Drop(h relay.Handle) {
	e.mu.Lock()
	l, ok := e.links[h]
	if ok {
		l.state = relay.StateProblemDetectedLocally
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	e.emit(h, relay.StateProblemDetectedLocally, l.remote)
	if l.peer != nil {
		l.peer.closedByPeer(l.peerHandle)
	}
}

func (e *Endpoint) InitRelayAccess(ctx context.Context) error {
	e.mu.Lock()
	already := e.initialized
	e.initialized = true
	e.mu.Unlock()

	if !already {
		e.events <- relay.Event{Kind: relay.EventAvailability, Availability: relay.AvailabilityCurrent}
	}
	return nil
}

func (e *Endpoint) CreateListenEndpoint() (relay.ListenHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return relay.InvalidListenHandle, relay.ErrNotInitialized
	}
	e.listen = 1
	return e.listen, nil
}

func (e *Endpoint) CloseListenEndpoint(h relay.ListenHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h == relay.InvalidListenHandle || h != e.listen {
		return relay.ErrNotListening
	}
	e.listen = relay.InvalidListenHandle
	return nil
}

func (e *Endpoint) ConnectTo(ctx context.Context, remote relay.Identity) (relay.Handle, error) {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return relay.InvalidHandle, relay.ErrNotInitialized
	}
	local := e.newLink(remote)
	e.mu.Unlock()

	e.emit(local.handle, relay.StateConnecting, remote)

	other := e.hub.endpoint(remote)
	if other == nil || !other.isListening() {
		e.setState(local.handle, relay.StateProblemDetectedLocally)
		e.emit(local.handle, relay.StateProblemDetectedLocally, remote)
		return local.handle, nil
	}

	other.mu.Lock()
	incoming := other.newLink(e.id)
	incoming.peer = e
	incoming.peerHandle = local.handle
	other.mu.Unlock()

	e.mu.Lock()
	local.peer = other
	local.peerHandle = incoming.handle
	e.mu.Unlock()

	other.emit(incoming.handle, relay.StateConnecting, e.id)
	return local.handle, nil
}

func (e *Endpoint) AcceptConnection(h relay.Handle) error {
	e.mu.Lock()
	l, ok := e.links[h]
	if !ok {
		e.mu.Unlock()
		return relay.ErrUnknownHandle
	}
	if l.state != relay.StateConnecting {
		e.mu.Unlock()
		return fmt.Errorf("connection %d is %s, not connecting", h, l.state)
	}
	peer, peerHandle := l.peer, l.peerHandle
	e.mu.Unlock()

	for _, s := range []relay.State{relay.StateFindingRoute, relay.StateConnected} {
		e.setState(h, s)
		e.emit(h, s, l.remote)
		if peer != nil {
			peer.setState(peerHandle, s)
			peer.emit(peerHandle, s, e.id)
		}
	}
	return nil
}

func (e *Endpoint) CloseConnection(h relay.Handle) error {
	e.mu.Lock()
	l, ok := e.links[h]
	if ok {
		delete(e.links, h)
	}
	e.mu.Unlock()
	if !ok {
		return relay.ErrUnknownHandle
	}

	if l.peer != nil && !l.state.Terminal() {
		l.peer.closedByPeer(l.peerHandle)
	}
	e.emit(h, relay.StateNone, l.remote)
	return nil
}

func (e *Endpoint) ReceiveMessages(h relay.Handle, max int) ([]relay.Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.links[h]
	if !ok {
		return nil, relay.ErrUnknownHandle
	}
	n := min(max, len(l.inbox))
	if n == 0 {
		return nil, nil
	}
	out := make([]relay.Message, n)
	copy(out, l.inbox[:n])
	l.inbox = l.inbox[n:]
	return out, nil
}

func (e *Endpoint) SendMessage(h relay.Handle, data []byte, r relay.Reliability) error {
	e.mu.Lock()
	e.sends = append(e.sends, Send{Conn: h, Data: append([]byte(nil), data...), Reliability: r})
	if e.sendErr != nil {
		err := e.sendErr
		e.mu.Unlock()
		return err
	}
	l, ok := e.links[h]
	if !ok {
		e.mu.Unlock()
		return relay.ErrUnknownHandle
	}
	if l.state != relay.StateConnected {
		e.mu.Unlock()
		return relay.ErrChannelClosed
	}
	peer, peerHandle := l.peer, l.peerHandle
	e.mu.Unlock()

	if peer != nil {
		peer.deliver(peerHandle, relay.Message{Data: append([]byte(nil), data...), Sender: e.id})
	}
	return nil
}

func (e *Endpoint) SelfIdentity() (relay.Identity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return 0, relay.ErrNotInitialized
	}
	return e.id, nil
}

func (e *Endpoint) DetailedStatus(h relay.Handle) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.links[h]
	if !ok {
		return "", relay.ErrUnknownHandle
	}
	return fmt.Sprintf("conn %d to %s: %s, %d queued", h, l.remote, l.state, len(l.inbox)), nil
}

func (e *Endpoint) Events() <-chan relay.Event { return e.events }

// newLink must be called with e.mu held.
func (e *Endpoint) newLink(remote relay.Identity) *link {
	e.nextHandle++
	l := &link{handle: e.nextHandle, remote: remote, state: relay.StateConnecting}
	e.links[l.handle] = l
	return l
}

func (e *Endpoint) isListening() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listen != relay.InvalidListenHandle
}

func (e *Endpoint) setState(h relay.Handle, s relay.State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.links[h]; ok {
		l.state = s
	}
}

func (e *Endpoint) closedByPeer(h relay.Handle) {
	e.mu.Lock()
	l, ok := e.links[h]
	if ok {
		l.state = relay.StateClosedByPeer
		l.peer = nil
	}
	e.mu.Unlock()
	if ok {
		e.emit(h, relay.StateClosedByPeer, l.remote)
	}
}

func (e *Endpoint) deliver(h relay.Handle, msg relay.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.links[h]; ok && l.state == relay.StateConnected {
		l.inbox = append(l.inbox, msg)
	}
}

func (e *Endpoint) emit(h relay.Handle, s relay.State, remote relay.Identity) {
	e.events <- relay.Event{Kind: relay.EventConnectionState, Conn: h, State: s, Remote: remote}
}
