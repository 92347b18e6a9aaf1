// Package tracker runs the per-connection state machine that turns relay
// events into peer registrations, accepted connections, and the set of
// connections packets can be sent to.
package tracker

import (
	"errors"
	"slices"

	"github.com/1ureka/relaypeer/internal/registry"
	"github.com/1ureka/relaypeer/internal/relay"
	"github.com/1ureka/relaypeer/internal/util"
)

var log = util.Component("tracker")

// Status is the connection status reported to the protocol layer.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Transport is the part of relay.Network the tracker drives.
type Transport interface {
	AcceptConnection(h relay.Handle) error
	CloseConnection(h relay.Handle) error
	DetailedStatus(h relay.Handle) (string, error)
}

// conn is what the tracker knows about one transport handle.
type conn struct {
	handle relay.Handle
	remote relay.Identity
	peer   registry.PeerID // zero until the remote identity is registered
	state  relay.State
}

// Tracker owns the connection table and the connected set.
// It is not safe for concurrent use; the owning peer serializes access.
type Tracker struct {
	tr  Transport
	reg *registry.Registry

	listening bool
	refusing  bool

	conns   map[relay.Handle]*conn
	tracked []relay.Handle // connected handles, in the order they connected
	byPeer  map[registry.PeerID]relay.Handle

	status     Status
	peerStatus map[registry.PeerID]Status
}

// New creates a tracker that registers peers in reg and drives tr.
func New(tr Transport, reg *registry.Registry) *Tracker {
	return &Tracker{
		tr:         tr,
		reg:        reg,
		conns:      make(map[relay.Handle]*conn),
		byPeer:     make(map[registry.PeerID]relay.Handle),
		peerStatus: make(map[registry.PeerID]Status),
	}
}

// SetListening records whether this endpoint has an open listen endpoint.
// Only a listening endpoint accepts incoming connections.
func (t *Tracker) SetListening(v bool) { t.listening = v }

// SetRefuseNewConnections makes the tracker leave new incoming connections
// pending instead of accepting them.
func (t *Tracker) SetRefuseNewConnections(v bool) { t.refusing = v }

func (t *Tracker) RefusingNewConnections() bool { return t.refusing }

// Status returns the status set by the most recent transition.
func (t *Tracker) Status() Status { return t.status }

// PeerStatus returns the status of the connection to p.
func (t *Tracker) PeerStatus(p registry.PeerID) Status {
	return t.peerStatus[p]
}

// Connections returns a copy of the connected set.
func (t *Tracker) Connections() []relay.Handle {
	return slices.Clone(t.tracked)
}

// Handles returns every handle the tracker knows, connected or not.
func (t *Tracker) Handles() []relay.Handle {
	out := make([]relay.Handle, 0, len(t.conns))
	for h := range t.conns {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// HandleFor returns the connected handle for p.
func (t *Tracker) HandleFor(p registry.PeerID) (relay.Handle, bool) {
	h, ok := t.byPeer[p]
	if !ok || !slices.Contains(t.tracked, h) {
		return relay.InvalidHandle, false
	}
	return h, true
}

// State returns the last state seen for h.
func (t *Tracker) State(h relay.Handle) relay.State {
	if c, ok := t.conns[h]; ok {
		return c.state
	}
	return relay.StateNone
}

// Len returns the size of the connected set.
func (t *Tracker) Len() int { return len(t.tracked) }

// Handle applies one relay event.
func (t *Tracker) Handle(ev relay.Event) {
	switch ev.Kind {
	case relay.EventAvailability:
		logAvailability(ev.Availability)
	case relay.EventConnectionState:
		t.transition(ev)
	default:
		log.Warn("ignoring event of unknown kind %d", ev.Kind)
	}
}

func (t *Tracker) transition(ev relay.Event) {
	c, known := t.conns[ev.Conn]
	switch {
	case !known && ev.State.Terminal():
		// Already forgotten, or left over from an earlier session.
		log.Debug("ignoring %s for unknown connection %d", ev.State, ev.Conn)
		return
	case known && !ev.State.Terminal() && ev.State <= c.state:
		log.Debug("ignoring late %s on connection %d (already %s)", ev.State, ev.Conn, c.state)
		return
	case !known:
		c = &conn{handle: ev.Conn}
		t.conns[ev.Conn] = c
	}
	t.logDetailedStatus(ev.Conn)

	if ev.Remote != 0 {
		c.remote = ev.Remote
	}
	c.state = ev.State

	switch ev.State {
	case relay.StateConnecting:
		t.onConnecting(c)

	case relay.StateFindingRoute:
		t.setStatus(c, Connecting)
		log.Info("finding route to %s...", c.remote)

	case relay.StateConnected:
		t.onConnected(c)

	case relay.StateClosedByPeer:
		t.setStatus(c, Disconnected)
		log.Info("lost connection to peer %d (%s)", c.peer, c.remote)
		t.forget(c, true)

	case relay.StateProblemDetectedLocally:
		t.setStatus(c, Disconnected)
		log.Warn("problem detected locally on connection %d", c.handle)
		t.forget(c, true)

	case relay.StateNone:
		t.setStatus(c, Disconnected)
		log.Debug("connection %d state is none", c.handle)
		t.forget(c, false)
	}
}

func (t *Tracker) onConnecting(c *conn) {
	if c.remote == 0 {
		log.Warn("connection %d is connecting without a remote identity", c.handle)
		return
	}

	if err := t.register(c); err != nil {
		log.Error("cannot register %s: %v", c.remote, err)
		if t.listening {
			// An incoming connection we cannot address is dropped outright.
			t.forget(c, false)
			if err := t.tr.CloseConnection(c.handle); err != nil {
				log.Debug("close connection %d: %v", c.handle, err)
			}
		}
		return
	}
	t.setStatus(c, Connecting)

	if !t.listening {
		return
	}
	if t.refusing {
		log.Info("refusing new connection from %s", c.remote)
		return
	}
	if err := t.tr.AcceptConnection(c.handle); err != nil {
		log.Error("failed to accept connection from %s: %v", c.remote, err)
	}
}

func (t *Tracker) onConnected(c *conn) {
	if c.peer == 0 && c.remote != 0 {
		if err := t.register(c); err != nil {
			log.Error("cannot register %s: %v", c.remote, err)
		}
	}
	t.setStatus(c, Connected)

	if !slices.Contains(t.tracked, c.handle) {
		t.tracked = append(t.tracked, c.handle)
		util.Stats.AddPeer()
	}
	log.Info("connected to peer %d (%s)", c.peer, c.remote)
}

func (t *Tracker) register(c *conn) error {
	p, err := t.reg.Register(c.remote)
	if err != nil {
		return err
	}
	c.peer = p
	t.byPeer[p] = c.handle
	return nil
}

// forget drops c from every table. With unregister set it also removes the
// remote identity from the registry; with a closed-by-peer or locally failed
// connection it releases the transport handle.
func (t *Tracker) forget(c *conn, unregister bool) {
	if i := slices.Index(t.tracked, c.handle); i >= 0 {
		t.tracked = slices.Delete(t.tracked, i, i+1)
		util.Stats.RemovePeer()
	}
	delete(t.conns, c.handle)

	if c.peer != 0 {
		if h, ok := t.byPeer[c.peer]; ok && h == c.handle {
			delete(t.byPeer, c.peer)
			delete(t.peerStatus, c.peer)
		}
	}

	if !unregister {
		return
	}

	if c.remote != 0 && c.remote != t.reg.Self() && c.peer != 0 {
		if err := t.reg.Unregister(c.remote); err != nil && !errors.Is(err, registry.ErrUnknownPeer) {
			log.Warn("unregister %s: %v", c.remote, err)
		}
	}
	if err := t.tr.CloseConnection(c.handle); err != nil {
		log.Debug("close connection %d: %v", c.handle, err)
	}
}

func (t *Tracker) setStatus(c *conn, s Status) {
	t.status = s
	if c.peer == 0 {
		return
	}
	if h, ok := t.byPeer[c.peer]; ok && h == c.handle && s != Disconnected {
		t.peerStatus[c.peer] = s
	}
}

func (t *Tracker) logDetailedStatus(h relay.Handle) {
	s, err := t.tr.DetailedStatus(h)
	if err != nil {
		log.Debug("no detailed status for connection %d: %v", h, err)
		return
	}
	log.Info("connection status: %s", s)
}

func logAvailability(a relay.Availability) {
	switch a {
	case relay.AvailabilityCannotTry:
		log.Error("cannot try to use relay network")
	case relay.AvailabilityFailed:
		log.Error("failed to initialize relay network")
	case relay.AvailabilityPreviously:
		log.Info("previously used relay network")
	case relay.AvailabilityRetrying:
		log.Info("retrying to initialize relay network")
	case relay.AvailabilityCurrent:
		log.Info("relay network initialized successfully")
	default:
		log.Debug("relay availability %s", a)
	}
}
