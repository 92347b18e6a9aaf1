// Package transport implements relay.Network on WebRTC data channels, using
// the signaling broker to find remote identities.
//
// Every connection is one PeerConnection with two pre-negotiated data
// channels: "reliable" (ordered, retransmitted) and "unreliable" (unordered,
// no retransmits). pion callbacks never touch adapter state; they update the
// connection table under Network.mu and post relay.Events.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/relaypeer/internal/relay"
	"github.com/1ureka/relaypeer/internal/signaling"
	"github.com/1ureka/relaypeer/internal/util"
)

var log = util.Component("transport")

var ErrClosed = errors.New("network closed")

// Config tells the network where the broker is and which ICE servers to use.
type Config struct {
	BrokerURL  string
	PIN        string
	ICEServers []webrtc.ICEServer
}

// Network is a WebRTC relay.Network.
type Network struct {
	cfg    Config
	events *eventPump

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	client     *signaling.Client
	listen     relay.ListenHandle
	nextHandle relay.Handle
	conns      map[relay.Handle]*conn
	sessions   map[string]*conn
}

var _ relay.Network = (*Network)(nil)

// New creates a network. Nothing is dialed until InitRelayAccess.
func New(cfg Config) *Network {
	ctx, cancel := context.WithCancel(context.Background())
	n := &Network{
		cfg:      cfg,
		events:   newEventPump(),
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[relay.Handle]*conn),
		sessions: make(map[string]*conn),
	}
	go n.events.run(ctx)
	return n
}

// InitRelayAccess connects to the broker and learns this endpoint's
// identity. Calling it again after success is a no-op.
func (n *Network) InitRelayAccess(ctx context.Context) error {
	if n.ctx.Err() != nil {
		return ErrClosed
	}

	n.mu.Lock()
	ready := n.client != nil
	n.mu.Unlock()
	if ready {
		return nil
	}

	n.postAvailability(relay.AvailabilityRetrying)
	c, err := signaling.Dial(ctx, n.cfg.BrokerURL, n.cfg.PIN)
	if err != nil {
		n.postAvailability(relay.AvailabilityFailed)
		return err
	}

	n.mu.Lock()
	if n.client != nil {
		n.mu.Unlock()
		_ = c.Close()
		return nil
	}
	n.client = c
	n.mu.Unlock()

	n.postAvailability(relay.AvailabilityCurrent)
	log.Info("broker assigned identity %s", c.Identity())
	go n.readLoop(c)
	return nil
}

// CreateListenEndpoint starts accepting offers. There is at most one listen
// endpoint; calling it again returns the existing one.
func (n *Network) CreateListenEndpoint() (relay.ListenHandle, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.client == nil {
		return relay.InvalidListenHandle, relay.ErrNotInitialized
	}
	n.listen = 1
	return n.listen, nil
}

// CloseListenEndpoint stops accepting offers. Established connections stay.
func (n *Network) CloseListenEndpoint(h relay.ListenHandle) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if h == relay.InvalidListenHandle || h != n.listen {
		return relay.ErrNotListening
	}
	n.listen = relay.InvalidListenHandle
	return nil
}

// ConnectTo sends an offer to remote. Progress is reported through Events.
func (n *Network) ConnectTo(ctx context.Context, remote relay.Identity) (relay.Handle, error) {
	n.mu.Lock()
	client := n.client
	n.mu.Unlock()
	if client == nil {
		return relay.InvalidHandle, relay.ErrNotInitialized
	}

	c, err := n.newConn(remote, uuid.NewString(), true)
	if err != nil {
		return relay.InvalidHandle, err
	}

	offer, err := c.pc.CreateOffer(nil)
	if err == nil {
		err = c.pc.SetLocalDescription(offer)
	}
	if err != nil {
		n.remove(c)
		_ = c.pc.Close()
		return relay.InvalidHandle, fmt.Errorf("failed to create offer: %w", err)
	}

	n.postState(c, relay.StateConnecting)
	if err := n.signal(c, signaling.Message{Type: signaling.MsgTypeOffer, SDP: offer.SDP}); err != nil {
		n.fail(c, fmt.Errorf("send offer: %w", err))
		return c.handle, nil
	}
	n.signalReady(c)
	return c.handle, nil
}

// AcceptConnection answers the pending offer of an incoming connection.
func (n *Network) AcceptConnection(h relay.Handle) error {
	c, err := n.lookup(h)
	if err != nil {
		return err
	}

	n.mu.Lock()
	offer := c.offer
	if offer == nil || c.state != relay.StateConnecting {
		n.mu.Unlock()
		return fmt.Errorf("connection %d has no pending offer", h)
	}
	c.offer = nil
	n.mu.Unlock()

	if err := c.pc.SetRemoteDescription(*offer); err != nil {
		n.fail(c, err)
		return fmt.Errorf("failed to apply offer: %w", err)
	}
	n.flushRemoteCandidates(c)

	answer, err := c.pc.CreateAnswer(nil)
	if err == nil {
		err = c.pc.SetLocalDescription(answer)
	}
	if err != nil {
		n.fail(c, err)
		return fmt.Errorf("failed to create answer: %w", err)
	}

	if err := n.signal(c, signaling.Message{Type: signaling.MsgTypeAnswer, SDP: answer.SDP}); err != nil {
		n.fail(c, fmt.Errorf("send answer: %w", err))
		return err
	}
	n.signalReady(c)
	return nil
}

// CloseConnection tears h down and tells the remote side. The handle is
// invalid afterwards; a final StateNone event is posted.
func (n *Network) CloseConnection(h relay.Handle) error {
	c, err := n.lookup(h)
	if err != nil {
		return err
	}

	n.mu.Lock()
	live := !c.state.Terminal()
	c.state = relay.StateNone
	n.mu.Unlock()
	n.remove(c)

	if live {
		_ = n.signal(c, signaling.Message{Type: signaling.MsgTypeClose, Reason: "closed"})
	}
	if err := c.pc.Close(); err != nil {
		log.Debug("connection %d: close: %v", h, err)
	}
	n.postState(c, relay.StateNone)
	return nil
}

// ReceiveMessages returns at most max datagrams buffered on h.
func (n *Network) ReceiveMessages(h relay.Handle, max int) ([]relay.Message, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	c, ok := n.conns[h]
	if !ok {
		return nil, relay.ErrUnknownHandle
	}
	k := min(max, len(c.inbox))
	if k == 0 {
		return nil, nil
	}
	out := make([]relay.Message, k)
	copy(out, c.inbox[:k])
	c.inbox = c.inbox[k:]
	return out, nil
}

// SendMessage writes data on the channel matching r. It never blocks: a
// channel that is not open yields relay.ErrChannelClosed and a congested one
// yields ErrBufferFull.
func (n *Network) SendMessage(h relay.Handle, data []byte, r relay.Reliability) error {
	c, err := n.lookup(h)
	if err != nil {
		return err
	}
	if r == relay.Reliable {
		return c.reliable.send(data)
	}
	return c.unreliable.send(data)
}

// SelfIdentity returns the identity the broker assigned.
func (n *Network) SelfIdentity() (relay.Identity, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.client == nil {
		return 0, relay.ErrNotInitialized
	}
	return n.client.Identity(), nil
}

// DetailedStatus describes h for diagnostics.
func (n *Network) DetailedStatus(h relay.Handle) (string, error) {
	c, err := n.lookup(h)
	if err != nil {
		return "", err
	}

	n.mu.Lock()
	state, queued := c.state, len(c.inbox)
	n.mu.Unlock()

	s := fmt.Sprintf("conn %d to %s [session %s]: %s, pc %s, ice %s, %s, %s, %d queued",
		h, c.remote, c.session, state,
		c.pc.ConnectionState(), c.pc.ICEConnectionState(),
		c.reliable.status(), c.unreliable.status(), queued)
	if len(s) > relay.DetailedStatusMaxLen {
		s = s[:relay.DetailedStatusMaxLen]
	}
	return s, nil
}

func (n *Network) Events() <-chan relay.Event { return n.events.out }

// Close drops every connection and the broker link. The network cannot be
// used afterwards.
func (n *Network) Close() error {
	n.mu.Lock()
	conns := make([]*conn, 0, len(n.conns))
	for _, c := range n.conns {
		c.state = relay.StateNone
		conns = append(conns, c)
	}
	n.conns = make(map[relay.Handle]*conn)
	n.sessions = make(map[string]*conn)
	client := n.client
	n.client = nil
	n.listen = relay.InvalidListenHandle
	n.mu.Unlock()

	n.cancel()

	var errs []error
	for _, c := range conns {
		errs = append(errs, c.pc.Close())
	}
	if client != nil {
		errs = append(errs, client.Close())
	}
	return errors.Join(errs...)
}

func (n *Network) lookup(h relay.Handle) (*conn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.conns[h]
	if !ok {
		return nil, relay.ErrUnknownHandle
	}
	return c, nil
}

func (n *Network) remove(c *conn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.conns, c.handle)
	if n.sessions[c.session] == c {
		delete(n.sessions, c.session)
	}
}

func (n *Network) postState(c *conn, s relay.State) {
	n.events.post(relay.Event{
		Kind:   relay.EventConnectionState,
		Conn:   c.handle,
		State:  s,
		Remote: c.remote,
	})
}

func (n *Network) postAvailability(a relay.Availability) {
	n.events.post(relay.Event{Kind: relay.EventAvailability, Availability: a})
}
