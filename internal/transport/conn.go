package transport

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/relaypeer/internal/relay"
	"github.com/1ureka/relaypeer/internal/signaling"
)

// maxInbox bounds the datagrams buffered per connection between polls.
// Further datagrams are dropped.
const maxInbox = 4096

// conn is one WebRTC link. Fields below pc are guarded by Network.mu.
type conn struct {
	handle    relay.Handle
	remote    relay.Identity
	session   string
	initiator bool

	pc         *webrtc.PeerConnection
	reliable   *sender
	unreliable *sender

	state relay.State
	open  int

	// offer is the remote offer an incoming connection waits to accept.
	offer *webrtc.SessionDescription

	// Candidates that arrive before the remote description is applied.
	remoteSet        bool
	remoteCandidates []webrtc.ICECandidateInit

	// Local candidates gathered before the offer/answer went out.
	ready           bool
	localCandidates []string

	inbox   []relay.Message
	dropped int
}

// newConn creates the PeerConnection and data channels for a link to remote
// and adds it to the connection table in StateConnecting. No event is posted.
func (n *Network) newConn(remote relay.Identity, session string, initiator bool) (*conn, error) {
	pc, err := newPeerConnection(n.cfg.ICEServers)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	rdc, udc, err := newDataChannels(pc)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("failed to create data channels: %w", err)
	}

	n.mu.Lock()
	n.nextHandle++
	c := &conn{
		handle:    n.nextHandle,
		remote:    remote,
		session:   session,
		initiator: initiator,
		pc:        pc,
		state:     relay.StateConnecting,
	}
	c.reliable = newSender(c.handle, rdc)
	c.unreliable = newSender(c.handle, udc)
	n.conns[c.handle] = c
	n.sessions[session] = c
	n.mu.Unlock()

	n.wire(c, rdc, udc)
	return c, nil
}

func (n *Network) wire(c *conn, dcs ...*webrtc.DataChannel) {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		data, err := json.Marshal(cand.ToJSON())
		if err != nil {
			return
		}
		n.mu.Lock()
		if !c.ready {
			c.localCandidates = append(c.localCandidates, string(data))
			n.mu.Unlock()
			return
		}
		n.mu.Unlock()
		n.sendCandidate(c, string(data))
	})

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug("connection %d: ICE %s", c.handle, s)
		if s == webrtc.ICEConnectionStateChecking {
			n.advance(c, relay.StateFindingRoute)
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Debug("connection %d: PeerConnection %s", c.handle, s)
		switch s {
		case webrtc.PeerConnectionStateFailed:
			n.fail(c, fmt.Errorf("peer connection failed"))
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
			n.terminate(c, relay.StateClosedByPeer)
		}
	})

	for _, dc := range dcs {
		dc.OnOpen(func() {
			n.mu.Lock()
			c.open++
			both := c.open == len(dcs)
			n.mu.Unlock()
			if both {
				n.advance(c, relay.StateConnected)
			}
		})
		dc.OnClose(func() {
			n.terminate(c, relay.StateClosedByPeer)
		})
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			n.deliver(c, msg.Data)
		})
	}
}

// advance moves c forward to s. Backward moves and moves out of a terminal
// state are ignored.
func (n *Network) advance(c *conn, s relay.State) {
	n.mu.Lock()
	if c.state.Terminal() || c.state >= s {
		n.mu.Unlock()
		return
	}
	c.state = s
	n.mu.Unlock()

	n.postState(c, s)
}

// terminate moves c into the terminal state s once and releases the
// PeerConnection. The handle stays valid until CloseConnection.
func (n *Network) terminate(c *conn, s relay.State) bool {
	n.mu.Lock()
	if c.state.Terminal() {
		n.mu.Unlock()
		return false
	}
	c.state = s
	n.mu.Unlock()

	n.postState(c, s)
	go func() { _ = c.pc.Close() }()
	return true
}

// fail ends c with a local problem and tells the remote side.
func (n *Network) fail(c *conn, err error) {
	if !n.terminate(c, relay.StateProblemDetectedLocally) {
		return
	}
	log.Warn("connection %d to %s: %v", c.handle, c.remote, err)
	_ = n.signal(c, signaling.Message{Type: signaling.MsgTypeClose, Reason: err.Error()})
}

func (n *Network) deliver(c *conn, data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if c.state.Terminal() {
		return
	}
	if len(c.inbox) >= maxInbox {
		c.dropped++
		if c.dropped == 1 || c.dropped%1000 == 0 {
			log.Warn("connection %d: inbox full, %d datagrams dropped", c.handle, c.dropped)
		}
		return
	}
	c.inbox = append(c.inbox, relay.Message{
		Data:   append([]byte(nil), data...),
		Sender: c.remote,
	})
}

// signal sends msg to the remote side of c through the broker.
func (n *Network) signal(c *conn, msg signaling.Message) error {
	n.mu.Lock()
	client := n.client
	n.mu.Unlock()
	if client == nil {
		return ErrClosed
	}

	msg.To = c.remote
	msg.Session = c.session
	return client.Send(msg)
}

// signalReady marks c's offer or answer as sent and flushes the local
// candidates gathered so far.
func (n *Network) signalReady(c *conn) {
	n.mu.Lock()
	c.ready = true
	pending := c.localCandidates
	c.localCandidates = nil
	n.mu.Unlock()

	for _, cand := range pending {
		n.sendCandidate(c, cand)
	}
}

func (n *Network) sendCandidate(c *conn, cand string) {
	if err := n.signal(c, signaling.Message{Type: signaling.MsgTypeCandidate, Candidate: cand}); err != nil {
		log.Debug("connection %d: send candidate: %v", c.handle, err)
	}
}

// flushRemoteCandidates marks the remote description as applied and adds
// the candidates that arrived before it.
func (n *Network) flushRemoteCandidates(c *conn) {
	n.mu.Lock()
	c.remoteSet = true
	pending := c.remoteCandidates
	c.remoteCandidates = nil
	n.mu.Unlock()

	for _, cand := range pending {
		if err := c.pc.AddICECandidate(cand); err != nil {
			log.Debug("connection %d: add candidate: %v", c.handle, err)
		}
	}
}
