package transport

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/relaypeer/internal/relay"
	"github.com/1ureka/relaypeer/internal/signaling"
)

// readLoop dispatches broker messages until the broker link drops. Live
// WebRTC links outlive the broker; only new connections need it.
func (n *Network) readLoop(c *signaling.Client) {
	for {
		msg, err := c.Receive()
		if err != nil {
			if n.ctx.Err() == nil {
				log.Warn("lost broker connection: %v", err)
				n.postAvailability(relay.AvailabilityPreviously)
			}
			return
		}
		n.dispatch(msg)
	}
}

func (n *Network) dispatch(msg signaling.Message) {
	if msg.Type == signaling.MsgTypeOffer {
		n.onOffer(msg)
		return
	}

	c := n.session(msg)
	if c == nil {
		log.Debug("%s for unknown session %q from %s", msg.Type, msg.Session, msg.From)
		return
	}

	switch msg.Type {
	case signaling.MsgTypeAnswer:
		if !c.initiator {
			return
		}
		answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP}
		if err := c.pc.SetRemoteDescription(answer); err != nil {
			n.fail(c, fmt.Errorf("apply answer: %w", err))
			return
		}
		n.flushRemoteCandidates(c)

	case signaling.MsgTypeCandidate:
		var init webrtc.ICECandidateInit
		if err := json.Unmarshal([]byte(msg.Candidate), &init); err != nil {
			log.Debug("connection %d: bad candidate: %v", c.handle, err)
			return
		}
		n.mu.Lock()
		if !c.remoteSet {
			c.remoteCandidates = append(c.remoteCandidates, init)
			n.mu.Unlock()
			return
		}
		n.mu.Unlock()
		if err := c.pc.AddICECandidate(init); err != nil {
			log.Debug("connection %d: add candidate: %v", c.handle, err)
		}

	case signaling.MsgTypeClose:
		log.Debug("connection %d closed by %s: %s", c.handle, c.remote, msg.Reason)
		n.terminate(c, relay.StateClosedByPeer)

	case signaling.MsgTypeError:
		log.Warn("connection %d: broker: %s", c.handle, msg.Reason)
		n.terminate(c, relay.StateProblemDetectedLocally)
	}
}

// onOffer creates the incoming side of a connection and posts
// StateConnecting. The offer is applied by AcceptConnection.
func (n *Network) onOffer(msg signaling.Message) {
	n.mu.Lock()
	listening := n.listen != relay.InvalidListenHandle
	_, dup := n.sessions[msg.Session]
	client := n.client
	n.mu.Unlock()

	if dup || client == nil {
		return
	}
	if !listening {
		log.Debug("refusing offer from %s: not listening", msg.From)
		_ = client.Send(signaling.Message{
			Type:    signaling.MsgTypeClose,
			To:      msg.From,
			Session: msg.Session,
			Reason:  "not listening",
		})
		return
	}

	c, err := n.newConn(msg.From, msg.Session, false)
	if err != nil {
		log.Error("offer from %s: %v", msg.From, err)
		_ = client.Send(signaling.Message{
			Type:    signaling.MsgTypeClose,
			To:      msg.From,
			Session: msg.Session,
			Reason:  "internal error",
		})
		return
	}

	n.mu.Lock()
	c.offer = &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP}
	n.mu.Unlock()
	n.postState(c, relay.StateConnecting)
}

// session finds the connection msg belongs to. The sender must be the
// connection's remote identity.
func (n *Network) session(msg signaling.Message) *conn {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.sessions[msg.Session]
	if !ok || c.remote != msg.From {
		return nil
	}
	return c
}
