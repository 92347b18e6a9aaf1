// Package peer adapts a relay network to the numbered-peer contract a
// multiplayer protocol expects.
//
// A Peer is driven entirely by its caller. Transport events and received
// messages are only applied inside Poll, so between two Poll calls the
// registry, connection set, and packet queue do not change underneath the
// caller. Every method is safe for concurrent use.
package peer

import (
	"slices"
	"sync"

	"github.com/1ureka/relaypeer/internal/queue"
	"github.com/1ureka/relaypeer/internal/registry"
	"github.com/1ureka/relaypeer/internal/relay"
	"github.com/1ureka/relaypeer/internal/tracker"
	"github.com/1ureka/relaypeer/internal/util"
)

var log = util.Component("peer")

// ID addresses a peer. See TargetPeerBroadcast and TargetPeerServer.
type ID = registry.PeerID

const (
	TargetPeerBroadcast ID = registry.Broadcast
	TargetPeerServer    ID = registry.Host
)

// ConnectionStatus is the status reported by ConnectionStatus and PeerStatus.
type ConnectionStatus = tracker.Status

const (
	StatusDisconnected = tracker.Disconnected
	StatusConnecting   = tracker.Connecting
	StatusConnected    = tracker.Connected
)

// MaxPacketSize is the largest payload PutPacket accepts.
const MaxPacketSize = 4096

// TransferMode selects the delivery class of outgoing packets.
type TransferMode int

const (
	TransferModeUnreliable TransferMode = iota
	TransferModeUnreliableOrdered
	TransferModeReliable
)

func (m TransferMode) String() string {
	switch m {
	case TransferModeUnreliable:
		return "unreliable"
	case TransferModeUnreliableOrdered:
		return "unreliable-ordered"
	case TransferModeReliable:
		return "reliable"
	default:
		return "unknown"
	}
}

// reliability maps a transfer mode to the class requested from the relay.
// Only plain unreliable is sent unreliably; the relay has no
// unreliable-ordered class, so ordering is kept by sending it reliably.
func (m TransferMode) reliability() relay.Reliability {
	if m == TransferModeUnreliable {
		return relay.Unreliable
	}
	return relay.Reliable
}

// MultiplayerPeer is the generic peer contract consumed by the protocol layer.
type MultiplayerPeer interface {
	Close() error
	DisconnectPeer(id ID, force bool) error

	AvailablePacketCount() int
	ConnectionStatus() ConnectionStatus
	MaxPacketSize() int
	PacketChannel() int
	PacketMode() TransferMode
	PacketPeer() (ID, error)
	GetPacket() ([]byte, ID, error)

	TransferChannel() int
	SetTransferChannel(channel int)
	TransferMode() TransferMode
	SetTransferMode(mode TransferMode)
	TargetPeer() ID
	SetTargetPeer(id ID)

	UniqueID() (ID, error)
	IsRefusingNewConnections() bool
	SetRefuseNewConnections(refuse bool)
	IsServer() bool
	IsServerRelaySupported() bool

	Poll() error
	PutPacket(data []byte) error
}

var _ MultiplayerPeer = (*Peer)(nil)

// Peer is the relay-backed MultiplayerPeer.
type Peer struct {
	net relay.Network

	mu      sync.Mutex
	started bool
	reg     *registry.Registry
	trk     *tracker.Tracker
	q       *queue.Queue

	listen   relay.ListenHandle
	outbound relay.Handle

	refusing        bool
	transferMode    TransferMode
	transferChannel int
	targetPeer      ID
}

// New returns an idle peer on top of net. Call HostGame or JoinGame to start
// a session.
func New(net relay.Network) *Peer {
	return &Peer{
		net:          net,
		q:            queue.New(),
		transferMode: TransferModeReliable,
		targetPeer:   TargetPeerBroadcast,
	}
}

// DisconnectPeer is not implemented by the relay adapter.
func (p *Peer) DisconnectPeer(id ID, force bool) error {
	return ErrUnsupported
}

func (p *Peer) AvailablePacketCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q.Len()
}

// ConnectionStatus returns the status set by the most recent connection
// transition. With several peers connected, PeerStatus is more meaningful.
func (p *Peer) ConnectionStatus() ConnectionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return StatusDisconnected
	}
	return p.trk.Status()
}

// PeerStatus returns the status of the connection to id. The local peer is
// connected for as long as the session lasts.
func (p *Peer) PeerStatus(id ID) ConnectionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return StatusDisconnected
	}
	if self, err := p.reg.PeerIDFor(p.reg.Self()); err == nil && self == id {
		return StatusConnected
	}
	return p.trk.PeerStatus(id)
}

// Peers returns the ids of every known remote peer, ascending. Peers still
// connecting are included; the local peer is not.
func (p *Peer) Peers() []ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil
	}

	var ids []ID
	self := p.reg.Self()
	p.reg.Each(func(id relay.Identity, peer ID) {
		if id != self {
			ids = append(ids, peer)
		}
	})
	slices.Sort(ids)
	return ids
}

func (p *Peer) MaxPacketSize() int { return MaxPacketSize }

func (p *Peer) PacketChannel() int { return 0 }

func (p *Peer) PacketMode() TransferMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transferMode
}

// PacketPeer returns the sender of the next packet GetPacket would return.
func (p *Peer) PacketPeer() (ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q.PeekSender()
}

// GetPacket removes the next packet from the queue. The caller owns the
// returned slice.
func (p *Peer) GetPacket() ([]byte, ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pkt, err := p.q.Pop()
	if err != nil {
		return nil, 0, err
	}
	return pkt.Data, pkt.Sender, nil
}

func (p *Peer) TransferChannel() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transferChannel
}

func (p *Peer) SetTransferChannel(channel int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transferChannel = channel
}

func (p *Peer) TransferMode() TransferMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transferMode
}

func (p *Peer) SetTransferMode(mode TransferMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transferMode = mode
}

func (p *Peer) TargetPeer() ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.targetPeer
}

// SetTargetPeer selects where PutPacket sends: a peer id, TargetPeerBroadcast,
// or a negative id to broadcast to everyone except that peer.
func (p *Peer) SetTargetPeer(id ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.targetPeer = id
}

// UniqueID returns the local peer id.
func (p *Peer) UniqueID() (ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return 0, ErrNoSession
	}
	return p.reg.PeerIDFor(p.reg.Self())
}

func (p *Peer) IsRefusingNewConnections() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refusing
}

func (p *Peer) SetRefuseNewConnections(refuse bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refusing = refuse
	if p.trk != nil {
		p.trk.SetRefuseNewConnections(refuse)
	}
}

// IsServer reports whether the local peer id is TargetPeerServer.
func (p *Peer) IsServer() bool {
	id, err := p.UniqueID()
	return err == nil && id == TargetPeerServer
}

func (p *Peer) IsServerRelaySupported() bool { return false }
