// Package relay defines the boundary between the peer adapter and the
// relay/NAT-traversal network that actually carries its traffic.
//
// The network is a black box: it hands out opaque identities, opens and
// accepts connections, moves datagrams, and reports connection-state changes
// as Events on a channel. Implementations must never call back into the
// adapter directly; everything asynchronous goes through Events().
package relay

import (
	"context"
	"errors"
	"fmt"
)

// Identity is the opaque, transport-assigned address of an endpoint.
// Zero is never assigned.
type Identity uint64

// Handle identifies one connection inside a Network. Zero is invalid.
type Handle uint32

// ListenHandle identifies a listening endpoint. Zero is invalid.
type ListenHandle uint32

const (
	InvalidHandle       Handle       = 0
	InvalidListenHandle ListenHandle = 0
)

// DetailedStatusMaxLen bounds the diagnostic string returned by DetailedStatus.
const DetailedStatusMaxLen = 1024

var (
	ErrNotInitialized = errors.New("relay access not initialized")
	ErrUnknownHandle  = errors.New("unknown connection handle")
	ErrNotListening   = errors.New("no listen endpoint")
	ErrChannelClosed  = errors.New("connection channel not open")
)

// State is the lifecycle state of one connection.
type State int

const (
	StateNone State = iota
	StateConnecting
	StateFindingRoute
	StateConnected
	StateClosedByPeer
	StateProblemDetectedLocally
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateConnecting:
		return "connecting"
	case StateFindingRoute:
		return "finding-route"
	case StateConnected:
		return "connected"
	case StateClosedByPeer:
		return "closed-by-peer"
	case StateProblemDetectedLocally:
		return "problem-detected-locally"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateNone || s == StateClosedByPeer || s == StateProblemDetectedLocally
}

// Reliability is the delivery class requested for one send.
type Reliability int

const (
	Unreliable Reliability = iota
	Reliable
)

func (r Reliability) String() string {
	if r == Reliable {
		return "reliable"
	}
	return "unreliable"
}

// Availability is the relay network's own readiness.
type Availability int

const (
	AvailabilityUnknown Availability = iota
	AvailabilityCannotTry
	AvailabilityFailed
	AvailabilityPreviously
	AvailabilityRetrying
	AvailabilityCurrent
)

func (a Availability) String() string {
	switch a {
	case AvailabilityCannotTry:
		return "cannot-try"
	case AvailabilityFailed:
		return "failed"
	case AvailabilityPreviously:
		return "previously"
	case AvailabilityRetrying:
		return "retrying"
	case AvailabilityCurrent:
		return "current"
	default:
		return "unknown"
	}
}

// EventKind tells which fields of an Event are meaningful.
type EventKind int

const (
	EventAvailability EventKind = iota + 1
	EventConnectionState
)

// Event is one asynchronous notification from the network.
//
// For EventConnectionState, Conn and State are always set and Remote is set
// once the remote identity is known.
type Event struct {
	Kind         EventKind
	Availability Availability

	Conn   Handle
	State  State
	Remote Identity
}

// Message is one received datagram.
type Message struct {
	Data   []byte
	Sender Identity
}

// Network is the capability set consumed by the adapter.
type Network interface {
	// InitRelayAccess is idempotent. Availability changes are reported as
	// EventAvailability events regardless of the returned error.
	InitRelayAccess(ctx context.Context) error

	CreateListenEndpoint() (ListenHandle, error)
	CloseListenEndpoint(h ListenHandle) error

	ConnectTo(ctx context.Context, remote Identity) (Handle, error)
	AcceptConnection(h Handle) error
	CloseConnection(h Handle) error

	// ReceiveMessages never blocks; it returns at most max ready messages.
	ReceiveMessages(h Handle, max int) ([]Message, error)
	SendMessage(h Handle, data []byte, r Reliability) error

	SelfIdentity() (Identity, error)
	DetailedStatus(h Handle) (string, error)

	Events() <-chan Event
}
