// Package signaling is the rendezvous broker that relay endpoints use to find
// each other: it assigns every endpoint its identity and forwards SDP/ICE
// messages between identities. Once a link is up, no traffic passes through
// the broker.
package signaling

import "github.com/1ureka/relaypeer/internal/relay"

// MessageType identifies the kind of signaling message.
type MessageType string

const (
	MsgTypeWelcome   MessageType = "welcome"   // broker → endpoint: your identity
	MsgTypeOffer     MessageType = "offer"     // connector → listener
	MsgTypeAnswer    MessageType = "answer"    // listener → connector
	MsgTypeCandidate MessageType = "candidate" // either way, trickled ICE
	MsgTypeClose     MessageType = "close"     // either way, link torn down
	MsgTypeError     MessageType = "error"     // broker → endpoint: could not route
)

// Message is the JSON structure exchanged over the WebSocket.
//
// From is always stamped by the broker; whatever the sender put there is
// overwritten. Session correlates the two halves of one link.
type Message struct {
	Type      MessageType    `json:"type"`
	From      relay.Identity `json:"from,string,omitempty"`
	To        relay.Identity `json:"to,string,omitempty"`
	Session   string         `json:"session,omitempty"`
	SDP       string         `json:"sdp,omitempty"`
	Candidate string         `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit
	Reason    string         `json:"reason,omitempty"`
}
