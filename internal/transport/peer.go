package transport

import (
	"github.com/pion/webrtc/v4"
)

// DefaultICEServers are used when Config.ICEServers is empty.
var DefaultICEServers = []webrtc.ICEServer{
	{URLs: []string{
		"stun:stun.l.google.com:19302",
		"stun:stun1.l.google.com:19302",
	}},
}

// Pre-negotiated data channel ids. Both sides create the channels
// independently, so neither relies on OnDataChannel.
const (
	reliableChannelID   uint16 = 0
	unreliableChannelID uint16 = 1
)

func newPeerConnection(servers []webrtc.ICEServer) (*webrtc.PeerConnection, error) {
	if len(servers) == 0 {
		servers = DefaultICEServers
	}
	return webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
}

// newDataChannels creates the reliable (ordered) and unreliable (unordered,
// no retransmits) channels of one connection.
func newDataChannels(pc *webrtc.PeerConnection) (reliable, unreliable *webrtc.DataChannel, err error) {
	negotiated := true

	ordered := true
	id := reliableChannelID
	reliable, err = pc.CreateDataChannel("reliable", &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
	if err != nil {
		return nil, nil, err
	}

	unordered := false
	retransmits := uint16(0)
	uid := unreliableChannelID
	unreliable, err = pc.CreateDataChannel("unreliable", &webrtc.DataChannelInit{
		Ordered:        &unordered,
		MaxRetransmits: &retransmits,
		Negotiated:     &negotiated,
		ID:             &uid,
	})
	if err != nil {
		return nil, nil, err
	}
	return reliable, unreliable, nil
}
