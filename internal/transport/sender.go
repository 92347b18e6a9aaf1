package transport

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/relaypeer/internal/relay"
)

const (
	highWaterMark = 256 * 1024 // refuse sends while bufferedAmount exceeds this
	lowWaterMark  = 64 * 1024  // log once the buffer drains below this
)

// ErrBufferFull is returned when a data channel has more than highWaterMark
// bytes queued. The caller is polling, so sends never block.
var ErrBufferFull = errors.New("data channel send buffer full")

// sender writes datagrams to one data channel with a high-water-mark check.
type sender struct {
	dc      *webrtc.DataChannel
	handle  relay.Handle
	stalled atomic.Bool
}

func newSender(h relay.Handle, dc *webrtc.DataChannel) *sender {
	s := &sender{dc: dc, handle: h}
	dc.SetBufferedAmountLowThreshold(lowWaterMark)
	dc.OnBufferedAmountLow(func() {
		log.Debug("connection %d: %s channel drained", h, dc.Label())
	})
	return s
}

func (s *sender) send(data []byte) error {
	if s.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return relay.ErrChannelClosed
	}
	if buffered := s.dc.BufferedAmount(); buffered > highWaterMark {
		if !s.stalled.Swap(true) {
			log.Warn("connection %d: %s channel stalled at %d bytes", s.handle, s.dc.Label(), buffered)
		}
		return fmt.Errorf("%w: %d bytes queued", ErrBufferFull, buffered)
	}
	s.stalled.Store(false)
	return s.dc.Send(data)
}

func (s *sender) status() string {
	return fmt.Sprintf("%s %s (%d buffered)", s.dc.Label(), s.dc.ReadyState(), s.dc.BufferedAmount())
}
