package peer

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/1ureka/relaypeer/internal/relay"
	"github.com/1ureka/relaypeer/internal/util"
)

// PutPacket sends data to the current target peer with the current transfer
// mode.
func (p *Peer) PutPacket(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.send(data, p.targetPeer, p.transferMode)
}

// Send routes data to target:
//   - TargetPeerBroadcast: every connected peer
//   - a negative id: every connected peer except -id
//   - a positive id: that peer only
//
// A broadcast attempts every destination and returns ErrSendFailed combined
// with each per-destination failure.
func (p *Peer) Send(data []byte, target ID, mode TransferMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.send(data, target, mode)
}

func (p *Peer) send(data []byte, target ID, mode TransferMode) error {
	if !p.started {
		return ErrNoSession
	}
	if len(data) > MaxPacketSize {
		return fmt.Errorf("%w: %d > %d bytes", ErrPacketTooLarge, len(data), MaxPacketSize)
	}

	r := mode.reliability()
	if target > TargetPeerBroadcast {
		return p.unicast(data, target, r)
	}

	var exclude relay.Handle
	if target < TargetPeerBroadcast {
		exclude, _ = p.trk.HandleFor(-target)
	}

	var errs error
	for _, h := range p.trk.Connections() {
		if h == exclude {
			continue
		}
		if err := p.transmit(h, data, r); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("connection %d: %w", h, err))
		}
	}
	if errs != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, errs)
	}
	return nil
}

func (p *Peer) unicast(data []byte, target ID, r relay.Reliability) error {
	if _, err := p.reg.IdentityFor(target); err != nil {
		return err
	}
	h, ok := p.trk.HandleFor(target)
	if !ok {
		return fmt.Errorf("%w: peer %d", ErrNotConnected, target)
	}
	if err := p.transmit(h, data, r); err != nil {
		return fmt.Errorf("%w: peer %d: %w", ErrSendFailed, target, err)
	}
	return nil
}

func (p *Peer) transmit(h relay.Handle, data []byte, r relay.Reliability) error {
	if err := p.net.SendMessage(h, data, r); err != nil {
		util.Stats.AddSendError()
		log.Debug("send %d bytes on connection %d (%s): %v", len(data), h, r, err)
		return err
	}
	util.Stats.AddSent(len(data))
	return nil
}
