package peer

import (
	"github.com/1ureka/relaypeer/internal/queue"
	"github.com/1ureka/relaypeer/internal/relay"
	"github.com/1ureka/relaypeer/internal/util"
)

// Poll applies the transport events queued since the last call, then moves
// up to queue.MaxPacketsPerPoll ready messages per connected peer into the
// packet queue. It never blocks.
func (p *Peer) Poll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return ErrNoSession
	}

	p.applyEvents()
	for _, h := range p.trk.Connections() {
		p.receive(h)
	}
	return nil
}

// applyEvents handles only the events already queued when it starts, so a
// transport that keeps producing events cannot stall Poll.
func (p *Peer) applyEvents() {
	events := p.net.Events()
	for range len(events) {
		select {
		case ev := <-events:
			p.trk.Handle(ev)
		default:
			return
		}
	}
}

func (p *Peer) receive(h relay.Handle) {
	msgs, err := p.net.ReceiveMessages(h, queue.MaxPacketsPerPoll)
	if err != nil {
		log.Debug("receive on connection %d: %v", h, err)
		return
	}

	for _, m := range msgs {
		sender, err := p.reg.PeerIDFor(m.Sender)
		if err != nil {
			log.Warn("dropping %d bytes from unregistered sender %s", len(m.Data), m.Sender)
			continue
		}

		data := make([]byte, len(m.Data))
		copy(data, m.Data)
		p.q.Push(queue.Packet{Data: data, Sender: sender})
		util.Stats.AddRecv(len(data))
	}
}
