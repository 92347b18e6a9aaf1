package peer

import (
	"context"
	"fmt"

	"github.com/1ureka/relaypeer/internal/registry"
	"github.com/1ureka/relaypeer/internal/relay"
	"github.com/1ureka/relaypeer/internal/tracker"
)

// HostGame starts a hosted session:
//  1. Initialize relay access
//  2. Open a listen endpoint
//  3. Register the local identity as TargetPeerServer
//  4. Return the identity string joiners pass to JoinGame
//
// The string is meant to be shared out of band, e.g. through a lobby.
func (p *Peer) HostGame(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return "", ErrAlreadyStarted
	}

	self, err := p.initRelay(ctx)
	if err != nil {
		return "", err
	}

	log.Info("hosting game...")
	listen, err := p.net.CreateListenEndpoint()
	if err != nil {
		return "", fmt.Errorf("failed to open listen endpoint: %w", err)
	}

	p.begin(self)
	p.listen = listen
	p.trk.SetListening(true)

	if err := p.reg.SetHost(self); err != nil {
		p.abort()
		return "", err
	}
	if _, err := p.reg.Register(self); err != nil {
		p.abort()
		return "", err
	}

	identity := relay.FormatIdentity(self)
	log.Info("host identity: %s", identity)
	return identity, nil
}

// JoinGame connects to the session hosted by the endpoint whose identity
// string is hostIdentity. It returns once the connection attempt is issued;
// progress shows up through Poll and ConnectionStatus.
func (p *Peer) JoinGame(ctx context.Context, hostIdentity string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}

	host, err := relay.ParseIdentity(hostIdentity)
	if err != nil {
		return err
	}

	self, err := p.initRelay(ctx)
	if err != nil {
		return err
	}
	if host == self {
		return ErrSelfConnect
	}

	p.begin(self)
	if err := p.reg.SetHost(host); err != nil {
		p.abort()
		return err
	}
	if _, err := p.reg.Register(self); err != nil {
		p.abort()
		return err
	}

	log.Info("joining host with identity: %s", hostIdentity)
	h, err := p.net.ConnectTo(ctx, host)
	if err != nil {
		p.abort()
		return fmt.Errorf("failed to connect to %s: %w", hostIdentity, err)
	}
	p.outbound = h

	if s, err := p.net.DetailedStatus(h); err == nil {
		log.Info("connection status: %s", s)
	}
	return nil
}

// Close tears down every connection and the listen endpoint, and drops any
// queued packets. The peer can host or join again afterwards.
func (p *Peer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil
	}

	handles := p.trk.Handles()
	if p.outbound != relay.InvalidHandle && !containsHandle(handles, p.outbound) {
		handles = append(handles, p.outbound)
	}
	for _, h := range handles {
		if err := p.net.CloseConnection(h); err != nil {
			log.Debug("close connection %d: %v", h, err)
		}
	}

	if p.listen != relay.InvalidListenHandle {
		if err := p.net.CloseListenEndpoint(p.listen); err != nil {
			log.Debug("close listen endpoint: %v", err)
		}
	}

	p.abort()
	p.discardEvents()
	log.Info("session closed")
	return nil
}

func (p *Peer) initRelay(ctx context.Context) (relay.Identity, error) {
	log.Info("initializing relay network...")
	if err := p.net.InitRelayAccess(ctx); err != nil {
		return 0, fmt.Errorf("failed to initialize relay network: %w", err)
	}
	self, err := p.net.SelfIdentity()
	if err != nil {
		return 0, fmt.Errorf("failed to read own identity: %w", err)
	}
	return self, nil
}

// begin must be called with p.mu held.
func (p *Peer) begin(self relay.Identity) {
	p.reg = registry.New(self)
	p.trk = tracker.New(p.net, p.reg)
	p.trk.SetRefuseNewConnections(p.refusing)
	p.started = true
}

// abort must be called with p.mu held.
func (p *Peer) abort() {
	p.started = false
	p.reg = nil
	p.trk = nil
	p.q.Clear()
	p.listen = relay.InvalidListenHandle
	p.outbound = relay.InvalidHandle
}

// discardEvents drops events queued by the transport, including the ones
// produced by closing this session's connections.
func (p *Peer) discardEvents() {
	events := p.net.Events()
	for range len(events) {
		<-events
	}
}

func containsHandle(hs []relay.Handle, h relay.Handle) bool {
	for _, x := range hs {
		if x == h {
			return true
		}
	}
	return false
}
