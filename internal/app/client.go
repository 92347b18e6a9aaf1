package app

import (
	"context"
	"io"

	"github.com/1ureka/relaypeer/internal/peer"
	"github.com/1ureka/relaypeer/internal/relay"
	"github.com/1ureka/relaypeer/internal/util"
)

// RunJoin orchestrates the joiner lifecycle:
//  1. Connect to the host identified by hostIdentity
//  2. Chat until shutdown; the host is peer 1
//  3. Close the session
func RunJoin(ctx context.Context, net relay.Network, hostIdentity string, in io.Reader, out io.Writer) error {
	p := peer.New(net)
	p.SetTargetPeer(peer.TargetPeerServer)

	if err := p.JoinGame(ctx, hostIdentity); err != nil {
		return err
	}
	defer p.Close()

	util.StartStatsReporter(ctx)
	util.LogSuccess("joining %s, type to chat", hostIdentity)
	return Run(ctx, p, in, out)
}
