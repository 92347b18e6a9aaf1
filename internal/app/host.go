package app

import (
	"context"
	"io"

	"github.com/pterm/pterm"

	"github.com/1ureka/relaypeer/internal/peer"
	"github.com/1ureka/relaypeer/internal/relay"
	"github.com/1ureka/relaypeer/internal/util"
)

// RunHost orchestrates the host lifecycle:
//  1. Host a session on net and print the identity joiners need
//  2. Accept joiners and relay chat until shutdown
//  3. Close the session
func RunHost(ctx context.Context, net relay.Network, in io.Reader, out io.Writer) error {
	p := peer.New(net)

	identity, err := p.HostGame(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	pterm.DefaultBox.
		WithTitle("Session hosted").
		Println("Share this identity with joiners:\n\n" + identity)

	util.StartStatsReporter(ctx)
	util.LogSuccess("waiting for peers, type to chat")
	return Run(ctx, p, in, out)
}
