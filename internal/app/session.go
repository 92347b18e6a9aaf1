// Package app contains the top-level orchestration for the host and join
// roles of the relaypeer chat.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/1ureka/relaypeer/internal/peer"
	"github.com/1ureka/relaypeer/internal/queue"
	"github.com/1ureka/relaypeer/internal/util"
)

// pollInterval is how often Run polls the peer, roughly one frame at 60Hz.
const pollInterval = 16 * time.Millisecond

// Run drives p until ctx is cancelled or in reaches EOF:
//   - every pollInterval, poll p and print the packets it received to out
//   - every line read from in is sent to the current target peer
//
// Lines starting with '/' are commands, see handleLine.
func Run(ctx context.Context, p *peer.Peer, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go scanLines(ctx, in, lines)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	last := p.ConnectionStatus()
	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := handleLine(p, line, out); err != nil {
				util.LogWarning("%v", err)
			}

		case <-ticker.C:
			if err := p.Poll(); err != nil {
				return err
			}
			printPackets(p, out)

			if s := p.ConnectionStatus(); s != last {
				util.LogInfo("connection status: %s", s)
				last = s
			}
		}
	}
}

// handleLine understands:
//
//	/to <peer> <text>   send text to one peer (negative: everyone but that peer)
//	/mode <mode>        reliable, unreliable or unreliable-ordered
//	/status             print own id and connection status
//	/peers              list the remote peers and their status
//	<text>              send text to the current target peer
func handleLine(p *peer.Peer, line string, out io.Writer) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return p.PutPacket([]byte(line))
	}

	cmd, rest, _ := strings.Cut(line, " ")
	switch cmd {
	case "/to":
		target, text, ok := strings.Cut(strings.TrimSpace(rest), " ")
		if !ok {
			return errors.New("usage: /to <peer> <text>")
		}
		id, err := strconv.ParseInt(target, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid peer id %q", target)
		}
		return p.Send([]byte(text), peer.ID(id), p.TransferMode())

	case "/mode":
		mode, err := parseMode(strings.TrimSpace(rest))
		if err != nil {
			return err
		}
		p.SetTransferMode(mode)
		return nil

	case "/status":
		id, err := p.UniqueID()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "* peer %d, %s, %s\n", id, p.ConnectionStatus(), p.TransferMode())
		return nil

	case "/peers":
		peers := p.Peers()
		if len(peers) == 0 {
			fmt.Fprintln(out, "* no peers")
			return nil
		}
		for _, id := range peers {
			fmt.Fprintf(out, "* peer %d, %s\n", id, p.PeerStatus(id))
		}
		return nil

	default:
		return fmt.Errorf("unknown command %s", cmd)
	}
}

func parseMode(s string) (peer.TransferMode, error) {
	for _, m := range []peer.TransferMode{
		peer.TransferModeReliable,
		peer.TransferModeUnreliable,
		peer.TransferModeUnreliableOrdered,
	} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown transfer mode %q", s)
}

func printPackets(p *peer.Peer, out io.Writer) {
	for range queue.MaxPacketsPerPoll * 4 {
		data, from, err := p.GetPacket()
		if err != nil {
			return
		}
		fmt.Fprintf(out, "[%d] %s\n", from, data)
	}
}

func scanLines(ctx context.Context, in io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}
