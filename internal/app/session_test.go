package app

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/relaypeer/internal/peer"
	"github.com/1ureka/relaypeer/internal/relay/relaytest"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type chatter struct {
	p   *peer.Peer
	in  *io.PipeWriter
	out *syncBuffer
}

func startChat(t *testing.T, ctx context.Context, p *peer.Peer) *chatter {
	t.Helper()
	r, w := io.Pipe()
	c := &chatter{p: p, in: w, out: &syncBuffer{}}

	done := make(chan error, 1)
	go func() { done <- Run(ctx, p, r, c.out) }()
	t.Cleanup(func() {
		w.Close()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("Run did not return")
		}
	})
	return c
}

func (c *chatter) say(t *testing.T, line string) {
	t.Helper()
	_, err := io.WriteString(c.in, line+"\n")
	require.NoError(t, err)
}

func TestChatBetweenHostAndJoiner(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := relaytest.NewHub()
	host := peer.New(hub.NewEndpoint())
	identity, err := host.HostGame(ctx)
	require.NoError(t, err)
	defer host.Close()

	joiner := peer.New(hub.NewEndpoint())
	joiner.SetTargetPeer(peer.TargetPeerServer)
	require.NoError(t, joiner.JoinGame(ctx, identity))
	defer joiner.Close()

	h := startChat(t, ctx, host)
	j := startChat(t, ctx, joiner)

	require.Eventually(t, func() bool {
		return host.ConnectionStatus() == peer.StatusConnected &&
			joiner.ConnectionStatus() == peer.StatusConnected
	}, 5*time.Second, 10*time.Millisecond)

	j.say(t, "hello host")
	require.Eventually(t, func() bool {
		return strings.Contains(h.out.String(), "] hello host")
	}, 5*time.Second, 10*time.Millisecond)

	h.say(t, "hello everyone")
	require.Eventually(t, func() bool {
		return strings.Contains(j.out.String(), "[1] hello everyone")
	}, 5*time.Second, 10*time.Millisecond)

	var peers bytes.Buffer
	require.NoError(t, handleLine(host, "/peers", &peers))
	assert.Equal(t, 1, strings.Count(peers.String(), "connected"))

	j.say(t, "/to 1 direct")
	require.Eventually(t, func() bool {
		return strings.Contains(h.out.String(), "] direct")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHandleLineCommands(t *testing.T) {
	hub := relaytest.NewHub()
	p := peer.New(hub.NewEndpoint())
	_, err := p.HostGame(context.Background())
	require.NoError(t, err)
	defer p.Close()

	var out bytes.Buffer

	require.NoError(t, handleLine(p, "/mode unreliable", &out))
	assert.Equal(t, peer.TransferModeUnreliable, p.TransferMode())
	assert.Error(t, handleLine(p, "/mode sometimes", &out))

	require.NoError(t, handleLine(p, "/peers", &out))
	assert.Contains(t, out.String(), "no peers")

	require.NoError(t, handleLine(p, "/status", &out))
	assert.Contains(t, out.String(), "peer 1")

	assert.Error(t, handleLine(p, "/to", &out))
	assert.Error(t, handleLine(p, "/to x hi", &out))
	assert.Error(t, handleLine(p, "/nope", &out))
	assert.NoError(t, handleLine(p, "   ", &out))

	// No peers yet: a broadcast has nobody to fail on.
	assert.NoError(t, handleLine(p, "anyone?", &out))
}
