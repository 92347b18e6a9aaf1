package tracker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/relaypeer/internal/registry"
	"github.com/1ureka/relaypeer/internal/relay"
)

// fakeTransport records what the tracker asks of the transport.
type fakeTransport struct {
	accepted  []relay.Handle
	closed    []relay.Handle
	queried   []relay.Handle
	statusErr error
}

func (f *fakeTransport) AcceptConnection(h relay.Handle) error {
	f.accepted = append(f.accepted, h)
	return nil
}

func (f *fakeTransport) CloseConnection(h relay.Handle) error {
	f.closed = append(f.closed, h)
	return nil
}

func (f *fakeTransport) DetailedStatus(h relay.Handle) (string, error) {
	f.queried = append(f.queried, h)
	if f.statusErr != nil {
		return "", f.statusErr
	}
	return "ok", nil
}

const (
	hostID  relay.Identity = 76561198000000001
	remoteA relay.Identity = 76561198000000002
	remoteB relay.Identity = 76561198000000003
	handleA relay.Handle   = 10
	handleB relay.Handle   = 11
)

func stateEvent(h relay.Handle, s relay.State, remote relay.Identity) relay.Event {
	return relay.Event{Kind: relay.EventConnectionState, Conn: h, State: s, Remote: remote}
}

func newHost(t *testing.T) (*Tracker, *fakeTransport, *registry.Registry) {
	t.Helper()
	reg := registry.New(hostID)
	require.NoError(t, reg.SetHost(hostID))
	_, err := reg.Register(hostID)
	require.NoError(t, err)

	ft := &fakeTransport{}
	tr := New(ft, reg)
	tr.SetListening(true)
	return tr, ft, reg
}

func connect(tr *Tracker, h relay.Handle, remote relay.Identity) {
	tr.Handle(stateEvent(h, relay.StateConnecting, remote))
	tr.Handle(stateEvent(h, relay.StateFindingRoute, remote))
	tr.Handle(stateEvent(h, relay.StateConnected, remote))
}

func TestHostAcceptsAndTracks(t *testing.T) {
	tr, ft, reg := newHost(t)

	tr.Handle(stateEvent(handleA, relay.StateConnecting, remoteA))
	assert.Equal(t, []relay.Handle{handleA}, ft.accepted)
	assert.Equal(t, Connecting, tr.Status())

	p, err := reg.PeerIDFor(remoteA)
	require.NoError(t, err)
	assert.Equal(t, registry.Derive(remoteA), p)
	assert.Equal(t, Connecting, tr.PeerStatus(p))

	tr.Handle(stateEvent(handleA, relay.StateFindingRoute, remoteA))
	assert.Equal(t, Connecting, tr.Status())
	assert.Empty(t, tr.Connections())

	tr.Handle(stateEvent(handleA, relay.StateConnected, remoteA))
	assert.Equal(t, Connected, tr.Status())
	assert.Equal(t, Connected, tr.PeerStatus(p))
	assert.Equal(t, []relay.Handle{handleA}, tr.Connections())

	h, ok := tr.HandleFor(p)
	assert.True(t, ok)
	assert.Equal(t, handleA, h)
}

func TestRefusingLeavesConnectionPending(t *testing.T) {
	tr, ft, reg := newHost(t)
	tr.SetRefuseNewConnections(true)

	tr.Handle(stateEvent(handleA, relay.StateConnecting, remoteA))

	assert.Empty(t, ft.accepted)
	_, err := reg.PeerIDFor(remoteA)
	assert.NoError(t, err, "refused peer is still registered")
	assert.Equal(t, relay.StateConnecting, tr.State(handleA))
	assert.Empty(t, tr.Connections())
}

func TestJoinerNeverAccepts(t *testing.T) {
	reg := registry.New(remoteA)
	require.NoError(t, reg.SetHost(hostID))
	ft := &fakeTransport{}
	tr := New(ft, reg)

	connect(tr, handleA, hostID)

	assert.Empty(t, ft.accepted)
	p, err := reg.PeerIDFor(hostID)
	require.NoError(t, err)
	assert.Equal(t, registry.Host, p)

	h, ok := tr.HandleFor(registry.Host)
	assert.True(t, ok)
	assert.Equal(t, handleA, h)
}

func TestClosedByPeerRemovesExactlyOnePair(t *testing.T) {
	tr, ft, reg := newHost(t)
	connect(tr, handleA, remoteA)
	connect(tr, handleB, remoteB)
	require.Equal(t, 3, reg.Len())

	pA, _ := reg.PeerIDFor(remoteA)

	tr.Handle(stateEvent(handleA, relay.StateClosedByPeer, remoteA))

	assert.Equal(t, Disconnected, tr.Status())
	assert.Equal(t, 2, reg.Len())
	_, err := reg.PeerIDFor(remoteA)
	assert.ErrorIs(t, err, registry.ErrUnknownPeer)
	_, err = reg.IdentityFor(pA)
	assert.ErrorIs(t, err, registry.ErrUnknownPeer)

	_, err = reg.PeerIDFor(remoteB)
	assert.NoError(t, err)
	_, err = reg.PeerIDFor(hostID)
	assert.NoError(t, err)

	assert.Equal(t, []relay.Handle{handleB}, tr.Connections())
	assert.Equal(t, []relay.Handle{handleA}, ft.closed)
	assert.Equal(t, Disconnected, tr.PeerStatus(pA))
}

func TestNoneAndProblemAreIdempotent(t *testing.T) {
	tr, _, _ := newHost(t)
	connect(tr, handleA, remoteA)

	tr.Handle(stateEvent(handleA, relay.StateProblemDetectedLocally, remoteA))
	assert.Empty(t, tr.Connections())
	assert.Equal(t, Disconnected, tr.Status())

	// A handle that is no longer tracked is not an error.
	tr.Handle(stateEvent(handleA, relay.StateNone, 0))
	tr.Handle(stateEvent(handleB, relay.StateNone, 0))
	assert.Empty(t, tr.Connections())
	assert.Empty(t, tr.Handles())
}

func TestNoneKeepsRegistration(t *testing.T) {
	tr, _, reg := newHost(t)
	connect(tr, handleA, remoteA)

	tr.Handle(stateEvent(handleA, relay.StateNone, remoteA))

	assert.Empty(t, tr.Connections())
	_, err := reg.PeerIDFor(remoteA)
	assert.NoError(t, err)
}

func TestDetailedStatusFailureIsNotFatal(t *testing.T) {
	tr, ft, _ := newHost(t)
	ft.statusErr = errors.New("no such connection")

	connect(tr, handleA, remoteA)
	assert.Equal(t, Connected, tr.Status())
}

func TestUnaddressableIncomingConnectionIsClosed(t *testing.T) {
	tr, ft, reg := newHost(t)
	connect(tr, handleA, 5)

	// Derives the same peer id as identity 5.
	tr.Handle(stateEvent(handleB, relay.StateConnecting, 5+2147483647))

	assert.Equal(t, []relay.Handle{handleA}, ft.accepted)
	assert.Equal(t, []relay.Handle{handleB}, ft.closed)
	assert.Equal(t, 2, reg.Len())
}

func TestAvailabilityEventsDoNotTouchState(t *testing.T) {
	tr, _, _ := newHost(t)
	for _, a := range []relay.Availability{
		relay.AvailabilityCannotTry,
		relay.AvailabilityFailed,
		relay.AvailabilityRetrying,
		relay.AvailabilityCurrent,
	} {
		tr.Handle(relay.Event{Kind: relay.EventAvailability, Availability: a})
	}
	assert.Equal(t, Disconnected, tr.Status())
	assert.Empty(t, tr.Handles())
}

func TestConnectedBeforeConnecting(t *testing.T) {
	tr, ft, reg := newHost(t)

	tr.Handle(stateEvent(handleA, relay.StateConnected, remoteA))

	p, err := reg.PeerIDFor(remoteA)
	require.NoError(t, err)
	assert.Equal(t, []relay.Handle{handleA}, tr.Connections())
	assert.Equal(t, Connected, tr.Status())
	assert.Equal(t, Connected, tr.PeerStatus(p))
	assert.Empty(t, ft.accepted)
}

func TestLateEventsDoNotMoveBackwards(t *testing.T) {
	tr, ft, reg := newHost(t)
	connect(tr, handleA, remoteA)
	p, _ := reg.PeerIDFor(remoteA)
	require.Equal(t, []relay.Handle{handleA}, ft.accepted)

	tr.Handle(stateEvent(handleA, relay.StateConnecting, remoteA))
	tr.Handle(stateEvent(handleA, relay.StateFindingRoute, remoteA))
	tr.Handle(stateEvent(handleA, relay.StateConnected, remoteA))

	assert.Equal(t, []relay.Handle{handleA}, ft.accepted, "a live connection is not accepted twice")
	assert.Equal(t, relay.StateConnected, tr.State(handleA))
	assert.Equal(t, Connected, tr.Status())
	assert.Equal(t, Connected, tr.PeerStatus(p))
	assert.Equal(t, []relay.Handle{handleA}, tr.Connections())
}

func TestDuplicateConnectingAcceptsOnce(t *testing.T) {
	tr, ft, _ := newHost(t)

	tr.Handle(stateEvent(handleA, relay.StateConnecting, remoteA))
	tr.Handle(stateEvent(handleA, relay.StateConnecting, remoteA))

	assert.Equal(t, []relay.Handle{handleA}, ft.accepted)
}

func TestTerminalEventForUnknownHandleIsIgnored(t *testing.T) {
	tr, ft, _ := newHost(t)
	connect(tr, handleA, remoteA)
	ft.queried = nil

	// Left over from a connection this tracker never saw.
	tr.Handle(stateEvent(handleB, relay.StateNone, remoteB))
	tr.Handle(stateEvent(handleB, relay.StateClosedByPeer, remoteB))

	assert.Equal(t, Connected, tr.Status())
	assert.Empty(t, ft.queried)
	assert.Empty(t, ft.closed)
	assert.Equal(t, []relay.Handle{handleA}, tr.Connections())
}
