package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/relaypeer/internal/relay"
)

func TestRegisterRoundTrip(t *testing.T) {
	r := New(1000)

	ids := []relay.Identity{76561198000000001, 76561198000000002, 12345, 1 << 40}
	for _, id := range ids {
		p, err := r.Register(id)
		require.NoError(t, err)
		assert.Equal(t, PeerID(uint64(id)%2147483647), p)

		got, err := r.PeerIDFor(id)
		require.NoError(t, err)
		assert.Equal(t, p, got)

		back, err := r.IdentityFor(p)
		require.NoError(t, err)
		assert.Equal(t, id, back)
	}
	assert.Equal(t, len(ids), r.Len())
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := New(1)
	first, err := r.Register(777)
	require.NoError(t, err)
	second, err := r.Register(777)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, r.Len())
}

func TestUnregisterRemovesBothDirections(t *testing.T) {
	r := New(1)
	p, err := r.Register(555)
	require.NoError(t, err)
	_, err = r.Register(556)
	require.NoError(t, err)

	require.NoError(t, r.Unregister(555))

	_, err = r.PeerIDFor(555)
	assert.ErrorIs(t, err, ErrUnknownPeer)
	_, err = r.IdentityFor(p)
	assert.ErrorIs(t, err, ErrUnknownPeer)

	// The other entry is untouched.
	_, err = r.PeerIDFor(556)
	assert.NoError(t, err)
	assert.Equal(t, 1, r.Len())

	assert.ErrorIs(t, r.Unregister(555), ErrUnknownPeer)
}

func TestHostMapsToOne(t *testing.T) {
	const self relay.Identity = 76561198000000042
	r := New(self)
	require.NoError(t, r.SetHost(self))

	p, err := r.Register(self)
	require.NoError(t, err)
	assert.Equal(t, Host, p)

	other, err := r.Register(76561198000000043)
	require.NoError(t, err)
	assert.NotEqual(t, Host, other)
}

func TestSetHostReassignsExistingEntry(t *testing.T) {
	const remote relay.Identity = 9000
	r := New(1)

	p, err := r.Register(remote)
	require.NoError(t, err)
	assert.Equal(t, Derive(remote), p)

	require.NoError(t, r.SetHost(remote))
	p, err = r.PeerIDFor(remote)
	require.NoError(t, err)
	assert.Equal(t, Host, p)

	_, err = r.IdentityFor(Derive(remote))
	assert.ErrorIs(t, err, ErrUnknownPeer)
}

func TestDeriveNeverYieldsReservedIDs(t *testing.T) {
	assert.Equal(t, PeerID(2147483646), Derive(2147483647))
	assert.Equal(t, PeerID(2147483645), Derive(2147483648))
	assert.Equal(t, PeerID(2), Derive(2))
}

func TestRegisterConflict(t *testing.T) {
	r := New(1)
	_, err := r.Register(5)
	require.NoError(t, err)

	_, err = r.Register(5 + 2147483647)
	assert.ErrorIs(t, err, ErrPeerIDConflict)
	assert.Equal(t, 1, r.Len())
}

func TestRegisterRejectsZero(t *testing.T) {
	r := New(1)
	_, err := r.Register(0)
	assert.ErrorIs(t, err, ErrInvalidID)
	assert.ErrorIs(t, r.SetHost(0), ErrInvalidID)
}

func TestSetHostConflictKeepsExistingEntry(t *testing.T) {
	const host, other relay.Identity = 100, 200
	r := New(1)
	require.NoError(t, r.SetHost(host))
	_, err := r.Register(host)
	require.NoError(t, err)
	_, err = r.Register(other)
	require.NoError(t, err)

	assert.ErrorIs(t, r.SetHost(other), ErrPeerIDConflict)

	p, err := r.PeerIDFor(other)
	require.NoError(t, err)
	assert.Equal(t, Derive(other), p)
	p, err = r.PeerIDFor(host)
	require.NoError(t, err)
	assert.Equal(t, Host, p)
	assert.Equal(t, 2, r.Len())
}

func TestEachVisitsEveryEntry(t *testing.T) {
	r := New(1)
	require.NoError(t, r.SetHost(100))
	for _, id := range []relay.Identity{100, 200, 300} {
		_, err := r.Register(id)
		require.NoError(t, err)
	}

	seen := map[relay.Identity]PeerID{}
	r.Each(func(id relay.Identity, p PeerID) { seen[id] = p })

	assert.Equal(t, map[relay.Identity]PeerID{
		100: Host,
		200: Derive(200),
		300: Derive(300),
	}, seen)
}
