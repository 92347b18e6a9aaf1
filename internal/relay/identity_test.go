package relay

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityStringRoundTrip(t *testing.T) {
	ids := []Identity{1, 42, 76561198000000000, 1 << 63, ^Identity(0)}

	for _, id := range ids {
		s := FormatIdentity(id)
		assert.True(t, strings.HasPrefix(s, "relay:"), s)
		assert.LessOrEqual(t, len(s), MaxIdentityStringLen)

		got, err := ParseIdentity(s)
		require.NoError(t, err, s)
		assert.Equal(t, id, got)
	}
}

func TestParseIdentityRejectsGarbage(t *testing.T) {
	cases := map[string]string{
		"empty":      "",
		"no prefix":  "3mJr7AoUXx2",
		"bare":       "relay:",
		"bad char":   "relay:0OIl",
		"too long":   "relay:" + strings.Repeat("z", MaxIdentityStringLen),
		"nine bytes": "relay:" + "2NEpo7TZRRrLZSi2U",
		"zero":       "relay:11111111",
	}

	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseIdentity(in)
			assert.ErrorIs(t, err, ErrInvalidIdentity)
		})
	}
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateNone.Terminal())
	assert.True(t, StateClosedByPeer.Terminal())
	assert.True(t, StateProblemDetectedLocally.Terminal())
	assert.False(t, StateConnecting.Terminal())
	assert.False(t, StateFindingRoute.Terminal())
	assert.False(t, StateConnected.Terminal())
}
