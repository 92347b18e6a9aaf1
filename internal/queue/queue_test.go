package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/relaypeer/internal/registry"
)

func TestEmptyQueue(t *testing.T) {
	q := New()
	assert.Equal(t, 0, q.Len())

	_, err := q.PeekSender()
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = q.Pop()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestFIFOOrder(t *testing.T) {
	q := New()
	for i := 0; i < 5; i++ {
		q.Push(Packet{Data: []byte{byte(i)}, Sender: registry.PeerID(10 + i)})
	}
	assert.Equal(t, 5, q.Len())

	for i := 0; i < 5; i++ {
		sender, err := q.PeekSender()
		require.NoError(t, err)
		assert.Equal(t, registry.PeerID(10+i), sender)

		// Peek does not consume.
		assert.Equal(t, 5-i, q.Len())

		pkt, err := q.Pop()
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, pkt.Data)
		assert.Equal(t, registry.PeerID(10+i), pkt.Sender)
	}

	_, err := q.Pop()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestCountTracksPushesMinusPops(t *testing.T) {
	q := New()
	pushed, popped := 0, 0

	// Interleave enough operations to trigger compaction several times.
	for round := 0; round < 50; round++ {
		for i := 0; i < 7; i++ {
			q.Push(Packet{Data: []byte{byte(pushed)}, Sender: 2})
			pushed++
		}
		for i := 0; i < 5; i++ {
			pkt, err := q.Pop()
			require.NoError(t, err)
			assert.Equal(t, byte(popped), pkt.Data[0])
			popped++
		}
		assert.Equal(t, pushed-popped, q.Len())
	}

	for q.Len() > 0 {
		pkt, err := q.Pop()
		require.NoError(t, err)
		assert.Equal(t, byte(popped), pkt.Data[0])
		popped++
	}
	assert.Equal(t, pushed, popped)
}

func TestClear(t *testing.T) {
	q := New()
	q.Push(Packet{Data: []byte("a"), Sender: 3})
	q.Push(Packet{Data: []byte("b"), Sender: 4})
	_, _ = q.Pop()

	q.Clear()
	assert.Equal(t, 0, q.Len())
	_, err := q.PeekSender()
	assert.ErrorIs(t, err, ErrEmpty)
}
