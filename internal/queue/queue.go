// Package queue buffers received datagrams until the protocol layer pops
// them, strictly in arrival order.
package queue

import (
	"errors"

	"github.com/1ureka/relaypeer/internal/registry"
)

// MaxPacketsPerPoll is how many messages one poll pulls from a connection.
const MaxPacketsPerPoll = 16

// compactThreshold is the dead-prefix length at which the backing slice is
// shifted down.
const compactThreshold = 64

var ErrEmpty = errors.New("packet queue is empty")

// Packet is one received datagram and the peer that sent it.
type Packet struct {
	Data   []byte
	Sender registry.PeerID
}

// Queue is an unbounded FIFO of packets. It applies no backpressure: a caller
// that pops slower than packets arrive sees the queue grow.
// It is not safe for concurrent use.
type Queue struct {
	items []Packet
	head  int
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Push appends pkt at the tail. The queue takes ownership of pkt.Data.
func (q *Queue) Push(pkt Packet) {
	q.items = append(q.items, pkt)
}

// Len returns the number of packets waiting.
func (q *Queue) Len() int {
	return len(q.items) - q.head
}

// PeekSender returns the sender of the head packet without removing it.
func (q *Queue) PeekSender() (registry.PeerID, error) {
	if q.Len() == 0 {
		return 0, ErrEmpty
	}
	return q.items[q.head].Sender, nil
}

// Pop removes the head packet and hands it to the caller.
func (q *Queue) Pop() (Packet, error) {
	if q.Len() == 0 {
		return Packet{}, ErrEmpty
	}

	pkt := q.items[q.head]
	q.items[q.head] = Packet{}
	q.head++

	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= compactThreshold && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}

	return pkt, nil
}

// Clear drops every waiting packet.
func (q *Queue) Clear() {
	clear(q.items)
	q.items = q.items[:0]
	q.head = 0
}
