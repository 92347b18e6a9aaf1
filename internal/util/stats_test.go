package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytesFixedWidth(t *testing.T) {
	for _, b := range []float64{0, 99, 100, 1536, 99 * 1024, 5 << 30} {
		assert.Len(t, formatBytes(b), 8, "value %v", b)
	}
	assert.Equal(t, " 1.5 KiB", formatBytes(1536))
}

func TestFormatDeltaQuietWindow(t *testing.T) {
	prev := Snapshot{BytesSent: 100, BytesRecv: 100}
	cur := Snapshot{BytesSent: 150, BytesRecv: 120}

	_, ok := formatDelta(prev, cur, 10*time.Second)
	assert.False(t, ok)
}

func TestFormatDeltaReportsPeers(t *testing.T) {
	prev := Snapshot{}
	cur := Snapshot{PeersJoined: 2, PeersLeft: 1, SendErrors: 3}

	line, ok := formatDelta(prev, cur, 10*time.Second)
	assert.True(t, ok)
	assert.Contains(t, line, " 2↑")
	assert.Contains(t, line, " 1↓")
	assert.Contains(t, line, "Send errors: 3")
}
