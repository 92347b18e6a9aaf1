package peer

import "errors"

var (
	// ErrNoSession is returned by operations that need HostGame or JoinGame
	// to have run first.
	ErrNoSession = errors.New("no session: call HostGame or JoinGame first")

	// ErrAlreadyStarted is returned when HostGame or JoinGame is called on a
	// peer that already has a session. Close it first.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrUnsupported marks operations the adapter does not implement.
	ErrUnsupported = errors.New("operation not supported")

	ErrSendFailed     = errors.New("send failed")
	ErrNotConnected   = errors.New("peer is not connected")
	ErrPacketTooLarge = errors.New("packet exceeds maximum size")
	ErrSelfConnect    = errors.New("cannot join a session hosted by this endpoint")
)
