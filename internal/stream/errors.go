package stream

import "errors"

// Domain errors for the stream package.
var (
	// ErrNotConnected is returned when an operation requires a live
	// connection but the stream is disconnected.
	ErrNotConnected = errors.New("stream: not connected")

	// ErrConnectionFailed is returned when the initial connection to the
	// device endpoint fails.
	ErrConnectionFailed = errors.New("stream: connection failed")

	// ErrClosed is returned for operations on a closed stream.
	ErrClosed = errors.New("stream: closed")

	// ErrReadTimeout is returned when a bounded record read elapses
	// without a complete record arriving.
	ErrReadTimeout = errors.New("stream: read timeout")

	// ErrWriteFailed is returned when writing to the device fails.
	ErrWriteFailed = errors.New("stream: write failed")
)
