package stream

import (
	"bytes"
	"errors"
	"fmt"
	"time"
)

// Stream is the duplex byte channel a device adapter communicates over.
//
// Implementations must support concurrent use of Read and Write from two
// goroutines (one reader, one writer). Close unblocks any pending Read or
// Write.
type Stream interface {
	// Read fills p with available bytes, blocking until at least one byte
	// arrives, the read deadline passes, or the stream closes.
	Read(p []byte) (int, error)

	// Write sends p to the device.
	Write(p []byte) (int, error)

	// SetReadDeadline bounds subsequent Read calls. A zero time means
	// reads never time out.
	SetReadDeadline(t time.Time) error

	// Close tears down the stream and unblocks pending I/O.
	Close() error
}

// readChunkSize is the per-call read buffer for record accumulation.
const readChunkSize = 256

// maxRecordSize bounds record accumulation so a device that never sends
// the terminator cannot grow the buffer without limit.
const maxRecordSize = 64 * 1024

// RecordReader accumulates bytes from a Stream and splits them into
// terminator-delimited records. The terminator is stripped from returned
// records.
//
// Not safe for concurrent use: each engine owns exactly one reader,
// which is what keeps inbound translation order equal to wire order.
type RecordReader struct {
	s          Stream
	terminator []byte
	buf        bytes.Buffer
	chunk      []byte
}

// NewRecordReader wraps s with record framing. An empty terminator
// defaults to "\n".
func NewRecordReader(s Stream, terminator string) *RecordReader {
	if terminator == "" {
		terminator = "\n"
	}
	return &RecordReader{
		s:          s,
		terminator: []byte(terminator),
		chunk:      make([]byte, readChunkSize),
	}
}

// ReadRecord returns the next complete record, blocking up to timeout.
// A timeout of zero blocks indefinitely (until the stream closes).
//
// On timeout, bytes accumulated so far stay buffered for the next call, so
// a slow device does not lose a half-delivered record. Returns
// ErrReadTimeout when the deadline elapses without a complete record.
func (r *RecordReader) ReadRecord(timeout time.Duration) (string, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		// A complete record may already be buffered from a prior read.
		if idx := bytes.Index(r.buf.Bytes(), r.terminator); idx >= 0 {
			record := make([]byte, idx)
			copy(record, r.buf.Bytes()[:idx])
			r.buf.Next(idx + len(r.terminator))
			return string(record), nil
		}

		if r.buf.Len() > maxRecordSize {
			// Unterminated garbage; discard rather than grow forever.
			r.buf.Reset()
			return "", fmt.Errorf("%w: record exceeds %d bytes without terminator", ErrReadTimeout, maxRecordSize)
		}

		if err := r.s.SetReadDeadline(deadline); err != nil {
			return "", fmt.Errorf("set read deadline: %w", err)
		}

		n, err := r.s.Read(r.chunk)
		if n > 0 {
			r.buf.Write(r.chunk[:n])
		}
		if err != nil {
			if isTimeout(err) {
				return "", ErrReadTimeout
			}
			return "", err
		}
	}
}

// timeouter matches net.Error without importing net here.
type timeouter interface{ Timeout() bool }

func isTimeout(err error) bool {
	var t timeouter
	return errors.As(err, &t) && t.Timeout()
}

// WriteRecord appends the terminator to cmd and writes it to s.
func WriteRecord(s Stream, terminator, cmd string) error {
	if terminator == "" {
		terminator = "\n"
	}
	payload := []byte(cmd + terminator)
	if _, err := s.Write(payload); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}
