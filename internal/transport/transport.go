// Package transport defines the byte-stream boundary the transceiver talks
// through. Concrete implementations (serial port, USB bulk endpoint) live in
// subpackages; the transceiver only sees this interface.
package transport

// Transport is a reopenable byte stream. Read and Write follow io semantics
// but with no framing guarantees whatsoever: a single Read may return
// anything from zero bytes to the full buffer, split one frame across calls,
// or merge the tail of one frame with the head of the next. The transceiver
// is responsible for recovering frame boundaries.
//
// Implementations are not required to be safe for concurrent Read/Write from
// multiple goroutines; the transceiver enforces single-reader/single-writer
// discipline through its loop ownership.
type Transport interface {
	// Open establishes the connection. Open after Close must work so the
	// transceiver can reconnect after I/O failures.
	Open() error

	// Close tears the connection down. Closing a closed transport is a
	// no-op.
	Close() error

	// IsOpen reports whether the transport is currently usable.
	IsOpen() bool

	// Read fills p with up to len(p) bytes. A return of n <= 0, with or
	// without an error, is treated as a failed read by the transceiver.
	Read(p []byte) (n int, err error)

	// Write sends p. A short write (n != len(p)) is treated as a failure.
	Write(p []byte) (n int, err error)
}
