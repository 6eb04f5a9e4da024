package transport

import (
	"errors"
	"sync"
)

// ErrMockClosed is returned by a TestableTransport operated while closed.
var ErrMockClosed = errors.New("transport: mock transport is closed")

// TestableTransport implements Transport with scripted behaviour for unit
// tests. Reads are served one scripted chunk at a time so tests can control
// exactly how a frame is split or merged across Read calls.
type TestableTransport struct {
	mu sync.Mutex

	// reads holds pending read chunks; each Read call consumes at most
	// one chunk (truncated to the caller's buffer).
	reads [][]byte

	// written captures all data passed to Write.
	written []byte

	// ReadErr is returned by the next Read call if set, then cleared.
	ReadErr error

	// WriteErr is returned by the next Write call if set, then cleared.
	WriteErr error

	// OpenErr is returned by every Open call if set.
	OpenErr error

	// ShortWriteBy truncates every successful Write by this many bytes.
	ShortWriteBy int

	open bool

	// Call counters.
	OpenCalls  int
	CloseCalls int
	ReadCalls  int
	WriteCalls int
}

// NewTestableTransport returns an open mock transport with no scripted data.
func NewTestableTransport() *TestableTransport {
	return &TestableTransport{open: true}
}

// PushRead appends one scripted read chunk. A nil or empty chunk scripts a
// zero-byte read (a timeout, as far as the transceiver is concerned).
func (t *TestableTransport) PushRead(chunk []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := make([]byte, len(chunk))
	copy(c, chunk)
	t.reads = append(t.reads, c)
}

// Written returns a copy of everything written so far.
func (t *TestableTransport) Written() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]byte, len(t.written))
	copy(out, t.written)
	return out
}

// PendingReads reports how many scripted chunks remain unconsumed.
func (t *TestableTransport) PendingReads() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.reads)
}

func (t *TestableTransport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.OpenCalls++
	if t.OpenErr != nil {
		return t.OpenErr
	}
	t.open = true
	return nil
}

func (t *TestableTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CloseCalls++
	t.open = false
	return nil
}

func (t *TestableTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *TestableTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadCalls++
	if !t.open {
		return 0, ErrMockClosed
	}
	if t.ReadErr != nil {
		err := t.ReadErr
		t.ReadErr = nil
		return 0, err
	}
	if len(t.reads) == 0 {
		// No scripted data behaves like a read timeout.
		return 0, nil
	}
	chunk := t.reads[0]
	n := copy(p, chunk)
	if n < len(chunk) {
		t.reads[0] = chunk[n:]
	} else {
		t.reads = t.reads[1:]
	}
	return n, nil
}

func (t *TestableTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.WriteCalls++
	if !t.open {
		return 0, ErrMockClosed
	}
	if t.WriteErr != nil {
		err := t.WriteErr
		t.WriteErr = nil
		return 0, err
	}
	n := len(p)
	if t.ShortWriteBy > 0 {
		n -= t.ShortWriteBy
		if n < 0 {
			n = 0
		}
	}
	t.written = append(t.written, p[:n]...)
	return n, nil
}
