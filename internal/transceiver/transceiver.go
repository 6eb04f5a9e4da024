// Package transceiver frames fixed-length packets over an unreliable,
// arbitrarily-chunked byte stream and overlaps application send/receive with
// optional background I/O goroutines.
//
// The Manager owns exactly one transport. It recovers frame boundaries from
// raw reads via a bounded carry-over buffer, reconnects the transport inline
// on I/O failure, and applies a configurable backpressure policy to the
// outbound queue when the background send loop is running.
package transceiver

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robolink-dev/linkwire/internal/monitoring"
	"github.com/robolink-dev/linkwire/internal/transport"
	"github.com/robolink-dev/linkwire/internal/wire"
)

// SendMode selects the backpressure policy applied to the outbound queue
// while the background send loop is enabled.
type SendMode int

const (
	// SendFIFO queues every packet with no bound. Backpressure is the
	// caller's problem.
	SendFIFO SendMode = iota
	// SendLatestOnly keeps only the most recently queued packet; older
	// undelivered packets are dropped. Suited to state snapshots where
	// freshness beats completeness.
	SendLatestOnly
	// SendLimitedFIFO keeps at most MaxQueueSize packets, evicting the
	// oldest when full.
	SendLimitedFIFO
)

func (m SendMode) String() string {
	switch m {
	case SendFIFO:
		return "fifo"
	case SendLatestOnly:
		return "latest-only"
	case SendLimitedFIFO:
		return "limited-fifo"
	default:
		return fmt.Sprintf("SendMode(%d)", int(m))
	}
}

// DefaultMaxQueueSize bounds the outbound queue under SendLimitedFIFO when
// no explicit size is configured.
const DefaultMaxQueueSize = 100

// idlePoll is how long the background loops sleep when there is nothing to
// do. The loops are bounded busy-polls, not event-driven.
const idlePoll = time.Millisecond

var (
	// ErrNilTransport is returned by New when no transport is supplied.
	ErrNilTransport = errors.New("transceiver: transport is nil")

	// ErrNoFrame reports that no complete frame has been recovered yet.
	// It is the normal keep-buffering outcome, not a fault: buffered
	// bytes are preserved and the next RecvPacket call continues the
	// scan.
	ErrNoFrame = errors.New("transceiver: no complete frame yet")

	// ErrReadFailed reports a failed or empty transport read. The
	// transport has already been reconnected when this is returned.
	ErrReadFailed = errors.New("transceiver: transport read failed")

	// ErrWriteFailed reports a failed or short transport write. The
	// transport has already been reconnected when this is returned.
	ErrWriteFailed = errors.New("transceiver: transport write failed")
)

// Option configures a Manager at construction.
type Option func(*Manager)

// WithSendMode sets the initial send mode.
func WithSendMode(mode SendMode) Option {
	return func(m *Manager) { m.mode = mode }
}

// WithMaxQueueSize sets the SendLimitedFIFO queue bound. Values below one
// fall back to DefaultMaxQueueSize.
func WithMaxQueueSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxQueue = n
		}
	}
}

// Manager frames packets of a single fixed capacity over one transport.
//
// RecvPacket must only be called from one goroutine at a time: either the
// application or the background read loop, never both. The same discipline
// applies to the transport itself; reconnection is not atomic with respect
// to concurrent I/O on the same transport.
type Manager struct {
	tr       transport.Transport
	capacity int

	// scratch receives each raw transport read; carry accumulates
	// unconsumed bytes between reads so a frame split across reads can
	// be reassembled. carry is fixed at 2×capacity; carryLen is the live
	// prefix length.
	scratch  []byte
	carry    []byte
	carryLen int

	// Outbound queue state, guarded by sendMu.
	sendMu   sync.Mutex
	queue    []*wire.FixedPacket
	mode     SendMode
	maxQueue int

	sendEnabled atomic.Bool
	sendDone    chan struct{}

	// Latest-received cache, guarded by readMu.
	readMu sync.Mutex
	latest *wire.FixedPacket

	readEnabled atomic.Bool
	readDone    chan struct{}
}

// New creates a Manager speaking capacity-byte frames over tr.
func New(tr transport.Transport, capacity int, opts ...Option) (*Manager, error) {
	if tr == nil {
		return nil, ErrNilTransport
	}
	if capacity < wire.MinCapacity {
		return nil, fmt.Errorf("%w: got %d", wire.ErrCapacityTooSmall, capacity)
	}
	m := &Manager{
		tr:       tr,
		capacity: capacity,
		scratch:  make([]byte, capacity),
		carry:    make([]byte, 2*capacity),
		mode:     SendFIFO,
		maxQueue: DefaultMaxQueueSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Capacity returns the fixed frame length in bytes.
func (m *Manager) Capacity() int {
	return m.capacity
}

// IsOpen reports whether the underlying transport is open.
func (m *Manager) IsOpen() bool {
	return m.tr.IsOpen()
}

// reconnect cycles the transport after an I/O failure. It is best-effort;
// failures are logged and the caller still reports the original error.
func (m *Manager) reconnect() {
	if err := m.tr.Close(); err != nil {
		monitoring.Logf("transceiver: close during reconnect: %v", err)
	}
	if err := m.tr.Open(); err != nil {
		monitoring.Logf("transceiver: reopen failed: %v", err)
	}
}

// writePacket writes one frame synchronously. A short or failed write
// triggers a reconnect attempt and returns ErrWriteFailed.
func (m *Manager) writePacket(p *wire.FixedPacket) error {
	n, err := m.tr.Write(p.Bytes())
	if err == nil && n == m.capacity {
		return nil
	}
	m.reconnect()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return fmt.Errorf("%w: wrote %d of %d bytes", ErrWriteFailed, n, m.capacity)
}

// checkPacket validates that p matches this manager's frame size.
func (m *Manager) checkPacket(p *wire.FixedPacket) error {
	if p == nil {
		return errors.New("transceiver: packet is nil")
	}
	if p.Capacity() != m.capacity {
		return fmt.Errorf("transceiver: packet capacity %d, manager expects %d", p.Capacity(), m.capacity)
	}
	return nil
}

// SendPacket transmits or queues one packet.
//
// With the background send loop disabled the write happens inline and the
// error reflects the transport outcome. With the loop enabled the packet is
// queued under the current send mode and SendPacket returns nil as soon as
// it is queued; delivery is fire-and-forget from the caller's perspective.
func (m *Manager) SendPacket(p *wire.FixedPacket) error {
	if err := m.checkPacket(p); err != nil {
		return err
	}
	if !m.sendEnabled.Load() {
		return m.writePacket(p)
	}

	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	switch m.mode {
	case SendLatestOnly:
		m.queue = m.queue[:0]
	case SendLimitedFIFO:
		for len(m.queue) >= m.maxQueue {
			m.queue = m.queue[1:]
		}
	}
	m.queue = append(m.queue, p.Clone())
	return nil
}

// SetSendMode switches the queueing policy at runtime and re-normalizes any
// already-queued packets to the new policy's invariant. maxQueueSize below
// one falls back to DefaultMaxQueueSize.
func (m *Manager) SetSendMode(mode SendMode, maxQueueSize int) {
	if maxQueueSize < 1 {
		maxQueueSize = DefaultMaxQueueSize
	}
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	m.mode = mode
	m.maxQueue = maxQueueSize

	if mode == SendLatestOnly && len(m.queue) > 1 {
		m.queue = m.queue[len(m.queue)-1:]
	}
	if mode == SendLimitedFIFO && len(m.queue) > m.maxQueue {
		m.queue = m.queue[len(m.queue)-m.maxQueue:]
	}
}

// queueLen reports the outbound queue length. Test hook.
func (m *Manager) queueLen() int {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	return len(m.queue)
}

// RecvPacket performs one framing step and stores a recovered frame in p.
//
// It issues a single transport read of up to capacity bytes. An exactly
// capacity-sized read with valid head/tail bytes is returned directly
// without touching the carry-over buffer. Anything else is appended to the
// carry-over buffer and the buffer is scanned for the earliest window with
// valid head/tail bytes; the earliest match wins, which resynchronizes as
// soon as possible at the cost of occasionally misframing when payload
// bytes coincide with the markers. No checksum is validated.
//
// Errors: ErrReadFailed after a failed read (the transport has been
// reconnected), ErrNoFrame when more bytes are needed (buffered state is
// preserved for the next call).
func (m *Manager) RecvPacket(p *wire.FixedPacket) error {
	if err := m.checkPacket(p); err != nil {
		return err
	}

	n, err := m.tr.Read(m.scratch)
	if err != nil || n <= 0 {
		m.reconnect()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrReadFailed, err)
		}
		return ErrReadFailed
	}

	// Fast path: a perfectly aligned frame in a single read.
	if n == m.capacity && wire.FrameValid(m.scratch[:n]) {
		return p.CopyFrom(m.scratch[:n])
	}

	// The carry-over buffer is bounded at twice the frame size. When the
	// new bytes would overflow it, all buffered history is dropped; this
	// loses data but keeps memory bounded and leaves a clean slate for
	// subsequent frames.
	if m.carryLen+n > len(m.carry) {
		monitoring.Logf("transceiver: carry-over buffer overflow, dropping %d buffered bytes", m.carryLen)
		m.carryLen = 0
	}
	copy(m.carry[m.carryLen:], m.scratch[:n])
	m.carryLen += n

	// Scan for the earliest capacity-sized window with valid markers.
	for i := 0; i+m.capacity <= m.carryLen; i++ {
		window := m.carry[i : i+m.capacity]
		if !wire.FrameValid(window) {
			continue
		}
		if err := p.CopyFrom(window); err != nil {
			return err
		}
		// Compact everything after the consumed window to the front.
		m.carryLen = copy(m.carry, m.carry[i+m.capacity:m.carryLen])
		return nil
	}

	return ErrNoFrame
}

// LatestPacket returns a copy of the most recent frame stored by the
// background read loop. It does not drain the cache: repeated calls may
// return the same packet until a fresher frame arrives. ok is false until
// the first frame has been received.
func (m *Manager) LatestPacket() (p *wire.FixedPacket, ok bool) {
	m.readMu.Lock()
	defer m.readMu.Unlock()
	if m.latest == nil {
		return nil, false
	}
	return m.latest.Clone(), true
}

// EnableRealtimeSend starts or stops the background send loop. Enabling an
// already-enabled loop (or disabling a stopped one) is a no-op. Disabling
// blocks until the loop goroutine has exited, after which no further
// transport writes occur from this manager's send path until re-enabled.
//
// Not safe for concurrent calls with itself; toggle from one goroutine.
func (m *Manager) EnableRealtimeSend(enable bool) {
	if enable == m.sendEnabled.Load() {
		return
	}
	if enable {
		m.sendEnabled.Store(true)
		m.sendDone = make(chan struct{})
		go m.sendLoop(m.sendDone)
		return
	}
	m.sendEnabled.Store(false)
	<-m.sendDone
	m.sendDone = nil
}

func (m *Manager) sendLoop(done chan struct{}) {
	defer close(done)
	for m.sendEnabled.Load() {
		var p *wire.FixedPacket
		m.sendMu.Lock()
		if len(m.queue) > 0 {
			p = m.queue[0]
			m.queue = m.queue[1:]
		}
		m.sendMu.Unlock()

		// The potentially slow transport write happens outside the
		// queue lock so producers are never blocked on the wire.
		if p == nil {
			time.Sleep(idlePoll)
			continue
		}
		if err := m.writePacket(p); err != nil {
			monitoring.Logf("transceiver: background send: %v", err)
		}
	}
}

// EnableRealtimeRead starts or stops the background read loop, which calls
// RecvPacket continuously and caches successful frames for LatestPacket.
// Disabling blocks until the loop goroutine has exited. While the loop is
// enabled, callers must not invoke RecvPacket themselves.
//
// Not safe for concurrent calls with itself; toggle from one goroutine.
func (m *Manager) EnableRealtimeRead(enable bool) {
	if enable == m.readEnabled.Load() {
		return
	}
	if enable {
		m.readEnabled.Store(true)
		m.readDone = make(chan struct{})
		go m.readLoop(m.readDone)
		return
	}
	m.readEnabled.Store(false)
	<-m.readDone
	m.readDone = nil
}

func (m *Manager) readLoop(done chan struct{}) {
	defer close(done)
	p := wire.MustNew(m.capacity)
	for m.readEnabled.Load() {
		if err := m.RecvPacket(p); err != nil {
			time.Sleep(idlePoll)
			continue
		}
		m.readMu.Lock()
		m.latest = p.Clone()
		m.readMu.Unlock()
	}
}

// Close stops both background loops and closes the transport.
func (m *Manager) Close() error {
	m.EnableRealtimeSend(false)
	m.EnableRealtimeRead(false)
	return m.tr.Close()
}
