package rudp

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Config configures a Transport, mirroring ring.Config's plain
// struct-plus-DefaultConfig style.
type Config struct {
	WindowSize        uint32
	MTU               int
	RetransmitTimeout time.Duration
	AckPeriod         time.Duration
	AckBatchSize      int
	CwndInitial       uint32
	CwndMin           uint32
	CwndMax           uint32
	NakGapThreshold   int
	OverflowMapMax    int
	// Threaded starts two background goroutines, one receiving and one
	// running the retransmit timer. When false, the caller drives
	// receiving and retransmission through Pump. In both modes the ACK
	// batcher flushes cumulative ACKs from a goroutine of its own.
	Threaded bool
	// Logger receives operational events; nil falls back to a no-op.
	Logger *zap.Logger
	// MetricsRegistry, if non-nil, receives the Prometheus series
	// mirroring Stats().
	MetricsRegistry *prometheus.Registry
}

// DefaultConfig returns a Config with a 256-packet window, 1400-byte MTU,
// a 100ms retransmit timeout, and threaded mode enabled.
func DefaultConfig() Config {
	return Config{
		WindowSize:        256,
		MTU:               DefaultMTU,
		RetransmitTimeout: 100 * time.Millisecond,
		AckPeriod:         20 * time.Millisecond,
		AckBatchSize:      16,
		CwndInitial:       64,
		CwndMin:           4,
		CwndMax:           1024,
		NakGapThreshold:   3,
		OverflowMapMax:    4096,
		Threaded:          true,
	}
}

// Stats reports the transport's packet counters plus the current
// congestion window and the last time a retransmission timeout fired.
type Stats struct {
	Sent          uint64
	Received      uint64
	Retransmitted uint64
	AcksOut       uint64
	NaksIn        uint64
	Duplicates    uint64
	Cwnd          uint32
	LastRTOFired  time.Time
}

type statsCounters struct {
	sent          atomic.Uint64
	received      atomic.Uint64
	retransmitted atomic.Uint64
	acksOut       atomic.Uint64
	naksIn        atomic.Uint64
}

// Transport is a NAK-based reliable delivery channel over a UDP socket,
// layering a retained send window, a hybrid receive window, and AIMD
// congestion control.
type Transport struct {
	cfg        Config
	conn       *net.UDPConn
	remoteAddr *net.UDPAddr
	logger     *zap.Logger

	sendWin *sendWindow
	cc      *congestionController
	ack     *ackBatcher

	recvMu  sync.Mutex
	recvWin *recvWindow

	lastNakMu   sync.Mutex
	lastNakSent map[uint32]time.Time

	delivered chan deliveredMsg

	stats        statsCounters
	lastRTOFired atomic.Int64 // unix nanos; 0 means never

	metrics *transportMetrics

	closed atomic.Bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

type deliveredMsg struct {
	seq     uint32
	payload []byte
}

// NewTransport opens the UDP socket bound to localAddr, targeting
// remoteAddr, and sizes the send/receive windows per cfg.
func NewTransport(localAddr, remoteAddr string, cfg Config) (*Transport, error) {
	def := DefaultConfig()
	if cfg.WindowSize == 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.MTU == 0 {
		cfg.MTU = def.MTU
	}
	if cfg.RetransmitTimeout == 0 {
		cfg.RetransmitTimeout = def.RetransmitTimeout
	}
	if cfg.AckPeriod == 0 {
		cfg.AckPeriod = def.AckPeriod
	}
	if cfg.AckBatchSize == 0 {
		cfg.AckBatchSize = def.AckBatchSize
	}
	if cfg.CwndInitial == 0 {
		cfg.CwndInitial = def.CwndInitial
	}
	if cfg.CwndMin == 0 {
		cfg.CwndMin = def.CwndMin
	}
	if cfg.CwndMax == 0 {
		cfg.CwndMax = def.CwndMax
	}
	if cfg.NakGapThreshold == 0 {
		cfg.NakGapThreshold = def.NakGapThreshold
	}
	if cfg.OverflowMapMax == 0 {
		cfg.OverflowMapMax = def.OverflowMapMax
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	localUDP, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("rudp: resolve local addr %s: %w", localAddr, err)
	}
	remoteUDP, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("rudp: resolve remote addr %s: %w", remoteAddr, err)
	}
	conn, err := net.ListenUDP("udp", localUDP)
	if err != nil {
		return nil, fmt.Errorf("rudp: listen %s: %w", localAddr, err)
	}

	sendWin, err := newSendWindow(cfg.WindowSize)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rudp: send window: %w", err)
	}

	t := &Transport{
		cfg:         cfg,
		conn:        conn,
		remoteAddr:  remoteUDP,
		logger:      logger,
		sendWin:     sendWin,
		cc:          newCongestionController(cfg.CwndInitial, cfg.CwndMin, cfg.CwndMax),
		recvWin:     newRecvWindow(pow2Ceil32(cfg.WindowSize), cfg.OverflowMapMax),
		lastNakSent: make(map[uint32]time.Time),
		delivered:   make(chan deliveredMsg, cfg.WindowSize*4),
		stopCh:      make(chan struct{}),
	}
	t.ack = newAckBatcher(t.sendAck, cfg.AckBatchSize, cfg.AckPeriod, logger)

	if cfg.MetricsRegistry != nil {
		m := newTransportMetrics()
		if err := m.register(cfg.MetricsRegistry); err != nil {
			logger.Warn("rudp: metrics registration failed", zap.Error(err))
		} else {
			t.metrics = m
		}
	}

	t.ack.Start()

	if cfg.Threaded {
		t.wg.Add(2)
		go t.receiveLoop()
		go t.retransmitLoop()
	}

	return t, nil
}

func pow2Ceil32(n uint32) uint32 { return uint32(pow2Ceil(n)) }

// Send submits one message, claiming the next send-window sequence and
// writing it to the socket. Returns ErrCongested (transient absence, not
// an error the caller should treat as fatal) when the congestion window
// is saturated.
func (t *Transport) Send(payload []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if len(payload) > t.cfg.MTU-headerSize {
		return ErrPayloadTooLarge
	}
	slot, seq, ok, err := t.sendWin.claim(t.cc.Window())
	if err != nil {
		return fmt.Errorf("rudp: claim send slot: %w", err)
	}
	if !ok {
		return ErrCongested
	}
	slot.payload = append([]byte(nil), payload...)
	slot.state = slotInFlight
	slot.sentAt = time.Now()

	if _, err := t.conn.WriteToUDP(Encode(Packet{Seq: seq, Flags: FlagData, Payload: slot.payload}), t.remoteAddr); err != nil {
		return fmt.Errorf("rudp: send: %w", err)
	}
	t.stats.sent.Add(1)
	if t.metrics != nil {
		t.metrics.sent.Inc()
	}
	return nil
}

// SendBatch submits each payload in order, stopping at the first one that
// would block on congestion; returns the count actually sent.
func (t *Transport) SendBatch(payloads [][]byte) (int, error) {
	for i, p := range payloads {
		if err := t.Send(p); err != nil {
			if err == ErrCongested {
				return i, nil
			}
			return i, err
		}
	}
	return len(payloads), nil
}

// ReceiveBatchWith delivers up to max in-order payloads to fn. Buffers
// passed to fn are only valid until it returns.
func (t *Transport) ReceiveBatchWith(max int, fn func(seq uint32, payload []byte)) (int, error) {
	if t.closed.Load() {
		return 0, ErrClosed
	}
	n := 0
	for n < max {
		select {
		case msg := <-t.delivered:
			fn(msg.seq, msg.payload)
			n++
		default:
			return n, nil
		}
	}
	return n, nil
}

// Pump performs one bounded receive/send/retransmit pass for
// single-threaded callers. It must not be called concurrently with
// itself or with the background goroutines from
// Threaded mode.
func (t *Transport) Pump() error {
	if t.closed.Load() {
		return ErrClosed
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return fmt.Errorf("rudp: set read deadline: %w", err)
	}
	buf := make([]byte, t.cfg.MTU)
	for i := 0; i < 64; i++ {
		n, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			return fmt.Errorf("rudp: read: %w", err)
		}
		t.handleIncoming(buf[:n])
	}
	t.checkRetransmitTimeout()
	return nil
}

// Stats returns a snapshot of the transport's counters.
func (t *Transport) Stats() Stats {
	var lastRTO time.Time
	if ns := t.lastRTOFired.Load(); ns != 0 {
		lastRTO = time.Unix(0, ns)
	}
	return Stats{
		Sent:          t.stats.sent.Load(),
		Received:      t.stats.received.Load(),
		Retransmitted: t.stats.retransmitted.Load(),
		AcksOut:       t.stats.acksOut.Load(),
		NaksIn:        t.stats.naksIn.Load(),
		Duplicates:    t.recvDuplicates(),
		Cwnd:          t.cc.Window(),
		LastRTOFired:  lastRTO,
	}
}

// updateCwndMetric mirrors the congestion window onto the Prometheus
// gauge whenever it changes; a no-op when no registry was configured.
func (t *Transport) updateCwndMetric() {
	if t.metrics != nil {
		t.metrics.cwnd.Set(float64(t.cc.Window()))
	}
}

func (t *Transport) recvDuplicates() uint64 {
	t.recvMu.Lock()
	defer t.recvMu.Unlock()
	return t.recvWin.duplicates
}

// Close stops the background goroutines (if any) and closes the socket.
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(t.stopCh)
	t.ack.Shutdown()
	err := t.conn.Close()
	t.wg.Wait()
	return err
}

func (t *Transport) receiveLoop() {
	defer t.wg.Done()
	buf := make([]byte, t.cfg.MTU)
	for {
		n, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.stopCh:
				return
			default:
				t.logger.Warn("rudp: receive error", zap.Error(err))
				continue
			}
		}
		t.handleIncoming(buf[:n])
	}
}

func (t *Transport) retransmitLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.RetransmitTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.checkRetransmitTimeout()
		}
	}
}

func (t *Transport) handleIncoming(buf []byte) {
	pkt, err := Decode(buf)
	if err != nil {
		t.logger.Warn("rudp: malformed packet", zap.Error(err))
		return
	}
	switch pkt.Flags {
	case FlagAck:
		cum, err := DecodeAck(pkt)
		if err != nil {
			t.logger.Warn("rudp: malformed ack", zap.Error(err))
			return
		}
		t.sendWin.ackCumulative(cum)
		t.cc.OnAck(cum)
		t.updateCwndMetric()
	case FlagNak:
		start, end, err := DecodeNak(pkt)
		if err != nil {
			t.logger.Warn("rudp: malformed nak", zap.Error(err))
			return
		}
		t.stats.naksIn.Add(1)
		if t.metrics != nil {
			t.metrics.naksIn.Inc()
		}
		t.cc.OnLoss()
		t.updateCwndMetric()
		t.retransmitRange(start, end)
	default:
		t.stats.received.Add(1)
		if t.metrics != nil {
			t.metrics.received.Inc()
		}
		t.handleData(pkt.Seq, pkt.Payload)
	}
}

func (t *Transport) handleData(seq uint32, payload []byte) {
	t.recvMu.Lock()
	res := t.recvWin.Arrive(seq, payload, func(seq uint32, buf []byte) {
		cp := append([]byte(nil), buf...)
		select {
		case t.delivered <- deliveredMsg{seq: seq, payload: cp}:
		default:
			t.logger.Warn("rudp: delivered queue full, dropping message", zap.Uint32("seq", seq))
		}
		t.ack.QueueDelivery(seq)
	})
	ranges := t.recvWin.MissingRanges(t.cfg.NakGapThreshold)
	t.recvMu.Unlock()

	if res.duplicate && t.metrics != nil {
		t.metrics.duplicates.Inc()
	}
	if res.droppedOverflow {
		// Overflow map is full: NAK immediately to pull the window
		// forward.
		t.sendNak(seq, seq)
	}
	for _, r := range ranges {
		t.maybeSendNak(r[0], r[1])
	}
}

func (t *Transport) maybeSendNak(start, end uint32) {
	t.lastNakMu.Lock()
	last, ok := t.lastNakSent[start]
	now := time.Now()
	if ok && now.Sub(last) < t.cfg.RetransmitTimeout {
		t.lastNakMu.Unlock()
		return
	}
	t.lastNakSent[start] = now
	t.lastNakMu.Unlock()
	t.sendNak(start, end)
}

func (t *Transport) sendNak(start, end uint32) {
	if _, err := t.conn.WriteToUDP(EncodeNak(start, end), t.remoteAddr); err != nil {
		t.logger.Warn("rudp: send nak failed", zap.Error(err))
	}
}

func (t *Transport) sendAck(cumulativeSeq uint32) {
	if _, err := t.conn.WriteToUDP(EncodeAck(cumulativeSeq), t.remoteAddr); err != nil {
		t.logger.Warn("rudp: send ack failed", zap.Error(err))
		return
	}
	t.stats.acksOut.Add(1)
	if t.metrics != nil {
		t.metrics.acksOut.Inc()
	}
}

func (t *Transport) retransmitRange(start, end uint32) {
	for seq := start; ; seq++ {
		t.retransmitOne(seq)
		if seq == end {
			break
		}
	}
}

func (t *Transport) retransmitOne(seq uint32) {
	slot, ok := t.sendWin.lookup(seq)
	if !ok {
		return // already ACKed or never sent; nothing to retransmit
	}
	slot.state = slotRetransmit
	slot.retransmitCount++
	slot.sentAt = time.Now()
	if _, err := t.conn.WriteToUDP(Encode(Packet{Seq: seq, Flags: FlagData, Payload: slot.payload}), t.remoteAddr); err != nil {
		t.logger.Warn("rudp: retransmit failed", zap.Uint32("seq", seq), zap.Error(err))
		return
	}
	slot.state = slotInFlight
	t.stats.retransmitted.Add(1)
	if t.metrics != nil {
		t.metrics.retransmitted.Inc()
	}
}

func (t *Transport) checkRetransmitTimeout() {
	slot, ok := t.sendWin.oldestUnacked()
	if !ok {
		return
	}
	if time.Since(slot.sentAt) < t.cfg.RetransmitTimeout {
		return
	}
	t.lastRTOFired.Store(time.Now().UnixNano())
	t.cc.OnLoss()
	t.updateCwndMetric()

	consumed, _ := t.sendWin.ring.ConsumerCursor(0)
	produced := t.sendWin.ring.ProducerCursor()
	window := uint64(t.cc.Window())
	start := consumed + 1
	end := produced
	if end-start+1 > window {
		end = start + window - 1
	}
	for seq := start; seq <= end; seq++ {
		if s, ok := t.sendWin.ring.Peek(seq); ok {
			t.retransmitOne(s.seq)
		}
	}
}
