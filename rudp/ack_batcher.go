package rudp

import (
	"time"

	"go.uber.org/zap"
)

// ackBatcher batches delivery notifications so a cumulative ACK is sent
// every batchSize deliveries or every flushInterval, whichever comes first.
type ackBatcher struct {
	send         func(cumulativeSeq uint32)
	queue        chan uint32
	batchSize    int
	flushInterval time.Duration
	shutdownCh   chan struct{}
	shutdownDone chan struct{}
	logger       *zap.Logger
}

func newAckBatcher(send func(uint32), batchSize int, flushInterval time.Duration, logger *zap.Logger) *ackBatcher {
	if batchSize <= 0 {
		batchSize = 32
	}
	if flushInterval <= 0 {
		flushInterval = 10 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ackBatcher{
		send:          send,
		queue:         make(chan uint32, batchSize*2),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		shutdownCh:    make(chan struct{}),
		shutdownDone:  make(chan struct{}),
		logger:        logger,
	}
}

func (b *ackBatcher) Start() {
	go b.batchLoop()
}

func (b *ackBatcher) batchLoop() {
	defer close(b.shutdownDone)

	count := 0
	var pending uint32
	have := false
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if !have {
			return
		}
		b.send(pending)
		have = false
		count = 0
	}

	for {
		select {
		case seq := <-b.queue:
			pending = seq
			have = true
			count++
			if count >= b.batchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-b.shutdownCh:
			flush()
		drain:
			for {
				select {
				case seq := <-b.queue:
					pending = seq
					have = true
				default:
					break drain
				}
			}
			flush()
			return
		}
	}
}

// QueueDelivery records that cumulativeSeq has now been delivered; this is
// non-blocking and drops on a full queue, since an ACK is always superseded
// by the next higher one.
func (b *ackBatcher) QueueDelivery(cumulativeSeq uint32) {
	select {
	case b.queue <- cumulativeSeq:
	default:
		b.logger.Warn("rudp: ack queue full, dropping intermediate ack", zap.Uint32("seq", cumulativeSeq))
	}
}

func (b *ackBatcher) Shutdown() {
	close(b.shutdownCh)
	<-b.shutdownDone
}
