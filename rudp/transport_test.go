package rudp

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func freeUDPAddr(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := conn.LocalAddr().String()
	require.NoError(t, conn.Close())
	return addr
}

// runLossyRelay listens on listenAddr and forwards every packet it
// receives to forwardAddr, except every dropEveryNth one, which is
// silently discarded. It stands in for an unreliable network link on the
// forward (data) path while the reverse (ACK/NAK) path stays direct and
// reliable, the same asymmetry a real lossy link exhibits when only one
// direction carries bulk traffic.
func runLossyRelay(t *testing.T, listenAddr, forwardAddr string, dropEveryNth int) (stop func()) {
	t.Helper()
	conn, err := net.ListenPacket("udp", listenAddr)
	require.NoError(t, err)
	fwdAddr, err := net.ResolveUDPAddr("udp", forwardAddr)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 2048)
		count := 0
		for {
			conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
			n, _, err := conn.ReadFrom(buf)
			select {
			case <-done:
				return
			default:
			}
			if err != nil {
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				return
			}
			count++
			if count%dropEveryNth == 0 {
				continue
			}
			_, _ = conn.WriteTo(buf[:n], fwdAddr)
		}
	}()
	return func() {
		close(done)
		conn.Close()
	}
}

// TestRoundTripWithPacketLoss drives the real retransmit path: the sender
// submits sequences 0..999 over a link dropping every 100th forwarded
// packet. The receiver must eventually deliver all 1000 in order, with
// stats reporting at least 10 retransmissions.
func TestRoundTripWithPacketLoss(t *testing.T) {
	aAddr := freeUDPAddr(t)
	bAddr := freeUDPAddr(t)
	relayAddr := freeUDPAddr(t)

	stopRelay := runLossyRelay(t, relayAddr, bAddr, 100)
	defer stopRelay()

	cfgA := DefaultConfig()
	cfgB := DefaultConfig()

	a, err := NewTransport(aAddr, relayAddr, cfgA)
	require.NoError(t, err)
	defer a.Close()

	b, err := NewTransport(bAddr, aAddr, cfgB)
	require.NoError(t, err)
	defer b.Close()

	const n = 1000
	go func() {
		for i := 0; i < n; i++ {
			msg := []byte(fmt.Sprintf("msg-%d", i))
			for {
				err := a.Send(msg)
				if err == nil {
					break
				}
				if err == ErrCongested {
					time.Sleep(time.Millisecond)
					continue
				}
				return
			}
		}
	}()

	received := make([]string, 0, n)
	deadline := time.After(20 * time.Second)
	for len(received) < n {
		select {
		case <-deadline:
			t.Fatalf("timed out after receiving %d/%d messages", len(received), n)
		default:
		}
		_, _ = b.ReceiveBatchWith(n, func(seq uint32, payload []byte) {
			received = append(received, string(payload))
		})
		time.Sleep(time.Millisecond)
	}

	for i, msg := range received {
		require.Equal(t, fmt.Sprintf("msg-%d", i), msg)
	}

	time.Sleep(200 * time.Millisecond) // let trailing ACKs land
	stats := b.Stats()
	require.Equal(t, uint64(n), stats.Received)
	require.Equal(t, uint64(0), stats.Duplicates)

	aStats := a.Stats()
	require.GreaterOrEqual(t, aStats.Retransmitted, uint64(10))
}

// TestRoundTripZeroLoss checks the round-trip property: on a zero-loss
// socket, every message handed to Send is eventually delivered exactly
// once, with retransmitted == 0 and duplicates == 0.
func TestRoundTripZeroLoss(t *testing.T) {
	aAddr := freeUDPAddr(t)
	bAddr := freeUDPAddr(t)

	cfgA := DefaultConfig()
	cfgB := DefaultConfig()

	a, err := NewTransport(aAddr, bAddr, cfgA)
	require.NoError(t, err)
	defer a.Close()

	b, err := NewTransport(bAddr, aAddr, cfgB)
	require.NoError(t, err)
	defer b.Close()

	const n = 200
	go func() {
		for i := 0; i < n; i++ {
			msg := []byte(fmt.Sprintf("msg-%d", i))
			for {
				err := a.Send(msg)
				if err == nil {
					break
				}
				if err == ErrCongested {
					time.Sleep(time.Millisecond)
					continue
				}
				return
			}
		}
	}()

	received := make([]string, 0, n)
	deadline := time.After(5 * time.Second)
	for len(received) < n {
		select {
		case <-deadline:
			t.Fatalf("timed out after receiving %d/%d messages", len(received), n)
		default:
		}
		_, _ = b.ReceiveBatchWith(n, func(seq uint32, payload []byte) {
			received = append(received, string(payload))
		})
		time.Sleep(time.Millisecond)
	}

	for i, msg := range received {
		require.Equal(t, fmt.Sprintf("msg-%d", i), msg)
	}

	time.Sleep(50 * time.Millisecond) // let trailing ACKs land
	stats := b.Stats()
	require.Equal(t, uint64(n), stats.Received)
	require.Equal(t, uint64(0), stats.Duplicates)
	require.Equal(t, uint64(0), a.Stats().Retransmitted)
}

func TestSendRejectsOversizedPayload(t *testing.T) {
	aAddr := freeUDPAddr(t)
	bAddr := freeUDPAddr(t)
	cfg := DefaultConfig()
	cfg.MTU = 16

	a, err := NewTransport(aAddr, bAddr, cfg)
	require.NoError(t, err)
	defer a.Close()

	err = a.Send(make([]byte, 64))
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestCloseIsIdempotent(t *testing.T) {
	aAddr := freeUDPAddr(t)
	bAddr := freeUDPAddr(t)
	a, err := NewTransport(aAddr, bAddr, DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	err = a.Send([]byte("x"))
	require.ErrorIs(t, err, ErrClosed)
}
