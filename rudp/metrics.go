package rudp

import "github.com/prometheus/client_golang/prometheus"

// transportMetrics mirrors Stats as live Prometheus series, following
// arcentrix-arcentra's NewCounterVec/NewGaugeVec + registry.Register
// pattern. Registration is lazy and optional: a Transport built without a
// *prometheus.Registry never touches this type.
type transportMetrics struct {
	sent           prometheus.Counter
	received       prometheus.Counter
	retransmitted  prometheus.Counter
	acksOut        prometheus.Counter
	naksIn         prometheus.Counter
	duplicates     prometheus.Counter
	cwnd           prometheus.Gauge
}

func newTransportMetrics() *transportMetrics {
	return &transportMetrics{
		sent:          prometheus.NewCounter(prometheus.CounterOpts{Name: "rudp_sent_total", Help: "Data packets sent"}),
		received:      prometheus.NewCounter(prometheus.CounterOpts{Name: "rudp_received_total", Help: "Data packets received"}),
		retransmitted: prometheus.NewCounter(prometheus.CounterOpts{Name: "rudp_retransmitted_total", Help: "Data packets retransmitted"}),
		acksOut:       prometheus.NewCounter(prometheus.CounterOpts{Name: "rudp_acks_out_total", Help: "ACK packets sent"}),
		naksIn:        prometheus.NewCounter(prometheus.CounterOpts{Name: "rudp_naks_in_total", Help: "NAK packets received"}),
		duplicates:    prometheus.NewCounter(prometheus.CounterOpts{Name: "rudp_duplicates_total", Help: "Duplicate packets discarded"}),
		cwnd:          prometheus.NewGauge(prometheus.GaugeOpts{Name: "rudp_cwnd", Help: "Current congestion window"}),
	}
}

// register adds every series to registry, returning the first registration
// error encountered (mirrors RegisterHttpMetrics's short-circuit style).
func (m *transportMetrics) register(registry *prometheus.Registry) error {
	for _, c := range []prometheus.Collector{m.sent, m.received, m.retransmitted, m.acksOut, m.naksIn, m.duplicates, m.cwnd} {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}
