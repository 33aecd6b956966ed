package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects protocol metrics into its own registry. One instance
// belongs to one Network. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	channelsOpen   *prometheus.GaugeVec
	channelsClosed *prometheus.CounterVec
	participants   prometheus.Gauge
	streamsOpen    *prometheus.GaugeVec
	frames         *prometheus.CounterVec
	wireBytes      *prometheus.CounterVec
	messages       *prometheus.CounterVec
	messageBytes   *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	scheduled      *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with a fresh
// registry.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		channelsOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "open",
			Help:      "Channels currently open, by transport.",
		}, []string{"transport"}),
		channelsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "closed_total",
			Help:      "Channels closed, by transport and reason.",
		}, []string{"transport", "reason"}),
		participants: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "participant",
			Name:      "connected",
			Help:      "Participants currently connected.",
		}),
		streamsOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "open",
			Help:      "Streams currently open, by channel.",
		}, []string{"channel"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "frames_total",
			Help:      "Frames sent and received.",
		}, []string{"channel", "direction", "frame"}),
		wireBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "bytes_total",
			Help:      "Encoded frame bytes sent and received.",
		}, []string{"channel", "direction"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "message",
			Name:      "total",
			Help:      "Messages queued for sending and delivered to streams.",
		}, []string{"channel", "stream", "direction"}),
		messageBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "message",
			Name:      "bytes_total",
			Help:      "Payload bytes of messages sent and delivered.",
		}, []string{"channel", "stream", "direction"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "message",
			Name:      "dropped_total",
			Help:      "Messages and frames dropped, by reason.",
		}, []string{"channel", "reason"}),
		scheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prio",
			Name:      "scheduled_bytes_total",
			Help:      "Bytes selected for the wire by the priority manager.",
		}, []string{"channel"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "prio",
			Name:      "queued_messages",
			Help:      "Unfinished outgoing messages.",
		}, []string{"channel"}),
	}
	m.registry.MustRegister(
		m.channelsOpen, m.channelsClosed, m.participants, m.streamsOpen,
		m.frames, m.wireBytes, m.messages, m.messageBytes, m.dropped,
		m.scheduled, m.queueDepth,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ChannelOpened(transport string) {
	if m == nil {
		return
	}
	m.channelsOpen.WithLabelValues(transport).Inc()
}

// ChannelClosed records a closed channel and forgets its per channel series.
func (m *Metrics) ChannelClosed(cid, transport, reason string) {
	if m == nil {
		return
	}
	m.channelsOpen.WithLabelValues(transport).Dec()
	m.channelsClosed.WithLabelValues(transport, reason).Inc()
	labels := prometheus.Labels{"channel": cid}
	for _, v := range []interface{ DeletePartialMatch(prometheus.Labels) int }{
		m.streamsOpen, m.frames, m.wireBytes, m.messages, m.messageBytes,
		m.dropped, m.scheduled, m.queueDepth,
	} {
		v.DeletePartialMatch(labels)
	}
}

func (m *Metrics) ParticipantConnected() {
	if m == nil {
		return
	}
	m.participants.Inc()
}

func (m *Metrics) ParticipantDisconnected() {
	if m == nil {
		return
	}
	m.participants.Dec()
}

func (m *Metrics) StreamOpened(cid string) {
	if m == nil {
		return
	}
	m.streamsOpen.WithLabelValues(cid).Inc()
}

func (m *Metrics) StreamClosed(cid string) {
	if m == nil {
		return
	}
	m.streamsOpen.WithLabelValues(cid).Dec()
}

func (m *Metrics) FrameOut(cid, frame string, size int) {
	m.frame(cid, "out", frame, size)
}

func (m *Metrics) FrameIn(cid, frame string, size int) {
	m.frame(cid, "in", frame, size)
}

func (m *Metrics) frame(cid, dir, frame string, size int) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(cid, dir, frame).Inc()
	m.wireBytes.WithLabelValues(cid, dir).Add(float64(size))
}

func (m *Metrics) MessageOut(cid string, sid uint64, size int) {
	m.message(cid, sid, "out", size)
}

func (m *Metrics) MessageIn(cid string, sid uint64, size int) {
	m.message(cid, sid, "in", size)
}

func (m *Metrics) message(cid string, sid uint64, dir string, size int) {
	if m == nil {
		return
	}
	s := strconv.FormatUint(sid, 10)
	m.messages.WithLabelValues(cid, s, dir).Inc()
	m.messageBytes.WithLabelValues(cid, s, dir).Add(float64(size))
}

func (m *Metrics) Dropped(cid, reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.dropped.WithLabelValues(cid, reason).Add(float64(n))
}

func (m *Metrics) ScheduledBytes(cid string, n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.scheduled.WithLabelValues(cid).Add(float64(n))
}

func (m *Metrics) QueueDepth(cid string, n int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(cid).Set(float64(n))
}
