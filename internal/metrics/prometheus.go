package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the voice link. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	// Outbound
	FramesSent      *prometheus.CounterVec
	MessagesSent    *prometheus.CounterVec
	MessagesQueued  *prometheus.CounterVec
	MessagesDropped *prometheus.CounterVec
	QueueDepth      *prometheus.GaugeVec

	// Inbound
	EventsReceived   *prometheus.CounterVec
	DuplicateChunks  *prometheus.CounterVec
	DecodeErrors     *prometheus.CounterVec
	ProtocolErrors   *prometheus.CounterVec
	PlaybackBuffers  *prometheus.CounterVec
	PlaybackDropped  *prometheus.CounterVec
	PlaybackDuration prometheus.Histogram

	// Connection
	Connected         *prometheus.GaugeVec
	ReconnectAttempts *prometheus.CounterVec
}

// New registers all collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	agent := []string{"agent_id"}

	return &Metrics{
		FramesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicelink_audio_frames_sent_total",
			Help: "Total number of input audio frames written to the socket",
		}, agent),
		MessagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicelink_messages_sent_total",
			Help: "Total number of client messages written to the socket",
		}, []string{"agent_id", "type"}),
		MessagesQueued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicelink_messages_queued_total",
			Help: "Total number of messages queued while the connection was not ready",
		}, agent),
		MessagesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicelink_messages_dropped_total",
			Help: "Total number of messages rejected by a full outbound queue",
		}, agent),
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voicelink_outbound_queue_depth",
			Help: "Current number of messages waiting for the connection",
		}, agent),

		EventsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicelink_events_received_total",
			Help: "Total number of server events received",
		}, []string{"agent_id", "type"}),
		DuplicateChunks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicelink_duplicate_chunks_total",
			Help: "Total number of inbound audio chunks discarded as duplicates",
		}, agent),
		DecodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicelink_decode_errors_total",
			Help: "Total number of inbound messages or audio chunks that failed to decode",
		}, agent),
		ProtocolErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicelink_protocol_errors_total",
			Help: "Total number of error events by classification",
		}, []string{"agent_id", "class"}),
		PlaybackBuffers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicelink_playback_buffers_total",
			Help: "Total number of audio buffers rendered",
		}, agent),
		PlaybackDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicelink_playback_dropped_total",
			Help: "Total number of audio buffers dropped by a full playback queue",
		}, agent),
		PlaybackDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicelink_playback_buffer_seconds",
			Help:    "Rendered duration of each playback buffer",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		}),

		Connected: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voicelink_connected",
			Help: "Whether the realtime connection is open and ready",
		}, agent),
		ReconnectAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicelink_reconnect_attempts_total",
			Help: "Total number of scheduled reconnect attempts",
		}, agent),
	}
}

func (m *Metrics) FrameSent(agentID string) {
	if m == nil {
		return
	}
	m.FramesSent.WithLabelValues(agentID).Inc()
}

func (m *Metrics) MessageSent(agentID, eventType string) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(agentID, eventType).Inc()
}

func (m *Metrics) MessageQueued(agentID string, depth int) {
	if m == nil {
		return
	}
	m.MessagesQueued.WithLabelValues(agentID).Inc()
	m.QueueDepth.WithLabelValues(agentID).Set(float64(depth))
}

func (m *Metrics) MessageDropped(agentID string) {
	if m == nil {
		return
	}
	m.MessagesDropped.WithLabelValues(agentID).Inc()
}

func (m *Metrics) SetQueueDepth(agentID string, depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(agentID).Set(float64(depth))
}

func (m *Metrics) EventReceived(agentID, eventType string) {
	if m == nil {
		return
	}
	m.EventsReceived.WithLabelValues(agentID, eventType).Inc()
}

func (m *Metrics) DuplicateChunk(agentID string) {
	if m == nil {
		return
	}
	m.DuplicateChunks.WithLabelValues(agentID).Inc()
}

func (m *Metrics) DecodeError(agentID string) {
	if m == nil {
		return
	}
	m.DecodeErrors.WithLabelValues(agentID).Inc()
}

func (m *Metrics) ProtocolError(agentID, class string) {
	if m == nil {
		return
	}
	m.ProtocolErrors.WithLabelValues(agentID, class).Inc()
}

func (m *Metrics) BufferPlayed(agentID string, seconds float64) {
	if m == nil {
		return
	}
	m.PlaybackBuffers.WithLabelValues(agentID).Inc()
	m.PlaybackDuration.Observe(seconds)
}

func (m *Metrics) BufferDropped(agentID string) {
	if m == nil {
		return
	}
	m.PlaybackDropped.WithLabelValues(agentID).Inc()
}

func (m *Metrics) SetConnected(agentID string, connected bool) {
	if m == nil {
		return
	}
	v := 0.0
	if connected {
		v = 1
	}
	m.Connected.WithLabelValues(agentID).Set(v)
}

func (m *Metrics) ReconnectAttempt(agentID string) {
	if m == nil {
		return
	}
	m.ReconnectAttempts.WithLabelValues(agentID).Inc()
}
