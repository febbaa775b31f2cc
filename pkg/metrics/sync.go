package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics records counters for the change-feed sync pipeline and the
// outbound notification fan-out.
type SyncMetrics struct {
	eventsApplied  *prometheus.CounterVec
	eventsBuffered *prometheus.CounterVec
	staleRejected  prometheus.Counter
	mailsSent      *prometheus.CounterVec
	mailsFailed    *prometheus.CounterVec
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	eventsApplied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_events_applied_total",
		Help: "Change-feed events applied to the entity store.",
	}, []string{"table", "op"})
	eventsBuffered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_events_buffered_total",
		Help: "Change-feed events buffered while bootstrap was pending.",
	}, []string{"table"})
	staleRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_stale_updates_rejected_total",
		Help: "Ticket updates discarded by the stale-event guard.",
	})
	mailsSent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fanout_mails_sent_total",
		Help: "Notification emails accepted by the delivery service.",
	}, []string{"kind"})
	mailsFailed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fanout_mails_failed_total",
		Help: "Notification emails the delivery service rejected.",
	}, []string{"kind"})
	reg.MustRegister(eventsApplied, eventsBuffered, staleRejected, mailsSent, mailsFailed)
	return &SyncMetrics{
		eventsApplied:  eventsApplied,
		eventsBuffered: eventsBuffered,
		staleRejected:  staleRejected,
		mailsSent:      mailsSent,
		mailsFailed:    mailsFailed,
	}
}

// IncApplied increments the applied counter for the given table and op.
func (s *SyncMetrics) IncApplied(table, op string) {
	if s == nil || s.eventsApplied == nil {
		return
	}
	s.eventsApplied.WithLabelValues(normalizeLabel(table), normalizeLabel(op)).Inc()
}

// IncBuffered increments the buffered counter for the given table.
func (s *SyncMetrics) IncBuffered(table string) {
	if s == nil || s.eventsBuffered == nil {
		return
	}
	s.eventsBuffered.WithLabelValues(normalizeLabel(table)).Inc()
}

// IncStaleRejected counts one stale-guard rejection.
func (s *SyncMetrics) IncStaleRejected() {
	if s == nil || s.staleRejected == nil {
		return
	}
	s.staleRejected.Inc()
}

// IncMailSent counts one accepted delivery for the notification kind.
func (s *SyncMetrics) IncMailSent(kind string) {
	if s == nil || s.mailsSent == nil {
		return
	}
	s.mailsSent.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncMailFailed counts one failed delivery for the notification kind.
func (s *SyncMetrics) IncMailFailed(kind string) {
	if s == nil || s.mailsFailed == nil {
		return
	}
	s.mailsFailed.WithLabelValues(normalizeLabel(kind)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
