package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the service counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Scans        *prometheus.CounterVec
	Logins       *prometheus.CounterVec
	DeviceResets *prometheus.CounterVec
	Overrides    prometheus.Counter
	AuditEvents  *prometheus.CounterVec
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "scans_total",
			Help:      "QR scan verifications by outcome.",
		}, []string{"outcome"}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "logins_total",
			Help:      "Login attempts by role and outcome.",
		}, []string{"role", "outcome"}),
		DeviceResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "device_resets_total",
			Help:      "Device binding resets by initiator.",
		}, []string{"by"}),
		Overrides: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "manual_marks_total",
			Help:      "Roster rows applied through manual attendance.",
		}),
		AuditEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "audit_events_total",
			Help:      "Scan audit events handled by the consumer.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Scans, m.Logins, m.DeviceResets, m.Overrides, m.AuditEvents)
	}
	return m
}

func (m *Metrics) Scan(outcome string) {
	if m == nil {
		return
	}
	m.Scans.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Login(role, outcome string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(role, outcome).Inc()
}

func (m *Metrics) DeviceReset(by string) {
	if m == nil {
		return
	}
	m.DeviceResets.WithLabelValues(by).Inc()
}

func (m *Metrics) ManualMarks(n int) {
	if m == nil {
		return
	}
	m.Overrides.Add(float64(n))
}

func (m *Metrics) Audit(result string) {
	if m == nil {
		return
	}
	m.AuditEvents.WithLabelValues(result).Inc()
}
