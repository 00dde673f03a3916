package seqbase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts resolver activity. A nil *Metrics records nothing.
type Metrics struct {
	providers *prometheus.CounterVec
	fills     *prometheus.CounterVec
	downloads *prometheus.CounterVec
}

// NewMetrics creates resolver metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		providers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repseq",
			Subsystem: "resolver",
			Name:      "providers_created_total",
			Help:      "Sequence providers created, by resolver kind.",
		}, []string{"resolver"}),
		fills: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repseq",
			Subsystem: "resolver",
			Name:      "fills_total",
			Help:      "Provider fill attempts, by result.",
		}, []string{"result"}),
		downloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repseq",
			Subsystem: "resolver",
			Name:      "downloads_total",
			Help:      "Remote sequence files fetched, by scheme and result.",
		}, []string{"scheme", "result"}),
	}
}

func (m *Metrics) providerCreated(kind string) {
	if m == nil {
		return
	}
	m.providers.WithLabelValues(kind).Inc()
}

func (m *Metrics) fillDone(result string) {
	if m == nil {
		return
	}
	m.fills.WithLabelValues(result).Inc()
}

func (m *Metrics) downloadDone(scheme, result string) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(scheme, result).Inc()
}
