package oaipoll

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts harvesting activity per endpoint. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	requests       *prometheus.CounterVec
	records        *prometheus.CounterVec
	protocolErrors *prometheus.CounterVec
	cycles         *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oaipoll",
			Name:      "requests_total",
			Help:      "OAI-PMH requests issued.",
		}, []string{"endpoint"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oaipoll",
			Name:      "records_total",
			Help:      "Records dispatched to the sink.",
		}, []string{"endpoint"}),
		protocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oaipoll",
			Name:      "protocol_errors_total",
			Help:      "OAI-PMH errors by code and kind.",
		}, []string{"endpoint", "code", "kind"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oaipoll",
			Name:      "cycles_total",
			Help:      "Finished harvest cycles by status.",
		}, []string{"endpoint", "status"}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.records, m.protocolErrors, m.cycles} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) request(endpoint string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) record(endpoint string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) protocolError(endpoint string, e OAIError) {
	if m == nil {
		return
	}
	kind := "operational"
	if e.Code.Informational() {
		kind = "informational"
	}
	m.protocolErrors.WithLabelValues(endpoint, string(e.Code), kind).Inc()
}

func (m *Metrics) cycle(endpoint string, s Status) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(endpoint, s.String()).Inc()
}
