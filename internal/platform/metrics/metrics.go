// Package metrics exposes Prometheus counters for identity construction,
// salt loading and signing activity. A nil *Metrics records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "device_identity"

type Metrics struct {
	constructions *prometheus.CounterVec
	saltLoads     *prometheus.CounterVec
	signatures    *prometheus.CounterVec
	verifications *prometheus.CounterVec
}

// New creates the counters and registers them on reg. A nil reg leaves
// them unregistered, which is what tests usually want.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		constructions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "constructions_total",
			Help:      "Signing identity constructions by result.",
		}, []string{"result"}),
		saltLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "salt_loads_total",
			Help:      "Device salt resolutions by source.",
		}, []string{"source"}),
		signatures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signatures_total",
			Help:      "Signatures produced by kind.",
		}, []string{"kind"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Signature verifications by result.",
		}, []string{"result"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.constructions, m.saltLoads, m.signatures, m.verifications} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObserveConstruction(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.constructions.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveSaltLoad(source string) {
	if m == nil {
		return
	}
	m.saltLoads.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveSignature(kind string) {
	if m == nil {
		return
	}
	m.signatures.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveVerification(ok bool) {
	if m == nil {
		return
	}
	result := "valid"
	if !ok {
		result = "invalid"
	}
	m.verifications.WithLabelValues(result).Inc()
}

// Constructions returns the counter for result, for assertions in tests of
// dependent packages.
func (m *Metrics) Constructions(result string) prometheus.Counter {
	return m.constructions.WithLabelValues(result)
}

func (m *Metrics) SaltLoads(source string) prometheus.Counter {
	return m.saltLoads.WithLabelValues(source)
}

func (m *Metrics) Signatures(kind string) prometheus.Counter {
	return m.signatures.WithLabelValues(kind)
}

func (m *Metrics) Verifications(result string) prometheus.Counter {
	return m.verifications.WithLabelValues(result)
}
