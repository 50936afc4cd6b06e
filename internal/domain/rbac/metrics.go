package rbac

import "github.com/prometheus/client_golang/prometheus"

const (
	resultAllow = "allow"
	resultDeny  = "deny"
	resultError = "error"
)

// Metrics counts resolver decisions and permission cache lookups. A nil
// *Metrics records nothing.
type Metrics struct {
	checks        *prometheus.CounterVec
	cache         *prometheus.CounterVec
	invalidations *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "permission_checks_total",
			Help:      "Permission resolver decisions by check and result.",
		}, []string{"check", "result"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "permission_cache_lookups_total",
			Help:      "Permission cache lookups by result.",
		}, []string{"result"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "permission_cache_invalidations_total",
			Help:      "Permission cache invalidations by result. Failures leave stale sets until the cache TTL.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.checks, m.cache, m.invalidations)
	}
	return m
}

func (m *Metrics) decision(check string, allowed bool) {
	if m == nil {
		return
	}
	result := resultDeny
	if allowed {
		result = resultAllow
	}
	m.checks.WithLabelValues(check, result).Inc()
}

func (m *Metrics) failure(check string) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(check, resultError).Inc()
}

func (m *Metrics) cacheLookup(result string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(result).Inc()
}

func (m *Metrics) invalidation(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = resultError
	}
	m.invalidations.WithLabelValues(result).Inc()
}
