package metrics

import "github.com/prometheus/client_golang/prometheus"

// SnapshotCacheMetrics counts order snapshot cache lookups.
type SnapshotCacheMetrics struct {
	lookups *prometheus.CounterVec
}

func NewSnapshotCacheMetrics(reg prometheus.Registerer) *SnapshotCacheMetrics {
	if reg == nil {
		return &SnapshotCacheMetrics{}
	}
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshot_cache_lookups_total",
		Help:      "Order snapshot cache lookups by result.",
	}, []string{"result"})
	reg.MustRegister(lookups)
	return &SnapshotCacheMetrics{lookups: lookups}
}

func (m *SnapshotCacheMetrics) Hit() { m.inc("hit") }

func (m *SnapshotCacheMetrics) Miss() { m.inc("miss") }

func (m *SnapshotCacheMetrics) Error() { m.inc("error") }

func (m *SnapshotCacheMetrics) inc(result string) {
	if m == nil || m.lookups == nil {
		return
	}
	m.lookups.WithLabelValues(result).Inc()
}
