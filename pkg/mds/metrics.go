package mds

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maesker/mdscore/pkg/partition"
)

// Metrics is A4: Prometheus instrumentation for partition ownership state and allocator
// exhaustion, supplementing the distilled spec per original_source/MetadataServer.cpp's
// periodic state logging.
var (
	partitionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mdscore",
		Subsystem: "partition",
		Name:      "state",
		Help:      "Current partition.State (0=read_only,1=active,2=migrating,3=inactive) by device id.",
	}, []string{"device_id"})

	allocatorExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mdscore",
		Subsystem: "inoalloc",
		Name:      "exhausted_total",
		Help:      "Count of inode-number allocation calls that failed because the rank's band was exhausted.",
	}, []string{"rank"})
)

// ObservePartitions refreshes the partition-state gauges from mgr's current snapshot.
func ObservePartitions(mgr *partition.Manager) {
	for _, p := range mgr.All() {
		partitionState.WithLabelValues(p.ID()).Set(float64(p.State()))
	}
}

// RecordAllocatorExhaustion increments the exhaustion counter for rank.
func RecordAllocatorExhaustion(rank uint32) {
	allocatorExhausted.WithLabelValues(itoa(uint64(rank))).Inc()
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// ServeMetrics starts the Prometheus HTTP endpoint at addr (spec A4).
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
