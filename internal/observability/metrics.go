package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	metaerrors "github.com/arkilian/metatables/internal/errors"
	"github.com/arkilian/metatables/internal/metatable"
)

// Metrics holds the Prometheus metrics of metadata-table planning and
// execution.
type Metrics struct {
	ScansPlanned     *prometheus.CounterVec
	ManifestsPlanned *prometheus.CounterVec
	ManifestMentions *prometheus.CounterVec
	PlanningFailures *prometheus.CounterVec
	PlanningDuration *prometheus.HistogramVec
	RowsReturned     *prometheus.CounterVec
}

var _ metatable.PlanObserver = (*Metrics)(nil)

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	scansPlanned := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "metatables_scans_planned_total",
		Help: "Total successful metadata table scan plans",
	}, []string{"table_type"})

	manifestsPlanned := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "metatables_manifests_planned_total",
		Help: "Total scan tasks emitted, one per distinct manifest",
	}, []string{"table_type"})

	manifestMentions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "metatables_manifest_mentions_total",
		Help: "Total manifest references read from manifest lists before deduplication",
	}, []string{"table_type"})

	planningFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "metatables_planning_failures_total",
		Help: "Total failed metadata table scan plans by error category",
	}, []string{"table_type", "category"})

	planningDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "metatables_planning_duration_seconds",
		Help:    "Metadata table scan planning latency",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"table_type"})

	rowsReturned := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "metatables_rows_returned_total",
		Help: "Total rows returned by executed metadata table scans",
	}, []string{"table_type"})

	reg.MustRegister(scansPlanned, manifestsPlanned, manifestMentions, planningFailures, planningDuration, rowsReturned)

	// Export every series at zero before the first scan.
	for _, kind := range metatable.Types {
		tableType := string(kind)
		scansPlanned.WithLabelValues(tableType)
		manifestsPlanned.WithLabelValues(tableType)
		manifestMentions.WithLabelValues(tableType)
		planningDuration.WithLabelValues(tableType)
		rowsReturned.WithLabelValues(tableType)
	}

	return &Metrics{
		ScansPlanned:     scansPlanned,
		ManifestsPlanned: manifestsPlanned,
		ManifestMentions: manifestMentions,
		PlanningFailures: planningFailures,
		PlanningDuration: planningDuration,
		RowsReturned:     rowsReturned,
	}
}

// ObservePlan records one planning call.
func (m *Metrics) ObservePlan(tableType string, stats metatable.PlanStats, err error) {
	m.PlanningDuration.WithLabelValues(tableType).Observe(stats.Duration.Seconds())
	if err != nil {
		category := string(metaerrors.GetCategory(err))
		if category == "" {
			category = "UNKNOWN"
		}
		m.PlanningFailures.WithLabelValues(tableType, category).Inc()
		return
	}
	m.ScansPlanned.WithLabelValues(tableType).Inc()
	m.ManifestsPlanned.WithLabelValues(tableType).Add(float64(stats.Manifests))
	m.ManifestMentions.WithLabelValues(tableType).Add(float64(stats.ManifestMentions))
}
