package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	metaerrors "github.com/arkilian/metatables/internal/errors"
	"github.com/arkilian/metatables/internal/metatable"
)

func TestMetrics_ObservePlanSuccess(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObservePlan("ALL_ENTRIES", metatable.PlanStats{Snapshots: 2, ManifestMentions: 4, Manifests: 3, Duration: 5 * time.Millisecond}, nil)
	m.ObservePlan("ALL_ENTRIES", metatable.PlanStats{Snapshots: 1, ManifestMentions: 1, Manifests: 1}, nil)

	require.Equal(t, float64(2), testutil.ToFloat64(m.ScansPlanned.WithLabelValues("ALL_ENTRIES")))
	require.Equal(t, float64(4), testutil.ToFloat64(m.ManifestsPlanned.WithLabelValues("ALL_ENTRIES")))
	require.Equal(t, float64(5), testutil.ToFloat64(m.ManifestMentions.WithLabelValues("ALL_ENTRIES")))
	require.Equal(t, 2, testutil.CollectAndCount(m.PlanningDuration), "one histogram per metadata table type")
}

func TestMetrics_ObservePlanFailure(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObservePlan("ENTRIES", metatable.PlanStats{}, metaerrors.NewIOError(metaerrors.CodeReadFailed, "boom", nil))
	m.ObservePlan("ENTRIES", metatable.PlanStats{}, errors.New("plain"))

	require.Equal(t, float64(1), testutil.ToFloat64(m.PlanningFailures.WithLabelValues("ENTRIES", "IO")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.PlanningFailures.WithLabelValues("ENTRIES", "UNKNOWN")))
	require.Equal(t, float64(0), testutil.ToFloat64(m.ScansPlanned.WithLabelValues("ENTRIES")))
}

func TestMetrics_Registration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	// The failures family is only gathered once a category has been seen.
	m.ObservePlan("ALL_ENTRIES", metatable.PlanStats{}, nil)
	m.ObservePlan("ALL_ENTRIES", metatable.PlanStats{}, errors.New("x"))
	m.RowsReturned.WithLabelValues("ALL_ENTRIES").Add(0)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 6)

	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	require.True(t, names["metatables_scans_planned_total"])
	require.True(t, names["metatables_planning_duration_seconds"])
	require.True(t, names["metatables_planning_failures_total"])
}

func TestMetrics_SeriesExportedBeforeFirstScan(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 5, "every family except planning failures is exported up front")

	for _, kind := range metatable.Types {
		require.Equal(t, float64(0), testutil.ToFloat64(m.ScansPlanned.WithLabelValues(string(kind))))
	}
	require.Equal(t, 2, testutil.CollectAndCount(m.ScansPlanned))
	require.Equal(t, 2, testutil.CollectAndCount(m.RowsReturned))
	require.Equal(t, 0, testutil.CollectAndCount(m.PlanningFailures))
}

func TestNewLogger_FormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "logfmt", "info")
	require.NoError(t, err)

	level.Debug(logger).Log("msg", "hidden")
	level.Info(logger).Log("msg", "shown", "table", "db.events")
	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "msg=shown")
	require.Contains(t, out, "table=db.events")

	buf.Reset()
	logger, err = newLogger(&buf, "json", "debug")
	require.NoError(t, err)
	level.Debug(logger).Log("msg", "visible")
	require.True(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "{"))
	require.Contains(t, buf.String(), `"msg":"visible"`)

	_, err = newLogger(&buf, "xml", "info")
	require.Error(t, err)
	_, err = newLogger(&buf, "logfmt", "trace")
	require.Error(t, err)
}
