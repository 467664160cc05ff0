package telemetry

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// ---------------------------------------------------------------------------
// Registration: Describe() rather than Gather(), since unused *Vec metrics are
// absent from Gather output even when registered.
// ---------------------------------------------------------------------------

func TestMetrics_AllRegistered(t *testing.T) {
	cases := []struct {
		name string
		c    prometheus.Collector
	}{
		{"http_requests_total", HTTPRequestsTotal},
		{"http_request_duration_seconds", HTTPRequestDuration},
		{"addon_uploads_total", AddonUploadsTotal},
		{"ingest_compensations_total", IngestCompensationsTotal},
		{"svg_icons_sanitized_total", SVGIconsSanitizedTotal},
		{"package_downloads_total", PackageDownloadsTotal},
		{"orphan_packages_reconciled_total", OrphanPackagesReconciledTotal},
		{"db_open_connections", DBOpenConnections},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := make(chan *prometheus.Desc, 10)
			tc.c.Describe(ch)
			close(ch)
			for desc := range ch {
				if strings.Contains(desc.String(), `"`+tc.name+`"`) {
					return
				}
			}
			t.Errorf("metric %q: Describe() returned no descriptor with this fqName", tc.name)
		})
	}
}

func TestMetrics_AddonUploadsTotal(t *testing.T) {
	labels := prometheus.Labels{"kind": "archive", "result": "rejected"}
	before := counterValue(t, AddonUploadsTotal, labels)
	AddonUploadsTotal.With(labels).Inc()
	if after := counterValue(t, AddonUploadsTotal, labels); after-before != 1 {
		t.Errorf("counter moved by %.0f, want 1", after-before)
	}
}

func TestMetrics_PlainCounters(t *testing.T) {
	for name, c := range map[string]prometheus.Counter{
		"package_downloads_total":          PackageDownloadsTotal,
		"orphan_packages_reconciled_total": OrphanPackagesReconciledTotal,
		"svg_icons_sanitized_total":        SVGIconsSanitizedTotal,
	} {
		before := plainCounterValue(t, c)
		c.Inc()
		if after := plainCounterValue(t, c); after-before != 1 {
			t.Errorf("%s moved by %.0f, want 1", name, after-before)
		}
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// counterValue reads the current value of a CounterVec for the given label set.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labels prometheus.Labels) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 20)
	cv.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		if labelsMatch(dm.GetLabel(), labels) {
			return dm.GetCounter().GetValue()
		}
	}
	return 0
}

// plainCounterValue reads the value of a plain (non-vec) Counter.
func plainCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var dm dto.Metric
	if err := c.Write(&dm); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return dm.GetCounter().GetValue()
}

// labelsMatch returns true when all entries in want appear in got.
func labelsMatch(got []*dto.LabelPair, want prometheus.Labels) bool {
	for k, v := range want {
		found := false
		for _, lp := range got {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
