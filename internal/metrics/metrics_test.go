package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://www.LinkedIn.com/jobs-guest/jobs/api", "www.linkedin.com"},
		{"no scheme", "linkedin.com/jobs", "linkedin.com"},
		{"host with port", "127.0.0.1:8080", "127.0.0.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestObserveNavigation(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(scraperNavigationsTotal.WithLabelValues("metrics.test", "colly", "ok"))
	ObserveNavigation("https://metrics.test/jobs", "colly", "ok", 2048)
	after := testutil.ToFloat64(scraperNavigationsTotal.WithLabelValues("metrics.test", "colly", "ok"))
	require.InDelta(t, 1, after-before, 0.0001)
	require.InDelta(t, 2048, testutil.ToFloat64(scraperBytesTotal.WithLabelValues("metrics.test")), 0.0001)
}

func TestObserveRunAndSessions(t *testing.T) {
	Init()
	before := testutil.ToFloat64(scraperRunsTotal.WithLabelValues("metrics_test"))
	ObserveRun("metrics_test", 3*time.Second)
	require.InDelta(t, 1, testutil.ToFloat64(scraperRunsTotal.WithLabelValues("metrics_test"))-before, 0.0001)

	gauge := testutil.ToFloat64(scraperActiveSessions)
	IncActiveSessions()
	require.InDelta(t, gauge+1, testutil.ToFloat64(scraperActiveSessions), 0.0001)
	DecActiveSessions()
	require.InDelta(t, gauge, testutil.ToFloat64(scraperActiveSessions), 0.0001)
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://www.linkedin.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
