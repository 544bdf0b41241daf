package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(httpRequestErrors.WithLabelValues("answer", http.MethodPost))
	ObserveHTTPRequest("answer", http.MethodPost, http.StatusBadRequest, 3*time.Millisecond)
	ObserveHTTPRequest("answer", http.MethodPost, http.StatusOK, time.Millisecond)

	if got := testutil.ToFloat64(httpRequestErrors.WithLabelValues("answer", http.MethodPost)); got != before+1 {
		t.Fatalf("expected one more error, got %v (before %v)", got, before)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("answer", http.MethodPost, "200")); got < 1 {
		t.Fatalf("expected request counter to be incremented, got %v", got)
	}
}

func TestObserveQueryDefaultsLabels(t *testing.T) {
	before := testutil.ToFloat64(queriesTotal.WithLabelValues("no_match", "none"))
	ObserveQuery("no_match", "", "", time.Millisecond)
	if got := testutil.ToFloat64(queriesTotal.WithLabelValues("no_match", "none")); got != before+1 {
		t.Fatalf("unexpected counter value %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	ObserveStep("calculator", "add", time.Millisecond)
	ObserveTask("succeeded")
	ObserveTaskRetry()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body failed: %v", err)
	}
	for _, name := range []string{
		"querychain_step_duration_seconds_bucket",
		"querychain_tasks_total",
		"querychain_task_retries_total",
	} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("metric %s missing from scrape output", name)
		}
	}
}
