package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeHost(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeHost(tc.input); got != tc.expected {
				t.Errorf("SanitizeHost(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if scrapperFetchesTotal == nil || scrapperBytesTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	scrapperFetchesTotal.WithLabelValues("test.com", "200").Inc()
	if val := testutil.ToFloat64(scrapperFetchesTotal.WithLabelValues("test.com", "200")); val != 1 {
		t.Errorf("Expected fetches counter to be 1, got %f", val)
	}
}

func TestObserveRecordAndRun(t *testing.T) {
	Init()

	ObserveRecord("odisha-rera", "new")
	ObserveRecord("odisha-rera", "duplicate")
	ObserveRun("succeeded")

	if val := testutil.ToFloat64(scrapperRecordsTotal.WithLabelValues("odisha-rera", "new")); val < 1 {
		t.Errorf("expected new record counter >= 1, got %f", val)
	}
	if val := testutil.ToFloat64(scrapperRunsTotal.WithLabelValues("succeeded")); val < 1 {
		t.Errorf("expected succeeded runs counter >= 1, got %f", val)
	}
}

func TestHandlerNotNil(t *testing.T) {
	if Handler() == nil {
		t.Fatal("expected metrics handler")
	}
}
