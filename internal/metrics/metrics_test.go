package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if httpRequestsTotal == nil || frontierSize == nil || replicaCallsTotal == nil || indexWritesTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestGaugesAndCounters(t *testing.T) {
	SetFrontierSize(7)
	if val := testutil.ToFloat64(frontierSize); val != 7 {
		t.Errorf("expected frontier size 7, got %f", val)
	}

	ObserveReplicaCall("search-test", nil)
	ObserveReplicaCall("search-test", errors.New("boom"))
	if val := testutil.ToFloat64(replicaCallsTotal.WithLabelValues("search-test", "ok")); val != 1 {
		t.Errorf("expected 1 ok call, got %f", val)
	}
	if val := testutil.ToFloat64(replicaCallsTotal.WithLabelValues("search-test", "error")); val != 1 {
		t.Errorf("expected 1 failed call, got %f", val)
	}

	ObserveRateLimitDelay("metrics-test.example", 150*time.Millisecond)
	if val := testutil.CollectAndCount(rateLimitDelaySeconds); val <= 0 {
		t.Errorf("expected rate limit histogram to be observed, got %d", val)
	}

	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	if val := testutil.ToFloat64(activeWorkers); val != 1 {
		t.Errorf("expected 1 active worker, got %f", val)
	}
}

func TestSetStatisticsReplacesSeries(t *testing.T) {
	SetStatistics(map[string]int64{"r1:1": 4, "r2:1": 2}, map[string]float64{"r1:1": 1.5}, map[string]int64{"go": 3})
	if val := testutil.ToFloat64(replicaDocuments.WithLabelValues("r1:1")); val != 4 {
		t.Errorf("expected 4 rows for r1, got %f", val)
	}
	if val := testutil.ToFloat64(replicaResponseMs.WithLabelValues("r1:1")); val != 1.5 {
		t.Errorf("expected 1.5ms for r1, got %f", val)
	}

	SetStatistics(map[string]int64{"r2:1": 5}, nil, nil)
	if n := testutil.CollectAndCount(replicaDocuments); n != 1 {
		t.Errorf("expected one replica series after reset, got %d", n)
	}
	if n := testutil.CollectAndCount(topSearchHits); n != 0 {
		t.Errorf("expected no top search series, got %d", n)
	}
}
