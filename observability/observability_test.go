package observability

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.TempDir()+"/metrics.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := Init(db); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestRecordAndQuery(t *testing.T) {
	db := newTestDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)

	mm.RecordSimple(MetricExtractCount, 1, "count")
	mm.RecordDuration(MetricExtractDurationMs, 250*time.Millisecond, map[string]string{"format": "pdf"})
	if err := mm.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := mm.Query("", nil, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d metrics, want 2", len(got))
	}

	durations, err := mm.Query(MetricExtractDurationMs, nil, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(durations) != 1 {
		t.Fatalf("got %d duration metrics, want 1", len(durations))
	}
	m := durations[0]
	if m.Value != 250 {
		t.Errorf("value = %v, want 250", m.Value)
	}
	if m.Unit != "milliseconds" {
		t.Errorf("unit = %q", m.Unit)
	}
	if m.Labels["format"] != "pdf" {
		t.Errorf("labels = %v", m.Labels)
	}
}

func TestBufferFlushesWhenFull(t *testing.T) {
	db := newTestDB(t)
	mm := NewMetricsManager(db, 3, time.Hour)
	defer mm.Close()

	for i := 0; i < 3; i++ {
		mm.RecordSimple(MetricCacheHits, float64(i), "count")
	}

	// Buffer size reached: the third Record flushes inline, no ticker or
	// Close needed.
	got, err := mm.Query(MetricCacheHits, nil, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d metrics, want 3", len(got))
	}
}

func TestQueryFilters(t *testing.T) {
	db := newTestDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)

	now := time.Now()
	mm.Record(&Metric{Name: MetricExtractCount, Timestamp: now.Add(-2 * time.Hour), Value: 1, Unit: "count"})
	mm.Record(&Metric{Name: MetricExtractCount, Timestamp: now, Value: 2, Unit: "count"})
	if err := mm.Close(); err != nil {
		t.Fatal(err)
	}

	start := now.Add(-time.Hour)
	got, err := mm.Query(MetricExtractCount, &start, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d metrics in range, want 1", len(got))
	}
	if got[0].Value != 2 {
		t.Errorf("value = %v, want 2", got[0].Value)
	}

	limited, err := mm.Query(MetricExtractCount, nil, nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Fatalf("got %d metrics with limit 1, want 1", len(limited))
	}
	// DESC order: the most recent datapoint comes first.
	if limited[0].Value != 2 {
		t.Errorf("limited value = %v, want 2", limited[0].Value)
	}
}

func TestCleanup(t *testing.T) {
	db := newTestDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)

	now := time.Now()
	mm.Record(&Metric{Name: MetricExtractErrors, Timestamp: now.AddDate(0, 0, -30), Value: 1, Unit: "count"})
	mm.Record(&Metric{Name: MetricExtractErrors, Timestamp: now, Value: 1, Unit: "count"})
	if err := mm.Close(); err != nil {
		t.Fatal(err)
	}

	removed, err := mm.Cleanup(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	got, err := mm.Query(MetricExtractErrors, nil, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d metrics after cleanup, want 1", len(got))
	}
}
