package obslog

import "testing"

func TestMockMetrics_RecordsCountsAndHists(t *testing.T) {
	m := NewMockMetrics()
	m.IncCounter("ingest_memcell_total", map[string]string{"group_id": "g1"})
	m.IncCounter("ingest_memcell_total", map[string]string{"group_id": "g1"})
	m.ObserveHistogram("ingest_stage_ms", 12, map[string]string{"stage": "boundary"})
	m.ObserveHistogram("ingest_stage_ms", 34, map[string]string{"stage": "sync"})
	if m.Counters["ingest_memcell_total"] != 2 {
		t.Fatalf("expected 2, got %d", m.Counters["ingest_memcell_total"])
	}
	if len(m.Hists["ingest_stage_ms"]) != 2 {
		t.Fatalf("expected 2 histogram records, got %d", len(m.Hists["ingest_stage_ms"]))
	}
}

func TestZeroLogger_Levels(t *testing.T) {
	l := New("debug")
	l.Info("hello", map[string]any{"k": "v"})
	l.Debug("world", nil)
	l.Warn("careful", map[string]any{"n": 1})
	l.Error("boom", map[string]any{"err": "x"})
}
