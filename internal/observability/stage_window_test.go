package observability

import "testing"

func TestStageWindowSnapshot(t *testing.T) {
	w := newStageWindow(8)
	w.Observe(StageAnalysisTotal, 100)
	w.Observe(StageAnalysisTotal, 300)
	w.Observe(StageAnalysisTotal, 500)
	w.ObserveIndicator("apology")
	w.ObserveIndicator("apology")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageAnalysisTotal {
		t.Fatalf("Stage = %q, want %q", s.Stage, StageAnalysisTotal)
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 500 {
		t.Fatalf("LastMS = %.2f, want 500", s.LastMS)
	}
	if s.P50MS != 300 {
		t.Fatalf("P50MS = %.2f, want 300", s.P50MS)
	}
	if s.P95MS != 500 {
		t.Fatalf("P95MS = %.2f, want 500", s.P95MS)
	}
	if s.TargetP95MS != 400 {
		t.Fatalf("TargetP95MS = %.2f, want 400", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Name != "apology" || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v, want apology x2", snap.Indicators)
	}
}

func TestStageWindowRingOverwritesOldest(t *testing.T) {
	w := newStageWindow(2)
	w.Observe(StageCompletion, 10)
	w.Observe(StageCompletion, 20)
	w.Observe(StageCompletion, 30)
	w.Observe("", 40)
	w.Observe(StageCompletion, -1)

	snap := w.Snapshot()
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Samples != 2 {
		t.Fatalf("Samples = %d, want 2", s.Samples)
	}
	if s.AvgMS != 25 {
		t.Fatalf("AvgMS = %.2f, want 25 (10 evicted)", s.AvgMS)
	}
	if s.LastMS != 30 {
		t.Fatalf("LastMS = %.2f, want 30", s.LastMS)
	}
}
