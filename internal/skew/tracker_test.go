package skew

import (
	"math"
	"sync"
	"testing"
)

func TestObserveWarmupFloor(t *testing.T) {
	tr := NewTracker()

	// First sample: undefined variance, floor substitutes.
	st := tr.Observe("NIFTY", 4.0)
	if st.StdDev != warmupFloor {
		t.Errorf("first sample stddev = %v, want %v", st.StdDev, warmupFloor)
	}
	if st.Mean != 4.0 {
		t.Errorf("first sample mean = %v, want 4.0", st.Mean)
	}
	// z uses the floor: (4.0 - 4.0) / 0.1 = 0.
	if st.ZScore != 0 {
		t.Errorf("first sample z = %v, want 0", st.ZScore)
	}
}

func TestObserveZScoreZeroDeviation(t *testing.T) {
	tr := NewTracker()
	tr.Observe("BANKNIFTY", 2.0)
	st := tr.Observe("BANKNIFTY", 2.0)

	// Two identical samples: population deviation is exactly 0, z is 0.
	if st.StdDev != 0 {
		t.Errorf("stddev = %v, want 0", st.StdDev)
	}
	if st.ZScore != 0 {
		t.Errorf("z = %v, want 0", st.ZScore)
	}
}

func TestObserveStats(t *testing.T) {
	tr := NewTracker()
	tr.Observe("INFY", 1.0)
	tr.Observe("INFY", 3.0)
	st := tr.Observe("INFY", 5.0)

	if math.Abs(st.Mean-3.0) > 1e-12 {
		t.Errorf("mean = %v, want 3.0", st.Mean)
	}
	wantSD := math.Sqrt((4.0 + 0.0 + 4.0) / 3.0)
	if math.Abs(st.StdDev-wantSD) > 1e-12 {
		t.Errorf("stddev = %v, want %v", st.StdDev, wantSD)
	}
	wantZ := (5.0 - 3.0) / wantSD
	if math.Abs(st.ZScore-wantZ) > 1e-12 {
		t.Errorf("z = %v, want %v", st.ZScore, wantZ)
	}
}

func TestCapacityEviction(t *testing.T) {
	tr := NewTracker()

	for i := 0; i < Capacity; i++ {
		tr.Observe("RELIANCE", float64(i))
	}
	if got := tr.Len("RELIANCE"); got != Capacity {
		t.Fatalf("len after %d observations = %d", Capacity, got)
	}

	// The 21st append evicts the oldest reading (0), so the mean shifts
	// from mean(0..19) to mean(1..20).
	st := tr.Observe("RELIANCE", float64(Capacity))
	if got := tr.Len("RELIANCE"); got != Capacity {
		t.Fatalf("len after eviction = %d, want %d", got, Capacity)
	}
	wantMean := float64(1+Capacity) / 2.0
	if math.Abs(st.Mean-wantMean) > 1e-12 {
		t.Errorf("mean after eviction = %v, want %v", st.Mean, wantMean)
	}
}

func TestSymbolsIsolated(t *testing.T) {
	tr := NewTracker()
	tr.Observe("TCS", 10)
	tr.Observe("WIPRO", -10)

	if got := tr.Len("TCS"); got != 1 {
		t.Errorf("TCS len = %d, want 1", got)
	}
	if got := tr.Len("WIPRO"); got != 1 {
		t.Errorf("WIPRO len = %d, want 1", got)
	}
}

func TestConcurrentObserve(t *testing.T) {
	tr := NewTracker()
	symbols := []string{"A", "B", "C", "D"}

	var wg sync.WaitGroup
	for _, sym := range symbols {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(sym string, v float64) {
				defer wg.Done()
				tr.Observe(sym, v)
			}(sym, float64(i))
		}
	}
	wg.Wait()

	for _, sym := range symbols {
		if got := tr.Len(sym); got != Capacity {
			t.Errorf("%s len = %d, want %d", sym, got, Capacity)
		}
	}
}
