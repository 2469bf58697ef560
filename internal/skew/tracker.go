// Package skew maintains per-symbol rolling skew history and computes
// the skew-jump z-score used by the classifier.
package skew

import (
	"math"
	"sync"
)

// Window capacity and warm-up floor. With fewer than two samples the
// population deviation is undefined, so a fixed floor substitutes to
// suppress false triggers on the first events.
const (
	Capacity    = 20
	warmupFloor = 0.1
)

// Stats is the result of observing one skew reading.
type Stats struct {
	Mean   float64
	StdDev float64
	ZScore float64
}

// Tracker keeps a bounded FIFO of past skew readings per symbol.
// Histories are created lazily on first use and live for the process
// lifetime. Each symbol carries its own lock so concurrent evaluations
// of different symbols never serialize on each other.
type Tracker struct {
	mu       sync.RWMutex
	journals map[string]*history
}

type history struct {
	mu     sync.Mutex
	values []float64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{journals: make(map[string]*history)}
}

// Observe appends a skew reading to the symbol's history, evicting the
// oldest entry past capacity, and returns the statistics of the updated
// window. Append and statistics form one atomic unit per symbol.
func (t *Tracker) Observe(symbol string, skew float64) Stats {
	h := t.historyFor(symbol)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.values = append(h.values, skew)
	if len(h.values) > Capacity {
		h.values = h.values[1:]
	}

	mean := meanOf(h.values)

	sd := warmupFloor
	if len(h.values) >= 2 {
		sd = popStdDev(h.values, mean)
	}

	z := 0.0
	if sd != 0 {
		z = (skew - mean) / sd
	}

	return Stats{Mean: mean, StdDev: sd, ZScore: z}
}

// Len returns the current history length for a symbol.
func (t *Tracker) Len(symbol string) int {
	t.mu.RLock()
	h, ok := t.journals[symbol]
	t.mu.RUnlock()
	if !ok {
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.values)
}

func (t *Tracker) historyFor(symbol string) *history {
	t.mu.RLock()
	h, ok := t.journals[symbol]
	t.mu.RUnlock()
	if ok {
		return h
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok = t.journals[symbol]; ok {
		return h
	}
	h = &history{values: make([]float64, 0, Capacity)}
	t.journals[symbol] = h
	return h
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func popStdDev(values []float64, mean float64) float64 {
	var variance float64
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}
