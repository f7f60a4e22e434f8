package observability

import (
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// Stage names observed by the chat relay and the image analyzer.
const (
	StageChatTurn        = "chat_turn"
	StageCompletion      = "completion"
	StageFirstDelta      = "completion_first_delta"
	StageAnalysisDecode  = "analysis_decode"
	StageAnalysisCompute = "analysis_compute"
	StageAnalysisTotal   = "analysis_total"
)

var stageTargetsP95MS = map[string]float64{
	StageChatTurn:        6500,
	StageCompletion:      6000,
	StageFirstDelta:      1500,
	StageAnalysisDecode:  150,
	StageAnalysisCompute: 250,
	StageAnalysisTotal:   400,
}

type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

type Indicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type StageSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
	Indicators  []Indicator  `json:"indicators,omitempty"`
}

// stageWindow keeps the most recent maxSamples latencies per stage, oldest
// first.
type stageWindow struct {
	mu         sync.Mutex
	maxSamples int
	samples    map[string][]float64
	indicators map[string]int
}

func newStageWindow(maxSamples int) *stageWindow {
	if maxSamples <= 0 {
		maxSamples = 256
	}
	return &stageWindow{
		maxSamples: maxSamples,
		samples:    make(map[string][]float64),
		indicators: make(map[string]int),
	}
}

func (w *stageWindow) Observe(stage string, ms float64) {
	if stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	s := append(w.samples[stage], ms)
	if len(s) > w.maxSamples {
		s = slices.Delete(s, 0, len(s)-w.maxSamples)
	}
	w.samples[stage] = s
}

func (w *stageWindow) ObserveIndicator(name string) {
	name = strings.TrimSpace(name)
	if w == nil || name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.indicators[name]++
}

func (w *stageWindow) Snapshot() StageSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := StageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.maxSamples,
		Stages:      make([]StageStats, 0, len(w.samples)),
	}
	for stage, values := range w.samples {
		sorted := slices.Clone(values)
		slices.Sort(sorted)
		sum := 0.0
		for _, v := range sorted {
			sum += v
		}
		snap.Stages = append(snap.Stages, StageStats{
			Stage:       stage,
			Samples:     len(sorted),
			LastMS:      round2(values[len(values)-1]),
			AvgMS:       round2(sum / float64(len(sorted))),
			P50MS:       round2(nearestRank(sorted, 0.50)),
			P95MS:       round2(nearestRank(sorted, 0.95)),
			TargetP95MS: stageTargetsP95MS[stage],
		})
	}
	sort.Slice(snap.Stages, func(i, j int) bool { return snap.Stages[i].Stage < snap.Stages[j].Stage })

	for name, count := range w.indicators {
		snap.Indicators = append(snap.Indicators, Indicator{Name: name, Count: count})
	}
	sort.Slice(snap.Indicators, func(i, j int) bool { return snap.Indicators[i].Name < snap.Indicators[j].Name })
	return snap
}

// nearestRank expects sorted to be non-empty and ascending.
func nearestRank(sorted []float64, q float64) float64 {
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
