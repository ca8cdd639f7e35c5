package observability

import (
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// Query cycle stages, listed in the order one query runs through them.
const (
	StageWindowBuild  = "window_build"
	StageSummarize    = "summarize"
	StagePromptBuild  = "prompt_build"
	StageFirstDelta   = "model_first_delta"
	StageModelCall    = "model_call"
	StagePersist      = "persist"
	StageWindowReload = "window_reload"
	StageQueryTotal   = "query_total"
)

var stageOrder = []string{
	StageWindowBuild,
	StageSummarize,
	StagePromptBuild,
	StageFirstDelta,
	StageModelCall,
	StagePersist,
	StageWindowReload,
	StageQueryTotal,
}

// stageTargets are p95 budgets in milliseconds. The model budget follows the default
// LLM_TIMEOUT headroom; storage stages assume a nearby database.
var stageTargets = map[string]float64{
	StageWindowBuild:  50,
	StageSummarize:    50,
	StagePromptBuild:  5,
	StageFirstDelta:   2500,
	StageModelCall:    15000,
	StagePersist:      50,
	StageWindowReload: 50,
	StageQueryTotal:   16000,
}

type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
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

// StageWindow keeps the most recent latencies of each query stage plus counters for
// notable events such as a query arriving on an empty session. A nil *StageWindow
// discards everything.
type StageWindow struct {
	mu         sync.Mutex
	capacity   int
	rings      map[string]*ring
	indicators map[string]int
}

func NewStageWindow(capacity int) *StageWindow {
	if capacity <= 0 {
		capacity = 256
	}
	w := &StageWindow{capacity: capacity}
	w.clear()
	return w
}

func (w *StageWindow) ObserveDuration(stage string, d time.Duration) {
	w.Observe(stage, float64(d.Microseconds())/1000)
}

func (w *StageWindow) Observe(stage string, ms float64) {
	if w == nil || stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.rings[stage]
	if !ok {
		r = &ring{buf: make([]float64, w.capacity)}
		w.rings[stage] = r
	}
	r.add(ms)
}

func (w *StageWindow) ObserveIndicator(name string) {
	name = strings.TrimSpace(name)
	if w == nil || name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.indicators[name]++
}

// Snapshot summarizes every stage that has samples. Known stages come in query order,
// anything else follows alphabetically.
func (w *StageWindow) Snapshot() StageSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := StageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.capacity,
		Stages:      make([]StageStats, 0, len(w.rings)),
	}
	for _, stage := range w.stageNames() {
		snap.Stages = append(snap.Stages, summarize(stage, w.rings[stage]))
	}

	names := make([]string, 0, len(w.indicators))
	for name := range w.indicators {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		snap.Indicators = append(snap.Indicators, Indicator{Name: name, Count: w.indicators[name]})
	}
	return snap
}

// Reset drops all samples and indicator counts.
func (w *StageWindow) Reset() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clear()
}

func (w *StageWindow) clear() {
	w.rings = make(map[string]*ring)
	w.indicators = make(map[string]int)
}

func (w *StageWindow) stageNames() []string {
	names := make([]string, 0, len(w.rings))
	for _, stage := range stageOrder {
		if _, ok := w.rings[stage]; ok {
			names = append(names, stage)
		}
	}
	var extra []string
	for stage := range w.rings {
		if !slices.Contains(stageOrder, stage) {
			extra = append(extra, stage)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

// ring is a fixed-size sample buffer that overwrites its oldest value.
type ring struct {
	buf   []float64
	total int
}

func (r *ring) add(v float64) {
	r.buf[r.total%len(r.buf)] = v
	r.total++
}

func (r *ring) last() float64 {
	return r.buf[(r.total-1)%len(r.buf)]
}

func (r *ring) sorted() []float64 {
	n := min(r.total, len(r.buf))
	out := slices.Clone(r.buf[:n])
	slices.Sort(out)
	return out
}

func summarize(stage string, r *ring) StageStats {
	samples := r.sorted()
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return StageStats{
		Stage:       stage,
		Samples:     len(samples),
		LastMS:      round2(r.last()),
		AvgMS:       round2(sum / float64(len(samples))),
		P50MS:       round2(percentile(samples, 0.50)),
		P95MS:       round2(percentile(samples, 0.95)),
		P99MS:       round2(percentile(samples, 0.99)),
		TargetP95MS: stageTargets[stage],
	}
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []float64, q float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
