package report

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Histogram range: 1 microsecond to 1 hour, 3 significant figures.
const (
	histMin     = 1
	histMax     = 3600000000
	histSigFigs = 3
)

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// ActionStats aggregates the requests of one action.
type ActionStats struct {
	Name    string       `json:"name"`
	Count   int64        `json:"count"`
	Failed  int64        `json:"failed"`
	Latency LatencyStats `json:"latency"`
}

// FailedPercent returns the failed share in percent.
func (a ActionStats) FailedPercent() float64 {
	if a.Count == 0 {
		return 0
	}
	return float64(a.Failed) / float64(a.Count) * 100
}

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	Requests  int64            `json:"requests"`
	Failed    int64            `json:"failed"`
	Bytes     int64            `json:"bytes"`
	Latency   LatencyStats     `json:"latency"`
	Actions   []ActionStats    `json:"actions"`
	Failures  map[string]int64 `json:"failures"`
	Started   int64            `json:"usersStarted"`
	Finished  int64            `json:"usersFinished"`
	StartTime time.Time        `json:"startTime"`
	Elapsed   time.Duration    `json:"elapsed"`
	RPS       float64          `json:"rps"`
}

// FailedPercent returns the failed share of all requests in percent.
func (s *Snapshot) FailedPercent() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Failed) / float64(s.Requests) * 100
}

// Action returns the stats of a named action.
func (s *Snapshot) Action(name string) (ActionStats, bool) {
	for _, a := range s.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return ActionStats{}, false
}

type actionHist struct {
	hist   *hdrhistogram.Histogram
	count  int64
	failed int64
}

// Aggregator folds request records into HDR histograms, overall and per
// action. It is safe for concurrent use.
type Aggregator struct {
	mu       sync.Mutex
	overall  *hdrhistogram.Histogram
	actions  map[string]*actionHist
	failures map[string]int64

	requests atomic.Int64
	failed   atomic.Int64
	bytes    atomic.Int64
	started  atomic.Int64
	finished atomic.Int64

	startTime time.Time
	now       func() time.Time
}

// NewAggregator creates an empty aggregator; the run starts now.
func NewAggregator() *Aggregator {
	return &Aggregator{
		overall:   hdrhistogram.New(histMin, histMax, histSigFigs),
		actions:   make(map[string]*actionHist),
		failures:  make(map[string]int64),
		startTime: time.Now(),
		now:       time.Now,
	}
}

func (a *Aggregator) Record(r Record) {
	switch r.Kind {
	case KindUserStart:
		a.started.Add(1)
		return
	case KindUserEnd:
		a.finished.Add(1)
		return
	}

	micros := r.Duration.Microseconds()
	if micros < histMin {
		micros = histMin
	}
	if micros > histMax {
		micros = histMax
	}

	a.requests.Add(1)
	a.bytes.Add(r.Bytes)
	if r.Failed() {
		a.failed.Add(1)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.overall.RecordValue(micros)

	ah, ok := a.actions[r.Action]
	if !ok {
		ah = &actionHist{hist: hdrhistogram.New(histMin, histMax, histSigFigs)}
		a.actions[r.Action] = ah
	}
	_ = ah.hist.RecordValue(micros)
	ah.count++
	if r.Failed() {
		ah.failed++
		a.failures[r.FailureReason]++
	}
}

// Snapshot returns the aggregated view. Actions are sorted by name.
func (a *Aggregator) Snapshot() *Snapshot {
	a.mu.Lock()
	overall := stats(a.overall)
	actions := make([]ActionStats, 0, len(a.actions))
	for name, ah := range a.actions {
		actions = append(actions, ActionStats{
			Name:    name,
			Count:   ah.count,
			Failed:  ah.failed,
			Latency: stats(ah.hist),
		})
	}
	failures := make(map[string]int64, len(a.failures))
	for k, v := range a.failures {
		failures[k] = v
	}
	a.mu.Unlock()

	sort.Slice(actions, func(i, j int) bool { return actions[i].Name < actions[j].Name })

	elapsed := a.now().Sub(a.startTime)
	requests := a.requests.Load()
	rps := 0.0
	if elapsed.Seconds() > 0 {
		rps = float64(requests) / elapsed.Seconds()
	}

	return &Snapshot{
		Requests:  requests,
		Failed:    a.failed.Load(),
		Bytes:     a.bytes.Load(),
		Latency:   overall,
		Actions:   actions,
		Failures:  failures,
		Started:   a.started.Load(),
		Finished:  a.finished.Load(),
		StartTime: a.startTime,
		Elapsed:   elapsed,
		RPS:       rps,
	}
}

func stats(h *hdrhistogram.Histogram) LatencyStats {
	if h.TotalCount() == 0 {
		return LatencyStats{}
	}
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return LatencyStats{
		Min:    us(h.Min()),
		Max:    us(h.Max()),
		Mean:   time.Duration(h.Mean() * float64(time.Microsecond)),
		StdDev: time.Duration(h.StdDev() * float64(time.Microsecond)),
		P50:    us(h.ValueAtQuantile(50)),
		P90:    us(h.ValueAtQuantile(90)),
		P95:    us(h.ValueAtQuantile(95)),
		P99:    us(h.ValueAtQuantile(99)),
		Count:  h.TotalCount(),
	}
}
