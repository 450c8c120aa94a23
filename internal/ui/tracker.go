package ui

import (
	"strings"
	"sync"
	"time"
)

const speedInterval = 500 * time.Millisecond

// Tracker accumulates progress, throughput and warnings for one run. It is
// safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	now      func() time.Time
	start    time.Time
	done     int
	total    int
	warnings []string

	lastDone int
	lastAt   time.Time
	speed    float64
	avg      float64
	peak     float64
	samples  int
	spark    *Sparkline
}

// Snapshot is a consistent view of a Tracker.
type Snapshot struct {
	Done     int
	Total    int
	Fraction float64
	Elapsed  time.Duration
	ETA      time.Duration
	Speed    float64
	AvgSpeed float64
	Peak     float64
	Warnings []string
}

func NewTracker() *Tracker {
	return newTrackerAt(time.Now)
}

func newTrackerAt(now func() time.Time) *Tracker {
	t := now()
	return &Tracker{now: now, start: t, lastAt: t, spark: NewSparkline(40)}
}

// Update records done of total. Throughput is sampled at most every
// speedInterval, smoothed exponentially.
func (t *Tracker) Update(done, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done, t.total = done, total

	now := t.now()
	elapsed := now.Sub(t.lastAt)
	if elapsed < speedInterval {
		return
	}
	if delta := done - t.lastDone; delta > 0 {
		s := float64(delta) / elapsed.Seconds()
		t.speed = s
		t.samples++
		if t.samples == 1 {
			t.avg = s
		} else {
			t.avg = 0.2*s + 0.8*t.avg
		}
		t.peak = max(t.peak, s)
		t.spark.Add(s)
	}
	t.lastDone, t.lastAt = done, now
}

func (t *Tracker) Warn(msg string) {
	t.mu.Lock()
	t.warnings = append(t.warnings, msg)
	t.mu.Unlock()
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Snapshot{
		Done:     t.done,
		Total:    t.total,
		Elapsed:  t.now().Sub(t.start),
		Speed:    t.speed,
		AvgSpeed: t.avg,
		Peak:     t.peak,
		Warnings: append([]string(nil), t.warnings...),
	}
	if t.total > 0 {
		s.Fraction = min(1, float64(t.done)/float64(t.total))
	}
	if t.avg > 0 && t.done < t.total {
		s.ETA = time.Duration(float64(t.total-t.done) / t.avg * float64(time.Second))
	}
	return s
}

// Sparkline renders the throughput history at width cells.
func (t *Tracker) Sparkline(width int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spark.Render(width)
}

var sparkChars = []rune("▁▂▃▄▅▆▇█")

// Sparkline is a fixed-size ring of samples drawn with block characters.
type Sparkline struct {
	samples []float64
	head    int
	count   int
}

func NewSparkline(size int) *Sparkline {
	if size <= 0 {
		size = 40
	}
	return &Sparkline{samples: make([]float64, size)}
}

func (s *Sparkline) Add(v float64) {
	s.samples[s.head] = v
	s.head = (s.head + 1) % len(s.samples)
	s.count++
}

// Render draws the most recent samples, oldest first, scaled to the largest
// one, and left-pads with spaces up to width.
func (s *Sparkline) Render(width int) string {
	n := min(s.count, len(s.samples))
	if width <= 0 || width > len(s.samples) {
		width = len(s.samples)
	}
	n = min(n, width)

	recent := make([]float64, n)
	peak := 0.0
	for i := 0; i < n; i++ {
		idx := (s.head - n + i + len(s.samples)) % len(s.samples)
		recent[i] = s.samples[idx]
		peak = max(peak, recent[i])
	}

	var b strings.Builder
	b.WriteString(strings.Repeat(" ", width-n))
	for _, v := range recent {
		level := 0
		if peak > 0 {
			level = int(v / peak * float64(len(sparkChars)-1))
		}
		b.WriteRune(sparkChars[level])
	}
	return b.String()
}
