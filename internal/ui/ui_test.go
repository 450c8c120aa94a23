package ui

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTracker_SpeedAndETA(t *testing.T) {
	// Given: a tracker on a controllable clock
	clock := &fakeClock{t: time.Unix(0, 0)}
	tr := newTrackerAt(clock.now)

	// When: 100 of 400 chunks finish in one second
	clock.advance(time.Second)
	tr.Update(100, 400)
	snap := tr.Snapshot()

	// Then: speed is 100/s and the remaining 300 take about 3s
	assert.InDelta(t, 100, snap.Speed, 0.001)
	assert.InDelta(t, 100, snap.AvgSpeed, 0.001)
	assert.InDelta(t, 0.25, snap.Fraction, 0.001)
	assert.Equal(t, 3*time.Second, snap.ETA)
	assert.Equal(t, time.Second, snap.Elapsed)
}

func TestTracker_IgnoresFastUpdatesForSpeed(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tr := newTrackerAt(clock.now)

	clock.advance(100 * time.Millisecond)
	tr.Update(10, 20)

	snap := tr.Snapshot()
	assert.Equal(t, 10, snap.Done)
	assert.Zero(t, snap.Speed)
	assert.Zero(t, snap.ETA)
}

func TestTracker_SmoothsAverageAndKeepsPeak(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tr := newTrackerAt(clock.now)

	clock.advance(time.Second)
	tr.Update(100, 1000)
	clock.advance(time.Second)
	tr.Update(150, 1000)

	snap := tr.Snapshot()
	assert.InDelta(t, 50, snap.Speed, 0.001)
	assert.InDelta(t, 0.2*50+0.8*100, snap.AvgSpeed, 0.001)
	assert.InDelta(t, 100, snap.Peak, 0.001)
}

func TestTracker_FractionCapped(t *testing.T) {
	tr := NewTracker()
	tr.Update(12, 10)
	assert.Equal(t, 1.0, tr.Snapshot().Fraction)
}

func TestTracker_WarningsAreCopied(t *testing.T) {
	tr := NewTracker()
	tr.Warn("sparse batch 1-5 failed")

	snap := tr.Snapshot()
	snap.Warnings[0] = "changed"

	assert.Equal(t, []string{"sparse batch 1-5 failed"}, tr.Snapshot().Warnings)
}

func TestSparkline_Render(t *testing.T) {
	s := NewSparkline(4)
	assert.Equal(t, "    ", s.Render(4))

	s.Add(1)
	s.Add(8)
	assert.Equal(t, "  ▁█", s.Render(4))

	for _, v := range []float64{8, 8, 8} {
		s.Add(v)
	}
	assert.Equal(t, "████", s.Render(4))
	assert.Equal(t, "██", s.Render(2))
	assert.Equal(t, 4, len([]rune(s.Render(10))))
}

func TestNewRenderer_PlainForNonTerminal(t *testing.T) {
	var buf bytes.Buffer

	r := NewRenderer(Config{Output: &buf})

	assert.IsType(t, &PlainRenderer{}, r)
	_, err := NewTUIRenderer(Config{Output: &buf})
	assert.ErrorIs(t, err, ErrNotTerminal)
}

func TestPlainRenderer_PrintsQuarters(t *testing.T) {
	// Given: a plain renderer writing to a buffer
	var buf bytes.Buffer
	r := NewPlainRenderer(Config{Output: &buf})
	require.NoError(t, r.Start(context.Background()))

	// When: ten batches of ten chunks complete
	for done := 10; done <= 100; done += 10 {
		r.Update(done, 100)
	}
	r.Warn("dense batch 1-10 failed")
	require.NoError(t, r.Stop())

	// Then: one line per quarter crossed, no escape codes, and the warning
	out := buf.String()
	assert.Equal(t, 4, strings.Count(out, "chunks\n"))
	assert.Contains(t, out, "30/100 chunks")
	assert.Contains(t, out, "100/100 chunks")
	assert.NotContains(t, out, "\x1b[")
	assert.Contains(t, out, "! dense batch 1-10 failed")
}

func TestPlainRenderer_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(Config{Output: &buf})

	r.Update(0, 0)

	assert.Empty(t, buf.String())
}

func TestIngestModel_View(t *testing.T) {
	// Given: a model over a half-done tracker
	tr := NewTracker()
	m := newIngestModel(tr, "chunks.jsonl")
	m.styles = plainPanelStyles()

	assert.Contains(t, m.View(), "preparing")

	tr.Update(5, 10)
	tr.Warn("sparse batch 1-5 failed")

	// When: rendering
	view := m.View()

	// Then: title, count, percentage and warning appear
	assert.Contains(t, view, "ragdoc ingest • chunks.jsonl")
	assert.Contains(t, view, "5/10 chunks")
	assert.Contains(t, view, " 50%")
	assert.Contains(t, view, "sparse batch 1-5 failed")
}

func TestIngestModel_Update(t *testing.T) {
	m := newIngestModel(NewTracker(), "")

	_, cmd := m.Update(tea.WindowSizeMsg{Width: 200, Height: 40})
	assert.Nil(t, cmd)
	assert.Equal(t, 60, m.bar.Width)

	_, cmd = m.Update(tickMsg(time.Now()))
	assert.NotNil(t, cmd)

	_, cmd = m.Update(finishMsg{})
	assert.True(t, m.finished)
	assert.NotNil(t, cmd)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, m.interrupted)
	assert.NotNil(t, cmd)
	assert.Equal(t, "Interrupted.\n", m.View())
}

func TestLastN(t *testing.T) {
	assert.Equal(t, []string{"a"}, lastN([]string{"a"}, 3))
	assert.Equal(t, []string{"c", "d"}, lastN([]string{"a", "b", "c", "d"}, 2))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "<1s", formatDuration(300*time.Millisecond))
	assert.Equal(t, "1m5s", formatDuration(65*time.Second+200*time.Millisecond))
}
