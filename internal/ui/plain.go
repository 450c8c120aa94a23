package ui

import (
	"context"
	"sync"

	"github.com/jaganraajan/rag-document-parser/internal/output"
)

// PlainRenderer writes progress through an output.Writer. On a terminal it
// redraws one progress line; elsewhere it prints a line at each quarter so
// logs stay short.
type PlainRenderer struct {
	mu      sync.Mutex
	out     *output.Writer
	inPlace bool
	quarter int
}

func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{
		out:     output.NewWithColor(cfg.Output, !cfg.NoColor && !output.DetectNoColor() && output.IsTTY(cfg.Output)),
		inPlace: output.IsTTY(cfg.Output),
	}
}

func (r *PlainRenderer) Start(context.Context) error { return nil }

func (r *PlainRenderer) Update(done, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if total <= 0 {
		return
	}
	if r.inPlace {
		r.out.Progress(done, total, "chunks")
		return
	}
	q := 4 * min(done, total) / total
	if q > r.quarter {
		r.quarter = q
		r.out.Statusf("", "%d/%d chunks", done, total)
	}
}

func (r *PlainRenderer) Warn(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out.Warning(msg)
}

func (r *PlainRenderer) Stop() error { return nil }
