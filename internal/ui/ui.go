// Package ui renders ingest progress: a bubbletea panel on interactive
// terminals and plain status lines everywhere else.
package ui

import (
	"context"
	"io"
	"time"

	"github.com/jaganraajan/rag-document-parser/internal/output"
)

// Renderer displays the progress of one ingest run.
type Renderer interface {
	Start(ctx context.Context) error
	// Update reports done of total chunks processed. It is called from the
	// pipeline goroutine after each batch.
	Update(done, total int)
	// Warn records a non-fatal problem such as a failed batch.
	Warn(msg string)
	Stop() error
}

// Config selects and configures a renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	// Title is shown in the panel header, usually the input file name.
	Title string
	// OnInterrupt runs when the user presses Ctrl+C inside the TUI, which
	// holds the terminal in raw mode and so swallows SIGINT.
	OnInterrupt func()
}

// NewRenderer returns the TUI renderer when Output is a terminal and plain
// output was not forced, and a PlainRenderer otherwise.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !output.IsTTY(cfg.Output) {
		return NewPlainRenderer(cfg)
	}
	r, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return r
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	return d.Round(time.Second).String()
}
