package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jaganraajan/rag-document-parser/internal/store"
)

// Clearer is a backend that can drop everything it stores.
type Clearer interface {
	Clear(ctx context.Context) error
}

// ClearAll empties the corpus and every given backend. With resetVocab the
// vocabulary and document-frequency files are deleted too; otherwise sparse
// ids stay stable for a later re-ingest. Every target is attempted and the
// errors are joined.
func ClearAll(ctx context.Context, corpus *store.Corpus, vocab *store.Vocabulary, resetVocab bool, backends ...Clearer) error {
	var errs []error
	if corpus != nil {
		if err := corpus.Clear(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, b := range backends {
		if b == nil {
			continue
		}
		if err := b.Clear(ctx); err != nil {
			errs = append(errs, fmt.Errorf("clear %T: %w", b, err))
		}
	}
	if resetVocab && vocab != nil {
		if err := vocab.Reset(); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	slog.Info("state_cleared",
		slog.Bool("reset_vocab", resetVocab),
		slog.Int("backends", len(backends)),
		slog.Bool("ok", err == nil))
	return err
}
