package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

func asRAGError(err error) *RAGError {
	var re *RAGError
	if errors.As(err, &re) {
		return re
	}
	return Wrap(ErrCodeInternal, err)
}

// FormatForCLI renders err for terminal output: message, optional hint, code.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}
	re := asRAGError(err)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", re.Message)
	if re.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", re.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", re.Code)
	return sb.String()
}

// LogAttrs returns slog attributes describing err. Plain errors produce a
// single "error" attribute.
func LogAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}
	var re *RAGError
	if !errors.As(err, &re) {
		return []slog.Attr{slog.String("error", err.Error())}
	}

	attrs := []slog.Attr{
		slog.String("error_code", re.Code),
		slog.String("error", err.Error()),
		slog.String("category", string(re.Category)),
		slog.Bool("retryable", re.Retryable),
	}
	keys := make([]string, 0, len(re.Details))
	for k := range re.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String("detail_"+k, re.Details[k]))
	}
	return attrs
}
