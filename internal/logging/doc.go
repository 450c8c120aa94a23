// Package logging configures slog for ragdoc. Logs are JSON lines written to
// a size-rotated file under ~/.ragdoc/logs and, outside of MCP serve mode,
// mirrored to stderr.
package logging
