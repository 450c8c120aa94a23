// Package watcher notices when another process rewrites the retrieval state
// files so a long-running server can reload them.
//
// fsnotify watches the data directory (not the files, which are replaced by
// rename on save). When fsnotify is unavailable the watcher falls back to
// polling modification times. Bursts of events are debounced into one
// callback.
package watcher
