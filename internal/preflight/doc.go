// Package preflight runs the environment checks behind `ragdoc doctor`:
// configuration, credentials, the local data directory and its free space,
// the ingest lock, the persisted retrieval state and every configured
// backend.
//
// Required checks that fail make the environment unusable. Everything else
// only degrades search, so it is reported as a warning.
package preflight
