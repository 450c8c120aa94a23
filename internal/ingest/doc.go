// Package ingest loads chunk records into the corpus, the sparse backend and
// the dense backend.
//
// Ingestion is single writer: the CLI holds a FileLock on the data directory
// for the whole run. One failed batch never aborts the run; failures are
// collected in Result.Failed. The vocabulary is saved once, after the last
// batch.
package ingest
