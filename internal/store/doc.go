// Package store holds the persisted lexical state of ragdoc: the tokenizer,
// the token vocabulary with document frequencies, the TF-IDF sparse vector
// builder, the JSONL chunk corpus with its BM25 index, and the local sparse
// and dense backends.
//
// The vocabulary and corpus files assume a single writer. Callers that ingest
// must serialize across processes themselves; see ingest.FileLock.
package store
