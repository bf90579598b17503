// Package ingestion is the single writer for the document store and both
// search indexes.
//
// The Pipeline type manages the write workflow:
//   - Validating documents and assigning ids from the store sequence
//   - Embedding the batch concurrently, outside any lock
//   - Committing the store write, the vectors and a rebuilt BM25 model
//     together under the catalog's exclusive lock
//
// An add whose embedding fails commits nothing. Load rebuilds both indexes
// from the store at startup, embedding only documents saved without a vector.
package ingestion
