// Package reembed rewrites the stored vector of every document with a new
// embedding model.
//
// Documents are read in batches, embedded concurrently on a worker pool
// with retries and exponential backoff, normalized and written back. The
// indexes pick the new vectors up the next time the engine is opened.
package reembed
