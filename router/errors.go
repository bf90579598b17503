package router

import "errors"

var (
	// ErrDocumentsRequired is returned when the document writer is not provided.
	ErrDocumentsRequired = errors.New("document writer required")

	// ErrSearcherRequired is returned when a searcher is not provided.
	ErrSearcherRequired = errors.New("searcher required")

	// ErrAnswererRequired is returned when a RAG answerer is not provided.
	ErrAnswererRequired = errors.New("answerer required")

	// ErrCompleterRequired is returned when a completer is not provided.
	ErrCompleterRequired = errors.New("completer required")
)
