package ingestion

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrCatalogRequired is returned when an index catalog is not provided.
	ErrCatalogRequired = errors.New("index catalog required")
)
