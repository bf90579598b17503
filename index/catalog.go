package index

import "sync"

// Catalog guards the document store and both indexes with one reader/writer
// lock. Searches read inside View; ingestion commits inside Update.
type Catalog struct {
	Vectors *VectorIndex
	Lexical *LexicalIndex

	mu sync.RWMutex
}

// NewCatalog pairs a vector index with a fresh lexical index.
func NewCatalog(vectors *VectorIndex) *Catalog {
	return &Catalog{
		Vectors: vectors,
		Lexical: NewLexicalIndex(),
	}
}

// View runs fn under the shared lock.
func (c *Catalog) View(fn func() error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fn()
}

// Update runs fn under the exclusive lock.
func (c *Catalog) Update(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn()
}

// Close releases the vector index worker pool.
func (c *Catalog) Close() {
	if c.Vectors != nil {
		c.Vectors.Release()
	}
}
