package persist

// Persister handles I/O for a specific document type at a fixed path using a Codec.
type Persister[T any] struct {
	path  string
	codec Codec
}

// NewPersister creates a persister bound to the given path and codec.
func NewPersister[T any](path string, codec Codec) *Persister[T] {
	return &Persister[T]{
		path:  path,
		codec: codec,
	}
}

// Path returns the file path this persister reads and writes.
func (p *Persister[T]) Path() string {
	return p.path
}

// Save writes the document produced by the build function.
func (p *Persister[T]) Save(buildDoc func() *T) error {
	doc := buildDoc()

	return SaveDocument(p.path, p.codec, doc)
}

// Load restores the document and hands it to the restore function.
func (p *Persister[T]) Load(restoreDoc func(*T)) error {
	var doc T

	err := LoadDocument(p.path, p.codec, &doc)
	if err != nil {
		return err
	}

	restoreDoc(&doc)

	return nil
}
