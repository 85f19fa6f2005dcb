// Package persist provides codec-based atomic file persistence for
// whole-document state types.
package persist

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// tmpExtension marks an in-flight write that has not been committed.
const tmpExtension = ".tmp"

// Default indentation for pretty-printed JSON.
const defaultIndent = "  "

const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// Codec defines how a document is serialized and deserialized.
type Codec interface {
	// Encode writes the document to the writer.
	Encode(w io.Writer, doc any) error
	// Decode reads the document from the reader.
	Decode(r io.Reader, doc any) error
}

// JSONCodec implements Codec using JSON encoding with optional indentation.
type JSONCodec struct {
	// Indent specifies the indentation string. Empty string means compact JSON.
	Indent string
}

// NewJSONCodec creates a JSON codec with pretty-printing (2-space indent).
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{Indent: defaultIndent}
}

// Encode implements Codec.Encode using JSON encoding.
func (c *JSONCodec) Encode(w io.Writer, doc any) error {
	encoder := json.NewEncoder(w)
	if c.Indent != "" {
		encoder.SetIndent("", c.Indent)
	}

	err := encoder.Encode(doc)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode using JSON decoding.
func (c *JSONCodec) Decode(r io.Reader, doc any) error {
	decoder := json.NewDecoder(r)

	err := decoder.Decode(doc)
	if err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

// SaveDocument writes the document to path atomically: the encoded bytes go
// to a temporary sibling file which is fsynced and then renamed over the
// destination, so a crash mid-write never leaves a partial document behind.
func SaveDocument(path string, codec Codec, doc any) error {
	mkdirErr := os.MkdirAll(filepath.Dir(path), dirPerm)
	if mkdirErr != nil {
		return fmt.Errorf("create document dir: %w", mkdirErr)
	}

	tmpPath := path + tmpExtension

	fd, createErr := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if createErr != nil {
		return fmt.Errorf("create document: %w", createErr)
	}

	encodeErr := codec.Encode(fd, doc)
	if encodeErr != nil {
		fd.Close()

		return fmt.Errorf("encode document: %w", encodeErr)
	}

	syncErr := fd.Sync()
	if syncErr != nil {
		fd.Close()

		return fmt.Errorf("sync document: %w", syncErr)
	}

	closeErr := fd.Close()
	if closeErr != nil {
		return fmt.Errorf("close document: %w", closeErr)
	}

	renameErr := os.Rename(tmpPath, path)
	if renameErr != nil {
		return fmt.Errorf("rename document: %w", renameErr)
	}

	return nil
}

// LoadDocument reads the document at path into doc, which must be a pointer.
// A missing file is reported as-is so callers can distinguish a fresh
// install (os.ErrNotExist) from a corrupt document.
func LoadDocument(path string, codec Codec, doc any) error {
	fd, openErr := os.Open(path)
	if openErr != nil {
		return fmt.Errorf("open document: %w", openErr)
	}

	defer fd.Close()

	decodeErr := codec.Decode(fd, doc)
	if decodeErr != nil {
		return fmt.Errorf("decode document: %w", decodeErr)
	}

	return nil
}
