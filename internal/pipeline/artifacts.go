package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sumatoshi-tech/rollgate/internal/engine"
	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
)

// ArtifactWriter stores each run's generated items on disk, one markdown
// and one JSON payload per item, under <root>/<date>/<category>/.
type ArtifactWriter struct {
	root string
}

// NewArtifactWriter returns a writer rooted at root.
func NewArtifactWriter(root string) *ArtifactWriter {
	return &ArtifactWriter{root: root}
}

// RunDir returns the directory holding one date's artifacts.
func (w *ArtifactWriter) RunDir(date dates.Date) string {
	return filepath.Join(w.root, date.String())
}

// Write stores the items and returns the file paths written.
func (w *ArtifactWriter) Write(date dates.Date, items []engine.Item) ([]string, error) {
	var files []string

	for _, item := range items {
		itemDir := filepath.Join(w.RunDir(date), item.Category)

		mkdirErr := os.MkdirAll(itemDir, 0o750)
		if mkdirErr != nil {
			return files, fmt.Errorf("create artifact dir: %w", mkdirErr)
		}

		mdPath := filepath.Join(itemDir, item.Slug+".md")

		writeErr := os.WriteFile(mdPath, []byte(item.Markdown), 0o600)
		if writeErr != nil {
			return files, fmt.Errorf("write artifact %s: %w", mdPath, writeErr)
		}

		files = append(files, mdPath)

		payload, marshalErr := json.MarshalIndent(item, "", "  ")
		if marshalErr != nil {
			return files, fmt.Errorf("marshal artifact payload: %w", marshalErr)
		}

		jsonPath := filepath.Join(itemDir, item.Slug+".json")

		writeErr = os.WriteFile(jsonPath, append(payload, '\n'), 0o600)
		if writeErr != nil {
			return files, fmt.Errorf("write artifact %s: %w", jsonPath, writeErr)
		}

		files = append(files, jsonPath)
	}

	return files, nil
}
