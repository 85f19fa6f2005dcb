package state

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// schemaFS contains the embedded state-document JSON schema.
//
//go:embed state-schema.json
var schemaFS embed.FS

// validateSchema checks raw document bytes against the embedded schema
// before any field is trusted.
func validateSchema(raw []byte) error {
	schemaBytes, readErr := schemaFS.ReadFile("state-schema.json")
	if readErr != nil {
		return fmt.Errorf("read embedded schema: %w", readErr)
	}

	result, validateErr := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaBytes),
		gojsonschema.NewBytesLoader(raw),
	)
	if validateErr != nil {
		return fmt.Errorf("%w: %w", ErrCorruptState, validateErr)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		details = append(details, fmt.Sprintf("%s: %s", verr.Field(), verr.Description()))
	}

	return fmt.Errorf("%w: %s", ErrCorruptState, strings.Join(details, "; "))
}
