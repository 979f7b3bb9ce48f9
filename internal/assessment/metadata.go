package assessment

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ashureev/selve/internal/domain"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

const metadataSchemaURL = "schema://session-metadata.json"

// metadataSchema bounds the free-form metadata to a JSON object with sane keys.
const metadataSchema = `{
	"type": "object",
	"maxProperties": 64,
	"propertyNames": {"minLength": 1, "maxLength": 64}
}`

func compileMetadataSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(metadataSchema))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(metadataSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	compiled, err := c.Compile(metadataSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	return compiled, nil
}

// validateMetadata rejects anything that is not a JSON object within bounds.
func (s *Service) validateMetadata(raw []byte) error {
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return domain.NewValidationError("metadata", "invalid JSON: %v", err)
	}
	if err := s.metadataSchema.Validate(parsed); err != nil {
		return domain.NewValidationError("metadata", "must be a JSON object: %v", err)
	}
	return nil
}
