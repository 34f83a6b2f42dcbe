package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidModerationSettings is returned when a document fails validation.
var ErrInvalidModerationSettings = errors.New("moderation settings are invalid")

//go:embed moderation.schema.json
var moderationSchemaJSON []byte

var moderationSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("moderation.schema.json", bytes.NewReader(moderationSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("moderation.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

// ValidateModerationJSON checks a raw moderation document against the schema.
func ValidateModerationJSON(data []byte) error {
	schema, err := moderationSchema()
	if err != nil {
		return err
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidModerationSettings, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidModerationSettings, err)
	}
	return nil
}

// IsValidModerationSettings reports whether value serializes to a valid
// moderation document. It accepts decoded JSON as well as typed settings.
func IsValidModerationSettings(value any) bool {
	if value == nil {
		return false
	}
	data, err := json.Marshal(value)
	if err != nil {
		return false
	}
	return ValidateModerationJSON(data) == nil
}
