package ai

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed verdict.schema.json
var verdictSchemaSource string

const verdictSchemaURL = "gema://evaluator/verdict.schema.json"

var (
	verdictSchemaOnce sync.Once
	verdictSchema     *jsonschema.Schema
	verdictSchemaErr  error
)

// VerdictSchema returns the raw JSON schema every judge answer must satisfy.
func VerdictSchema() string {
	return verdictSchemaSource
}

func compiledVerdictSchema() (*jsonschema.Schema, error) {
	verdictSchemaOnce.Do(func() {
		verdictSchema, verdictSchemaErr = jsonschema.CompileString(verdictSchemaURL, verdictSchemaSource)
	})
	return verdictSchema, verdictSchemaErr
}

// ValidateVerdict checks raw model output against the verdict schema and
// returns the compacted JSON document.
func ValidateVerdict(content string) (json.RawMessage, error) {
	content = stripCodeFence(content)
	if content == "" {
		return nil, ErrEmptyCompletion
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse json: %v", ErrInvalidVerdict, err)
	}

	schema, err := compiledVerdictSchema()
	if err != nil {
		return nil, fmt.Errorf("compile verdict schema: %w", err)
	}

	if err := schema.Validate(parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerdict, err)
	}

	compact := bytes.NewBuffer(nil)
	if err := json.Compact(compact, []byte(content)); err != nil {
		return nil, fmt.Errorf("%w: compact json: %v", ErrInvalidVerdict, err)
	}

	return compact.Bytes(), nil
}

// stripCodeFence removes a markdown fence some models wrap around JSON.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimPrefix(content, "json")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
