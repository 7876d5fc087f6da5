// Package schemavalidation guards the log ingestion boundary. The batch
// envelope and each sample inside it are checked against a JSON Schema
// before anything is persisted; a bad item is skipped, not fatal.
package schemavalidation

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed log-batch-v1.schema.json
var logBatchSchemaJSON []byte

const schemaURL = "https://trustd.dev/schema/log-batch-v1.schema.json"

var (
	logBatchSchema *jsonschema.Schema
	logItemSchema  *jsonschema.Schema
)

func init() {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(logBatchSchemaJSON)); err != nil {
		panic(fmt.Sprintf("schemavalidation: add resource: %v", err))
	}
	logBatchSchema = compiler.MustCompile(schemaURL)
	logItemSchema = compiler.MustCompile(schemaURL + "#/$defs/sample")
}

// ValidateLogBatch checks the whole ingestion envelope. Used as a fast
// reject for payloads that are not even the right shape.
func ValidateLogBatch(raw []byte) error {
	return validate(logBatchSchema, raw)
}

// ValidateLogSample checks one sample from a batch. Callers skip samples
// that fail and keep going.
func ValidateLogSample(raw json.RawMessage) error {
	return validate(logItemSchema, raw)
}

func validate(schema *jsonschema.Schema, raw []byte) error {
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("validate payload: %w", err)
	}
	return nil
}
