package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// adaptedResponseFormat shapes a response format for the chosen model.
// The canonical schema stays with the caller for local validation; only
// the copy sent over the wire is adjusted.
func adaptedResponseFormat(model string, rf *ResponseFormat) (*orResponseFormat, error) {
	if rf == nil {
		return nil, nil
	}
	// OpenRouter can route anthropic/* models to other backends that
	// reject Anthropic's native structured-output headers. Those models
	// rely on the prompt plus local validation and repair instead.
	if isAnthropicModel(model) {
		return nil, nil
	}

	schema := rf.JSONSchema
	if len(schema) > 0 {
		var err error
		if schema, err = sanitizeStructuredSchemaForModel(model, schema); err != nil {
			return nil, err
		}
	}
	return &orResponseFormat{Type: rf.Type, JSONSchema: schema}, nil
}

// sanitizeStructuredSchemaForModel applies model-specific schema shims.
// Anthropic models served through OpenRouter reject integer bound
// keywords in output schemas, so those are stripped.
func sanitizeStructuredSchemaForModel(model string, schemaRaw json.RawMessage) (json.RawMessage, error) {
	if len(schemaRaw) == 0 || !isAnthropicModel(model) {
		return schemaRaw, nil
	}

	var root any
	if err := json.Unmarshal(schemaRaw, &root); err != nil {
		return nil, fmt.Errorf("failed to parse structured schema: %w", err)
	}
	stripIntegerBounds(root)

	sanitized, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize sanitized structured schema: %w", err)
	}
	return sanitized, nil
}

func isAnthropicModel(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "anthropic/")
}

func stripIntegerBounds(node any) {
	switch n := node.(type) {
	case map[string]any:
		if hasIntegerType(n["type"]) {
			for _, k := range []string{"minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum"} {
				delete(n, k)
			}
		}
		for _, child := range n {
			stripIntegerBounds(child)
		}
	case []any:
		for _, child := range n {
			stripIntegerBounds(child)
		}
	}
}

func hasIntegerType(typeVal any) bool {
	switch t := typeVal.(type) {
	case string:
		return t == "integer"
	case []any:
		for _, item := range t {
			if item == "integer" {
				return true
			}
		}
	}
	return false
}

// ParseStructuredJSON extracts a JSON document from model output.
// Models wrap JSON in markdown fences or surround it with prose often
// enough that the raw content is only the first candidate tried.
func ParseStructuredJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty structured output")
	}

	tried := map[string]bool{}
	for _, candidate := range []string{content, withoutCodeFences(content), innerJSONSpan(content)} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" || tried[candidate] {
			continue
		}
		tried[candidate] = true

		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
			continue
		}
		normalized, err := json.Marshal(parsed)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize structured output: %w", err)
		}
		return normalized, nil
	}

	return nil, fmt.Errorf("failed to parse structured JSON")
}

// withoutCodeFences unwraps a ```-fenced block, or returns "" when the
// content is not fenced.
func withoutCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// innerJSONSpan slices from the first { or [ to the matching final
// bracket, dropping any prose around the document.
func innerJSONSpan(content string) string {
	trimmed := strings.TrimSpace(content)

	start := strings.IndexAny(trimmed, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if trimmed[start] == '[' {
		closer = "]"
	}

	end := strings.LastIndex(trimmed, closer)
	if end < start {
		return ""
	}
	return strings.TrimSpace(trimmed[start : end+1])
}

// ValidateStructuredJSON checks parsed output against the canonical
// schema, unwrapping provider envelopes around the schema first.
func ValidateStructuredJSON(schemaRaw, parsed json.RawMessage) error {
	if len(schemaRaw) == 0 || len(parsed) == 0 {
		return nil
	}

	core, err := unwrapSchema(schemaRaw)
	if err != nil {
		return err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(core)); err != nil {
		return fmt.Errorf("failed to load structured schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("failed to compile structured schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(parsed, &doc); err != nil {
		return fmt.Errorf("failed to decode structured JSON for validation: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("structured output does not match schema: %w", err)
	}
	return nil
}

// unwrapSchema digs the bare schema document out of the OpenAI-style
// wrappers {"name","strict","schema":...} and
// {"type":"json_schema","json_schema":{"schema":...}}.
func unwrapSchema(schemaRaw json.RawMessage) (json.RawMessage, error) {
	var root map[string]any
	if err := json.Unmarshal(schemaRaw, &root); err != nil {
		// Not an object, or invalid. Let the array case through and the
		// compiler report anything truly malformed.
		var doc any
		if err2 := json.Unmarshal(schemaRaw, &doc); err2 != nil {
			return nil, fmt.Errorf("invalid structured schema JSON: %w", err2)
		}
		return schemaRaw, nil
	}

	if inner, ok := root["schema"]; ok {
		return json.Marshal(inner)
	}
	if wrapper, ok := root["json_schema"].(map[string]any); ok {
		if inner, ok := wrapper["schema"]; ok {
			return json.Marshal(inner)
		}
	}
	return schemaRaw, nil
}

// StructuredRepairPrompt builds the follow-up prompt sent when a model's
// structured output fails to parse or validate.
func StructuredRepairPrompt(schemaRaw json.RawMessage, lastOutput string, issue error) string {
	lastOutput = strings.TrimSpace(lastOutput)
	if len(lastOutput) > 12000 {
		lastOutput = lastOutput[:12000] + "\n...[truncated]"
	}

	return fmt.Sprintf(`Return ONLY valid JSON (no markdown, no commentary) that strictly conforms to this schema.

Schema:
%s

Your previous output:
%s

Validation issue:
%v`, string(schemaRaw), lastOutput, issue)
}
