package analysis

import "encoding/json"

// OutputSchema is the canonical JSON schema the provider's output must
// conform to. It is sent as the structured-output response format and
// reused locally for validation of both the initial and repair
// responses.
var OutputSchema = json.RawMessage(`{
	"name": "book_analysis",
	"strict": true,
	"schema": {
		"type": "object",
		"properties": {
			"summary": {"type": "string"},
			"keyPoints": {"type": "array", "items": {"type": "string"}},
			"keywords": {"type": "array", "items": {"type": "string"}},
			"topics": {"type": "array", "items": {"type": "string"}},
			"difficulty": {"type": "string"},
			"authorBackground": {"type": "string"},
			"bookBackground": {"type": "string"},
			"worldRelevance": {"type": "string"},
			"quizQuestions": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"question": {"type": "string"},
						"options": {"type": "array", "items": {"type": "string"}},
						"answer": {"type": "integer"},
						"explanation": {"type": "string"}
					},
					"required": ["question", "options", "answer"]
				}
			},
			"mindMap": {
				"type": "object",
				"properties": {
					"name": {"type": "string"}
				},
				"required": ["name"]
			},
			"confidence": {"type": "number"}
		},
		"required": ["summary", "keyPoints", "keywords", "topics", "difficulty"]
	}
}`)
