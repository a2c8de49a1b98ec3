package analysis

import (
	"fmt"
	"strings"
)

// DefaultMaxExcerptChars caps the extracted-text excerpt embedded in
// the generation prompt.
const DefaultMaxExcerptChars = 6000

const systemPrompt = `You are a literary analyst. You produce structured analyses of books from their metadata and, when available, an excerpt of their text. Respond ONLY with a JSON object matching the requested schema. Do not invent chapter-level details that are not supported by the provided material. Write all prose fields in the same language as the book's title and description.`

// BuildPrompt constructs the user prompt for analysis generation.
// The excerpt is best-effort; an empty excerpt just means the prompt
// has less grounding.
func BuildPrompt(fields BookFields, excerpt string, pageCount int) string {
	var sb strings.Builder

	sb.WriteString("Analyze the following book and return a single JSON object.\n\n")
	sb.WriteString("Book metadata:\n")
	fmt.Fprintf(&sb, "- Title: %s\n", orUnknown(fields.Title))
	fmt.Fprintf(&sb, "- Author: %s\n", orUnknown(fields.Author))
	if fields.Description != "" {
		fmt.Fprintf(&sb, "- Description: %s\n", fields.Description)
	}
	if len(fields.Tags) > 0 {
		fmt.Fprintf(&sb, "- Tags: %s\n", strings.Join(fields.Tags, ", "))
	}
	if pageCount > 0 {
		fmt.Fprintf(&sb, "- Approximate page count: %d\n", pageCount)
	}

	if excerpt != "" {
		sb.WriteString("\nExcerpt from the book (approximate extraction, may contain artifacts):\n")
		sb.WriteString("---\n")
		sb.WriteString(excerpt)
		sb.WriteString("\n---\n")
	} else {
		sb.WriteString("\nNo text excerpt is available; ground the analysis in the metadata only and keep claims conservative.\n")
	}

	sb.WriteString(fmt.Sprintf(`
Required JSON fields:
- summary: 2-4 paragraph overview
- keyPoints: up to %d key takeaways
- keywords: up to %d keywords
- topics: up to %d broad topics
- difficulty: one of "beginner", "intermediate", "advanced"
- authorBackground, bookBackground, worldRelevance: short prose (optional)
- quizQuestions: up to %d questions, each with exactly 4 options, a 0-based answer index, and an explanation
- mindMap: a rooted tree {"name": string, "children": [...]} summarizing the structure
- confidence: your confidence in this analysis, between 0 and 1

Write prose in the language of the title and description.`,
		MaxKeyPoints, MaxKeywords, MaxTopics, MaxQuizQuestions))

	return sb.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(unknown)"
	}
	return s
}

// TruncateExcerpt clips extracted text to the prompt budget without
// splitting a multi-byte character.
func TruncateExcerpt(text string, max int) string {
	if max <= 0 {
		max = DefaultMaxExcerptChars
	}
	if len(text) <= max {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
