package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// rawAnalysis is the provider's parsed output before normalization.
type rawAnalysis struct {
	Summary          string            `json:"summary"`
	KeyPoints        []string          `json:"keyPoints"`
	Keywords         []string          `json:"keywords"`
	Topics           []string          `json:"topics"`
	Difficulty       string            `json:"difficulty"`
	AuthorBackground string            `json:"authorBackground"`
	BookBackground   string            `json:"bookBackground"`
	WorldRelevance   string            `json:"worldRelevance"`
	QuizQuestions    []rawQuizQuestion `json:"quizQuestions"`
	MindMap          *MindMapNode      `json:"mindMap"`
	Confidence       *float64          `json:"confidence"`
}

type rawQuizQuestion struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      int      `json:"answer"`
	Explanation string   `json:"explanation"`
}

// Normalize shapes parsed provider output into Record fields: arrays
// clipped to their caps, confidence clamped to [0,1], difficulty
// mapped onto the three-value enum.
func Normalize(parsed json.RawMessage, model string) (*Record, error) {
	var raw rawAnalysis
	if err := json.Unmarshal(parsed, &raw); err != nil {
		return nil, fmt.Errorf("analysis output does not match expected shape: %w", err)
	}
	if strings.TrimSpace(raw.Summary) == "" {
		return nil, fmt.Errorf("analysis output missing summary")
	}

	rec := &Record{
		Summary:          strings.TrimSpace(raw.Summary),
		KeyPoints:        clipStrings(raw.KeyPoints, MaxKeyPoints),
		Keywords:         clipStrings(raw.Keywords, MaxKeywords),
		Topics:           clipStrings(raw.Topics, MaxTopics),
		Difficulty:       NormalizeDifficulty(raw.Difficulty),
		AuthorBackground: strings.TrimSpace(raw.AuthorBackground),
		BookBackground:   strings.TrimSpace(raw.BookBackground),
		WorldRelevance:   strings.TrimSpace(raw.WorldRelevance),
		MindMap:          raw.MindMap,
		Confidence:       clampConfidence(raw.Confidence),
		Model:            model,
	}

	for _, q := range raw.QuizQuestions {
		if len(rec.QuizQuestions) >= MaxQuizQuestions {
			break
		}
		nq, ok := normalizeQuizQuestion(q)
		if !ok {
			continue
		}
		rec.QuizQuestions = append(rec.QuizQuestions, nq)
	}

	return rec, nil
}

// normalizeQuizQuestion validates one question: exactly 4 options and
// an in-range answer index, otherwise it is dropped.
func normalizeQuizQuestion(q rawQuizQuestion) (QuizQuestion, bool) {
	if strings.TrimSpace(q.Question) == "" {
		return QuizQuestion{}, false
	}
	if len(q.Options) != 4 {
		return QuizQuestion{}, false
	}
	if q.Answer < 0 || q.Answer >= len(q.Options) {
		return QuizQuestion{}, false
	}
	return QuizQuestion{
		Question:    strings.TrimSpace(q.Question),
		Options:     q.Options,
		Answer:      q.Answer,
		Explanation: strings.TrimSpace(q.Explanation),
	}, true
}

// difficultySynonyms maps provider variants, including localized
// terms, onto the fixed enum.
var difficultySynonyms = map[string]string{
	"beginner":     DifficultyBeginner,
	"easy":         DifficultyBeginner,
	"basic":        DifficultyBeginner,
	"elementary":   DifficultyBeginner,
	"introductory": DifficultyBeginner,
	"入门":           DifficultyBeginner,
	"初级":           DifficultyBeginner,
	"intermediate": DifficultyIntermediate,
	"medium":       DifficultyIntermediate,
	"moderate":     DifficultyIntermediate,
	"中级":           DifficultyIntermediate,
	"advanced":     DifficultyAdvanced,
	"hard":         DifficultyAdvanced,
	"difficult":    DifficultyAdvanced,
	"expert":       DifficultyAdvanced,
	"高级":           DifficultyAdvanced,
	"进阶":           DifficultyAdvanced,
}

// NormalizeDifficulty maps a difficulty string onto the three-value
// enum, defaulting to intermediate.
func NormalizeDifficulty(s string) string {
	if mapped, ok := difficultySynonyms[strings.ToLower(strings.TrimSpace(s))]; ok {
		return mapped
	}
	return DifficultyIntermediate
}

func clipStrings(items []string, max int) []string {
	out := make([]string, 0, max)
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
		if len(out) == max {
			break
		}
	}
	return out
}

func clampConfidence(v *float64) float64 {
	if v == nil {
		return 0.5
	}
	if *v < 0 {
		return 0
	}
	if *v > 1 {
		return 1
	}
	return *v
}
