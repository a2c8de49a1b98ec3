package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestNormalize_Caps(t *testing.T) {
	var keywords, keyPoints, topics, quiz []string
	for i := 0; i < 20; i++ {
		keywords = append(keywords, fmt.Sprintf("%q", fmt.Sprintf("kw%d", i)))
		keyPoints = append(keyPoints, fmt.Sprintf("%q", fmt.Sprintf("kp%d", i)))
		topics = append(topics, fmt.Sprintf("%q", fmt.Sprintf("tp%d", i)))
		quiz = append(quiz, `{"question":"q?","options":["a","b","c","d"],"answer":1,"explanation":"e"}`)
	}

	parsed := json.RawMessage(fmt.Sprintf(`{
		"summary": "A summary.",
		"keyPoints": [%s],
		"keywords": [%s],
		"topics": [%s],
		"difficulty": "advanced",
		"quizQuestions": [%s],
		"confidence": 0.9
	}`, strings.Join(keyPoints, ","), strings.Join(keywords, ","),
		strings.Join(topics, ","), strings.Join(quiz, ",")))

	rec, err := Normalize(parsed, "test-model")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if len(rec.KeyPoints) != MaxKeyPoints {
		t.Errorf("KeyPoints len = %d, want %d", len(rec.KeyPoints), MaxKeyPoints)
	}
	if len(rec.Keywords) != MaxKeywords {
		t.Errorf("Keywords len = %d, want %d", len(rec.Keywords), MaxKeywords)
	}
	if len(rec.Topics) != MaxTopics {
		t.Errorf("Topics len = %d, want %d", len(rec.Topics), MaxTopics)
	}
	if len(rec.QuizQuestions) != MaxQuizQuestions {
		t.Errorf("QuizQuestions len = %d, want %d", len(rec.QuizQuestions), MaxQuizQuestions)
	}
	if rec.Model != "test-model" {
		t.Errorf("Model = %s", rec.Model)
	}
}

func TestNormalize_ConfidenceClamp(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want float64
	}{
		{`1.7`, 1},
		{`-0.3`, 0},
		{`0.42`, 0.42},
	} {
		parsed := json.RawMessage(fmt.Sprintf(`{
			"summary": "s", "keyPoints": [], "keywords": [], "topics": [],
			"difficulty": "beginner", "confidence": %s
		}`, tt.in))

		rec, err := Normalize(parsed, "m")
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if rec.Confidence != tt.want {
			t.Errorf("confidence %s => %v, want %v", tt.in, rec.Confidence, tt.want)
		}
	}

	// Missing confidence defaults to a neutral value.
	rec, err := Normalize(json.RawMessage(`{
		"summary": "s", "keyPoints": [], "keywords": [], "topics": [], "difficulty": "beginner"
	}`), "m")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if rec.Confidence != 0.5 {
		t.Errorf("missing confidence => %v, want 0.5", rec.Confidence)
	}
}

func TestNormalizeDifficulty(t *testing.T) {
	tests := map[string]string{
		"beginner":     DifficultyBeginner,
		"Easy":         DifficultyBeginner,
		"BASIC":        DifficultyBeginner,
		"入门":           DifficultyBeginner,
		"初级":           DifficultyBeginner,
		"intermediate": DifficultyIntermediate,
		"Medium":       DifficultyIntermediate,
		"中级":           DifficultyIntermediate,
		"advanced":     DifficultyAdvanced,
		"Expert":       DifficultyAdvanced,
		"高级":           DifficultyAdvanced,
		"进阶":           DifficultyAdvanced,
		"":             DifficultyIntermediate,
		"nonsense":     DifficultyIntermediate,
		" Advanced ":   DifficultyAdvanced,
	}

	for in, want := range tests {
		if got := NormalizeDifficulty(in); got != want {
			t.Errorf("NormalizeDifficulty(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalize_QuizValidation(t *testing.T) {
	parsed := json.RawMessage(`{
		"summary": "s", "keyPoints": [], "keywords": [], "topics": [], "difficulty": "beginner",
		"quizQuestions": [
			{"question":"good?","options":["a","b","c","d"],"answer":2,"explanation":"e"},
			{"question":"three options","options":["a","b","c"],"answer":0},
			{"question":"bad index","options":["a","b","c","d"],"answer":7},
			{"question":"","options":["a","b","c","d"],"answer":0}
		]
	}`)

	rec, err := Normalize(parsed, "m")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(rec.QuizQuestions) != 1 {
		t.Fatalf("expected 1 surviving question, got %d", len(rec.QuizQuestions))
	}
	if rec.QuizQuestions[0].Question != "good?" {
		t.Errorf("wrong question survived: %q", rec.QuizQuestions[0].Question)
	}
}

func TestNormalize_MissingSummary(t *testing.T) {
	_, err := Normalize(json.RawMessage(`{"keyPoints": [], "keywords": [], "topics": []}`), "m")
	if err == nil {
		t.Error("expected error for missing summary")
	}

	_, err = Normalize(json.RawMessage(`not json`), "m")
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestNormalize_MindMap(t *testing.T) {
	parsed := json.RawMessage(`{
		"summary": "s", "keyPoints": [], "keywords": [], "topics": [], "difficulty": "beginner",
		"mindMap": {"name": "root", "children": [{"name": "child"}]}
	}`)

	rec, err := Normalize(parsed, "m")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if rec.MindMap == nil || rec.MindMap.Name != "root" {
		t.Fatalf("MindMap = %+v", rec.MindMap)
	}
	if len(rec.MindMap.Children) != 1 || rec.MindMap.Children[0].Name != "child" {
		t.Errorf("MindMap children = %+v", rec.MindMap.Children)
	}
}
