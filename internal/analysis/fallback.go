package analysis

import (
	"fmt"
	"strings"
	"unicode"
)

// FallbackConfidence is the fixed confidence of synthesized records.
const FallbackConfidence = 0.3

// Placeholder keyword sets used when the caller supplied no tags.
var (
	fallbackKeywordsEN = []string{"general", "reading"}
	fallbackKeywordsZH = []string{"综合", "阅读"}
)

// FallbackRecord synthesizes a conservative analysis when generation
// cannot produce a grounded result. It states that data is
// insufficient rather than inventing content, derives keywords and
// topics only from caller-supplied tags, and picks its language by a
// crude CJK script check over the input fields.
func FallbackRecord(fields BookFields, reason string) *Record {
	keywords := clipStrings(fields.Tags, MaxKeywords)
	topics := clipStrings(fields.Tags, MaxTopics)

	rec := &Record{
		Difficulty:     DifficultyIntermediate,
		Confidence:     FallbackConfidence,
		GenerationNote: reason,
	}

	if useChineseFallback(fields) {
		title := fields.Title
		if strings.TrimSpace(title) == "" {
			title = "本书"
		}
		rec.Summary = fmt.Sprintf("《%s》的智能分析暂时无法生成：可用资料不足。当前内容基于书目信息自动生成，待获取更多内容后将给出完整分析。", title)
		rec.KeyPoints = []string{
			"暂无足够资料生成要点",
			"可稍后重新生成分析",
		}
		if len(keywords) == 0 {
			keywords = append([]string(nil), fallbackKeywordsZH...)
		}
		if len(topics) == 0 {
			topics = append([]string(nil), fallbackKeywordsZH[:1]...)
		}
	} else {
		title := fields.Title
		if strings.TrimSpace(title) == "" {
			title = "this book"
		}
		rec.Summary = fmt.Sprintf("An AI analysis of %q could not be generated: insufficient data is available. This placeholder is derived from the book's metadata only and will be replaced once a full analysis can be produced.", title)
		rec.KeyPoints = []string{
			"Not enough material was available to extract key points",
			"Regenerate the analysis once the book content is accessible",
		}
		if len(keywords) == 0 {
			keywords = append([]string(nil), fallbackKeywordsEN...)
		}
		if len(topics) == 0 {
			topics = append([]string(nil), fallbackKeywordsEN[:1]...)
		}
	}

	rec.Keywords = keywords
	rec.Topics = topics
	return rec
}

// useChineseFallback applies the script-detection heuristic: a couple
// of CJK code points across the fields, or any CJK in the title,
// selects the localized template. Deliberately not a language
// detector.
func useChineseFallback(fields BookFields) bool {
	if cjkCount(fields.Title) > 0 {
		return true
	}
	combined := fields.Title + fields.Author + fields.Description
	return cjkCount(combined) >= 2
}

func cjkCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			n++
		}
	}
	return n
}
