package pdfscan

import (
	"regexp"
	"strconv"
	"strings"
)

// Default budgets. All of them bound CPU and memory against
// pathological or adversarial inputs.
const (
	DefaultMaxDecodeBytes = 1 << 20 // 1 MiB scan window
	DefaultMaxTextChars   = 20000
	DefaultMaxMatches     = 2000 // per text-showing operator
	DefaultMinPrimary     = 100  // below this, primary recovery is considered failed
)

// Metadata carries caller-supplied book fields. The scanner never
// recovers metadata from the bytes themselves.
type Metadata struct {
	Title    string
	Author   string
	Subject  string
	Keywords string
}

// Result is the outcome of a structural scan. Text is approximate and
// never authoritative. PageCount of 0 means "could not estimate".
type Result struct {
	Text      string
	PageCount int
	Truncated bool
	Metadata  Metadata
}

// Scanner recovers approximate text and page count from raw PDF bytes
// without a PDF parser. It scans for string operands of the Tj and TJ
// text-showing operators and falls back to crude character filtering
// when content streams are compressed.
type Scanner struct {
	MaxDecodeBytes int
	MaxTextChars   int
	MaxMatches     int
	MinPrimary     int
}

// NewScanner returns a Scanner with default budgets.
func NewScanner() *Scanner {
	return &Scanner{
		MaxDecodeBytes: DefaultMaxDecodeBytes,
		MaxTextChars:   DefaultMaxTextChars,
		MaxMatches:     DefaultMaxMatches,
		MinPrimary:     DefaultMinPrimary,
	}
}

var (
	// (literal) Tj — literal allows escaped characters.
	tjPattern = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)\s*Tj`)
	// [ ...literals... ] TJ
	tjArrayPattern = regexp.MustCompile(`\[((?:\\.|[^\]])*)\]\s*TJ`)
	// Literals inside a TJ array.
	literalPattern = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)`)

	// /Type /Page object marker. \b keeps /Pages (the page tree node)
	// from counting.
	pageObjectPattern = regexp.MustCompile(`/Type\s*/Page\b`)
	loosePagePattern  = regexp.MustCompile(`/Page\b`)

	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Scan extracts approximate text and a page count estimate from data.
// It never fails: malformed input yields an empty-ish Result.
func (s *Scanner) Scan(data []byte, meta Metadata) Result {
	result := Result{Metadata: meta}
	if len(data) == 0 {
		return result
	}

	window := data
	if s.MaxDecodeBytes > 0 && len(window) > s.MaxDecodeBytes {
		window = window[:s.MaxDecodeBytes]
		result.Truncated = true
	}

	// Decode one byte per character so offsets line up with PDF syntax
	// tokens regardless of the file's actual string encodings.
	decoded := decodeLatin1(window)

	text := s.primaryText(decoded)
	if countTextChars(text) < s.MinPrimary {
		// Compressed or encoded content streams. Crude filter over the
		// raw bytes; may include structural PDF syntax as "text".
		text = s.fallbackText(window)
	}

	if s.MaxTextChars > 0 && len(text) > s.MaxTextChars {
		text = truncateAtRune(text, s.MaxTextChars)
		result.Truncated = true
	}
	result.Text = text
	result.PageCount = s.countPages(decoded)
	return result
}

// primaryText recovers string operands of Tj and TJ operators.
func (s *Scanner) primaryText(decoded string) string {
	var sb strings.Builder

	matches := tjPattern.FindAllStringSubmatch(decoded, s.MaxMatches)
	for _, m := range matches {
		sb.WriteString(unescapeLiteral(m[1]))
		sb.WriteByte(' ')
	}

	arrays := tjArrayPattern.FindAllStringSubmatch(decoded, s.MaxMatches)
	for _, m := range arrays {
		for _, lit := range literalPattern.FindAllStringSubmatch(m[1], -1) {
			sb.WriteString(unescapeLiteral(lit[1]))
		}
		sb.WriteByte(' ')
	}

	return collapseWhitespace(sb.String())
}

// fallbackText strips everything outside printable ASCII and common
// CJK ranges from the raw bytes.
func (s *Scanner) fallbackText(window []byte) string {
	var sb strings.Builder
	sb.Grow(len(window) / 2)
	for _, r := range string(window) {
		if isKeepable(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteByte(' ')
		}
	}
	return collapseWhitespace(sb.String())
}

// countPages counts page-object markers, falling back to the looser
// single-token marker. Reports 0 rather than guessing.
func (s *Scanner) countPages(decoded string) int {
	if n := len(pageObjectPattern.FindAllStringIndex(decoded, -1)); n > 0 {
		return n
	}
	loose := loosePagePattern.FindAllStringIndex(decoded, -1)
	return len(loose)
}

func decodeLatin1(data []byte) string {
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}

// unescapeLiteral resolves PDF string escape sequences, including
// octal codes, inside a content-stream literal.
func unescapeLiteral(lit string) string {
	if !strings.ContainsRune(lit, '\\') {
		return lit
	}
	var sb strings.Builder
	sb.Grow(len(lit))
	for i := 0; i < len(lit); i++ {
		c := lit[i]
		if c != '\\' || i+1 >= len(lit) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch lit[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case '(', ')', '\\':
			sb.WriteByte(lit[i])
		case '0', '1', '2', '3', '4', '5', '6', '7':
			// Up to three octal digits.
			j := i
			for j < len(lit) && j < i+3 && lit[j] >= '0' && lit[j] <= '7' {
				j++
			}
			if v, err := strconv.ParseUint(lit[i:j], 8, 16); err == nil {
				sb.WriteByte(byte(v))
			}
			i = j - 1
		default:
			sb.WriteByte(lit[i])
		}
	}
	return sb.String()
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

// countTextChars counts non-space characters, the signal used to judge
// whether primary recovery produced real text.
func countTextChars(s string) int {
	n := 0
	for _, r := range s {
		if r != ' ' {
			n++
		}
	}
	return n
}

func truncateAtRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && cut > max-4 {
		r := s[cut]
		// Do not split a multi-byte sequence.
		if r < 0x80 || r >= 0xC0 {
			break
		}
		cut--
	}
	return s[:cut]
}

// isKeepable reports whether a rune survives the crude fallback
// filter: printable ASCII plus common CJK blocks.
func isKeepable(r rune) bool {
	switch {
	case r >= 0x20 && r <= 0x7E:
		return true
	case r >= 0x3000 && r <= 0x303F: // CJK punctuation
		return true
	case r >= 0x3040 && r <= 0x30FF: // Hiragana, Katakana
		return true
	case r >= 0x4E00 && r <= 0x9FFF: // CJK unified ideographs
		return true
	case r >= 0xAC00 && r <= 0xD7AF: // Hangul syllables
		return true
	case r >= 0xFF00 && r <= 0xFFEF: // Fullwidth forms
		return true
	}
	return false
}
