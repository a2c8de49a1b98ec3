package pdfscan

import (
	"bytes"
	"log/slog"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Extractor recovers text and page count from raw PDF bytes. The
// heuristic Scanner is the default; PDFCPUExtractor layers an exact
// page count on top of it.
type Extractor interface {
	Extract(data []byte, meta Metadata) Result
}

// Extract implements Extractor for Scanner.
func (s *Scanner) Extract(data []byte, meta Metadata) Result {
	return s.Scan(data, meta)
}

// PDFCPUExtractor uses pdfcpu for an exact page count and falls back
// to the structural scanner when the bytes are not a well-formed PDF.
// Text recovery always comes from the scanner.
type PDFCPUExtractor struct {
	scanner *Scanner
	logger  *slog.Logger
}

// NewPDFCPUExtractor creates an extractor backed by pdfcpu.
func NewPDFCPUExtractor(scanner *Scanner, logger *slog.Logger) *PDFCPUExtractor {
	if scanner == nil {
		scanner = NewScanner()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFCPUExtractor{scanner: scanner, logger: logger}
}

// Extract runs the structural scan and replaces the page count
// estimate with pdfcpu's exact count when the document parses.
func (e *PDFCPUExtractor) Extract(data []byte, meta Metadata) Result {
	result := e.scanner.Scan(data, meta)

	count, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		e.logger.Debug("pdfcpu page count failed, keeping estimate",
			"error", err, "estimate", result.PageCount)
		return result
	}
	result.PageCount = count
	return result
}

var (
	_ Extractor = (*Scanner)(nil)
	_ Extractor = (*PDFCPUExtractor)(nil)
)
