package analysis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lectern-dev/lectern/internal/assets"
	"github.com/lectern-dev/lectern/internal/llmcall"
	"github.com/lectern-dev/lectern/internal/pdfscan"
	"github.com/lectern-dev/lectern/internal/providers"
)

// Options tunes analysis generation.
type Options struct {
	// Provider is the registry name of the LLM provider. Empty means
	// "use any registered provider"; none registered means fallback.
	Provider string
	// Model overrides the provider's default model.
	Model string
	// Timeout bounds a single provider call.
	Timeout time.Duration
	// MaxExcerptChars caps the prompt excerpt.
	MaxExcerptChars int
	// MaxFetchBytes caps the asset read.
	MaxFetchBytes int
}

func (o *Options) fillDefaults() {
	if o.Timeout == 0 {
		o.Timeout = 120 * time.Second
	}
	if o.MaxExcerptChars == 0 {
		o.MaxExcerptChars = DefaultMaxExcerptChars
	}
	if o.MaxFetchBytes == 0 {
		o.MaxFetchBytes = assets.DefaultMaxBytes
	}
}

// Service orchestrates analysis generation: cache lookup, best-effort
// text extraction, one provider call with one repair attempt, and the
// deterministic fallback. Stateless aside from its dependencies.
type Service struct {
	repo      Repository
	registry  *providers.Registry
	fetcher   *assets.Fetcher
	extractor pdfscan.Extractor
	recorder  *llmcall.Recorder
	limiter   *providers.RateLimiter
	logger    *slog.Logger
	opts      Options
}

// NewService creates an analysis Service. registry, fetcher, extractor,
// recorder, and limiter may all be nil; each disables its concern.
func NewService(repo Repository, registry *providers.Registry, fetcher *assets.Fetcher,
	extractor pdfscan.Extractor, recorder *llmcall.Recorder, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	opts.fillDefaults()
	return &Service{
		repo:      repo,
		registry:  registry,
		fetcher:   fetcher,
		extractor: extractor,
		recorder:  recorder,
		logger:    logger,
		opts:      opts,
	}
}

// SetRateLimiter installs a shared limiter applied before each
// provider call.
func (s *Service) SetRateLimiter(l *providers.RateLimiter) {
	s.limiter = l
}

// GetOrCreate returns the cached analysis for (bookID, fingerprint) or
// generates a fresh one. force deletes all cached analyses for the
// book first. The returned record is always valid; generation failures
// surface as fallback records, never as errors. Errors are reserved
// for repository failures.
func (s *Service) GetOrCreate(ctx context.Context, bookID string, fields BookFields, force bool) (*Record, error) {
	hash := Fingerprint(fields)

	if !force {
		cached, err := s.repo.FindLatest(ctx, bookID, hash)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			if cached.DocID != "" {
				if err := s.repo.TouchAccessed(ctx, cached.DocID); err != nil {
					s.logger.Debug("touch last_accessed_at failed", "doc_id", cached.DocID, "error", err)
				}
			}
			s.logger.Debug("analysis cache hit", "book_id", bookID, "content_hash", hash)
			return cached, nil
		}
	} else {
		deleted, err := s.repo.DeleteAll(ctx, bookID)
		if err != nil {
			s.logger.Warn("failed to clear cached analyses before regeneration",
				"book_id", bookID, "error", err)
		} else if deleted > 0 {
			s.logger.Info("cleared cached analyses", "book_id", bookID, "deleted", deleted)
		}
	}

	rec := s.generate(ctx, bookID, fields)
	rec.BookID = bookID
	rec.ContentHash = hash

	return s.repo.Upsert(ctx, rec)
}

// generate runs the provider pipeline and always returns a record,
// degrading to the fallback on any failure.
func (s *Service) generate(ctx context.Context, bookID string, fields BookFields) *Record {
	client := s.llmClient()
	if client == nil {
		s.logger.Info("no LLM provider configured, using fallback analysis", "book_id", bookID)
		return FallbackRecord(fields, "provider not configured")
	}

	excerpt, pageCount := s.extractExcerpt(ctx, fields)
	prompt := BuildPrompt(fields, excerpt, pageCount)

	result, err := s.chat(ctx, client, bookID, llmcall.PurposeAnalysis, []providers.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return FallbackRecord(fields, err.Error())
	}

	parsed, parseErr := s.parseResult(result)
	if parseErr != nil && result.Content != "" {
		// One repair attempt: ask the same provider to reformat.
		s.logger.Debug("analysis output unparsable, attempting repair",
			"book_id", bookID, "error", parseErr)
		repair, repairErr := s.chat(ctx, client, bookID, llmcall.PurposeAnalysisRepair, []providers.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: providers.StructuredRepairPrompt(OutputSchema, result.Content, parseErr)},
		})
		if repairErr == nil {
			result = repair
			parsed, parseErr = s.parseResult(result)
		}
	}
	if parseErr != nil {
		s.logger.Warn("analysis generation failed after repair attempt",
			"book_id", bookID, "error", parseErr)
		return FallbackRecord(fields, parseErr.Error())
	}

	rec, err := Normalize(parsed, result.ModelUsed)
	if err != nil {
		s.logger.Warn("analysis output failed normalization", "book_id", bookID, "error", err)
		return FallbackRecord(fields, err.Error())
	}
	return rec
}

// chat performs one rate-limited provider call and records it.
func (s *Service) chat(ctx context.Context, client providers.LLMClient, bookID, purpose string, messages []providers.Message) (*providers.ChatResult, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.Debug("rate limiter wait aborted", "error", err)
			return nil, err
		}
	}

	result, err := client.Chat(ctx, &providers.ChatRequest{
		Model:    s.opts.Model,
		Messages: messages,
		Timeout:  s.opts.Timeout,
		ResponseFormat: &providers.ResponseFormat{
			Type:       "json_schema",
			JSONSchema: OutputSchema,
		},
	})
	s.recorder.Record(result, llmcall.RecordOptions{Purpose: purpose, BookID: bookID})
	if err != nil {
		s.logger.Warn("provider call failed", "book_id", bookID, "purpose", purpose, "error", err)
		return nil, err
	}
	return result, nil
}

// parseResult extracts and validates the structured JSON from a chat
// result.
func (s *Service) parseResult(result *providers.ChatResult) (json.RawMessage, error) {
	parsed := result.ParsedJSON
	if len(parsed) == 0 {
		var err error
		parsed, err = providers.ParseStructuredJSON(result.Content)
		if err != nil {
			return nil, err
		}
	}
	if err := providers.ValidateStructuredJSON(OutputSchema, parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

// extractExcerpt fetches the asset and scans it. Best-effort: any
// failure just means the prompt has no grounding text.
func (s *Service) extractExcerpt(ctx context.Context, fields BookFields) (string, int) {
	if s.fetcher == nil || s.extractor == nil || fields.AssetRef == "" {
		return "", 0
	}

	data := s.fetcher.Fetch(ctx, fields.AssetRef, s.opts.MaxFetchBytes)
	if data == nil {
		s.logger.Debug("asset unavailable for excerpt", "ref", fields.AssetRef)
		return "", 0
	}

	result := s.extractor.Extract(data, pdfscan.Metadata{
		Title:  fields.Title,
		Author: fields.Author,
	})
	return TruncateExcerpt(result.Text, s.opts.MaxExcerptChars), result.PageCount
}

// llmClient resolves the configured provider from the registry.
func (s *Service) llmClient() providers.LLMClient {
	if s.registry == nil {
		return nil
	}
	if s.opts.Provider != "" {
		client, err := s.registry.GetLLM(s.opts.Provider)
		if err != nil {
			s.logger.Warn("configured LLM provider unavailable", "provider", s.opts.Provider, "error", err)
			return nil
		}
		return client
	}
	for _, name := range s.registry.ListLLM() {
		if client, err := s.registry.GetLLM(name); err == nil {
			return client
		}
	}
	return nil
}
