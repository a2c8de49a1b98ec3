package assets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lectern-dev/lectern/internal/home"
)

// DefaultMaxBytes caps how much of an asset is read for extraction.
const DefaultMaxBytes = 512 * 1024

// Fetcher resolves a logical asset reference to its first maxBytes of
// content, trying blob store candidate keys before HTTP.
type Fetcher struct {
	home   *home.Dir
	client *http.Client
	logger *slog.Logger
}

// NewFetcher creates a Fetcher over the home blob store.
func NewFetcher(homeDir *home.Dir, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		home:   homeDir,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// SetHTTPClient overrides the HTTP client, mainly for tests.
func (f *Fetcher) SetHTTPClient(c *http.Client) {
	f.client = c
}

// Fetch returns up to maxBytes of the asset, or nil when the reference
// cannot be resolved. It never returns an error: a nil result means
// "extraction unavailable" and callers proceed without grounding text.
func (f *Fetcher) Fetch(ctx context.Context, assetRef string, maxBytes int) []byte {
	assetRef = strings.TrimSpace(assetRef)
	if assetRef == "" {
		return nil
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	// Blob candidates first, even for URL-shaped references: a locally
	// stored copy beats a network round trip.
	if data := f.fetchBlob(assetRef, maxBytes); data != nil {
		return data
	}

	if isHTTPURL(assetRef) {
		return f.fetchHTTP(ctx, assetRef, maxBytes)
	}

	f.logger.Debug("asset reference unresolvable", "ref", assetRef)
	return nil
}

// candidateKeys derives blob store keys to try, in order. The raw
// reference wins over the folder-convention prefixes.
func candidateKeys(assetRef string) []string {
	key := strings.TrimPrefix(assetRef, "/")
	keys := []string{key}
	if !strings.HasPrefix(key, "book-file/") {
		keys = append(keys, "book-file/"+key)
	}
	if !strings.HasPrefix(key, "uploads/") {
		keys = append(keys, "uploads/"+key)
	}
	return keys
}

func (f *Fetcher) fetchBlob(assetRef string, maxBytes int) []byte {
	if f.home == nil {
		return nil
	}
	for _, key := range candidateKeys(assetRef) {
		path, err := f.home.BlobPath(key)
		if err != nil {
			f.logger.Debug("invalid blob key", "key", key, "error", err)
			continue
		}
		data, err := readPrefix(path, maxBytes)
		if err != nil {
			if !os.IsNotExist(err) {
				f.logger.Debug("blob read failed", "key", key, "error", err)
			}
			continue
		}
		return data
	}
	return nil
}

func readPrefix(path string, maxBytes int) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, int64(maxBytes)))
	if err != nil {
		return nil, err
	}
	return data, nil
}

// fetchHTTP issues a range-limited request for the first maxBytes.
// Servers that ignore the Range header still get truncated locally.
func (f *Fetcher) fetchHTTP(ctx context.Context, url string, maxBytes int) []byte {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		f.logger.Debug("asset request build failed", "url", url, "error", err)
		return nil
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", maxBytes-1))

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Debug("asset fetch failed", "url", url, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		f.logger.Debug("asset fetch unexpected status", "url", url, "status", resp.StatusCode)
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxBytes)))
	if err != nil {
		f.logger.Debug("asset body read failed", "url", url, "error", err)
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	return data
}

func isHTTPURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
