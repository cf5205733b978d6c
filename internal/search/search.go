// Package search is the search query layer (C9): thin orchestration over
// storage's full-text search and stats queries. It owns query sanitization
// and pagination clamping so callers (an eventual HTTP layer, CLI tooling)
// never touch raw FTS5 syntax or an unbounded page size.
package search

import (
	"context"

	"github.com/nicolasestrem/memoire/internal/sanitize"
	"github.com/nicolasestrem/memoire/internal/storage"
)

// Service wraps a Store with the sanitized, paginated query surface.
type Service struct {
	Store *storage.Store
}

// New builds a Service over store.
func New(store *storage.Store) *Service {
	return &Service{Store: store}
}

// SearchOCR sanitizes query into a literal FTS5 phrase, clamps pagination,
// and runs it against the OCR full-text index. A limit of exactly 0 returns
// an empty result set without querying the index; omitted/negative limits
// fall back to ClampPagination's default of 50 rather than being treated as
// this explicit zero-result request.
func (s *Service) SearchOCR(ctx context.Context, query string, limit, offset int) ([]storage.OCRSearchResult, int64, error) {
	sanitized, err := sanitize.FTS5Query(query)
	if err != nil {
		return nil, 0, err
	}
	if limit == 0 {
		return nil, 0, nil
	}
	limit, offset = sanitize.ClampPagination(limit, offset)
	return s.Store.SearchOCR(ctx, sanitized, limit, offset)
}

// SearchAudio is the audio-pipeline analogue of SearchOCR.
func (s *Service) SearchAudio(ctx context.Context, query string, limit, offset int) ([]storage.AudioSearchResult, int64, error) {
	sanitized, err := sanitize.FTS5Query(query)
	if err != nil {
		return nil, 0, err
	}
	if limit == 0 {
		return nil, 0, nil
	}
	limit, offset = sanitize.ClampPagination(limit, offset)
	return s.Store.SearchAudio(ctx, sanitized, limit, offset)
}

// IndexerStats merges the video/OCR and audio/ASR pipeline stats into a
// single combined view for a status surface.
type IndexerStats struct {
	OCR   storage.OCRStats
	Audio storage.AudioStats
}

// GetIndexerStats reads both pipelines' stats. It is a pure read over
// internal/storage; no caching or aggregation state is kept here.
func (s *Service) GetIndexerStats(ctx context.Context) (IndexerStats, error) {
	ocrStats, err := s.Store.GetOCRStats(ctx)
	if err != nil {
		return IndexerStats{}, err
	}
	audioStats, err := s.Store.GetAudioStats(ctx)
	if err != nil {
		return IndexerStats{}, err
	}
	return IndexerStats{OCR: ocrStats, Audio: audioStats}, nil
}

// ListOrphanedChunks surfaces video chunks whose backing file no longer
// exists on disk, supporting an external retention policy without
// performing deletion itself.
func (s *Service) ListOrphanedChunks(ctx context.Context, exists func(path string) bool) ([]storage.VideoChunk, error) {
	return s.Store.ListOrphanedChunks(ctx, exists)
}
