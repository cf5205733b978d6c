package storage

import (
	"context"

	"github.com/nicolasestrem/memoire/internal/merr"
)

// GetOCRStats reports indexer progress for the video/OCR pipeline,
// including a trailing-hour processing rate (OCR'd frames whose capture
// timestamp falls in the last hour) used to estimate backlog drain time.
func (s *Store) GetOCRStats(ctx context.Context) (OCRStats, error) {
	var stats OCRStats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM frames`).Scan(&stats.TotalFrames); err != nil {
		return OCRStats{}, merr.NewDBError("get_ocr_stats", isBusyErr(err), err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ocr_text`).Scan(&stats.FramesWithOCR); err != nil {
		return OCRStats{}, merr.NewDBError("get_ocr_stats", isBusyErr(err), err)
	}
	stats.PendingFrames = stats.TotalFrames - stats.FramesWithOCR

	var recentCount int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM frames f
		JOIN ocr_text o ON o.frame_id = f.id
		WHERE f.timestamp >= strftime('%Y-%m-%dT%H:%M:%SZ', 'now', '-1 hour')`).Scan(&recentCount); err != nil {
		return OCRStats{}, merr.NewDBError("get_ocr_stats", isBusyErr(err), err)
	}
	stats.RatePerHour = float64(recentCount)
	return stats, nil
}

// GetAudioStats is the audio-pipeline analogue of GetOCRStats.
func (s *Store) GetAudioStats(ctx context.Context) (AudioStats, error) {
	var stats AudioStats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audio_chunks`).Scan(&stats.TotalChunks); err != nil {
		return AudioStats{}, merr.NewDBError("get_audio_stats", isBusyErr(err), err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT audio_chunk_id) FROM audio_transcriptions`).Scan(&stats.ChunksWithTranscript); err != nil {
		return AudioStats{}, merr.NewDBError("get_audio_stats", isBusyErr(err), err)
	}
	stats.PendingChunks = stats.TotalChunks - stats.ChunksWithTranscript

	var recentCount int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audio_transcriptions
		WHERE timestamp >= strftime('%Y-%m-%dT%H:%M:%SZ', 'now', '-1 hour')`).Scan(&recentCount); err != nil {
		return AudioStats{}, merr.NewDBError("get_audio_stats", isBusyErr(err), err)
	}
	stats.RatePerHour = float64(recentCount)
	return stats, nil
}
