package storage

import (
	"context"
	"database/sql"

	"github.com/nicolasestrem/memoire/internal/merr"
)

// OCRSearchResult is one ranked hit from SearchOCR, joined back to the
// frame and video chunk it came from so a caller never needs a follow-up
// query to render a result.
type OCRSearchResult struct {
	Frame      Frame
	Chunk      VideoChunk
	Text       string
	Confidence *float64
	Rank       float64
}

// AudioSearchResult is the audio-pipeline analogue of OCRSearchResult.
type AudioSearchResult struct {
	Transcription AudioTranscription
	Chunk         AudioChunk
	Rank          float64
}

// SearchOCR runs query (already sanitized by sanitize.FTS5Query) against
// ocr_text_fts, ranked by bm25, and returns the page plus the total match
// count across the whole result set.
func (s *Store) SearchOCR(ctx context.Context, sanitizedQuery string, limit, offset int) ([]OCRSearchResult, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ocr_text_fts WHERE ocr_text_fts MATCH ?`, sanitizedQuery).Scan(&total); err != nil {
		return nil, 0, merr.NewDBError("search_ocr_count", isBusyErr(err), err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.video_chunk_id, f.offset_index, f.timestamp, f.app_name, f.window_name, f.browser_url, f.focused, f.frame_hash,
		       vc.id, vc.file_path, vc.device_name, vc.created_at, vc.width, vc.height,
		       o.text, o.confidence, bm25(ocr_text_fts) AS rank
		FROM ocr_text_fts
		JOIN ocr_text o ON o.id = ocr_text_fts.rowid
		JOIN frames f ON f.id = o.frame_id
		JOIN video_chunks vc ON vc.id = f.video_chunk_id
		WHERE ocr_text_fts MATCH ?
		ORDER BY rank
		LIMIT ? OFFSET ?`, sanitizedQuery, limit, offset)
	if err != nil {
		return nil, 0, merr.NewDBError("search_ocr", isBusyErr(err), err)
	}
	defer rows.Close()

	var results []OCRSearchResult
	for rows.Next() {
		var r OCRSearchResult
		var frameTS, chunkTS string
		var confidence sql.NullFloat64
		if err := rows.Scan(
			&r.Frame.ID, &r.Frame.VideoChunkID, &r.Frame.OffsetIndex, &frameTS, &r.Frame.AppName, &r.Frame.WindowName, &r.Frame.BrowserURL, &r.Frame.Focused, &r.Frame.FrameHash,
			&r.Chunk.ID, &r.Chunk.FilePath, &r.Chunk.DeviceName, &chunkTS, &r.Chunk.Width, &r.Chunk.Height,
			&r.Text, &confidence, &r.Rank,
		); err != nil {
			return nil, 0, merr.NewDBError("search_ocr", false, err)
		}
		ts, err := parseTimestamp(frameTS)
		if err != nil {
			return nil, 0, merr.NewDBError("search_ocr", false, err)
		}
		r.Frame.Timestamp = ts
		chunkCreated, err := parseTimestamp(chunkTS)
		if err != nil {
			return nil, 0, merr.NewDBError("search_ocr", false, err)
		}
		r.Chunk.CreatedAt = chunkCreated
		if confidence.Valid {
			r.Confidence = &confidence.Float64
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// SearchAudio runs query against audio_fts, ranked by bm25.
func (s *Store) SearchAudio(ctx context.Context, sanitizedQuery string, limit, offset int) ([]AudioSearchResult, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audio_fts WHERE audio_fts MATCH ?`, sanitizedQuery).Scan(&total); err != nil {
		return nil, 0, merr.NewDBError("search_audio_count", isBusyErr(err), err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.audio_chunk_id, t.transcription, t.timestamp, t.speaker_id, t.start_time, t.end_time,
		       ac.id, ac.file_path, ac.device_name, ac.is_input_device, ac.timestamp,
		       bm25(audio_fts) AS rank
		FROM audio_fts
		JOIN audio_transcriptions t ON t.id = audio_fts.rowid
		JOIN audio_chunks ac ON ac.id = t.audio_chunk_id
		WHERE audio_fts MATCH ?
		ORDER BY rank
		LIMIT ? OFFSET ?`, sanitizedQuery, limit, offset)
	if err != nil {
		return nil, 0, merr.NewDBError("search_audio", isBusyErr(err), err)
	}
	defer rows.Close()

	var results []AudioSearchResult
	for rows.Next() {
		var r AudioSearchResult
		var transTS, chunkTS string
		if err := rows.Scan(
			&r.Transcription.ID, &r.Transcription.AudioChunkID, &r.Transcription.Text, &transTS, &r.Transcription.SpeakerID, &r.Transcription.StartTime, &r.Transcription.EndTime,
			&r.Chunk.ID, &r.Chunk.FilePath, &r.Chunk.DeviceName, &r.Chunk.IsInputDevice, &chunkTS,
			&r.Rank,
		); err != nil {
			return nil, 0, merr.NewDBError("search_audio", false, err)
		}
		ts, err := parseTimestamp(transTS)
		if err != nil {
			return nil, 0, merr.NewDBError("search_audio", false, err)
		}
		r.Transcription.Timestamp = ts
		chunkTimestamp, err := parseTimestamp(chunkTS)
		if err != nil {
			return nil, 0, merr.NewDBError("search_audio", false, err)
		}
		r.Chunk.Timestamp = chunkTimestamp
		results = append(results, r)
	}
	return results, total, rows.Err()
}
