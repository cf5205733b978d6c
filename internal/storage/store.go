package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nicolasestrem/memoire/internal/merr"
)

const timeLayout = time.RFC3339

// Store wraps the relational database: one writer transaction in flight at
// a time, WAL mode so readers never block the writer, per spec §5.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if absent) the SQLite database at path, enables WAL
// mode and foreign keys, and applies any pending migrations. Failure here is
// fatal at the process boundary (exit code 2).
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, merr.NewFatal("storage.open", err)
	}
	// A single pooled connection: at most one writer transaction is in flight
	// at a time, and reads through this Store wait for that same connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, merr.NewFatal("storage.open", fmt.Errorf("enable wal: %w", err))
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, merr.NewFatal("storage.open", fmt.Errorf("enable foreign_keys: %w", err))
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, merr.NewFatal("storage.open", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func parseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	// Compatibility fallback per spec §4.4.
	if t, err := time.Parse("2006-01-02 15:04:05", raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", raw)
}

// InsertVideoChunk creates a video_chunks row and returns its id.
func (s *Store) InsertVideoChunk(ctx context.Context, deviceName, filePath string, width, height *int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO video_chunks (file_path, device_name, created_at, width, height) VALUES (?, ?, ?, ?, ?)`,
		filePath, deviceName, time.Now().UTC().Format(timeLayout), width, height)
	if err != nil {
		return 0, merr.NewDBError("insert_video_chunk", isBusyErr(err), err)
	}
	return res.LastInsertId()
}

// InsertAudioChunk creates an audio_chunks row and returns its id.
func (s *Store) InsertAudioChunk(ctx context.Context, filePath string, deviceName *string, isInputDevice *bool) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO audio_chunks (file_path, device_name, is_input_device, timestamp) VALUES (?, ?, ?, ?)`,
		filePath, deviceName, isInputDevice, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return 0, merr.NewDBError("insert_audio_chunk", isBusyErr(err), err)
	}
	return res.LastInsertId()
}

// InsertFrame inserts a single frame row and returns its id.
func (s *Store) InsertFrame(ctx context.Context, f NewFrame) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO frames (video_chunk_id, offset_index, timestamp, app_name, window_name, browser_url, focused, frame_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.VideoChunkID, f.OffsetIndex, f.Timestamp.UTC().Format(timeLayout),
		f.AppName, f.WindowName, f.BrowserURL, f.Focused, f.FrameHash)
	if err != nil {
		return 0, merr.NewDBError("insert_frame", isBusyErr(err), err)
	}
	return res.LastInsertId()
}

// InsertFramesBatch commits all inserts in a single transaction and returns
// the assigned ids in input order.
func (s *Store) InsertFramesBatch(ctx context.Context, frames []NewFrame) ([]int64, error) {
	if len(frames) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, merr.NewDBError("insert_frames_batch", isBusyErr(err), err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO frames (video_chunk_id, offset_index, timestamp, app_name, window_name, browser_url, focused, frame_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, merr.NewDBError("insert_frames_batch", isBusyErr(err), err)
	}
	defer stmt.Close()

	ids := make([]int64, len(frames))
	for i, f := range frames {
		res, err := stmt.ExecContext(ctx, f.VideoChunkID, f.OffsetIndex, f.Timestamp.UTC().Format(timeLayout),
			f.AppName, f.WindowName, f.BrowserURL, f.Focused, f.FrameHash)
		if err != nil {
			return nil, merr.NewDBError("insert_frames_batch", isBusyErr(err), err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, merr.NewDBError("insert_frames_batch", false, err)
		}
		ids[i] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, merr.NewDBError("insert_frames_batch", isBusyErr(err), err)
	}
	return ids, nil
}

// InsertOCRText inserts the ocr_text row for a frame; the AFTER INSERT
// trigger mirrors it into ocr_text_fts atomically within the same
// statement's implicit transaction.
func (s *Store) InsertOCRText(ctx context.Context, frameID int64, text string, textJSON *string, confidence *float64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ocr_text (frame_id, text, text_json, confidence) VALUES (?, ?, ?, ?)`,
		frameID, text, textJSON, confidence)
	if err != nil {
		return 0, merr.NewDBError("insert_ocr_text", isBusyErr(err), err)
	}
	return res.LastInsertId()
}

// InsertAudioTranscription inserts one transcription segment row.
func (s *Store) InsertAudioTranscription(ctx context.Context, t AudioTranscription) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO audio_transcriptions (audio_chunk_id, transcription, timestamp, speaker_id, start_time, end_time)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.AudioChunkID, t.Text, t.Timestamp.UTC().Format(timeLayout), t.SpeakerID, t.StartTime, t.EndTime)
	if err != nil {
		return 0, merr.NewDBError("insert_audio_transcription", isBusyErr(err), err)
	}
	return res.LastInsertId()
}

// GetFramesWithoutOCR returns frames with no ocr_text row, ordered by
// timestamp ascending, for indexer consumption.
func (s *Store) GetFramesWithoutOCR(ctx context.Context, limit int) ([]Frame, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.video_chunk_id, f.offset_index, f.timestamp, f.app_name, f.window_name, f.browser_url, f.focused, f.frame_hash
		FROM frames f
		LEFT JOIN ocr_text o ON o.frame_id = f.id
		WHERE o.id IS NULL
		ORDER BY f.timestamp ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, merr.NewDBError("get_frames_without_ocr", isBusyErr(err), err)
	}
	defer rows.Close()

	var frames []Frame
	for rows.Next() {
		f, err := scanFrame(rows)
		if err != nil {
			return nil, merr.NewDBError("get_frames_without_ocr", false, err)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFrame(r rowScanner) (Frame, error) {
	var f Frame
	var ts string
	if err := r.Scan(&f.ID, &f.VideoChunkID, &f.OffsetIndex, &ts, &f.AppName, &f.WindowName, &f.BrowserURL, &f.Focused, &f.FrameHash); err != nil {
		return Frame{}, err
	}
	parsed, err := parseTimestamp(ts)
	if err != nil {
		return Frame{}, err
	}
	f.Timestamp = parsed
	return f, nil
}

// GetFrameWithOCR left-joins a frame with its optional OCR row.
func (s *Store) GetFrameWithOCR(ctx context.Context, id int64) (Frame, *OcrRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT f.id, f.video_chunk_id, f.offset_index, f.timestamp, f.app_name, f.window_name, f.browser_url, f.focused, f.frame_hash,
		       o.id, o.text, o.text_json, o.confidence
		FROM frames f
		LEFT JOIN ocr_text o ON o.frame_id = f.id
		WHERE f.id = ?`, id)

	var f Frame
	var ts string
	var ocrID sql.NullInt64
	var ocrText sql.NullString
	var ocrTextJSON sql.NullString
	var ocrConfidence sql.NullFloat64

	if err := row.Scan(&f.ID, &f.VideoChunkID, &f.OffsetIndex, &ts, &f.AppName, &f.WindowName, &f.BrowserURL, &f.Focused, &f.FrameHash,
		&ocrID, &ocrText, &ocrTextJSON, &ocrConfidence); err != nil {
		return Frame{}, nil, merr.NewDBError("get_frame_with_ocr", isBusyErr(err), err)
	}
	parsed, err := parseTimestamp(ts)
	if err != nil {
		return Frame{}, nil, merr.NewDBError("get_frame_with_ocr", false, err)
	}
	f.Timestamp = parsed

	if !ocrID.Valid {
		return f, nil, nil
	}
	ocr := &OcrRecord{ID: ocrID.Int64, FrameID: f.ID, Text: ocrText.String}
	if ocrTextJSON.Valid {
		ocr.TextJSON = &ocrTextJSON.String
	}
	if ocrConfidence.Valid {
		ocr.Confidence = &ocrConfidence.Float64
	}
	return f, ocr, nil
}

// GetFramesWithOCRInRange returns a left-join of frames with their optional
// OCR row within [start, end], paginated.
func (s *Store) GetFramesWithOCRInRange(ctx context.Context, start, end time.Time, limit, offset int) ([]Frame, []*OcrRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.video_chunk_id, f.offset_index, f.timestamp, f.app_name, f.window_name, f.browser_url, f.focused, f.frame_hash,
		       o.id, o.text, o.text_json, o.confidence
		FROM frames f
		LEFT JOIN ocr_text o ON o.frame_id = f.id
		WHERE f.timestamp >= ? AND f.timestamp <= ?
		ORDER BY f.timestamp ASC
		LIMIT ? OFFSET ?`,
		start.UTC().Format(timeLayout), end.UTC().Format(timeLayout), limit, offset)
	if err != nil {
		return nil, nil, merr.NewDBError("get_frames_with_ocr_in_range", isBusyErr(err), err)
	}
	defer rows.Close()

	var frames []Frame
	var ocrRecords []*OcrRecord
	for rows.Next() {
		var f Frame
		var ts string
		var ocrID sql.NullInt64
		var ocrText sql.NullString
		var ocrTextJSON sql.NullString
		var ocrConfidence sql.NullFloat64
		if err := rows.Scan(&f.ID, &f.VideoChunkID, &f.OffsetIndex, &ts, &f.AppName, &f.WindowName, &f.BrowserURL, &f.Focused, &f.FrameHash,
			&ocrID, &ocrText, &ocrTextJSON, &ocrConfidence); err != nil {
			return nil, nil, merr.NewDBError("get_frames_with_ocr_in_range", false, err)
		}
		parsed, err := parseTimestamp(ts)
		if err != nil {
			return nil, nil, merr.NewDBError("get_frames_with_ocr_in_range", false, err)
		}
		f.Timestamp = parsed
		frames = append(frames, f)

		if ocrID.Valid {
			ocr := &OcrRecord{ID: ocrID.Int64, FrameID: f.ID, Text: ocrText.String}
			if ocrTextJSON.Valid {
				ocr.TextJSON = &ocrTextJSON.String
			}
			if ocrConfidence.Valid {
				ocr.Confidence = &ocrConfidence.Float64
			}
			ocrRecords = append(ocrRecords, ocr)
		} else {
			ocrRecords = append(ocrRecords, nil)
		}
	}
	return frames, ocrRecords, rows.Err()
}

// GetChunksPaginated returns video chunks filtered by optional device/date
// range, most recent first.
func (s *Store) GetChunksPaginated(ctx context.Context, limit, offset int, device *string, startDate, endDate *time.Time) ([]VideoChunk, error) {
	query := `SELECT id, file_path, device_name, created_at, width, height FROM video_chunks WHERE 1=1`
	var args []any
	if device != nil {
		query += ` AND device_name = ?`
		args = append(args, *device)
	}
	if startDate != nil {
		query += ` AND created_at >= ?`
		args = append(args, startDate.UTC().Format(timeLayout))
	}
	if endDate != nil {
		query += ` AND created_at <= ?`
		args = append(args, endDate.UTC().Format(timeLayout))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, merr.NewDBError("get_chunks_paginated", isBusyErr(err), err)
	}
	defer rows.Close()

	var chunks []VideoChunk
	for rows.Next() {
		var c VideoChunk
		var createdAt string
		if err := rows.Scan(&c.ID, &c.FilePath, &c.DeviceName, &createdAt, &c.Width, &c.Height); err != nil {
			return nil, merr.NewDBError("get_chunks_paginated", false, err)
		}
		parsed, err := parseTimestamp(createdAt)
		if err != nil {
			return nil, merr.NewDBError("get_chunks_paginated", false, err)
		}
		c.CreatedAt = parsed
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// GetChunkByID fetches a single video chunk.
func (s *Store) GetChunkByID(ctx context.Context, id int64) (VideoChunk, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, file_path, device_name, created_at, width, height FROM video_chunks WHERE id = ?`, id)
	var c VideoChunk
	var createdAt string
	if err := row.Scan(&c.ID, &c.FilePath, &c.DeviceName, &createdAt, &c.Width, &c.Height); err != nil {
		return VideoChunk{}, merr.NewDBError("get_chunk_by_id", isBusyErr(err), err)
	}
	parsed, err := parseTimestamp(createdAt)
	if err != nil {
		return VideoChunk{}, merr.NewDBError("get_chunk_by_id", false, err)
	}
	c.CreatedAt = parsed
	return c, nil
}

// ListOrphanedChunks returns video chunks whose file no longer exists on
// disk, a read-only helper for manual/retention tooling (not exercised by
// the core pipeline itself).
func (s *Store) ListOrphanedChunks(ctx context.Context, exists func(path string) bool) ([]VideoChunk, error) {
	all, err := s.GetChunksPaginated(ctx, maxLimitAll, 0, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	var orphaned []VideoChunk
	for _, c := range all {
		if !exists(c.FilePath) {
			orphaned = append(orphaned, c)
		}
	}
	return orphaned, nil
}

// GetAudioChunksWithoutTranscription returns audio chunks with no
// audio_transcriptions row, ordered by timestamp ascending, for the audio
// indexer — the audio-variant analogue of GetFramesWithoutOCR.
func (s *Store) GetAudioChunksWithoutTranscription(ctx context.Context, limit int) ([]AudioChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.file_path, c.device_name, c.is_input_device, c.timestamp
		FROM audio_chunks c
		LEFT JOIN audio_transcriptions t ON t.audio_chunk_id = c.id
		WHERE t.id IS NULL
		ORDER BY c.timestamp ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, merr.NewDBError("get_audio_chunks_without_transcription", isBusyErr(err), err)
	}
	defer rows.Close()

	var chunks []AudioChunk
	for rows.Next() {
		var c AudioChunk
		var ts string
		if err := rows.Scan(&c.ID, &c.FilePath, &c.DeviceName, &c.IsInputDevice, &ts); err != nil {
			return nil, merr.NewDBError("get_audio_chunks_without_transcription", false, err)
		}
		parsed, err := parseTimestamp(ts)
		if err != nil {
			return nil, merr.NewDBError("get_audio_chunks_without_transcription", false, err)
		}
		c.Timestamp = parsed
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

const maxLimitAll = 1_000_000

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsAny(msg, "database is locked", "SQLITE_BUSY", "database table is locked")
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if len(s) >= len(sub) {
			for i := 0; i+len(sub) <= len(s); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}
