package storage

import (
	"database/sql"
	"fmt"
)

// schemaVersion is the current database/sql user_version. Migrations are
// additive, idempotent and forward-only: v1 is the full initial schema, v2
// is reserved, v3 adds frames.frame_hash.
const schemaVersion = 3

var migrations = map[int]string{
	1: schemaV1,
	2: schemaV2,
	3: schemaV3,
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS video_chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path TEXT NOT NULL,
	device_name TEXT NOT NULL,
	created_at TEXT NOT NULL,
	width INTEGER,
	height INTEGER
);

CREATE TABLE IF NOT EXISTS frames (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	video_chunk_id INTEGER NOT NULL REFERENCES video_chunks(id),
	offset_index INTEGER NOT NULL,
	timestamp TEXT NOT NULL,
	app_name TEXT,
	window_name TEXT,
	browser_url TEXT,
	focused INTEGER NOT NULL DEFAULT 0,
	UNIQUE (video_chunk_id, offset_index)
);

CREATE TABLE IF NOT EXISTS ocr_text (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	frame_id INTEGER NOT NULL UNIQUE REFERENCES frames(id),
	text TEXT NOT NULL,
	text_json TEXT,
	confidence REAL
);

CREATE TABLE IF NOT EXISTS audio_chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path TEXT NOT NULL,
	device_name TEXT,
	is_input_device INTEGER,
	timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audio_transcriptions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	audio_chunk_id INTEGER NOT NULL REFERENCES audio_chunks(id),
	transcription TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	speaker_id TEXT,
	start_time REAL,
	end_time REAL
);

CREATE VIRTUAL TABLE IF NOT EXISTS ocr_text_fts USING fts5(
	text, content='ocr_text', content_rowid='id'
);

CREATE VIRTUAL TABLE IF NOT EXISTS audio_fts USING fts5(
	transcription, content='audio_transcriptions', content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS ocr_text_ai AFTER INSERT ON ocr_text BEGIN
	INSERT INTO ocr_text_fts(rowid, text) VALUES (new.id, new.text);
END;
CREATE TRIGGER IF NOT EXISTS ocr_text_ad AFTER DELETE ON ocr_text BEGIN
	INSERT INTO ocr_text_fts(ocr_text_fts, rowid, text) VALUES ('delete', old.id, old.text);
END;
CREATE TRIGGER IF NOT EXISTS ocr_text_au AFTER UPDATE ON ocr_text BEGIN
	INSERT INTO ocr_text_fts(ocr_text_fts, rowid, text) VALUES ('delete', old.id, old.text);
	INSERT INTO ocr_text_fts(rowid, text) VALUES (new.id, new.text);
END;

CREATE TRIGGER IF NOT EXISTS audio_transcriptions_ai AFTER INSERT ON audio_transcriptions BEGIN
	INSERT INTO audio_fts(rowid, transcription) VALUES (new.id, new.transcription);
END;
CREATE TRIGGER IF NOT EXISTS audio_transcriptions_ad AFTER DELETE ON audio_transcriptions BEGIN
	INSERT INTO audio_fts(audio_fts, rowid, transcription) VALUES ('delete', old.id, old.transcription);
END;
CREATE TRIGGER IF NOT EXISTS audio_transcriptions_au AFTER UPDATE ON audio_transcriptions BEGIN
	INSERT INTO audio_fts(audio_fts, rowid, transcription) VALUES ('delete', old.id, old.transcription);
	INSERT INTO audio_fts(rowid, transcription) VALUES (new.id, new.transcription);
END;

CREATE INDEX IF NOT EXISTS idx_frames_timestamp ON frames(timestamp);
CREATE INDEX IF NOT EXISTS idx_frames_video_chunk_id ON frames(video_chunk_id);
CREATE INDEX IF NOT EXISTS idx_ocr_text_frame_id ON ocr_text(frame_id);
CREATE INDEX IF NOT EXISTS idx_audio_transcriptions_timestamp ON audio_transcriptions(timestamp);
CREATE INDEX IF NOT EXISTS idx_audio_transcriptions_audio_chunk_id ON audio_transcriptions(audio_chunk_id);
`

// schemaV2 is reserved: no schema change was ever assigned to this version.
const schemaV2 = ``

const schemaV3 = `
ALTER TABLE frames ADD COLUMN frame_hash INTEGER;
CREATE INDEX IF NOT EXISTS idx_frames_frame_hash ON frames(frame_hash);
`

// migrate applies every migration strictly greater than the database's
// current user_version, in order, updating user_version after each. It is
// safe to call on every startup: already-applied versions are no-ops.
func migrate(db *sql.DB) error {
	var current int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&current); err != nil {
		return fmt.Errorf("storage.migrate: read user_version: %w", err)
	}

	for v := current + 1; v <= schemaVersion; v++ {
		stmt, ok := migrations[v]
		if !ok {
			return fmt.Errorf("storage.migrate: missing migration for version %d", v)
		}
		if stmt != "" {
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("storage.migrate: apply v%d: %w", v, err)
			}
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
			return fmt.Errorf("storage.migrate: set user_version %d: %w", v, err)
		}
	}
	return nil
}
