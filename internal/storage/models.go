// Package storage is the relational store (C4): video/audio chunk and
// frame/transcription metadata plus the FTS5 inverted indexes that back
// full-text search, over a WAL-mode SQLite database reached through
// database/sql and the modernc.org/sqlite driver.
package storage

import "time"

// VideoChunk is a contiguous encoded video file covering at most the
// configured chunk duration. Never mutated after creation.
type VideoChunk struct {
	ID         int64
	FilePath   string
	DeviceName string
	CreatedAt  time.Time
	Width      *int
	Height     *int
}

// Frame is one captured still from one monitor inside one chunk.
type Frame struct {
	ID           int64
	VideoChunkID int64
	OffsetIndex  int
	Timestamp    time.Time
	AppName      *string
	WindowName   *string
	BrowserURL   *string
	Focused      bool
	FrameHash    *int64
}

// NewFrame is the batch-insert payload the recorder pushes per captured,
// retained frame.
type NewFrame struct {
	VideoChunkID int64
	OffsetIndex  int
	Timestamp    time.Time
	AppName      *string
	WindowName   *string
	BrowserURL   *string
	Focused      bool
	FrameHash    *int64
}

// OcrRecord is at most one per frame.
type OcrRecord struct {
	ID         int64
	FrameID    int64
	Text       string
	TextJSON   *string
	Confidence *float64
}

// AudioChunk is a WAV file of at most the configured audio chunk duration.
type AudioChunk struct {
	ID            int64
	FilePath      string
	DeviceName    *string
	IsInputDevice *bool
	Timestamp     time.Time
}

// AudioTranscription is zero or more per audio chunk, ordered by StartTime.
type AudioTranscription struct {
	ID           int64
	AudioChunkID int64
	Text         string
	Timestamp    time.Time
	SpeakerID    *string
	StartTime    *float64
	EndTime      *float64
}

// OCRStats summarizes indexer progress for the video/OCR pipeline.
type OCRStats struct {
	TotalFrames   int64
	FramesWithOCR int64
	PendingFrames int64
	RatePerHour   float64
}

// AudioStats summarizes indexer progress for the audio/ASR pipeline.
type AudioStats struct {
	TotalChunks          int64
	ChunksWithTranscript int64
	PendingChunks        int64
	RatePerHour          float64
}
