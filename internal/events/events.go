// Event system for recorder/indexer lifecycle notifications.
// This file defines the core event types and data structures used by the hook system.
package events

import (
	"strconv"
	"time"
)

// EventType represents the type of recorder/indexer event that occurred.
type EventType string

const (
	// Recorder events.
	EventChunkOpened       EventType = "chunk_opened"
	EventChunkFinalized    EventType = "chunk_finalized"
	EventFrameBatchFlushed EventType = "frame_batch_flushed"
	EventDedupSkip         EventType = "dedup_skip"
	EventCaptureReinit     EventType = "capture_reinit"
	EventEncoderFallback   EventType = "encoder_fallback"

	// Indexer events.
	EventOCRBatchCommitted EventType = "ocr_batch_committed"
	EventASRBatchCommitted EventType = "asr_batch_committed"
	EventASRModelMissing   EventType = "asr_model_missing"
)

// Event represents a single recorder/indexer event that can trigger hooks.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp int64                  `json:"timestamp"`
	Device    string                 `json:"device,omitempty"`
	ChunkID   int64                  `json:"chunk_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Data:      make(map[string]interface{}),
	}
}

// WithDevice sets the sanitized monitor/audio device name for the event.
func (e *Event) WithDevice(device string) *Event {
	e.Device = device
	return e
}

// WithChunkID sets the owning chunk id for the event.
func (e *Event) WithChunkID(chunkID int64) *Event {
	e.ChunkID = chunkID
	return e
}

// WithData adds data fields to the event.
func (e *Event) WithData(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// String returns a human-readable string representation of the event.
func (e *Event) String() string {
	if e.Device != "" {
		return string(e.Type) + ":" + e.Device
	}
	if e.ChunkID != 0 {
		return string(e.Type) + ":chunk" + strconv.FormatInt(e.ChunkID, 10)
	}
	return string(e.Type)
}
