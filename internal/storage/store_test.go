package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memoire.db")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAppliesSchemaAndIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memoire.db")
	s1, err := Open(path, nil)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	s1.Close()

	// Reopening an already-migrated database must not error or reapply DDL.
	s2, err := Open(path, nil)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()

	var version int
	if err := s2.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		t.Fatalf("read user_version: %v", err)
	}
	if version != schemaVersion {
		t.Fatalf("user_version = %d, want %d", version, schemaVersion)
	}
}

func TestInsertFramesBatchAtomicAndOrdered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	chunkID, err := s.InsertVideoChunk(ctx, "DISPLAY1", "/tmp/chunk1.mp4", nil, nil)
	if err != nil {
		t.Fatalf("InsertVideoChunk: %v", err)
	}

	now := time.Now().UTC()
	frames := []NewFrame{
		{VideoChunkID: chunkID, OffsetIndex: 0, Timestamp: now},
		{VideoChunkID: chunkID, OffsetIndex: 1, Timestamp: now.Add(time.Second)},
		{VideoChunkID: chunkID, OffsetIndex: 2, Timestamp: now.Add(2 * time.Second)},
	}
	ids, err := s.InsertFramesBatch(ctx, frames)
	if err != nil {
		t.Fatalf("InsertFramesBatch: %v", err)
	}
	if len(ids) != len(frames) {
		t.Fatalf("got %d ids, want %d", len(ids), len(frames))
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("ids not in ascending input order: %v", ids)
		}
	}
}

func TestInsertFramesBatchRejectsDuplicateOffsetIndex(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	chunkID, err := s.InsertVideoChunk(ctx, "DISPLAY1", "/tmp/chunk1.mp4", nil, nil)
	if err != nil {
		t.Fatalf("InsertVideoChunk: %v", err)
	}

	now := time.Now().UTC()
	frames := []NewFrame{
		{VideoChunkID: chunkID, OffsetIndex: 0, Timestamp: now},
		{VideoChunkID: chunkID, OffsetIndex: 0, Timestamp: now.Add(time.Second)},
	}
	if _, err := s.InsertFramesBatch(ctx, frames); err == nil {
		t.Fatal("expected unique constraint violation, got nil error")
	}

	// The whole transaction must roll back: neither row should be visible.
	var count int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM frames WHERE video_chunk_id = ?`, chunkID).Scan(&count); err != nil {
		t.Fatalf("count frames: %v", err)
	}
	if count != 0 {
		t.Fatalf("partial batch committed: %d frames present, want 0", count)
	}
}

func TestOCRTextFTSTriggerLockstep(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	chunkID, err := s.InsertVideoChunk(ctx, "DISPLAY1", "/tmp/chunk1.mp4", nil, nil)
	if err != nil {
		t.Fatalf("InsertVideoChunk: %v", err)
	}
	frameID, err := s.InsertFrame(ctx, NewFrame{VideoChunkID: chunkID, OffsetIndex: 0, Timestamp: time.Now().UTC()})
	if err != nil {
		t.Fatalf("InsertFrame: %v", err)
	}
	if _, err := s.InsertOCRText(ctx, frameID, "hello world", nil, nil); err != nil {
		t.Fatalf("InsertOCRText: %v", err)
	}

	results, total, err := s.SearchOCR(ctx, `"hello"`, 10, 0)
	if err != nil {
		t.Fatalf("SearchOCR: %v", err)
	}
	if total != 1 || len(results) != 1 {
		t.Fatalf("got %d/%d results, want 1/1", len(results), total)
	}
	if results[0].Text != "hello world" {
		t.Fatalf("got text %q", results[0].Text)
	}

	// Update must be reflected through the trigger pair, not left stale.
	if _, err := s.db.ExecContext(ctx, `UPDATE ocr_text SET text = ? WHERE frame_id = ?`, "goodbye moon", frameID); err != nil {
		t.Fatalf("update ocr_text: %v", err)
	}
	_, total, err = s.SearchOCR(ctx, `"hello"`, 10, 0)
	if err != nil {
		t.Fatalf("SearchOCR after update: %v", err)
	}
	if total != 0 {
		t.Fatalf("stale fts match for old text, total = %d", total)
	}
	_, total, err = s.SearchOCR(ctx, `"goodbye"`, 10, 0)
	if err != nil {
		t.Fatalf("SearchOCR for new text: %v", err)
	}
	if total != 1 {
		t.Fatalf("missing fts match for updated text, total = %d", total)
	}

	// Delete must remove the row from the fts index as well.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ocr_text WHERE frame_id = ?`, frameID); err != nil {
		t.Fatalf("delete ocr_text: %v", err)
	}
	_, total, err = s.SearchOCR(ctx, `"goodbye"`, 10, 0)
	if err != nil {
		t.Fatalf("SearchOCR after delete: %v", err)
	}
	if total != 0 {
		t.Fatalf("fts row survived base row delete, total = %d", total)
	}
}

func TestGetFramesWithoutOCR(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	chunkID, err := s.InsertVideoChunk(ctx, "DISPLAY1", "/tmp/chunk1.mp4", nil, nil)
	if err != nil {
		t.Fatalf("InsertVideoChunk: %v", err)
	}
	f1, err := s.InsertFrame(ctx, NewFrame{VideoChunkID: chunkID, OffsetIndex: 0, Timestamp: time.Now().UTC()})
	if err != nil {
		t.Fatalf("InsertFrame: %v", err)
	}
	f2, err := s.InsertFrame(ctx, NewFrame{VideoChunkID: chunkID, OffsetIndex: 1, Timestamp: time.Now().UTC()})
	if err != nil {
		t.Fatalf("InsertFrame: %v", err)
	}
	if _, err := s.InsertOCRText(ctx, f1, "already indexed", nil, nil); err != nil {
		t.Fatalf("InsertOCRText: %v", err)
	}

	pending, err := s.GetFramesWithoutOCR(ctx, 10)
	if err != nil {
		t.Fatalf("GetFramesWithoutOCR: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != f2 {
		t.Fatalf("got %+v, want only frame %d pending", pending, f2)
	}
}

func TestParseTimestampFallback(t *testing.T) {
	if _, err := parseTimestamp("2026-07-30T12:00:00Z"); err != nil {
		t.Fatalf("RFC3339 parse: %v", err)
	}
	if _, err := parseTimestamp("2026-07-30 12:00:00"); err != nil {
		t.Fatalf("fallback parse: %v", err)
	}
	if _, err := parseTimestamp("not-a-timestamp"); err == nil {
		t.Fatal("expected error for unparseable timestamp")
	}
}

func TestGetChunksPaginatedFiltersByDevice(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertVideoChunk(ctx, "DISPLAY1", "/tmp/a.mp4", nil, nil); err != nil {
		t.Fatalf("InsertVideoChunk: %v", err)
	}
	if _, err := s.InsertVideoChunk(ctx, "DISPLAY2", "/tmp/b.mp4", nil, nil); err != nil {
		t.Fatalf("InsertVideoChunk: %v", err)
	}

	device := "DISPLAY2"
	chunks, err := s.GetChunksPaginated(ctx, 10, 0, &device, nil, nil)
	if err != nil {
		t.Fatalf("GetChunksPaginated: %v", err)
	}
	if len(chunks) != 1 || chunks[0].DeviceName != "DISPLAY2" {
		t.Fatalf("got %+v, want only DISPLAY2 chunk", chunks)
	}
}

func TestGetOCRStatsCountsPending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	chunkID, err := s.InsertVideoChunk(ctx, "DISPLAY1", "/tmp/chunk1.mp4", nil, nil)
	if err != nil {
		t.Fatalf("InsertVideoChunk: %v", err)
	}
	f1, err := s.InsertFrame(ctx, NewFrame{VideoChunkID: chunkID, OffsetIndex: 0, Timestamp: time.Now().UTC()})
	if err != nil {
		t.Fatalf("InsertFrame: %v", err)
	}
	if _, err := s.InsertFrame(ctx, NewFrame{VideoChunkID: chunkID, OffsetIndex: 1, Timestamp: time.Now().UTC()}); err != nil {
		t.Fatalf("InsertFrame: %v", err)
	}
	if _, err := s.InsertOCRText(ctx, f1, "x", nil, nil); err != nil {
		t.Fatalf("InsertOCRText: %v", err)
	}

	stats, err := s.GetOCRStats(ctx)
	if err != nil {
		t.Fatalf("GetOCRStats: %v", err)
	}
	if stats.TotalFrames != 2 || stats.FramesWithOCR != 1 || stats.PendingFrames != 1 {
		t.Fatalf("got %+v, want total=2 withOCR=1 pending=1", stats)
	}
}
