package recorder

import (
	"fmt"
	"path/filepath"
	"time"
)

// videoChunkPath builds videos/<sanitized-device>/<YYYY-MM-DD>/chunk_<HH-MM-SS>_<index>.mp4
// rooted at dataDir, per the on-disk layout contract.
func videoChunkPath(dataDir, sanitizedDevice string, at time.Time, index int) string {
	return filepath.Join(dataDir, "videos", sanitizedDevice, at.Format("2006-01-02"),
		fmt.Sprintf("chunk_%s_%d.mp4", at.Format("15-04-05"), index))
}

// audioChunkPath builds audio/<device_or_"loopback">/<YYYY-MM-DD>/chunk_<HH-MM-SS>_<index>.wav
// rooted at dataDir.
func audioChunkPath(dataDir, sanitizedDevice string, at time.Time, index int) string {
	return filepath.Join(dataDir, "audio", sanitizedDevice, at.Format("2006-01-02"),
		fmt.Sprintf("chunk_%s_%d.wav", at.Format("15-04-05"), index))
}
