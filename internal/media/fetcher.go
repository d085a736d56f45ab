package media

import "context"

// Progress phases reported by a fetcher
const (
	PhaseDownloading = "downloading"
	PhaseFinished    = "finished"
)

// Progress is a byte-level progress event. BytesTotal is zero until the
// source reports a total size.
type Progress struct {
	Phase      string
	BytesDone  int64
	BytesTotal int64
}

// ProgressFunc receives progress events at the fetcher's own cadence
type ProgressFunc func(Progress)

// Fetcher materializes a media locator to a local file
type Fetcher interface {
	// Fetch downloads the media behind locator into targetPath and
	// returns the final path written. The final path may differ from
	// targetPath in extension depending on the transcode target.
	Fetch(ctx context.Context, locator, targetPath string, onProgress ProgressFunc) (string, error)
}
