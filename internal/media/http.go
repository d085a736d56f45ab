package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/spotifx/spotifx-go/internal/errors"
	"github.com/spotifx/spotifx-go/internal/network"
)

const progressChunkSize = 64 * 1024

// HTTPFetcher streams media over plain HTTP to the target path. It is
// used for sources that expose a direct audio URL.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates an HTTP fetcher with a transfer-tuned client
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client: network.GetTransferClient(timeout),
	}
}

// Fetch implements Fetcher
func (f *HTTPFetcher) Fetch(ctx context.Context, locator, targetPath string, onProgress ProgressFunc) (string, error) {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return "", apperrors.NewTransferError("failed to create output directory", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", locator, nil)
	if err != nil {
		return "", apperrors.NewTransferError("invalid media locator", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", apperrors.NewTransferError("media request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewTransferError(fmt.Sprintf("media request returned status %d", resp.StatusCode), nil)
	}

	tmpPath := targetPath + ".part"
	out, err := os.Create(tmpPath)
	if err != nil {
		return "", apperrors.NewTransferError("failed to create output file", err)
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}

	var done int64
	buf := make([]byte, progressChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				out.Close()
				os.Remove(tmpPath)
				return "", apperrors.NewTransferError("failed to write media data", writeErr)
			}
			done += int64(n)
			if onProgress != nil {
				onProgress(Progress{Phase: PhaseDownloading, BytesDone: done, BytesTotal: total})
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			os.Remove(tmpPath)
			return "", apperrors.NewTransferError("media stream interrupted", readErr)
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return "", apperrors.NewTransferError("failed to finalize output file", err)
	}

	if done == 0 {
		os.Remove(tmpPath)
		return "", apperrors.NewTransferError("media transfer produced no data", nil)
	}

	if err := os.Rename(tmpPath, targetPath); err != nil {
		os.Remove(tmpPath)
		return "", apperrors.NewTransferError("failed to move output into place", err)
	}

	if onProgress != nil {
		onProgress(Progress{Phase: PhaseFinished, BytesDone: done, BytesTotal: done})
	}

	return targetPath, nil
}
