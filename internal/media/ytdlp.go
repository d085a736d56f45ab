package media

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	apperrors "github.com/spotifx/spotifx-go/internal/errors"
)

// YTDLPFetcher shells out to yt-dlp to fetch and transcode media. It
// reports only a terminal progress event since the tool's byte counts
// are not exposed on a machine-readable channel here.
type YTDLPFetcher struct {
	binary string
	format string
}

// NewYTDLPFetcher creates a fetcher invoking the given yt-dlp binary.
// format is the target audio container (mp3 or flac).
func NewYTDLPFetcher(binary, format string) *YTDLPFetcher {
	if binary == "" {
		binary = "yt-dlp"
	}
	if format == "" {
		format = "mp3"
	}
	return &YTDLPFetcher{binary: binary, format: format}
}

// Fetch implements Fetcher
func (f *YTDLPFetcher) Fetch(ctx context.Context, locator, targetPath string, onProgress ProgressFunc) (string, error) {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return "", apperrors.NewTransferError("failed to create output directory", err)
	}

	// yt-dlp appends the audio extension itself
	stem := strings.TrimSuffix(targetPath, filepath.Ext(targetPath))
	finalPath := stem + "." + f.format

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, f.binary,
		"--format", "bestaudio",
		"--extract-audio",
		"--audio-format", f.format,
		"--audio-quality", "0",
		"--output", stem+".%(ext)s",
		"--no-overwrites",
		"--no-playlist",
		locator,
	)
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		return "", apperrors.NewTransferError(strings.TrimSpace(output.String()), err)
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return "", apperrors.NewTransferError("fetch produced no output file", err)
	}
	if info.Size() == 0 {
		os.Remove(finalPath)
		return "", apperrors.NewTransferError("fetch produced an empty file", nil)
	}

	if onProgress != nil {
		onProgress(Progress{Phase: PhaseFinished, BytesDone: info.Size(), BytesTotal: info.Size()})
	}

	return finalPath, nil
}
