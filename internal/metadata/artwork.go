package metadata

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/nfnt/resize"

	apperrors "github.com/spotifx/spotifx-go/internal/errors"
	"github.com/spotifx/spotifx-go/internal/network"
)

// DownloadArtwork fetches cover art from a URL and resizes it to the
// configured size. Returns the image bytes and MIME type.
func (m *Manager) DownloadArtwork(url string) ([]byte, string, error) {
	if url == "" {
		return nil, "", apperrors.NewValidationError("artwork URL cannot be empty")
	}

	resp, err := network.GetDefaultClient().Get(url)
	if err != nil {
		return nil, "", apperrors.NewNetworkError("failed to download artwork", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, "", apperrors.NewNetworkError(
			fmt.Sprintf("artwork download returned status %d", resp.StatusCode), nil)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apperrors.NewNetworkError("failed to read artwork data", err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	if m.config.ArtworkSize > 0 {
		resized, err := resizeImage(imageData, m.config.ArtworkSize)
		if err == nil {
			return resized, mimeType, nil
		}
		// Resize failures fall back to the original image
	}

	return imageData, mimeType, nil
}

// resizeImage scales an image so its largest dimension matches targetSize,
// preserving aspect ratio.
func resizeImage(imageData []byte, targetSize int) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width == targetSize && height == targetSize {
		return imageData, nil
	}

	var resized image.Image
	if width > height {
		resized = resize.Resize(uint(targetSize), 0, img, resize.Lanczos3)
	} else {
		resized = resize.Resize(0, uint(targetSize), img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	switch format {
	case "jpeg", "jpg":
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 95})
	case "png":
		err = png.Encode(&buf, resized)
	default:
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 95})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}

	return buf.Bytes(), nil
}
