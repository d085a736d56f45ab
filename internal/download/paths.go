package download

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spotifx/spotifx-go/internal/catalog"
)

// maxFilenameRunes caps each path component so deep album titles cannot
// overflow filesystem limits.
const maxFilenameRunes = 200

// sanitizeFilename removes or replaces characters that are invalid in filenames
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		"\x00", "",
	)

	sanitized := replacer.Replace(name)
	sanitized = strings.TrimSpace(sanitized)
	sanitized = strings.Trim(sanitized, ".")

	if runes := []rune(sanitized); len(runes) > maxFilenameRunes {
		sanitized = strings.TrimSpace(string(runes[:maxFilenameRunes]))
	}

	if sanitized == "" {
		sanitized = "unnamed_file"
	}

	return sanitized
}

// trackFilePath builds the library path for a track downloaded on its own
// or as part of an album: <output>/<Artist>/<Album>/NN. Title.<format>
func trackFilePath(outputDir string, track *catalog.Track, format string) string {
	artist := sanitizeFilename(track.PrimaryArtist())
	album := sanitizeFilename(track.Album.Name)
	title := sanitizeFilename(fmt.Sprintf("%02d. %s", track.TrackNumber, track.Name))

	return filepath.Join(outputDir, artist, album, title+"."+format)
}

// playlistTrackPath builds the library path for a track downloaded as part
// of a playlist: <output>/Playlists/<Playlist>/Artist - Title.<format>
func playlistTrackPath(outputDir, playlistName string, track *catalog.Track, format string) string {
	playlist := sanitizeFilename(playlistName)
	name := sanitizeFilename(fmt.Sprintf("%s - %s", track.PrimaryArtist(), track.Name))

	return filepath.Join(outputDir, "Playlists", playlist, name+"."+format)
}
