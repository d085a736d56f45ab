package catalog

import "strings"

// Artist represents a catalog artist reference
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Image represents catalog artwork at a given size
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Album represents a catalog album
type Album struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Artists     []Artist `json:"artists"`
	Images      []Image  `json:"images"`
	ReleaseDate string   `json:"release_date"`
	TotalTracks int      `json:"total_tracks"`
	Tracks      []Track  `json:"-"`
}

// Track represents a catalog track
type Track struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Artists     []Artist `json:"artists"`
	Album       Album    `json:"album"`
	TrackNumber int      `json:"track_number"`
	DiscNumber  int      `json:"disc_number"`
	DurationMS  int      `json:"duration_ms"`
}

// Playlist represents a catalog playlist
type Playlist struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Owner  string  `json:"owner"`
	Images []Image `json:"images"`
	Tracks []Track `json:"-"`
}

// PrimaryArtist returns the first artist name, or empty if none
func (t *Track) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0].Name
}

// ArtistNames returns all artist names joined with ", "
func (t *Track) ArtistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// ArtworkURL returns the largest artwork URL for the album, or empty if none
func (a *Album) ArtworkURL() string {
	best := ""
	bestSize := 0
	for _, img := range a.Images {
		if img.Width >= bestSize {
			best = img.URL
			bestSize = img.Width
		}
	}
	return best
}
