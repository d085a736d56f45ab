package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"

	apperrors "github.com/spotifx/spotifx-go/internal/errors"
)

// TrackMetadata holds the tags written into a downloaded audio file.
type TrackMetadata struct {
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	TrackNumber int
	DiscNumber  int
	TotalDiscs  int
	Date        string
	Genre       string
	ISRC        string
	Lyrics      string
	ArtworkData []byte
	ArtworkMIME string
}

// Config holds metadata configuration
type Config struct {
	EmbedArtwork bool
	ArtworkSize  int
}

// Manager handles tag writing for downloaded files
type Manager struct {
	config *Config
}

// NewManager creates a new metadata manager
func NewManager(config *Config) *Manager {
	if config == nil {
		config = &Config{
			EmbedArtwork: true,
			ArtworkSize:  1200,
		}
	}
	return &Manager{config: config}
}

// ApplyMetadata writes metadata tags to an audio file. Tag failures are
// reported but never destroy the file on disk.
func (m *Manager) ApplyMetadata(filePath string, metadata *TrackMetadata) error {
	if metadata == nil {
		return apperrors.NewValidationError("metadata cannot be nil")
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3":
		return m.applyMP3Metadata(filePath, metadata)
	case ".flac":
		return m.applyFLACMetadata(filePath, metadata)
	default:
		return apperrors.NewValidationError(fmt.Sprintf("unsupported file format: %s", ext))
	}
}

// applyMP3Metadata applies ID3v2.4 metadata to MP3 files
func (m *Manager) applyMP3Metadata(filePath string, metadata *TrackMetadata) error {
	tag, err := id3v2.Open(filePath, id3v2.Options{Parse: true})
	if err != nil {
		return apperrors.NewTagWriteError("failed to open MP3 file for tagging", err)
	}
	defer tag.Close()

	tag.SetVersion(4)

	if metadata.Title != "" {
		tag.SetTitle(metadata.Title)
	}
	if metadata.Artist != "" {
		tag.SetArtist(metadata.Artist)
	}
	if metadata.Album != "" {
		tag.SetAlbum(metadata.Album)
	}
	if metadata.Genre != "" {
		tag.SetGenre(metadata.Genre)
	}
	if metadata.Date != "" {
		tag.SetYear(metadata.Date)
	}

	if metadata.AlbumArtist != "" {
		tag.DeleteFrames("TPE2")
		tag.AddTextFrame("TPE2", tag.DefaultEncoding(), metadata.AlbumArtist)
	}

	if metadata.TrackNumber > 0 {
		tag.AddTextFrame(tag.CommonID("Track number/Position in set"), tag.DefaultEncoding(),
			fmt.Sprintf("%d", metadata.TrackNumber))
	}

	if metadata.DiscNumber > 0 {
		discValue := fmt.Sprintf("%d", metadata.DiscNumber)
		if metadata.TotalDiscs > 0 {
			discValue = fmt.Sprintf("%d/%d", metadata.DiscNumber, metadata.TotalDiscs)
		}
		tag.DeleteFrames("TPOS")
		tag.AddTextFrame("TPOS", tag.DefaultEncoding(), discValue)
	}

	if metadata.ISRC != "" {
		tag.AddTextFrame(tag.CommonID("ISRC"), tag.DefaultEncoding(), metadata.ISRC)
	}

	if metadata.Lyrics != "" {
		tag.AddUnsynchronisedLyricsFrame(id3v2.UnsynchronisedLyricsFrame{
			Encoding:          id3v2.EncodingUTF8,
			Language:          "und",
			ContentDescriptor: "",
			Lyrics:            metadata.Lyrics,
		})
	}

	if m.config.EmbedArtwork && len(metadata.ArtworkData) > 0 {
		mime := metadata.ArtworkMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		pic := id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    mime,
			PictureType: id3v2.PTFrontCover,
			Description: "Front cover",
			Picture:     metadata.ArtworkData,
		}
		tag.AddAttachedPicture(pic)
	}

	if err := tag.Save(); err != nil {
		return apperrors.NewTagWriteError("failed to save MP3 tags", err)
	}

	return nil
}

// applyFLACMetadata applies Vorbis comment metadata to FLAC files
func (m *Manager) applyFLACMetadata(filePath string, metadata *TrackMetadata) error {
	f, err := flac.ParseFile(filePath)
	if err != nil {
		return apperrors.NewTagWriteError("failed to parse FLAC file", err)
	}

	var cmt *flacvorbis.MetaDataBlockVorbisComment
	var cmtIdx int = -1

	for idx, block := range f.Meta {
		if block.Type == flac.VorbisComment {
			cmt, err = flacvorbis.ParseFromMetaDataBlock(*block)
			if err != nil {
				return apperrors.NewTagWriteError("failed to parse FLAC vorbis comment", err)
			}
			cmtIdx = idx
			break
		}
	}

	if cmt == nil {
		cmt = flacvorbis.New()
	}

	addComment := func(field, value string) {
		if value != "" {
			cmt.Add(field, value)
		}
	}

	addComment(flacvorbis.FIELD_TITLE, metadata.Title)
	addComment(flacvorbis.FIELD_ARTIST, metadata.Artist)
	addComment(flacvorbis.FIELD_ALBUM, metadata.Album)
	addComment("ALBUMARTIST", metadata.AlbumArtist)
	addComment(flacvorbis.FIELD_GENRE, metadata.Genre)
	addComment(flacvorbis.FIELD_DATE, metadata.Date)
	addComment("ISRC", metadata.ISRC)
	addComment("LYRICS", metadata.Lyrics)

	if metadata.TrackNumber > 0 {
		addComment(flacvorbis.FIELD_TRACKNUMBER, fmt.Sprintf("%d", metadata.TrackNumber))
	}
	if metadata.DiscNumber > 0 {
		addComment("DISCNUMBER", fmt.Sprintf("%d", metadata.DiscNumber))
	}
	if metadata.TotalDiscs > 0 {
		addComment("TOTALDISCS", fmt.Sprintf("%d", metadata.TotalDiscs))
	}

	cmtBlock := cmt.Marshal()
	if cmtIdx >= 0 {
		f.Meta[cmtIdx] = &cmtBlock
	} else {
		f.Meta = append(f.Meta, &cmtBlock)
	}

	if m.config.EmbedArtwork && len(metadata.ArtworkData) > 0 {
		picBlock := createFLACPictureBlock(metadata.ArtworkData, metadata.ArtworkMIME)
		replaced := false
		for idx, block := range f.Meta {
			if block.Type == flac.Picture {
				f.Meta[idx] = picBlock
				replaced = true
				break
			}
		}
		if !replaced {
			f.Meta = append(f.Meta, picBlock)
		}
	}

	if err := f.Save(filePath); err != nil {
		return apperrors.NewTagWriteError("failed to save FLAC file", err)
	}

	return nil
}

// createFLACPictureBlock builds a METADATA_BLOCK_PICTURE for front cover art.
func createFLACPictureBlock(artworkData []byte, mimeType string) *flac.MetaDataBlock {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	data := make([]byte, 0, len(artworkData)+64)

	// Picture type 3 is front cover
	data = writeUint32BE(data, 3)
	data = writeUint32BE(data, uint32(len(mimeType)))
	data = append(data, []byte(mimeType)...)

	description := "Front cover"
	data = writeUint32BE(data, uint32(len(description)))
	data = append(data, []byte(description)...)

	// Width, height, depth, colors are left unset
	data = writeUint32BE(data, 0)
	data = writeUint32BE(data, 0)
	data = writeUint32BE(data, 0)
	data = writeUint32BE(data, 0)

	data = writeUint32BE(data, uint32(len(artworkData)))
	data = append(data, artworkData...)

	return &flac.MetaDataBlock{
		Type: flac.Picture,
		Data: data,
	}
}

func writeUint32BE(data []byte, v uint32) []byte {
	return append(data, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// GetMetadata reads metadata tags from an audio file
func (m *Manager) GetMetadata(filePath string) (*TrackMetadata, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3":
		return m.getMP3Metadata(filePath)
	case ".flac":
		return m.getFLACMetadata(filePath)
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unsupported file format: %s", ext))
	}
}

func (m *Manager) getMP3Metadata(filePath string) (*TrackMetadata, error) {
	tag, err := id3v2.Open(filePath, id3v2.Options{Parse: true})
	if err != nil {
		return nil, apperrors.NewTagWriteError("failed to open MP3 file", err)
	}
	defer tag.Close()

	metadata := &TrackMetadata{
		Title:  tag.Title(),
		Artist: tag.Artist(),
		Album:  tag.Album(),
		Genre:  tag.Genre(),
		Date:   tag.Year(),
	}

	if frames := tag.GetFrames("TPE2"); len(frames) > 0 {
		if tf, ok := frames[0].(id3v2.TextFrame); ok {
			metadata.AlbumArtist = tf.Text
		}
	}
	if frames := tag.GetFrames(tag.CommonID("Track number/Position in set")); len(frames) > 0 {
		if tf, ok := frames[0].(id3v2.TextFrame); ok {
			fmt.Sscanf(tf.Text, "%d", &metadata.TrackNumber)
		}
	}
	if frames := tag.GetFrames("TPOS"); len(frames) > 0 {
		if tf, ok := frames[0].(id3v2.TextFrame); ok {
			fmt.Sscanf(tf.Text, "%d/%d", &metadata.DiscNumber, &metadata.TotalDiscs)
		}
	}

	return metadata, nil
}

func (m *Manager) getFLACMetadata(filePath string) (*TrackMetadata, error) {
	f, err := flac.ParseFile(filePath)
	if err != nil {
		return nil, apperrors.NewTagWriteError("failed to parse FLAC file", err)
	}

	metadata := &TrackMetadata{}

	for _, block := range f.Meta {
		if block.Type != flac.VorbisComment {
			continue
		}
		cmt, err := flacvorbis.ParseFromMetaDataBlock(*block)
		if err != nil {
			continue
		}

		getFirst := func(field string) string {
			values, err := cmt.Get(field)
			if err == nil && len(values) > 0 {
				return values[0]
			}
			return ""
		}

		metadata.Title = getFirst(flacvorbis.FIELD_TITLE)
		metadata.Artist = getFirst(flacvorbis.FIELD_ARTIST)
		metadata.Album = getFirst(flacvorbis.FIELD_ALBUM)
		metadata.AlbumArtist = getFirst("ALBUMARTIST")
		metadata.Genre = getFirst(flacvorbis.FIELD_GENRE)
		metadata.Date = getFirst(flacvorbis.FIELD_DATE)
		metadata.ISRC = getFirst("ISRC")
		metadata.Lyrics = getFirst("LYRICS")
		fmt.Sscanf(getFirst(flacvorbis.FIELD_TRACKNUMBER), "%d", &metadata.TrackNumber)
		fmt.Sscanf(getFirst("DISCNUMBER"), "%d", &metadata.DiscNumber)
		break
	}

	return metadata, nil
}

// FileExists checks whether a file exists and is non-empty.
func FileExists(filePath string) bool {
	info, err := os.Stat(filePath)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}
