package download

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spotifx/spotifx-go/internal/catalog"
	"github.com/spotifx/spotifx-go/internal/config"
	apperrors "github.com/spotifx/spotifx-go/internal/errors"
	"github.com/spotifx/spotifx-go/internal/match"
	"github.com/spotifx/spotifx-go/internal/media"
	"github.com/spotifx/spotifx-go/internal/metadata"
	"github.com/spotifx/spotifx-go/internal/monitoring"
	"github.com/spotifx/spotifx-go/internal/store"
)

// queuePollInterval is how often pending items are picked up for dispatch
const queuePollInterval = 2 * time.Second

// Catalog resolves tracks, albums and playlists from the source catalog
type Catalog interface {
	GetTrack(ctx context.Context, id string) (*catalog.Track, error)
	GetAlbum(ctx context.Context, id string) (*catalog.Album, error)
	GetPlaylist(ctx context.Context, id string) (*catalog.Playlist, error)
}

// Matcher selects the best media source candidate for a track
type Matcher interface {
	Select(ctx context.Context, q match.TrackQuery) (*match.Candidate, error)
}

// Tagger embeds metadata into downloaded audio files
type Tagger interface {
	ApplyMetadata(filePath string, md *metadata.TrackMetadata) error
	DownloadArtwork(url string) ([]byte, string, error)
}

// Manager coordinates all download operations: it enqueues items,
// dispatches pending work to the worker pool and drives each item
// through its lifecycle.
type Manager struct {
	config     *config.Config
	workerPool *WorkerPool
	queueStore *store.QueueStore
	catalog    Catalog
	matcher    Matcher
	fetcher    media.Fetcher
	tagger     Tagger
	notifier   Notifier
	logger     *zap.Logger
	submitted  sync.Map // item IDs dispatched but not yet finished
	mu         sync.RWMutex
	started    bool
}

// NewManager creates a new download manager
func NewManager(
	cfg *config.Config,
	queueStore *store.QueueStore,
	cat Catalog,
	matcher Matcher,
	fetcher media.Fetcher,
	tagger Tagger,
	notifier Notifier,
	logger *zap.Logger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	mgr := &Manager{
		config:     cfg,
		queueStore: queueStore,
		catalog:    cat,
		matcher:    matcher,
		fetcher:    fetcher,
		tagger:     tagger,
		notifier:   notifier,
		logger:     logger,
	}

	mgr.workerPool = NewWorkerPool(cfg.Download.ConcurrentDownloads, mgr.handleJob, logger)

	return mgr
}

// Start starts the download manager
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("download manager already started")
	}

	// Items left in downloading were abandoned by an interrupted session.
	// They are not resumed; resubmission is a fresh enqueue.
	if interrupted := m.queueStore.GetByStatus(store.StatusDownloading); len(interrupted) > 0 {
		m.logger.Warn("found items abandoned mid-download by a previous session",
			zap.Int("count", len(interrupted)))
	}

	if err := m.workerPool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	go m.processResults()
	go m.processQueue(ctx)

	m.started = true
	return nil
}

// Stop shuts the manager down, allowing in-flight jobs the configured
// grace period to finish. Returns false when jobs were abandoned.
func (m *Manager) Stop() bool {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return true
	}
	m.started = false
	m.mu.Unlock()

	grace := time.Duration(m.config.Download.ShutdownGraceSecs) * time.Second
	return m.workerPool.Stop(grace)
}

// processQueue periodically dispatches pending items to the worker pool
func (m *Manager) processQueue(ctx context.Context) {
	ticker := time.NewTicker(queuePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			monitoring.UpdateQueueSize(m.queueStore.PendingCount())

			for _, item := range m.queueStore.GetByStatus(store.StatusPending) {
				if _, loaded := m.submitted.LoadOrStore(item.ID, true); loaded {
					continue
				}
				job := &Job{ItemID: item.ID, Kind: item.Kind}
				if err := m.workerPool.Submit(job); err != nil {
					// Retried on the next poll
					m.submitted.Delete(item.ID)
					break
				}
			}
		}
	}
}

// processResults drains the worker pool result channel
func (m *Manager) processResults() {
	for result := range m.workerPool.Results() {
		m.submitted.Delete(result.ItemID)
		if !result.Success {
			m.logger.Debug("job finished with error",
				zap.String("item_id", result.ItemID),
				zap.Error(result.Error))
		}
	}
}

// EnqueueTrack adds a track to the download queue. The input may be a
// bare catalog ID, a catalog URI or a share URL.
func (m *Manager) EnqueueTrack(ctx context.Context, input string) (string, error) {
	id, err := catalog.ExtractID(input, store.KindTrack)
	if err != nil {
		return "", err
	}

	track, err := m.catalog.GetTrack(ctx, id)
	if err != nil {
		return "", err
	}

	itemID := m.queueStore.Add(&store.QueueItem{
		Kind:        store.KindTrack,
		SourceID:    id,
		Title:       track.Name,
		Artist:      track.PrimaryArtist(),
		Album:       track.Album.Name,
		TotalTracks: 1,
	})

	m.logger.Info("track enqueued",
		zap.String("item_id", itemID),
		zap.String("source_id", id),
		zap.String("title", track.Name))

	return itemID, nil
}

// EnqueueAlbum adds an album to the download queue
func (m *Manager) EnqueueAlbum(ctx context.Context, input string) (string, error) {
	id, err := catalog.ExtractID(input, store.KindAlbum)
	if err != nil {
		return "", err
	}

	album, err := m.catalog.GetAlbum(ctx, id)
	if err != nil {
		return "", err
	}

	artist := ""
	if len(album.Artists) > 0 {
		artist = album.Artists[0].Name
	}

	itemID := m.queueStore.Add(&store.QueueItem{
		Kind:        store.KindAlbum,
		SourceID:    id,
		Title:       album.Name,
		Artist:      artist,
		Album:       album.Name,
		TotalTracks: len(album.Tracks),
	})

	m.logger.Info("album enqueued",
		zap.String("item_id", itemID),
		zap.String("source_id", id),
		zap.String("title", album.Name),
		zap.Int("tracks", len(album.Tracks)))

	return itemID, nil
}

// EnqueuePlaylist adds a playlist to the download queue
func (m *Manager) EnqueuePlaylist(ctx context.Context, input string) (string, error) {
	id, err := catalog.ExtractID(input, store.KindPlaylist)
	if err != nil {
		return "", err
	}

	playlist, err := m.catalog.GetPlaylist(ctx, id)
	if err != nil {
		return "", err
	}

	itemID := m.queueStore.Add(&store.QueueItem{
		Kind:        store.KindPlaylist,
		SourceID:    id,
		Title:       playlist.Name,
		Artist:      playlist.Owner,
		TotalTracks: len(playlist.Tracks),
	})

	m.logger.Info("playlist enqueued",
		zap.String("item_id", itemID),
		zap.String("source_id", id),
		zap.String("title", playlist.Name),
		zap.Int("tracks", len(playlist.Tracks)))

	return itemID, nil
}

// Cancel cancels a pending queue item. Items already downloading or in
// a terminal state are left untouched.
func (m *Manager) Cancel(itemID string) bool {
	return m.queueStore.Cancel(itemID)
}

// Remove deletes a queue item unless it is actively downloading
func (m *Manager) Remove(itemID string) bool {
	if m.workerPool.IsJobActive(itemID) {
		return false
	}
	return m.queueStore.Remove(itemID)
}

// ActiveCount returns the number of jobs currently being processed
func (m *Manager) ActiveCount() int {
	return m.workerPool.ActiveCount()
}

// handleJob drives one queue item through its lifecycle. This is the
// single error boundary for a job: any error returned here marks the
// item failed with the error message recorded.
func (m *Manager) handleJob(ctx context.Context, job *Job) error {
	if !m.queueStore.Claim(job.ItemID) {
		// Canceled or removed while waiting for a worker
		return nil
	}
	item := m.queueStore.GetByID(job.ItemID)
	if item == nil {
		return nil
	}

	start := time.Now()

	if m.notifier != nil {
		m.notifier.NotifyStarted(item.ID)
	}
	monitoring.RecordDownloadStart(item.Kind)

	reporter := NewProgressReporter(func(progress int) {
		m.queueStore.Update(item.ID, func(it *store.QueueItem) {
			if progress > it.Progress {
				it.Progress = progress
			}
		})
	})

	var err error
	switch item.Kind {
	case store.KindTrack:
		err = m.runTrackJob(ctx, item, reporter)
	case store.KindAlbum:
		err = m.runAlbumJob(ctx, item, reporter)
	case store.KindPlaylist:
		err = m.runPlaylistJob(ctx, item, reporter)
	default:
		err = fmt.Errorf("unknown item kind: %s", item.Kind)
	}

	if err != nil {
		if ctx.Err() != nil {
			// Shutdown abandoned this job mid-flight. The item stays in
			// downloading; resubmission is a fresh enqueue.
			return err
		}

		m.queueStore.Update(item.ID, func(it *store.QueueItem) {
			it.Status = store.StatusFailed
			it.ErrorMessage = err.Error()
		})
		if m.notifier != nil {
			m.notifier.NotifyFailed(item.ID, err)
		}
		monitoring.RecordDownloadFailed(item.Kind, string(apperrors.GetErrorType(err)))
		return err
	}

	reporter.Done()
	now := time.Now()
	m.queueStore.Update(item.ID, func(it *store.QueueItem) {
		it.Status = store.StatusCompleted
		it.Progress = 100
		it.CompletedAt = &now
	})

	final := m.queueStore.GetByID(item.ID)
	if final != nil {
		var totalBytes int64
		for _, rp := range final.ResultPaths {
			totalBytes += rp.FileSize
		}
		m.queueStore.AppendHistory(store.HistoryRecord{
			ItemID:          final.ID,
			Kind:            final.Kind,
			SourceID:        final.SourceID,
			Title:           final.Title,
			Artist:          final.Artist,
			Album:           final.Album,
			ResultPaths:     final.ResultPaths,
			CompletedTracks: final.CompletedTracks,
			FailedTracks:    final.FailedTracks,
			TotalBytes:      totalBytes,
			DownloadedAt:    now,
		})
		monitoring.RecordDownloadComplete(final.Kind, time.Since(start), totalBytes)
	}
	if m.notifier != nil {
		m.notifier.NotifyCompleted(item.ID)
	}

	return nil
}

// runTrackJob downloads a single track item
func (m *Manager) runTrackJob(ctx context.Context, item *store.QueueItem, reporter *ProgressReporter) error {
	tp := reporter.FullRange()

	track, err := m.catalog.GetTrack(ctx, item.SourceID)
	if err != nil {
		return err
	}

	m.queueStore.Update(item.ID, func(it *store.QueueItem) {
		it.Title = track.Name
		it.Artist = track.PrimaryArtist()
		it.Album = track.Album.Name
	})
	tp.MetadataFetched()

	targetPath := trackFilePath(m.config.Download.OutputDir, track, m.config.Download.AudioFormat)
	rp, err := m.downloadOne(ctx, item.ID, track, targetPath, tp)
	if err != nil {
		return err
	}

	m.queueStore.Update(item.ID, func(it *store.QueueItem) {
		it.ResultPaths = append(it.ResultPaths, rp)
		it.CompletedTracks = 1
		it.TotalTracks = 1
		if rp.Outcome == store.OutcomeExisting {
			it.Note = "file already present"
		}
	})

	return nil
}

// runAlbumJob downloads every track of an album item
func (m *Manager) runAlbumJob(ctx context.Context, item *store.QueueItem, reporter *ProgressReporter) error {
	album, err := m.catalog.GetAlbum(ctx, item.SourceID)
	if err != nil {
		return err
	}

	artist := ""
	if len(album.Artists) > 0 {
		artist = album.Artists[0].Name
	}
	m.queueStore.Update(item.ID, func(it *store.QueueItem) {
		it.Title = album.Name
		it.Artist = artist
		it.Album = album.Name
		it.TotalTracks = len(album.Tracks)
	})

	reporter.Begin()
	m.runContainerTracks(ctx, item.ID, album.Tracks, reporter, func(t *catalog.Track) string {
		return trackFilePath(m.config.Download.OutputDir, t, m.config.Download.AudioFormat)
	})

	return ctx.Err()
}

// runPlaylistJob downloads every track of a playlist item
func (m *Manager) runPlaylistJob(ctx context.Context, item *store.QueueItem, reporter *ProgressReporter) error {
	playlist, err := m.catalog.GetPlaylist(ctx, item.SourceID)
	if err != nil {
		return err
	}

	m.queueStore.Update(item.ID, func(it *store.QueueItem) {
		it.Title = playlist.Name
		it.Artist = playlist.Owner
		it.TotalTracks = len(playlist.Tracks)
	})

	reporter.Begin()
	m.runContainerTracks(ctx, item.ID, playlist.Tracks, reporter, func(t *catalog.Track) string {
		return playlistTrackPath(m.config.Download.OutputDir, playlist.Name, t, m.config.Download.AudioFormat)
	})

	return ctx.Err()
}

// runContainerTracks processes a container's tracks sequentially. A
// failed track is counted and skipped; the container itself still
// completes.
func (m *Manager) runContainerTracks(
	ctx context.Context,
	itemID string,
	tracks []catalog.Track,
	reporter *ProgressReporter,
	pathFor func(*catalog.Track) string,
) {
	total := len(tracks)

	for i := range tracks {
		if ctx.Err() != nil {
			return
		}

		track := &tracks[i]
		tp := reporter.ContainerSlice(i, total)
		tp.MetadataFetched()

		rp, err := m.downloadOne(ctx, itemID, track, pathFor(track), tp)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn("track failed within container",
				zap.String("item_id", itemID),
				zap.String("track_id", track.ID),
				zap.String("title", track.Name),
				zap.Error(err))
			m.queueStore.Update(itemID, func(it *store.QueueItem) {
				it.FailedTracks++
			})
			tp.Done()
			continue
		}

		m.queueStore.Update(itemID, func(it *store.QueueItem) {
			it.CompletedTracks++
			it.ResultPaths = append(it.ResultPaths, rp)
		})
	}
}

// downloadOne resolves and downloads a single track to targetPath. An
// already present file short-circuits the whole pipeline, source
// matching included.
func (m *Manager) downloadOne(
	ctx context.Context,
	itemID string,
	track *catalog.Track,
	targetPath string,
	tp *TrackProgress,
) (store.ResultPath, error) {
	if metadata.FileExists(targetPath) {
		var size int64
		if info, err := os.Stat(targetPath); err == nil {
			size = info.Size()
		}
		m.logger.Info("file already exists, skipping download",
			zap.String("track_id", track.ID),
			zap.String("path", targetPath))
		tp.Done()
		return store.ResultPath{
			SourceID:  track.ID,
			LocalPath: targetPath,
			FileSize:  size,
			Outcome:   store.OutcomeExisting,
		}, nil
	}

	candidate, err := m.matcher.Select(ctx, match.TrackQuery{
		Title:      track.Name,
		Artist:     track.PrimaryArtist(),
		Album:      track.Album.Name,
		DurationMS: track.DurationMS,
	})
	if err != nil {
		return store.ResultPath{}, err
	}
	tp.SourceMatched()

	finalPath, err := m.fetcher.Fetch(ctx, candidate.Locator, targetPath, func(p media.Progress) {
		if p.Phase == media.PhaseFinished {
			tp.TransferDone()
			return
		}
		tp.Transfer(p.BytesDone, p.BytesTotal)
		if m.notifier != nil {
			m.notifier.NotifyProgress(itemID, tp.reporter.Current(), p.BytesDone, p.BytesTotal)
		}
	})
	if err != nil {
		return store.ResultPath{}, err
	}

	if tagErr := m.applyTags(track, finalPath); tagErr != nil {
		// Tag failures are non-fatal: the audio is on disk and usable
		m.logger.Warn("tag write failed",
			zap.String("track_id", track.ID),
			zap.String("path", finalPath),
			zap.Error(tagErr))
		monitoring.RecordError(string(apperrors.ErrTypeTagWrite))
		m.queueStore.Update(itemID, func(it *store.QueueItem) {
			it.Note = "tags not written"
		})
	}

	// Bytes are folded into the transfer metric once per item, on
	// completion, from the recorded file sizes.
	var size int64
	if info, err := os.Stat(finalPath); err == nil {
		size = info.Size()
	}
	tp.Done()

	return store.ResultPath{
		SourceID:  track.ID,
		LocalPath: finalPath,
		FileSize:  size,
		Outcome:   store.OutcomeDownloaded,
	}, nil
}

// applyTags embeds catalog metadata, and artwork when configured, into
// the downloaded file.
func (m *Manager) applyTags(track *catalog.Track, filePath string) error {
	albumArtist := track.PrimaryArtist()
	if len(track.Album.Artists) > 0 {
		albumArtist = track.Album.Artists[0].Name
	}

	md := &metadata.TrackMetadata{
		Title:       track.Name,
		Artist:      track.ArtistNames(),
		Album:       track.Album.Name,
		AlbumArtist: albumArtist,
		TrackNumber: track.TrackNumber,
		DiscNumber:  track.DiscNumber,
		Date:        track.Album.ReleaseDate,
	}

	if m.config.Download.EmbedArtwork {
		if url := track.Album.ArtworkURL(); url != "" {
			data, mime, err := m.tagger.DownloadArtwork(url)
			if err != nil {
				m.logger.Warn("artwork download failed",
					zap.String("track_id", track.ID),
					zap.Error(err))
			} else {
				md.ArtworkData = data
				md.ArtworkMIME = mime
			}
		}
	}

	return m.tagger.ApplyMetadata(filePath, md)
}
