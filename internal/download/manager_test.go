package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
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

type fakeCatalog struct {
	tracks    map[string]*catalog.Track
	albums    map[string]*catalog.Album
	playlists map[string]*catalog.Playlist
}

func (f *fakeCatalog) GetTrack(ctx context.Context, id string) (*catalog.Track, error) {
	if t, ok := f.tracks[id]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, apperrors.NewNotFoundError("track not found: " + id)
}

func (f *fakeCatalog) GetAlbum(ctx context.Context, id string) (*catalog.Album, error) {
	if a, ok := f.albums[id]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, apperrors.NewNotFoundError("album not found: " + id)
}

func (f *fakeCatalog) GetPlaylist(ctx context.Context, id string) (*catalog.Playlist, error) {
	if p, ok := f.playlists[id]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, apperrors.NewNotFoundError("playlist not found: " + id)
}

type fakeMatcher struct {
	mu      sync.Mutex
	calls   int
	noMatch map[string]bool
}

func (f *fakeMatcher) Select(ctx context.Context, q match.TrackQuery) (*match.Candidate, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.noMatch[q.Title] {
		return nil, apperrors.NewNoMatchError("no source found for " + q.Title)
	}
	return &match.Candidate{
		Locator:         "https://example.com/watch?v=" + q.Title,
		Title:           q.Title,
		DurationSeconds: q.DurationMS / 1000,
		Popularity:      1000,
	}, nil
}

func (f *fakeMatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, locator, targetPath string, onProgress media.ProgressFunc) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return "", err
	}
	payload := []byte("audio data")
	if err := os.WriteFile(targetPath, payload, 0644); err != nil {
		return "", err
	}

	if onProgress != nil {
		onProgress(media.Progress{Phase: media.PhaseDownloading, BytesDone: int64(len(payload)), BytesTotal: int64(len(payload))})
		onProgress(media.Progress{Phase: media.PhaseFinished, BytesDone: int64(len(payload)), BytesTotal: int64(len(payload))})
	}

	return targetPath, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTagger struct {
	mu      sync.Mutex
	applied []string
	failAll bool
}

func (f *fakeTagger) ApplyMetadata(filePath string, md *metadata.TrackMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return apperrors.NewTagWriteError("tag write refused", nil)
	}
	f.applied = append(f.applied, filePath)
	return nil
}

func (f *fakeTagger) DownloadArtwork(url string) ([]byte, string, error) {
	return []byte{1, 2, 3}, "image/jpeg", nil
}

func makeTrack(id, title string, number int) catalog.Track {
	return catalog.Track{
		ID:          id,
		Name:        title,
		Artists:     []catalog.Artist{{ID: "a1", Name: "Test Artist"}},
		Album:       catalog.Album{ID: "al1", Name: "Test Album"},
		TrackNumber: number,
		DurationMS:  200000,
	}
}

type testEnv struct {
	manager *Manager
	store   *store.QueueStore
	catalog *fakeCatalog
	matcher *fakeMatcher
	fetcher *fakeFetcher
	tagger  *fakeTagger
	cfg     *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tmpDir := t.TempDir()

	cfg := &config.Config{
		Download: config.DownloadConfig{
			OutputDir:           filepath.Join(tmpDir, "music"),
			ConcurrentDownloads: 2,
			AudioFormat:         "mp3",
			ShutdownGraceSecs:   2,
		},
	}

	qs, err := store.Open(filepath.Join(tmpDir, "queue.json"), zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to open queue store: %v", err)
	}

	track := makeTrack("t1", "Test Song", 1)
	env := &testEnv{
		store: qs,
		catalog: &fakeCatalog{
			tracks:    map[string]*catalog.Track{"t1": &track},
			albums:    map[string]*catalog.Album{},
			playlists: map[string]*catalog.Playlist{},
		},
		matcher: &fakeMatcher{noMatch: map[string]bool{}},
		fetcher: &fakeFetcher{},
		tagger:  &fakeTagger{},
		cfg:     cfg,
	}

	env.manager = NewManager(cfg, qs, env.catalog, env.matcher, env.fetcher, env.tagger, nil, zap.NewNop())
	return env
}

func TestEnqueueTrack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	itemID, err := env.manager.EnqueueTrack(ctx, "t1")
	if err != nil {
		t.Fatalf("EnqueueTrack failed: %v", err)
	}

	item := env.store.GetByID(itemID)
	if item == nil {
		t.Fatal("Enqueued item not found in store")
	}
	if item.Status != store.StatusPending {
		t.Errorf("Expected pending status, got %s", item.Status)
	}
	if item.Title != "Test Song" || item.Artist != "Test Artist" {
		t.Errorf("Expected catalog metadata on item, got %q / %q", item.Title, item.Artist)
	}
}

func TestEnqueueTrackAcceptsURLAndURI(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, input := range []string{
		"t1",
		"spotify:track:t1",
		"https://open.spotify.com/track/t1?si=abc",
	} {
		if _, err := env.manager.EnqueueTrack(ctx, input); err != nil {
			t.Errorf("EnqueueTrack(%q) failed: %v", input, err)
		}
	}

	if got := env.store.PendingCount(); got != 3 {
		t.Errorf("Expected 3 pending items, got %d", got)
	}
}

func TestEnqueueUnknownTrack(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.manager.EnqueueTrack(context.Background(), "missing")
	if !apperrors.IsNotFoundError(err) {
		t.Errorf("Expected not found error, got %v", err)
	}
	if env.store.PendingCount() != 0 {
		t.Error("Nothing should be queued after a failed enqueue")
	}
}

func TestDuplicateEnqueueCreatesIndependentItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, _ := env.manager.EnqueueTrack(ctx, "t1")
	second, _ := env.manager.EnqueueTrack(ctx, "t1")

	if first == second {
		t.Error("Duplicate enqueues must create distinct items")
	}
	if env.store.PendingCount() != 2 {
		t.Errorf("Expected 2 pending items, got %d", env.store.PendingCount())
	}
}

func TestTrackJobCompletes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	itemID, err := env.manager.EnqueueTrack(ctx, "t1")
	if err != nil {
		t.Fatalf("EnqueueTrack failed: %v", err)
	}

	if err := env.manager.handleJob(ctx, &Job{ItemID: itemID, Kind: store.KindTrack}); err != nil {
		t.Fatalf("handleJob failed: %v", err)
	}

	item := env.store.GetByID(itemID)
	if item.Status != store.StatusCompleted {
		t.Fatalf("Expected completed, got %s (error: %s)", item.Status, item.ErrorMessage)
	}
	if item.Progress != 100 {
		t.Errorf("Expected progress 100, got %d", item.Progress)
	}
	if item.CompletedAt == nil {
		t.Error("Expected completion timestamp")
	}
	if len(item.ResultPaths) != 1 {
		t.Fatalf("Expected 1 result path, got %d", len(item.ResultPaths))
	}
	rp := item.ResultPaths[0]
	if rp.Outcome != store.OutcomeDownloaded {
		t.Errorf("Expected downloaded outcome, got %s", rp.Outcome)
	}
	expectedPath := filepath.Join(env.cfg.Download.OutputDir, "Test Artist", "Test Album", "01. Test Song.mp3")
	if rp.LocalPath != expectedPath {
		t.Errorf("Expected path %q, got %q", expectedPath, rp.LocalPath)
	}
	if rp.FileSize == 0 {
		t.Error("Expected non-zero file size")
	}

	history := env.store.History(0, 10)
	if len(history) != 1 {
		t.Fatalf("Expected 1 history record, got %d", len(history))
	}
	if history[0].CompletedTracks != 1 {
		t.Errorf("Expected 1 completed track in history, got %d", history[0].CompletedTracks)
	}

	stats := env.store.GetStats()
	if stats.TotalTracks != 1 {
		t.Errorf("Expected 1 total track in stats, got %d", stats.TotalTracks)
	}
}

func TestTrackJobNoMatchFails(t *testing.T) {
	env := newTestEnv(t)
	env.matcher.noMatch["Test Song"] = true
	ctx := context.Background()

	itemID, _ := env.manager.EnqueueTrack(ctx, "t1")

	err := env.manager.handleJob(ctx, &Job{ItemID: itemID, Kind: store.KindTrack})
	if !apperrors.IsNoMatchError(err) {
		t.Fatalf("Expected no match error, got %v", err)
	}

	item := env.store.GetByID(itemID)
	if item.Status != store.StatusFailed {
		t.Errorf("Expected failed status, got %s", item.Status)
	}
	if item.ErrorMessage == "" {
		t.Error("Expected error message on failed item")
	}
	if env.fetcher.callCount() != 0 {
		t.Error("Fetcher must not run when matching fails")
	}
}

func TestExistingFileSkipsPipeline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	existing := filepath.Join(env.cfg.Download.OutputDir, "Test Artist", "Test Album", "01. Test Song.mp3")
	if err := os.MkdirAll(filepath.Dir(existing), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(existing, []byte("previous download"), 0644); err != nil {
		t.Fatal(err)
	}

	itemID, _ := env.manager.EnqueueTrack(ctx, "t1")
	if err := env.manager.handleJob(ctx, &Job{ItemID: itemID, Kind: store.KindTrack}); err != nil {
		t.Fatalf("handleJob failed: %v", err)
	}

	item := env.store.GetByID(itemID)
	if item.Status != store.StatusCompleted {
		t.Fatalf("Expected completed, got %s", item.Status)
	}
	if len(item.ResultPaths) != 1 || item.ResultPaths[0].Outcome != store.OutcomeExisting {
		t.Errorf("Expected existing outcome, got %+v", item.ResultPaths)
	}
	if env.matcher.callCount() != 0 {
		t.Error("Matcher must not run for an existing file")
	}
	if env.fetcher.callCount() != 0 {
		t.Error("Fetcher must not run for an existing file")
	}
}

func TestAlbumJobPartialFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	album := &catalog.Album{
		ID:      "al1",
		Name:    "Big Album",
		Artists: []catalog.Artist{{ID: "a1", Name: "Test Artist"}},
	}
	for i := 1; i <= 10; i++ {
		track := makeTrack(fmt.Sprintf("t%d", i), fmt.Sprintf("Track %d", i), i)
		track.Album = catalog.Album{ID: "al1", Name: "Big Album"}
		album.Tracks = append(album.Tracks, track)
	}
	env.catalog.albums["al1"] = album

	// Two tracks have no usable source
	env.matcher.noMatch["Track 3"] = true
	env.matcher.noMatch["Track 7"] = true

	itemID, err := env.manager.EnqueueAlbum(ctx, "al1")
	if err != nil {
		t.Fatalf("EnqueueAlbum failed: %v", err)
	}

	if err := env.manager.handleJob(ctx, &Job{ItemID: itemID, Kind: store.KindAlbum}); err != nil {
		t.Fatalf("handleJob failed: %v", err)
	}

	item := env.store.GetByID(itemID)
	if item.Status != store.StatusCompleted {
		t.Fatalf("Container must complete despite track failures, got %s", item.Status)
	}
	if item.TotalTracks != 10 {
		t.Errorf("Expected 10 total tracks, got %d", item.TotalTracks)
	}
	if item.CompletedTracks != 8 {
		t.Errorf("Expected 8 completed tracks, got %d", item.CompletedTracks)
	}
	if item.FailedTracks != 2 {
		t.Errorf("Expected 2 failed tracks, got %d", item.FailedTracks)
	}
	if len(item.ResultPaths) != 8 {
		t.Errorf("Expected 8 result paths, got %d", len(item.ResultPaths))
	}
	if item.Progress != 100 {
		t.Errorf("Expected progress 100, got %d", item.Progress)
	}

	stats := env.store.GetStats()
	if stats.TotalTracks != 8 {
		t.Errorf("Expected 8 tracks in stats, got %d", stats.TotalTracks)
	}
	if stats.TotalContainers != 1 {
		t.Errorf("Expected 1 container in stats, got %d", stats.TotalContainers)
	}
}

func TestPlaylistJobLayout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	track := makeTrack("p1t1", "List Song", 1)
	env.catalog.playlists["pl1"] = &catalog.Playlist{
		ID:     "pl1",
		Name:   "Road Trip",
		Owner:  "someone",
		Tracks: []catalog.Track{track},
	}

	itemID, err := env.manager.EnqueuePlaylist(ctx, "pl1")
	if err != nil {
		t.Fatalf("EnqueuePlaylist failed: %v", err)
	}

	if err := env.manager.handleJob(ctx, &Job{ItemID: itemID, Kind: store.KindPlaylist}); err != nil {
		t.Fatalf("handleJob failed: %v", err)
	}

	item := env.store.GetByID(itemID)
	if item.Status != store.StatusCompleted {
		t.Fatalf("Expected completed, got %s", item.Status)
	}
	expectedPath := filepath.Join(env.cfg.Download.OutputDir, "Playlists", "Road Trip", "Test Artist - List Song.mp3")
	if len(item.ResultPaths) != 1 || item.ResultPaths[0].LocalPath != expectedPath {
		t.Errorf("Expected playlist layout path %q, got %+v", expectedPath, item.ResultPaths)
	}
}

func TestCanceledItemIsSkipped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	itemID, _ := env.manager.EnqueueTrack(ctx, "t1")

	if !env.manager.Cancel(itemID) {
		t.Fatal("Cancel of pending item should succeed")
	}

	if err := env.manager.handleJob(ctx, &Job{ItemID: itemID, Kind: store.KindTrack}); err != nil {
		t.Fatalf("handleJob failed: %v", err)
	}

	item := env.store.GetByID(itemID)
	if item.Status != store.StatusCanceled {
		t.Errorf("Expected item to stay canceled, got %s", item.Status)
	}
	if env.fetcher.callCount() != 0 {
		t.Error("Canceled item must not be downloaded")
	}
}

func TestDownloadBytesCountedOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	itemID, _ := env.manager.EnqueueTrack(ctx, "t1")

	before := testutil.ToFloat64(monitoring.DownloadBytesTotal)
	if err := env.manager.handleJob(ctx, &Job{ItemID: itemID, Kind: store.KindTrack}); err != nil {
		t.Fatalf("handleJob failed: %v", err)
	}
	delta := testutil.ToFloat64(monitoring.DownloadBytesTotal) - before

	item := env.store.GetByID(itemID)
	var written int64
	for _, rp := range item.ResultPaths {
		written += rp.FileSize
	}
	if written == 0 {
		t.Fatal("Expected bytes written to disk")
	}
	if int64(delta) != written {
		t.Errorf("Transfer metric delta = %v, want %d", delta, written)
	}
}

func TestTagFailureIsNonFatal(t *testing.T) {
	env := newTestEnv(t)
	env.tagger.failAll = true
	ctx := context.Background()

	itemID, _ := env.manager.EnqueueTrack(ctx, "t1")
	if err := env.manager.handleJob(ctx, &Job{ItemID: itemID, Kind: store.KindTrack}); err != nil {
		t.Fatalf("handleJob failed: %v", err)
	}

	item := env.store.GetByID(itemID)
	if item.Status != store.StatusCompleted {
		t.Fatalf("Tag failure must not fail the download, got %s", item.Status)
	}
	if !strings.Contains(item.Note, "tags not written") {
		t.Errorf("Expected tag failure note, got %q", item.Note)
	}
}

func TestManagerStartProcessesQueue(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	itemID, _ := env.manager.EnqueueTrack(ctx, "t1")

	if err := env.manager.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.After(10 * time.Second)
	for {
		item := env.store.GetByID(itemID)
		if item != nil && item.Status == store.StatusCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("Timeout waiting for item, status: %s", item.Status)
		case <-time.After(100 * time.Millisecond):
		}
	}

	cancel()
	if !env.manager.Stop() {
		t.Error("Expected clean shutdown")
	}
}

func TestInterruptedItemsAreNotResumed(t *testing.T) {
	env := newTestEnv(t)

	id := env.store.Add(&store.QueueItem{Kind: store.KindTrack, SourceID: "t1", Title: "Test Song"})
	env.store.Update(id, func(it *store.QueueItem) {
		it.Status = store.StatusDownloading
		it.Progress = 42
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := env.manager.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer env.manager.Stop()

	// Give the dispatcher a poll cycle, then confirm the item was left
	// in its last persisted state
	time.Sleep(2500 * time.Millisecond)

	item := env.store.GetByID(id)
	if item.Status != store.StatusDownloading || item.Progress != 42 {
		t.Errorf("Interrupted item must stay in its last persisted state, got %s/%d",
			item.Status, item.Progress)
	}
	if env.fetcher.callCount() != 0 {
		t.Error("Interrupted item must not be re-dispatched")
	}
}
