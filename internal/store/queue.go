package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spotifx/spotifx-go/internal/monitoring"
)

// Item status values
const (
	StatusPending     = "pending"
	StatusDownloading = "downloading"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusCanceled    = "canceled"
)

// Item kinds
const (
	KindTrack    = "track"
	KindAlbum    = "album"
	KindPlaylist = "playlist"
)

// Result outcomes
const (
	OutcomeDownloaded = "downloaded"
	OutcomeExisting   = "existing"
	OutcomeFailed     = "failed"
)

// ResultPath records the outcome for one resolved track of a queue item
type ResultPath struct {
	SourceID  string `json:"source_id"`
	LocalPath string `json:"local_path,omitempty"`
	FileSize  int64  `json:"file_size"`
	Outcome   string `json:"outcome"`
}

// QueueItem represents a download queue item
type QueueItem struct {
	ID              string       `json:"id"`
	Kind            string       `json:"kind"` // track, album, playlist
	SourceID        string       `json:"source_id"`
	Title           string       `json:"title"`
	Artist          string       `json:"artist"`
	Album           string       `json:"album"`
	Status          string       `json:"status"`
	Progress        int          `json:"progress"`
	Note            string       `json:"note,omitempty"`
	ResultPaths     []ResultPath `json:"result_paths,omitempty"`
	TotalTracks     int          `json:"total_tracks,omitempty"`
	CompletedTracks int          `json:"completed_tracks"`
	FailedTracks    int          `json:"failed_tracks"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	AddedAt         time.Time    `json:"added_at"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
}

// HistoryRecord is an immutable snapshot written when an item completes
type HistoryRecord struct {
	ItemID          string       `json:"item_id"`
	Kind            string       `json:"kind"`
	SourceID        string       `json:"source_id"`
	Title           string       `json:"title"`
	Artist          string       `json:"artist"`
	Album           string       `json:"album"`
	ResultPaths     []ResultPath `json:"result_paths,omitempty"`
	CompletedTracks int          `json:"completed_tracks"`
	FailedTracks    int          `json:"failed_tracks"`
	TotalBytes      int64        `json:"total_bytes"`
	DownloadedAt    time.Time    `json:"downloaded_at"`
}

// Stats holds running totals maintained incrementally on history appends
type Stats struct {
	TotalTracks          int        `json:"total_tracks"`
	TotalContainers      int        `json:"total_containers"`
	TotalBytesDownloaded int64      `json:"total_bytes_downloaded"`
	FirstDownloadAt      *time.Time `json:"first_download_at,omitempty"`
	LastDownloadAt       *time.Time `json:"last_download_at,omitempty"`
}

// document is the full persisted state, rewritten on every mutation
type document struct {
	Items   []*QueueItem    `json:"items"`
	History []HistoryRecord `json:"history"`
	Stats   Stats           `json:"stats"`
}

// QueueStore manages queue items, history and stats in a single JSON
// document. Every mutation persists the whole document before returning.
// A failed persist is logged and counted but never blocks the in-memory
// state from advancing.
type QueueStore struct {
	mu     sync.Mutex
	path   string
	doc    document
	logger *zap.Logger
}

// Open loads the store from path, creating an empty one if missing
func Open(path string, logger *zap.Logger) (*QueueStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	qs := &QueueStore{path: path, logger: logger}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return qs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	if err := json.Unmarshal(data, &qs.doc); err != nil {
		return nil, fmt.Errorf("failed to parse store file: %w", err)
	}

	return qs, nil
}

// Add creates a new pending queue item and returns its assigned ID
func (qs *QueueStore) Add(item *QueueItem) string {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	item.ID = uuid.NewString()
	item.Status = StatusPending
	item.Progress = 0
	item.AddedAt = time.Now()

	qs.doc.Items = append(qs.doc.Items, item)
	qs.persistLocked()

	return item.ID
}

// Update applies fn to the stored item under the store lock and persists.
// Returns false if the id is unknown.
func (qs *QueueStore) Update(id string, fn func(*QueueItem)) bool {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	item := qs.findLocked(id)
	if item == nil {
		return false
	}

	fn(item)
	qs.persistLocked()
	return true
}

// Claim transitions a pending item to downloading. The check and the
// transition happen under the store lock so a cancel racing a worker
// cannot revive a terminal item. Returns false if the item is unknown
// or no longer pending.
func (qs *QueueStore) Claim(id string) bool {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	item := qs.findLocked(id)
	if item == nil || item.Status != StatusPending {
		return false
	}

	item.Status = StatusDownloading
	qs.persistLocked()
	return true
}

// Cancel transitions a pending item to canceled. Items already claimed by
// a worker are refused.
func (qs *QueueStore) Cancel(id string) bool {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	item := qs.findLocked(id)
	if item == nil || item.Status != StatusPending {
		return false
	}

	item.Status = StatusCanceled
	now := time.Now()
	item.CompletedAt = &now
	qs.persistLocked()
	return true
}

// Remove deletes an item from the queue. Returns false if not found.
func (qs *QueueStore) Remove(id string) bool {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	for i, item := range qs.doc.Items {
		if item.ID == id {
			qs.doc.Items = append(qs.doc.Items[:i], qs.doc.Items[i+1:]...)
			qs.persistLocked()
			return true
		}
	}
	return false
}

// GetByID returns a copy of the item, or nil if unknown
func (qs *QueueStore) GetByID(id string) *QueueItem {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	item := qs.findLocked(id)
	if item == nil {
		return nil
	}
	copied := *item
	copied.ResultPaths = append([]ResultPath(nil), item.ResultPaths...)
	return &copied
}

// GetByStatus returns copies of all items with the given status, in
// insertion order. An empty status returns everything.
func (qs *QueueStore) GetByStatus(status string) []*QueueItem {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	var items []*QueueItem
	for _, item := range qs.doc.Items {
		if status != "" && item.Status != status {
			continue
		}
		copied := *item
		copied.ResultPaths = append([]ResultPath(nil), item.ResultPaths...)
		items = append(items, &copied)
	}
	return items
}

// AppendHistory records a completed download and folds it into the stats
func (qs *QueueStore) AppendHistory(record HistoryRecord) {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	if record.DownloadedAt.IsZero() {
		record.DownloadedAt = time.Now()
	}

	qs.doc.History = append(qs.doc.History, record)

	qs.doc.Stats.TotalTracks += record.CompletedTracks
	if record.Kind != KindTrack {
		qs.doc.Stats.TotalContainers++
	}
	qs.doc.Stats.TotalBytesDownloaded += record.TotalBytes

	ts := record.DownloadedAt
	if qs.doc.Stats.FirstDownloadAt == nil {
		qs.doc.Stats.FirstDownloadAt = &ts
	}
	qs.doc.Stats.LastDownloadAt = &ts

	qs.persistLocked()
}

// History returns history records newest first, skipping offset records
// and returning at most limit. A non-positive limit returns everything
// past the offset.
func (qs *QueueStore) History(offset, limit int) []HistoryRecord {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	n := len(qs.doc.History)
	if offset < 0 {
		offset = 0
	}
	if offset >= n {
		return nil
	}

	available := n - offset
	if limit <= 0 || limit > available {
		limit = available
	}

	records := make([]HistoryRecord, 0, limit)
	for i := n - 1 - offset; i > n-1-offset-limit; i-- {
		records = append(records, qs.doc.History[i])
	}
	return records
}

// GetStats returns a copy of the running stats
func (qs *QueueStore) GetStats() Stats {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	return qs.doc.Stats
}

// PendingCount returns the number of pending items
func (qs *QueueStore) PendingCount() int {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	count := 0
	for _, item := range qs.doc.Items {
		if item.Status == StatusPending {
			count++
		}
	}
	return count
}

func (qs *QueueStore) findLocked(id string) *QueueItem {
	for _, item := range qs.doc.Items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// persistLocked writes the full document to a temp file and renames it
// into place. Must be called with qs.mu held.
func (qs *QueueStore) persistLocked() {
	data, err := json.MarshalIndent(&qs.doc, "", "  ")
	if err != nil {
		qs.logger.Error("failed to encode store document", zap.Error(err))
		monitoring.RecordError("store_io")
		return
	}

	tmp := qs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		qs.logger.Error("failed to write store file", zap.String("path", tmp), zap.Error(err))
		monitoring.RecordError("store_io")
		return
	}

	if err := os.Rename(tmp, qs.path); err != nil {
		qs.logger.Error("failed to replace store file", zap.String("path", qs.path), zap.Error(err))
		monitoring.RecordError("store_io")
	}
}
