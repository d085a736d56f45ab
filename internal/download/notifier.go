package download

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Notifier receives item lifecycle and progress events
type Notifier interface {
	NotifyProgress(itemID string, progress int, bytesProcessed, totalBytes int64)
	NotifyStarted(itemID string)
	NotifyCompleted(itemID string)
	NotifyFailed(itemID string, err error)
}

// TransferStats tracks throughput for an in-flight item
type TransferStats struct {
	ItemID         string
	StartTime      time.Time
	LastUpdate     time.Time
	BytesProcessed int64
	TotalBytes     int64
	Speed          float64 // bytes per second
	ETA            int     // seconds remaining

	lastLogged time.Time
}

// progressLogInterval throttles per-item progress log lines
const progressLogInterval = 5 * time.Second

// LogNotifier implements Notifier by tracking throughput and writing
// lifecycle events to the structured log.
type LogNotifier struct {
	logger  *zap.Logger
	stats   map[string]*TransferStats
	statsMu sync.RWMutex
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{
		logger: logger,
		stats:  make(map[string]*TransferStats),
	}
}

// NotifyProgress records transfer progress for an item
func (n *LogNotifier) NotifyProgress(itemID string, progress int, bytesProcessed, totalBytes int64) {
	now := time.Now()

	n.statsMu.Lock()
	stats, exists := n.stats[itemID]
	if !exists {
		stats = &TransferStats{
			ItemID:    itemID,
			StartTime: now,
		}
		n.stats[itemID] = stats
	}

	elapsed := now.Sub(stats.LastUpdate).Seconds()
	if elapsed > 0 && stats.LastUpdate.After(stats.StartTime) {
		bytesDelta := bytesProcessed - stats.BytesProcessed
		stats.Speed = float64(bytesDelta) / elapsed
	}

	stats.BytesProcessed = bytesProcessed
	stats.TotalBytes = totalBytes
	stats.LastUpdate = now

	if stats.Speed > 0 && totalBytes > 0 {
		remaining := totalBytes - bytesProcessed
		stats.ETA = int(float64(remaining) / stats.Speed)
	}

	shouldLog := now.Sub(stats.lastLogged) >= progressLogInterval
	if shouldLog {
		stats.lastLogged = now
	}
	n.statsMu.Unlock()

	if shouldLog {
		if snapshot := n.GetTransferStats(itemID); snapshot != nil {
			n.logger.Info("download progress",
				zap.String("item_id", itemID),
				zap.Int("progress", progress),
				zap.Int64("bytes", snapshot.BytesProcessed),
				zap.Int64("total_bytes", snapshot.TotalBytes),
				zap.String("speed", FormatSpeed(snapshot.Speed)),
				zap.String("eta", FormatETA(snapshot.ETA)))
		}
	}
}

// NotifyStarted logs that an item has started processing
func (n *LogNotifier) NotifyStarted(itemID string) {
	now := time.Now()

	n.statsMu.Lock()
	n.stats[itemID] = &TransferStats{
		ItemID:     itemID,
		StartTime:  now,
		LastUpdate: now,
	}
	n.statsMu.Unlock()

	n.logger.Info("download started", zap.String("item_id", itemID))
}

// NotifyCompleted logs that an item has completed
func (n *LogNotifier) NotifyCompleted(itemID string) {
	n.statsMu.Lock()
	stats := n.stats[itemID]
	delete(n.stats, itemID)
	n.statsMu.Unlock()

	fields := []zap.Field{zap.String("item_id", itemID)}
	if stats != nil {
		fields = append(fields,
			zap.Int64("bytes", stats.BytesProcessed),
			zap.Duration("elapsed", time.Since(stats.StartTime)))
	}
	n.logger.Info("download completed", fields...)
}

// NotifyFailed logs that an item has failed
func (n *LogNotifier) NotifyFailed(itemID string, err error) {
	n.statsMu.Lock()
	delete(n.stats, itemID)
	n.statsMu.Unlock()

	n.logger.Warn("download failed",
		zap.String("item_id", itemID),
		zap.Error(err))
}

// GetTransferStats returns a copy of the stats for an in-flight item,
// or nil when the item is not active.
func (n *LogNotifier) GetTransferStats(itemID string) *TransferStats {
	n.statsMu.RLock()
	defer n.statsMu.RUnlock()

	if stats, ok := n.stats[itemID]; ok {
		copied := *stats
		return &copied
	}
	return nil
}

// FormatSpeed formats speed in human-readable format
func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond < 1024 {
		return "< 1 KB/s"
	} else if bytesPerSecond < 1024*1024 {
		return fmt.Sprintf("%.1f KB/s", bytesPerSecond/1024)
	}
	return fmt.Sprintf("%.1f MB/s", bytesPerSecond/(1024*1024))
}

// FormatETA formats ETA in human-readable format
func FormatETA(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	} else if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
}
