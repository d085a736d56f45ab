package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spotifx/spotifx-go/internal/cache"
	"github.com/spotifx/spotifx-go/internal/catalog"
	"github.com/spotifx/spotifx-go/internal/config"
	"github.com/spotifx/spotifx-go/internal/download"
	"github.com/spotifx/spotifx-go/internal/match"
	"github.com/spotifx/spotifx-go/internal/media"
	"github.com/spotifx/spotifx-go/internal/metadata"
	"github.com/spotifx/spotifx-go/internal/monitoring"
	"github.com/spotifx/spotifx-go/internal/search"
	"github.com/spotifx/spotifx-go/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to the config file (default: <data dir>/settings.json)")
	metricsAddr := flag.String("metrics-addr", ":9090", "listen address for the /metrics endpoint")
	wait := flag.Bool("wait", true, "wait for the queue to drain before exiting when inputs are given")
	historyCount := flag.Int("history", 0, "print the N most recent completed downloads and exit")
	flag.Parse()

	if *historyCount > 0 {
		if err := printHistory(*configPath, *historyCount); err != nil {
			fmt.Fprintf(os.Stderr, "spotifx-core: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath, *metricsAddr, *wait, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "spotifx-core: %v\n", err)
		os.Exit(1)
	}
}

// printHistory writes the most recent download history records to stdout
func printHistory(configPath string, count int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	queueStore, err := store.Open(cfg.Store.FilePath, nil)
	if err != nil {
		return fmt.Errorf("failed to open queue store: %w", err)
	}

	records := queueStore.History(0, count)
	if len(records) == 0 {
		fmt.Println("no download history")
		return nil
	}

	for _, rec := range records {
		fmt.Printf("%s  %-8s  %s - %s  (%d tracks, %d failed)\n",
			rec.DownloadedAt.Format("2006-01-02 15:04"),
			rec.Kind, rec.Artist, rec.Title,
			rec.CompletedTracks, rec.FailedTracks)
	}
	return nil
}

func run(configPath, metricsAddr string, wait bool, inputs []string) error {
	dataDir := config.GetDataDir()
	if configPath == "" {
		configPath = filepath.Join(dataDir, "settings.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := monitoring.NewLogger(&monitoring.LogConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting spotifx-core",
		zap.String("config", configPath),
		zap.String("output_dir", cfg.Download.OutputDir))

	queueStore, err := store.Open(cfg.Store.FilePath, logger)
	if err != nil {
		return fmt.Errorf("failed to open queue store: %w", err)
	}

	var responseCache *cache.Cache
	if cfg.Cache.Enabled {
		responseCache, err = cache.Open(cfg.Cache.DBPath, time.Duration(cfg.Cache.TTLSecs)*time.Second)
		if err != nil {
			logger.Warn("response cache unavailable, continuing without it", zap.Error(err))
		} else {
			defer responseCache.Close()
		}
	}

	catalogClient := catalog.NewClient(catalog.ClientOptions{
		ClientID:     cfg.Catalog.ClientID,
		ClientSecret: cfg.Catalog.ClientSecret,
		BaseURL:      cfg.Catalog.BaseURL,
		TokenURL:     cfg.Catalog.TokenURL,
		RateLimit:    cfg.Catalog.RateLimit,
		Cache:        responseCache,
		Timeout:      time.Duration(cfg.Network.Timeout) * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := catalogClient.Authenticate(ctx); err != nil {
		return fmt.Errorf("catalog authentication failed: %w", err)
	}
	logger.Info("catalog authentication successful")

	searchClient := search.NewClient(cfg.Search.BaseURL, cfg.Search.MaxResults,
		time.Duration(cfg.Network.Timeout)*time.Second)
	selector := match.NewSelector(download.NewSourceSearcher(searchClient), logger)

	var fetcher media.Fetcher
	switch cfg.Download.FetchTool {
	case "ytdlp":
		fetcher = media.NewYTDLPFetcher(cfg.Download.FetchToolPath, cfg.Download.AudioFormat)
	default:
		fetcher = media.NewHTTPFetcher(time.Duration(cfg.Network.Timeout) * time.Second)
	}

	tagger := metadata.NewManager(&metadata.Config{
		EmbedArtwork: cfg.Download.EmbedArtwork,
		ArtworkSize:  cfg.Download.ArtworkSize,
	})

	notifier := download.NewLogNotifier(logger)
	manager := download.NewManager(cfg, queueStore, catalogClient, selector, fetcher, tagger, notifier, logger)

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start download manager: %w", err)
	}

	metricsServer := &http.Server{Addr: metricsAddr, Handler: metricsMux()}
	go func() {
		logger.Info("serving metrics", zap.String("addr", metricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	for _, input := range inputs {
		if err := enqueue(ctx, manager, input); err != nil {
			logger.Error("failed to enqueue input",
				zap.String("input", input),
				zap.Error(err))
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if len(inputs) > 0 && wait {
		waitForDrain(ctx, queueStore, manager, sigCh, logger)
	} else {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	}

	cancel()
	if !manager.Stop() {
		logger.Warn("shutdown grace period expired with downloads in flight")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsServer.Shutdown(shutdownCtx)

	logger.Info("spotifx-core stopped")
	return nil
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// enqueue routes an input to the right enqueue operation based on the
// kind embedded in the URL or URI. Bare IDs are treated as tracks.
func enqueue(ctx context.Context, manager *download.Manager, input string) error {
	var (
		itemID string
		err    error
	)

	switch detectKind(input) {
	case store.KindAlbum:
		itemID, err = manager.EnqueueAlbum(ctx, input)
	case store.KindPlaylist:
		itemID, err = manager.EnqueuePlaylist(ctx, input)
	default:
		itemID, err = manager.EnqueueTrack(ctx, input)
	}
	if err != nil {
		return err
	}

	fmt.Printf("queued %s as %s\n", input, itemID)
	return nil
}

func detectKind(input string) string {
	lowered := strings.ToLower(input)
	switch {
	case strings.Contains(lowered, "/album/") || strings.Contains(lowered, ":album:"):
		return store.KindAlbum
	case strings.Contains(lowered, "/playlist/") || strings.Contains(lowered, ":playlist:"):
		return store.KindPlaylist
	default:
		return store.KindTrack
	}
}

// waitForDrain blocks until every queued item reaches a terminal state,
// or a signal arrives.
func waitForDrain(ctx context.Context, qs *store.QueueStore, manager *download.Manager, sigCh <-chan os.Signal, logger *zap.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if qs.PendingCount() == 0 && len(qs.GetByStatus(store.StatusDownloading)) == 0 && manager.ActiveCount() == 0 {
				logger.Info("queue drained")
				return
			}
		}
	}
}
