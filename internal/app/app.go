package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	goredis "github.com/redis/go-redis/v9"

	"github.com/satyamsundaram01/confsync/internal/config"
	"github.com/satyamsundaram01/confsync/internal/descriptor"
	"github.com/satyamsundaram01/confsync/internal/httpserver"
	"github.com/satyamsundaram01/confsync/internal/httpserver/deps"
	"github.com/satyamsundaram01/confsync/internal/logger"
	"github.com/satyamsundaram01/confsync/internal/manifest"
	"github.com/satyamsundaram01/confsync/internal/metadata"
	"github.com/satyamsundaram01/confsync/internal/redis"
	"github.com/satyamsundaram01/confsync/internal/scheduler"
	"github.com/satyamsundaram01/confsync/internal/state"
	redisstore "github.com/satyamsundaram01/confsync/internal/store/redis"
	"github.com/satyamsundaram01/confsync/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	index       *state.Index
	runner      *scheduler.SyncRunner
	watcher     *scheduler.ManifestWatcher
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog, cfg.LogFile)

	for _, dir := range []string{cfg.ConfdDir, cfg.TemplateDir, cfg.RenderDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			loggerClient.Errorf("Failed to create %s: %v", dir, err)
			os.Exit(1)
		}
	}

	// Redis backs record persistence across restarts. It is optional: with
	// no address configured the on-disk descriptors are the only memory.
	var redisClient *goredis.Client
	var store *redisstore.Store
	if cfg.RedisAddr != "" {
		loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		client, err := redis.New(redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, loggerClient)
		if err != nil {
			loggerClient.Errorf("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		redisClient = client
		store = redisstore.NewStore(client)
		loggerClient.Info("Redis initialized successfully")
	} else {
		loggerClient.Info("Redis not configured, record persistence disabled")
	}

	idx := state.NewIndex()

	// Warm up the index from Redis, then adopt whatever descriptors are
	// already on disk but unknown to the persisted records.
	if store != nil {
		records, err := store.GetAllRecords(context.Background())
		if err != nil {
			loggerClient.Warn("failed to load records from redis, starting cold",
				logger.Error(err))
		} else if len(records) > 0 {
			idx.Replace(records)
			loggerClient.Info("loaded records from redis",
				logger.Int("count", len(records)))
		}
	}

	writer := descriptor.NewWriter(descriptor.Options{
		ConfdDir:     cfg.ConfdDir,
		TemplateDir:  cfg.TemplateDir,
		RenderDir:    cfg.RenderDir,
		TemplateName: cfg.TemplateName,
		Mode:         cfg.DescriptorMode,
		ReloadCmd:    cfg.ReloadCmd,
	}, idx, loggerClient)

	if err := writer.SeedFromDisk(); err != nil {
		loggerClient.Warn("failed to seed index from disk", logger.Error(err))
	}

	fetcher := metadata.NewProvider(metadata.Options{
		IdentityURL:   cfg.IdentityURL,
		TagServiceURL: cfg.TagServiceURL,
		WhoamiURL:     cfg.WhoamiURL,
		Timeout:       cfg.MetadataTimeout,
	}, loggerClient)

	syncTrigger := make(chan struct{}, 1)
	refreshTrigger := make(chan struct{}, 1)

	runner := scheduler.NewSyncRunner(scheduler.SyncRunnerOptions{
		Fetcher:        fetcher,
		Loader:         manifest.NewLoader(cfg.ManifestPath),
		Writer:         writer,
		Pruner:         scheduler.NewPruner(cfg.ConfdDir, idx, store, loggerClient),
		Syncer:         scheduler.NewExecSyncer(cfg.SyncCommand, loggerClient),
		Store:          store,
		Index:          idx,
		Interval:       cfg.SyncInterval,
		SnapshotPath:   cfg.SnapshotPath,
		SyncTrigger:    syncTrigger,
		RefreshTrigger: refreshTrigger,
	}, loggerClient)

	var watcher *scheduler.ManifestWatcher
	if cfg.WatchManifest {
		watcher = scheduler.NewManifestWatcher(cfg.ManifestPath, syncTrigger, loggerClient)
	}

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:          loggerClient,
		StartTime:       time.Now(),
		Version:         version.Version,
		Commit:          version.Commit,
		BuildDate:       version.BuildDate,
		GoVersion:       version.GoVersion,
		AllowedCIDRS:    cfg.AllowedCIDRS,
		TrustProxy:      cfg.TrustProxy,
		RateLimitBurst:  cfg.RateLimitBurst,
		RateLimitPerMin: cfg.RateLimitPerMin,
		RedisClient:     redisClient,
		Index:           idx,
		Runner:          runner,
		SyncTrigger:     syncTrigger,
		RefreshTrigger:  refreshTrigger,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		redisClient: redisClient,
		index:       idx,
		runner:      runner,
		watcher:     watcher,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting confsync v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("confsync %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the sync runner (runs the first cycle, then the periodic loop)
	if err := a.runner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sync runner: %w", err)
	}
	a.logger.Info("sync runner started",
		logger.Duration("interval", a.cfg.SyncInterval))

	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			a.logger.Warn("manifest watcher unavailable, relying on the periodic loop",
				logger.Error(err))
			a.watcher = nil
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// Tell systemd we are up (no-op outside a Type=notify unit).
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.logger.Debug("sd_notify ready failed", logger.Error(err))
	}

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		a.logger.Debug("sd_notify stopping failed", logger.Error(err))
	}

	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.runner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ confsync stopped cleanly")
	return nil
}
