package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"crmoverlay/api/internal/app"
	"crmoverlay/api/internal/backup"
	"crmoverlay/api/internal/color"
	"crmoverlay/api/internal/contacts"
	"crmoverlay/api/internal/discovery"
	"crmoverlay/api/internal/host"
	"crmoverlay/api/internal/labelcache"
	"crmoverlay/api/internal/localstore"
	"crmoverlay/api/internal/metrics"
	"crmoverlay/api/internal/reconcile"
	"crmoverlay/api/internal/search"
	"crmoverlay/api/internal/store"
)

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	local, err := localstore.Open(cfg.LocalBackend, cfg.BadgerDir, cfg.RedisURL, logger.Named("localstore"))
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer local.Close()
	contactSet := contacts.Open(ctx, local, cfg.Operator, logger.Named("contacts"))

	// The remote store is optional at runtime: without it the overlay keeps
	// working from the local copy and reconciles once it is reachable again.
	var (
		remote  *store.PostgresStore
		changes <-chan store.Notification
	)
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Warn("remote store unavailable, running local-only", zap.Error(err))
	} else {
		defer db.Close()
		if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		remote = store.NewPostgresStore(db)
		changes, err = store.Listen(ctx, cfg.DatabaseURL, logger.Named("notify"))
		if err != nil {
			logger.Warn("change notifications unavailable, relying on periodic sync", zap.Error(err))
		}
	}

	var (
		page       host.Page
		resolver   color.Resolver
		strategies []discovery.Strategy
	)
	chrome, err := host.NewChrome(ctx, host.Options{DebugURL: cfg.ChromeDebugURL, HostURL: cfg.HostURL}, logger)
	if err != nil {
		logger.Warn("host page unavailable, discovery disabled", zap.Error(err))
	} else {
		defer chrome.Close()
		page, resolver = chrome, chrome
		strategies = discovery.DefaultStrategies(chrome, cfg.SampleSize)
	}

	orchestrator := discovery.NewOrchestrator(strategies, resolver, logger.Named("discovery"), m)
	labels := labelcache.New(orchestrator, cfg.LabelTTL, logger.Named("labels"), m)
	if page != nil {
		mutations := host.WatchMutations(ctx, page, 0, logger.Named("host"))
		watcher := discovery.Watch(ctx, mutations, cfg.RescanDebounce, cfg.RescanInterval, func(ctx context.Context) {
			labels.Refresh(ctx)
		}, logger.Named("discovery"))
		defer watcher.Close()
	}

	var (
		remoteContacts reconcile.Remote
		remoteLabels   app.RemoteLabels
		fallbacks      []search.Searcher
	)
	if remote != nil {
		remoteContacts, remoteLabels = remote, remote
		fallbacks = append(fallbacks, search.NewPostgres(remote))
	}
	fallbacks = append(fallbacks, search.NewMemory(contactSet.List))

	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger.Named("search"))
		defer meili.Close()
	}
	searchService := search.NewService(meili, logger.Named("search"), fallbacks...)

	var snapshots app.Snapshotter
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		snapshotter, err := backup.New(backup.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		}, logger.Named("backup"))
		if err != nil {
			logger.Warn("object storage unavailable, snapshots disabled", zap.Error(err))
		} else {
			snapshots = snapshotter
		}
	}

	engine := reconcile.NewEngine(contactSet, remoteContacts, cfg.Operator, logger.Named("reconcile"), m)
	service := app.NewService(ctx, app.Deps{
		Operator: cfg.Operator,
		Logger:   logger.Named("app"),
		Labels:   labels,
		Contacts: contactSet,
		Local:    local,
		Remote:   remoteLabels,
		Page:     page,
		Engine:   engine,
		Search:   searchService,
		Backup:   snapshots,
	})
	engine.Start(ctx, cfg.SyncInterval, changes, labels)
	defer engine.Stop()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, reg, logger.Named("http"))
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("overlay API listening", zap.String("addr", cfg.Addr), zap.String("operator", cfg.Operator))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	return nil
}
