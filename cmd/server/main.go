package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"regsync/internal/fetch"
	"regsync/internal/files"
	"regsync/internal/loader"
	"regsync/internal/notify"
	"regsync/internal/platform/config"
	"regsync/internal/platform/httpserver"
	"regsync/internal/platform/logger"
	"regsync/internal/platform/metrics"
	"regsync/internal/process"
	"regsync/internal/reconcile"
	"regsync/internal/registry"
	"regsync/internal/remap"
	"regsync/internal/scheduler"
	"regsync/internal/store"
	"regsync/internal/transport"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := os.MkdirAll(cfg.FilesDir, 0o755); err != nil {
		log.Error("cannot create files directory", "dir", cfg.FilesDir, "error", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promRegistry)

	ld, err := loader.New(cfg.Charset, log)
	if err != nil {
		log.Error("invalid extract charset", "charset", cfg.Charset, "error", err)
		os.Exit(1)
	}

	selector := files.NewSelector(cfg.FilesDir)
	snapshots := store.NewSnapshotStore(log)
	client := registry.NewClient(cfg.APIBaseURL, log)

	engine := reconcile.New(client, m, log,
		reconcile.WithWorkerLimit(cfg.WorkerLimit),
		reconcile.WithDeletionExclusion(reconcile.ExcludeByProfessionCode(cfg.ExcludedProfessionCodes)),
	)
	remapper := remap.New(client, log, cfg.WorkerLimit)

	var downloader process.Downloader
	if cfg.ExtractDownloadURL != "" {
		var tlsCfg *fetch.TLSConfig
		if cfg.UseTLS {
			tlsCfg = &fetch.TLSConfig{CertFile: cfg.CertPath, KeyFile: cfg.KeyPath, CAFile: cfg.CAPath}
		}
		downloader, err = fetch.NewDownloader(cfg.ExtractDownloadURL, tlsCfg, log)
		if err != nil {
			log.Error("cannot build downloader", "error", err)
			os.Exit(1)
		}
	} else {
		log.Warn("no extract download URL configured, downloads disabled")
	}

	var regen process.Regenerator
	if cfg.ExtractServiceURL != "" {
		regen = fetch.NewRegenerator(cfg.ExtractServiceURL, log)
	}

	var notifier process.Notifier
	if cfg.Mail.Host != "" {
		notifier = notify.NewMailer(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.From, cfg.Mail.To, log)
	}

	proc := process.New(selector, ld, snapshots, engine, remapper, downloader, regen, notifier, m, log)

	handler := transport.NewHandler(proc, selector, ld, log)
	server := httpserver.New(cfg.Addr, transport.NewRouter(handler, promRegistry, log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go proc.SelfHeal(ctx)

	if cfg.ScheduleEnabled {
		sched := scheduler.New(proc, cfg.ScheduleInterval, cfg.AutoContinue, log)
		go sched.Run(ctx)
	}

	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown incomplete", "error", err)
	}
	log.Info("server stopped")
}
