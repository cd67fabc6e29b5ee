package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"media-vault/internal/apperrors"
	"media-vault/internal/filesystem"
	"media-vault/internal/handlers"
	"media-vault/internal/ingest"
	"media-vault/internal/logging"
	"media-vault/internal/media"
	"media-vault/internal/memory"
	"media-vault/internal/metrics"
	"media-vault/internal/middleware"
	"media-vault/internal/startup"
	"media-vault/internal/supervisor"
)

func main() {
	startTime := time.Now()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	memory.ConfigureFromEnv()
	filesystem.SetObserver(metrics.NewFilesystemObserver())
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(config.Volumes()))
	metrics.AppInfo.WithLabelValues(startup.Version, startup.Commit, startup.GoVersion).Set(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	versions, err := media.CheckBinaries(ctx, config.Binaries.FFmpeg, config.Binaries.FFprobe)
	if err != nil {
		startup.LogFatal("%v. Install ffmpeg or set binaries.ffmpeg and binaries.ffprobe.", err)
	}
	startup.LogBinaryCheck(versions)

	helpers := supervisor.New(config.Helpers, config.HelperBinDir())
	startup.LogHelpersInit(helpers.Names())
	if err := helpers.Start(ctx); err != nil {
		startup.LogFatal("%s", helperFailure(err))
	}

	svc, err := ingest.New(ctx, config, helpers)
	if err != nil {
		helpers.Stop()
		startup.LogFatal("Failed to initialize ingestion: %v", err)
	}
	if err := svc.Start(ctx); err != nil {
		helpers.Stop()
		startup.LogFatal("Failed to start ingestion: %v", err)
	}

	router := setupRouter(handlers.New(svc.Queue(), svc.Scanner(), searcher(svc)))
	startup.LogHTTPRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Server.Port),
		Handler:           middleware.Logger(middleware.DefaultLoggingConfig())(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		startup.LogServerStarted(config.Server.Port, time.Since(startTime))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case sig := <-sigChan:
		startup.LogShutdownInitiated(sig.String())
	case err := <-errc:
		logging.Error("Server error: %v", err)
		startup.LogShutdownInitiated("server error")
	}

	shutdown(srv, svc, helpers)
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	h.Register(r)
	return r
}

// searcher returns the search client as a handlers.Searcher, or a nil
// interface when search is disabled.
func searcher(svc *ingest.Service) handlers.Searcher {
	if s := svc.Search(); s != nil {
		return s
	}
	return nil
}

// helperFailure turns a helper startup error into operator guidance.
func helperFailure(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrUnsupportedPlatform):
		return fmt.Sprintf("%v. No helper release exists for this platform; disable the helper or provide the binary in helpers.bin_dir.", err)
	case errors.Is(err, apperrors.ErrDownload):
		return fmt.Sprintf("%v. Check network access to the helper release URL or place the binary in helpers.bin_dir.", err)
	case errors.Is(err, apperrors.ErrMissingDependency):
		return fmt.Sprintf("%v. Check the helper logs above and that its port is free.", err)
	default:
		return fmt.Sprintf("Failed to start helper services: %v", err)
	}
}

func shutdown(srv *http.Server, svc *ingest.Service, helpers *supervisor.Supervisor) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	svc.Stop()

	startup.LogShutdownStep("Stopping helper services")
	helpers.Stop()
	startup.LogShutdownStepComplete("Helper services stopped")

	startup.LogShutdownComplete()
}
