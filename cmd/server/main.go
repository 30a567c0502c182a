// Command server starts the cold-start marketplace HTTP backend.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NeilR2s/cold-start-marketplace/internal/api"
	"github.com/NeilR2s/cold-start-marketplace/internal/blob"
	"github.com/NeilR2s/cold-start-marketplace/internal/config"
	"github.com/NeilR2s/cold-start-marketplace/internal/directory"
	"github.com/NeilR2s/cold-start-marketplace/internal/observability/logging"
	"github.com/NeilR2s/cold-start-marketplace/internal/server"
)

const (
	imageBucket = "image-blobs"
	fileBucket  = "cold-start-file-blobs"

	startupTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	envFile := flag.String("env-file", "", "path to a dotenv file with connection settings")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	flag.Parse()

	if strings.TrimSpace(*envFile) != "" {
		os.Setenv("COLDSTART_ENV_FILE", *envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Init(logging.Config{}).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, cfg.LogLevel),
		Format: firstNonEmpty(*logFormat, cfg.LogFormat),
	})

	userDirectory := directory.New(directory.Config{
		Endpoint:       cfg.DatabaseURI,
		Key:            cfg.DatabaseKey,
		DatabaseID:     cfg.DatabaseID,
		RequestTimeout: cfg.RemoteTimeout,
		Logger:         logging.WithComponent(logger, "directory"),
	})
	imageGateway := blob.New(blob.Config{
		Endpoint:       cfg.StorageConnectionString,
		PublicEndpoint: cfg.StoragePublicEndpoint,
		Region:         cfg.StorageRegion,
		AccessKey:      cfg.StorageAccountName,
		SecretKey:      cfg.StorageAccountKey,
		Bucket:         imageBucket,
		Policy:         blob.Policy(cfg.ImageUploadPolicy),
		RequestTimeout: cfg.RemoteTimeout,
		Logger:         logging.WithComponent(logger, "image-blobs"),
	})
	fileGateway := blob.New(blob.Config{
		Endpoint:       cfg.StorageConnectionString,
		PublicEndpoint: cfg.StoragePublicEndpoint,
		Region:         cfg.StorageRegion,
		AccessKey:      cfg.StorageAccountName,
		SecretKey:      cfg.StorageAccountKey,
		Bucket:         fileBucket,
		Policy:         blob.Policy(cfg.FileUploadPolicy),
		RequestTimeout: cfg.RemoteTimeout,
		Logger:         logging.WithComponent(logger, "file-blobs"),
	})

	// All gateways must be ready before the server accepts traffic; any
	// initialization failure aborts startup rather than serving partially.
	initCtx, initCancel := context.WithTimeout(context.Background(), startupTimeout)
	group, groupCtx := errgroup.WithContext(initCtx)
	group.Go(func() error { return userDirectory.Initialize(groupCtx) })
	group.Go(func() error { return imageGateway.Initialize(groupCtx) })
	group.Go(func() error { return fileGateway.Initialize(groupCtx) })
	if err := group.Wait(); err != nil {
		initCancel()
		logger.Error("gateway initialization failed", "error", err)
		os.Exit(1)
	}
	initCancel()

	handler := &api.Handler{
		Directory:         userDirectory,
		Images:            imageGateway,
		Files:             fileGateway,
		APIPrefix:         cfg.APIVersion,
		CredentialsLoaded: cfg.CredentialsLoaded,
		Logger:            logging.WithComponent(logger, "api"),
	}

	listenAddr := firstNonEmpty(*addr, cfg.Addr)
	srv, err := server.New(handler, server.Config{
		Addr:        listenAddr,
		APIPrefix:   cfg.APIVersion,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("marketplace API listening", "addr", listenAddr, "api_prefix", cfg.APIVersion)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errs:
		logger.Error("server error", "error", err)
	}

	srvCtx, srvCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	if err := srv.Shutdown(srvCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	srvCancel()

	// Gateways close after the server so in-flight requests finish first,
	// on a fresh deadline so a slow HTTP drain cannot starve the blob
	// gateways of the budget they need to drain their write-behind queues.
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := imageGateway.Close(ctx); err != nil {
		logger.Warn("failed to close image blob gateway", "error", err)
	}
	if err := fileGateway.Close(ctx); err != nil {
		logger.Warn("failed to close file blob gateway", "error", err)
	}
	if err := userDirectory.Close(ctx); err != nil {
		logger.Warn("failed to close user directory", "error", err)
	}

	logger.Info("server stopped")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
