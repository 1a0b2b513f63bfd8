package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/soaringjerry/Footprint/internal/api"
	"github.com/soaringjerry/Footprint/internal/attachments"
	"github.com/soaringjerry/Footprint/internal/config"
	dbstore "github.com/soaringjerry/Footprint/internal/db"
	"github.com/soaringjerry/Footprint/internal/logging"
	"github.com/soaringjerry/Footprint/internal/metrics"
	"github.com/soaringjerry/Footprint/internal/middleware"
	"github.com/soaringjerry/Footprint/internal/services"
	"github.com/soaringjerry/Footprint/internal/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func loadConfig() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

// openStore returns the configured store and a function that releases it.
func openStore(cfg config.Config, logger zerolog.Logger) (api.Store, func() error, error) {
	if cfg.Store == "memory" {
		st, err := api.NewMemoryStoreFromPath(cfg.SnapshotPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load snapshot: %w", err)
		}
		closeFn := func() error {
			if cfg.SnapshotPath == "" {
				return nil
			}
			return api.SaveMemoryStore(st, cfg.SnapshotPath)
		}
		return st, closeFn, nil
	}
	if err := MigrateIfNeeded(cfg.SnapshotPath, cfg.DBPath, cfg.MigrationsDir, logger); err != nil {
		return nil, nil, err
	}
	db, err := dbstore.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if _, err := dbstore.RunMigrations(db, cfg.MigrationsDir, logger); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	st, err := dbstore.NewStore(db, logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return st, db.Close, nil
}

func newHandler(cfg config.Config, st api.Store, files services.AttachmentStore, logger zerolog.Logger) http.Handler {
	sessions := services.NewSessionRegistry()
	authn := middleware.NewAuthenticator(cfg.JWTSecret, sessions)
	m := metrics.New(sessions.Len)

	mux := http.NewServeMux()
	api.NewRouter(api.Options{
		Store:          st,
		Files:          files,
		Auth:           authn,
		Metrics:        m,
		Logger:         logger,
		TokenTTL:       cfg.TokenTTL,
		CallTimeout:    cfg.CallTimeout,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}).Register(mux)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		locale := middleware.LocaleFromContext(r.Context())
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "Footprint API",
			"locale":     locale,
			"msg":        utils.T(locale, "health.ok"),
			"commit":     cfg.Commit,
			"build_time": cfg.BuildTime,
		})
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"commit":     cfg.Commit,
			"build_time": cfg.BuildTime,
		})
	})
	mux.Handle("GET /metrics", m.Handler())

	// Frontend: static files when a directory is configured, otherwise the
	// dev server behind a proxy.
	if cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	} else if cfg.DevFrontendURL != "" {
		if u, err := url.Parse(cfg.DevFrontendURL); err == nil {
			rp := httputil.NewSingleHostReverseProxy(u)
			rp.ModifyResponse = func(res *http.Response) error {
				middleware.SetNoStore(res.Header)
				return nil
			}
			mux.Handle("/", rp)
		} else {
			logger.Warn().Err(err).Str("url", cfg.DevFrontendURL).Msg("invalid dev frontend url")
		}
	}

	var h http.Handler = mux
	h = middleware.LocaleMiddleware(h)
	h = middleware.NoStore(h)
	h = middleware.SecureHeaders(h)
	h = middleware.CORS(cfg.AllowedOrigins)(h)
	return middleware.RequestLogger(logger)(h)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.UsesDevSecret() {
		logger.Warn().Msg("FOOTPRINT_JWT_SECRET is not set, using the development secret")
	}

	st, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error().Err(err).Msg("close store")
		}
	}()
	files, err := attachments.NewDiskStore(cfg.UploadDir, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(cfg, st, files, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("store", cfg.Store).Msg("footprint server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
