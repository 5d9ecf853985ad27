package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	api "github.com/mind-engage/examportal/internal/api/http"
	auth "github.com/mind-engage/examportal/internal/auth/middleware"
	"github.com/mind-engage/examportal/internal/config"
	"github.com/mind-engage/examportal/internal/db"
	"github.com/mind-engage/examportal/internal/exam"
	"github.com/mind-engage/examportal/internal/logger"
	storage "github.com/mind-engage/examportal/internal/storage"
	syncx "github.com/mind-engage/examportal/internal/sync"
	"github.com/mind-engage/examportal/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	log := logger.Configure(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogFormat == "pretty"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("db open failed")
	}
	defer dbh.Close()

	// --- Services ---
	userStore := user.NewSQLStore(dbh)
	users := user.NewService(userStore, cfg.AdminEmail, user.WithBcryptCost(cfg.BcryptCost))
	events := syncx.NewEventRepo(dbh, "")

	examOpts := []exam.Option{exam.WithEvents(events), exam.WithBulkLimit(cfg.BulkConcurrency)}
	if cfg.ArchiveBasePath != "" {
		bs, err := storage.NewFSStore(cfg.ArchiveBasePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.ArchiveBasePath).Msg("archive store")
		}
		examOpts = append(examOpts, exam.WithArchive(bs))
	}
	exams := exam.NewService(exam.NewSQLStore(dbh), examOpts...)

	// --- Router ---
	handler := api.NewRouter(api.Deps{
		Auth:    auth.NewAuthService(cfg.AuthHMACSecret, cfg.TokenTTL),
		Users:   users,
		Roles:   userStore,
		Exams:   exams,
		Events:  events,
		DB:      dbh,
		Log:     log,
		Origins: cfg.CORSOrigins(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          stdlog.New(logger.L(), "", 0),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Str("mode", string(cfg.Mode)).Str("db", cfg.DBDriver).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(shutCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
}
