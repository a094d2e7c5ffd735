package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"beytv/internal/backend/qbittorrent"
	"beytv/internal/config"
	"beytv/internal/feeds"
	apphttp "beytv/internal/http"
	"beytv/internal/repository/sqlite"
	"beytv/internal/service"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	downloadRepo := sqlite.NewDownloadRepository(db)
	clientRepo := sqlite.NewClientRepository(db)

	if err := downloadRepo.Init(ctx); err != nil {
		logger.Fatalf("init download repository: %v", err)
	}
	if err := clientRepo.Init(ctx); err != nil {
		logger.Fatalf("init client repository: %v", err)
	}

	queue := service.NewQueueService(downloadRepo, clientRepo)

	qbt := qbittorrent.New(qbittorrent.Config{
		BaseURL:  cfg.QBTBaseURL(),
		Username: cfg.QBT.Username,
		Password: cfg.QBT.Password,
		Logger:   logger,
	})
	// the engine being down is fine; routes degrade instead of failing
	if err := qbt.Login(ctx); err != nil {
		logger.Warnf("qbittorrent login: %v", err)
	} else {
		logger.Infof("connected to qbittorrent at %s", cfg.QBTBaseURL())
	}

	aggregator := feeds.NewAggregator(feeds.Config{
		Sources:      cfg.Feeds.Sources,
		LimitPerFeed: cfg.Feeds.LimitPerFeed,
		RefreshLimit: cfg.Feeds.RefreshLimit,
		CacheTTL:     cfg.Feeds.CacheTTL,
		FetchTimeout: cfg.Feeds.FetchTimeout,
		Logger:       logger,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(queue, aggregator, qbt, logger)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}
