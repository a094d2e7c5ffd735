package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"beytv/internal/agent"
	"beytv/internal/backend/qbittorrent"
	"beytv/internal/config"
	"beytv/internal/downloader"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	clientID := cfg.Agent.ClientID
	if clientID == "" {
		hostname, _ := os.Hostname()
		if hostname == "" {
			hostname = "agent"
		}
		clientID = hostname + "-" + uuid.NewString()[:8]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	qbt := qbittorrent.New(qbittorrent.Config{
		BaseURL:  cfg.QBTBaseURL(),
		Username: cfg.QBT.Username,
		Password: cfg.QBT.Password,
		Logger:   logger,
	})
	if err := qbt.Login(ctx); err != nil {
		logger.Warnf("qbittorrent login: %v", err)
	} else {
		logger.Infof("connected to qbittorrent at %s", cfg.QBTBaseURL())
	}

	var embedded *downloader.Embedded
	if cfg.Agent.EmbeddedFallback {
		embedded = downloader.NewEmbedded(downloader.Config{Logger: logger})
	}

	server := agent.NewServerClient(cfg.Agent.ServerURL, 0)

	a := agent.New(agent.Config{
		ClientID:     clientID,
		DownloadsDir: cfg.Agent.DownloadsDir,
		PollInterval: cfg.Agent.PollInterval,
		ErrorBackoff: cfg.Agent.ErrorBackoff,
		Logger:       logger,
	}, server, qbt, embedded)

	if err := a.Run(ctx); err != nil {
		logger.Fatalf("agent: %v", err)
	}
	logger.Info("bye")
}
