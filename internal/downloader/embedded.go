package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/sirupsen/logrus"
)

// Embedded downloads magnet locators with an in-process torrent engine.
// The agent reaches for it when no qBittorrent session is available.
type Embedded struct {
	statusInterval time.Duration
	trackers       []string
	logger         *logrus.Logger
}

type Config struct {
	StatusInterval time.Duration
	TrackerList    []string
	Logger         *logrus.Logger
}

func NewEmbedded(cfg Config) *Embedded {
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = 2 * time.Second
	}
	if len(cfg.TrackerList) == 0 {
		cfg.TrackerList = defaultTrackers()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Embedded{
		statusInterval: cfg.StatusInterval,
		trackers:       cfg.TrackerList,
		logger:         cfg.Logger,
	}
}

// Download fetches a magnet into dir and blocks until the transfer
// completes or ctx is cancelled. It returns the local path of the
// downloaded content. Each call runs its own short-lived engine; the
// agent processes one job at a time.
func (e *Embedded) Download(ctx context.Context, magnetURI, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	clientConfig := torrent.NewDefaultClientConfig()
	clientConfig.DataDir = dir
	clientConfig.NoUpload = false
	clientConfig.Seed = false
	clientConfig.ListenPort = 0

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return "", fmt.Errorf("create torrent client: %w", err)
	}
	defer client.Close()

	t, err := client.AddMagnet(magnetURI)
	if err != nil {
		return "", fmt.Errorf("add magnet: %w", err)
	}
	defer t.Drop()

	for _, tracker := range e.trackers {
		t.AddTrackers([][]string{{tracker}})
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-t.GotInfo():
	}

	info := t.Info()
	if info == nil {
		return "", fmt.Errorf("missing torrent info")
	}

	name := info.BestName()
	totalLength := info.TotalLength()
	logger := e.logger.WithField("torrent", name)
	logger.Infof("download started (%s)", formatBytes(totalLength))

	t.DownloadAll()

	ticker := time.NewTicker(e.statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("download cancelled")
			return "", ctx.Err()
		case <-ticker.C:
			if t.BytesMissing() == 0 {
				logger.Info("download completed")
				return filepath.Join(dir, name), nil
			}
			bytesCompleted := t.BytesCompleted()
			progress := 0
			if totalLength > 0 {
				progress = int((bytesCompleted * 100) / totalLength)
			}
			stats := t.Stats()
			logger.Debugf("progress %d%% (%s/%s), peers %d",
				progress, formatBytes(bytesCompleted), formatBytes(totalLength), stats.ActivePeers)
		}
	}
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB",
		float64(b)/float64(div),
		"KMGTPE"[exp],
	)
}

func defaultTrackers() []string {
	return []string{
		"udp://tracker.opentrackr.org:1337/announce",
		"udp://tracker.openbittorrent.com:6969/announce",
		"udp://open.stealth.si:80/announce",
		"udp://exodus.desync.com:6969/announce",
		"http://tracker.opentrackr.org:1337/announce",
		"http://tracker.openbittorrent.com:80/announce",
		"udp://tracker.torrent.eu.org:451/announce",
		"udp://tracker.moeking.me:6969/announce",
	}
}
