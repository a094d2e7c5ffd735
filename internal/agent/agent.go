package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"beytv/internal/backend"
	"beytv/internal/downloader"
	"beytv/internal/magnet"
)

// torrentPoll is how often a delegated torrent's progress is sampled.
const torrentPoll = 5 * time.Second

// torrentAppearWait bounds how long a freshly added torrent may stay
// invisible in the engine before the job is failed.
const torrentAppearWait = 2 * time.Minute

type Config struct {
	ClientID     string
	DownloadsDir string
	PollInterval time.Duration
	ErrorBackoff time.Duration
	Logger       *logrus.Logger
}

// Agent polls the server for pending downloads, executes them against
// the local filesystem and torrent backend, and reports outcomes. A
// failed poll is routine: the agent logs and retries on the next tick.
type Agent struct {
	cfg      Config
	server   *ServerClient
	backend  backend.Backend
	embedded *downloader.Embedded
	logger   *logrus.Logger
	http     *http.Client

	started map[int64]struct{}
}

// New builds an agent. Both torrents and embedded may be nil; the
// agent degrades to writing .magnet files for manual handling.
func New(cfg Config, server *ServerClient, torrents backend.Backend, embedded *downloader.Embedded) *Agent {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Agent{
		cfg:      cfg,
		server:   server,
		backend:  torrents,
		embedded: embedded,
		logger:   cfg.Logger,
		http:     &http.Client{},
		started:  make(map[int64]struct{}),
	}
}

// Run executes the poll loop until ctx is cancelled. A cancelled
// in-flight job is abandoned mid-transfer; the server still shows it
// downloading and a restarted agent re-claims it idempotently.
func (a *Agent) Run(ctx context.Context) error {
	for _, category := range []Category{CategoryMovies, CategoryTV} {
		if err := os.MkdirAll(filepath.Join(a.cfg.DownloadsDir, string(category)), 0o755); err != nil {
			return fmt.Errorf("create library dir: %w", err)
		}
	}

	a.logger.Infof("agent %s polling every %s, downloads in %s", a.cfg.ClientID, a.cfg.PollInterval, a.cfg.DownloadsDir)

	for {
		wait := a.cfg.PollInterval
		if err := a.cycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			a.logger.Errorf("poll cycle: %v", err)
			wait = a.cfg.ErrorBackoff
		}

		select {
		case <-ctx.Done():
			a.logger.Info("agent stopping")
			return nil
		case <-time.After(wait):
		}
	}
}

func (a *Agent) cycle(ctx context.Context) error {
	pending, err := a.server.Checkin(ctx, CheckinRequest{
		ClientID:       a.cfg.ClientID,
		DownloadsPath:  a.cfg.DownloadsDir,
		AvailableSpace: availableSpace(a.cfg.DownloadsDir),
		Status:         "online",
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		// server unreachable is not an error condition; retry next tick
		a.logger.Warnf("checkin failed: %v", err)
		return nil
	}

	if len(pending) == 0 {
		a.logger.Debug("no downloads queued")
		return nil
	}

	for _, job := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, ok := a.started[job.ID]; ok {
			continue
		}
		a.started[job.ID] = struct{}{}
		a.handleDownload(ctx, job)
	}
	return nil
}

// handleDownload runs one job to a terminal state. A failure updates
// the job and the loop moves on; it never aborts the agent.
func (a *Agent) handleDownload(ctx context.Context, job PendingDownload) {
	logger := a.logger.WithField("download_id", job.ID)
	logger.Infof("starting download: %s", job.Title)

	categoryDir := filepath.Join(a.cfg.DownloadsDir, string(Categorize(job.Title)))

	switch {
	case magnet.IsMagnet(job.URL):
		a.downloadMagnet(ctx, job, categoryDir)
	case strings.HasPrefix(job.URL, "http://"), strings.HasPrefix(job.URL, "https://"):
		a.downloadDirect(ctx, job, categoryDir)
	default:
		// rejected before claim; the job goes straight to failed
		a.report(ctx, StatusUpdate{
			DownloadID: job.ID,
			Status:     "failed",
			Error:      fmt.Sprintf("unsupported locator scheme: %s", job.URL),
		})
	}
}

func (a *Agent) downloadMagnet(ctx context.Context, job PendingDownload, categoryDir string) {
	logger := a.logger.WithField("download_id", job.ID)

	hash, err := magnet.InfoHash(job.URL)
	if err != nil {
		logger.Warnf("no info hash: %v", err)
	}

	a.report(ctx, StatusUpdate{DownloadID: job.ID, Status: "downloading", TorrentHash: hash})

	if a.backend != nil && a.backend.Connected() {
		if a.backend.Add(ctx, job.URL, categoryDir) {
			localPath, err := a.watchTorrent(ctx, hash, categoryDir)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				a.report(ctx, StatusUpdate{DownloadID: job.ID, Status: "failed", TorrentHash: hash, Error: err.Error()})
				return
			}
			logger.Infof("download completed: %s", localPath)
			a.report(ctx, StatusUpdate{DownloadID: job.ID, Status: "completed", LocalPath: localPath, TorrentHash: hash})
			return
		}
		logger.Warn("backend rejected torrent, falling back")
	}

	if a.embedded != nil {
		localPath, err := a.embedded.Download(ctx, job.URL, categoryDir)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			a.report(ctx, StatusUpdate{DownloadID: job.ID, Status: "failed", TorrentHash: hash, Error: err.Error()})
			return
		}
		logger.Infof("download completed: %s", localPath)
		a.report(ctx, StatusUpdate{DownloadID: job.ID, Status: "completed", LocalPath: localPath, TorrentHash: hash})
		return
	}

	// last resort: park the magnet for a manual torrent client
	magnetFile, err := a.writeMagnetFile(job, categoryDir)
	if err != nil {
		a.report(ctx, StatusUpdate{DownloadID: job.ID, Status: "failed", TorrentHash: hash, Error: err.Error()})
		return
	}
	logger.Infof("saved magnet file: %s", magnetFile)
	a.report(ctx, StatusUpdate{DownloadID: job.ID, Status: "completed", LocalPath: magnetFile, TorrentHash: hash})
}

// watchTorrent follows a delegated torrent until the engine reports it
// complete. The engine being temporarily unreachable pauses judgement
// rather than failing the job.
func (a *Agent) watchTorrent(ctx context.Context, hash, categoryDir string) (string, error) {
	ticker := time.NewTicker(torrentPoll)
	defer ticker.Stop()

	var (
		seen     bool
		missing  int
		appeared = time.Now()
	)

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		if !a.backend.Connected() {
			continue
		}

		var found *backend.TransferStatus
		for _, t := range a.backend.Torrents(ctx) {
			if strings.EqualFold(t.Hash, hash) {
				found = &t
				break
			}
		}

		if found == nil {
			if seen {
				missing++
				if missing >= 3 {
					return "", fmt.Errorf("torrent disappeared from backend")
				}
			} else if time.Since(appeared) > torrentAppearWait {
				return "", fmt.Errorf("torrent never appeared in backend")
			}
			continue
		}

		seen = true
		missing = 0
		if found.Progress >= 1.0 {
			return filepath.Join(categoryDir, found.Name), nil
		}
	}
}

func (a *Agent) downloadDirect(ctx context.Context, job PendingDownload, categoryDir string) {
	logger := a.logger.WithField("download_id", job.ID)

	a.report(ctx, StatusUpdate{DownloadID: job.ID, Status: "downloading"})

	name := SanitizeTitle(job.Title)
	if name == "" {
		name = fmt.Sprintf("download-%d", job.ID)
	}
	dest := filepath.Join(categoryDir, name)

	if err := a.streamToFile(ctx, job.URL, dest); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		a.report(ctx, StatusUpdate{DownloadID: job.ID, Status: "failed", Error: err.Error()})
		return
	}

	logger.Infof("download completed: %s", dest)
	a.report(ctx, StatusUpdate{DownloadID: job.ID, Status: "completed", LocalPath: dest})
}

func (a *Agent) streamToFile(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("fetch: server returned %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return fmt.Errorf("write file: %w", err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("sync file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

func (a *Agent) writeMagnetFile(job PendingDownload, categoryDir string) (string, error) {
	name := SanitizeTitle(job.Title)
	if name == "" {
		name = fmt.Sprintf("download-%d", job.ID)
	}
	dest := filepath.Join(categoryDir, name+".magnet")

	content := fmt.Sprintf("# Title: %s\n%s\n", job.Title, job.URL)
	if err := os.WriteFile(dest, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write magnet file: %w", err)
	}
	return dest, nil
}

// report sends a status update; a delivery failure is logged and left
// to the server's idempotent retry semantics.
func (a *Agent) report(ctx context.Context, update StatusUpdate) {
	if err := a.server.UpdateStatus(ctx, update); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warnf("report status %s for %d: %v", update.Status, update.DownloadID, err)
	}
}

func availableSpace(path string) int64 {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0
	}
	return int64(stat.Bavail) * int64(stat.Bsize)
}
