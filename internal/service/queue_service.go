package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"beytv/internal/domain"
	"beytv/internal/repository"
)

// QueueService owns the download queue and agent presence records. It
// is the single mutator of both tables; every mutation runs under one
// short-lived lock that is never held across a network call.
type QueueService interface {
	Enqueue(ctx context.Context, title, url string) (*domain.Download, error)
	Get(ctx context.Context, id int64) (*domain.Download, error)
	List(ctx context.Context) ([]domain.Download, error)
	UpdateStatus(ctx context.Context, id int64, status domain.DownloadStatus, localPath, torrentHash, errorMessage string) error
	Checkin(ctx context.Context, client *domain.Client) ([]domain.Download, error)
	LatestClient(ctx context.Context) (*domain.Client, error)
}

type queueService struct {
	mu        sync.Mutex
	downloads repository.DownloadRepository
	clients   repository.ClientRepository
}

func NewQueueService(downloads repository.DownloadRepository, clients repository.ClientRepository) QueueService {
	return &queueService{
		downloads: downloads,
		clients:   clients,
	}
}

func (s *queueService) Enqueue(ctx context.Context, title, url string) (*domain.Download, error) {
	title = strings.TrimSpace(title)
	url = strings.TrimSpace(url)
	if title == "" || url == "" {
		return nil, fmt.Errorf("%w: title and url are required", ErrInvalidRequest)
	}

	download := &domain.Download{
		Title:  title,
		URL:    url,
		Status: domain.DownloadStatusQueued,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.downloads.Create(ctx, download); err != nil {
		return nil, err
	}
	return download, nil
}

func (s *queueService) Get(ctx context.Context, id int64) (*domain.Download, error) {
	return s.downloads.Get(ctx, id)
}

func (s *queueService) List(ctx context.Context) ([]domain.Download, error) {
	return s.downloads.List(ctx)
}

// UpdateStatus applies an agent-reported transition. Transitions are
// monotonic: a download never returns to queued, and a terminal
// download ignores late claim reports. Repeated identical updates are
// accepted so duplicate agent reports under retry stay harmless.
func (s *queueService) UpdateStatus(ctx context.Context, id int64, status domain.DownloadStatus, localPath, torrentHash, errorMessage string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, status)
	}
	if status == domain.DownloadStatusQueued {
		return fmt.Errorf("%w: download cannot return to queued", ErrInvalidTransition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.downloads.Get(ctx, id)
	if err != nil {
		return err
	}

	// a stale claim after a terminal report carries no new information
	if existing.Status.Terminal() && status == domain.DownloadStatusDownloading {
		return nil
	}

	if status != domain.DownloadStatusCompleted {
		localPath = ""
	}
	if torrentHash == "" {
		torrentHash = existing.TorrentHash
	}
	if status != domain.DownloadStatusFailed {
		errorMessage = ""
	}

	return s.downloads.UpdateStatus(ctx, id, status, localPath, torrentHash, errorMessage)
}

// Checkin records agent presence and returns every download the agent
// may still act on. Presence never gates the pending set.
func (s *queueService) Checkin(ctx context.Context, client *domain.Client) ([]domain.Download, error) {
	if client == nil || strings.TrimSpace(client.ClientID) == "" {
		return nil, fmt.Errorf("%w: client_id is required", ErrInvalidRequest)
	}
	client.LastSeen = time.Now().UTC()
	if client.Status == "" {
		client.Status = "online"
	}

	s.mu.Lock()
	err := s.clients.Upsert(ctx, client)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	pending, err := s.downloads.ListByStatuses(ctx,
		domain.DownloadStatusQueued,
		domain.DownloadStatusDownloading,
	)
	if err != nil {
		return nil, err
	}
	return pending, nil
}

func (s *queueService) LatestClient(ctx context.Context) (*domain.Client, error) {
	return s.clients.Latest(ctx)
}
