package repository

import (
	"context"

	"beytv/internal/domain"
)

// DownloadRepository exposes persistence operations for the download
// queue. Every write is durably committed before the call returns.
type DownloadRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, download *domain.Download) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Download, error)
	List(ctx context.Context) ([]domain.Download, error)
	ListByStatuses(ctx context.Context, statuses ...domain.DownloadStatus) ([]domain.Download, error)
	UpdateStatus(ctx context.Context, id int64, status domain.DownloadStatus, localPath, torrentHash, errorMessage string) error
}

// ClientRepository tracks agent presence, one row per client identity.
type ClientRepository interface {
	Init(ctx context.Context) error
	Upsert(ctx context.Context, client *domain.Client) error
	Get(ctx context.Context, clientID string) (*domain.Client, error)
	Latest(ctx context.Context) (*domain.Client, error)
}
