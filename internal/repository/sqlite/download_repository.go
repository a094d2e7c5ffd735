package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"beytv/internal/domain"
	"beytv/internal/repository"
)

const createDownloadsTable = `
CREATE TABLE IF NOT EXISTS downloads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	url TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'queued',
	queued_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	local_path TEXT NOT NULL DEFAULT '',
	torrent_hash TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT ''
);
`

type DownloadRepository struct {
	db *sql.DB
}

func NewDownloadRepository(db *sql.DB) repository.DownloadRepository {
	return &DownloadRepository{db: db}
}

func (r *DownloadRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createDownloadsTable); err != nil {
		return fmt.Errorf("create downloads table: %w", err)
	}
	return nil
}

func (r *DownloadRepository) Create(ctx context.Context, download *domain.Download) (int64, error) {
	now := time.Now().UTC()
	download.QueuedAt = now
	download.UpdatedAt = now
	if download.Status == "" {
		download.Status = domain.DownloadStatusQueued
	}

	res, err := r.db.ExecContext(ctx, `
INSERT INTO downloads (title, url, status, queued_at, updated_at, local_path, torrent_hash, error_message)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		download.Title,
		download.URL,
		string(download.Status),
		download.QueuedAt,
		download.UpdatedAt,
		download.LocalPath,
		download.TorrentHash,
		download.ErrorMessage,
	)
	if err != nil {
		return 0, fmt.Errorf("insert download: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	download.ID = id
	return id, nil
}

func (r *DownloadRepository) Get(ctx context.Context, id int64) (*domain.Download, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, title, url, status, queued_at, updated_at, local_path, torrent_hash, error_message
FROM downloads
WHERE id=?`,
		id,
	)
	return scanDownload(row)
}

func (r *DownloadRepository) List(ctx context.Context) ([]domain.Download, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, title, url, status, queued_at, updated_at, local_path, torrent_hash, error_message
FROM downloads
ORDER BY queued_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query downloads: %w", err)
	}
	defer rows.Close()

	var downloads []domain.Download
	for rows.Next() {
		download, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		downloads = append(downloads, *download)
	}

	return downloads, rows.Err()
}

func (r *DownloadRepository) ListByStatuses(ctx context.Context, statuses ...domain.DownloadStatus) ([]domain.Download, error) {
	if len(statuses) == 0 {
		return []domain.Download{}, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		placeholders[i] = "?"
		args[i] = string(status)
	}

	query := fmt.Sprintf(`
SELECT id, title, url, status, queued_at, updated_at, local_path, torrent_hash, error_message
FROM downloads
WHERE status IN (%s)
ORDER BY queued_at DESC, id DESC`, strings.Join(placeholders, ","))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query downloads by status: %w", err)
	}
	defer rows.Close()

	var downloads []domain.Download
	for rows.Next() {
		download, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		downloads = append(downloads, *download)
	}

	return downloads, rows.Err()
}

func (r *DownloadRepository) UpdateStatus(ctx context.Context, id int64, status domain.DownloadStatus, localPath, torrentHash, errorMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE downloads
SET status=?, local_path=?, torrent_hash=?, error_message=?, updated_at=?
WHERE id=?`,
		string(status),
		localPath,
		torrentHash,
		errorMessage,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update download status: %w", err)
	}

	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("download update rows affected: %w", err)
	}
	if aff == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanDownload(scanner interface {
	Scan(dest ...any) error
}) (*domain.Download, error) {
	var (
		download  domain.Download
		status    string
		queuedAt  time.Time
		updatedAt time.Time
	)

	if err := scanner.Scan(
		&download.ID,
		&download.Title,
		&download.URL,
		&status,
		&queuedAt,
		&updatedAt,
		&download.LocalPath,
		&download.TorrentHash,
		&download.ErrorMessage,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan download: %w", err)
	}

	download.Status = domain.DownloadStatus(status)
	download.QueuedAt = queuedAt.UTC()
	download.UpdatedAt = updatedAt.UTC()
	return &download, nil
}
