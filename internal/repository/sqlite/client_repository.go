package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"beytv/internal/domain"
	"beytv/internal/repository"
)

const createClientsTable = `
CREATE TABLE IF NOT EXISTS clients (
	client_id TEXT PRIMARY KEY,
	last_seen DATETIME NOT NULL,
	status TEXT NOT NULL DEFAULT '',
	downloads_path TEXT NOT NULL DEFAULT '',
	available_space INTEGER NOT NULL DEFAULT 0
);
`

type ClientRepository struct {
	db *sql.DB
}

func NewClientRepository(db *sql.DB) repository.ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createClientsTable); err != nil {
		return fmt.Errorf("create clients table: %w", err)
	}
	return nil
}

func (r *ClientRepository) Upsert(ctx context.Context, client *domain.Client) error {
	if client.LastSeen.IsZero() {
		client.LastSeen = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT OR REPLACE INTO clients (client_id, last_seen, status, downloads_path, available_space)
VALUES (?, ?, ?, ?, ?)`,
		client.ClientID,
		client.LastSeen.UTC(),
		client.Status,
		client.DownloadsPath,
		client.AvailableSpace,
	)
	if err != nil {
		return fmt.Errorf("upsert client: %w", err)
	}
	return nil
}

func (r *ClientRepository) Get(ctx context.Context, clientID string) (*domain.Client, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT client_id, last_seen, status, downloads_path, available_space
FROM clients
WHERE client_id=?`,
		clientID,
	)
	return scanClient(row)
}

func (r *ClientRepository) Latest(ctx context.Context) (*domain.Client, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT client_id, last_seen, status, downloads_path, available_space
FROM clients
ORDER BY last_seen DESC
LIMIT 1`)
	return scanClient(row)
}

func scanClient(row interface {
	Scan(dest ...any) error
}) (*domain.Client, error) {
	var (
		client   domain.Client
		lastSeen time.Time
	)
	if err := row.Scan(
		&client.ClientID,
		&lastSeen,
		&client.Status,
		&client.DownloadsPath,
		&client.AvailableSpace,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan client: %w", err)
	}
	client.LastSeen = lastSeen.UTC()
	return &client, nil
}
