package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"beytv/internal/domain"
	"beytv/internal/repository"
)

type fakeDownloadRepo struct {
	nextID    int64
	downloads map[int64]*domain.Download
}

func newFakeDownloadRepo() *fakeDownloadRepo {
	return &fakeDownloadRepo{downloads: make(map[int64]*domain.Download)}
}

func (f *fakeDownloadRepo) Init(ctx context.Context) error { return nil }

func (f *fakeDownloadRepo) Create(ctx context.Context, download *domain.Download) (int64, error) {
	f.nextID++
	download.ID = f.nextID
	now := time.Now().UTC()
	download.QueuedAt = now
	download.UpdatedAt = now
	clone := *download
	f.downloads[download.ID] = &clone
	return download.ID, nil
}

func (f *fakeDownloadRepo) Get(ctx context.Context, id int64) (*domain.Download, error) {
	download, ok := f.downloads[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *download
	return &clone, nil
}

func (f *fakeDownloadRepo) List(ctx context.Context) ([]domain.Download, error) {
	var out []domain.Download
	for _, d := range f.downloads {
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeDownloadRepo) ListByStatuses(ctx context.Context, statuses ...domain.DownloadStatus) ([]domain.Download, error) {
	var out []domain.Download
	for _, d := range f.downloads {
		for _, status := range statuses {
			if d.Status == status {
				out = append(out, *d)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeDownloadRepo) UpdateStatus(ctx context.Context, id int64, status domain.DownloadStatus, localPath, torrentHash, errorMessage string) error {
	download, ok := f.downloads[id]
	if !ok {
		return repository.ErrNotFound
	}
	download.Status = status
	download.LocalPath = localPath
	download.TorrentHash = torrentHash
	download.ErrorMessage = errorMessage
	download.UpdatedAt = time.Now().UTC()
	return nil
}

type fakeClientRepo struct {
	clients map[string]*domain.Client
}

func newFakeClientRepo() *fakeClientRepo {
	return &fakeClientRepo{clients: make(map[string]*domain.Client)}
}

func (f *fakeClientRepo) Init(ctx context.Context) error { return nil }

func (f *fakeClientRepo) Upsert(ctx context.Context, client *domain.Client) error {
	clone := *client
	f.clients[client.ClientID] = &clone
	return nil
}

func (f *fakeClientRepo) Get(ctx context.Context, clientID string) (*domain.Client, error) {
	client, ok := f.clients[clientID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *client
	return &clone, nil
}

func (f *fakeClientRepo) Latest(ctx context.Context) (*domain.Client, error) {
	var latest *domain.Client
	for _, client := range f.clients {
		if latest == nil || client.LastSeen.After(latest.LastSeen) {
			latest = client
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	clone := *latest
	return &clone, nil
}

func newTestService() (QueueService, *fakeDownloadRepo, *fakeClientRepo) {
	downloads := newFakeDownloadRepo()
	clients := newFakeClientRepo()
	return NewQueueService(downloads, clients), downloads, clients
}

func TestEnqueueValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Enqueue(ctx, "", "magnet:?xt=urn:btih:abc"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("empty title: expected ErrInvalidRequest, got %v", err)
	}
	if _, err := svc.Enqueue(ctx, "Movie", "   "); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("blank url: expected ErrInvalidRequest, got %v", err)
	}

	download, err := svc.Enqueue(ctx, "  Movie 2024  ", "magnet:?xt=urn:btih:abc")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if download.Title != "Movie 2024" {
		t.Errorf("expected trimmed title, got %q", download.Title)
	}
	if download.Status != domain.DownloadStatusQueued {
		t.Errorf("expected queued, got %s", download.Status)
	}
}

func TestUpdateStatusRejectsQueuedTarget(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	download, err := svc.Enqueue(ctx, "Movie", "magnet:?xt=urn:btih:abc")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	err = svc.UpdateStatus(ctx, download.ID, domain.DownloadStatusQueued, "", "", "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	download, err := svc.Enqueue(ctx, "Movie", "magnet:?xt=urn:btih:abc")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	err = svc.UpdateStatus(ctx, download.ID, domain.DownloadStatus("paused"), "", "", "")
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestUpdateStatusNotFound(t *testing.T) {
	svc, _, _ := newTestService()

	err := svc.UpdateStatus(context.Background(), 99, domain.DownloadStatusDownloading, "", "", "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateStatusLateClaimAfterTerminal(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	download, err := svc.Enqueue(ctx, "Movie", "magnet:?xt=urn:btih:abc")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := svc.UpdateStatus(ctx, download.ID, domain.DownloadStatusCompleted, "/data/movies/movie.mkv", "abc", ""); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// duplicated claim report after completion must be a silent no-op
	if err := svc.UpdateStatus(ctx, download.ID, domain.DownloadStatusDownloading, "", "abc", ""); err != nil {
		t.Fatalf("late claim: %v", err)
	}

	got, _ := repo.Get(ctx, download.ID)
	if got.Status != domain.DownloadStatusCompleted {
		t.Errorf("expected completed to stick, got %s", got.Status)
	}
	if got.LocalPath != "/data/movies/movie.mkv" {
		t.Errorf("expected local path preserved, got %q", got.LocalPath)
	}
}

func TestUpdateStatusFieldDiscipline(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	download, err := svc.Enqueue(ctx, "Movie", "magnet:?xt=urn:btih:abc")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// local_path reported alongside a non-terminal claim is dropped
	if err := svc.UpdateStatus(ctx, download.ID, domain.DownloadStatusDownloading, "/partial", "abc", ""); err != nil {
		t.Fatalf("claim: %v", err)
	}
	got, _ := repo.Get(ctx, download.ID)
	if got.LocalPath != "" {
		t.Errorf("expected empty local path while downloading, got %q", got.LocalPath)
	}
	if got.TorrentHash != "abc" {
		t.Errorf("expected torrent hash abc, got %q", got.TorrentHash)
	}

	// an update omitting the hash keeps the stored one
	if err := svc.UpdateStatus(ctx, download.ID, domain.DownloadStatusFailed, "", "", "no seeders"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	got, _ = repo.Get(ctx, download.ID)
	if got.TorrentHash != "abc" {
		t.Errorf("expected preserved hash, got %q", got.TorrentHash)
	}
	if got.ErrorMessage != "no seeders" {
		t.Errorf("expected error message, got %q", got.ErrorMessage)
	}

	// terminal overwrite is allowed; last report wins and clears the error
	if err := svc.UpdateStatus(ctx, download.ID, domain.DownloadStatusCompleted, "/data/movies/movie.mkv", "", ""); err != nil {
		t.Fatalf("complete after failed: %v", err)
	}
	got, _ = repo.Get(ctx, download.ID)
	if got.Status != domain.DownloadStatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if got.ErrorMessage != "" {
		t.Errorf("expected cleared error message, got %q", got.ErrorMessage)
	}
}

func TestCheckinReturnsActionableDownloads(t *testing.T) {
	svc, _, clients := newTestService()
	ctx := context.Background()

	queued, _ := svc.Enqueue(ctx, "Queued Movie", "magnet:?xt=urn:btih:aaa")
	claimed, _ := svc.Enqueue(ctx, "Claimed Movie", "magnet:?xt=urn:btih:bbb")
	done, _ := svc.Enqueue(ctx, "Done Movie", "magnet:?xt=urn:btih:ccc")
	if err := svc.UpdateStatus(ctx, claimed.ID, domain.DownloadStatusDownloading, "", "", ""); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := svc.UpdateStatus(ctx, done.ID, domain.DownloadStatusCompleted, "/done", "", ""); err != nil {
		t.Fatalf("complete: %v", err)
	}

	pending, err := svc.Checkin(ctx, &domain.Client{ClientID: "den-mini", DownloadsPath: "/mnt/media"})
	if err != nil {
		t.Fatalf("checkin: %v", err)
	}

	ids := make(map[int64]bool, len(pending))
	for _, d := range pending {
		ids[d.ID] = true
		if d.Status.Terminal() {
			t.Errorf("terminal download %d returned from checkin", d.ID)
		}
	}
	if !ids[queued.ID] || !ids[claimed.ID] {
		t.Errorf("expected queued and downloading entries, got %v", ids)
	}
	if ids[done.ID] {
		t.Error("completed download returned from checkin")
	}

	stored, err := clients.Get(ctx, "den-mini")
	if err != nil {
		t.Fatalf("client not recorded: %v", err)
	}
	if stored.LastSeen.IsZero() {
		t.Error("expected last_seen to be set")
	}
	if stored.Status != "online" {
		t.Errorf("expected default status online, got %q", stored.Status)
	}
}

func TestCheckinRequiresClientID(t *testing.T) {
	svc, _, _ := newTestService()

	if _, err := svc.Checkin(context.Background(), &domain.Client{ClientID: "  "}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := svc.Checkin(context.Background(), nil); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for nil client, got %v", err)
	}
}
