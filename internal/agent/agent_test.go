package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

// fakeCoordinator implements the server side of the check-in protocol.
type fakeCoordinator struct {
	mu       sync.Mutex
	pending  []PendingDownload
	checkins []CheckinRequest
	updates  []StatusUpdate
}

func (f *fakeCoordinator) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/client/checkin", func(w http.ResponseWriter, r *http.Request) {
		var req CheckinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.checkins = append(f.checkins, req)
		pending := append([]PendingDownload(nil), f.pending...)
		f.mu.Unlock()
		json.NewEncoder(w).Encode(pending)
	})
	mux.HandleFunc("/api/client/update-status", func(w http.ResponseWriter, r *http.Request) {
		var update StatusUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.updates = append(f.updates, update)
		f.mu.Unlock()
		fmt.Fprint(w, `{"status":"success"}`)
	})
	return mux
}

func (f *fakeCoordinator) recorded() ([]CheckinRequest, []StatusUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CheckinRequest(nil), f.checkins...), append([]StatusUpdate(nil), f.updates...)
}

func newTestAgent(t *testing.T, coordinator *fakeCoordinator) (*Agent, string) {
	t.Helper()
	srv := httptest.NewServer(coordinator.handler())
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	dir := t.TempDir()
	a := New(Config{
		ClientID:     "test-agent",
		DownloadsDir: dir,
		Logger:       logger,
	}, NewServerClient(srv.URL, 0), nil, nil)

	for _, category := range []Category{CategoryMovies, CategoryTV} {
		if err := os.MkdirAll(filepath.Join(dir, string(category)), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	return a, dir
}

func TestCycleReportsPresence(t *testing.T) {
	coordinator := &fakeCoordinator{}
	a, dir := newTestAgent(t, coordinator)

	if err := a.cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	checkins, _ := coordinator.recorded()
	if len(checkins) != 1 {
		t.Fatalf("expected 1 checkin, got %d", len(checkins))
	}
	if checkins[0].ClientID != "test-agent" {
		t.Errorf("client id: got %q", checkins[0].ClientID)
	}
	if checkins[0].DownloadsPath != dir {
		t.Errorf("downloads path: got %q", checkins[0].DownloadsPath)
	}
	if checkins[0].Status != "online" {
		t.Errorf("status: got %q", checkins[0].Status)
	}
}

func TestCycleUnreachableServerIsNotFatal(t *testing.T) {
	coordinator := &fakeCoordinator{}
	a, _ := newTestAgent(t, coordinator)
	a.server = NewServerClient("http://127.0.0.1:1", 0)

	if err := a.cycle(context.Background()); err != nil {
		t.Fatalf("expected nil on unreachable server, got %v", err)
	}
}

func TestMagnetFileFallback(t *testing.T) {
	magnetURI := "magnet:?xt=urn:btih:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa&dn=Big+Movie"
	coordinator := &fakeCoordinator{
		pending: []PendingDownload{{ID: 7, Title: "Big Movie 2024", URL: magnetURI, Status: "queued"}},
	}
	a, dir := newTestAgent(t, coordinator)

	if err := a.cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	_, updates := coordinator.recorded()
	if len(updates) != 2 {
		t.Fatalf("expected claim and completion, got %+v", updates)
	}
	if updates[0].Status != "downloading" {
		t.Errorf("first update: expected downloading, got %s", updates[0].Status)
	}
	if updates[0].TorrentHash != strings.Repeat("a", 40) {
		t.Errorf("expected extracted hash, got %q", updates[0].TorrentHash)
	}
	if updates[1].Status != "completed" {
		t.Fatalf("second update: expected completed, got %s", updates[1].Status)
	}

	wantPath := filepath.Join(dir, "movies", "Big Movie 2024.magnet")
	if updates[1].LocalPath != wantPath {
		t.Errorf("local path: expected %q, got %q", wantPath, updates[1].LocalPath)
	}
	data, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("read magnet file: %v", err)
	}
	if !strings.Contains(string(data), magnetURI) {
		t.Errorf("magnet file missing locator: %s", data)
	}
}

func TestDirectDownload(t *testing.T) {
	payload := "fake video bytes"
	fileServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, payload)
	}))
	t.Cleanup(fileServer.Close)

	coordinator := &fakeCoordinator{
		pending: []PendingDownload{{ID: 3, Title: "Show S02E04 720p", URL: fileServer.URL, Status: "queued"}},
	}
	a, dir := newTestAgent(t, coordinator)

	if err := a.cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	_, updates := coordinator.recorded()
	if len(updates) != 2 || updates[1].Status != "completed" {
		t.Fatalf("expected claim then completion, got %+v", updates)
	}

	wantPath := filepath.Join(dir, "tv", "Show S02E04 720p")
	if updates[1].LocalPath != wantPath {
		t.Errorf("local path: expected %q, got %q", wantPath, updates[1].LocalPath)
	}
	data, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if string(data) != payload {
		t.Errorf("downloaded content mismatch: %q", data)
	}
}

func TestDirectDownloadServerError(t *testing.T) {
	fileServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(fileServer.Close)

	coordinator := &fakeCoordinator{
		pending: []PendingDownload{{ID: 4, Title: "Missing Movie", URL: fileServer.URL, Status: "queued"}},
	}
	a, _ := newTestAgent(t, coordinator)

	if err := a.cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	_, updates := coordinator.recorded()
	if len(updates) != 2 || updates[1].Status != "failed" {
		t.Fatalf("expected claim then failure, got %+v", updates)
	}
	if updates[1].Error == "" {
		t.Error("expected failure reason")
	}
}

func TestUnsupportedSchemeFailsWithoutClaim(t *testing.T) {
	coordinator := &fakeCoordinator{
		pending: []PendingDownload{{ID: 5, Title: "Weird", URL: "ftp://example.com/file", Status: "queued"}},
	}
	a, _ := newTestAgent(t, coordinator)

	if err := a.cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	_, updates := coordinator.recorded()
	if len(updates) != 1 {
		t.Fatalf("expected single failure report, got %+v", updates)
	}
	if updates[0].Status != "failed" {
		t.Errorf("expected failed, got %s", updates[0].Status)
	}
	if !strings.Contains(updates[0].Error, "unsupported") {
		t.Errorf("unexpected reason %q", updates[0].Error)
	}
}

func TestStartedJobsAreNotRepeated(t *testing.T) {
	coordinator := &fakeCoordinator{
		pending: []PendingDownload{{ID: 6, Title: "Repeat", URL: "ftp://nope", Status: "queued"}},
	}
	a, _ := newTestAgent(t, coordinator)
	ctx := context.Background()

	if err := a.cycle(ctx); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if err := a.cycle(ctx); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	_, updates := coordinator.recorded()
	if len(updates) != 1 {
		t.Fatalf("expected the job handled once, got %d updates", len(updates))
	}
}
