package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// PendingDownload is a queue entry as served by the check-in endpoint.
type PendingDownload struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

// CheckinRequest reports agent identity and local capacity.
type CheckinRequest struct {
	ClientID       string `json:"client_id"`
	DownloadsPath  string `json:"downloads_path"`
	AvailableSpace int64  `json:"available_space"`
	Status         string `json:"status"`
}

// StatusUpdate reports a download state transition back to the server.
type StatusUpdate struct {
	DownloadID  int64  `json:"download_id"`
	Status      string `json:"status"`
	LocalPath   string `json:"local_path,omitempty"`
	TorrentHash string `json:"torrent_hash,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ServerClient speaks the check-in protocol with the dashboard server.
type ServerClient struct {
	baseURL string
	http    *http.Client
}

func NewServerClient(baseURL string, timeout time.Duration) *ServerClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ServerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Checkin registers presence and retrieves the pending download set.
func (c *ServerClient) Checkin(ctx context.Context, req CheckinRequest) ([]PendingDownload, error) {
	var pending []PendingDownload
	if err := c.post(ctx, "/api/client/checkin", req, &pending); err != nil {
		return nil, fmt.Errorf("checkin: %w", err)
	}
	return pending, nil
}

// UpdateStatus reports a transition. The server treats repeats as
// idempotent, so retrying a failed report is always safe.
func (c *ServerClient) UpdateStatus(ctx context.Context, update StatusUpdate) error {
	if err := c.post(ctx, "/api/client/update-status", update, nil); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

func (c *ServerClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
