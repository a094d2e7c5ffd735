package qbittorrent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"beytv/internal/backend"
)

// searchWait bounds how long a search blocks before returning whatever
// results the engine has collected so far.
const searchWait = 2 * time.Second

type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
	Logger   *logrus.Logger
}

// Client drives the qBittorrent Web API v2. A client that failed to
// authenticate keeps serving calls in degraded form so the process
// stays responsive while the engine is down.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *logrus.Logger

	mu       sync.Mutex
	loggedIn bool
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	jar, _ := cookiejar.New(nil)
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		logger: cfg.Logger,
	}
}

// Login authenticates against the Web UI. The session cookie lives in
// the client's jar; failure leaves the client in degraded mode.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{
		"username": {c.cfg.Username},
		"password": {c.cfg.Password},
	}

	body, status, err := c.postForm(ctx, "/api/v2/auth/login", form)
	if err != nil {
		c.setLoggedIn(false)
		return fmt.Errorf("qbittorrent login: %w", err)
	}
	if status != http.StatusOK || strings.TrimSpace(string(body)) != "Ok." {
		c.setLoggedIn(false)
		return fmt.Errorf("qbittorrent login rejected: %s", strings.TrimSpace(string(body)))
	}

	c.setLoggedIn(true)
	c.logger.Infof("connected to qBittorrent at %s", c.cfg.BaseURL)
	return nil
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

func (c *Client) setLoggedIn(v bool) {
	c.mu.Lock()
	c.loggedIn = v
	c.mu.Unlock()
}

// Search submits a plugin search, waits a bounded interval, and
// returns whatever results are available. Empty on timeout or error.
func (c *Client) Search(ctx context.Context, query string) []backend.SearchResult {
	if !c.Connected() {
		return []backend.SearchResult{}
	}

	form := url.Values{
		"pattern":  {query},
		"plugins":  {"all"},
		"category": {"all"},
	}
	body, status, err := c.postForm(ctx, "/api/v2/search/start", form)
	if err != nil || status != http.StatusOK {
		c.logger.Warnf("search start: %v (status %d)", err, status)
		return []backend.SearchResult{}
	}

	var started struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(body, &started); err != nil || started.ID == 0 {
		return []backend.SearchResult{}
	}

	select {
	case <-ctx.Done():
		return []backend.SearchResult{}
	case <-time.After(searchWait):
	}

	body, status, err = c.get(ctx, "/api/v2/search/results?id="+strconv.Itoa(started.ID))
	if err != nil || status != http.StatusOK {
		return []backend.SearchResult{}
	}

	var results struct {
		Results []backend.SearchResult `json:"results"`
	}
	if err := json.Unmarshal(body, &results); err != nil {
		return []backend.SearchResult{}
	}
	if results.Results == nil {
		return []backend.SearchResult{}
	}
	return results.Results
}

// Add hands a locator to the engine. Adding a locator the engine
// already tracks reports success, so callers may retry freely.
func (c *Client) Add(ctx context.Context, addURL, savePath string) bool {
	if !c.Connected() {
		return false
	}

	form := url.Values{"urls": {addURL}}
	if savePath != "" {
		form.Set("savepath", savePath)
		form.Set("category", "plex")
	}

	_, status, err := c.postForm(ctx, "/api/v2/torrents/add", form)
	if err != nil {
		c.logger.Warnf("add torrent: %v", err)
		return false
	}
	return status == http.StatusOK
}

// Torrents lists the engine's transfers. Empty on any failure.
func (c *Client) Torrents(ctx context.Context) []backend.TransferStatus {
	if !c.Connected() {
		return []backend.TransferStatus{}
	}

	body, status, err := c.get(ctx, "/api/v2/torrents/info")
	if err != nil || status != http.StatusOK {
		return []backend.TransferStatus{}
	}

	var torrents []backend.TransferStatus
	if err := json.Unmarshal(body, &torrents); err != nil {
		return []backend.TransferStatus{}
	}
	if torrents == nil {
		torrents = []backend.TransferStatus{}
	}
	return torrents
}

// Status aggregates session health and transfer rates.
func (c *Client) Status(ctx context.Context) backend.AggregateStatus {
	if !c.Connected() {
		return backend.AggregateStatus{Connected: false}
	}

	body, status, err := c.get(ctx, "/api/v2/transfer/info")
	if err != nil || status != http.StatusOK {
		return backend.AggregateStatus{Connected: false}
	}

	var info struct {
		DownloadSpeed int64 `json:"dl_info_speed"`
		UploadSpeed   int64 `json:"up_info_speed"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return backend.AggregateStatus{Connected: false}
	}

	return backend.AggregateStatus{
		Connected:      true,
		ActiveTorrents: len(c.Torrents(ctx)),
		DownloadSpeed:  info.DownloadSpeed,
		UploadSpeed:    info.UploadSpeed,
	}
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

var _ backend.Backend = (*Client)(nil)
