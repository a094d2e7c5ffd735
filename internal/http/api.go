package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"beytv/internal/backend"
	"beytv/internal/domain"
	"beytv/internal/feeds"
	"beytv/internal/service"
)

// Handler wires HTTP routes to the queue, feed, and backend components.
// The aggregator is optional: a handler without one serves empty feed
// responses, so a feed-less deployment runs the same code path.
type Handler struct {
	queue   service.QueueService
	feeds   *feeds.Aggregator
	backend backend.Backend
	logger  *logrus.Logger
}

func NewHandler(queue service.QueueService, aggregator *feeds.Aggregator, torrents backend.Backend, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		queue:   queue,
		feeds:   aggregator,
		backend: torrents,
		logger:  logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.GET("/feeds", h.listFeeds)
		api.GET("/feeds/:name", h.feedByName)
		api.GET("/qbt-status", h.backendStatus)
		api.GET("/qbt-torrents", h.backendTorrents)
		api.GET("/queue", h.listQueue)
		api.GET("/search", h.search)
		api.GET("/local-status", h.localStatus)
		api.POST("/add-torrent", h.addTorrent)
		api.POST("/queue-download", h.queueDownload)
		api.POST("/client/checkin", h.clientCheckin)
		api.POST("/client/update-status", h.updateStatus)
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (h *Handler) listFeeds(c *gin.Context) {
	if h.feeds == nil {
		c.JSON(http.StatusOK, []domain.FeedItem{})
		return
	}
	c.JSON(http.StatusOK, h.feeds.Items(c.Request.Context()))
}

// feedByName serves one named source; the reserved name "refresh"
// forces a full re-fetch of every source.
func (h *Handler) feedByName(c *gin.Context) {
	name := c.Param("name")

	if name == "refresh" {
		if h.feeds == nil {
			c.JSON(http.StatusOK, gin.H{"status": "success", "message": "feeds disabled", "items": []domain.FeedItem{}})
			return
		}
		items := h.feeds.Refresh(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "refreshed feeds",
			"items":   items,
		})
		return
	}

	if h.feeds == nil {
		c.JSON(http.StatusOK, []domain.FeedItem{})
		return
	}
	c.JSON(http.StatusOK, h.feeds.Source(c.Request.Context(), name, 20))
}

func (h *Handler) backendStatus(c *gin.Context) {
	if h.backend == nil {
		c.JSON(http.StatusOK, backend.AggregateStatus{Connected: false})
		return
	}
	c.JSON(http.StatusOK, h.backend.Status(c.Request.Context()))
}

func (h *Handler) backendTorrents(c *gin.Context) {
	if h.backend == nil {
		c.JSON(http.StatusOK, []backend.TransferStatus{})
		return
	}
	c.JSON(http.StatusOK, h.backend.Torrents(c.Request.Context()))
}

func (h *Handler) listQueue(c *gin.Context) {
	downloads, err := h.queue.List(c.Request.Context())
	if err != nil {
		h.logger.Errorf("list queue: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}

	resp := make([]DownloadResponse, len(downloads))
	for i := range downloads {
		resp[i] = downloadToResponse(downloads[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "missing query parameter"})
		return
	}
	if h.backend == nil {
		c.JSON(http.StatusOK, []backend.SearchResult{})
		return
	}
	c.JSON(http.StatusOK, h.backend.Search(c.Request.Context(), query))
}

type addTorrentRequest struct {
	URL   string `json:"url" binding:"required"`
	Title string `json:"title"`
}

func (h *Handler) addTorrent(c *gin.Context) {
	var req addTorrentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	if h.backend == nil || !h.backend.Add(c.Request.Context(), req.URL, "") {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "failed to add torrent"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "torrent added"})
}

type queueDownloadRequest struct {
	ID    int64  `json:"id"`
	Title string `json:"title" binding:"required"`
	URL   string `json:"url" binding:"required"`
}

func (h *Handler) queueDownload(c *gin.Context) {
	var req queueDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	download, err := h.queue.Enqueue(c.Request.Context(), req.Title, req.URL)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
			return
		}
		h.logger.Errorf("enqueue download: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "download queued",
		"id":      download.ID,
	})
}

type checkinRequest struct {
	ClientID       string `json:"client_id" binding:"required"`
	DownloadsPath  string `json:"downloads_path"`
	AvailableSpace int64  `json:"available_space"`
	Status         string `json:"status"`
}

func (h *Handler) clientCheckin(c *gin.Context) {
	var req checkinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	pending, err := h.queue.Checkin(c.Request.Context(), &domain.Client{
		ClientID:       req.ClientID,
		Status:         req.Status,
		DownloadsPath:  req.DownloadsPath,
		AvailableSpace: req.AvailableSpace,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
			return
		}
		h.logger.Errorf("client checkin: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}

	resp := make([]DownloadResponse, len(pending))
	for i := range pending {
		resp[i] = downloadToResponse(pending[i])
	}
	c.JSON(http.StatusOK, resp)
}

type updateStatusRequest struct {
	DownloadID  int64  `json:"download_id" binding:"required"`
	Status      string `json:"status" binding:"required"`
	LocalPath   string `json:"local_path"`
	TorrentHash string `json:"torrent_hash"`
	Error       string `json:"error"`
}

func (h *Handler) updateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	err := h.queue.UpdateStatus(
		c.Request.Context(),
		req.DownloadID,
		domain.DownloadStatus(req.Status),
		req.LocalPath,
		req.TorrentHash,
		req.Error,
	)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "download not found"})
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrInvalidTransition):
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
	default:
		h.logger.Errorf("update status: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
	}
}

func (h *Handler) localStatus(c *gin.Context) {
	client, err := h.queue.LatestClient(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"online": false})
			return
		}
		h.logger.Errorf("local status: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"online":          client.Online(time.Now()),
		"client_id":       client.ClientID,
		"downloads_path":  client.DownloadsPath,
		"available_space": client.AvailableSpace,
	})
}

type DownloadResponse struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	Status       string `json:"status"`
	QueuedAt     string `json:"queued_at"`
	UpdatedAt    string `json:"updated_at"`
	LocalPath    string `json:"local_path"`
	TorrentHash  string `json:"torrent_hash"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func downloadToResponse(download domain.Download) DownloadResponse {
	return DownloadResponse{
		ID:           download.ID,
		Title:        download.Title,
		URL:          download.URL,
		Status:       string(download.Status),
		QueuedAt:     download.QueuedAt.Format(time.RFC3339),
		UpdatedAt:    download.UpdatedAt.Format(time.RFC3339),
		LocalPath:    download.LocalPath,
		TorrentHash:  download.TorrentHash,
		ErrorMessage: download.ErrorMessage,
	}
}
