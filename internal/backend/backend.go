package backend

import "context"

// TransferStatus describes one active transfer in the torrent engine.
type TransferStatus struct {
	Name          string  `json:"name"`
	Hash          string  `json:"hash"`
	Progress      float64 `json:"progress"`
	Size          int64   `json:"size"`
	State         string  `json:"state"`
	DownloadSpeed int64   `json:"dlspeed"`
	UploadSpeed   int64   `json:"upspeed"`
}

// SearchResult is a single hit from the engine's search plugins.
type SearchResult struct {
	FileName  string `json:"fileName"`
	FileURL   string `json:"fileUrl"`
	FileSize  int64  `json:"fileSize"`
	Seeders   int    `json:"nbSeeders"`
	Leechers  int    `json:"nbLeechers"`
	SiteURL   string `json:"siteUrl"`
	DescrLink string `json:"descrLink"`
}

// AggregateStatus summarizes the engine session. Connected is false
// whenever there is no authenticated session, which is distinct from
// an authenticated session with zero transfers.
type AggregateStatus struct {
	Connected      bool  `json:"connected"`
	ActiveTorrents int   `json:"active_torrents"`
	DownloadSpeed  int64 `json:"download_speed"`
	UploadSpeed    int64 `json:"upload_speed"`
}

// Backend is the uniform surface over a torrent engine. Calls degrade
// to empty/false/disconnected results on any transport or protocol
// error; they never propagate a failure to the caller.
type Backend interface {
	Login(ctx context.Context) error
	Connected() bool
	Search(ctx context.Context, query string) []SearchResult
	Add(ctx context.Context, url, savePath string) bool
	Torrents(ctx context.Context) []TransferStatus
	Status(ctx context.Context) AggregateStatus
}
