package domain

import "time"

type DownloadStatus string

const (
	DownloadStatusQueued      DownloadStatus = "queued"
	DownloadStatusDownloading DownloadStatus = "downloading"
	DownloadStatusCompleted   DownloadStatus = "completed"
	DownloadStatusFailed      DownloadStatus = "failed"
)

// Valid reports whether the status is one of the known queue states.
func (s DownloadStatus) Valid() bool {
	switch s {
	case DownloadStatusQueued, DownloadStatusDownloading, DownloadStatusCompleted, DownloadStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status ends the download lifecycle.
func (s DownloadStatus) Terminal() bool {
	return s == DownloadStatusCompleted || s == DownloadStatusFailed
}

// Download represents one queued unit of download work handed from the
// server to a polling agent. LocalPath is non-empty only once the agent
// reports the download completed.
type Download struct {
	ID           int64
	Title        string
	URL          string
	Status       DownloadStatus
	QueuedAt     time.Time
	UpdatedAt    time.Time
	LocalPath    string
	TorrentHash  string
	ErrorMessage string
}
