package domain

import "time"

// SizeUnknown is the sentinel used when no size token could be
// extracted from a feed entry description.
const SizeUnknown = "Unknown"

// FeedItem is a download candidate extracted from a syndication feed.
// Items are transient: they live only for the duration of an
// aggregation pass and are never persisted.
type FeedItem struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Link        string    `json:"link"`
	Magnet      string    `json:"magnet"`
	Size        string    `json:"size"`
	Published   time.Time `json:"published"`
	Source      string    `json:"source"`
}
