package domain

import "time"

// PresenceWindow is how recently a client must have checked in to be
// considered online. Presence is advisory: it never gates job hand-out.
const PresenceWindow = 60 * time.Second

// Client records the most recent check-in from an agent identity.
type Client struct {
	ClientID       string
	LastSeen       time.Time
	Status         string
	DownloadsPath  string
	AvailableSpace int64
}

// Online reports whether the client checked in within the presence window.
func (c Client) Online(now time.Time) bool {
	return !c.LastSeen.IsZero() && now.Sub(c.LastSeen) < PresenceWindow
}
