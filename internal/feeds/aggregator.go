package feeds

import (
	"context"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"

	"beytv/internal/domain"
)

var (
	magnetPattern = regexp.MustCompile(`magnet:\?[^"<>\s]+`)
	sizePattern   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(KB|MB|GB|TB|KiB|MiB|GiB|TiB)`)
)

type Config struct {
	Sources      map[string]string
	LimitPerFeed int
	RefreshLimit int
	CacheTTL     time.Duration
	FetchTimeout time.Duration
	Logger       *logrus.Logger
}

// Aggregator fetches the configured syndication sources and produces a
// deduplicated, time-ordered list of download candidates. A failing
// source is skipped; one bad feed never aborts the pass.
type Aggregator struct {
	cfg    Config
	client *http.Client

	mu        sync.Mutex
	cached    []domain.FeedItem
	fetchedAt time.Time
}

func NewAggregator(cfg Config) *Aggregator {
	if cfg.LimitPerFeed <= 0 {
		cfg.LimitPerFeed = 8
	}
	if cfg.RefreshLimit <= 0 {
		cfg.RefreshLimit = 10
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Aggregator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.FetchTimeout},
	}
}

// Items returns the cached aggregation when fresh, fetching otherwise.
func (a *Aggregator) Items(ctx context.Context) []domain.FeedItem {
	a.mu.Lock()
	if a.cached != nil && time.Since(a.fetchedAt) < a.cfg.CacheTTL {
		items := append([]domain.FeedItem(nil), a.cached...)
		a.mu.Unlock()
		return items
	}
	a.mu.Unlock()

	return a.fetchAll(ctx, a.cfg.LimitPerFeed)
}

// Refresh re-fetches every source regardless of cache freshness.
func (a *Aggregator) Refresh(ctx context.Context) []domain.FeedItem {
	return a.fetchAll(ctx, a.cfg.RefreshLimit)
}

// Source fetches a single named source. An unknown name yields an
// empty list.
func (a *Aggregator) Source(ctx context.Context, name string, limit int) []domain.FeedItem {
	url, ok := a.cfg.Sources[name]
	if !ok {
		return []domain.FeedItem{}
	}
	items := a.fetchSource(ctx, name, url, limit)
	return dedupe(items)
}

func (a *Aggregator) fetchAll(ctx context.Context, limitPerFeed int) []domain.FeedItem {
	names := make([]string, 0, len(a.cfg.Sources))
	for name := range a.cfg.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	var all []domain.FeedItem
	for _, name := range names {
		all = append(all, a.fetchSource(ctx, name, a.cfg.Sources[name], limitPerFeed)...)
	}

	all = dedupe(all)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Published.After(all[j].Published)
	})

	a.mu.Lock()
	a.cached = append([]domain.FeedItem(nil), all...)
	a.fetchedAt = time.Now()
	a.mu.Unlock()

	if all == nil {
		all = []domain.FeedItem{}
	}
	return all
}

func (a *Aggregator) fetchSource(ctx context.Context, name, url string, limit int) []domain.FeedItem {
	fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	defer cancel()

	parser := gofeed.NewParser()
	parser.Client = a.client

	feed, err := parser.ParseURLWithContext(url, fetchCtx)
	if err != nil {
		a.cfg.Logger.WithField("source", name).Warnf("fetch feed: %v", err)
		return nil
	}

	entries := feed.Items
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	items := make([]domain.FeedItem, 0, len(entries))
	for _, entry := range entries {
		item := domain.FeedItem{
			Title:       entry.Title,
			Description: entry.Description,
			Link:        entry.Link,
			Magnet:      extractMagnet(entry),
			Size:        extractSize(entry.Description),
			Source:      name,
		}
		if entry.PublishedParsed != nil {
			item.Published = entry.PublishedParsed.UTC()
		}
		items = append(items, item)
	}
	return items
}

// extractMagnet resolves the downloadable locator for an entry. The
// plain entry link is the last resort: not fetchable as a torrent, but
// preserved for display and manual action.
func extractMagnet(entry *gofeed.Item) string {
	if strings.HasPrefix(entry.Link, "magnet:") {
		return entry.Link
	}
	for _, enclosure := range entry.Enclosures {
		if strings.HasPrefix(enclosure.URL, "magnet:") {
			return enclosure.URL
		}
	}
	if match := magnetPattern.FindString(entry.Description); match != "" {
		return match
	}
	return entry.Link
}

func extractSize(description string) string {
	match := sizePattern.FindStringSubmatch(description)
	if match == nil {
		return domain.SizeUnknown
	}
	return match[1] + " " + match[2]
}

// dedupe keeps the first occurrence per locator. Entries without a
// magnet locator key on normalized title+source instead.
func dedupe(items []domain.FeedItem) []domain.FeedItem {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		key := item.Magnet
		if !strings.HasPrefix(key, "magnet:") {
			key = strings.ToLower(strings.TrimSpace(item.Title)) + "|" + item.Source
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
