package content

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"
)

const googleNewsSearchURL = "https://news.google.com/rss/search"

// GoogleNews searches the Google News RSS endpoint for the Indian edition.
type GoogleNews struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

type GoogleNewsOption func(*GoogleNews)

func WithBaseURL(u string) GoogleNewsOption {
	return func(g *GoogleNews) { g.baseURL = u }
}

func WithHTTPClient(c *http.Client) GoogleNewsOption {
	return func(g *GoogleNews) { g.client = c }
}

func WithRateLimit(l *rate.Limiter) GoogleNewsOption {
	return func(g *GoogleNews) { g.limiter = l }
}

func NewGoogleNews(opts ...GoogleNewsOption) *GoogleNews {
	g := &GoogleNews{
		baseURL: googleNewsSearchURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GoogleNews) Search(ctx context.Context, query string) ([]RawItem, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("hl", "en-IN")
	q.Set("gl", "IN")
	q.Set("ceid", "IN:en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; aegis/1.0)")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := make([]RawItem, 0, len(feed.Items))
	for _, fi := range feed.Items {
		items = append(items, convertFeedItem(fi))
	}
	return items, nil
}

func convertFeedItem(fi *gofeed.Item) RawItem {
	var published time.Time
	if fi.PublishedParsed != nil {
		published = *fi.PublishedParsed
	} else if fi.UpdatedParsed != nil {
		published = *fi.UpdatedParsed
	}

	headline, source := splitPublisher(fi.Title)
	if source == "" {
		if u, err := url.Parse(fi.Link); err == nil {
			source = strings.TrimPrefix(u.Hostname(), "www.")
		}
	}
	return RawItem{
		Headline:    headline,
		Link:        fi.Link,
		Source:      source,
		PublishedAt: published.UTC(),
	}
}

// splitPublisher separates Google News' "Headline - Publisher" titles.
func splitPublisher(title string) (string, string) {
	title = strings.TrimSpace(title)
	idx := strings.LastIndex(title, " - ")
	if idx <= 0 {
		return title, ""
	}
	return strings.TrimSpace(title[:idx]), strings.TrimSpace(title[idx+3:])
}
