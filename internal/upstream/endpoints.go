package upstream

import (
	"context"
	"fmt"
	"time"
)

// SiteSummary is the dashboard overview returned by the upstream
// service. Optional wire fields are explicit pointers rather than a raw
// map, so the wire-to-domain transform lives in one place.
type SiteSummary struct {
	Visitors    int     `json:"visitors"`
	Signups     int     `json:"signups"`
	Articles    int     `json:"articles"`
	TopReferrer *string `json:"top_referrer,omitempty"`
}

// Article is a published content entry as exposed to the dashboard.
type Article struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Excerpt     *string    `json:"excerpt,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
}

// SiteSummary fetches the dashboard overview.
func (c *Client) SiteSummary(ctx context.Context, bearer string) (*SiteSummary, error) {
	var summary SiteSummary
	if err := c.Get(ctx, "/v1/summary", bearer, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Articles fetches the most recent published articles.
func (c *Client) Articles(ctx context.Context, bearer string, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = 20
	}
	var articles []Article
	path := fmt.Sprintf("/v1/articles?limit=%d", limit)
	if err := c.Get(ctx, path, bearer, &articles); err != nil {
		return nil, err
	}
	return articles, nil
}
