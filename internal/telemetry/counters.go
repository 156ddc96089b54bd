package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"telemetry-client/internal/models"
)

const readRetryDelay = 200 * time.Millisecond

// RecordView records a page view for url. It returns false without a
// network call when no credentials are persisted.
func (c *Client) RecordView(ctx context.Context, pageURL string) (bool, error) {
	return c.recordEvent(ctx, "record view", pathView, pageURL)
}

// RecordLike records a like for url. It returns false without a network
// call when no credentials are persisted.
func (c *Client) RecordLike(ctx context.Context, pageURL string) (bool, error) {
	return c.recordEvent(ctx, "record like", pathLike, pageURL)
}

func (c *Client) recordEvent(ctx context.Context, op, path, pageURL string) (bool, error) {
	pageURL = CanonicalURL(pageURL)
	if pageURL == "" {
		return false, ErrEmptyURL
	}

	ident, err := c.Identity()
	if err != nil {
		return false, err
	}
	if !ident.Valid() {
		c.logger.Debug().Str("op", op).Msg("Skipping write without credentials")
		return false, nil
	}

	status, _, err := c.do(ctx, http.MethodPost, path, nil, models.EventRequest{
		ClientID:    ident.ID,
		ClientToken: ident.Token,
		URL:         pageURL,
	})
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, &ProtocolError{Op: op, StatusCode: status}
	}
	return true, nil
}

// GetViewCount returns the view count for url; unknown URLs count zero
func (c *Client) GetViewCount(ctx context.Context, pageURL string) (models.URLCount, error) {
	return c.getCount(ctx, "view count", pathViewCount, pageURL)
}

// GetLikeCount returns the like count for url; unknown URLs count zero
func (c *Client) GetLikeCount(ctx context.Context, pageURL string) (models.URLCount, error) {
	return c.getCount(ctx, "like count", pathLikeCount, pageURL)
}

func (c *Client) getCount(ctx context.Context, op, path, pageURL string) (models.URLCount, error) {
	pageURL = CanonicalURL(pageURL)
	if pageURL == "" {
		return models.URLCount{}, ErrEmptyURL
	}

	return retry.DoWithData(func() (models.URLCount, error) {
		status, data, err := c.do(ctx, http.MethodGet, path, url.Values{"url": {pageURL}}, nil)
		if err != nil {
			return models.URLCount{}, err
		}

		switch status {
		case http.StatusOK:
			var out models.URLCount
			if err := decode(op, data, &out); err != nil {
				return models.URLCount{}, retry.Unrecoverable(err)
			}
			return out, nil
		case http.StatusNotFound:
			return models.URLCount{URL: pageURL, Count: 0}, nil
		default:
			return models.URLCount{}, &ProtocolError{Op: op, StatusCode: status}
		}
	}, c.readOptions(ctx)...)
}

// GetBulkCounts fetches view and like counts for several URLs in one call.
// Duplicates are dropped before sending; an empty set makes no request.
func (c *Client) GetBulkCounts(ctx context.Context, urls []string) (models.BulkCounts, error) {
	unique := DedupeURLs(urls)
	if len(unique) == 0 {
		return models.BulkCounts{
			Raw: models.BulkCountsResponse{Results: []models.CounterRecord{}},
			Map: map[string]models.Counts{},
		}, nil
	}

	raw, err := retry.DoWithData(func() (models.BulkCountsResponse, error) {
		status, data, err := c.do(ctx, http.MethodPost, pathBulk, nil, models.BulkCountsRequest{URLs: unique})
		if err != nil {
			return models.BulkCountsResponse{}, err
		}
		if status != http.StatusOK {
			return models.BulkCountsResponse{}, &ProtocolError{Op: "bulk counts", StatusCode: status}
		}

		var out models.BulkCountsResponse
		if err := decode("bulk counts", data, &out); err != nil {
			return models.BulkCountsResponse{}, retry.Unrecoverable(err)
		}
		if out.Results == nil {
			out.Results = []models.CounterRecord{}
		}
		return out, nil
	}, c.readOptions(ctx)...)
	if err != nil {
		return models.BulkCounts{}, err
	}

	m := make(map[string]models.Counts, len(raw.Results))
	for _, r := range raw.Results {
		m[r.URL] = models.Counts{ViewCount: r.ViewCount, LikeCount: r.LikeCount}
	}
	return models.BulkCounts{Raw: raw, Map: m}, nil
}

// readOptions retries idempotent reads on transport failures and 5xx responses
func (c *Client) readOptions(ctx context.Context) []retry.Option {
	attempts := c.cfg.ReadRetries
	if attempts < 1 {
		attempts = 1
	}
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(readRetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug().Err(err).Uint("attempt", n+1).Msg("Retrying read")
		}),
	}
}

func isTransient(err error) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.StatusCode >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// CanonicalURL trims whitespace and drops the fragment
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// DedupeURLs canonicalizes urls and drops empties and repeats, keeping first-seen order
func DedupeURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		u := CanonicalURL(raw)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
