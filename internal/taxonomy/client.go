package taxonomy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPageLimit = 1000
	maxPageRetries   = 5
	defaultRetryWait = 2 * time.Second
)

// Class is one classification dictionary entry.
type Class struct {
	Code string `json:"code"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// classesPage is the dictionary service's paged response.
type classesPage struct {
	Classes           []Class `json:"classes"`
	ClassesCount      int     `json:"classesCount"`
	ClassesTotalCount int     `json:"classesTotalCount"`
}

// Client pulls classification dictionaries from the remote taxonomy
// service.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	pageLimit int
	retryWait time.Duration
}

// NewClient creates a client for the taxonomy service at baseURL.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      httpClient,
		logger:    logger,
		pageLimit: defaultPageLimit,
		retryWait: defaultRetryWait,
	}
}

// Pull fetches every class of the dictionary identified by dictionaryURI,
// walking the service's pages and honoring its rate limiting. Classes
// without a code are skipped; they cannot be resolved later.
func (c *Client) Pull(ctx context.Context, dictionaryURI string) ([]Class, error) {
	var all []Class
	offset := 0
	total := -1

	for {
		page, err := c.fetchPage(ctx, dictionaryURI, offset)
		if err != nil {
			return nil, err
		}
		for _, cl := range page.Classes {
			if cl.Code == "" {
				c.logger.Warn("skipping class without code", "uri", cl.URI)
				continue
			}
			all = append(all, cl)
		}

		if page.ClassesTotalCount > 0 {
			total = page.ClassesTotalCount
		}
		count := page.ClassesCount
		if count == 0 {
			count = len(page.Classes)
		}
		if count == 0 {
			break
		}
		offset += count
		if total >= 0 && offset >= total {
			break
		}
	}

	c.logger.Info("dictionary pulled", "uri", dictionaryURI, "classes", len(all))
	return all, nil
}

// rateLimited reports a 429 response and how long the service asked us to
// wait before retrying.
type rateLimited struct {
	wait time.Duration
}

func (e *rateLimited) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.wait)
}

// fetchPage retrieves one page, retrying through rate limiting up to
// maxPageRetries times.
func (c *Client) fetchPage(ctx context.Context, dictionaryURI string, offset int) (*classesPage, error) {
	for attempt := 0; attempt <= maxPageRetries; attempt++ {
		page, err := c.getClasses(ctx, dictionaryURI, offset)
		if err == nil {
			return page, nil
		}
		var rl *rateLimited
		if !errors.As(err, &rl) {
			return nil, err
		}
		c.logger.Warn("rate limited by taxonomy service",
			"offset", offset, "wait", rl.wait)
		if err := sleepCtx(ctx, rl.wait); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("rate limit retries exhausted at offset %d", offset)
}

func (c *Client) getClasses(ctx context.Context, dictionaryURI string, offset int) (*classesPage, error) {
	params := url.Values{}
	params.Set("uri", dictionaryURI)
	params.Set("useNestedClasses", "false")
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(c.pageLimit))

	reqURL := c.baseURL + "/Dictionary/v1/Classes?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &rateLimited{wait: c.retryAfter(resp)}
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("taxonomy api returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var page classesPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode classes page: %w", err)
	}
	return &page, nil
}

// retryAfter reads the Retry-After header, in seconds, falling back to the
// client's default when absent or unparsable.
func (c *Client) retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return c.retryWait
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return c.retryWait
	}
	return time.Duration(seconds) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
