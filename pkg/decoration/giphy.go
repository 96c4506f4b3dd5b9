package decoration

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"transfer_ledger_back/pkg/cache"
)

const (
	DefaultBaseURL     = "https://api.giphy.com"
	DefaultFallbackURL = "https://blog.hubspot.com/hubfs/Smiling%20Leo%20Perfect%20GIF.gif"
	searchPath         = "/v1/gifs/search"
)

type Config struct {
	BaseURL     string
	APIKey      string
	FallbackURL string
	Timeout     time.Duration
	CacheTTL    time.Duration
}

type searchResponse struct {
	Data []struct {
		Images struct {
			DownsizedMedium struct {
				URL string `json:"url"`
			} `json:"downsized_medium"`
		} `json:"images"`
	} `json:"data"`
}

// Fetcher looks up a display image for a keyword. It is cosmetic: every
// failure turns into the fallback URL.
type Fetcher struct {
	client   *resty.Client
	apiKey   string
	fallback string
	cache    *cache.TTLCache
}

func NewFetcher(cfg Config) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.FallbackURL == "" {
		cfg.FallbackURL = DefaultFallbackURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Fetcher{
		client:   client,
		apiKey:   cfg.APIKey,
		fallback: cfg.FallbackURL,
		cache:    cache.NewTTLCache(cfg.CacheTTL),
	}
}

func (f *Fetcher) FallbackURL() string {
	return f.fallback
}

// Search asks the service for up to limit results and returns the first URL.
func (f *Fetcher) Search(ctx context.Context, query string, limit int) (string, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"api_key": f.apiKey,
			"q":       query,
			"limit":   strconv.Itoa(limit),
		}).
		SetResult(&searchResponse{}).
		Get(searchPath)
	if err != nil {
		return "", errors.Wrap(err, "decoration search")
	}
	if resp.IsError() {
		return "", errors.Errorf("decoration search: status %d", resp.StatusCode())
	}
	result := resp.Result().(*searchResponse)
	if len(result.Data) == 0 || result.Data[0].Images.DownsizedMedium.URL == "" {
		return "", errors.Errorf("decoration search: nothing found for %q", query)
	}
	return result.Data[0].Images.DownsizedMedium.URL, nil
}

// Fetch never fails; it returns the fallback URL when the lookup does.
func (f *Fetcher) Fetch(ctx context.Context, keyword string) string {
	query := strings.Join(strings.Fields(keyword), "")
	if query == "" {
		return f.fallback
	}
	if url, ok := f.cache.Get(query); ok {
		return url
	}
	url, err := f.Search(ctx, query, 1)
	if err != nil {
		logrus.Warnf("decoration lookup for %q failed: %s", query, err)
		return f.fallback
	}
	f.cache.Set(query, url)
	return url
}

// FetchAsync runs Fetch in the background and hands the URL to done.
func (f *Fetcher) FetchAsync(ctx context.Context, keyword string, done func(url string)) {
	go func() {
		url := f.Fetch(ctx, keyword)
		if done != nil {
			done(url)
		}
	}()
}
