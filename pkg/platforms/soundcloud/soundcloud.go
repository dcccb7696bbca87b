package soundcloud

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sw33tLie/idwatch/pkg/platforms"
	"github.com/sw33tLie/idwatch/pkg/whttp"
)

const (
	PLATFORM_URL = "https://soundcloud.com"
	ID_PATTERN   = `https://api.soundcloud.com/users/(\d+)`
)

// Fetcher retrieves profile pages from a SoundCloud-shaped site.
type Fetcher struct {
	baseURL string
	client  *retryablehttp.Client
}

// NewFetcher returns a fetcher for profiles under baseURL. An empty baseURL means PLATFORM_URL.
func NewFetcher(baseURL string, client *retryablehttp.Client) *Fetcher {
	if baseURL == "" {
		baseURL = PLATFORM_URL
	}
	return &Fetcher{baseURL: baseURL, client: client}
}

func (f *Fetcher) Name() string { return "soundcloud" }

func (f *Fetcher) ProfileURL(name string) string {
	return whttp.JoinPath(f.baseURL, name)
}

func (f *Fetcher) Fetch(ctx context.Context, name string) (*platforms.Response, error) {
	res, err := whttp.SendHTTPRequest(ctx, &whttp.WHTTPReq{
		Method: "GET",
		URL:    f.ProfileURL(name),
		Headers: []whttp.WHTTPHeader{
			{Name: "Accept", Value: "text/html,application/xhtml+xml"},
		},
	}, f.client)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", platforms.ErrFetch, name, err)
	}
	return &platforms.Response{StatusCode: res.StatusCode, Body: res.Body}, nil
}
