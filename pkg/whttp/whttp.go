package whttp

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const USER_AGENT = "Mozilla/5.0 (X11; Linux x86_64; rv:83.0) Gecko/20100101 Firefox/83.0"

type WHTTPHeader struct {
	Name  string
	Value string
}

type WHTTPReq struct {
	URL     string
	Method  string
	Headers []WHTTPHeader
}

// WHTTPRes is a response whose body has not been read yet.
// Callers must close Body.
type WHTTPRes struct {
	StatusCode int
	Body       io.ReadCloser
}

// ClientOptions configures NewClient.
type ClientOptions struct {
	Proxy    string
	Timeout  time.Duration
	RetryMax int
}

// NewClient builds a retrying client. Connection errors and 5xx responses are retried;
// every other status, 404 included, is returned to the caller as is.
func NewClient(opts ClientOptions) (*retryablehttp.Client, error) {
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = log.New(io.Discard, "", 0)
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	// Hand the last response back instead of an error once retries are exhausted.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	if opts.Timeout > 0 {
		retryClient.HTTPClient.Timeout = opts.Timeout
	}

	if opts.Proxy != "" {
		if err := SetupProxy(retryClient, opts.Proxy); err != nil {
			return nil, err
		}
	}
	return retryClient, nil
}

// SetupProxy routes both http and https traffic of client through proxy.
func SetupProxy(client *retryablehttp.Client, proxy string) error {
	proxyURL, err := url.Parse(proxy)
	if err != nil || proxyURL.Host == "" {
		return fmt.Errorf("invalid proxy URL: %q", proxy)
	}

	transport, ok := client.HTTPClient.Transport.(*http.Transport)
	if !ok || transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	transport.Proxy = http.ProxyURL(proxyURL)
	client.HTTPClient.Transport = transport
	return nil
}

// SendHTTPRequest sends wReq and returns the response with its body left open for streaming.
func SendHTTPRequest(ctx context.Context, wReq *WHTTPReq, client *retryablehttp.Client) (*WHTTPRes, error) {
	method := wReq.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, wReq.URL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", USER_AGENT)
	req.Header.Set("Accept-Language", "en")

	for _, h := range wReq.Headers {
		req.Header.Set(h.Name, h.Value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	return &WHTTPRes{StatusCode: resp.StatusCode, Body: resp.Body}, nil
}

// JoinPath appends a single path segment to base.
func JoinPath(base, segment string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(segment)
}
