package browser

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/go-resty/resty/v2"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/net/html/charset"
)

// HTTPLoader fetches pages without a browser. It only sees server-rendered
// markup, so it suits static pages and offline fixtures.
type HTTPLoader struct {
	client *resty.Client
}

// NewHTTPLoader creates a loader with the given per-request timeout
func NewHTTPLoader(timeout time.Duration) *HTTPLoader {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:135.0) Gecko/20100101 Firefox/135.0").
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "en-GB,en;q=0.5").
		SetHeader("Accept-Encoding", "gzip, deflate, br, zstd")
	return &HTTPLoader{client: client}
}

// Establish has no consent gate to pass without a browser
func (l *HTTPLoader) Establish(ctx context.Context) (ConsentReport, error) {
	return ConsentReport{Cookies: notApplicable("cookies"), Terms: notApplicable("terms")}, nil
}

// Load fetches url and returns the decoded body. readyJS is ignored.
func (l *HTTPLoader) Load(ctx context.Context, url string, readyJS string) (string, error) {
	resp, err := l.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("failed to fetch %s, status code: %d", url, resp.StatusCode())
	}

	decoded, err := decodeBody(body, resp.Header().Get("Content-Encoding"))
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", url, err)
	}
	defer decoded.Close()

	utf8Reader, err := charset.NewReader(decoded, resp.Header().Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("failed to detect charset of %s: %w", url, err)
	}

	content, err := io.ReadAll(utf8Reader)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", url, err)
	}
	return string(content), nil
}

// Close is a no-op
func (l *HTTPLoader) Close() error {
	return nil
}

func decodeBody(body io.Reader, encoding string) (io.ReadCloser, error) {
	switch encoding {
	case "gzip":
		return gzip.NewReader(body)
	case "deflate":
		return flate.NewReader(body), nil
	case "br":
		return io.NopCloser(brotli.NewReader(body)), nil
	case "zstd":
		zstdReader, err := zstd.NewReader(body)
		if err != nil {
			return nil, err
		}
		return zstdReader.IOReadCloser(), nil
	default:
		return io.NopCloser(body), nil
	}
}
