package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/stereocards/internal/imaging"
)

const (
	// DefaultSizeClass is sent as the size parameter on every request.
	DefaultSizeClass = "large"

	// maxImageBytes guards against unbounded responses.
	maxImageBytes = 64 << 20
)

// Fetcher retrieves encoded card images from the image service.
type Fetcher struct {
	HTTPClient *http.Client
	BaseURL    string
	SizeClass  string
}

// NewFetcher creates a fetcher for the image service at baseURL.
func NewFetcher(baseURL string) *Fetcher {
	return &Fetcher{
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		BaseURL:   baseURL,
		SizeClass: DefaultSizeClass,
	}
}

// ImageURL builds the request URL for an image identifier.
func (f *Fetcher) ImageURL(id string) (string, error) {
	u, err := url.Parse(f.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid image endpoint %q: %w", f.BaseURL, err)
	}
	q := u.Query()
	q.Set("id", id)
	sizeClass := f.SizeClass
	if sizeClass == "" {
		sizeClass = DefaultSizeClass
	}
	q.Set("size", sizeClass)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch downloads the encoded bytes of one image. Transport failures are
// reported as KindNetwork and non-2xx responses as KindServerStatus.
func (f *Fetcher) Fetch(ctx context.Context, id string) ([]byte, error) {
	id = CleanIdentifier(id)
	if id == "" {
		return nil, imaging.New(imaging.KindInvalidInput, "fetch", imaging.ErrEmptyIdentifier)
	}

	imageURL, err := f.ImageURL(id)
	if err != nil {
		return nil, imaging.New(imaging.KindInvalidInput, "fetch", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, imaging.New(imaging.KindInvalidInput, "fetch", fmt.Errorf("failed to create request: %w", err))
	}

	start := time.Now()
	resp, err := f.client().Do(req)
	if err != nil {
		return nil, imaging.New(imaging.KindNetwork, "fetch", fmt.Errorf("failed to fetch image %s: %w", id, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		slog.Debug("Image service returned non-success status", "id", id, "status", resp.StatusCode)
		return nil, imaging.Status("fetch", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, imaging.New(imaging.KindNetwork, "fetch", fmt.Errorf("failed to read image data: %w", err))
	}
	if len(data) > maxImageBytes {
		return nil, imaging.New(imaging.KindDecode, "fetch", errors.New("image exceeds maximum size"))
	}

	slog.Debug("Fetched image", "id", id, "bytes", len(data), "elapsed", time.Since(start))
	return data, nil
}

func (f *Fetcher) client() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return http.DefaultClient
}

// CleanIdentifier trims whitespace around an image identifier.
func CleanIdentifier(id string) string {
	return strings.TrimSpace(id)
}
