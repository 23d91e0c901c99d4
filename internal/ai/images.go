package ai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"catalog-enricher/internal/cache"
	"catalog-enricher/internal/fetcher"
)

const (
	MaxImagesPerProduct = 3
	maxImageBytes       = 8 << 20
	imageConcurrency    = 3
)

// ImageFetcher descarga imágenes de producto para el contexto de visión.
// Una imagen que falla se descarta sin afectar a las demás.
type ImageFetcher struct {
	client *http.Client
	cache  *cache.Cache
	retry  fetcher.RetryPolicy
	logger *zap.Logger
}

func NewImageFetcher(timeout time.Duration, c *cache.Cache, logger *zap.Logger) *ImageFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.L()
	}
	return &ImageFetcher{
		client: &http.Client{Timeout: timeout},
		cache:  c,
		retry:  fetcher.RetryPolicy{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond},
		logger: logger.Named("images"),
	}
}

// FetchInline descarga hasta MaxImagesPerProduct imágenes, conservando el orden de urls
func (f *ImageFetcher) FetchInline(ctx context.Context, urls []string) []InlineImage {
	urls = uniqueURLs(urls, MaxImagesPerProduct)
	if len(urls) == 0 {
		return nil
	}

	slots := make([]*InlineImage, len(urls))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imageConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			img, err := f.fetchOne(gctx, u)
			if err != nil {
				f.logger.Debug("image skipped", zap.String("url", u), zap.Error(err))
				return nil
			}
			mu.Lock()
			slots[i] = img
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := make([]InlineImage, 0, len(slots))
	for _, img := range slots {
		if img != nil {
			out = append(out, *img)
		}
	}
	return out
}

// fetchOne reintenta los errores transitorios (red, 429, 5xx) con la política del fetcher
func (f *ImageFetcher) fetchOne(ctx context.Context, url string) (*InlineImage, error) {
	if f.cache != nil {
		if data, mime, ok := f.cache.GetValue(url); ok {
			return &InlineImage{URL: url, MIMEType: mime, Data: data}, nil
		}
	}

	var img *InlineImage
	onRetry := func(attempt int, err error, delay time.Duration) {
		f.logger.Debug("image fetch retry", zap.String("url", url), zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
	}
	err := fetcher.Retry(ctx, f.retry, onRetry, func(ctx context.Context) error {
		var err error
		img, err = f.download(ctx, url)
		return err
	})
	if err != nil {
		return nil, err
	}
	if f.cache != nil {
		f.cache.Set(url, img.Data, img.MIMEType)
	}
	return img, nil
}

func (f *ImageFetcher) download(ctx context.Context, url string) (*InlineImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &fetcher.StatusError{Code: resp.StatusCode, Body: resp.Status}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}

	mime := imageMIME(resp.Header.Get("Content-Type"), data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("not an image: %s", mime)
	}
	return &InlineImage{URL: url, MIMEType: mime, Data: data}, nil
}

func imageMIME(header string, data []byte) string {
	if mt := strings.TrimSpace(strings.Split(header, ";")[0]); strings.HasPrefix(mt, "image/") {
		return mt
	}
	return http.DetectContentType(data)
}

func uniqueURLs(urls []string, limit int) []string {
	out := make([]string, 0, limit)
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
		if len(out) == limit {
			break
		}
	}
	return out
}
