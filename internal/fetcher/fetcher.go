package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"catalog-enricher/internal/metrics"
	"catalog-enricher/internal/models"
)

// Fetcher pagina una plataforma de origen hasta traer el catálogo completo
type Fetcher interface {
	FetchAll(ctx context.Context) ([]models.RawProduct, error)
	Name() string
}

type Options struct {
	Timeout    time.Duration
	Retry      RetryPolicy
	RPS        float64
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// New elige el fetcher según la plataforma del job
func New(cfg models.SourceConfig, opts Options) (Fetcher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: source base url is required", models.ErrInvalidJob)
	}
	t := newTransport(string(cfg.Platform), opts)

	switch cfg.Platform {
	case models.PlatformShopify:
		return NewShopifyFetcher(cfg, t), nil
	case models.PlatformWooCommerce:
		return NewWooFetcher(cfg, t), nil
	default:
		return nil, fmt.Errorf("%w: unsupported platform %q", models.ErrInvalidJob, cfg.Platform)
	}
}

// transport comparte cliente, limitador y reintentos entre las dos plataformas
type transport struct {
	source  string
	client  *http.Client
	limiter *rate.Limiter
	retry   RetryPolicy
	logger  *zap.Logger
}

func newTransport(source string, opts Options) *transport {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}

	retry := opts.Retry
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 3
	}
	if retry.InitialDelay <= 0 {
		retry.InitialDelay = time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.L()
	}
	return &transport{
		source:  source,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		retry:   retry,
		logger:  logger.Named("fetch").With(zap.String("source", source)),
	}
}

// doJSON ejecuta el request con reintentos y decodifica el cuerpo en out; devuelve los headers
func (t *transport) doJSON(ctx context.Context, method, url string, body []byte, headers map[string]string, out any) (http.Header, error) {
	var respHeader http.Header

	err := Retry(ctx, t.retry, func(attempt int, err error, delay time.Duration) {
		metrics.FetchRetry(t.source)
		t.logger.Warn("request failed, retrying",
			zap.String("url", redact(url)), zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
	}, func(ctx context.Context) error {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &StatusError{Code: resp.StatusCode, Body: truncate(string(data), 300)}
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		respHeader = resp.Header
		return nil
	})
	return respHeader, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// redact oculta las credenciales de WooCommerce en los logs
func redact(url string) string {
	if i := strings.Index(url, "consumer_key="); i >= 0 {
		return url[:i] + "consumer_key=***"
	}
	return url
}
