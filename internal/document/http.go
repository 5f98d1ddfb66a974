package document

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPOptions configures HTTPReader.
type HTTPOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	MaxBytes   int64
	// BaseBackoff is the first retry delay; it doubles per attempt.
	BaseBackoff time.Duration
	Limiter     *rate.Limiter
}

// HTTPReader downloads documents by URL, retrying transport errors, 429s
// and 5xx responses with jittered exponential backoff.
type HTTPReader struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *rate.Limiter
}

// NewHTTPReader creates an HTTPReader.
func NewHTTPReader(opts HTTPOptions) *HTTPReader {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "boq-extractor/1.0"
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 100 << 20
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = time.Second
	}
	lim := opts.Limiter
	if lim == nil {
		lim = rate.NewLimiter(5, 5)
	}
	return &HTTPReader{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:    opts,
		limiter: lim,
	}
}

// Read downloads ref and returns the body. Bodies over MaxBytes are
// rejected.
func (r *HTTPReader) Read(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, eris.Wrap(err, "document: create request")
	}
	req.Header.Set("User-Agent", r.opts.UserAgent)

	resp, err := r.doWithRetry(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "document: download %s", ref)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("document: unexpected status %d from %s", resp.StatusCode, ref)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.opts.MaxBytes+1))
	if err != nil {
		return nil, eris.Wrapf(err, "document: read body of %s", ref)
	}
	if int64(len(data)) > r.opts.MaxBytes {
		return nil, eris.Errorf("document: %s exceeds %d bytes", ref, r.opts.MaxBytes)
	}
	return data, nil
}

func (r *HTTPReader) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := range r.opts.MaxRetries {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}

		resp, err := r.client.Do(req.Clone(ctx))
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http %d from %s", resp.StatusCode, req.URL.String())
		default:
			return resp, nil
		}

		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "download cancelled")
		}
		zap.L().Warn("document: download failed, retrying",
			zap.String("url", req.URL.String()),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
		if attempt < r.opts.MaxRetries-1 {
			r.backoff(ctx, attempt)
		}
	}
	return nil, eris.Wrap(lastErr, "all retries exhausted")
}

func (r *HTTPReader) backoff(ctx context.Context, attempt int) {
	maxBackoff := 30 * time.Second
	d := time.Duration(float64(r.opts.BaseBackoff) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// RefReader routes http(s) references to an HTTPReader and everything else
// to a FileReader.
type RefReader struct {
	Files FileReader
	HTTP  *HTTPReader
}

// Read implements Reader.
func (r RefReader) Read(ctx context.Context, ref string) ([]byte, error) {
	if IsURL(ref) {
		if r.HTTP == nil {
			return nil, eris.Errorf("document: no http reader configured for %s", ref)
		}
		return r.HTTP.Read(ctx, ref)
	}
	return r.Files.Read(ctx, ref)
}

// IsURL reports whether ref is an http or https URL.
func IsURL(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// RefName returns the file name of ref, using the URL path for URLs.
func RefName(ref string) string {
	if IsURL(ref) {
		if u, err := url.Parse(ref); err == nil {
			return path.Base(u.Path)
		}
	}
	return filepath.Base(ref)
}
