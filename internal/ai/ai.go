// Package ai runs the optional model-assisted extraction path. Providers
// are tried in a fixed priority order; any failure is returned to the
// caller, which falls back to the deterministic extractors.
package ai

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/boq-extractor/internal/model"
	"github.com/sells-group/boq-extractor/internal/resilience"
)

// Provider names, in auto-mode priority order.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAuto      = "auto"
)

var priority = []string{ProviderAnthropic, ProviderOpenAI, ProviderGemini}

var (
	// ErrNoProvider is returned when no provider is available.
	ErrNoProvider = eris.New("ai: no provider available")
	// ErrInvalidResponse is returned when a response holds no usable JSON.
	ErrInvalidResponse = eris.New("ai: invalid response")
)

// Prompt is one extraction request rendered for a model.
type Prompt struct {
	System string
	User   string
}

// Provider is one external model.
type Provider interface {
	Name() string
	// Available reports whether the provider is configured and healthy.
	Available() bool
	// Complete sends the prompt and returns the raw response text.
	Complete(ctx context.Context, p Prompt) (string, error)
}

// Request describes one document sent to the model path.
type Request struct {
	Filename     string
	DocumentType model.DocumentType
	Text         string
	ProductTypes []string
	// Provider overrides the service's preferred provider when set.
	Provider string
}

// Result is a normalised model response.
type Result struct {
	Provider     string
	Items        []model.ExtractedItem
	Cells        []model.SpecificationCell
	OverallScore *float64
}

// Options configures the Service.
type Options struct {
	Preferred         string
	Timeout           time.Duration
	MaxChars          int
	DescriptionMaxLen int
	SpecRawTextMaxLen int
}

// Service selects a provider and normalises its response.
type Service struct {
	providers map[string]Provider
	opts      Options
}

// NewService creates a Service over the given providers.
func NewService(opts Options, providers ...Provider) *Service {
	if opts.Preferred == "" {
		opts.Preferred = ProviderAuto
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = 100000
	}
	if opts.DescriptionMaxLen <= 0 {
		opts.DescriptionMaxLen = 500
	}
	if opts.SpecRawTextMaxLen <= 0 {
		opts.SpecRawTextMaxLen = 200
	}
	s := &Service{providers: make(map[string]Provider, len(providers)), opts: opts}
	for _, p := range providers {
		s.providers[p.Name()] = p
	}
	return s
}

// Available reports whether any provider is available.
func (s *Service) Available() bool {
	for _, p := range s.providers {
		if p.Available() {
			return true
		}
	}
	return false
}

// Close closes providers that hold clients.
func (s *Service) Close() error {
	var first error
	for _, p := range s.providers {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = eris.Wrapf(err, "ai: close %s", p.Name())
			}
		}
	}
	return first
}

// candidates returns the preferred provider, then the rest in priority order.
func (s *Service) candidates(preferred string) []Provider {
	preferred = strings.ToLower(strings.TrimSpace(preferred))
	if preferred == "" {
		preferred = strings.ToLower(s.opts.Preferred)
	}
	var out []Provider
	if p, ok := s.providers[preferred]; ok {
		out = append(out, p)
	}
	for _, name := range priority {
		if name == preferred {
			continue
		}
		if p, ok := s.providers[name]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Extract sends the document to the first available candidate. Unavailable
// providers are skipped; the first provider actually called decides the
// outcome.
func (s *Service) Extract(ctx context.Context, req Request) (*Result, error) {
	prompt := BuildPrompt(req, s.opts.MaxChars)

	for _, p := range s.candidates(req.Provider) {
		if !p.Available() {
			zap.L().Debug("ai: provider unavailable", zap.String("provider", p.Name()))
			continue
		}
		return s.call(ctx, p, prompt, req)
	}
	return nil, ErrNoProvider
}

func (s *Service) call(ctx context.Context, p Provider, prompt Prompt, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := p.Complete(ctx, prompt)
	if err != nil {
		zap.L().Warn("ai: provider call failed",
			zap.String("provider", p.Name()),
			zap.String("document", req.Filename),
			zap.String("error_class", resilience.ClassifyError(err)),
			zap.Error(err),
		)
		return nil, eris.Wrapf(err, "ai: %s", p.Name())
	}

	res, err := Parse(raw, ParseOptions{
		DescriptionMaxLen: s.opts.DescriptionMaxLen,
		SpecRawTextMaxLen: s.opts.SpecRawTextMaxLen,
	})
	if err != nil {
		zap.L().Warn("ai: unparsable response",
			zap.String("provider", p.Name()),
			zap.String("document", req.Filename),
			zap.Int("response_len", len(raw)),
		)
		return nil, eris.Wrapf(err, "ai: %s", p.Name())
	}
	res.Provider = p.Name()

	zap.L().Info("ai: extraction complete",
		zap.String("provider", p.Name()),
		zap.String("document", req.Filename),
		zap.Int("items", len(res.Items)),
		zap.Int("spec_cells", len(res.Cells)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}
