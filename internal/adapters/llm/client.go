package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/pkg/logger"
)

// Client routes each call to the provider named by the subject. Built
// providers are cached per subject and rebuilt when the connection
// parameters change.
type Client struct {
	mu       sync.Mutex
	entries  map[string]cacheEntry
	limiters map[string]*rate.Limiter

	timeout     time.Duration
	rps         float64
	burst       int
	middlewares []Middleware
	logger      logger.Logger
}

type cacheEntry struct {
	fingerprint string
	llm         CoreLLM
}

// NewClient returns a Client with the given options applied.
func NewClient(opts ...Option) *Client {
	c := &Client{
		entries:  make(map[string]cacheEntry),
		limiters: make(map[string]*rate.Limiter),
		timeout:  60 * time.Second,
		burst:    1,
		logger:   logger.Get().Named("llm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate sends prompt to the subject's model and returns its text.
func (c *Client) Generate(ctx context.Context, prompt string, who model.Subject) (string, error) {
	core, err := c.resolve(ctx, who)
	if err != nil {
		return "", err
	}
	resp, err := core.DoRequest(ctx, prompt)
	if err != nil {
		c.logger.Debug(ctx, "model call failed",
			logger.String("subject", who.Name),
			logger.String("provider", core.Provider()),
			logger.Error(err))
		return "", fmt.Errorf("generate for %s: %w", who.Name, err)
	}
	return resp.Text, nil
}

// Invalidate drops the cached provider for a subject.
func (c *Client) Invalidate(who model.Subject) {
	c.mu.Lock()
	delete(c.entries, cacheKey(who))
	c.mu.Unlock()
}

// Cached reports how many subjects have a built provider.
func (c *Client) Cached() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Client) resolve(ctx context.Context, who model.Subject) (CoreLLM, error) {
	key := cacheKey(who)
	fp := fingerprint(who)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && e.fingerprint == fp {
		return e.llm, nil
	}

	core, err := NewProvider(ctx, ProviderConfig{
		Provider: who.Provider,
		Model:    who.Model,
		BaseURL:  who.BaseURL,
		APIKey:   who.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("build provider for %s: %w", who.Name, err)
	}

	mws := []Middleware{
		TracingMiddleware("github.com/okian/evalboard/internal/adapters/llm"),
		MetricsMiddleware(),
		RateLimitMiddleware(c.limiterFor(core.Provider())),
		TimeoutMiddleware(c.timeout),
	}
	mws = append(mws, c.middlewares...)
	wrappedCore := Chain(core, mws...)

	c.entries[key] = cacheEntry{fingerprint: fp, llm: wrappedCore}
	c.logger.Debug(ctx, "provider built",
		logger.String("subject", who.Name),
		logger.String("provider", core.Provider()),
		logger.String("model", core.Model()))
	return wrappedCore, nil
}

// limiterFor must be called with c.mu held. Limiters are shared per provider.
func (c *Client) limiterFor(provider string) *rate.Limiter {
	if c.rps <= 0 {
		return nil
	}
	if l, ok := c.limiters[provider]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(c.rps), c.burst)
	c.limiters[provider] = l
	return l
}

func cacheKey(who model.Subject) string {
	if who.ID != 0 {
		return fmt.Sprintf("id:%d", who.ID)
	}
	return "name:" + who.Name
}

func fingerprint(who model.Subject) string {
	return strings.Join([]string{strings.ToLower(who.Provider), who.Model, who.BaseURL, who.APIKey}, "\x00")
}
