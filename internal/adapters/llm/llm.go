// Package llm turns a subject's connection parameters into model calls.
// Providers are registered by name; every provider is wrapped in a middleware
// chain before the Client hands it out.
package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Response is the text and token usage returned by one model call.
type Response struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// CoreLLM is a single configured model endpoint.
type CoreLLM interface {
	DoRequest(ctx context.Context, prompt string) (Response, error)
	Provider() string
	Model() string
}

// Middleware decorates a CoreLLM.
type Middleware func(CoreLLM) CoreLLM

// Chain applies middlewares so the first one listed is the outermost.
func Chain(core CoreLLM, mws ...Middleware) CoreLLM {
	for i := len(mws) - 1; i >= 0; i-- {
		core = mws[i](core)
	}
	return core
}

// ProviderConfig is what a factory needs to build a provider.
type ProviderConfig struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

// ProviderFactory builds a provider from its configuration.
type ProviderFactory func(ctx context.Context, cfg ProviderConfig) (CoreLLM, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]ProviderFactory{}
)

// RegisterProviderFactory makes a provider available under name. Names are case-insensitive
// and a later registration replaces an earlier one.
func RegisterProviderFactory(name string, factory ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = factory
}

// Providers lists registered provider names in order.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(ctx context.Context, cfg ProviderConfig) (CoreLLM, error) {
	registryMu.RLock()
	factory, ok := registry[strings.ToLower(cfg.Provider)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	return factory(ctx, cfg)
}

// baseProvider holds the identity fields every provider reports.
type baseProvider struct {
	name  string
	model string
}

func (b baseProvider) Provider() string { return b.name }
func (b baseProvider) Model() string    { return b.model }
