package site

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/ytget/episode-downloader/internal/model"
)

// ErrUnsupportedSite is returned when no site handles an index locator
var ErrUnsupportedSite = errors.New("unsupported site")

// Discoverer enumerates the items of a remote index
type Discoverer interface {
	Discover(ctx context.Context, indexURL string) ([]model.Item, error)
}

// Resolver finds the concrete byte source of an item. Failures wrap
// model.ErrResolutionFailed.
type Resolver interface {
	Resolve(ctx context.Context, item model.Item) (string, error)
}

// Site discovers and resolves items for one family of hosts
type Site interface {
	Discoverer
	Resolver
}

// ResolverFunc adapts a function to Resolver
type ResolverFunc func(ctx context.Context, item model.Item) (string, error)

// Resolve calls f(ctx, item)
func (f ResolverFunc) Resolve(ctx context.Context, item model.Item) (string, error) {
	return f(ctx, item)
}

// DiscovererFunc adapts a function to Discoverer
type DiscovererFunc func(ctx context.Context, indexURL string) ([]model.Item, error)

// Discover calls f(ctx, indexURL)
func (f DiscovererFunc) Discover(ctx context.Context, indexURL string) ([]model.Item, error) {
	return f(ctx, indexURL)
}

// Registry dispatches index locators to sites by host
type Registry struct {
	mu       sync.RWMutex
	sites    map[string]Site
	fallback Site
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sites: make(map[string]Site)}
}

// Register binds s to each host. A host also matches its subdomains.
func (r *Registry) Register(s Site, hosts ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, host := range hosts {
		r.sites[normalizeHost(host)] = s
	}
}

// SetFallback sets the site used when no host matches
func (r *Registry) SetFallback(s Site) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = s
}

// Hosts returns the registered hosts in order
func (r *Registry) Hosts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hosts := make([]string, 0, len(r.sites))
	for host := range r.sites {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	return hosts
}

// Lookup returns the site for locator, matching the exact host first and then
// each parent domain.
func (r *Registry) Lookup(locator string) (Site, error) {
	u, err := url.Parse(locator)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid locator %q", ErrUnsupportedSite, locator)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	host := normalizeHost(u.Hostname())
	for host != "" {
		if s, ok := r.sites[host]; ok {
			return s, nil
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			break
		}
		host = host[i+1:]
	}

	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedSite, u.Hostname())
}

// Discover dispatches to the site of indexURL
func (r *Registry) Discover(ctx context.Context, indexURL string) ([]model.Item, error) {
	s, err := r.Lookup(indexURL)
	if err != nil {
		return nil, err
	}
	return s.Discover(ctx, indexURL)
}

// Resolve dispatches to the site of the item's source locator
func (r *Registry) Resolve(ctx context.Context, item model.Item) (string, error) {
	s, err := r.Lookup(item.SourceURL)
	if err != nil {
		return "", fmt.Errorf("%w: item %d: %v", model.ErrResolutionFailed, item.Ordinal, err)
	}
	return s.Resolve(ctx, item)
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimPrefix(host, "www.")
	return strings.TrimSuffix(host, ".")
}
