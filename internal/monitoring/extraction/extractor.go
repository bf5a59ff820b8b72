// Package extraction declares the Extractor boundary: the only place the
// core talks to retailer-specific scraping code. Extractors are leaves —
// the dispatcher resolves one by URL host and never knows which retailer
// it is calling.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/DimaJoyti/priceguard/internal/monitoring/domain"
)

// ErrNoExtractorForRetailer is returned by Registry.Resolve when no
// extractor is registered for a URL's host.
var ErrNoExtractorForRetailer = errors.New("extraction: no extractor for retailer")

// Extractor fetches one product URL and returns a normalized observation.
// Implementations must respect ctx cancellation; the dispatcher applies
// domain.ExtractorTimeout via the context it passes in.
type Extractor interface {
	Extract(ctx context.Context, productURL string) (domain.ObservationPayload, error)
}

// Registry resolves an Extractor by URL host using exact-host entries
// and substring aliases, so "www.amazon.fr" and "amazon.co.uk" can both
// route to the same "amazon" extractor.
type Registry struct {
	mu      sync.RWMutex
	byHost  map[string]Extractor
	aliases []hostAlias
}

type hostAlias struct {
	suffix    string
	extractor Extractor
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{byHost: make(map[string]Extractor)}
}

// Register maps an exact host to an extractor, e.g. "www.amazon.fr".
func (r *Registry) Register(host string, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byHost[strings.ToLower(host)] = e
}

// RegisterSuffix maps any host that contains suffix anywhere (a substring
// match, not only a trailing one) to an extractor, e.g. "amazon."
// matching www.amazon.fr, amazon.de, amazon.co.uk.
func (r *Registry) RegisterSuffix(suffix string, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases = append(r.aliases, hostAlias{suffix: strings.ToLower(suffix), extractor: e})
}

// Resolve returns the Extractor responsible for productURL's host.
func (r *Registry) Resolve(productURL string) (Extractor, error) {
	u, err := url.Parse(productURL)
	if err != nil {
		return nil, fmt.Errorf("extraction: parse url %q: %w", productURL, err)
	}
	host := strings.ToLower(u.Hostname())

	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.byHost[host]; ok {
		return e, nil
	}
	for _, a := range r.aliases {
		if strings.Contains(host, a.suffix) {
			return a.extractor, nil
		}
	}
	return nil, fmt.Errorf("%w: host %q", ErrNoExtractorForRetailer, host)
}

// RetailerForURL derives the retailer key (used for throttling ceilings)
// from a URL host, independent of which Extractor is registered for it.
// Known retailers collapse aliases (amazon.fr, amazon.de -> "amazon");
// anything else falls back to the bare registrable domain label.
func RetailerForURL(productURL string) string {
	u, err := url.Parse(productURL)
	if err != nil {
		return "unknown"
	}
	host := strings.ToLower(u.Hostname())

	for _, known := range []string{"amazon", "fnac", "darty", "boulanger"} {
		if strings.Contains(host, known) {
			return known
		}
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return host
}
