// =============================================================================
// Storage Billing - Protocol and Service Resolvers
// =============================================================================
//
// Resolution happens in two stages:
//
//   1. ProtocolResolver maps a raw inventory protocol to the closest catalog
//      protocol (fuzzy, over the distinct (Protocol, Protocol ID) pairs).
//   2. ServiceResolver takes the resolved protocol, restricts the catalog to
//      that protocol's rows (exact match) and finds the closest service label.
//
// CACHING:
//   Both resolvers memoize every answer for their own lifetime. One resolver
//   is built per catalog snapshot; the cache is never invalidated. Caches are
//   guarded by a mutex so a resolver may be shared between goroutines; two
//   goroutines missing on the same key both compute the same answer.
//
// =============================================================================

package matching

import (
	"sync"

	"github.com/ginjaninja78/storage-billing/internal/types"
)

// =============================================================================
// PROTOCOL RESOLVER
// =============================================================================

// ProtocolMatch is a resolved catalog protocol. Both fields are empty when
// nothing matched.
type ProtocolMatch struct {
	Name string
	ID   string
}

// Found reports whether a catalog protocol was matched.
func (p ProtocolMatch) Found() bool {
	return p.Name != ""
}

type protocolCandidate struct {
	name string
	id   string
}

// ProtocolResolver maps raw inventory protocols to catalog protocols.
type ProtocolResolver struct {
	matcher    Matcher
	candidates []protocolCandidate
	labels     []string

	mu    sync.Mutex
	cache map[string]ProtocolMatch
}

// NewProtocolResolver builds a resolver over the catalog's distinct
// (Protocol, Protocol ID) pairs, kept in catalog order.
func NewProtocolResolver(catalog []types.CatalogService, matcher Matcher) *ProtocolResolver {
	r := &ProtocolResolver{
		matcher: matcher,
		cache:   make(map[string]ProtocolMatch),
	}

	seen := make(map[protocolCandidate]bool)
	for _, svc := range catalog {
		c := protocolCandidate{name: svc.Protocol, id: svc.ProtocolID}
		if seen[c] {
			continue
		}
		seen[c] = true
		r.candidates = append(r.candidates, c)
		r.labels = append(r.labels, c.name)
	}

	return r
}

// Resolve returns the best catalog protocol for raw, or an empty match.
func (r *ProtocolResolver) Resolve(raw string) ProtocolMatch {
	key := Normalize(raw)
	if key == "" {
		return ProtocolMatch{}
	}

	r.mu.Lock()
	cached, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return cached
	}

	var match ProtocolMatch
	if i := r.matcher.Best(key, r.labels); i >= 0 {
		match = ProtocolMatch{Name: r.candidates[i].name, ID: r.candidates[i].id}
	}

	r.mu.Lock()
	r.cache[key] = match
	r.mu.Unlock()

	return match
}

// Candidates returns the number of distinct catalog protocols.
func (r *ProtocolResolver) Candidates() int {
	return len(r.candidates)
}

// =============================================================================
// SERVICE RESOLVER
// =============================================================================

type serviceKey struct {
	protocol  string
	potential string
}

type serviceResult struct {
	service types.CatalogService
	found   bool
}

// ServiceResolver finds the catalog service row for a resolved protocol.
type ServiceResolver struct {
	matcher    Matcher
	byProtocol map[string][]types.CatalogService

	mu    sync.Mutex
	cache map[serviceKey]serviceResult
}

// NewServiceResolver indexes the catalog by exact protocol name.
func NewServiceResolver(catalog []types.CatalogService, matcher Matcher) *ServiceResolver {
	r := &ServiceResolver{
		matcher:    matcher,
		byProtocol: make(map[string][]types.CatalogService),
		cache:      make(map[serviceKey]serviceResult),
	}

	for _, svc := range catalog {
		r.byProtocol[svc.Protocol] = append(r.byProtocol[svc.Protocol], svc)
	}

	return r
}

// Resolve returns the catalog row whose service label best matches
// potentialService among the rows of protocol.
//
// RETURNS:
//   - The catalog row and true, or a zero row and false when the protocol has
//     no catalog rows, either argument is blank, or no label clears the
//     threshold.
func (r *ServiceResolver) Resolve(protocol, potentialService string) (types.CatalogService, bool) {
	if protocol == "" || potentialService == "" {
		return types.CatalogService{}, false
	}

	key := serviceKey{protocol: protocol, potential: potentialService}

	r.mu.Lock()
	cached, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return cached.service, cached.found
	}

	var result serviceResult
	if rows := r.byProtocol[protocol]; len(rows) > 0 {
		labels := make([]string, len(rows))
		for i, row := range rows {
			labels[i] = row.Service
		}
		if i := r.matcher.Best(potentialService, labels); i >= 0 {
			result = serviceResult{service: rows[i], found: true}
		}
	}

	r.mu.Lock()
	r.cache[key] = result
	r.mu.Unlock()

	return result.service, result.found
}
