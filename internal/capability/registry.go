// Package capability implements the Capability Registry (§4.13): a
// static, queryable mapping from provider tag to CapabilityRecord.
package capability

import (
	_ "embed"
	"encoding/json"
	"sort"
	"sync"

	"github.com/exrt/exllm/pkg/types"
)

//go:embed data/capabilities.json
var defaultCapabilities []byte

// Registry holds the loaded capability table, guarded by a RWMutex
// since reloads are rare relative to reads.
type Registry struct {
	mu      sync.RWMutex
	records map[string]types.CapabilityRecord
}

// NewRegistry builds a Registry from the embedded default table.
// Embedded defaults are assumed well-formed; a parse failure here
// indicates the build itself is broken, so it panics rather than
// silently serving an empty registry.
func NewRegistry() *Registry {
	r := &Registry{records: make(map[string]types.CapabilityRecord)}
	if err := r.loadBytes(defaultCapabilities); err != nil {
		panic("capability: embedded default table is invalid: " + err.Error())
	}
	return r
}

// Load merges additional or overriding records from raw JSON, keyed by
// provider tag exactly like the embedded table.
func (r *Registry) Load(data []byte) error {
	return r.loadBytes(data)
}

func (r *Registry) loadBytes(data []byte) error {
	var records map[string]types.CapabilityRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range records {
		r.records[k] = v
	}
	return nil
}

// Get returns the record for provider, ok=false if unknown.
func (r *Registry) Get(provider string) (types.CapabilityRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[provider]
	return rec, ok
}

// Supports reports whether provider supports the named feature or
// endpoint (checked against both vocabularies).
func (r *Registry) Supports(provider string, featureOrEndpoint string) bool {
	rec, ok := r.Get(provider)
	if !ok {
		return false
	}
	return rec.SupportsFeature(types.Feature(featureOrEndpoint)) ||
		rec.SupportsEndpoint(types.Endpoint(featureOrEndpoint))
}

// FindProvidersWithFeatures returns, sorted, every provider tag whose
// record has ALL of the given features (AND semantics).
func (r *Registry) FindProvidersWithFeatures(features []types.Feature) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for tag, rec := range r.records {
		if hasAllFeatures(rec, features) {
			out = append(out, tag)
		}
	}
	sort.Strings(out)
	return out
}

func hasAllFeatures(rec types.CapabilityRecord, required []types.Feature) bool {
	for _, f := range required {
		if !rec.SupportsFeature(f) {
			return false
		}
	}
	return true
}

// GetAuthMethods returns provider's authentication schemes.
func (r *Registry) GetAuthMethods(provider string) []types.AuthScheme {
	rec, ok := r.Get(provider)
	if !ok {
		return nil
	}
	return rec.Authentication
}

// GetEndpoints returns provider's supported endpoints.
func (r *Registry) GetEndpoints(provider string) []types.Endpoint {
	rec, ok := r.Get(provider)
	if !ok {
		return nil
	}
	return rec.Endpoints
}

// GetLimitations returns provider's free-form limitations map.
func (r *Registry) GetLimitations(provider string) map[string]any {
	rec, ok := r.Get(provider)
	if !ok {
		return nil
	}
	return rec.Limitations
}

// ListProviders returns every known provider tag, sorted.
func (r *Registry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.records))
	for tag := range r.records {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Comparison is compare_providers's result shape: the union of
// features/endpoints seen across the compared providers, plus each
// provider's own breakdown.
type Comparison struct {
	Providers    []string                         `json:"providers"`
	AllFeatures  []types.Feature                   `json:"all_features"`
	AllEndpoints []types.Endpoint                  `json:"all_endpoints"`
	Breakdown    map[string]types.CapabilityRecord `json:"breakdown"`
}

// CompareProviders builds a Comparison across the named providers.
// Unknown provider tags are silently skipped.
func (r *Registry) CompareProviders(providers []string) Comparison {
	cmp := Comparison{Breakdown: make(map[string]types.CapabilityRecord)}
	featureSet := map[types.Feature]struct{}{}
	endpointSet := map[types.Endpoint]struct{}{}

	for _, tag := range providers {
		rec, ok := r.Get(tag)
		if !ok {
			continue
		}
		cmp.Providers = append(cmp.Providers, tag)
		cmp.Breakdown[tag] = rec
		for _, f := range rec.Features {
			featureSet[f] = struct{}{}
		}
		for _, e := range rec.Endpoints {
			endpointSet[e] = struct{}{}
		}
	}

	for f := range featureSet {
		cmp.AllFeatures = append(cmp.AllFeatures, f)
	}
	for e := range endpointSet {
		cmp.AllEndpoints = append(cmp.AllEndpoints, e)
	}
	sort.Slice(cmp.AllFeatures, func(i, j int) bool { return cmp.AllFeatures[i] < cmp.AllFeatures[j] })
	sort.Slice(cmp.AllEndpoints, func(i, j int) bool { return cmp.AllEndpoints[i] < cmp.AllEndpoints[j] })
	return cmp
}

// Recommendation request for RecommendProviders.
type Recommendation struct {
	RequiredFeatures  []types.Feature
	PreferredFeatures []types.Feature
	ExcludeProviders  []string
	PreferLocal       bool
}

// ScoredProvider is one entry in RecommendProviders's ranked result.
type ScoredProvider struct {
	Provider string  `json:"provider"`
	Score    float64 `json:"score"`
}

// preferLocalBoost is the score nudge applied when PreferLocal is set
// and the candidate is flagged "local" in its limitations map, per
// §4.13's scoring rule.
const preferLocalBoost = 0.25

// RecommendProviders scores every provider not excluded and with all
// RequiredFeatures present: 1 point per required feature (already
// guaranteed, since a missing one filters the provider out entirely —
// scored anyway so ties among fully-qualified providers still reflect
// breadth), 0.5 per matched preferred feature, plus a small boost when
// PreferLocal matches. Stable sort descending by score.
func (r *Registry) RecommendProviders(req Recommendation) []ScoredProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	excluded := make(map[string]struct{}, len(req.ExcludeProviders))
	for _, p := range req.ExcludeProviders {
		excluded[p] = struct{}{}
	}

	var out []ScoredProvider
	for tag, rec := range r.records {
		if _, skip := excluded[tag]; skip {
			continue
		}
		if !hasAllFeatures(rec, req.RequiredFeatures) {
			continue
		}

		score := float64(len(req.RequiredFeatures))
		for _, f := range req.PreferredFeatures {
			if rec.SupportsFeature(f) {
				score += 0.5
			}
		}
		if req.PreferLocal {
			if local, _ := rec.Limitations["local"].(bool); local {
				score += preferLocalBoost
			}
		}
		out = append(out, ScoredProvider{Provider: tag, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
