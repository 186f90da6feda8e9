package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exrt/exllm/pkg/types"
)

func TestRegistry_ListProvidersIncludesAllEleven(t *testing.T) {
	r := NewRegistry()
	got := r.ListProviders()
	want := []string{
		"anthropic", "bedrock", "gemini", "groq", "local", "mistral",
		"ollama", "openai", "openrouter", "perplexity", "xai",
	}
	assert.Equal(t, want, got)
}

func TestRegistry_Supports(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.Supports("openai", "streaming"))
	assert.True(t, r.Supports("openai", "chat"))
	assert.False(t, r.Supports("ollama", "cost_tracking"))
	assert.False(t, r.Supports("does-not-exist", "chat"))
}

func TestRegistry_FindProvidersWithFeatures_ANDSemantics(t *testing.T) {
	r := NewRegistry()
	got := r.FindProvidersWithFeatures([]types.Feature{types.FeatureVision, types.FeatureToolUse})
	require.NotEmpty(t, got)
	for _, tag := range got {
		rec, ok := r.Get(tag)
		require.True(t, ok)
		assert.True(t, rec.SupportsFeature(types.FeatureVision))
		assert.True(t, rec.SupportsFeature(types.FeatureToolUse))
	}
}

func TestRegistry_CompareProviders(t *testing.T) {
	r := NewRegistry()
	cmp := r.CompareProviders([]string{"openai", "anthropic", "unknown-provider"})
	assert.ElementsMatch(t, []string{"openai", "anthropic"}, cmp.Providers)
	assert.Contains(t, cmp.AllFeatures, types.FeatureVision)
	assert.Len(t, cmp.Breakdown, 2)
}

func TestRegistry_RecommendProviders_FiltersAndScores(t *testing.T) {
	r := NewRegistry()
	out := r.RecommendProviders(Recommendation{
		RequiredFeatures:  []types.Feature{types.FeatureStreaming, types.FeatureToolUse},
		PreferredFeatures: []types.Feature{types.FeatureVision},
	})
	require.NotEmpty(t, out)
	for _, sp := range out {
		rec, _ := r.Get(sp.Provider)
		assert.True(t, rec.SupportsFeature(types.FeatureStreaming))
		assert.True(t, rec.SupportsFeature(types.FeatureToolUse))
	}
	// Descending by score.
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].Score, out[i].Score)
	}
}

func TestRegistry_RecommendProviders_PreferLocalBoost(t *testing.T) {
	r := NewRegistry()
	out := r.RecommendProviders(Recommendation{
		RequiredFeatures: []types.Feature{types.FeatureStreaming},
		PreferLocal:      true,
	})

	var localScore, remoteScore float64
	for _, sp := range out {
		if sp.Provider == "local" {
			localScore = sp.Score
		}
		if sp.Provider == "groq" {
			remoteScore = sp.Score
		}
	}
	assert.Greater(t, localScore, remoteScore)
}

func TestRegistry_ExcludeProviders(t *testing.T) {
	r := NewRegistry()
	out := r.RecommendProviders(Recommendation{
		RequiredFeatures: []types.Feature{types.FeatureStreaming},
		ExcludeProviders: []string{"openai"},
	})
	for _, sp := range out {
		assert.NotEqual(t, "openai", sp.Provider)
	}
}
