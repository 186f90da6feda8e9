package types //nolint:revive // package name is intentional

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilityRecord_SupportsFeature(t *testing.T) {
	rec := CapabilityRecord{
		ID:       "openai",
		Features: []Feature{FeatureStreaming, FeatureToolUse},
	}

	assert.True(t, rec.SupportsFeature(FeatureStreaming))
	assert.False(t, rec.SupportsFeature(FeatureComputerUse))
}

func TestCapabilityRecord_SupportsEndpoint(t *testing.T) {
	rec := CapabilityRecord{
		ID:        "openai",
		Endpoints: []Endpoint{EndpointChat, EndpointEmbeddings},
	}

	assert.True(t, rec.SupportsEndpoint(EndpointEmbeddings))
	assert.False(t, rec.SupportsEndpoint(EndpointImages))
}
