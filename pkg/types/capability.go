package types //nolint:revive // package name is intentional

// Endpoint names a surface a provider exposes.
type Endpoint string

const (
	EndpointChat        Endpoint = "chat"
	EndpointEmbeddings   Endpoint = "embeddings"
	EndpointImages       Endpoint = "images"
	EndpointAudio        Endpoint = "audio"
	EndpointCompletions  Endpoint = "completions"
	EndpointFineTuning   Endpoint = "fine_tuning"
	EndpointFiles        Endpoint = "files"
)

// AuthScheme names a provider's authentication mechanism.
type AuthScheme string

const (
	AuthAPIKey       AuthScheme = "api_key"
	AuthOAuth        AuthScheme = "oauth"
	AuthAWSSignature AuthScheme = "aws_signature"
	AuthServiceAcct  AuthScheme = "service_account"
	AuthBearerToken  AuthScheme = "bearer_token"
)

// Feature names an optional capability a provider may support.
type Feature string

const (
	FeatureStreaming            Feature = "streaming"
	FeatureFunctionCalling      Feature = "function_calling"
	FeatureCostTracking         Feature = "cost_tracking"
	FeatureUsageTracking        Feature = "usage_tracking"
	FeatureDynamicModelListing  Feature = "dynamic_model_listing"
	FeatureBatchOperations      Feature = "batch_operations"
	FeatureFileUploads          Feature = "file_uploads"
	FeatureRateLimitingHeaders  Feature = "rate_limiting_headers"
	FeatureSystemMessages       Feature = "system_messages"
	FeatureJSONMode             Feature = "json_mode"
	FeatureContextCaching       Feature = "context_caching"
	FeatureVision               Feature = "vision"
	FeatureAudioInput           Feature = "audio_input"
	FeatureAudioOutput          Feature = "audio_output"
	FeatureWebSearch            Feature = "web_search"
	FeatureToolUse              Feature = "tool_use"
	FeatureComputerUse          Feature = "computer_use"
)

// CapabilityRecord describes what a provider can do, independent of any
// live request. The Capability Registry (§4.13) embeds one record per
// provider, built from the authoritative table in §6.
type CapabilityRecord struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Endpoints      []Endpoint     `json:"endpoints"`
	Authentication []AuthScheme   `json:"authentication"`
	Features       []Feature      `json:"features"`
	Limitations    map[string]any `json:"limitations,omitempty"`
}

// SupportsFeature reports whether the record lists feature f.
func (c CapabilityRecord) SupportsFeature(f Feature) bool {
	for _, have := range c.Features {
		if have == f {
			return true
		}
	}
	return false
}

// SupportsEndpoint reports whether the record lists endpoint e.
func (c CapabilityRecord) SupportsEndpoint(e Endpoint) bool {
	for _, have := range c.Endpoints {
		if have == e {
			return true
		}
	}
	return false
}
