package models

// NewOpenRouterAdapter targets the OpenRouter aggregation API. Text only;
// image and grounding requests degrade to their documented defaults.
func NewOpenRouterAdapter() Adapter {
	return newOpenAICompatible(VendorOpenRouter, "https://openrouter.ai/api/v1", false)
}
