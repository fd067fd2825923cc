package models

// NewGrokAdapter targets the x.ai API. Grok has no image endpoint here, so
// GenerateImage degrades to "no image produced".
func NewGrokAdapter() Adapter {
	return newOpenAICompatible(VendorGrok, "https://api.x.ai/v1", false)
}
