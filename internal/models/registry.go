package models

import (
	"fmt"
	"sync"
)

// Registry caches one long-lived adapter per vendor and injects the
// caller's credential before handing it out. Instance creation is
// idempotent under concurrent first use.
type Registry struct {
	aspectRatio string

	mu       sync.Mutex
	adapters map[string]Adapter
	// ambient holds environment credentials; the built-in default vendor
	// is always usable without a stored per-user secret.
	ambient map[string]string
}

// NewRegistry creates a Registry. ambient maps vendor ids to environment
// credentials.
func NewRegistry(ambient map[string]string, aspectRatio string) *Registry {
	return &Registry{
		aspectRatio: aspectRatio,
		adapters:    make(map[string]Adapter),
		ambient:     ambient,
	}
}

// Get returns the cached adapter for the vendor, creating it on first use.
// A non-empty credential overrides the ambient one for subsequent calls,
// which supports per-request key rotation without rebuilding adapters.
func (r *Registry) Get(vendor, credential string) (Adapter, error) {
	r.mu.Lock()
	adapter, ok := r.adapters[vendor]
	if !ok {
		var err error
		adapter, err = r.build(vendor)
		if err != nil {
			r.mu.Unlock()
			return nil, err
		}
		r.adapters[vendor] = adapter
	}
	if credential == "" {
		credential = r.ambient[vendor]
	}
	r.mu.Unlock()

	if credential != "" {
		adapter.SetCredential(credential)
	}
	return adapter, nil
}

func (r *Registry) build(vendor string) (Adapter, error) {
	switch vendor {
	case VendorGemini:
		return NewGeminiAdapter(r.aspectRatio), nil
	case VendorGrok:
		return NewGrokAdapter(), nil
	case VendorOpenAI:
		return NewOpenAIAdapter(), nil
	case VendorOpenRouter:
		return NewOpenRouterAdapter(), nil
	default:
		return nil, fmt.Errorf("unknown vendor: %s", vendor)
	}
}
