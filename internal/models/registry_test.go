package models

import (
	"sync"
	"testing"
)

func TestRegistryCachesAdapters(t *testing.T) {
	r := NewRegistry(map[string]string{VendorGrok: "ambient-key"}, "3:4")

	a, err := r.Get(VendorGrok, "")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	b, err := r.Get(VendorGrok, "user-key")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if a != b {
		t.Fatalf("expected one cached adapter per vendor")
	}
	if a.Vendor() != VendorGrok {
		t.Fatalf("unexpected vendor: %s", a.Vendor())
	}
}

func TestRegistryUnknownVendor(t *testing.T) {
	r := NewRegistry(nil, "3:4")
	if _, err := r.Get("acme", ""); err == nil {
		t.Fatalf("expected error for unknown vendor")
	}
}

func TestRegistryConcurrentFirstUse(t *testing.T) {
	r := NewRegistry(nil, "3:4")

	const workers = 16
	adapters := make([]Adapter, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := r.Get(VendorOpenAI, "key")
			if err != nil {
				t.Errorf("Get returned error: %v", err)
				return
			}
			adapters[i] = a
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if adapters[i] != adapters[0] {
			t.Fatalf("concurrent first use must converge on one instance")
		}
	}
}

func TestRegistryBuildsEveryKnownVendor(t *testing.T) {
	r := NewRegistry(nil, "3:4")
	for _, vendor := range []string{VendorGemini, VendorGrok, VendorOpenAI, VendorOpenRouter} {
		a, err := r.Get(vendor, "key")
		if err != nil {
			t.Fatalf("Get(%s) returned error: %v", vendor, err)
		}
		if a.Vendor() != vendor {
			t.Fatalf("expected vendor %s, got %s", vendor, a.Vendor())
		}
	}
}
