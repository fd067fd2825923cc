package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStoreWritesDecodedImage(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, "/media/")
	if err != nil {
		t.Fatalf("NewDiskStore returned error: %v", err)
	}

	uri := EncodeDataURI("image/png", []byte{0x89, 0x50, 0x4e, 0x47})
	url, err := store.Store(context.Background(), "user-1", uri, "character")
	if err != nil {
		t.Fatalf("Store returned error: %v", err)
	}
	if !strings.HasPrefix(url, "/media/user-1/character-") || !strings.HasSuffix(url, ".png") {
		t.Fatalf("unexpected public url: %s", url)
	}

	name := url[strings.LastIndex(url, "/")+1:]
	payload, err := os.ReadFile(filepath.Join(dir, "user-1", name))
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if len(payload) != 4 || payload[0] != 0x89 {
		t.Fatalf("unexpected stored payload: %v", payload)
	}
}

func TestStoreUnusableDataDegrades(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), "/media")
	if err != nil {
		t.Fatalf("NewDiskStore returned error: %v", err)
	}
	url, err := store.Store(context.Background(), "user-1", "not a data uri", "character")
	if err != nil || url != "" {
		t.Fatalf("unusable data must degrade to empty url, got %q %v", url, err)
	}
}

func TestDataURIRoundTrip(t *testing.T) {
	uri := EncodeDataURI("image/jpeg", []byte{1, 2, 3})
	mimeType, payload, err := DecodeDataURI(uri)
	if err != nil {
		t.Fatalf("DecodeDataURI returned error: %v", err)
	}
	if mimeType != "image/jpeg" || len(payload) != 3 {
		t.Fatalf("unexpected decode result: %s %v", mimeType, payload)
	}
}

func TestDecodeDataURIRejectsPlainURL(t *testing.T) {
	if _, _, err := DecodeDataURI("https://example.com/a.png"); err == nil {
		t.Fatalf("expected error for non data URI")
	}
}
