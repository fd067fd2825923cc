// Package bundle packs a character record into a self-describing archive
// and recovers an equivalent record from one.
package bundle

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/easeaico/persona-studio/internal/media"
	"github.com/easeaico/persona-studio/internal/types"
)

// FormatVersion identifies the archive layout.
const FormatVersion = 1

const (
	manifestName  = "manifest.json"
	characterName = "character.json"
	markdownName  = "character.md"
)

// manifest is the archive's self-description.
type manifest struct {
	Version   int             `json:"version"`
	Character string          `json:"character"`
	Markdown  string          `json:"markdown"`
	Images    []imageManifest `json:"images,omitempty"`
}

// imageManifest records one extracted binary attachment.
type imageManifest struct {
	Kind Kind   `json:"kind"`
	File string `json:"file"`
	MIME string `json:"mime"`
}

// Kind names an image slot inside the archive.
type Kind string

const (
	KindCharacter Kind = "character"
	KindScenario  Kind = "scenario"
)

// Export serializes the record into a zip archive: JSON payload, derived
// markdown, and any inline images extracted as binary attachments.
func Export(record *types.CharacterRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("record cannot be nil")
	}

	exported := record.Clone()
	m := manifest{
		Version:   FormatVersion,
		Character: characterName,
		Markdown:  markdownName,
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	// Inline image data moves into binary attachments so the JSON stays
	// readable; hosted URLs stay in the JSON untouched.
	for _, slot := range []struct {
		kind Kind
		url  *string
	}{
		{KindCharacter, &exported.CharacterImageURL},
		{KindScenario, &exported.ScenarioImageURL},
	} {
		if !strings.HasPrefix(*slot.url, "data:") {
			continue
		}
		mimeType, payload, err := media.DecodeDataURI(*slot.url)
		if err != nil {
			return nil, fmt.Errorf("failed to extract %s image: %w", slot.kind, err)
		}
		file := fmt.Sprintf("images/%s%s", slot.kind, extensionForMIME(mimeType))
		if err := writeEntry(zw, file, payload); err != nil {
			return nil, err
		}
		m.Images = append(m.Images, imageManifest{Kind: slot.kind, File: file, MIME: mimeType})
		*slot.url = ""
	}

	payload, err := json.MarshalIndent(exported, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode character: %w", err)
	}
	if err := writeEntry(zw, characterName, payload); err != nil {
		return nil, err
	}

	markdown, err := renderMarkdown(exported)
	if err != nil {
		return nil, err
	}
	if err := writeEntry(zw, markdownName, []byte(markdown)); err != nil {
		return nil, err
	}

	manifestPayload, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := writeEntry(zw, manifestName, manifestPayload); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

// Import recovers the record from an archive. Identity is dropped so the
// importer persists it as a new record.
func Import(data []byte) (*types.CharacterRecord, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	var m manifest
	if err := readJSONEntry(zr, manifestName, &m); err != nil {
		return nil, err
	}
	if m.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported bundle version: %d", m.Version)
	}

	var record types.CharacterRecord
	if err := readJSONEntry(zr, m.Character, &record); err != nil {
		return nil, err
	}

	for _, img := range m.Images {
		payload, err := readEntry(zr, img.File)
		if err != nil {
			return nil, err
		}
		uri := media.EncodeDataURI(img.MIME, payload)
		switch img.Kind {
		case KindCharacter:
			record.CharacterImageURL = uri
		case KindScenario:
			record.ScenarioImageURL = uri
		}
	}

	// Identity is regenerated on save.
	record.ID = ""
	record.UserID = ""
	return &record, nil
}

func writeEntry(zw *zip.Writer, name string, payload []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create archive entry %s: %w", name, err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write archive entry %s: %w", name, err)
	}
	return nil
}

func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, fmt.Errorf("missing archive entry %s: %w", name, err)
	}
	defer f.Close()
	payload, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive entry %s: %w", name, err)
	}
	return payload, nil
}

func readJSONEntry(zr *zip.Reader, name string, v any) error {
	payload, err := readEntry(zr, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("failed to decode archive entry %s: %w", name, err)
	}
	return nil
}

func extensionForMIME(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
