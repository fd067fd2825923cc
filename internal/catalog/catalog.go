// Package catalog exposes the static tag, platform, and model catalogs.
// The catalogs are configuration data shipped with the binary.
package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed tags.yaml
var tagsYAML []byte

//go:embed platforms.yaml
var platformsYAML []byte

//go:embed models.yaml
var modelsYAML []byte

// ImageModelNone is the sentinel that disables image generation.
const ImageModelNone = "none"

// corePrefix marks tags that feed core generation logic (NSFW instruction
// assembly, behavioral rules) rather than plain labeling.
const corePrefix = "core-"

// Tag is one entry of the tag catalog.
type Tag struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	// Rule is an instruction fragment injected into prompts for core tags.
	Rule string `yaml:"rule,omitempty"`
	NSFW bool   `yaml:"nsfw,omitempty"`
}

// Core reports whether the tag participates in core generation logic.
func (t Tag) Core() bool {
	return strings.HasPrefix(t.ID, corePrefix)
}

// Platform describes a target role-play platform and its required field labels.
type Platform struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	Fields []string `yaml:"fields"`
}

// Model maps a selectable model identifier onto a vendor adapter.
type Model struct {
	ID     string `yaml:"id"`
	Vendor string `yaml:"vendor"`
	Image  bool   `yaml:"image,omitempty"`
}

// Catalog bundles the three static tables.
type Catalog struct {
	Tags      []Tag
	Platforms []Platform
	Models    []Model

	tagsByID      map[string]Tag
	platformsByID map[string]Platform
	modelsByID    map[string]Model
}

// Load parses the embedded catalogs.
func Load() (*Catalog, error) {
	var tags struct {
		Tags []Tag `yaml:"tags"`
	}
	if err := yaml.Unmarshal(tagsYAML, &tags); err != nil {
		return nil, fmt.Errorf("failed to parse tag catalog: %w", err)
	}

	var platforms struct {
		Platforms []Platform `yaml:"platforms"`
	}
	if err := yaml.Unmarshal(platformsYAML, &platforms); err != nil {
		return nil, fmt.Errorf("failed to parse platform catalog: %w", err)
	}

	var models struct {
		Models []Model `yaml:"models"`
	}
	if err := yaml.Unmarshal(modelsYAML, &models); err != nil {
		return nil, fmt.Errorf("failed to parse model catalog: %w", err)
	}

	c := &Catalog{
		Tags:          tags.Tags,
		Platforms:     platforms.Platforms,
		Models:        models.Models,
		tagsByID:      make(map[string]Tag, len(tags.Tags)),
		platformsByID: make(map[string]Platform, len(platforms.Platforms)),
		modelsByID:    make(map[string]Model, len(models.Models)),
	}
	for _, t := range c.Tags {
		c.tagsByID[t.ID] = t
	}
	for _, p := range c.Platforms {
		c.platformsByID[p.ID] = p
	}
	for _, m := range c.Models {
		c.modelsByID[m.ID] = m
	}
	return c, nil
}

// Tag resolves a tag id against the catalog.
func (c *Catalog) Tag(id string) (Tag, bool) {
	t, ok := c.tagsByID[id]
	return t, ok
}

// ResolveTags maps free-form tag ids to catalog entries, dropping unknowns.
func (c *Catalog) ResolveTags(ids []string) []Tag {
	resolved := make([]Tag, 0, len(ids))
	for _, id := range ids {
		if t, ok := c.tagsByID[id]; ok {
			resolved = append(resolved, t)
		}
	}
	return resolved
}

// Platform resolves a platform id against the catalog.
func (c *Catalog) Platform(id string) (Platform, bool) {
	p, ok := c.platformsByID[id]
	return p, ok
}

// RequiredLabels returns the union of required field labels for the given
// platforms, preserving first-seen order. On label collision across
// platforms, last-resolved-wins applies downstream; the union itself keeps
// one entry per label.
func (c *Catalog) RequiredLabels(platformIDs []string) []string {
	seen := make(map[string]bool)
	var labels []string
	for _, id := range platformIDs {
		p, ok := c.platformsByID[id]
		if !ok {
			continue
		}
		for _, label := range p.Fields {
			if seen[label] {
				continue
			}
			seen[label] = true
			labels = append(labels, label)
		}
	}
	return labels
}

// Model resolves a model id against the catalog.
func (c *Catalog) Model(id string) (Model, bool) {
	m, ok := c.modelsByID[id]
	return m, ok
}

// ImageEnabled reports whether the given image model selection enables
// image generation.
func ImageEnabled(imageModelID string) bool {
	return imageModelID != "" && imageModelID != ImageModelNone
}
