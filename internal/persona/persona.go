package persona

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persona describes the companion: how it is prompted and the content the
// site shows around the chat.
type Persona struct {
	Name     string        `yaml:"name"`
	System   string        `yaml:"system"`
	Greeting []string      `yaml:"greeting"`
	Style    Style         `yaml:"style"`
	Gallery  []GalleryItem `yaml:"gallery"`
	About    []string      `yaml:"about"`
}

type Style struct {
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// GalleryItem references an externally hosted image by URL.
type GalleryItem struct {
	Title string `yaml:"title" json:"title"`
	Desc  string `yaml:"desc" json:"desc"`
	Image string `yaml:"image" json:"image"`
}

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 300
)

// Default is used when no persona file is present.
func Default() Persona {
	p := Persona{
		Name:   "Seiko",
		System: "You are Seiko, a gentle and elegant virtual companion. Reply warmly and briefly.",
		Greeting: []string{
			"Welcome to Seiko AI. I'm honored to be your virtual companion ✨",
			"Let me assist in making your moments more meaningful 💫",
		},
	}
	p.applyDefaults()
	return p
}

// Load reads a persona YAML file. A missing file yields Default().
func Load(path string) (Persona, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Persona{}, err
	}
	return Parse(b)
}

func Parse(b []byte) (Persona, error) {
	var p Persona
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Persona{}, fmt.Errorf("parse persona: %w", err)
	}
	if strings.TrimSpace(p.System) == "" {
		return Persona{}, fmt.Errorf("parse persona: system prompt is required")
	}
	p.applyDefaults()
	return p, nil
}

func (p *Persona) applyDefaults() {
	if strings.TrimSpace(p.Name) == "" {
		p.Name = "Seiko"
	}
	if p.Style.Temperature <= 0 {
		p.Style.Temperature = defaultTemperature
	}
	if p.Style.MaxTokens <= 0 {
		p.Style.MaxTokens = defaultMaxTokens
	}
	items := p.Gallery[:0]
	for _, it := range p.Gallery {
		if strings.TrimSpace(it.Image) != "" {
			items = append(items, it)
		}
	}
	p.Gallery = items
}
