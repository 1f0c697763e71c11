// Package theme holds the colour palettes shared by the web page and the terminal UI.
package theme

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const Default = "midnight"

// Theme is a named palette. All colours are #rrggbb.
type Theme struct {
	Name       string `yaml:"name"`
	Background string `yaml:"background"`
	Surface    string `yaml:"surface"`
	Text       string `yaml:"text"`
	Muted      string `yaml:"muted"`
	Accent     string `yaml:"accent"`
	UserBubble string `yaml:"user_bubble"`
	UserText   string `yaml:"user_text"`
	BotBubble  string `yaml:"bot_bubble"`
	BotText    string `yaml:"bot_text"`
	CodeStyle  string `yaml:"code_style"`
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Validate checks that every colour is set and well formed.
func (t Theme) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("theme name is empty")
	}
	colors := map[string]string{
		"background":  t.Background,
		"surface":     t.Surface,
		"text":        t.Text,
		"muted":       t.Muted,
		"accent":      t.Accent,
		"user_bubble": t.UserBubble,
		"user_text":   t.UserText,
		"bot_bubble":  t.BotBubble,
		"bot_text":    t.BotText,
	}
	for field, value := range colors {
		if !hexColor.MatchString(value) {
			return fmt.Errorf("theme %q: %s %q is not a #rrggbb colour", t.Name, field, value)
		}
	}
	return nil
}

var builtin = []Theme{
	{
		Name:       "midnight",
		Background: "#181c24",
		Surface:    "#202534",
		Text:       "#e6e9ef",
		Muted:      "#b0b8c9",
		Accent:     "#2a8080",
		UserBubble: "#1e5c5c",
		UserText:   "#ffffff",
		BotBubble:  "#283046",
		BotText:    "#e6e9ef",
		CodeStyle:  "onedark",
	},
	{
		Name:       "indigo",
		Background: "#111827",
		Surface:    "#1f2937",
		Text:       "#ffffff",
		Muted:      "#9ca3af",
		Accent:     "#6366f1",
		UserBubble: "#4f46e5",
		UserText:   "#ffffff",
		BotBubble:  "#374151",
		BotText:    "#f3f4f6",
		CodeStyle:  "onedark",
	},
	{
		Name:       "paper",
		Background: "#f7f7f5",
		Surface:    "#ffffff",
		Text:       "#1f2328",
		Muted:      "#6e7781",
		Accent:     "#0969da",
		UserBubble: "#0969da",
		UserText:   "#ffffff",
		BotBubble:  "#eaeef2",
		BotText:    "#1f2328",
		CodeStyle:  "github",
	},
}

// Registry is the set of themes available at runtime.
type Registry struct {
	themes      map[string]Theme
	defaultName string
}

// NewRegistry returns the built-in themes with defaultName as fallback.
func NewRegistry(defaultName string) *Registry {
	r := &Registry{themes: make(map[string]Theme, len(builtin))}
	for _, t := range builtin {
		r.themes[t.Name] = t
	}
	r.defaultName = Default
	if _, ok := r.themes[normalize(defaultName)]; ok {
		r.defaultName = normalize(defaultName)
	}
	return r
}

type themeFile struct {
	Default string  `yaml:"default"`
	Themes  []Theme `yaml:"themes"`
}

// LoadFile adds or replaces themes from a YAML file:
//
//	default: ocean
//	themes:
//	  - name: ocean
//	    background: "#001f3f"
//	    ...
func (r *Registry) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read theme file: %w", err)
	}

	var file themeFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse theme file %s: %w", path, err)
	}
	for _, t := range file.Themes {
		t.Name = normalize(t.Name)
		if base, ok := r.themes[t.Name]; ok && t.CodeStyle == "" {
			t.CodeStyle = base.CodeStyle
		}
		if err := t.Validate(); err != nil {
			return err
		}
		r.themes[t.Name] = t
	}
	if def := normalize(file.Default); def != "" {
		if _, ok := r.themes[def]; !ok {
			return fmt.Errorf("theme file default %q is not defined", file.Default)
		}
		r.defaultName = def
	}
	return nil
}

// Lookup returns the named theme, or the default one when name is unknown.
func (r *Registry) Lookup(name string) Theme {
	if t, ok := r.themes[normalize(name)]; ok {
		return t
	}
	return r.themes[r.defaultName]
}

// Has reports whether name is a known theme.
func (r *Registry) Has(name string) bool {
	_, ok := r.themes[normalize(name)]
	return ok
}

// normalize is the registry key for a theme name; names are case-insensitive.
func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *Registry) DefaultName() string {
	return r.defaultName
}

// Names lists the theme names in alphabetical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.themes))
	for name := range r.themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
