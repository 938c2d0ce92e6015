// Package preset implements a static catalog of named calibration vectors.
package preset

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/pgaskin/kcal/calproto"
	"golang.org/x/image/colornames"
	"gopkg.in/yaml.v3"
)

// None is the index of the synthetic entry selected when a vector doesn't
// match any preset. It is never a valid target.
const None = 0

//go:embed presets.yaml
var defaultYAML []byte

// Entry is a named preset.
type Entry struct {
	Name   string
	Vector calproto.Vector
}

// Catalog is an immutable ordered list of presets. Index 0 is always the
// synthetic [None] entry.
type Catalog struct {
	entries []Entry
}

// New creates a catalog from the provided entries, with custom as the name of
// the [None] entry.
func New(custom string, entries ...Entry) *Catalog {
	c := &Catalog{entries: make([]Entry, 0, len(entries)+1)}
	c.entries = append(c.entries, Entry{Name: custom})
	c.entries = append(c.entries, entries...)
	return c
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Load(bytes.NewReader(defaultYAML))
	if err != nil {
		panic(fmt.Errorf("preset: invalid built-in catalog: %w", err))
	}
	return c
}

type catalogYAML struct {
	Custom  string `yaml:"custom"`
	Presets []struct {
		Name   string `yaml:"name"`
		Vector string `yaml:"vector"`
		Color  string `yaml:"color"` // svg color name
	} `yaml:"presets"`
}

// Load reads a YAML catalog. Each preset has a name and either a vector
// ("r g b") or an SVG 1.1 color keyword.
func Load(r io.Reader) (*Catalog, error) {
	var cy catalogYAML
	if err := yaml.NewDecoder(r).Decode(&cy); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if cy.Custom == "" {
		cy.Custom = "Custom"
	}
	entries := make([]Entry, 0, len(cy.Presets))
	for i, p := range cy.Presets {
		if p.Name == "" {
			return nil, fmt.Errorf("preset %d: missing name", i+1)
		}
		var v calproto.Vector
		switch {
		case p.Vector != "" && p.Color != "":
			return nil, fmt.Errorf("preset %q: vector and color are mutually exclusive", p.Name)
		case p.Vector != "":
			var err error
			if v, err = calproto.Parse(p.Vector); err != nil {
				return nil, fmt.Errorf("preset %q: %w", p.Name, err)
			}
		case p.Color != "":
			c, ok := colornames.Map[strings.ToLower(p.Color)]
			if !ok {
				return nil, fmt.Errorf("preset %q: unknown color %q", p.Name, p.Color)
			}
			v = calproto.Vector{c.R, c.G, c.B}
		default:
			return nil, fmt.Errorf("preset %q: missing vector", p.Name)
		}
		entries = append(entries, Entry{Name: p.Name, Vector: v})
	}
	return New(cy.Custom, entries...), nil
}

// Len returns the number of entries, including [None].
func (c *Catalog) Len() int {
	return len(c.entries)
}

// At gets the entry at index i.
func (c *Catalog) At(i int) (Entry, bool) {
	if i < 0 || i >= len(c.entries) {
		return Entry{}, false
	}
	return c.entries[i], true
}

// IndexOf returns the index of the first preset whose encoded vector is
// identical to the encoding of v, or [None].
func (c *Catalog) IndexOf(v calproto.Vector) int {
	s := v.String()
	for i := None + 1; i < len(c.entries); i++ {
		if c.entries[i].Vector.String() == s {
			return i
		}
	}
	return None
}

// Names returns the names of all entries, including [None].
func (c *Catalog) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Name
	}
	return names
}
