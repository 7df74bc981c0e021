/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cities resolves free-form city input to the canonical cities the
// schedule source understands.
package cities

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/andref2015/train-agent/internal/models"
)

//go:embed cities.yaml
var defaultTable []byte

type table struct {
	Cities []models.City `yaml:"cities"`
}

// Resolver is an immutable alias index over the canonical city table.
type Resolver struct {
	cities []models.City
	index  map[string]int
}

// New builds a resolver. Each city's canonical name is always an alias of
// itself; an alias claimed by two different cities is an error.
func New(cities []models.City) (*Resolver, error) {
	if len(cities) == 0 {
		return nil, fmt.Errorf("city table is empty")
	}

	r := &Resolver{
		cities: make([]models.City, 0, len(cities)),
		index:  make(map[string]int),
	}

	for _, c := range cities {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("city table entry without a name")
		}
		pos := len(r.cities)
		city := models.City{Name: name, Aliases: append([]string(nil), c.Aliases...)}

		for _, alias := range append([]string{name}, c.Aliases...) {
			key := Fold(alias)
			if key == "" {
				continue
			}
			if prev, ok := r.index[key]; ok && prev != pos {
				return nil, fmt.Errorf("alias %q claimed by both %s and %s", alias, r.cities[prev].Name, name)
			}
			r.index[key] = pos
		}
		r.cities = append(r.cities, city)
	}

	return r, nil
}

// Default returns the resolver over the embedded table.
func Default() *Resolver {
	r, err := Load(bytes.NewReader(defaultTable))
	if err != nil {
		panic(fmt.Sprintf("embedded city table: %v", err))
	}
	return r
}

// Load parses a YAML city table.
func Load(src io.Reader) (*Resolver, error) {
	var t table
	if err := yaml.NewDecoder(src).Decode(&t); err != nil {
		return nil, fmt.Errorf("decode city table: %w", err)
	}
	return New(t.Cities)
}

// LoadFile parses a YAML city table from path, or returns the embedded table
// when path is empty.
func LoadFile(path string) (*Resolver, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open city table: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Resolve maps input to its canonical city.
func (r *Resolver) Resolve(input string) (models.City, error) {
	if pos, ok := r.index[Fold(input)]; ok {
		return r.cities[pos], nil
	}
	names := r.Names()
	return models.City{}, &models.QueryError{
		Kind:      models.ErrUnsupportedCity,
		Detail:    fmt.Sprintf("Unknown city '%s'. Available cities: %s", strings.TrimSpace(input), strings.Join(names, ", ")),
		Supported: names,
	}
}

// Names returns the canonical names in table order.
func (r *Resolver) Names() []string {
	names := make([]string, len(r.cities))
	for i, c := range r.cities {
		names[i] = c.Name
	}
	return names
}

// Cities returns a copy of the canonical table.
func (r *Resolver) Cities() []models.City {
	out := make([]models.City, len(r.cities))
	for i, c := range r.cities {
		out[i] = models.City{Name: c.Name, Aliases: append([]string(nil), c.Aliases...)}
	}
	return out
}

// Fold normalizes s for alias lookup: surrounding and repeated whitespace,
// letter case and combining marks are all discarded.
func Fold(s string) string {
	// Transformers keep state, so the chain is built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), cases.Fold(), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = strings.ToLower(s)
	}
	return strings.Join(strings.Fields(folded), " ")
}
