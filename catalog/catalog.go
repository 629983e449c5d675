// Package catalog holds the kernels a document may start. The host
// environment supplies one Spec per installable language runtime with its
// display color and start instructions; the catalog resolves the tags that
// appear in cells and directives to those specs.
package catalog

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
)

// Spec describes one kernel. It mirrors the kernel-list tuple of the
// notebook frontend: display name, kernel name, language, color, options.
type Spec struct {
	// Name is the display name and the tag used by %use, e.g. "R".
	Name string `json:"name" yaml:"name" toml:"name"`
	// Kernel is the runtime's own kernel name, e.g. "ir".
	Kernel string `json:"kernel,omitempty" yaml:"kernel,omitempty" toml:"kernel,omitempty"`
	// Language selects the bridge type system, e.g. "R" or "Python".
	Language string `json:"language,omitempty" yaml:"language,omitempty" toml:"language,omitempty"`
	Color    Color  `json:"color,omitempty" yaml:"color,omitempty" toml:"color,omitempty"`
	// Options are passed through to the driver untouched.
	Options map[string]string `json:"options,omitempty" yaml:"options,omitempty" toml:"options,omitempty"`
	// Driver names the engine driver that starts this kernel.
	Driver  string   `json:"driver" yaml:"driver" toml:"driver"`
	Command []string `json:"command,omitempty" yaml:"command,omitempty" toml:"command,omitempty"`
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty" toml:"aliases,omitempty"`
}

// Validate checks the fields required to start a kernel.
func (s Spec) Validate() error {
	if s.Name == "" {
		return ErrEmptyName
	}
	if s.Driver == "" {
		return fmt.Errorf("kernel %q: driver is required", s.Name)
	}
	if _, err := s.Color.RGB(); err != nil {
		return fmt.Errorf("kernel %q: %w", s.Name, err)
	}
	return nil
}

// TypeSystem returns the language whose type system values are converted
// to when entering this kernel. Defaults to the display name.
func (s Spec) TypeSystem() string {
	if s.Language != "" {
		return s.Language
	}
	return s.Name
}

// Catalog is the set of known kernels. Safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

// New creates a Catalog from specs. Names must be unique.
func New(specs ...Spec) (*Catalog, error) {
	c := &Catalog{specs: make(map[string]Spec, len(specs))}
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		if _, exists := c.specs[spec.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, spec.Name)
		}
		c.specs[spec.Name] = spec
	}
	return c, nil
}

// Update merges specs into the catalog. Existing kernels keep their entry
// but take the newer fields; new kernels are added. Kernels missing from
// specs are left in place since live sessions may still reference them.
func (c *Catalog) Update(specs ...Spec) error {
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, spec := range specs {
		c.specs[spec.Name] = spec
	}
	return nil
}

// Lookup finds the spec for a tag. Display names, kernel names, and aliases
// match exactly first; a case-insensitive match is tried after.
func (c *Catalog) Lookup(tag string) (Spec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if spec, ok := c.specs[tag]; ok {
		return spec, true
	}
	for _, name := range c.sortedNames() {
		spec := c.specs[name]
		if spec.Kernel == tag || slices.Contains(spec.Aliases, tag) {
			return spec, true
		}
	}
	for _, name := range c.sortedNames() {
		spec := c.specs[name]
		if strings.EqualFold(spec.Name, tag) || strings.EqualFold(spec.Kernel, tag) {
			return spec, true
		}
		for _, alias := range spec.Aliases {
			if strings.EqualFold(alias, tag) {
				return spec, true
			}
		}
	}
	return Spec{}, false
}

// Resolve is Lookup that reports ErrUnknownKernel, naming the closest
// known kernel when one is near.
func (c *Catalog) Resolve(tag string) (Spec, error) {
	if spec, ok := c.Lookup(tag); ok {
		return spec, nil
	}
	if suggestion, ok := c.Suggest(tag); ok {
		return Spec{}, fmt.Errorf("%w: %s (did you mean %s?)", ErrUnknownKernel, tag, suggestion)
	}
	return Spec{}, fmt.Errorf("%w: %s", ErrUnknownKernel, tag)
}

// Suggest returns the known kernel name nearest to tag by edit distance,
// provided the distance is small relative to the name.
func (c *Catalog) Suggest(tag string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	best, bestDist := "", -1
	lower := strings.ToLower(tag)
	for _, name := range c.sortedNames() {
		d := levenshtein.ComputeDistance(lower, strings.ToLower(name))
		if bestDist < 0 || d < bestDist {
			best, bestDist = name, d
		}
	}
	if bestDist < 0 || bestDist > max(1, len(best)/3) {
		return "", false
	}
	return best, true
}

// List returns all specs sorted by name.
func (c *Catalog) List() []Spec {
	c.mu.RLock()
	defer c.mu.RUnlock()

	specs := make([]Spec, 0, len(c.specs))
	for _, name := range c.sortedNames() {
		specs = append(specs, c.specs[name])
	}
	return specs
}

func (c *Catalog) sortedNames() []string {
	names := make([]string, 0, len(c.specs))
	for name := range c.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
