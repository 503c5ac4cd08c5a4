// Package miners holds the per-family field layouts of Antminer cgminer replies.
package miners

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed layouts.yaml
var defaultLayouts []byte

// ErrUnknownFamily is returned when no layout is registered for a family tag.
var ErrUnknownFamily = errors.New("unsupported device family")

// Family is the device family tag given on the command line (S9, L3+, ...).
type Family string

// Generic selects the catch-all layout used when the family is not known.
const Generic Family = "NA"

// ChainRange is the inclusive range of chain indexes a family reports.
type ChainRange struct {
	First int `yaml:"first" validate:"min=0"`
	Last  int `yaml:"last" validate:"gtefield=First"`
}

// Layout describes where each metric lives in a family's replies
type Layout struct {
	Family       Family              `yaml:"id" validate:"required"`
	Name         string              `yaml:"name" validate:"required"`
	Algorithm    string              `yaml:"algorithm"`
	HashrateUnit string              `yaml:"hashrate_unit"`
	StatsIndex   int                 `yaml:"stats_index" validate:"min=0"`
	Chains       ChainRange          `yaml:"chains"`
	Fields       map[string][]string `yaml:"fields" validate:"required,min=1,dive,min=1"`
}

type layoutFile struct {
	Templates map[string]map[string][]string `yaml:"templates"`
	Families  []*Layout                      `yaml:"families"`
}

// Supports reports whether the layout defines the metric
func (l *Layout) Supports(metric string) bool {
	_, ok := l.Fields[metric]
	return ok
}

// Keys returns the reply keys of a metric with [i] patterns expanded over the
// chain range, in layout order.
func (l *Layout) Keys(metric string) ([]string, bool) {
	patterns, ok := l.Fields[metric]
	if !ok {
		return nil, false
	}
	var keys []string
	for _, pattern := range patterns {
		if !strings.Contains(pattern, "[i]") {
			keys = append(keys, pattern)
			continue
		}
		for i := l.Chains.First; i <= l.Chains.Last; i++ {
			keys = append(keys, strings.ReplaceAll(pattern, "[i]", strconv.Itoa(i)))
		}
	}
	return keys, true
}

// Registry holds the layouts of all supported families
type Registry struct {
	layouts map[Family]*Layout
	mu      sync.RWMutex
}

var (
	globalRegistry *Registry
	globalErr      error
	registryOnce   sync.Once
	validate       = validator.New()
)

// GetRegistry returns the registry built from the embedded layout table
func GetRegistry() (*Registry, error) {
	registryOnce.Do(func() {
		globalRegistry, globalErr = NewRegistry(defaultLayouts)
	})
	return globalRegistry, globalErr
}

// NewRegistry parses a YAML layout table
func NewRegistry(data []byte) (*Registry, error) {
	var file layoutFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse layout table: %w", err)
	}

	r := &Registry{layouts: make(map[Family]*Layout, len(file.Families))}
	for _, layout := range file.Families {
		if err := r.register(layout); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(layout *Layout) error {
	if err := validate.Struct(layout); err != nil {
		return fmt.Errorf("invalid layout %q: %w", layout.Family, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.layouts[layout.Family]; exists {
		return fmt.Errorf("duplicate layout for family %q", layout.Family)
	}
	r.layouts[layout.Family] = layout
	return nil
}

// Get returns the layout of a family. Lookup is case-insensitive ("s9" == "S9").
func (r *Registry) Get(family string) (*Layout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	layout, exists := r.layouts[Family(strings.ToUpper(strings.TrimSpace(family)))]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, family)
	}
	return layout, nil
}

// Families returns the registered family tags sorted alphabetically
func (r *Registry) Families() []Family {
	r.mu.RLock()
	defer r.mu.RUnlock()

	families := make([]Family, 0, len(r.layouts))
	for f := range r.layouts {
		families = append(families, f)
	}
	sort.Slice(families, func(i, j int) bool { return families[i] < families[j] })
	return families
}
