package metrics

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/nmslite/antprobe/internal/miners"
)

// ErrUnsupportedMetric is returned when a family's layout does not define a metric.
var ErrUnsupportedMetric = errors.New("metric not supported by device family")

// Value is a resolved metric ready for output
type Value struct {
	Name   Name
	Kind   Kind
	Number float64
}

// String formats the value the way it is printed: two decimals for floats,
// a plain integer otherwise.
func (v Value) String() string {
	return Format(v)
}

// Supported checks that a layout defines a metric, following aliases
func Supported(layout *miners.Layout, name Name) error {
	def, err := Lookup(string(name))
	if err != nil {
		return err
	}
	if !layout.Supports(string(def.Canonical())) {
		return fmt.Errorf("%w: %s on %s", ErrUnsupportedMetric, name, layout.Family)
	}
	return nil
}

// Resolve returns the requested metric from a parsed table. Aliases report
// the canonical metric's value unchanged; reported values are never clamped.
func Resolve(t *Table, layout *miners.Layout, name Name) (Value, error) {
	if err := Supported(layout, name); err != nil {
		return Value{}, err
	}
	def := catalog[catalog[name].Canonical()]

	if def.Command != t.Command() {
		return Value{}, fmt.Errorf("%s is read from the %s reply, table holds %s", name, def.Command, t.Command())
	}

	v, ok := t.Derived(def.Name)
	if !ok {
		keys, _ := layout.Keys(string(def.Name))
		return Value{}, fmt.Errorf("%w: %s (keys %v)", ErrMissingField, name, keys)
	}

	return Value{Name: name, Kind: def.Kind, Number: v}, nil
}

// Format renders a value for stdout
func Format(v Value) string {
	if v.Kind == KindInteger {
		return strconv.FormatInt(int64(math.Round(v.Number)), 10)
	}
	return strconv.FormatFloat(v.Number, 'f', 2, 64)
}
