package metrics

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/oliveagle/jsonpath"

	"github.com/nmslite/antprobe/internal/cgminer"
	"github.com/nmslite/antprobe/internal/miners"
)

var (
	// ErrMissingRecord is returned when the reply lacks the record a layout points at.
	ErrMissingRecord = errors.New("reply record not found")
	// ErrMissingField is returned when none of a metric's keys are in the reply.
	ErrMissingField = errors.New("metric fields not found in reply")
)

// Table is the flat view of one reply record plus the metrics derived from it.
// It is never modified after Parse returns.
type Table struct {
	command cgminer.Command
	values  map[string]float64
	text    map[string]string
	derived map[Name]float64
}

// Command returns the command whose reply the table was built from
func (t *Table) Command() cgminer.Command {
	return t.command
}

// Field returns the numeric value of a raw reply key
func (t *Table) Field(key string) (float64, bool) {
	v, ok := t.values[key]
	return v, ok
}

// Text returns the string value of a raw reply key
func (t *Table) Text(key string) (string, bool) {
	s, ok := t.text[key]
	return s, ok
}

// Derived returns a metric computed from the record
func (t *Table) Derived(name Name) (float64, bool) {
	v, ok := t.derived[name]
	return v, ok
}

// Len returns the number of numeric fields in the record
func (t *Table) Len() int {
	return len(t.values)
}

// recordPath returns the JSON path of the record a command's metrics live in
func recordPath(cmd cgminer.Command, layout *miners.Layout) (string, error) {
	switch cmd {
	case cgminer.CommandSummary:
		return "$.SUMMARY[0]", nil
	case cgminer.CommandStats:
		return fmt.Sprintf("$.STATS[%d]", layout.StatsIndex), nil
	default:
		return "", fmt.Errorf("no record layout for command %q", cmd)
	}
}

// Parse flattens the layout's record of a reply and derives every metric the
// layout defines for the reply's command. Metrics whose keys are all absent
// are simply not derived.
func Parse(reply *cgminer.Reply, layout *miners.Layout) (*Table, error) {
	path, err := recordPath(reply.Command, layout)
	if err != nil {
		return nil, err
	}

	res, err := jsonpath.JsonPathLookup(reply.Document, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s in %s reply: %v", ErrMissingRecord, path, reply.Command, err)
	}
	record, ok := res.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s reply is %T, not an object", ErrMissingRecord, path, reply.Command, res)
	}

	t := &Table{
		command: reply.Command,
		values:  make(map[string]float64, len(record)),
		text:    make(map[string]string),
		derived: make(map[Name]float64),
	}
	for key, raw := range record {
		switch v := raw.(type) {
		case float64:
			t.values[key] = v
		case string:
			t.text[key] = v
			// Firmware quotes some numbers, e.g. "GHS 5s":"13708.70".
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
				t.values[key] = f
			}
		}
	}

	for _, def := range catalog {
		if def.AliasOf != "" || def.Command != reply.Command {
			continue
		}
		keys, ok := layout.Keys(string(def.Name))
		if !ok {
			continue
		}
		if v, ok := t.aggregate(def.Aggregation, keys); ok {
			t.derived[def.Name] = v
		}
	}

	return t, nil
}

func (t *Table) aggregate(agg Aggregation, keys []string) (float64, bool) {
	switch agg {
	case AggregateFirst:
		for _, k := range keys {
			if v, ok := t.values[k]; ok {
				return v, true
			}
		}
		return 0, false

	case AggregateMax:
		highest, found := 0.0, false
		for _, k := range keys {
			v, ok := t.values[k]
			if !ok {
				continue
			}
			if !found || v > highest {
				highest = v
			}
			found = true
		}
		return highest, found

	case AggregateFailedChains, AggregateFailedChips:
		count, found := 0, false
		for _, k := range keys {
			s, ok := t.text[k]
			if !ok {
				continue
			}
			found = true
			failed := strings.Count(s, "x")
			if agg == AggregateFailedChains && failed > 0 {
				failed = 1
			}
			count += failed
		}
		return float64(count), found

	default:
		return 0, false
	}
}
