// Package metrics turns cgminer replies into the single values Zabbix asks for.
package metrics

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nmslite/antprobe/internal/cgminer"
)

// Name is a metric name accepted on the command line
type Name string

const (
	AverageSpeed   Name = "averageSpeed"
	AverageSpeed5s Name = "averageSpeed5s"
	ChainFailures  Name = "chainFailures"
	ChipFailures   Name = "chipFailures"
	ChipTemp       Name = "chipTemp"
	ErrorRate      Name = "errorRate"
	FanFront       Name = "fanFront"
	FanRear        Name = "fanRear"
	PCBTemp        Name = "pcbTemp"
	Speed          Name = "speed"
)

// Kind is the output representation of a metric
type Kind int

const (
	KindFloat Kind = iota
	KindInteger
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInteger:
		return "integer"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Aggregation tells how the values behind a metric's keys are combined
type Aggregation int

const (
	// AggregateFirst takes the first key present, unmodified.
	AggregateFirst Aggregation = iota
	// AggregateMax takes the maximum over all keys present.
	AggregateMax
	// AggregateFailedChains counts chain status strings containing an 'x'.
	AggregateFailedChains
	// AggregateFailedChips counts every 'x' across chain status strings.
	AggregateFailedChips
)

// Definition describes how a metric is fetched and reported
type Definition struct {
	Name        Name
	Command     cgminer.Command
	Kind        Kind
	Aggregation Aggregation
	// AliasOf names the metric this one reports verbatim.
	AliasOf Name
}

// Canonical returns the name the metric is stored under in layouts and tables
func (d Definition) Canonical() Name {
	if d.AliasOf != "" {
		return d.AliasOf
	}
	return d.Name
}

// ErrUnknownMetric is returned for names outside the catalog
var ErrUnknownMetric = errors.New("unknown metric")

var catalog = map[Name]Definition{
	AverageSpeed:   {Name: AverageSpeed, Command: cgminer.CommandSummary, Kind: KindFloat, Aggregation: AggregateFirst},
	AverageSpeed5s: {Name: AverageSpeed5s, Command: cgminer.CommandSummary, Kind: KindFloat, Aggregation: AggregateFirst},
	ChainFailures:  {Name: ChainFailures, Command: cgminer.CommandStats, Kind: KindInteger, Aggregation: AggregateFailedChains},
	ChipFailures:   {Name: ChipFailures, Command: cgminer.CommandStats, Kind: KindInteger, Aggregation: AggregateFailedChips},
	ChipTemp:       {Name: ChipTemp, Command: cgminer.CommandStats, Kind: KindInteger, Aggregation: AggregateMax},
	ErrorRate:      {Name: ErrorRate, Command: cgminer.CommandSummary, Kind: KindFloat, Aggregation: AggregateFirst},
	FanFront:       {Name: FanFront, Command: cgminer.CommandStats, Kind: KindInteger, Aggregation: AggregateMax},
	FanRear:        {Name: FanRear, Command: cgminer.CommandStats, Kind: KindInteger, Aggregation: AggregateMax},
	PCBTemp:        {Name: PCBTemp, Command: cgminer.CommandStats, Kind: KindInteger, Aggregation: AggregateMax},
	Speed:          {Name: Speed, Command: cgminer.CommandSummary, Kind: KindFloat, Aggregation: AggregateFirst, AliasOf: AverageSpeed5s},
}

// Lookup returns the definition of a metric name
func Lookup(name string) (Definition, error) {
	def, ok := catalog[Name(name)]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
	return def, nil
}

// IsKnown reports whether name is in the catalog
func IsKnown(name string) bool {
	_, ok := catalog[Name(name)]
	return ok
}

// Names returns all metric names sorted alphabetically
func Names() []Name {
	names := make([]Name, 0, len(catalog))
	for n := range catalog {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
