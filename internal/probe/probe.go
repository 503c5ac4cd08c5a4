// Package probe runs one query against one device and resolves one metric.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nmslite/antprobe/internal/cgminer"
	"github.com/nmslite/antprobe/internal/config"
	"github.com/nmslite/antprobe/internal/metrics"
	"github.com/nmslite/antprobe/internal/miners"
	"github.com/nmslite/antprobe/internal/ping"
)

// Pinger checks host reachability before the query
type Pinger interface {
	Ping(ctx context.Context, host string) error
}

// Querier sends one cgminer command to the device
type Querier interface {
	Query(ctx context.Context, cmd cgminer.Command) (*cgminer.Reply, error)
}

// Probe resolves a single metric from a single device
type Probe struct {
	cfg      *config.Config
	registry *miners.Registry
	pinger   Pinger
	querier  Querier
	logger   *slog.Logger
}

// New creates a probe for cfg using the embedded layout table, the system
// ping and a cgminer client.
func New(cfg *config.Config) (*Probe, error) {
	registry, err := miners.GetRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load device layouts: %w", err)
	}
	return &Probe{
		cfg:      cfg,
		registry: registry,
		pinger:   ping.New(cfg.Timeout()),
		querier:  cgminer.NewClient(cfg.Target, cfg.Port, cfg.Timeout()),
		logger:   slog.Default().With("component", "probe"),
	}, nil
}

// Run validates the arguments, queries the device and resolves the metric.
// Nothing is sent to the device when the arguments, family or metric are
// rejected.
func (p *Probe) Run(ctx context.Context) (metrics.Value, error) {
	if err := p.cfg.Validate(); err != nil {
		return metrics.Value{}, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}

	layout, err := p.registry.Get(p.cfg.Family)
	if err != nil {
		return metrics.Value{}, fmt.Errorf("%w: %w", ErrUnsupportedDevice, err)
	}

	def, err := metrics.Lookup(p.cfg.Metric)
	if err != nil {
		return metrics.Value{}, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	if err := metrics.Supported(layout, def.Name); err != nil {
		return metrics.Value{}, fmt.Errorf("%w: %w", ErrUnsupportedMetric, err)
	}

	p.logger.Debug("Probing device",
		"family", layout.Family,
		"model", layout.Name,
		"hashrate_unit", layout.HashrateUnit,
		"target", p.cfg.Address(),
		"metric", def.Name,
		"command", def.Command,
		"timeout", p.cfg.Timeout(),
	)

	if p.cfg.EnablePing {
		if err := p.pinger.Ping(ctx, p.cfg.Target); err != nil {
			return metrics.Value{}, fmt.Errorf("%w: %w", ErrConnectivity, err)
		}
	}

	start := time.Now()
	reply, err := p.querier.Query(ctx, def.Command)
	if err != nil {
		return metrics.Value{}, classifyQueryError(err)
	}

	table, err := metrics.Parse(reply, layout)
	if err != nil {
		return metrics.Value{}, fmt.Errorf("%w: %w", ErrParse, err)
	}

	value, err := metrics.Resolve(table, layout, def.Name)
	if err != nil {
		if errors.Is(err, metrics.ErrUnsupportedMetric) {
			return metrics.Value{}, fmt.Errorf("%w: %w", ErrUnsupportedMetric, err)
		}
		return metrics.Value{}, fmt.Errorf("%w: %w", ErrParse, err)
	}

	p.logger.Info("Metric resolved",
		"metric", value.Name,
		"value", value.Number,
		"kind", value.Kind,
		"fields", table.Len(),
		"elapsed", time.Since(start),
	)

	return value, nil
}

func classifyQueryError(err error) error {
	switch {
	case errors.Is(err, cgminer.ErrConnect):
		return fmt.Errorf("%w: %w", ErrConnectivity, err)
	case errors.Is(err, cgminer.ErrMalformed), errors.Is(err, cgminer.ErrDeviceStatus):
		return fmt.Errorf("%w: %w", ErrParse, err)
	default:
		return err
	}
}
