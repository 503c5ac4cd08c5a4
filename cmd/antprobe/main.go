package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/nmslite/antprobe/internal/config"
	"github.com/nmslite/antprobe/internal/metrics"
	"github.com/nmslite/antprobe/internal/miners"
	"github.com/nmslite/antprobe/internal/probe"
)

// verbosity counts repeated -v flags
type verbosity int

func (v *verbosity) String() string   { return strconv.Itoa(int(*v)) }
func (v *verbosity) IsBoolFlag() bool { return true }
func (v *verbosity) Set(s string) error {
	on, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if on {
		*v++
	}
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one probe and returns the process exit code. stdout receives
// the metric value and nothing else.
func run(args []string, stdout, stderr io.Writer) int {
	cfg := config.Default()

	fs := flag.NewFlagSet("antprobe", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		timeoutSeconds float64
		verbose        verbosity
	)
	fs.IntVar(&cfg.Port, "p", cfg.Port, "")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "")
	fs.Float64Var(&timeoutSeconds, "t", cfg.Timeout().Seconds(), "")
	fs.Float64Var(&timeoutSeconds, "timeout", cfg.Timeout().Seconds(), "")
	fs.BoolVar(&cfg.EnablePing, "ep", false, "")
	fs.BoolVar(&cfg.EnablePing, "enable-ping", false, "")
	fs.Var(&verbose, "v", "")
	fs.Var(&verbose, "verbose", "")
	fs.StringVar(&cfg.Logging.Format, "log-format", cfg.Logging.Format, "")

	positional, err := parseInterspersed(fs, expandVerbose(args))
	if errors.Is(err, flag.ErrHelp) {
		printUsage(stdout)
		return probe.ExitOK
	}
	if err == nil && len(positional) != 3 {
		err = fmt.Errorf("expected TYPE IP METRIC, got %d argument(s)", len(positional))
	}
	if err != nil {
		fmt.Fprintf(stderr, "antprobe: %v\n\n", err)
		printUsage(stderr)
		return probe.ExitInvalidArguments
	}

	cfg.Family, cfg.Target, cfg.Metric = positional[0], positional[1], positional[2]
	cfg.SetTimeoutSeconds(timeoutSeconds)
	cfg.Logging.SetVerbosity(int(verbose))

	logger := config.InitLogger(cfg.Logging, stderr).With("run_id", uuid.NewString())
	slog.SetDefault(logger)
	logger.Debug("Arguments parsed",
		"family", cfg.Family,
		"target", cfg.Target,
		"port", cfg.Port,
		"metric", cfg.Metric,
		"timeout", cfg.Timeout(),
		"enable_ping", cfg.EnablePing,
	)

	p, err := probe.New(cfg)
	if err != nil {
		logger.Error("Probe setup failed", "error", err)
		return probe.ExitInternal
	}

	value, err := p.Run(context.Background())
	if err != nil {
		code := probe.ExitCode(err)
		logger.Error("Probe failed", "error", err, "exit_code", code)
		return code
	}

	fmt.Fprintln(stdout, value.String())
	return probe.ExitOK
}

// parseInterspersed lets flags appear before, between or after the
// positional arguments.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

// expandVerbose rewrites stacked short flags like -vv into -v -v
func expandVerbose(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if len(a) > 2 && strings.Trim(a[1:], "v") == "" && a[0] == '-' {
			for range a[1:] {
				out = append(out, "-v")
			}
			continue
		}
		out = append(out, a)
	}
	return out
}

func printUsage(w io.Writer) {
	families := []string{}
	if registry, err := miners.GetRegistry(); err == nil {
		for _, f := range registry.Families() {
			families = append(families, string(f))
		}
	}
	names := []string{}
	for _, n := range metrics.Names() {
		names = append(names, string(n))
	}

	fmt.Fprintf(w, `Usage: antprobe [flags] TYPE IP METRIC

Query a Bitmain Antminer and print one Zabbix compatible value.

Arguments:
  TYPE    device family: %s
  IP      device IP address, e.g. 192.168.0.42
  METRIC  %s

Flags:
  -p, --port N          cgminer API port (default 4028)
  -t, --timeout S       connection timeout in seconds (default 1)
  -ep, --enable-ping    ping the host before querying it
  -v, --verbose         log progress to stderr; repeat for debug output
  --log-format FORMAT   text or json (default text)
  -h, --help            show this help

Exit codes:
  0 success, 2 invalid arguments, 3 unsupported device family,
  4 device unreachable, 5 unparseable reply, 6 metric not supported by device
`, strings.Join(families, ", "), strings.Join(names, ", "))
}
