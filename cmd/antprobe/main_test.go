package main

import (
	"bytes"
	"net"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/nmslite/antprobe/internal/minertest"
	"github.com/nmslite/antprobe/internal/probe"
)

func s9Server(t *testing.T) *minertest.Server {
	t.Helper()
	return minertest.NewServer(t, map[string][]byte{
		"summary": minertest.Fixture(t, "s9_summary"),
		"stats":   minertest.Fixture(t, "s9_stats"),
	})
}

func TestRunPrintsOnlyTheValue(t *testing.T) {
	srv := s9Server(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"flags first", []string{"-p", srv.PortString(), "S9", "127.0.0.1", "speed"}, "13708.70\n"},
		{"flags last", []string{"S9", "127.0.0.1", "chipTemp", "--port", srv.PortString()}, "79\n"},
		{"flags between", []string{"S9", "-t", "2", "127.0.0.1", "-p=" + srv.PortString(), "chainFailures"}, "2\n"},
		{"lowercase family", []string{"-p", srv.PortString(), "s9", "127.0.0.1", "averageSpeed5s"}, "13708.70\n"},
		{"generic family", []string{"-p", srv.PortString(), "NA", "127.0.0.1", "pcbTemp"}, "63\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tt.args, &stdout, &stderr)
			if code != probe.ExitOK {
				t.Fatalf("run() = %d, stderr: %s", code, stderr.String())
			}
			if stdout.String() != tt.want {
				t.Errorf("stdout = %q, want %q", stdout.String(), tt.want)
			}
			if stderr.Len() != 0 {
				t.Errorf("stderr should be empty without -v, got %q", stderr.String())
			}
		})
	}
}

func TestRunHelp(t *testing.T) {
	for _, arg := range []string{"-h", "--help"} {
		var stdout, stderr bytes.Buffer
		if code := run([]string{arg}, &stdout, &stderr); code != probe.ExitOK {
			t.Errorf("run(%s) = %d, want 0", arg, code)
		}
		if !strings.Contains(stdout.String(), "Usage: antprobe") {
			t.Errorf("run(%s) should print usage, got %q", arg, stdout.String())
		}
		for _, want := range []string{"S9", "T9+", "averageSpeed5s", "pcbTemp"} {
			if !strings.Contains(stdout.String(), want) {
				t.Errorf("usage should list %s", want)
			}
		}
	}
}

func TestRunFailuresLeaveStdoutEmpty(t *testing.T) {
	srv := s9Server(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	closedPort := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	bad := minertest.NewServer(t, map[string][]byte{"summary": []byte(`{"STATUS":[{"STATUS":"S"}],"SUMMARY":[{`)})

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"no arguments", nil, probe.ExitInvalidArguments},
		{"too few arguments", []string{"S9", "127.0.0.1"}, probe.ExitInvalidArguments},
		{"too many arguments", []string{"S9", "127.0.0.1", "speed", "extra"}, probe.ExitInvalidArguments},
		{"unknown flag", []string{"--colour", "S9", "127.0.0.1", "speed"}, probe.ExitInvalidArguments},
		{"bad port value", []string{"-p", "http", "S9", "127.0.0.1", "speed"}, probe.ExitInvalidArguments},
		{"invalid ip", []string{"S9", "192.168.0", "speed"}, probe.ExitInvalidArguments},
		{"invalid metric", []string{"S9", "127.0.0.1", "hashrate"}, probe.ExitInvalidArguments},
		{"unsupported family", []string{"-p", srv.PortString(), "S19", "127.0.0.1", "speed"}, probe.ExitUnsupportedDevice},
		{"unsupported metric", []string{"-p", srv.PortString(), "A3", "127.0.0.1", "pcbTemp"}, probe.ExitUnsupportedMetric},
		{"unreachable", []string{"-p", strconv.Itoa(closedPort), "S9", "127.0.0.1", "speed"}, probe.ExitConnectivity},
		{"truncated reply", []string{"-p", bad.PortString(), "S9", "127.0.0.1", "speed"}, probe.ExitParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tt.args, &stdout, &stderr)
			if code != tt.code {
				t.Errorf("run() = %d, want %d (stderr: %s)", code, tt.code, stderr.String())
			}
			if stdout.Len() != 0 {
				t.Errorf("stdout should be empty on failure, got %q", stdout.String())
			}
			if stderr.Len() == 0 {
				t.Error("failure should be reported on stderr")
			}
		})
	}
}

func TestRunVerboseLogsToStderr(t *testing.T) {
	srv := s9Server(t)

	var stdout, stderr bytes.Buffer
	code := run([]string{"-vv", "--log-format", "json", "-p", srv.PortString(), "S9", "127.0.0.1", "fanFront"}, &stdout, &stderr)
	if code != probe.ExitOK {
		t.Fatalf("run() = %d, stderr: %s", code, stderr.String())
	}
	if stdout.String() != "5880\n" {
		t.Errorf("stdout = %q, want 5880", stdout.String())
	}
	logs := stderr.String()
	for _, want := range []string{`"level":"DEBUG"`, `"run_id":`, `"msg":"Metric resolved"`} {
		if !strings.Contains(logs, want) {
			t.Errorf("debug log should contain %s, got %s", want, logs)
		}
	}
}

func TestExpandVerbose(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{[]string{"-vv", "S9"}, []string{"-v", "-v", "S9"}},
		{[]string{"-v"}, []string{"-v"}},
		{[]string{"--verbose", "-vvv"}, []string{"--verbose", "-v", "-v", "-v"}},
		{[]string{"--", "-x"}, []string{"--", "-x"}},
	}
	for _, tt := range tests {
		if got := expandVerbose(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("expandVerbose(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
