package probe

import "errors"

// Failure classes reported to the monitoring system. Every error returned by
// Run wraps exactly one of them.
var (
	ErrInvalidArguments  = errors.New("invalid arguments")
	ErrUnsupportedDevice = errors.New("unsupported device family")
	ErrConnectivity      = errors.New("device unreachable")
	ErrParse             = errors.New("unparseable device reply")
	ErrUnsupportedMetric = errors.New("metric not supported by device")
)

// Exit codes
const (
	ExitOK                = 0
	ExitInternal          = 1
	ExitInvalidArguments  = 2
	ExitUnsupportedDevice = 3
	ExitConnectivity      = 4
	ExitParse             = 5
	ExitUnsupportedMetric = 6
)

// ExitCode maps an error returned by Run to the process exit code
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrInvalidArguments):
		return ExitInvalidArguments
	case errors.Is(err, ErrUnsupportedDevice):
		return ExitUnsupportedDevice
	case errors.Is(err, ErrConnectivity):
		return ExitConnectivity
	case errors.Is(err, ErrParse):
		return ExitParse
	case errors.Is(err, ErrUnsupportedMetric):
		return ExitUnsupportedMetric
	default:
		return ExitInternal
	}
}
