package adb

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// Sentinel errors for failures that indicate the connection to the device
// (or to the ADB server) was lost. Transport implementations wrap these so
// the controller can tell a dead link from a programming defect.
var (
	// ErrTimeout indicates a command exceeded the transport's I/O deadline.
	ErrTimeout = errors.New("adb: command timed out")

	// ErrBrokenPipe indicates a write on a closed device connection.
	ErrBrokenPipe = errors.New("adb: broken pipe")

	// ErrConnectionReset indicates the device closed the connection.
	ErrConnectionReset = errors.New("adb: connection reset")

	// ErrMalformedResponse indicates the device sent a frame that could
	// not be parsed.
	ErrMalformedResponse = errors.New("adb: malformed response")

	// ErrChecksum indicates a frame failed checksum validation.
	ErrChecksum = errors.New("adb: checksum mismatch")

	// ErrServerRPC indicates a request to the local ADB server failed.
	ErrServerRPC = errors.New("adb: server request failed")
)

// connectivityErrors is the closed set of recoverable error kinds. Anything
// outside this set (and outside the network-level checks below) is treated
// as a bug and propagates to the caller.
var connectivityErrors = []error{
	ErrTimeout,
	ErrBrokenPipe,
	ErrConnectionReset,
	ErrMalformedResponse,
	ErrChecksum,
	ErrServerRPC,
}

// IsConnectivity reports whether err is a recognized "connection lost"
// failure, recoverable by reconnecting on a later poll cycle.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	for _, kind := range connectivityErrors {
		if errors.Is(err, kind) {
			return true
		}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
