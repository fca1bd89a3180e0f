package adb_test

import (
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"

	"github.com/achupryn/atvbridge/internal/adb"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsConnectivity(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout sentinel", adb.ErrTimeout, true},
		{"broken pipe sentinel", adb.ErrBrokenPipe, true},
		{"reset sentinel", adb.ErrConnectionReset, true},
		{"malformed sentinel", adb.ErrMalformedResponse, true},
		{"checksum sentinel", adb.ErrChecksum, true},
		{"server rpc sentinel", adb.ErrServerRPC, true},
		{"wrapped sentinel", fmt.Errorf("shell: %w", adb.ErrChecksum), true},
		{"eof", io.EOF, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"epipe", syscall.EPIPE, true},
		{"econnreset", syscall.ECONNRESET, true},
		{"econnrefused", syscall.ECONNREFUSED, true},
		{"net timeout", timeoutError{}, true},
		{"plain error", errors.New("nil pointer dereference"), false},
		{"wrapped plain error", fmt.Errorf("shell: %w", errors.New("bad index")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := adb.IsConnectivity(tt.err); got != tt.want {
				t.Errorf("IsConnectivity(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
