package bootstrap

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"petshop/config"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyConnectionError(t *testing.T) {
	const addr = "http://couch:5984"

	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"nil", nil, ""},
		{"binding", fmt.Errorf("credentials: %w", config.ErrCloudantBinding), "BINDING_CLOUDANT"},
		{"timeout", timeoutError{}, "timed out"},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, "Connection refused"},
		{"dns", errors.New("dial tcp: lookup couch: no such host"), "Cannot resolve hostname"},
		{"other", errors.New("unexpected EOF"), "Failed to connect to Cloudant"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := ClassifyConnectionError(tt.err, addr)
			if tt.err == nil {
				assert.Empty(t, msg)
				return
			}
			assert.Contains(t, msg, tt.contains)
		})
	}
}
