package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("429"), 429), true},
		{"wrapped explicit", eris.Wrap(NewTransientError(errors.New("502"), 502), "llm: generate"), true},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"circuit open", ErrCircuitOpen, true},
		{"net timeout", timeoutErr{}, true},
		{"econnreset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"refused text", errors.New("dial tcp 127.0.0.1:11434: connect: connection refused"), true},
		{"unexpected eof", errors.New("unexpected EOF"), true},
		{"plain", errors.New("invalid api key"), false},
		{"canceled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, FailureNone, Classify(nil))
	assert.Equal(t, FailureCircuitOpen, Classify(eris.Wrap(ErrCircuitOpen, "llm")))
	assert.Equal(t, FailureTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, FailureTimeout, Classify(timeoutErr{}))
	assert.Equal(t, FailureTransport, Classify(NewTransientError(errors.New("503"), 503)))
	assert.Equal(t, FailurePermanent, Classify(errors.New("bad request")))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504, 529} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("overloaded")
	te := NewTransientError(inner, 529)
	assert.ErrorIs(t, te, inner)
	assert.Equal(t, "overloaded", te.Error())
	assert.Equal(t, 529, te.StatusCode)
}
