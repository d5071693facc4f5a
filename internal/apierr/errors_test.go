package apierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&NetworkError{URL: "http://x"}))
	assert.True(t, Retryable(fmt.Errorf("wrapped: %w", &TimeoutError{Op: "bridge"})))
	assert.False(t, Retryable(&HTTPError{Status: 500}))
	assert.False(t, Retryable(&ValidationError{}))
	assert.False(t, Retryable(errors.New("boom")))
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"network", &NetworkError{URL: "http://x"}, MsgNetwork},
		{"timeout", &TimeoutError{}, MsgTimeout},
		{"not found", &HTTPError{Status: 404}, MsgNotFound},
		{"forbidden", &HTTPError{Status: 403}, MsgPermissionDenied},
		{"server", &HTTPError{Status: 502}, MsgServer},
		{"bad request", &HTTPError{Status: 400}, "HTTP 400: Bad Request"},
		{"validation", &ValidationError{Fields: []FieldError{{"ssid", "a"}, {"password", "b"}}}, "a, b"},
		{"remote", &RemoteError{Message: "device busy"}, "device busy"},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Message(tt.err))
		})
	}
}

func TestValidationErrorField(t *testing.T) {
	err := &ValidationError{Fields: []FieldError{{Field: "password", Message: "too short"}}}
	assert.True(t, err.Field("password"))
	assert.False(t, err.Field("ssid"))
}
