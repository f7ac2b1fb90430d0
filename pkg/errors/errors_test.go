// SPDX-License-Identifier: Apache-2.0

package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	cause := stderrors.New("socket closed")
	err := New(CodeRateLimit, "provider throttled", cause)

	msg := err.Error()
	if !strings.Contains(msg, "RATE_LIMIT") {
		t.Errorf("expected code in message, got %q", msg)
	}
	if !strings.Contains(msg, "socket closed") {
		t.Errorf("expected cause in message, got %q", msg)
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	err := New(CodeRuntime, "wrapper", cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestWithContextChaining(t *testing.T) {
	err := New(CodeAborted, "halted", nil).
		WithContext("agent_id", "agent-1").
		WithRecoverable(false)

	if err.Context["agent_id"] != "agent-1" {
		t.Errorf("context not recorded: %v", err.Context)
	}
	if err.Recoverable {
		t.Error("recoverable should be false")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ""},
		{"typed", New(CodeOversightRejection, "denied", nil), CodeOversightRejection},
		{"untyped", stderrors.New("boom"), CodeRuntime},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CodeOf(tc.err); got != tc.want {
				t.Errorf("CodeOf = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAsAegisErrorWrapsUnknown(t *testing.T) {
	ae := AsAegisError(stderrors.New("plain"))
	if ae.Code != CodeRuntime {
		t.Errorf("expected RUNTIME_ERROR wrap, got %s", ae.Code)
	}
	if AsAegisError(nil) != nil {
		t.Error("nil in, nil out")
	}
}
