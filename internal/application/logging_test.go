package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/example/worktrack/internal/logging"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "user not found", err: ErrUserNotFound, want: "user_not_found"},
		{name: "wrapped already stopped", err: fmt.Errorf("stop: %w", ErrAlreadyStopped), want: "already_stopped"},
		{name: "tracking denial", err: &TrackingNotAllowedError{NextWindow: "x"}, want: "tracking_not_allowed"},
		{name: "rule in use", err: fmt.Errorf("%w: assigned", ErrRuleInUse), want: "rule_in_use"},
		{name: "validation", err: &ValidationError{FieldErrors: map[string]string{"a": "b"}}, want: "validation"},
		{name: "conflict", err: ErrConflict, want: "conflict"},
		{name: "unexpected", err: errors.New("boom"), want: "unexpected"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ErrorKind(tc.err); got != tc.want {
				t.Fatalf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestServiceLoggerPrefersContextLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctxLogger := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := logging.ContextWithLogger(context.Background(), ctxLogger)

	base := slog.New(slog.NewTextHandler(io.Discard, nil))
	serviceLogger(ctx, base, "SessionService", "StartSession", "user_id", "emp-1").Info("hello")

	out := buf.String()
	for _, want := range []string{`"service":"SessionService"`, `"operation":"StartSession"`, `"user_id":"emp-1"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in log output %s", want, out)
		}
	}
}
