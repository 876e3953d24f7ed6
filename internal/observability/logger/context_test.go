package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestFromPrefersContextLogger(t *testing.T) {
	l := zap.NewNop()
	ctx := ToContext(context.Background(), l)
	if From(ctx) != l {
		t.Fatal("expected the logger injected in the context")
	}
}

func TestFromFallsBackToSingleton(t *testing.T) {
	if From(context.Background()) == nil {
		t.Fatal("expected the singleton for a context without logger")
	}
	var nilCtx context.Context
	if From(nilCtx) == nil {
		t.Fatal("expected the singleton for a nil context")
	}
}
