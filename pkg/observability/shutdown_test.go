package observability

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestShutdownManager_ReverseOrder(t *testing.T) {
	sm := NewShutdownManager(quietLogger(), nil, time.Second)

	var order []string
	for _, name := range []string{"redis", "database", "otel"} {
		name := name
		sm.Register(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, []string{"otel", "database", "redis"}, order)
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(quietLogger(), nil, 0)
	assert.Equal(t, DefaultShutdownTimeout, sm.timeout)

	boom := errors.New("boom")
	ran := false
	sm.Register("first", func(ctx context.Context) error {
		ran = true
		return nil
	})
	sm.Register("second", func(ctx context.Context) error { return boom })

	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, ran, "later failures do not stop earlier registrations")
}

func TestShutdownManager_WaitForShutdownOnContext(t *testing.T) {
	sm := NewShutdownManager(quietLogger(), nil, time.Second)

	called := make(chan struct{})
	sm.Register("component", func(ctx context.Context) error {
		close(called)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, sm.WaitForShutdown(ctx))
	select {
	case <-called:
	default:
		t.Fatal("shutdown function was not called")
	}
}
