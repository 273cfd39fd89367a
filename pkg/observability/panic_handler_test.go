package observability

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(ErrorLevel, &buf)

	func() {
		defer RecoverPanic(logger, "unit")
		panic("kaboom")
	}()

	assert.Contains(t, buf.String(), "PANIC recovered")
	assert.Contains(t, buf.String(), "kaboom")
	assert.Contains(t, buf.String(), `"context":"unit"`)
}

func TestRecoverPanicWithCallback(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	called := false
	func() {
		defer RecoverPanicWithCallback(logger, "unit", func() { called = true })
		panic("kaboom")
	}()
	assert.True(t, called)

	called = false
	func() {
		defer RecoverPanicWithCallback(logger, "unit", func() { called = true })
	}()
	assert.False(t, called, "callback only runs after a panic")
}

func TestMustRecover(t *testing.T) {
	assert.NoError(t, MustRecover(nil))
	assert.EqualError(t, MustRecover("bad"), "panic: bad")
}
