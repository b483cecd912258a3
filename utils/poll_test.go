package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForSucceeds(t *testing.T) {
	attempts := 0
	err := WaitFor(context.Background(), time.Second, time.Millisecond, func() (bool, error) {
		attempts++
		return attempts >= 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWaitForTimeout(t *testing.T) {
	err := WaitFor(context.Background(), 20*time.Millisecond, time.Millisecond, func() (bool, error) {
		return false, nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestWaitForCheckError(t *testing.T) {
	boom := errors.New("boom")
	err := WaitFor(context.Background(), time.Second, time.Millisecond, func() (bool, error) {
		return false, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestWaitForContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WaitFor(ctx, time.Second, time.Millisecond, func() (bool, error) {
		return false, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
