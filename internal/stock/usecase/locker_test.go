package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutree/stock-service/internal/apperr"
)

func TestMemoryLockerSerializes(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "rec-1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r2, err := l.Acquire(ctx, "rec-1")
		if err == nil {
			close(acquired)
			r2()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire should proceed after release")
	}
}

func TestMemoryLockerIndependentKeys(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	r1, err := l.Acquire(ctx, "rec-1")
	require.NoError(t, err)
	defer r1()

	r2, err := l.Acquire(ctx, "rec-2")
	require.NoError(t, err)
	r2()
}

func TestMemoryLockerDeadline(t *testing.T) {
	l := NewMemoryLocker()

	release, err := l.Acquire(context.Background(), "rec-1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.Acquire(ctx, "rec-1")
	assert.True(t, apperr.IsKind(err, apperr.KindTimeout), "blocked acquire must report Timeout, got %v", err)
}
