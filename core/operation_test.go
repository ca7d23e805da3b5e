package core

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/vxbroker/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperation_CompleteOnce(t *testing.T) {
	var calls int
	op := NewOperation(func(*Operation) { calls++ }, func(o *OperationOptions) { o.Name = "login" })

	assert.NotEmpty(t, op.Token())
	assert.Equal(t, "login", op.Name())
	assert.False(t, op.IsCompleted())
	assert.ErrorIs(t, op.CheckForError(), ErrOperationPending)

	first := errors.New("first")
	require.NoError(t, op.Complete(first))
	assert.ErrorIs(t, op.CompleteWithResult("late", nil), ErrAlreadyCompleted)
	assert.ErrorIs(t, op.CompleteSynchronously(nil, nil), ErrAlreadyCompleted)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, op.Err())
	assert.Nil(t, op.Result())
	assert.False(t, op.CompletedSynchronously())

	select {
	case <-op.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestOperation_CheckForError(t *testing.T) {
	op := NewOperation(nil, func(o *OperationOptions) { o.Name = "connect" })
	cause := &EngineError{ReturnCode: 1, StatusCode: StatusAccessDenied}
	require.NoError(t, op.Complete(cause))

	err := op.CheckForError()
	var failed *OperationFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "connect", failed.Op)
	assert.True(t, IsOperationFailed(err))
	assert.True(t, IsEngineStatus(err, StatusAccessDenied))
	assert.ErrorIs(t, err, cause)

	ok := NewOperation(nil)
	require.NoError(t, ok.CompleteWithResult("msg-1", nil))
	assert.NoError(t, ok.CheckForError())
	assert.Equal(t, "msg-1", ok.Result())
}

func TestOperation_CompleteSynchronously(t *testing.T) {
	var sawCompleted bool
	op := NewOperation(func(o *Operation) { sawCompleted = o.IsCompleted() })
	require.NoError(t, op.CompleteSynchronously(nil, nil))

	assert.True(t, op.CompletedSynchronously())
	assert.True(t, sawCompleted)
	assert.NoError(t, op.CheckForError())
}

func TestOperation_CallbackPanicIsContained(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelError, Format: "json", Output: &buf})
	op := NewOperation(func(*Operation) { panic("boom") }, func(o *OperationOptions) { o.Logger = logger })

	assert.NotPanics(t, func() { _ = op.Complete(nil) })
	assert.True(t, op.IsCompleted())
	assert.Contains(t, buf.String(), "panic: boom")
	assert.Contains(t, buf.String(), "stack_trace")
}

func TestOperation_Age(t *testing.T) {
	op := NewOperation(nil)
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, op.Age(), 5*time.Millisecond)
}

func TestOperation_DebugRethrow(t *testing.T) {
	SetDebugRethrow(true)
	defer SetDebugRethrow(false)
	assert.True(t, DebugRethrow())

	op := NewOperation(func(*Operation) { panic("boom") })
	assert.PanicsWithValue(t, "boom", func() { _ = op.Complete(nil) })
}

func TestOperation_ConcurrentCompletion(t *testing.T) {
	var calls atomic.Int32
	op := NewOperation(func(*Operation) { calls.Add(1) })

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if op.Complete(nil) == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(1), calls.Load())
}
