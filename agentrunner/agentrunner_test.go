package agentrunner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelTokenIdempotent(t *testing.T) {
	tok := NewCancelToken()
	assert.False(t, tok.Canceled())
	tok.Cancel()
	tok.Cancel() // must not panic on double-close
	assert.True(t, tok.Canceled())
	select {
	case <-tok.Done():
	default:
		t.Fatal("Done channel should be closed after Cancel")
	}
}

func TestWithTimeoutPropagatesCancelToken(t *testing.T) {
	tok := NewCancelToken()
	ctx, cancel := WithTimeout(context.Background(), time.Minute, tok)
	defer cancel()

	tok.Cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context should be cancelled once the token is cancelled")
	}
}

func TestFuncAdapterSatisfiesRunner(t *testing.T) {
	var r Runner = Func(func(ctx context.Context, prompt string, taskContext []byte, agent Descriptor, timeout time.Duration, cancel *CancelToken) (Result, error) {
		return Result{Stdout: []byte("ok"), Exit: 0}, nil
	})

	res, err := r.Run(context.Background(), "do it", nil, nil, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(res.Stdout))
}

func TestAgentErrorKindReflectsNonZero(t *testing.T) {
	err := &AgentError{Op: "Run", Message: "boom", NonZero: true, Exit: 1}
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, "agent_non_zero_exit", string(err.Kind()))
}
