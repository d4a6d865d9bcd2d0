package scriptdesk

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ping struct {
	ID string
}

func (ping) Type() string { return "test::ping" }

func (p ping) Validate() error {
	if p.ID == "" {
		return stderrors.New("id required")
	}
	return nil
}

func TestCloneErrorKeepsSentinelIntact(t *testing.T) {
	cause := stderrors.New("disk full")
	err := CloneError(ErrStorageFailed, "persist executions", cause, map[string]any{"key": "scriptExecutions"})

	assert.True(t, HasCode(err, CodeStorageFailed))
	assert.Equal(t, "persist executions", err.Message)
	assert.Equal(t, "scriptExecutions", err.Metadata["key"])
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "storage operation failed", ErrStorageFailed.Message)
	assert.Empty(t, ErrStorageFailed.Metadata)
}

func TestHasCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("approve: %w", ErrInvalidTransition)
	assert.True(t, HasCode(err, CodeInvalidTransition))
	assert.False(t, HasCode(err, CodeReasonRequired))
	assert.False(t, HasCode(nil, CodeInvalidTransition))
	assert.Empty(t, ErrorCode(stderrors.New("plain")))
}

func TestValidateMessage(t *testing.T) {
	assert.NoError(t, ValidateMessage(ping{ID: "1"}))
	assert.NoError(t, ValidateMessage("not a message"))

	err := ValidateMessage(ping{})
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeValidationFailed))

	var nilPing *ping
	assert.True(t, HasCode(ValidateMessage(nilPing), CodeInvalidMessage))
	assert.True(t, HasCode(ValidateMessage(nil), CodeInvalidMessage))
}

func TestRecoverTurnsPanicIntoError(t *testing.T) {
	var got error
	func() {
		defer Recover("test.job", map[string]any{"job": "explodes"}, func(err error) { got = err })
		panic("kaboom")
	}()

	require.Error(t, got)
	assert.True(t, HasCode(got, CodePanicRecovered))
	assert.Contains(t, got.Error(), "kaboom")
}

func TestRecoverWithoutPanic(t *testing.T) {
	called := false
	func() {
		defer Recover("test.job", nil, func(error) { called = true })
	}()
	assert.False(t, called)
}

func TestPanicErrorWrapsErrorValues(t *testing.T) {
	cause := stderrors.New("nil map")
	err := PanicError("store.Update", cause, map[string]any{"execution_id": "42"})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "store.Update", err.Metadata["where"])
	assert.Equal(t, "42", err.Metadata["execution_id"])
	assert.Equal(t, "*errors.errorString", err.Metadata["panic_type"])
	assert.NotEmpty(t, err.Metadata["stack"])
}
