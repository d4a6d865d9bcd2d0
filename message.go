package scriptdesk

import (
	"reflect"

	apperrors "github.com/goliatone/go-errors"
)

const CodeInvalidMessage = "INVALID_MESSAGE"

// Message is a typed payload that can check itself before it is dispatched
// or scheduled.
type Message interface {
	Type() string
	Validate() error
}

// ValidateMessage rejects nil pointers and runs Validate when msg is a
// Message. Validation failures carry VALIDATION_FAILED and the message type.
func ValidateMessage(msg any) error {
	if msg == nil {
		return nilMessage()
	}
	if v := reflect.ValueOf(msg); v.Kind() == reflect.Ptr && v.IsNil() {
		return nilMessage()
	}

	m, ok := msg.(Message)
	if !ok {
		return nil
	}
	if err := m.Validate(); err != nil {
		return CloneError(ErrValidation, "message validation failed", err, map[string]any{
			"message_type": m.Type(),
		})
	}
	return nil
}

func nilMessage() error {
	return apperrors.New("nil message pointer", apperrors.CategoryValidation).
		WithTextCode(CodeInvalidMessage)
}
