package scriptdesk

import (
	stderrors "errors"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

const (
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeReasonRequired     = "REASON_REQUIRED"
	CodeExecutionNotFound  = "EXECUTION_NOT_FOUND"
	CodeScriptNotFound     = "SCRIPT_NOT_FOUND"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeCatalogInvalid     = "CATALOG_INVALID"
	CodeStorageFailed      = "STORAGE_FAILED"
	CodeExportNotCompleted = "EXPORT_NOT_COMPLETED"
	CodeConfigInvalid      = "CONFIG_INVALID"
)

var (
	// ErrValidation marks validation failures; compare with
	// HasCode(err, CodeValidationFailed) after any wrapping.
	ErrValidation = apperrors.New("validation error", apperrors.CategoryValidation).
			WithTextCode(CodeValidationFailed)
	ErrInvalidTransition = apperrors.New("invalid transition", apperrors.CategoryBadInput).
				WithTextCode(CodeInvalidTransition)
	ErrReasonRequired = apperrors.New("rejection reason is required", apperrors.CategoryValidation).
				WithTextCode(CodeReasonRequired)
	ErrExecutionNotFound = apperrors.New("execution not found", apperrors.CategoryBadInput).
				WithTextCode(CodeExecutionNotFound)
	ErrScriptNotFound = apperrors.New("script not found", apperrors.CategoryBadInput).
				WithTextCode(CodeScriptNotFound)
	ErrUserNotFound = apperrors.New("user not found", apperrors.CategoryBadInput).
			WithTextCode(CodeUserNotFound)
	ErrCatalogInvalid = apperrors.New("script catalog invalid", apperrors.CategoryValidation).
				WithTextCode(CodeCatalogInvalid)
	ErrStorageFailed = apperrors.New("storage operation failed", apperrors.CategoryExternal).
				WithTextCode(CodeStorageFailed)
	ErrExportNotCompleted = apperrors.New("only completed executions can be exported", apperrors.CategoryConflict).
				WithTextCode(CodeExportNotCompleted)
	ErrConfigInvalid = apperrors.New("configuration invalid", apperrors.CategoryValidation).
				WithTextCode(CodeConfigInvalid)
)

// CloneError copies base so callers can attach a message, source and
// metadata without mutating the shared sentinel.
func CloneError(base *apperrors.Error, message string, source error, metadata map[string]any) *apperrors.Error {
	if base == nil {
		base = ErrValidation
	}
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// ErrorCode returns the text code of the first go-errors error in the chain.
func ErrorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// HasCode reports whether err carries the given text code.
func HasCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}
