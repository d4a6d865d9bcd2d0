package scriptdesk

import (
	"fmt"
	"runtime/debug"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

const CodePanicRecovered = "PANIC_RECOVERED"

// Recover must be deferred directly. It turns a panic into a PanicError and
// hands it to report; without a panic it does nothing.
func Recover(where string, fields map[string]any, report func(error)) {
	if r := recover(); r != nil {
		report(PanicError(where, r, fields))
	}
}

// PanicError describes a recovered value as a handler error. The stack, the
// panic value type and fields travel as metadata.
func PanicError(where string, recovered any, fields map[string]any) *apperrors.Error {
	meta := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		meta[k] = v
	}
	meta["where"] = where
	meta["panic_type"] = fmt.Sprintf("%T", recovered)
	meta["stack"] = trimStack(debug.Stack())

	msg := fmt.Sprintf("panic in %s: %v", where, recovered)
	var err *apperrors.Error
	if cause, ok := recovered.(error); ok {
		err = apperrors.Wrap(cause, apperrors.CategoryHandler, msg)
	} else {
		err = apperrors.New(msg, apperrors.CategoryHandler)
	}
	return err.WithTextCode(CodePanicRecovered).WithMetadata(meta)
}

// trimStack drops the frames above the panic call site.
func trimStack(stack []byte) string {
	lines := strings.Split(string(stack), "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "panic(") && i+2 < len(lines) {
			return strings.Join(lines[i+2:], "\n")
		}
	}
	return string(stack)
}
