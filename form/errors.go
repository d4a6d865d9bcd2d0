package form

import (
	"github.com/goliatone/go-errors"
)

const (
	CodeFieldNotFound  = "FIELD_NOT_FOUND"
	CodeKindMismatch   = "FIELD_KIND_MISMATCH"
	CodeRowOutOfRange  = "ROW_OUT_OF_RANGE"
	CodeColumnNotFound = "COLUMN_NOT_FOUND"
	CodeNoSubmitter    = "NO_SUBMITTER"
)

// Validation outcomes are plain strings in the error maps. These errors
// only report calls that address fields, rows or columns that do not exist.
var (
	ErrFieldNotFound = errors.New("field not found", errors.CategoryBadInput).
				WithTextCode(CodeFieldNotFound)
	ErrKindMismatch = errors.New("value kind does not match field", errors.CategoryBadInput).
			WithTextCode(CodeKindMismatch)
	ErrRowOutOfRange = errors.New("row index out of range", errors.CategoryBadInput).
				WithTextCode(CodeRowOutOfRange)
	ErrColumnNotFound = errors.New("column not found", errors.CategoryBadInput).
				WithTextCode(CodeColumnNotFound)
	ErrNoSubmitter = errors.New("form has no submitter", errors.CategoryHandler).
			WithTextCode(CodeNoSubmitter)
)

// Messages written into the field and row error maps.
const (
	MsgRequired         = "this field is required"
	MsgInvalid          = "invalid input"
	MsgInvalidOption    = "value is not one of the allowed options"
	MsgInvalidNumber    = "must be a number"
	MsgInvalidDate      = "must be a date (YYYY-MM-DD)"
	MsgTableRowRequired = "at least one row required"
	MsgTableRowErrors   = "fix table errors before submitting"
	MsgValidatorFailed  = "validation could not be completed"
)
