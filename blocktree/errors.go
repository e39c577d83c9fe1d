package blocktree

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes failures surfaced by the index and its coders
type ErrorCode int

const (
	CodeOutOfRange ErrorCode = iota + 1
	CodeUnknownSymbol
	CodeRankNotBuilt
	CodeAlphabetTooLarge
	CodeNotSampled
	CodeInvariantViolated
)

func (c ErrorCode) String() string {
	switch c {
	case CodeOutOfRange:
		return "OutOfRange"
	case CodeUnknownSymbol:
		return "UnknownSymbol"
	case CodeRankNotBuilt:
		return "RankNotBuilt"
	case CodeAlphabetTooLarge:
		return "AlphabetTooLarge"
	case CodeNotSampled:
		return "NotSampled"
	case CodeInvariantViolated:
		return "InvariantViolated"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// TreeError represents an error from block-tree construction or queries
type TreeError struct {
	Code    ErrorCode
	Message string
}

func (e *TreeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewTreeError creates a new TreeError
func NewTreeError(code ErrorCode, message string) *TreeError {
	return &TreeError{Code: code, Message: message}
}

// ErrCode creates a TreeError and returns it as an error
func ErrCode(code ErrorCode, message string) error {
	return &TreeError{Code: code, Message: message}
}

// IsTreeError checks if an error is a TreeError and returns it
func IsTreeError(err error) (*TreeError, bool) {
	var te *TreeError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// Common errors
var (
	ErrRankNotBuilt = &TreeError{Code: CodeRankNotBuilt, Message: "rank support not built"}
	ErrNotSampled   = &TreeError{Code: CodeNotSampled, Message: "random access needs a sample stride"}
)
