// Package errs defines the engine's typed failure taxonomy and the
// fail-fast validators invoked at stage boundaries. Silent skipping of a
// validator is forbidden: every stage that produces scores, profiles or a
// Top-4 runs the matching validator before handing off.
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code is a stable failure code carried across serialization boundaries.
type Code string

const (
	CodeMissingOdds      Code = "E001_MISSING_ODDS"
	CodeZeroOdds         Code = "E002_ZERO_ODDS"
	CodeInvalidProfile   Code = "E003_INVALID_PROFILE"
	CodeMissingScore     Code = "E004_MISSING_SCORE"
	CodeInvalidTop4      Code = "E005_INVALID_TOP4"
	CodeMissingRunnerID  Code = "E006_MISSING_RUNNER_ID"
	CodeInvalidFieldSize Code = "E007_INVALID_FIELD_SIZE"
)

// EngineError is the single failure type for input validation and contract
// violations. Context carries the values that tripped the check.
type EngineError struct {
	Code    Code
	Message string
	Context map[string]string
}

func (e *EngineError) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, e.Context[k]))
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(parts, ", "))
}

// New builds an EngineError. Context pairs are given as alternating
// key/value strings.
func New(code Code, message string, kv ...string) *EngineError {
	e := &EngineError{Code: code, Message: message}
	if len(kv) > 0 {
		e.Context = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			e.Context[kv[i]] = kv[i+1]
		}
	}
	return e
}

// IsCode reports whether err wraps an EngineError with the given code.
func IsCode(err error, code Code) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}
