package contract

import "errors"

var (
	ErrModelInvoke       = errors.New("model invoke failed")
	ErrSchemaViolation   = errors.New("model response violates schema")
	ErrPromptMissing     = errors.New("required prompt is missing")
	ErrValidation        = errors.New("validation failed")
	ErrUnknownAction     = errors.New("unknown action")
	ErrMaxRoundsExceeded = errors.New("decision cycle exceeded max rounds")
	ErrOrphanToolResult  = errors.New("tool result without matching action request")
)
