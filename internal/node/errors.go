package node

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnexpectedResponse is returned when a node reply matches neither the error variant
// nor the fixed success text
var ErrUnexpectedResponse = errors.New("unexpected node response")

// ErrReturnValueMissing is returned when a query reply has no expr/0
var ErrReturnValueMissing = errors.New("query returned no value")

// RejectedError is a business error reported by the node for an accepted request
type RejectedError struct {
	Op       string
	Messages []string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected by node: %s", e.Op, strings.Join(e.Messages, "; "))
}

// APIError is a non-2xx reply of the query endpoint
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("explore-deploy returned status %d: %s", e.Status, e.Body)
}

// Decode stages reported by DecodeError
const (
	StageExpression = "expression"
	StageResult     = "result"
)

// DecodeError is returned when a query reply does not fit the expression model or the
// requested result type
type DecodeError struct {
	Stage string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
