package dbset

import "errors"

// ErrNotFound is returned when a requested document is not present. Operations
// that report "document or nil" (Get, GetOne) return a nil document instead;
// FindOneAndUpdate returns ErrNotFound because the caller asked for the
// modified document back.
var ErrNotFound = errors.New("not found")

// ErrInvalidArgument reports bad paging values or missing required inputs.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrTransactionState reports an illegal transaction transition, such as a
// commit without a begin or a double begin on the same session.
var ErrTransactionState = errors.New("invalid transaction state")

// ErrHookNil reports a pre-write hook that returned a nil document, update or
// pipeline. Hooks are total; a nil result is a caller bug.
var ErrHookNil = errors.New("pre-write hook returned nil")

// ErrQueryIncomplete reports an attempt to render a query template whose free
// parameter was never bound with CompleteExpression.
var ErrQueryIncomplete = errors.New("query expression is incomplete")

// ErrIndexBuild wraps index-creation failures. EnsureIndexes surfaces it only
// on handles built with WithThrowIndexExceptions; otherwise the failure is
// logged and swallowed.
var ErrIndexBuild = errors.New("index build failed")

// UnacknowledgedCount is returned by write operations whose server-side
// acknowledgement is absent or disabled. It is a sentinel, not an error.
const UnacknowledgedCount = int64(-1)
