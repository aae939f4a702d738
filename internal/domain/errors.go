package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Per-item failures. The orchestrator converts these into failed outcomes.
var (
	ErrInvalidLocator    = errors.New("invalid locator")
	ErrResolutionTimeout = errors.New("stream url not discovered in time")
	ErrEmptyBody         = errors.New("empty response body")
	ErrIO                = errors.New("i/o error")
	ErrMissingReferer    = errors.New("missing referer")
	ErrInvalidStream     = errors.New("invalid stream url")
	ErrNameCollision     = errors.New("destination name already used in this batch")
)

// Batch-level failures. Both happen before any item exists.
var (
	ErrSessionUnavailable = errors.New("browser session unavailable")
	ErrPageLoad           = errors.New("failed to load source page")
	ErrNoSuccesses        = errors.New("no item downloaded successfully")
)

// ErrRunNotFound is returned by history lookups for an unknown run id
var ErrRunNotFound = errors.New("run not found")

// HTTPError is returned when the stream origin answers with a non-success status
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d (%s) for %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// FailureReason is the machine-readable cause of a failed outcome
type FailureReason string

const (
	ReasonNone              FailureReason = ""
	ReasonInvalidLocator    FailureReason = "invalid_locator"
	ReasonResolutionTimeout FailureReason = "resolution_timeout"
	ReasonHTTPError         FailureReason = "http_error"
	ReasonEmptyBody         FailureReason = "empty_body"
	ReasonIOError           FailureReason = "io_error"
	ReasonNameCollision     FailureReason = "name_collision"
	ReasonCancelled         FailureReason = "cancelled"
	ReasonResolveError      FailureReason = "resolve_error"
	ReasonFetchError        FailureReason = "fetch_error"
)

// Stage identifies where in the pipeline an item failed
type Stage string

const (
	StageResolve Stage = "resolve"
	StageFetch   Stage = "fetch"
	StageStore   Stage = "store"
)

// ClassifyError maps a stage error onto a FailureReason.
// Unrecognised errors fall back to a stage-specific reason.
func ClassifyError(stage Stage, err error) FailureReason {
	var httpErr *HTTPError
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, context.Canceled):
		return ReasonCancelled
	case errors.Is(err, ErrInvalidLocator):
		return ReasonInvalidLocator
	case errors.Is(err, ErrResolutionTimeout):
		return ReasonResolutionTimeout
	case errors.As(err, &httpErr):
		return ReasonHTTPError
	case errors.Is(err, ErrEmptyBody):
		return ReasonEmptyBody
	case errors.Is(err, ErrNameCollision):
		return ReasonNameCollision
	case errors.Is(err, ErrIO):
		return ReasonIOError
	}

	switch stage {
	case StageResolve:
		return ReasonResolveError
	case StageStore:
		return ReasonIOError
	default:
		return ReasonFetchError
	}
}
