package model

import (
	"context"
	"errors"
	"fmt"
)

// Backend error kinds. Adapters wrap these with %w; callers classify them
// with errors.Is and errors.As.
var (
	ErrInvalidURL      = errors.New("invalid URL")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInvalidResponse = errors.New("invalid response")
	ErrRateLimited     = errors.New("rate limited")
	ErrBadRequest      = errors.New("bad request")
	ErrServerError     = errors.New("server error")
	ErrLoadTimeout     = errors.New("model load timed out")
)

// UnknownStatusError is returned for HTTP status codes without a dedicated kind.
type UnknownStatusError struct {
	Code int
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.Code)
}

// LoadError reports a failed model load with the underlying cause attached.
type LoadError struct {
	Backend string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s backend failed to load: %v", e.Backend, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// GenerationError reports a failed generation.
type GenerationError struct {
	Backend string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s backend failed to generate: %v", e.Backend, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// User-visible replies substituted for failures. The dispatcher never
// surfaces an error from GenerateResponse; it returns one of these instead.
const (
	NotLoadedResponse       = "The coach isn't ready yet. Load a model and try again."
	LocalFallbackResponse   = "I'm here with you. Take a slow breath and tell me a little more about what's going on."
	RateLimitedResponse     = "The coach is getting a lot of requests right now (rate limited). Please wait a moment and try again."
	BadRequestResponse      = "The coach couldn't understand that request. Try rephrasing your message."
	ServerErrorResponse     = "The coach service had a problem on its end. Please try again in a little while."
	InvalidResponseResponse = "The coach sent back something unreadable. Please try again."
	ConnectionResponse      = "I couldn't reach the coach service. Check your connection and try again."
	TimeoutResponse         = "The coach took too long to answer. Please try again."
)

// Describe converts a generation error into the reply shown to the user.
func Describe(err error) string {
	var unknown *UnknownStatusError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return RateLimitedResponse
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrInvalidRequest):
		return BadRequestResponse
	case errors.Is(err, ErrServerError):
		return ServerErrorResponse
	case errors.As(err, &unknown):
		return fmt.Sprintf("The coach service answered with an unexpected status (%d). Please try again.", unknown.Code)
	case errors.Is(err, ErrInvalidResponse):
		return InvalidResponseResponse
	case errors.Is(err, context.DeadlineExceeded):
		return TimeoutResponse
	case errors.Is(err, ErrInvalidURL):
		return ConnectionResponse
	default:
		return fmt.Sprintf("Sorry, I couldn't come up with a reply: %v", err)
	}
}

// LoadTimeoutMessage is stored on the dispatcher when the local model does not
// finish loading before the deadline.
const LoadTimeoutMessage = "Loading the local model timed out. Press reload to try again."

// DescribeLoad converts a load error into the message stored on the dispatcher.
func DescribeLoad(err error) string {
	var loadErr *LoadError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLoadTimeout):
		return LoadTimeoutMessage
	case errors.As(err, &loadErr) && loadErr.Backend == string(ModeCloud):
		return fmt.Sprintf("The coach service is unavailable: %v", loadErr.Err)
	case errors.As(err, &loadErr):
		return fmt.Sprintf("Couldn't load the %s model: %v", loadErr.Backend, loadErr.Err)
	default:
		return fmt.Sprintf("Couldn't load the model: %v", err)
	}
}
