package entities

import (
	"context"
	"errors"
)

var (
	ErrPermissionDenied  = errors.New("camera or microphone permission denied")
	ErrDeviceUnavailable = errors.New("camera or microphone unavailable")

	ErrNetwork        = errors.New("network error")
	ErrTimeout        = errors.New("request timed out")
	ErrServerRejected = errors.New("server rejected request")
	ErrUnauthorized   = errors.New("credential rejected")
	ErrNotFound       = errors.New("not found")

	ErrEmptyRecording         = errors.New("nothing recorded")
	ErrNoLiveStream           = errors.New("no live media stream")
	ErrInvalidTransition      = errors.New("operation not allowed in current state")
	ErrSessionAlreadyComplete = errors.New("session already complete")
	ErrPollingAbandoned       = errors.New("gave up waiting for results")
	ErrRoomClosed             = errors.New("room closed")
	ErrInvalidArgument        = errors.New("invalid argument")
)

// Describe returns the single human-readable message shown for err.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Camera and microphone access was denied. Allow access in your browser settings and reload the interview."
	case errors.Is(err, ErrDeviceUnavailable):
		return "Your camera or microphone is not available. Check that no other application is using it and try again."
	case errors.Is(err, ErrUnauthorized):
		return "Your session has expired. Please log in again."
	case errors.Is(err, ErrTimeout):
		return "The server took too long to respond. Your recording is kept, please try again."
	case errors.Is(err, ErrNetwork):
		return "Could not reach the server. Your recording is kept, please try again."
	case errors.Is(err, ErrServerRejected):
		return "The server rejected the request."
	case errors.Is(err, ErrNotFound):
		return "The interview session was not found."
	case errors.Is(err, ErrEmptyRecording):
		return "Nothing was recorded. Record your answer before submitting."
	case errors.Is(err, ErrNoLiveStream):
		return "The camera is not ready yet."
	case errors.Is(err, ErrInvalidTransition):
		return "That action is not available right now."
	case errors.Is(err, ErrSessionAlreadyComplete):
		return "This interview has already been submitted."
	case errors.Is(err, ErrPollingAbandoned):
		return "Results are taking longer than expected. Check back later."
	case errors.Is(err, ErrRoomClosed):
		return "The interview room was closed."
	case errors.Is(err, ErrInvalidArgument):
		return "The request is missing a required value."
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	}
	return "Something went wrong."
}

// IsTerminal reports whether err ends the whole room rather than one attempt.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrRoomClosed)
}

// Retryable reports whether the same action may succeed if repeated unchanged.
func Retryable(err error) bool {
	if errors.Is(err, ErrUnauthorized) {
		return false
	}
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrDeviceUnavailable)
}
