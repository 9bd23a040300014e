package domain

import (
	"fmt"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches AppErrors by code so that errors.Is works against the
// predefined values even after WithError produced a copy.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: 400,
	}

	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Invalid or missing API key",
		StatusCode: 401,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: 404,
	}

	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: 422,
	}

	ErrInvalidImage = &AppError{
		Code:       "INVALID_IMAGE",
		Message:    "Invalid image format or corrupted file",
		StatusCode: 422,
	}

	ErrInvalidLabel = &AppError{
		Code:       "INVALID_LABEL",
		Message:    "Identity label must be a non-empty name without path separators",
		StatusCode: 422,
	}

	ErrIdentityNotFound = &AppError{
		Code:       "IDENTITY_NOT_FOUND",
		Message:    "Identity not found",
		StatusCode: 404,
	}

	// Session preconditions
	ErrNoIdentities = &AppError{
		Code:       "NO_IDENTITIES",
		Message:    "No enrolled identities, register a face first",
		StatusCode: 412,
	}

	ErrNoFrameSource = &AppError{
		Code:       "NO_FRAME_SOURCE",
		Message:    "Camera frame source is unavailable",
		StatusCode: 412,
	}

	ErrNoFaceProvider = &AppError{
		Code:       "NO_FACE_PROVIDER",
		Message:    "Face detector is unavailable",
		StatusCode: 412,
	}

	ErrSessionNotFound = &AppError{
		Code:       "SESSION_NOT_FOUND",
		Message:    "Session not found or expired",
		StatusCode: 404,
	}

	ErrSessionInProgress = &AppError{
		Code:       "SESSION_IN_PROGRESS",
		Message:    "Another session is already using the camera",
		StatusCode: 409,
	}

	ErrSessionFinished = &AppError{
		Code:       "SESSION_FINISHED",
		Message:    "Session already reached a terminal state",
		StatusCode: 409,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many requests",
		StatusCode: 429,
	}
)
