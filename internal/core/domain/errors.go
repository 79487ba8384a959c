package domain

import "errors"

var (
	// Registry
	ErrStreamNotFound          = errors.New("stream not found")
	ErrDuplicateStream         = errors.New("duplicate stream name")
	ErrEmptyStreamName         = errors.New("stream name must not be empty")
	ErrEmptyEncoderTemplate    = errors.New("encoder command template must not be empty")
	ErrMissingInputPlaceholder = errors.New("encoder template missing INPUT_URL placeholder")
	ErrAmbiguousInput          = errors.New("exactly one of webrtc_url or rtsp_url must be set")

	// Supervisor
	ErrStreamDisabled = errors.New("stream is disabled")
	ErrSpawnFailed    = errors.New("encoder process could not be started")

	// Auth
	ErrInvalidRedirect = errors.New("redirect URL missing code or state parameter")
	ErrStateMismatch   = errors.New("state token mismatch or expired")
	ErrUnauthorized    = errors.New("no valid credential")

	// Upload
	ErrUploadTransient = errors.New("transient upload failure")
	ErrUploadPermanent = errors.New("permanent upload failure")
	ErrJobNotFound     = errors.New("upload job not found")
	ErrQueueFull       = errors.New("upload queue is full")
	ErrQueueClosed     = errors.New("upload queue is shut down")
)
