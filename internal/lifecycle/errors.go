package lifecycle

import (
	"errors"
	"fmt"
)

// Op names a lifecycle action.
type Op string

const (
	OpUpload Op = "upload"
	OpTrain  Op = "train"
	OpTest   Op = "test"
	OpDeploy Op = "deploy"
)

// Request failures. The transport error (*client.NetworkError or
// *client.HTTPStatusError) stays reachable with errors.As.
var (
	ErrUploadFailed          = errors.New("dataset upload failed")
	ErrTrainingRequestFailed = errors.New("training request failed")
	ErrTestRequestFailed     = errors.New("test request failed")
	ErrDeployRequestFailed   = errors.New("deploy request failed")
)

// Precondition failures, always wrapped in a *ValidationError.
var (
	ErrSnapshotUnavailable = errors.New("no dashboard snapshot loaded yet")
	ErrEmptyFile           = errors.New("file is empty")
	ErrFileTooLarge        = errors.New("file exceeds 100MB")
	ErrUnsupportedFileType = errors.New("file type not supported")
	ErrNameRequired        = errors.New("name is required")
	ErrPromptRequired      = errors.New("custom prompt is required")
	ErrInputRequired       = errors.New("input text is required")
	ErrDatasetNotFound     = errors.New("dataset not found")
	ErrModelNotFound       = errors.New("model not found")
	ErrModelNotCompleted   = errors.New("model has not completed training")
	ErrAlreadyDeployed     = errors.New("model is already deployed")
	ErrDeployInFlight      = errors.New("deployment already in progress for this model")
	ErrTestInFlight        = errors.New("a test request is already in progress")
)

// ValidationError reports a client-side precondition that failed before
// any request was sent.
type ValidationError struct {
	Op     Op
	Err    error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(op Op, reason error, detail string) error {
	return &ValidationError{Op: op, Err: reason, Detail: detail}
}

// IsValidation reports whether err is a local precondition failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
