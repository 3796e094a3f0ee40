package chimux

import "errors"

var (
	ErrInvalidConfig     = errors.New("chimux: invalid configuration")
	ErrApplicationNotSet = errors.New("chimux: application not set")
)

// StatusCoder lets handler errors choose their HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// HTTPError is an error carrying an HTTP status.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string { return e.Message }

func (e *HTTPError) StatusCode() int { return e.Status }
