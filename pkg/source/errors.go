package source

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

// RequestError marks a failed request to the Nimbu API. A run that fails with
// a RequestError is reported as an operational failure rather than a crash.
type RequestError struct {
	Method     string
	URL        string
	StatusCode int
	Err        error
}

func NewRequestError(method, url string, err error) *RequestError {
	return &RequestError{
		Method: method,
		URL:    url,
		Err:    err,
	}
}

func (e *RequestError) AddStatus(statusCode int) *RequestError {
	e.StatusCode = statusCode
	return e
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s returned %d: %v", e.Method, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Method, e.URL, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func (e *RequestError) ToHTTPError() *httperror.HTTPError {
	status := e.StatusCode
	if status == 0 {
		status = http.StatusBadGateway
	}
	return httperror.NewHTTPError(status, e.Error()).AddMetaValue("method", e.Method).AddMetaValue("url", e.URL)
}

func IsRequestError(err error) bool {
	var requestErr *RequestError
	return errors.As(err, &requestErr)
}
