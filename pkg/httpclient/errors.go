package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/sonic7adarsh/bharatapp/pkg/errors"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 1 << 20

// DownstreamError is a non-2xx answer from a collaborator. Message holds the
// server-provided text verbatim ("" when the body carried none) so callers
// can show it to the user unchanged.
type DownstreamError struct {
	Service string
	Status  int
	Code    string
	Message string
}

func (e *DownstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s returned status %d: %s", e.Service, e.Status, e.Message)
	}
	return fmt.Sprintf("%s returned status %d", e.Service, e.Status)
}

// AsDownstream unwraps err into a *DownstreamError if it carries one.
func AsDownstream(err error) (*DownstreamError, bool) {
	var de *DownstreamError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsUnauthorized reports whether err is a 401 from a collaborator.
func IsUnauthorized(err error) bool {
	de, ok := AsDownstream(err)
	return ok && de.Status == http.StatusUnauthorized
}

// errorBody accepts the shapes collaborators use:
// {"message": "..."}, {"error": "..."} and {"error": {"code": "...", "message": "..."}}.
type errorBody struct {
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

// ParseResponseError reads a non-2xx response and returns a *DownstreamError.
// The body is fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	return newDownstreamError(serviceName, resp.StatusCode, bodyBytes)
}

func newDownstreamError(service string, status int, body []byte) *DownstreamError {
	de := &DownstreamError{Service: service, Status: status}

	var eb errorBody
	if json.Unmarshal(body, &eb) != nil {
		return de
	}
	de.Message = strings.TrimSpace(eb.Message)

	if len(eb.Error) > 0 {
		var s string
		if json.Unmarshal(eb.Error, &s) == nil {
			if de.Message == "" {
				de.Message = strings.TrimSpace(s)
			}
			return de
		}
		var structured struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(eb.Error, &structured) == nil {
			de.Code = structured.Code
			if de.Message == "" {
				de.Message = strings.TrimSpace(structured.Message)
			}
		}
	}
	return de
}

// ToAppError translates a collaborator failure into an AppError. fallback is
// the user-facing message used when the server gave none.
func ToAppError(err error, fallback string) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	de, ok := AsDownstream(err)
	if !ok {
		return apperrors.RemoteUnavailable(fallback, err)
	}

	msg := de.Message
	if msg == "" {
		msg = fallback
	}

	switch {
	case de.Status == http.StatusUnauthorized:
		return apperrors.Unauthorized(msg)
	case de.Status == http.StatusNotFound:
		return apperrors.NotFound(de.Service, msg)
	case de.Status == http.StatusConflict:
		return apperrors.Conflict(msg)
	case de.Status == http.StatusBadRequest, de.Status == http.StatusUnprocessableEntity:
		return &apperrors.AppError{
			Code:    apperrors.CodeValidation,
			Message: msg,
			Status:  de.Status,
			Err:     fmt.Errorf("%w: %w", apperrors.ErrValidation, de),
		}
	default:
		return apperrors.RemoteUnavailable(msg, de)
	}
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
