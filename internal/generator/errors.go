package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// Error kinds surfaced by the generation boundary.
var (
	// ErrCredential is returned when the API key is missing, invalid or lacks permission.
	ErrCredential = errors.New("generator: credential rejected")
	// ErrQuota is returned when the account ran out of quota or was rate limited.
	ErrQuota = errors.New("generator: quota exhausted")
	// ErrInvalidRequest is returned when a request fails validation.
	ErrInvalidRequest = errors.New("generator: invalid request")
	// ErrNoVideo is returned when a finished operation carries no clip.
	ErrNoVideo = errors.New("generator: no video returned")
	// ErrFiltered is returned when the safety filter removed every clip.
	ErrFiltered = errors.New("generator: output blocked by safety filter")
	// ErrRemote wraps any other failure reported by the service.
	ErrRemote = errors.New("generator: remote failure")
)

// Error is a classified generation failure.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsCredentialError reports whether err should prompt the user to re-enter a credential.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrCredential) || errors.Is(err, ErrQuota)
}

// Classify wraps err in an *Error whose Kind reflects the failure.
// Context errors and already classified errors are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if code, status, ok := apiErrorOf(err); ok {
		return &Error{Kind: kindOf(code, status, err.Error()), Op: op, Err: err}
	}
	return &Error{Kind: kindOf(0, "", err.Error()), Op: op, Err: err}
}

func apiErrorOf(err error) (int, string, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Status, true
	}
	var apiPtr *genai.APIError
	if errors.As(err, &apiPtr) && apiPtr != nil {
		return apiPtr.Code, apiPtr.Status, true
	}
	return 0, "", false
}

func kindOf(code int, status, message string) error {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden,
		status == "UNAUTHENTICATED", status == "PERMISSION_DENIED":
		return ErrCredential
	case code == http.StatusTooManyRequests, status == "RESOURCE_EXHAUSTED":
		return ErrQuota
	}

	// Long-running operations report failures as plain maps, so fall back
	// to the markers the service puts in its messages.
	switch {
	case strings.Contains(message, "API_KEY_INVALID"),
		strings.Contains(message, "API key not valid"):
		return ErrCredential
	case strings.Contains(message, "RESOURCE_EXHAUSTED"),
		strings.Contains(strings.ToLower(message), "quota"):
		return ErrQuota
	}
	return ErrRemote
}

// rpcStatus names the google.rpc codes that operation errors carry.
var rpcStatus = map[int]string{
	7:  "PERMISSION_DENIED",
	8:  "RESOURCE_EXHAUSTED",
	16: "UNAUTHENTICATED",
}

// operationError converts the error map of a finished operation.
func operationError(m map[string]any) error {
	if len(m) == 0 {
		return nil
	}
	apiErr := genai.APIError{}
	switch c := m["code"].(type) {
	case float64:
		apiErr.Code = int(c)
	case int:
		apiErr.Code = c
	case int32:
		apiErr.Code = int(c)
	}
	if msg, ok := m["message"].(string); ok {
		apiErr.Message = msg
	}
	if st, ok := m["status"].(string); ok {
		apiErr.Status = st
	}
	if apiErr.Status == "" {
		apiErr.Status = rpcStatus[apiErr.Code]
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprint(m)
	}
	return apiErr
}
