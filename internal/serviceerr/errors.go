// Package serviceerr holds the errors surfaced to HTTP clients together
// with their OAuth2 error codes.
package serviceerr

import (
	"encoding/json"
	"net/http"
)

type Code string

// RFC6749 section 5.2 and RFC7009 section 2.2.1
const (
	CodeInvalidRequest         Code = "invalid_request"
	CodeUnauthorizedClient     Code = "unauthorized_client"
	CodeAccessDenied           Code = "access_denied"
	CodeInvalidScope           Code = "invalid_scope"
	CodeServerError            Code = "server_error"
	CodeTemporarilyUnavailable Code = "temporarily_unavailable"
	CodeInvalidClient          Code = "invalid_client"
	CodeInvalidGrant           Code = "invalid_grant"
	CodeUnsupportedGrantType   Code = "unsupported_grant_type"
	CodeUnsupportedTokenType   Code = "unsupported_token_type"
)

// RFC6750 section 3.1
const (
	CodeInvalidToken      Code = "invalid_token"
	CodeInsufficientScope Code = "insufficient_scope"
)

const (
	CodeUnknown        Code = "unknown"
	CodeConflict       Code = "conflict"
	CodeNotFound       Code = "not_found"
	CodeHostNotAllowed Code = "host_not_allowed"
)

type Error struct {
	Err         Code   `json:"error"`
	Description string `json:"error_description,omitempty"`
}

var (
	ErrInvalidRequest         = &Error{Err: CodeInvalidRequest}
	ErrServerError            = &Error{Err: CodeServerError}
	ErrTemporarilyUnavailable = &Error{Err: CodeTemporarilyUnavailable}
	ErrInvalidGrant           = &Error{Err: CodeInvalidGrant}

	ErrNotFound       = &Error{Err: CodeNotFound, Description: "not found"}
	ErrHostNotAllowed = &Error{Err: CodeHostNotAllowed, Description: "host is not allowed to act as issuer"}
)

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return string(e.Err) + ": " + e.Description
}

// WithDescription returns a copy of e carrying the given description.
func (e *Error) WithDescription(desc string) *Error {
	return &Error{Err: e.Err, Description: desc}
}

// Is matches errors by code so that copies made by WithDescription
// still match their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Err == t.Err
}

func (e *Error) HTTPStatus() int {
	switch e.Err {
	case CodeInvalidRequest, CodeInvalidScope, CodeInvalidClient, CodeInvalidGrant,
		CodeUnsupportedGrantType, CodeUnsupportedTokenType, CodeHostNotAllowed:
		return http.StatusBadRequest
	case CodeUnauthorizedClient, CodeInvalidToken:
		return http.StatusUnauthorized
	case CodeAccessDenied, CodeInsufficientScope:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTemporarilyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes e as an RFC6749 error response.
func WriteJSON(w http.ResponseWriter, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(e.HTTPStatus())
	_ = json.NewEncoder(w).Encode(e)
}
