package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/CloudNativeWorks/cnw-keyserver/internal/audit"
	"github.com/CloudNativeWorks/cnw-keyserver/internal/docstore"
	"github.com/CloudNativeWorks/cnw-keyserver/internal/license"
	"github.com/CloudNativeWorks/cnw-keyserver/internal/mirror"
	"github.com/CloudNativeWorks/cnw-keyserver/internal/release"
)

// Error codes carried in the response body. Clients match on these.
const (
	CodeInvalidSpec        = "INVALID_SPEC"
	CodeNotFound           = "NOT_FOUND"
	CodeAlreadyExists      = "ALREADY_EXISTS"
	CodeNotBound           = "NOT_BOUND"
	CodeStoreUnavailable   = "STORE_UNAVAILABLE"
	CodeRemoteSyncConflict = "REMOTE_SYNC_CONFLICT"
	CodeInternal           = "INTERNAL"
)

// ErrResponse renders {"error":{"code":"...","message":"..."}}.
type ErrResponse struct {
	HTTPStatusCode int       `json:"-"`
	Err            ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrResponse) Render(_ http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func errResponse(status int, code, message string) *ErrResponse {
	return &ErrResponse{HTTPStatusCode: status, Err: ErrorBody{Code: code, Message: message}}
}

// ErrInvalidRequest is returned for bodies that fail to decode or validate.
func ErrInvalidRequest(err error) render.Renderer {
	return errResponse(http.StatusBadRequest, CodeInvalidSpec, err.Error())
}

// mapError converts a domain or store error to its response. Store failures
// hide their cause from the client.
func mapError(err error) *ErrResponse {
	switch {
	case errors.Is(err, license.ErrInvalidSpec),
		errors.Is(err, audit.ErrInvalidKind),
		errors.Is(err, release.ErrInvalidRelease):
		return errResponse(http.StatusBadRequest, CodeInvalidSpec, err.Error())
	case errors.Is(err, license.ErrNotFound), errors.Is(err, release.ErrNotFound):
		return errResponse(http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, license.ErrAlreadyExists):
		return errResponse(http.StatusConflict, CodeAlreadyExists, err.Error())
	case errors.Is(err, license.ErrNotBound):
		return errResponse(http.StatusConflict, CodeNotBound, err.Error())
	case errors.Is(err, license.ErrRemoteSyncConflict), errors.Is(err, mirror.ErrVersionConflict):
		return errResponse(http.StatusBadGateway, CodeRemoteSyncConflict, "remote mirror changed concurrently, retry the request")
	case errors.Is(err, license.ErrStoreUnavailable),
		errors.Is(err, docstore.ErrUnavailable),
		errors.Is(err, docstore.ErrVersionConflict):
		return errResponse(http.StatusServiceUnavailable, CodeStoreUnavailable, "store unavailable, retry the request")
	default:
		return errResponse(http.StatusInternalServerError, CodeInternal, "internal error")
	}
}
