package handlers

import (
	"errors"
	"net/http"

	"github.com/spec-kit/storefront-session/internal/apiclient"
	"github.com/spec-kit/storefront-session/internal/service"
	apperrors "github.com/spec-kit/storefront-session/pkg/util/errorutil"
)

// mapAPIError turns a coordinator or backend failure into the single
// user-facing error the gateway returns.
func mapAPIError(err error) error {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, service.ErrSuperseded) {
		return apperrors.NewDomainError("SESSION_SUPERSEDED", err.Error(), http.StatusConflict, nil)
	}

	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		return apperrors.NewUpstreamError(apiErr.Status, apiclient.UserMessage(err), err)
	}
	return apperrors.NewUpstreamError(0, apiclient.UserMessage(err), err)
}

// mapResourceError is mapAPIError for protected resource calls, where a 401
// means the session has just been cleared and the caller must log in again.
func mapResourceError(err error) error {
	if errors.Is(err, apiclient.ErrUnauthorized) {
		return apperrors.NewUnauthorized("session expired; log in again")
	}
	return mapAPIError(err)
}
