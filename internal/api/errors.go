package api

import (
	"context"
	"errors"
	"net/http"

	"ChainVault/internal/access"
	"ChainVault/internal/codec"
	"ChainVault/internal/coordinator"
	"ChainVault/internal/fragment"
	"ChainVault/internal/ledger"
	"ChainVault/internal/logger"
	"ChainVault/internal/selector"
	"ChainVault/internal/trust"
)

// statusOf maps an engine error to an HTTP status.
func statusOf(err error) int {
	var (
		notOwner    *access.NotOwnerError
		denied      *access.AccessDeniedError
		unknownFile *access.UnknownFileError
		unknownNode *trust.UnknownNodeError
		dupNode     *trust.DuplicateNodeError
		dupFile     *coordinator.DuplicateFileError
		fragErr     *fragment.FragmentationError
		insuff      *selector.InsufficientTrustedNodesError
		placement   *coordinator.PlacementError
		unrecovered *coordinator.UnrecoverableFragmentError
		integrity   *fragment.IntegrityError
		crypto      *codec.CryptoError
	)

	switch {
	case errors.As(err, &notOwner), errors.As(err, &denied):
		return http.StatusForbidden
	case errors.As(err, &unknownFile), errors.As(err, &unknownNode), errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &dupNode), errors.As(err, &dupFile):
		return http.StatusConflict
	case errors.As(err, &fragErr), errors.Is(err, trust.ErrInvalidScore):
		return http.StatusBadRequest
	case errors.As(err, &insuff):
		return http.StatusServiceUnavailable
	case errors.As(err, &placement), errors.As(err, &unrecovered):
		return http.StatusBadGateway
	case errors.As(err, &integrity), errors.As(err, &crypto):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError writes err with its mapped status. Server-side failures are logged.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Warn("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}

	writeError(w, status, err.Error())
}
