// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package ingestweb

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/ingest/accounts"
	"storj.io/ingest/adminauth"
	"storj.io/ingest/authtoken"
	"storj.io/ingest/batches"
	"storj.io/ingest/errorlogs"
	"storj.io/ingest/uploads"
)

var (
	// Error is the default ingestweb error class.
	Error = errs.Class("ingestweb")
	// ErrUnauthorized occurs when a protected route has no valid credential.
	ErrUnauthorized = errs.Class("unauthorized")
	// ErrWrongTokenType occurs when a credential of the wrong kind is
	// presented for a route.
	ErrWrongTokenType = errs.Class("wrong token type")
	// ErrAmbiguousPrincipal occurs when a request presents both an agent
	// and an admin token at once.
	ErrAmbiguousPrincipal = errs.Class("ambiguous principal")
	// ErrBadRequest occurs when a request is syntactically malformed.
	ErrBadRequest = errs.Class("bad request")
)

// errorEnvelope is the wire shape of every error response.
type errorEnvelope struct {
	Status    int    `json:"status"`
	Err       string `json:"error"`
	Message   string `json:"message"`
	Path      string `json:"path"`
	Timestamp string `json:"timestamp"`
}

// statusCode maps domain error classes to HTTP statuses. Domain errors cross
// the application layer unchanged and are translated exactly once, here.
func statusCode(err error) int {
	switch {
	case accounts.ErrValidation.Has(err),
		uploads.ErrValidation.Has(err),
		errorlogs.ErrValidation.Has(err),
		uploads.ErrDuplicateFile.Has(err),
		batches.ErrInvalidState.Has(err),
		ErrAmbiguousPrincipal.Has(err),
		ErrBadRequest.Has(err):
		return http.StatusBadRequest
	case ErrUnauthorized.Has(err),
		accounts.ErrAuthentication.Has(err),
		authtoken.ErrToken.Has(err),
		adminauth.ErrToken.Has(err):
		return http.StatusUnauthorized
	case ErrWrongTokenType.Has(err),
		batches.ErrOwnership.Has(err),
		errorlogs.ErrOwnership.Has(err),
		adminauth.ErrForbidden.Has(err):
		return http.StatusForbidden
	case accounts.ErrNotFound.Has(err),
		batches.ErrNotFound.Has(err),
		uploads.ErrNotFound.Has(err),
		errorlogs.ErrNotFound.Has(err):
		return http.StatusNotFound
	case batches.ErrActiveBatchExists.Has(err):
		return http.StatusConflict
	case uploads.ErrTooLarge.Has(err):
		return http.StatusRequestEntityTooLarge
	case batches.ErrConcurrencyLimit.Has(err):
		return http.StatusTooManyRequests
	case uploads.ErrStorage.Has(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// serveJSONError writes the error envelope for err. Authentication failures
// and internal errors get deliberately generic messages; the cause is logged
// with the request correlation id instead.
func (server *Server) serveJSONError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusCode(err)

	message := err.Error()
	switch status {
	case http.StatusUnauthorized:
		message = "authentication failed"
	case http.StatusInternalServerError:
		message = "internal server error"
		server.log.Error("unexpected error",
			zap.String("requestId", requestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	default:
		server.log.Debug("request failed",
			zap.String("requestId", requestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}

	serveJSON(server.log, w, status, errorEnvelope{
		Status:    status,
		Err:       http.StatusText(status),
		Message:   message,
		Path:      r.URL.Path,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// serveJSON writes a JSON response with the given status.
func serveJSON(log *zap.Logger, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("failed to encode response", zap.Error(err))
	}
}
