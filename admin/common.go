// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package admin

import (
	"encoding/json"
	"net/http"

	"github.com/zeebo/errs"

	"storj.io/ingest/accounts"
	"storj.io/ingest/batches"
	"storj.io/ingest/errorlogs"
	"storj.io/ingest/uploads"
)

// Error is default error class for admin package.
var Error = errs.Class("admin")

// sendJSONError writes a JSON error to the response output stream.
func sendJSONError(w http.ResponseWriter, errMsg, detailedErrMsg string, statusCode int) {
	errStr := struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}{
		Error:  errMsg,
		Detail: detailedErrMsg,
	}
	body, err := json.Marshal(errStr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sendJSONData(w, statusCode, body)
}

// sendJSONData writes a JSON correctly serialized data to the response output
// stream.
func sendJSONData(w http.ResponseWriter, statusCode int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(data) // any error here entails that the response is corrupted
}

// serveError translates a domain error to its admin API status.
func serveError(w http.ResponseWriter, errMsg string, err error) {
	sendJSONError(w, errMsg, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch {
	case accounts.ErrValidation.Has(err),
		errorlogs.ErrValidation.Has(err),
		uploads.ErrValidation.Has(err):
		return http.StatusBadRequest
	case accounts.ErrNotFound.Has(err),
		batches.ErrNotFound.Has(err),
		uploads.ErrNotFound.Has(err),
		errorlogs.ErrNotFound.Has(err):
		return http.StatusNotFound
	case accounts.ErrEmailTaken.Has(err),
		accounts.ErrDomainTaken.Has(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
