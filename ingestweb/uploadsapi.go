// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package ingestweb

import (
	"errors"
	"io"
	"net/http"

	"storj.io/ingest/uploads"
)

// uploadResponse is the body of a successful upload call.
type uploadResponse struct {
	UploadedFiles int                    `json:"uploadedFiles"`
	Files         []uploads.UploadedFile `json:"files"`
}

// uploadFiles ingests the file parts of a multipart request into a batch.
// Parts are streamed one at a time; the handler never buffers a whole file in
// memory. The first failing part aborts the request, files committed before
// it stay committed.
func (server *Server) uploadFiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	batchID, err := pathUUID(r, "id")
	if err != nil {
		server.serveJSONError(w, r, err)
		return
	}
	agent, _ := GetAgent(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, server.config.MaxRequestSize.Int64())
	reader, err := r.MultipartReader()
	if err != nil {
		server.serveJSONError(w, r, ErrBadRequest.New("multipart body required: %v", err))
		return
	}

	var files []uploads.UploadedFile
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			server.serveJSONError(w, r, bodyError(err))
			return
		}
		if part.FileName() == "" {
			// non-file form fields carry nothing for this endpoint
			_ = part.Close()
			continue
		}

		file, err := server.uploads.Upload(ctx, batchID, agent.SiteID, uploads.Part{
			FileName:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Body:        part,
		})
		_ = part.Close()
		if err != nil {
			server.serveJSONError(w, r, bodyError(err))
			return
		}
		files = append(files, *file)
	}

	if len(files) == 0 {
		server.serveJSONError(w, r, ErrBadRequest.New("request carries no file parts"))
		return
	}
	serveJSON(server.log, w, http.StatusCreated, uploadResponse{
		UploadedFiles: len(files),
		Files:         files,
	})
}

// bodyError surfaces the request body size cap as a too-large error instead
// of the generic read failure it appears as mid-stream.
func bodyError(err error) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return uploads.ErrTooLarge.New("request body exceeds %d bytes", maxBytes.Limit)
	}
	return err
}
