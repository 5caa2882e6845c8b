// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package vaultd

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/haven-foundation/haven/lib/codec"
	"github.com/haven-foundation/haven/vault"
)

// maxBodySize bounds request bodies. Vault records are small (account
// packets, access containers, revocation checkpoints, blob chunks);
// 16 MiB leaves generous headroom over the largest blob chunk.
const maxBodySize = 16 << 20

// ServerConfig holds configuration for creating a Server.
type ServerConfig struct {
	// Store is the vault the gateway fronts. Required.
	Store vault.Vault

	// Logger is used for structured request logging. If nil,
	// slog.Default() is used.
	Logger *slog.Logger
}

// Server translates the gateway wire protocol onto a vault.Vault. It
// implements http.Handler; the caller owns the http.Server lifecycle.
type Server struct {
	store  vault.Vault
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer creates a gateway server over config.Store.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("vaultd: Store is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := &Server{
		store:  config.Store,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	server.mux.HandleFunc("GET /v1/record/{address}", server.handleGet)
	server.mux.HandleFunc("PUT /v1/record/{address}", server.handlePut)
	server.mux.HandleFunc("POST /v1/record/{address}/mutate", server.handleMutate)
	server.mux.HandleFunc("POST /v1/record/{address}/delete", server.handleDelete)
	return server, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	address, ok := s.pathAddress(w, r)
	if !ok {
		return
	}

	record, err := s.store.Get(r.Context(), address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeBody(w, r, RecordResponse{Version: record.Version, Payload: record.Payload})
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	address, ok := s.pathAddress(w, r)
	if !ok {
		return
	}
	var request PutRequest
	if !s.readBody(w, r, &request) {
		return
	}

	version, err := s.store.Put(r.Context(), address, request.Payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeBody(w, r, VersionResponse{Version: version})
}

func (s *Server) handleMutate(w http.ResponseWriter, r *http.Request) {
	address, ok := s.pathAddress(w, r)
	if !ok {
		return
	}
	var request MutateRequest
	if !s.readBody(w, r, &request) {
		return
	}

	version, err := s.store.Mutate(r.Context(), address, request.ExpectedVersion, request.Payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeBody(w, r, VersionResponse{Version: version})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	address, ok := s.pathAddress(w, r)
	if !ok {
		return
	}
	var request DeleteRequest
	if !s.readBody(w, r, &request) {
		return
	}

	if err := s.store.Delete(r.Context(), address, request.ExpectedVersion); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathAddress parses the {address} path segment. On failure it writes
// a BAD_REQUEST response and returns ok=false.
func (s *Server) pathAddress(w http.ResponseWriter, r *http.Request) (vault.Address, bool) {
	address, err := vault.ParseAddress(r.PathValue("address"))
	if err != nil {
		s.writeStatus(w, http.StatusBadRequest, ErrorResponse{
			Code:    CodeBadRequest,
			Message: err.Error(),
		})
		return vault.Address{}, false
	}
	return address, true
}

// readBody decodes a CBOR request body into out. On failure it writes
// a BAD_REQUEST response and returns false.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request, out any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err == nil {
		err = codec.Unmarshal(body, out)
	}
	if err != nil {
		s.writeStatus(w, http.StatusBadRequest, ErrorResponse{
			Code:    CodeBadRequest,
			Message: fmt.Sprintf("decoding request body: %v", err),
		})
		return false
	}
	return true
}

func (s *Server) writeBody(w http.ResponseWriter, r *http.Request, body any) {
	encoded, err := codec.Marshal(body)
	if err != nil {
		s.logger.Error("encoding gateway response",
			"path", r.URL.Path, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	w.Write(encoded)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, status := codeForError(err)
	if status >= 500 {
		s.logger.Error("gateway store error",
			"path", r.URL.Path, "code", code, "error", err)
	} else {
		s.logger.Debug("gateway request rejected",
			"path", r.URL.Path, "code", code, "error", err)
	}
	s.writeStatus(w, status, ErrorResponse{Code: code, Message: err.Error()})
}

func (s *Server) writeStatus(w http.ResponseWriter, status int, body ErrorResponse) {
	encoded, err := codec.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	w.WriteHeader(status)
	w.Write(encoded)
}
