// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"embedproxy/internal/batcher"
)

type embedRequest struct {
	Inputs []string `json:"inputs"`
}

// handleEmbed implements POST /embed: decode, submit, encode. The external
// contract is identical to the upstream service's own /embed endpoint.
func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req embedRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if len(req.Inputs) == 0 {
		writeError(w, http.StatusBadRequest, "inputs must be a non-empty array of strings")
		return
	}

	embeddings, err := s.batch.Submit(r.Context(), req.Inputs)
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(embeddings)
}

func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, batcher.ErrOverloaded):
		writeError(w, http.StatusTooManyRequests, "batcher overloaded, try again")
	case errors.Is(err, batcher.ErrBatcherUnavailable):
		writeError(w, http.StatusServiceUnavailable, "batcher unavailable")
	default:
		var upErr *batcher.UpstreamError
		if errors.As(err, &upErr) {
			s.logger.Warn("upstream flush failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "upstream embedding service failed")
			return
		}
		// Context cancellation or deadline: the client is gone or gave up.
		writeError(w, http.StatusServiceUnavailable, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
