package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pvaneck/refstack/pkg/api/store"
)

type metaValueResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// handleGetTestMeta returns one metadata entry of a test record.
func (s *server) handleGetTestMeta(
	w http.ResponseWriter, r *http.Request,
) {
	testID := chi.URLParam(r, "test_id")
	key := chi.URLParam(r, "key")

	value, ok, err := s.store.GetTestMetaKey(r.Context(), testID, key)
	if err != nil {
		s.writeError(w, err)

		return
	}

	if !ok {
		s.writeError(w, fmt.Errorf(
			"test meta %s/%s: %w", testID, key, store.ErrNotFound,
		))

		return
	}

	writeJSON(w, http.StatusOK, metaValueResponse{Key: key, Value: value})
}

type setMetaRequest struct {
	Value string `json:"value"`
}

// handleSetTestMeta upserts one metadata entry of a test record.
func (s *server) handleSetTestMeta(
	w http.ResponseWriter, r *http.Request,
) {
	testID := chi.URLParam(r, "test_id")
	key := chi.URLParam(r, "key")

	var req setMetaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if err := s.store.SaveTestMetaItem(
		r.Context(), testID, key, req.Value,
	); err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated,
		metaValueResponse{Key: key, Value: req.Value})
}

// handleDeleteTestMeta removes one metadata entry of a test record.
func (s *server) handleDeleteTestMeta(
	w http.ResponseWriter, r *http.Request,
) {
	testID := chi.URLParam(r, "test_id")
	key := chi.URLParam(r, "key")

	if err := s.store.DeleteTestMetaItem(
		r.Context(), testID, key,
	); err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
