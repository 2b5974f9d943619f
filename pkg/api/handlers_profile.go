package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pvaneck/refstack/pkg/api/store"
)

// handleGetProfile returns the authenticated user's record.
func (s *server) handleGetProfile(
	w http.ResponseWriter, r *http.Request,
) {
	caller := callerFromContext(r.Context())
	if caller == nil {
		writeJSON(w, http.StatusUnauthorized,
			errorResponse{"authentication required"})

		return
	}

	user, err := s.store.UserGet(r.Context(), caller.OpenID)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleListPubKeys lists the authenticated user's public keys.
func (s *server) handleListPubKeys(
	w http.ResponseWriter, r *http.Request,
) {
	caller := callerFromContext(r.Context())
	if caller == nil {
		writeJSON(w, http.StatusUnauthorized,
			errorResponse{"authentication required"})

		return
	}

	keys, err := s.store.GetUserPubKeys(r.Context(), caller.OpenID)
	if err != nil {
		s.writeError(w, err)

		return
	}

	if keys == nil {
		keys = []store.PubKey{}
	}

	writeJSON(w, http.StatusOK, keys)
}

type storePubKeyRequest struct {
	Format  string `json:"format"`
	Key     string `json:"key"`
	Comment string `json:"comment,omitempty"`
}

// handleStorePubKey stores a public key for the authenticated user.
// A key with the same fingerprint and material as an existing one is
// rejected with a conflict.
func (s *server) handleStorePubKey(
	w http.ResponseWriter, r *http.Request,
) {
	caller := callerFromContext(r.Context())
	if caller == nil {
		writeJSON(w, http.StatusUnauthorized,
			errorResponse{"authentication required"})

		return
	}

	var req storePubKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if req.Format == "" || req.Key == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"format and key are required"})

		return
	}

	key := &store.PubKey{
		OpenID:  caller.OpenID,
		Format:  req.Format,
		PubKey:  req.Key,
		Comment: req.Comment,
	}

	id, err := s.store.StorePubKey(r.Context(), key)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, map[string]uint{"id": id})
}

// handleDeletePubKey deletes a public key owned by the authenticated
// user. Keys of other users are indistinguishable from missing ones.
func (s *server) handleDeletePubKey(
	w http.ResponseWriter, r *http.Request,
) {
	caller := callerFromContext(r.Context())
	if caller == nil {
		writeJSON(w, http.StatusUnauthorized,
			errorResponse{"authentication required"})

		return
	}

	raw := chi.URLParam(r, "id")

	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid pubkey id"})

		return
	}

	keys, err := s.store.GetUserPubKeys(r.Context(), caller.OpenID)
	if err != nil {
		s.writeError(w, err)

		return
	}

	owned := false

	for i := range keys {
		if keys[i].ID == uint(id) {
			owned = true

			break
		}
	}

	if !owned {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"pubkey not found"})

		return
	}

	if err := s.store.DeletePubKey(r.Context(), uint(id)); err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
