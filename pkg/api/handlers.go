package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pvaneck/refstack/pkg/api/acl"
	"github.com/pvaneck/refstack/pkg/api/store"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// writeError maps domain failures to HTTP status codes.
func (s *server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{err.Error()})
	case errors.Is(err, store.ErrDuplication):
		writeJSON(w, http.StatusConflict, errorResponse{err.Error()})
	case errors.Is(err, acl.ErrNotAuthorized):
		writeJSON(w, http.StatusUnauthorized, errorResponse{err.Error()})
	case errors.Is(err, errParseInputs):
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})
	default:
		s.log.WithError(err).Error("Request failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Test result handlers ---

type storeResultsResponse struct {
	TestID string `json:"test_id"`
}

// handleStoreResults accepts a test submission and stores the record,
// its result entries, and its metadata atomically.
func (s *server) handleStoreResults(
	w http.ResponseWriter, r *http.Request,
) {
	var sub store.TestSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if sub.CPID == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"cpid is required"})

		return
	}

	if len(sub.Results) == 0 {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"results are required"})

		return
	}

	testID, err := s.store.StoreResults(r.Context(), &sub)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, storeResultsResponse{TestID: testID})
}

type paginationResponse struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

type listResultsResponse struct {
	Pagination paginationResponse `json:"pagination"`
	Results    []store.Test       `json:"results"`
}

// handleListResults lists test records matching the query filters with
// stable newest-first ordering and 1-indexed pagination.
func (s *server) handleListResults(
	w http.ResponseWriter, r *http.Request,
) {
	caller := callerFromContext(r.Context())

	filters, err := s.parseTestFilters(r, caller)
	if err != nil {
		s.writeError(w, err)

		return
	}

	count, err := s.store.GetTestRecordsCount(r.Context(), filters)
	if err != nil {
		s.writeError(w, err)

		return
	}

	perPage := s.cfg.API.ResultsPerPage

	page, pages, err := getPageNumber(r, perPage, count)
	if err != nil {
		s.writeError(w, err)

		return
	}

	records, err := s.store.GetTestRecords(
		r.Context(), page, perPage, filters,
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	if records == nil {
		records = []store.Test{}
	}

	writeJSON(w, http.StatusOK, listResultsResponse{
		Pagination: paginationResponse{
			CurrentPage: page,
			TotalPages:  pages,
		},
		Results: records,
	})
}

type testDetailResponse struct {
	store.Test
	Results []string `json:"results"`
}

// handleGetTest returns a single test record with its result names.
// The minimum role has already been enforced by the route middleware.
func (s *server) handleGetTest(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "test_id")

	test, err := s.store.GetTest(r.Context(), testID)
	if err != nil {
		s.writeError(w, err)

		return
	}

	results, err := s.store.GetTestResults(r.Context(), testID)
	if err != nil {
		s.writeError(w, err)

		return
	}

	if results == nil {
		results = []string{}
	}

	writeJSON(w, http.StatusOK, testDetailResponse{
		Test:    *test,
		Results: results,
	})
}

// handleDeleteTest removes a test record with its metadata and results.
func (s *server) handleDeleteTest(
	w http.ResponseWriter, r *http.Request,
) {
	testID := chi.URLParam(r, "test_id")

	if err := s.store.DeleteTest(r.Context(), testID); err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGetTestRole reports the caller's computed role for a record.
func (s *server) handleGetTestRole(
	w http.ResponseWriter, r *http.Request,
) {
	testID := chi.URLParam(r, "test_id")
	caller := callerFromContext(r.Context())

	role, err := s.acl.RoleFor(r.Context(), testID, caller)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"role": role.String()})
}
