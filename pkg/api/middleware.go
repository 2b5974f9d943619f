package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pvaneck/refstack/pkg/api/acl"
)

type contextKey string

const callerContextKey contextKey = "caller"

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// withCaller resolves the session cookie and injects the caller into
// the request context. Anonymous requests pass through with no caller;
// access decisions are made per operation by the evaluator.
func (s *server) withCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.auth.Authenticate(r)
		if err != nil {
			s.log.WithError(err).Warn("Failed to authenticate request")
		}

		if caller != nil {
			ctx := context.WithValue(r.Context(), callerContextKey, caller)
			r = r.WithContext(ctx)
		}

		next.ServeHTTP(w, r)
	})
}

// requireTestRole enforces a minimum role for the test record named by
// the test_id URL parameter.
func (s *server) requireTestRole(
	required acl.Role,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			testID := chi.URLParam(r, "test_id")
			caller := callerFromContext(r.Context())

			if err := s.acl.Enforce(
				r.Context(), testID, caller, required,
			); err != nil {
				s.writeError(w, err)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// callerFromContext extracts the authenticated caller, nil when anonymous.
func callerFromContext(ctx context.Context) *acl.Caller {
	caller, _ := ctx.Value(callerContextKey).(*acl.Caller)

	return caller
}
