package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pvaneck/refstack/pkg/api/acl"
)

// Minimum roles per operation of the role-gated resources. The tables
// are resolved through acl.ParseRole while the router is built, so an
// unknown role name fails server startup instead of the first request.
var (
	resultOperationRoles = map[string]string{
		"get":    "user",
		"delete": "owner",
	}

	metaOperationRoles = map[string]string{
		"get":    "owner",
		"post":   "owner",
		"delete": "owner",
	}
)

// resolveOperationRoles parses a name-keyed role table.
func resolveOperationRoles(
	table map[string]string,
) (map[string]acl.Role, error) {
	resolved := make(map[string]acl.Role, len(table))

	for op, name := range table {
		role, err := acl.ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("operation %q: %w", op, err)
		}

		resolved[op] = role
	}

	return resolved, nil
}

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() (http.Handler, error) {
	resultRoles, err := resolveOperationRoles(resultOperationRoles)
	if err != nil {
		return nil, fmt.Errorf("resolving result roles: %w", err)
	}

	metaRoles, err := resolveOperationRoles(metaOperationRoles)
	if err != nil {
		return nil, fmt.Errorf("resolving meta roles: %w", err)
	}

	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	if s.cfg.Server.RateLimit.Enabled {
		r.Use(s.rateLimitMiddleware(
			s.cfg.Server.RateLimit.RequestsPerMinute,
		))
	}

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.withCaller)

		r.Route("/results", func(r chi.Router) {
			r.Get("/", s.handleListResults)
			r.Post("/", s.handleStoreResults)

			r.Route("/{test_id}", func(r chi.Router) {
				r.With(s.requireTestRole(resultRoles["get"])).
					Get("/", s.handleGetTest)
				r.With(s.requireTestRole(resultRoles["delete"])).
					Delete("/", s.handleDeleteTest)

				r.Get("/role", s.handleGetTestRole)

				r.Route("/meta/{key}", func(r chi.Router) {
					r.With(s.requireTestRole(metaRoles["get"])).
						Get("/", s.handleGetTestMeta)
					r.With(s.requireTestRole(metaRoles["post"])).
						Post("/", s.handleSetTestMeta)
					r.With(s.requireTestRole(metaRoles["delete"])).
						Delete("/", s.handleDeleteTestMeta)
				})
			})
		})

		r.Route("/profile", func(r chi.Router) {
			r.Get("/", s.handleGetProfile)
			r.Get("/pubkeys", s.handleListPubKeys)
			r.Post("/pubkeys", s.handleStorePubKey)
			r.Delete("/pubkeys/{id}", s.handleDeletePubKey)
		})
	})

	return r, nil
}

// corsMiddleware returns a CORS handler configured from the server config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	origins := s.cfg.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Reflect the requesting origin so credentials work from any origin.
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
