package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/pvaneck/refstack/pkg/api/acl"
	"github.com/pvaneck/refstack/pkg/api/store"
	"github.com/sirupsen/logrus"
)

const (
	sessionCookieName = "refstack_session"
	sessionTokenBytes = 32
)

// Authenticator resolves the caller identity for a request. The OpenID
// handshake with the identity provider happens outside this server;
// whatever performs it uses IssueSession to mint the session this
// server later resolves.
type Authenticator interface {
	// Authenticate returns the caller for the request, or nil when the
	// request is anonymous.
	Authenticate(r *http.Request) (*acl.Caller, error)

	// IssueSession creates a session for a verified OpenID and returns
	// the opaque token to be set as the session cookie.
	IssueSession(ctx context.Context, openid string) (string, error)
}

// Compile-time interface check.
var _ Authenticator = (*sessionAuthenticator)(nil)

type sessionAuthenticator struct {
	log   logrus.FieldLogger
	store store.Store
	ttl   time.Duration
}

// NewSessionAuthenticator creates an Authenticator backed by the
// session table.
func NewSessionAuthenticator(
	log logrus.FieldLogger,
	st store.Store,
	ttl time.Duration,
) Authenticator {
	return &sessionAuthenticator{
		log:   log.WithField("component", "auth"),
		store: st,
		ttl:   ttl,
	}
}

// Authenticate resolves the session cookie to a caller. Requests
// without a valid, unexpired session are anonymous, not errors.
func (a *sessionAuthenticator) Authenticate(
	r *http.Request,
) (*acl.Caller, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil, nil
	}

	session, err := a.store.GetSessionByToken(r.Context(), cookie.Value)
	if err != nil {
		return nil, nil
	}

	if time.Now().UTC().After(session.ExpiresAt) {
		if err := a.store.DeleteSession(
			r.Context(), cookie.Value,
		); err != nil {
			a.log.WithError(err).Warn("Failed to delete expired session")
		}

		return nil, nil
	}

	return &acl.Caller{OpenID: session.OpenID}, nil
}

// IssueSession mints a session token for a verified OpenID.
func (a *sessionAuthenticator) IssueSession(
	ctx context.Context, openid string,
) (string, error) {
	token, err := generateSessionToken()
	if err != nil {
		return "", err
	}

	session := &store.Session{
		Token:     token,
		OpenID:    openid,
		ExpiresAt: time.Now().UTC().Add(a.ttl),
	}

	if err := a.store.CreateSession(ctx, session); err != nil {
		return "", err
	}

	return token, nil
}

// generateSessionToken creates a cryptographically random session token.
func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}

	return hex.EncodeToString(b), nil
}
