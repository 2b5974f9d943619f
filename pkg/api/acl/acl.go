// Package acl decides what a caller may do with a test record. Roles
// form a lattice (none < user < owner) and ownership is computed from
// the caller's public keys, never stored on the record itself.
package acl

import (
	"context"
	"errors"
	"fmt"

	"github.com/pvaneck/refstack/pkg/api/store"
	"github.com/sirupsen/logrus"
)

// ErrNotAuthorized is returned when the computed role is insufficient
// for the requested operation. It maps to a 401 at the HTTP boundary.
var ErrNotAuthorized = errors.New("not authorized")

// Role is a caller's access level for a specific test record.
type Role int

// Role levels, ordered by privilege.
const (
	RoleNone Role = iota
	RoleUser
	RoleOwner
)

// Role names accepted by ParseRole.
const (
	roleNameNone  = "none"
	roleNameUser  = "user"
	roleNameOwner = "owner"
)

// String returns the configuration name of the role.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return roleNameUser
	case RoleOwner:
		return roleNameOwner
	default:
		return roleNameNone
	}
}

// ParseRole maps a configured role name to a Role. Unknown names are
// an error so that a bad operation-to-role table fails when the routes
// are built, not on the first request that hits it.
func ParseRole(name string) (Role, error) {
	switch name {
	case roleNameNone:
		return RoleNone, nil
	case roleNameUser:
		return RoleUser, nil
	case roleNameOwner:
		return RoleOwner, nil
	default:
		return RoleNone, fmt.Errorf("unknown role name: %q", name)
	}
}

// Caller identifies an authenticated request. A nil *Caller is an
// anonymous request.
type Caller struct {
	OpenID string
}

// Evaluator computes roles for (test record, caller) pairs and
// enforces minimum role requirements.
type Evaluator struct {
	log   logrus.FieldLogger
	store store.Store
}

// NewEvaluator creates an Evaluator backed by the given store.
func NewEvaluator(
	log logrus.FieldLogger,
	st store.Store,
) *Evaluator {
	return &Evaluator{
		log:   log.WithField("component", "acl"),
		store: st,
	}
}

// RoleFor computes the caller's role for a test record:
//
//   - no public_key metadata: the record is public, anyone is a user;
//   - a non-empty shared metadata entry: a user, whoever the caller is;
//   - anonymous caller: none;
//   - a caller key matching the record's public_key value: owner;
//   - otherwise: none.
func (e *Evaluator) RoleFor(
	ctx context.Context, testID string, caller *Caller,
) (Role, error) {
	testPubKey, ok, err := e.store.GetTestMetaKey(
		ctx, testID, store.MetaPublicKey,
	)
	if err != nil {
		return RoleNone, fmt.Errorf("reading public_key meta: %w", err)
	}

	if !ok {
		return RoleUser, nil
	}

	shared, ok, err := e.store.GetTestMetaKey(
		ctx, testID, store.MetaSharedTestRun,
	)
	if err != nil {
		return RoleNone, fmt.Errorf("reading shared meta: %w", err)
	}

	if ok && shared != "" {
		return RoleUser, nil
	}

	if caller == nil {
		return RoleNone, nil
	}

	keys, err := e.store.GetUserPubKeys(ctx, caller.OpenID)
	if err != nil {
		return RoleNone, fmt.Errorf("listing caller pubkeys: %w", err)
	}

	for i := range keys {
		if keys[i].KeyString() == testPubKey {
			return RoleOwner, nil
		}
	}

	return RoleNone, nil
}

// Enforce fails with ErrNotAuthorized unless the caller's computed
// role is at least the required one. It has no side effects.
func (e *Evaluator) Enforce(
	ctx context.Context,
	testID string,
	caller *Caller,
	required Role,
) error {
	role, err := e.RoleFor(ctx, testID, caller)
	if err != nil {
		return err
	}

	if role < required {
		e.log.WithField("test_id", testID).
			WithField("role", role.String()).
			WithField("required", required.String()).
			Debug("Permission denied")

		return fmt.Errorf(
			"test %s requires %s role: %w",
			testID, required.String(), ErrNotAuthorized,
		)
	}

	return nil
}
