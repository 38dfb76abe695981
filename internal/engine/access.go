package engine

import (
	"context"
	"database/sql"
	"slices"
	"strings"

	"escra/internal/domain"
	"escra/internal/engine/auth"
	"escra/internal/events"
	"escra/internal/repo"
)

// resolve checks who and fills in its role from the claim, the stored
// assignment or access.default_role.
func (e Engine) resolve(ctx context.Context, tx *sql.Tx, who auth.Actor) (auth.Actor, error) {
	if strings.TrimSpace(who.ID) == "" {
		return who, invalidf("actor required")
	}
	if who.Role != "" && !auth.ValidRole(who.Role) {
		return who, invalidf("role %q must be one of %s", who.Role, strings.Join(auth.Roles, ", "))
	}
	return e.Auth.Resolve(ctx, tx, who, e.Config.Access.DefaultRole)
}

// Resolve returns who with its effective role.
func (e Engine) Resolve(ctx context.Context, who auth.Actor) (auth.Actor, error) {
	return e.resolve(ctx, nil, who)
}

// visible reports whether a may read c. Contracts without an owner predate
// ownership and stay visible to everyone.
func visible(c domain.Contract, a auth.Actor) bool {
	return a.IsAdmin() || c.CreatedBy == "" || c.CreatedBy == a.ID || slices.Contains(c.SharedWith, a.ID)
}

func owns(c domain.Contract, a auth.Actor) bool {
	return a.IsAdmin() || (c.CreatedBy != "" && c.CreatedBy == a.ID)
}

// visibleContract loads id for a. A contract a may not see is reported as
// not found.
func (e Engine) visibleContract(ctx context.Context, tx *sql.Tx, id string, a auth.Actor) (domain.Contract, error) {
	var c domain.Contract
	var err error
	if tx != nil {
		c, err = e.Repo.GetContractTx(ctx, tx, id)
	} else {
		c, err = e.Repo.GetContract(ctx, id)
	}
	if err != nil {
		return c, err
	}
	if !visible(c, a) {
		return domain.Contract{}, repo.ErrNotFound
	}
	return c, nil
}

// GetContract returns contract id when who may see it.
func (e Engine) GetContract(ctx context.Context, id string, who auth.Actor) (domain.Contract, error) {
	a, err := e.resolve(ctx, nil, who)
	if err != nil {
		return domain.Contract{}, err
	}
	return e.visibleContract(ctx, nil, id, a)
}

// AssignRole stores role for actorID. Only callers holding role.manage may do it.
func (e Engine) AssignRole(ctx context.Context, actorID, role string, who auth.Actor) (auth.Assignment, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return auth.Assignment{}, invalidf("actor id is required")
	}
	if !auth.ValidRole(role) {
		return auth.Assignment{}, invalidf("role %q must be one of %s", role, strings.Join(auth.Roles, ", "))
	}
	var a auth.Actor
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if a, err = e.resolve(ctx, tx, who); err != nil {
			return err
		}
		if err := a.Require(auth.PermRoleManage); err != nil {
			return err
		}
		if err := e.Auth.AssignRole(ctx, tx, actorID, role, a.ID); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.RoleAssigned, "actor", actorID, a.ID, events.EventPayload{"role": role})
	})
	if err != nil {
		return auth.Assignment{}, err
	}
	e.committed(events.RoleAssigned, actorID, a.ID)
	return auth.Assignment{ActorID: actorID, Role: role, AssignedBy: a.ID, AssignedAt: e.timestamp()}, nil
}

// RevokeRole drops the stored role of actorID, who then falls back to
// access.default_role.
func (e Engine) RevokeRole(ctx context.Context, actorID string, who auth.Actor) error {
	var a auth.Actor
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if a, err = e.resolve(ctx, tx, who); err != nil {
			return err
		}
		if err := a.Require(auth.PermRoleManage); err != nil {
			return err
		}
		found, err := e.Auth.RevokeRole(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if !found {
			return repo.ErrNotFound
		}
		return e.appendEvent(ctx, tx, events.RoleRevoked, "actor", actorID, a.ID, nil)
	})
	if err != nil {
		return err
	}
	e.committed(events.RoleRevoked, actorID, a.ID)
	return nil
}

func (e Engine) RoleAssignments(ctx context.Context) ([]auth.Assignment, error) {
	return e.Auth.Assignments(ctx)
}
