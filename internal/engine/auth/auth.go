package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Roles a caller may hold.
const (
	RoleAdmin   = "admin"
	RoleCreator = "creator"
	RoleEditor  = "editor"
	RoleViewer  = "viewer"
)

var Roles = []string{RoleAdmin, RoleCreator, RoleEditor, RoleViewer}

// Permissions checked by the engine.
const (
	PermContractCreate = "contract.create"
	PermContractUpdate = "contract.update"
	PermContractDelete = "contract.delete"
	// PermContractAll lifts owner scoping on reads and deletes.
	PermContractAll  = "contract.all"
	PermTaskWrite    = "task.write"
	PermCommentWrite = "comment.write"
	PermRoleManage   = "role.manage"
)

var rolePermissions = map[string][]string{
	RoleAdmin: {
		PermContractCreate, PermContractUpdate, PermContractDelete, PermContractAll,
		PermTaskWrite, PermCommentWrite, PermRoleManage,
	},
	RoleCreator: {PermContractCreate, PermContractUpdate, PermContractDelete, PermTaskWrite, PermCommentWrite},
	RoleEditor:  {PermContractUpdate, PermTaskWrite, PermCommentWrite},
	RoleViewer:  {PermCommentWrite},
}

// ErrForbidden matches every ForbiddenError.
var ErrForbidden = errors.New("forbidden")

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
	Role       string
}

func (e ForbiddenError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("permission %s required", e.Permission)
	}
	return fmt.Sprintf("permission %s required (role %s)", e.Permission, e.Role)
}

func (e ForbiddenError) Is(target error) bool { return target == ErrForbidden }

// ValidRole reports whether role is one of Roles.
func ValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// Permissions returns the permissions granted to role.
func Permissions(role string) []string {
	return append([]string(nil), rolePermissions[role]...)
}

// Actor is a caller identified by display name. An empty Role is resolved
// by Service.Resolve.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role,omitempty"`
}

func (a Actor) Can(perm string) bool {
	for _, p := range rolePermissions[a.Role] {
		if p == perm {
			return true
		}
	}
	return false
}

// Require returns a ForbiddenError unless a holds perm.
func (a Actor) Require(perm string) error {
	if a.Can(perm) {
		return nil
	}
	return ForbiddenError{Permission: perm, Role: a.Role}
}

func (a Actor) IsAdmin() bool { return a.Can(PermContractAll) }

// Assignment is a stored role for one actor.
type Assignment struct {
	ActorID    string `json:"actor_id"`
	Role       string `json:"role"`
	AssignedBy string `json:"assigned_by"`
	AssignedAt string `json:"assigned_at"`
}

// Service stores role assignments in SQL.
type Service struct {
	DB *sql.DB
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s Service) conn(tx *sql.Tx) queryer {
	if tx != nil {
		return tx
	}
	return s.DB
}

// Resolve fills in a.Role. A role carried by the caller wins, then the
// stored assignment, then fallback.
func (s Service) Resolve(ctx context.Context, tx *sql.Tx, a Actor, fallback string) (Actor, error) {
	a.ID = strings.TrimSpace(a.ID)
	if a.ID == "" {
		return a, errors.New("actor required")
	}
	if a.Role != "" {
		if !ValidRole(a.Role) {
			return a, fmt.Errorf("unknown role %q", a.Role)
		}
		return a, nil
	}
	stored, err := s.ActorRole(ctx, tx, a.ID)
	if err != nil {
		return a, err
	}
	switch {
	case stored != "":
		a.Role = stored
	case ValidRole(fallback):
		a.Role = fallback
	default:
		a.Role = RoleViewer
	}
	return a, nil
}

// ActorRole returns the stored role of actorID, or "" when none is assigned.
func (s Service) ActorRole(ctx context.Context, tx *sql.Tx, actorID string) (string, error) {
	var role string
	err := s.conn(tx).QueryRowContext(ctx, `SELECT role FROM actor_roles WHERE actor_id=?`, actorID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return role, err
}

func (s Service) AssignRole(ctx context.Context, tx *sql.Tx, actorID, role, assignedBy string) error {
	if strings.TrimSpace(actorID) == "" {
		return errors.New("actor_id required")
	}
	if !ValidRole(role) {
		return fmt.Errorf("unknown role %q", role)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO actor_roles(actor_id, role, assigned_by, assigned_at) VALUES (?,?,?,?)
ON CONFLICT(actor_id) DO UPDATE SET role=excluded.role, assigned_by=excluded.assigned_by, assigned_at=excluded.assigned_at`,
		actorID, role, assignedBy, now)
	return err
}

// RevokeRole removes the stored role of actorID and reports whether one existed.
func (s Service) RevokeRole(ctx context.Context, tx *sql.Tx, actorID string) (bool, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM actor_roles WHERE actor_id=?`, actorID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s Service) Assignments(ctx context.Context) ([]Assignment, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT actor_id, role, assigned_by, assigned_at FROM actor_roles ORDER BY actor_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Assignment{}
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.ActorID, &a.Role, &a.AssignedBy, &a.AssignedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
