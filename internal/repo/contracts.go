package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"escra/internal/domain"
)

const contractColumns = `id,title,type,status,parties_json,COALESCE(assignee,''),value,COALESCE(description,''),COALESCE(effective_date,''),COALESCE(created_by,''),shared_with_json,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContract(row rowScanner) (domain.Contract, error) {
	var c domain.Contract
	var parties, shared string
	var value sql.NullFloat64
	err := row.Scan(&c.ID, &c.Title, &c.Type, &c.Status, &parties, &c.Assignee, &value, &c.Description, &c.EffectiveDate, &c.CreatedBy, &shared, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if value.Valid {
		v := value.Float64
		c.Value = &v
	}
	if err := unmarshalJSON(parties, &c.Parties); err != nil {
		return c, fmt.Errorf("contract %s parties: %w", c.ID, err)
	}
	if c.Parties == nil {
		c.Parties = []domain.Party{}
	}
	if err := unmarshalJSON(shared, &c.SharedWith); err != nil {
		return c, fmt.Errorf("contract %s shared_with: %w", c.ID, err)
	}
	return c, nil
}

// contractJSON encodes the list columns of c.
func contractJSON(c domain.Contract) (parties, shared string, err error) {
	if parties, err = marshalJSON(c.Parties); err != nil {
		return "", "", err
	}
	if c.SharedWith == nil {
		return parties, "[]", nil
	}
	shared, err = marshalJSON(c.SharedWith)
	return parties, shared, err
}

func (r Repo) InsertContract(ctx context.Context, tx *sql.Tx, c domain.Contract) error {
	parties, shared, err := contractJSON(c)
	if err != nil {
		return err
	}
	var value any
	if c.Value != nil {
		value = *c.Value
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO contracts(id,title,type,status,parties_json,assignee,value,description,effective_date,created_by,shared_with_json,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Title, c.Type, c.Status, parties, nullable(c.Assignee), value, nullable(c.Description), nullable(c.EffectiveDate),
		nullable(c.CreatedBy), shared, c.CreatedAt, c.UpdatedAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return fmt.Errorf("contract %s %w", c.ID, ErrDuplicate)
	}
	return err
}

func (r Repo) GetContract(ctx context.Context, id string) (domain.Contract, error) {
	return r.GetContractTx(ctx, nil, id)
}

func (r Repo) GetContractTx(ctx context.Context, tx *sql.Tx, id string) (domain.Contract, error) {
	return scanContract(r.conn(tx).QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id=?`, id))
}

// ListContracts returns every contract, newest first.
func (r Repo) ListContracts(ctx context.Context) ([]domain.Contract, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+contractColumns+` FROM contracts ORDER BY rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Contract{}
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) UpdateContractStatus(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE contracts SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateContract rewrites the editable fields of c. Status and ownership
// have their own paths.
func (r Repo) UpdateContract(ctx context.Context, tx *sql.Tx, c domain.Contract) error {
	parties, shared, err := contractJSON(c)
	if err != nil {
		return err
	}
	var value any
	if c.Value != nil {
		value = *c.Value
	}
	res, err := tx.ExecContext(ctx, `UPDATE contracts SET title=?, type=?, parties_json=?, assignee=?, value=?, description=?, effective_date=?, shared_with_json=?, updated_at=?
WHERE id=?`,
		c.Title, c.Type, parties, nullable(c.Assignee), value, nullable(c.Description), nullable(c.EffectiveDate), shared, c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchContract bumps updated_at, e.g. when a task or comment changes.
func (r Repo) TouchContract(ctx context.Context, tx *sql.Tx, id, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE contracts SET updated_at=? WHERE id=?`, updatedAt, id)
	return err
}

func (r Repo) DeleteContract(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM contracts WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
