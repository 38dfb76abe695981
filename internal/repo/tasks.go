package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"escra/internal/domain"
)

const taskColumns = `id,contract_id,title,COALESCE(description,''),type,status,COALESCE(assignee,''),COALESCE(due_date,''),subtasks_json,created_at,updated_at`

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var subtasks string
	err := row.Scan(&t.ID, &t.ContractID, &t.Title, &t.Description, &t.Type, &t.Status, &t.Assignee, &t.DueDate, &subtasks, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if err := unmarshalJSON(subtasks, &t.Subtasks); err != nil {
		return t, fmt.Errorf("task %s subtasks: %w", t.ID, err)
	}
	if t.Subtasks == nil {
		t.Subtasks = []domain.Subtask{}
	}
	t.Progress = domain.SubtaskProgress(t.Subtasks)
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	subtasks, err := marshalJSON(nonNil(t.Subtasks))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO contract_tasks(id,contract_id,title,description,type,status,assignee,due_date,subtasks_json,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ContractID, t.Title, nullable(t.Description), t.Type, t.Status, nullable(t.Assignee), nullable(t.DueDate), subtasks, t.CreatedAt, t.UpdatedAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return fmt.Errorf("task %s %w", t.ID, ErrDuplicate)
	}
	return err
}

// GetTaskTx returns task id of contractID; a task of another contract is not found.
func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, contractID, id string) (domain.Task, error) {
	return scanTask(r.conn(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM contract_tasks WHERE contract_id=? AND id=?`, contractID, id))
}

// ListTasks returns the tasks of a contract in creation order.
func (r Repo) ListTasks(ctx context.Context, contractID string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM contract_tasks WHERE contract_id=? ORDER BY rowid`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	subtasks, err := marshalJSON(nonNil(t.Subtasks))
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE contract_tasks SET title=?, description=?, type=?, status=?, assignee=?, due_date=?, subtasks_json=?, updated_at=?
WHERE contract_id=? AND id=?`,
		t.Title, nullable(t.Description), t.Type, t.Status, nullable(t.Assignee), nullable(t.DueDate), subtasks, t.UpdatedAt, t.ContractID, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, contractID, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM contract_tasks WHERE contract_id=? AND id=?`, contractID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
