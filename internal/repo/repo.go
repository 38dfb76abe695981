package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an explicit id is already taken.
var ErrDuplicate = errors.New("already exists")

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) conn(tx *sql.Tx) dbtx {
	if tx != nil {
		return tx
	}
	return r.DB
}

// Sequence kinds for numeric identifiers.
const (
	SeqContract  = "contract"
	SeqSignature = "signature"
	SeqTask      = "task"
)

// NextID allocates the next numeric id of kind.
func (r Repo) NextID(ctx context.Context, tx *sql.Tx, kind string) (string, error) {
	var next int64
	err := tx.QueryRowContext(ctx, `SELECT next FROM id_sequences WHERE kind=?`, kind).Scan(&next)
	if err == sql.ErrNoRows {
		next = 1
	} else if err != nil {
		return "", fmt.Errorf("read sequence %s: %w", kind, err)
	}
	if err := r.ReserveID(ctx, tx, kind, next); err != nil {
		return "", err
	}
	return strconv.FormatInt(next, 10), nil
}

// ReserveID moves the sequence of kind past id so explicit ids are never reissued.
func (r Repo) ReserveID(ctx context.Context, tx *sql.Tx, kind string, id int64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO id_sequences(kind,next) VALUES (?,?)
ON CONFLICT(kind) DO UPDATE SET next=MAX(next, excluded.next)`, kind, id+1)
	if err != nil {
		return fmt.Errorf("reserve %s id %d: %w", kind, id, err)
	}
	return nil
}

// CountByStatus returns record counts per status for table, one of
// contracts, signature_requests or documents.
func (r Repo) CountByStatus(ctx context.Context, table string) (map[string]int, error) {
	switch table {
	case "contracts", "signature_requests", "documents":
	default:
		return nil, fmt.Errorf("invalid table %q", table)
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM `+table+` GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		res[status] = n
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalJSON(raw string, v any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}
