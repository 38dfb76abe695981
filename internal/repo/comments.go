package repo

import (
	"context"
	"database/sql"

	"escra/internal/domain"
)

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO contract_comments(id,contract_id,author,content,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.ContractID, c.Author, c.Content, c.CreatedAt)
	return err
}

// ListComments returns the comments of a contract, oldest first.
func (r Repo) ListComments(ctx context.Context, contractID string) ([]domain.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,contract_id,author,content,created_at FROM contract_comments WHERE contract_id=? ORDER BY rowid`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.ContractID, &c.Author, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
