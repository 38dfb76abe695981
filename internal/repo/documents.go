package repo

import (
	"context"
	"database/sql"

	"escra/internal/domain"
)

const documentColumns = `id,contract_id,name,type,status,uploaded_by,size,COALESCE(mime_type,''),created_at`

func scanDocument(row rowScanner) (domain.Document, error) {
	var d domain.Document
	err := row.Scan(&d.ID, &d.ContractID, &d.Name, &d.Type, &d.Status, &d.UploadedBy, &d.Size, &d.MimeType, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) InsertDocument(ctx context.Context, tx *sql.Tx, d domain.Document) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO documents(id,contract_id,name,type,status,uploaded_by,size,mime_type,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		d.ID, d.ContractID, d.Name, d.Type, d.Status, d.UploadedBy, d.Size, nullable(d.MimeType), d.CreatedAt)
	return err
}

func (r Repo) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	return scanDocument(r.DB.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=?`, id))
}

// ListDocuments returns every document, newest first.
func (r Repo) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) DeleteDocument(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
