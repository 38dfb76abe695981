package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"escra/internal/domain"
)

const signatureColumns = `id,document,COALESCE(document_id,''),parties_json,status,contract_id,contract,assignee,date_sent,COALESCE(due_date,''),COALESCE(subject,''),COALESCE(message,''),provider,recipients_json,created_at,updated_at`

func scanSignature(row rowScanner) (domain.SignatureRequest, error) {
	var s domain.SignatureRequest
	var parties, recipients string
	err := row.Scan(&s.ID, &s.Document, &s.DocumentID, &parties, &s.Status, &s.ContractID, &s.Contract, &s.Assignee,
		&s.DateSent, &s.DueDate, &s.Subject, &s.Message, &s.Provider, &recipients, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if err := unmarshalJSON(parties, &s.Parties); err != nil {
		return s, fmt.Errorf("signature %s parties: %w", s.ID, err)
	}
	if err := unmarshalJSON(recipients, &s.Recipients); err != nil {
		return s, fmt.Errorf("signature %s recipients: %w", s.ID, err)
	}
	if s.Parties == nil {
		s.Parties = []string{}
	}
	if s.Recipients == nil {
		s.Recipients = []domain.Recipient{}
	}
	s.Signatures = domain.Progress(s.Recipients)
	return s, nil
}

func (r Repo) InsertSignature(ctx context.Context, tx *sql.Tx, s domain.SignatureRequest) error {
	parties, err := marshalJSON(s.Parties)
	if err != nil {
		return err
	}
	recipients, err := marshalJSON(s.Recipients)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO signature_requests(id,document,document_id,parties_json,status,contract_id,contract,assignee,date_sent,due_date,subject,message,provider,recipients_json,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.Document, nullable(s.DocumentID), parties, s.Status, s.ContractID, s.Contract, s.Assignee, s.DateSent,
		nullable(s.DueDate), nullable(s.Subject), nullable(s.Message), s.Provider, recipients, s.CreatedAt, s.UpdatedAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return fmt.Errorf("signature request %s %w", s.ID, ErrDuplicate)
	}
	return err
}

func (r Repo) GetSignature(ctx context.Context, id string) (domain.SignatureRequest, error) {
	return r.GetSignatureTx(ctx, nil, id)
}

func (r Repo) GetSignatureTx(ctx context.Context, tx *sql.Tx, id string) (domain.SignatureRequest, error) {
	return scanSignature(r.conn(tx).QueryRowContext(ctx, `SELECT `+signatureColumns+` FROM signature_requests WHERE id=?`, id))
}

// ListSignatures returns every signature request, newest first.
func (r Repo) ListSignatures(ctx context.Context) ([]domain.SignatureRequest, error) {
	return r.listSignatures(ctx, `SELECT `+signatureColumns+` FROM signature_requests ORDER BY rowid DESC`)
}

// PendingSignaturesDueBefore returns pending requests whose due date is
// before day (YYYY-MM-DD).
func (r Repo) PendingSignaturesDueBefore(ctx context.Context, day string) ([]domain.SignatureRequest, error) {
	return r.listSignatures(ctx, `SELECT `+signatureColumns+` FROM signature_requests
WHERE status=? AND due_date IS NOT NULL AND due_date <> '' AND substr(due_date,1,10) < ? ORDER BY rowid`, domain.SignaturePending, day)
}

func (r Repo) listSignatures(ctx context.Context, query string, args ...any) ([]domain.SignatureRequest, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.SignatureRequest{}
	for rows.Next() {
		s, err := scanSignature(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// UpdateSignatureState persists status and recipients of a request.
func (r Repo) UpdateSignatureState(ctx context.Context, tx *sql.Tx, s domain.SignatureRequest) error {
	recipients, err := marshalJSON(s.Recipients)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE signature_requests SET status=?, recipients_json=?, updated_at=? WHERE id=?`,
		s.Status, recipients, s.UpdatedAt, s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteSignature(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM signature_requests WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
