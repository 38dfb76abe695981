package engine

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"escra/internal/domain"
	"escra/internal/events"
	"escra/internal/projection"
	"escra/internal/views"
)

type DocumentCreateOptions struct {
	ContractID string
	Name       string
	Type       string
	Status     string
	Size       int64
	MimeType   string
	ActorID    string
}

// AddDocument attaches a document record to an existing contract.
func (e Engine) AddDocument(ctx context.Context, opts DocumentCreateOptions) (domain.Document, error) {
	opts.Name = strings.TrimSpace(opts.Name)
	if opts.Name == "" {
		return domain.Document{}, invalidf("document name is required")
	}
	if opts.ContractID == "" {
		return domain.Document{}, invalidf("contract id is required")
	}
	if opts.Status == "" {
		opts.Status = domain.DocumentStatuses[0]
	}
	if !domain.OneOf(opts.Status, domain.DocumentStatuses) {
		return domain.Document{}, invalidf("document status %q must be one of %s", opts.Status, strings.Join(domain.DocumentStatuses, ", "))
	}
	if opts.Size < 0 {
		return domain.Document{}, invalidf("size must not be negative")
	}
	if opts.Type == "" {
		opts.Type = strings.ToUpper(strings.TrimPrefix(filepath.Ext(opts.Name), "."))
	}
	if opts.ActorID == "" {
		return domain.Document{}, invalidf("uploader is required")
	}
	d := domain.Document{
		ID:         uuid.NewString(),
		ContractID: opts.ContractID,
		Name:       opts.Name,
		Type:       opts.Type,
		Status:     opts.Status,
		UploadedBy: opts.ActorID,
		Size:       opts.Size,
		MimeType:   opts.MimeType,
		CreatedAt:  e.timestamp(),
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetContractTx(ctx, tx, opts.ContractID); err != nil {
			return fmt.Errorf("contract %s: %w", opts.ContractID, err)
		}
		if err := e.Repo.InsertDocument(ctx, tx, d); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.DocumentCreated, "document", d.ID, opts.ActorID, events.EventPayload{
			"contract_id": d.ContractID, "name": d.Name,
		})
	})
	if err != nil {
		return domain.Document{}, err
	}
	e.committed(events.DocumentCreated, d.ID, opts.ActorID)
	return d, nil
}

func (e Engine) DeleteDocument(ctx context.Context, id, actorID string) error {
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteDocument(ctx, tx, id); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.DocumentDeleted, "document", id, actorID, nil)
	})
	if err != nil {
		return err
	}
	e.committed(events.DocumentDeleted, id, actorID)
	return nil
}

// ListDocuments projects the stored documents through q.
func (e Engine) ListDocuments(ctx context.Context, q projection.Query) (projection.Result[domain.Document], error) {
	if err := views.Documents.Validate(q); err != nil {
		return projection.Result[domain.Document]{}, invalidf("%s", err.Error())
	}
	started := time.Now()
	items, err := e.Repo.ListDocuments(ctx)
	if err != nil {
		return projection.Result[domain.Document]{}, err
	}
	res := projection.Run(items, views.Documents, q)
	e.Metrics.ObserveProjection("documents", started, res.Total)
	return res, nil
}
