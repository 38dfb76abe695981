package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"escra/internal/domain"
	"escra/internal/events"
	"escra/internal/projection"
	"escra/internal/repo"
	"escra/internal/views"
)

const systemActor = "system"

// SignatureCreateOptions are parameters for sending a signature request.
type SignatureCreateOptions struct {
	ID         string
	ContractID string
	Document   string
	DocumentID string
	Recipients []domain.Recipient
	Parties    []string
	DueDate    string
	Subject    string
	Message    string
	Provider   string
	Assignee   string
	ActorID    string
}

func (e Engine) today() string {
	return e.now().Format("2006-01-02")
}

func (e Engine) CreateSignature(ctx context.Context, opts SignatureCreateOptions) (domain.SignatureRequest, error) {
	opts.Document = strings.TrimSpace(opts.Document)
	if opts.ContractID == "" {
		return domain.SignatureRequest{}, invalidf("contract id is required")
	}
	if opts.DocumentID != "" {
		doc, err := e.Repo.GetDocument(ctx, opts.DocumentID)
		if err != nil {
			return domain.SignatureRequest{}, fmt.Errorf("document %s: %w", opts.DocumentID, err)
		}
		if doc.ContractID != opts.ContractID {
			return domain.SignatureRequest{}, invalidf("document %s belongs to contract %s", doc.ID, doc.ContractID)
		}
		if opts.Document == "" {
			opts.Document = doc.Name
		}
	}
	if opts.Document == "" {
		return domain.SignatureRequest{}, invalidf("document is required")
	}
	if len(opts.Recipients) == 0 {
		return domain.SignatureRequest{}, invalidf("at least one recipient is required")
	}
	seen := map[string]bool{}
	recipients := make([]domain.Recipient, 0, len(opts.Recipients))
	for i, r := range opts.Recipients {
		r.Name = strings.TrimSpace(r.Name)
		r.Email = strings.ToLower(strings.TrimSpace(r.Email))
		if r.Email == "" || !strings.Contains(r.Email, "@") {
			return domain.SignatureRequest{}, invalidf("recipient %d needs a valid email", i+1)
		}
		if seen[r.Email] {
			return domain.SignatureRequest{}, invalidf("recipient %s listed twice", r.Email)
		}
		seen[r.Email] = true
		if r.Name == "" {
			r.Name = r.Email
		}
		r.Status = domain.RecipientPending
		r.SignedAt = ""
		recipients = append(recipients, r)
	}
	parties := opts.Parties
	if len(parties) == 0 {
		for _, r := range recipients {
			parties = append(parties, r.Name)
		}
	}
	if opts.Provider == "" {
		opts.Provider = domain.ProviderEscra
	}
	if !domain.OneOf(opts.Provider, domain.Providers) {
		return domain.SignatureRequest{}, invalidf("provider %q must be one of %s", opts.Provider, strings.Join(domain.Providers, ", "))
	}
	sent := e.today()
	if opts.DueDate != "" {
		due := projection.ParseDate(opts.DueDate)
		if due.Unix() == 0 {
			return domain.SignatureRequest{}, invalidf("due date %q is not a date", opts.DueDate)
		}
		opts.DueDate = due.Format("2006-01-02")
		if opts.DueDate < sent {
			return domain.SignatureRequest{}, invalidf("due date %s is in the past", opts.DueDate)
		}
	}
	if opts.Assignee == "" {
		opts.Assignee = opts.ActorID
	}
	if opts.Assignee == "" {
		return domain.SignatureRequest{}, invalidf("assignee is required")
	}
	now := e.timestamp()
	s := domain.SignatureRequest{
		Document:   opts.Document,
		DocumentID: opts.DocumentID,
		Parties:    parties,
		Status:     domain.SignaturePending,
		ContractID: opts.ContractID,
		Assignee:   opts.Assignee,
		DateSent:   sent,
		DueDate:    opts.DueDate,
		Subject:    opts.Subject,
		Message:    opts.Message,
		Provider:   opts.Provider,
		Recipients: recipients,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		c, err := e.Repo.GetContractTx(ctx, tx, opts.ContractID)
		if err != nil {
			return fmt.Errorf("contract %s: %w", opts.ContractID, err)
		}
		if c.Status == domain.ContractCompleted {
			return conflictf("contract %s is already %s", c.ID, c.Status)
		}
		s.Contract = c.Title
		id, err := e.allocateID(ctx, tx, repo.SeqSignature, opts.ID)
		if err != nil {
			return err
		}
		s.ID = id
		if err := e.Repo.InsertSignature(ctx, tx, s); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.SignatureCreated, "signature", s.ID, opts.ActorID, events.EventPayload{
			"contract_id": s.ContractID, "document": s.Document, "recipients": len(recipients), "provider": s.Provider,
		})
	})
	if err != nil {
		return domain.SignatureRequest{}, err
	}
	s.Signatures = domain.Progress(s.Recipients)
	e.committed(events.SignatureCreated, s.ID, opts.ActorID)
	return s, nil
}

// SignRecipient records a signature. The request completes once every
// recipient has signed.
func (e Engine) SignRecipient(ctx context.Context, id, email, actorID string) (domain.SignatureRequest, error) {
	return e.respond(ctx, id, email, domain.RecipientSigned, actorID)
}

// DeclineRecipient records a refusal, which rejects the whole request.
func (e Engine) DeclineRecipient(ctx context.Context, id, email, actorID string) (domain.SignatureRequest, error) {
	return e.respond(ctx, id, email, domain.RecipientDeclined, actorID)
}

func (e Engine) respond(ctx context.Context, id, email, outcome, actorID string) (domain.SignatureRequest, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	evtType := events.SignatureSigned
	if outcome == domain.RecipientDeclined {
		evtType = events.SignatureDeclined
	}
	var s domain.SignatureRequest
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		s, err = e.Repo.GetSignatureTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if domain.SignatureFinal(s.Status) {
			return conflictf("signature request %s is %s", id, s.Status)
		}
		idx := -1
		for i, r := range s.Recipients {
			if strings.EqualFold(r.Email, email) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("recipient %s on signature request %s: %w", email, id, repo.ErrNotFound)
		}
		if s.Recipients[idx].Status != domain.RecipientPending {
			return conflictf("recipient %s already %s", email, strings.ToLower(s.Recipients[idx].Status))
		}
		now := e.timestamp()
		s.Recipients[idx].Status = outcome
		s.Recipients[idx].SignedAt = now
		s.Status = outcomeStatus(s.Recipients)
		s.UpdatedAt = now
		if err := e.Repo.UpdateSignatureState(ctx, tx, s); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, evtType, "signature", id, actorID, events.EventPayload{
			"email": email, "status": s.Status,
		})
	})
	if err != nil {
		return domain.SignatureRequest{}, err
	}
	s.Signatures = domain.Progress(s.Recipients)
	e.committed(evtType, id, actorID)
	return s, nil
}

func outcomeStatus(recipients []domain.Recipient) string {
	signed := 0
	for _, r := range recipients {
		switch r.Status {
		case domain.RecipientDeclined:
			return domain.SignatureRejected
		case domain.RecipientSigned:
			signed++
		}
	}
	if signed == len(recipients) {
		return domain.SignatureCompleted
	}
	return domain.SignaturePending
}

// VoidSignature cancels a pending request.
func (e Engine) VoidSignature(ctx context.Context, id, actorID string) (domain.SignatureRequest, error) {
	s, err := e.setSignatureStatus(ctx, id, domain.SignatureVoided, actorID)
	if err != nil {
		return domain.SignatureRequest{}, err
	}
	e.committed(events.SignatureStatus, id, actorID)
	return s, nil
}

func (e Engine) setSignatureStatus(ctx context.Context, id, status, actorID string) (domain.SignatureRequest, error) {
	var s domain.SignatureRequest
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		s, err = e.Repo.GetSignatureTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if domain.SignatureFinal(s.Status) {
			return conflictf("signature request %s is %s", id, s.Status)
		}
		from := s.Status
		s.Status = status
		s.UpdatedAt = e.timestamp()
		if err := e.Repo.UpdateSignatureState(ctx, tx, s); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.SignatureStatus, "signature", id, actorID, events.EventPayload{
			"from": from, "to": status,
		})
	})
	return s, err
}

func (e Engine) DeleteSignature(ctx context.Context, id, actorID string) error {
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		s, err := e.Repo.GetSignatureTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := e.Repo.DeleteSignature(ctx, tx, id); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.SignatureDeleted, "signature", id, actorID, events.EventPayload{
			"contract_id": s.ContractID, "status": s.Status,
		})
	})
	if err != nil {
		return err
	}
	e.committed(events.SignatureDeleted, id, actorID)
	return nil
}

// ExpireOverdue moves pending requests whose due date has passed to Expired.
func (e Engine) ExpireOverdue(ctx context.Context) (int, error) {
	due, err := e.Repo.PendingSignaturesDueBefore(ctx, e.today())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range due {
		if _, err := e.setSignatureStatus(ctx, s.ID, domain.SignatureExpired, systemActor); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return n, fmt.Errorf("expire %s: %w", s.ID, err)
		}
		e.committed(events.SignatureStatus, s.ID, systemActor)
		n++
	}
	e.Metrics.Expired(n)
	return n, nil
}

// ListSignatures projects the stored signature requests through q.
func (e Engine) ListSignatures(ctx context.Context, q projection.Query) (projection.Result[domain.SignatureRequest], error) {
	if err := views.Signatures.Validate(q); err != nil {
		return projection.Result[domain.SignatureRequest]{}, invalidf("%s", err.Error())
	}
	started := time.Now()
	items, err := e.Repo.ListSignatures(ctx)
	if err != nil {
		return projection.Result[domain.SignatureRequest]{}, err
	}
	res := projection.Run(items, views.Signatures, q)
	e.Metrics.ObserveProjection("signatures", started, res.Total)
	return res, nil
}
