// Package feed holds a snapshot of the records served by a remote Escra API
// and projects list queries over it locally.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"escra/internal/domain"
	"escra/internal/projection"
	"escra/internal/views"
	escrasdk "escra/sdk/go"
)

// Source lists records from the API. *escrasdk.Client satisfies it.
type Source interface {
	ListContracts(ctx context.Context, opts escrasdk.ListOptions) (escrasdk.ContractList, error)
	ListSignatures(ctx context.Context, opts escrasdk.ListOptions) (escrasdk.SignatureList, error)
}

type Feed struct {
	src Source
	log *zap.Logger

	mu         sync.RWMutex
	contracts  []domain.Contract
	signatures []domain.SignatureRequest
	loadedAt   time.Time
}

func New(src Source, log *zap.Logger) *Feed {
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{src: src, log: log.Named("feed")}
}

// Refresh fetches both collections concurrently. The snapshot is replaced
// only when every fetch succeeds; on error the previous one stays in place.
func (f *Feed) Refresh(ctx context.Context) error {
	var contracts escrasdk.ContractList
	var signatures escrasdk.SignatureList
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		contracts, err = f.src.ListContracts(gctx, escrasdk.ListOptions{})
		if err != nil {
			return fmt.Errorf("fetch contracts: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		signatures, err = f.src.ListSignatures(gctx, escrasdk.ListOptions{})
		if err != nil {
			return fmt.Errorf("fetch signatures: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		f.log.Warn("refresh failed; keeping previous snapshot", zap.Error(err))
		return err
	}
	nextContracts := make([]domain.Contract, 0, len(contracts.Contracts))
	for _, c := range contracts.Contracts {
		nextContracts = append(nextContracts, contractFromAPI(c))
	}
	nextSignatures := make([]domain.SignatureRequest, 0, len(signatures.Signatures))
	for _, s := range signatures.Signatures {
		nextSignatures = append(nextSignatures, signatureFromAPI(s))
	}
	f.mu.Lock()
	f.contracts = nextContracts
	f.signatures = nextSignatures
	f.loadedAt = time.Now()
	f.mu.Unlock()
	f.log.Debug("refreshed", zap.Int("contracts", len(nextContracts)), zap.Int("signatures", len(nextSignatures)))
	return nil
}

// LoadedAt reports when the snapshot was last replaced; zero before the first success.
func (f *Feed) LoadedAt() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.loadedAt
}

func (f *Feed) Contracts(q projection.Query) (projection.Result[domain.Contract], error) {
	if err := views.Contracts.Validate(q); err != nil {
		return projection.Result[domain.Contract]{}, err
	}
	f.mu.RLock()
	snapshot := f.contracts
	f.mu.RUnlock()
	return projection.Run(snapshot, views.Contracts, q), nil
}

func (f *Feed) Signatures(q projection.Query) (projection.Result[domain.SignatureRequest], error) {
	if err := views.Signatures.Validate(q); err != nil {
		return projection.Result[domain.SignatureRequest]{}, err
	}
	f.mu.RLock()
	snapshot := f.signatures
	f.mu.RUnlock()
	return projection.Run(snapshot, views.Signatures, q), nil
}

func contractFromAPI(c escrasdk.Contract) domain.Contract {
	parties := make([]domain.Party, 0, len(c.Parties))
	for _, p := range c.Parties {
		parties = append(parties, domain.Party{Name: p.Name, Role: p.Role, Email: p.Email})
	}
	return domain.Contract{
		ID:            c.ID,
		Title:         c.Title,
		Type:          c.Type,
		Status:        c.Status,
		Parties:       parties,
		Assignee:      c.Assignee,
		Value:         c.Value,
		Description:   c.Description,
		EffectiveDate: c.EffectiveDate,
		CreatedBy:     c.CreatedBy,
		SharedWith:    c.SharedWith,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func signatureFromAPI(s escrasdk.SignatureRequest) domain.SignatureRequest {
	recipients := make([]domain.Recipient, 0, len(s.Recipients))
	for _, r := range s.Recipients {
		recipients = append(recipients, domain.Recipient{Name: r.Name, Email: r.Email, Status: r.Status, SignedAt: r.SignedAt})
	}
	return domain.SignatureRequest{
		ID:         s.ID,
		Document:   s.Document,
		DocumentID: s.DocumentID,
		Parties:    s.Parties,
		Status:     s.Status,
		Signatures: s.Signatures,
		ContractID: s.ContractID,
		Contract:   s.Contract,
		Assignee:   s.Assignee,
		DateSent:   s.DateSent,
		DueDate:    s.DueDate,
		Subject:    s.Subject,
		Message:    s.Message,
		Provider:   s.Provider,
		Recipients: recipients,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}
