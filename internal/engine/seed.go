package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"escra/internal/domain"
	"escra/internal/events"
	"escra/internal/projection"
	"escra/internal/repo"
)

// Dataset is a batch of records loaded as-is, bypassing lifecycle rules.
// Records are listed top first, the way a list without a sort shows them.
// Tasks are listed in creation order.
type Dataset struct {
	Contracts  []domain.Contract
	Signatures []domain.SignatureRequest
	Documents  []domain.Document
	Tasks      []domain.Task
}

type SeedResult struct {
	Contracts  int `json:"contracts"`
	Signatures int `json:"signatures"`
	Documents  int `json:"documents"`
	Tasks      int `json:"tasks"`
}

// Seed inserts ds in one transaction. Any id already present aborts the
// whole load with repo.ErrDuplicate.
func (e Engine) Seed(ctx context.Context, ds Dataset, actorID string) (SeedResult, error) {
	if err := validateDataset(ds); err != nil {
		return SeedResult{}, err
	}
	now := e.timestamp()
	titles := map[string]string{}
	for _, c := range ds.Contracts {
		titles[c.ID] = c.Title
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		// Reverse insertion keeps the first record of each list on top.
		for i := len(ds.Contracts) - 1; i >= 0; i-- {
			c := ds.Contracts[i]
			stamp(&c.CreatedAt, now)
			stamp(&c.UpdatedAt, c.CreatedAt)
			if c.Parties == nil {
				c.Parties = []domain.Party{}
			}
			stamp(&c.CreatedBy, c.Assignee)
			if err := e.Repo.ReserveID(ctx, tx, repo.SeqContract, projection.ParseID(c.ID)); err != nil {
				return err
			}
			if err := e.Repo.InsertContract(ctx, tx, c); err != nil {
				return err
			}
		}
		for i := len(ds.Signatures) - 1; i >= 0; i-- {
			s := ds.Signatures[i]
			if s.Contract == "" {
				s.Contract = titles[s.ContractID]
			}
			if s.Provider == "" {
				s.Provider = domain.ProviderEscra
			}
			stamp(&s.CreatedAt, now)
			stamp(&s.UpdatedAt, s.CreatedAt)
			if err := e.Repo.ReserveID(ctx, tx, repo.SeqSignature, projection.ParseID(s.ID)); err != nil {
				return err
			}
			if err := e.Repo.InsertSignature(ctx, tx, s); err != nil {
				return err
			}
		}
		for i := len(ds.Documents) - 1; i >= 0; i-- {
			d := ds.Documents[i]
			stamp(&d.CreatedAt, now)
			if err := e.Repo.InsertDocument(ctx, tx, d); err != nil {
				return fmt.Errorf("document %s: %w", d.ID, err)
			}
		}
		for _, t := range ds.Tasks {
			stamp(&t.Type, domain.DefaultTaskType)
			stamp(&t.Assignee, domain.Unassigned)
			stamp(&t.CreatedAt, now)
			stamp(&t.UpdatedAt, t.CreatedAt)
			if err := e.Repo.ReserveID(ctx, tx, repo.SeqTask, taskNumber(t.ID)); err != nil {
				return err
			}
			if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
				return fmt.Errorf("task %s: %w", t.ID, err)
			}
		}
		return e.appendEvent(ctx, tx, events.WorkspaceSeeded, "workspace", "", actorID, events.EventPayload{
			"contracts": len(ds.Contracts), "signatures": len(ds.Signatures), "documents": len(ds.Documents),
			"tasks": len(ds.Tasks),
		})
	})
	if err != nil {
		return SeedResult{}, err
	}
	e.committed(events.WorkspaceSeeded, "", actorID)
	return SeedResult{
		Contracts: len(ds.Contracts), Signatures: len(ds.Signatures),
		Documents: len(ds.Documents), Tasks: len(ds.Tasks),
	}, nil
}

func validateDataset(ds Dataset) error {
	for _, c := range ds.Contracts {
		if projection.ParseID(c.ID) <= 0 {
			return invalidf("contract id %q must be a positive integer", c.ID)
		}
		if domain.StageIndex(c.Status) < 0 {
			return invalidf("contract %s has unknown status %q", c.ID, c.Status)
		}
		if !domain.OneOf(c.Type, domain.ContractTypes) {
			return invalidf("contract %s has unknown type %q", c.ID, c.Type)
		}
	}
	for _, s := range ds.Signatures {
		if projection.ParseID(s.ID) <= 0 {
			return invalidf("signature id %q must be a positive integer", s.ID)
		}
		if !domain.OneOf(s.Status, domain.SignatureStatuses) {
			return invalidf("signature %s has unknown status %q", s.ID, s.Status)
		}
	}
	for _, d := range ds.Documents {
		if d.ID == "" || d.Name == "" {
			return invalidf("documents need an id and a name")
		}
		if !domain.OneOf(d.Status, domain.DocumentStatuses) {
			return invalidf("document %s has unknown status %q", d.ID, d.Status)
		}
	}
	for _, t := range ds.Tasks {
		if taskNumber(t.ID) <= 0 {
			return invalidf("task id %q must look like TSK-001", t.ID)
		}
		if t.ContractID == "" || strings.TrimSpace(t.Title) == "" {
			return invalidf("task %s needs a contract and a title", t.ID)
		}
		if !domain.OneOf(t.Status, domain.TaskStatuses) {
			return invalidf("task %s has unknown status %q", t.ID, t.Status)
		}
	}
	return nil
}

func stamp(field *string, fallback string) {
	if *field == "" {
		*field = fallback
	}
}
