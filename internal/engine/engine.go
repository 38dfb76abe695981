package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"escra/internal/config"
	"escra/internal/domain"
	"escra/internal/engine/auth"
	"escra/internal/events"
	"escra/internal/metrics"
	"escra/internal/projection"
	"escra/internal/repo"
	"escra/internal/views"
)

var (
	// ErrInvalid marks input the caller must fix.
	ErrInvalid = errors.New("invalid input")
	// ErrConflict marks a request that clashes with the record's current state.
	ErrConflict = errors.New("conflict")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Auth    auth.Service
	Config  *config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config, log *zap.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Auth:   auth.Service{DB: db},
		Config: cfg,
		Log:    log,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) timestamp() string {
	return e.now().Format(time.RFC3339)
}

// inTx runs fn in a transaction and commits when it succeeds.
func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType, kind, id, actor string, payload events.EventPayload) error {
	e.Events.Now = e.Now
	return e.Events.Append(ctx, tx, evtType, kind, id, actor, payload)
}

func (e Engine) committed(evtType, id, actor string) {
	e.Metrics.Mutation(evtType)
	e.Log.Info("record changed", zap.String("event", evtType), zap.String("id", id), zap.String("actor", actor))
}

// CurrentUser returns the configured display name used when the caller has no session.
func (e Engine) CurrentUser() string {
	return e.Config.User.Name
}

// ContractCreateOptions are parameters for creating a contract.
type ContractCreateOptions struct {
	ID            string
	Title         string
	Type          string
	Parties       []domain.Party
	Assignee      string
	Value         *float64
	Description   string
	EffectiveDate string
	// SharedWith names the other callers who may see the contract.
	SharedWith []string
	Actor      auth.Actor
}

func validateContractFields(typ string, value *float64, effectiveDate string, parties []domain.Party) error {
	if !domain.OneOf(typ, domain.ContractTypes) {
		return invalidf("contract type %q must be one of %s", typ, strings.Join(domain.ContractTypes, ", "))
	}
	if value != nil && *value < 0 {
		return invalidf("value must not be negative")
	}
	if effectiveDate != "" && projection.ParseDate(effectiveDate).Unix() == 0 {
		return invalidf("effective date %q is not a date", effectiveDate)
	}
	for i, p := range parties {
		if strings.TrimSpace(p.Name) == "" {
			return invalidf("party %d has no name", i+1)
		}
	}
	return nil
}

func cleanNames(names []string) []string {
	out := []string{}
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

// CreateContract stores a new contract owned by opts.Actor.
func (e Engine) CreateContract(ctx context.Context, opts ContractCreateOptions) (domain.Contract, error) {
	opts.Title = strings.TrimSpace(opts.Title)
	if opts.Title == "" {
		return domain.Contract{}, invalidf("title is required")
	}
	if opts.Type == "" {
		opts.Type = domain.ContractTypes[0]
	}
	if err := validateContractFields(opts.Type, opts.Value, opts.EffectiveDate, opts.Parties); err != nil {
		return domain.Contract{}, err
	}
	actor, err := e.resolve(ctx, nil, opts.Actor)
	if err != nil {
		return domain.Contract{}, err
	}
	if err := actor.Require(auth.PermContractCreate); err != nil {
		return domain.Contract{}, err
	}
	if opts.Assignee == "" {
		opts.Assignee = actor.ID
	}
	now := e.timestamp()
	c := domain.Contract{
		Title:         opts.Title,
		Type:          opts.Type,
		Status:        domain.ContractInitiation,
		Parties:       opts.Parties,
		Assignee:      opts.Assignee,
		Value:         opts.Value,
		Description:   opts.Description,
		EffectiveDate: opts.EffectiveDate,
		CreatedBy:     actor.ID,
		SharedWith:    cleanNames(opts.SharedWith),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if c.Parties == nil {
		c.Parties = []domain.Party{}
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		id, err := e.allocateID(ctx, tx, repo.SeqContract, opts.ID)
		if err != nil {
			return err
		}
		c.ID = id
		if err := e.Repo.InsertContract(ctx, tx, c); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.ContractCreated, "contract", c.ID, actor.ID, events.EventPayload{
			"title": c.Title, "type": c.Type, "status": c.Status,
		})
	})
	if err != nil {
		return domain.Contract{}, err
	}
	e.committed(events.ContractCreated, c.ID, actor.ID)
	return c, nil
}

// allocateID returns explicit when set, reserving it, or the next sequence value.
func (e Engine) allocateID(ctx context.Context, tx *sql.Tx, kind, explicit string) (string, error) {
	if explicit == "" {
		return e.Repo.NextID(ctx, tx, kind)
	}
	n := projection.ParseID(explicit)
	if n <= 0 {
		return "", invalidf("id %q must be a positive integer", explicit)
	}
	if err := e.Repo.ReserveID(ctx, tx, kind, n); err != nil {
		return "", err
	}
	return fmt.Sprint(n), nil
}

// AdvanceContract moves a contract to status, or to the next stage when status is empty.
func (e Engine) AdvanceContract(ctx context.Context, id, status string, force bool, who auth.Actor) (domain.Contract, error) {
	var c domain.Contract
	var from string
	var a auth.Actor
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if a, err = e.resolve(ctx, tx, who); err != nil {
			return err
		}
		if err := a.Require(auth.PermContractUpdate); err != nil {
			return err
		}
		c, err = e.visibleContract(ctx, tx, id, a)
		if err != nil {
			return err
		}
		from = c.Status
		to := status
		if to == "" {
			next, err := domain.NextStage(from)
			if err != nil {
				return conflictf("%s", err.Error())
			}
			to = next
		}
		if domain.StageIndex(to) < 0 {
			return invalidf("contract status %q must be one of %s", to, strings.Join(domain.ContractStages, ", "))
		}
		if !domain.ValidContractTransition(from, to, force) {
			return conflictf("contract %s cannot move from %s to %s", id, from, to)
		}
		c.Status = to
		c.UpdatedAt = e.timestamp()
		if err := e.Repo.UpdateContractStatus(ctx, tx, id, to, c.UpdatedAt); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.ContractStatus, "contract", id, a.ID, events.EventPayload{
			"from": from, "to": to, "forced": force,
		})
	})
	if err != nil {
		return domain.Contract{}, err
	}
	e.committed(events.ContractStatus, id, a.ID)
	return c, nil
}

// ContractPatch holds the fields to change; nil fields are kept.
type ContractPatch struct {
	Title         *string
	Type          *string
	Parties       *[]domain.Party
	Assignee      *string
	Value         *float64
	Description   *string
	EffectiveDate *string
	SharedWith    *[]string
}

// UpdateContract merges p into contract id. Only the owner or an admin may
// change who the contract is shared with.
func (e Engine) UpdateContract(ctx context.Context, id string, p ContractPatch, who auth.Actor) (domain.Contract, error) {
	var c domain.Contract
	var a auth.Actor
	var fields []string
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if a, err = e.resolve(ctx, tx, who); err != nil {
			return err
		}
		if err := a.Require(auth.PermContractUpdate); err != nil {
			return err
		}
		if c, err = e.visibleContract(ctx, tx, id, a); err != nil {
			return err
		}
		if fields, err = applyContractPatch(&c, p); err != nil {
			return err
		}
		if p.SharedWith != nil && !owns(c, a) {
			return auth.ForbiddenError{Permission: auth.PermContractAll, Role: a.Role}
		}
		c.UpdatedAt = e.timestamp()
		if err := e.Repo.UpdateContract(ctx, tx, c); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.ContractUpdated, "contract", id, a.ID, events.EventPayload{"fields": fields})
	})
	if err != nil {
		return domain.Contract{}, err
	}
	e.committed(events.ContractUpdated, id, a.ID)
	return c, nil
}

// applyContractPatch copies the set fields of p into c and returns their names.
func applyContractPatch(c *domain.Contract, p ContractPatch) ([]string, error) {
	var fields []string
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, invalidf("title must not be empty")
		}
		c.Title = title
		fields = append(fields, "title")
	}
	if p.Type != nil {
		c.Type = *p.Type
		fields = append(fields, "type")
	}
	if p.Parties != nil {
		c.Parties = append([]domain.Party{}, (*p.Parties)...)
		fields = append(fields, "parties")
	}
	if p.Assignee != nil {
		c.Assignee = strings.TrimSpace(*p.Assignee)
		fields = append(fields, "assignee")
	}
	if p.Value != nil {
		v := *p.Value
		c.Value = &v
		fields = append(fields, "value")
	}
	if p.Description != nil {
		c.Description = *p.Description
		fields = append(fields, "description")
	}
	if p.EffectiveDate != nil {
		c.EffectiveDate = *p.EffectiveDate
		fields = append(fields, "effective_date")
	}
	if p.SharedWith != nil {
		c.SharedWith = cleanNames(*p.SharedWith)
		fields = append(fields, "shared_with")
	}
	if len(fields) == 0 {
		return nil, invalidf("no fields to update")
	}
	if err := validateContractFields(c.Type, c.Value, c.EffectiveDate, c.Parties); err != nil {
		return nil, err
	}
	return fields, nil
}

// DeleteContract removes contract id. Callers other than admins may only
// delete contracts they created.
func (e Engine) DeleteContract(ctx context.Context, id string, who auth.Actor) error {
	var a auth.Actor
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if a, err = e.resolve(ctx, tx, who); err != nil {
			return err
		}
		if err := a.Require(auth.PermContractDelete); err != nil {
			return err
		}
		c, err := e.visibleContract(ctx, tx, id, a)
		if err != nil {
			return err
		}
		if !owns(c, a) {
			return auth.ForbiddenError{Permission: auth.PermContractAll, Role: a.Role}
		}
		if err := e.Repo.DeleteContract(ctx, tx, id); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.ContractDeleted, "contract", id, a.ID, events.EventPayload{"title": c.Title})
	})
	if err != nil {
		return err
	}
	e.committed(events.ContractDeleted, id, a.ID)
	return nil
}

// ListContracts projects the contracts who may see through q.
func (e Engine) ListContracts(ctx context.Context, q projection.Query, who auth.Actor) (projection.Result[domain.Contract], error) {
	if err := views.Contracts.Validate(q); err != nil {
		return projection.Result[domain.Contract]{}, invalidf("%s", err.Error())
	}
	a, err := e.resolve(ctx, nil, who)
	if err != nil {
		return projection.Result[domain.Contract]{}, err
	}
	started := time.Now()
	all, err := e.Repo.ListContracts(ctx)
	if err != nil {
		return projection.Result[domain.Contract]{}, err
	}
	items := all[:0]
	for _, c := range all {
		if visible(c, a) {
			items = append(items, c)
		}
	}
	res := projection.Run(items, views.Contracts, q)
	e.Metrics.ObserveProjection("contracts", started, res.Total)
	return res, nil
}

// StatusCounts returns per-status counts for every collection.
func (e Engine) StatusCounts(ctx context.Context) (map[string]map[string]int, error) {
	out := map[string]map[string]int{}
	for name, table := range map[string]string{
		"contracts":  "contracts",
		"signatures": "signature_requests",
		"documents":  "documents",
	} {
		counts, err := e.Repo.CountByStatus(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		out[name] = counts
	}
	return out, nil
}
